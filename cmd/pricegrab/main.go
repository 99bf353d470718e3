package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/guarzo/pricegrab/internal/cache"
	"github.com/guarzo/pricegrab/internal/catalog"
	"github.com/guarzo/pricegrab/internal/config"
	"github.com/guarzo/pricegrab/internal/crawl"
	"github.com/guarzo/pricegrab/internal/fetch"
	"github.com/guarzo/pricegrab/internal/model"
	"github.com/guarzo/pricegrab/internal/pipeline"
	"github.com/guarzo/pricegrab/internal/report"
	"github.com/guarzo/pricegrab/internal/schedule"
	"github.com/guarzo/pricegrab/internal/scrape"
)

// Session defaults for the rendered storefront: accept the OneTrust cookie
// banner, then switch the page to English with VAT included prices.
const (
	consentSelector = "#onetrust-accept-btn-handler"
	localeFormJS    = `(function(){var f=document.getElementById("lang_vat_form");if(!f)return;var s=f.querySelector("select[name=vat_lang]");if(s){s.value="en";}f.submit();})()`
)

func main() {
	// Local overrides live in .env during development; absence is fine.
	// Loaded before flag defaults so PRICEGRAB_* variables take effect.
	_ = godotenv.Load()

	var (
		configPath  = flag.String("config", envOr("PRICEGRAB_CONFIG", "config.yaml"), "path to the YAML configuration")
		catalogPath = flag.String("catalog", envOr("PRICEGRAB_CATALOG", "catalog.csv"), "path to the merchant catalog CSV")
		outDir      = flag.String("out", "out", "directory for CSV reports")
		brands      = flag.String("brands", "", "comma-separated brand filter (default: all)")
		categories  = flag.String("categories", "", "comma-separated category filter (default: all)")
		sites       = flag.String("sites", "", "comma-separated site codes (default: all)")
		refresh     = flag.Bool("refresh", false, "ignore cached crawl snapshots")
		cronSpec    = flag.String("schedule", "", "cron expression for repeated runs (default: run once)")
		listOnly    = flag.Bool("list", false, "print catalog brands and categories and exit")
	)
	flag.Parse()

	if err := run(*configPath, *catalogPath, *outDir, *brands, *categories, *sites, *refresh, *cronSpec, *listOnly); err != nil {
		log.Fatalf("pricegrab: %v", err)
	}
}

func run(configPath, catalogPath, outDir, brands, categories, sites string, refresh bool, cronSpec string, listOnly bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	lines, err := catalog.LoadFile(catalogPath)
	if err != nil {
		return err
	}
	log.Printf("catalog: %d lines from %s", len(lines), catalogPath)

	if listOnly {
		fmt.Println("Brands:", strings.Join(catalog.Brands(lines), ", "))
		fmt.Println("Categories:", strings.Join(catalog.Categories(lines), ", "))
		return nil
	}

	opts := pipeline.RunOptions{
		Brands:     splitList(brands),
		Categories: splitList(categories),
		Refresh:    refresh,
	}
	for _, code := range splitList(sites) {
		site, ok := model.ParseSite(code)
		if !ok {
			return fmt.Errorf("unknown site code %q", code)
		}
		opts.Sites = append(opts.Sites, site)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := fetch.New(fetch.Config{})

	var renderer scrape.Renderer
	if needsRenderer(cfg, opts.Sites) {
		chrome, err := scrape.NewChromeRenderer(ctx, scrape.ChromeConfig{
			ConsentSelector: consentSelector,
			LocaleFormJS:    localeFormJS,
		})
		if err != nil {
			return err
		}
		defer chrome.Close()
		renderer = chrome
	}

	orch := crawl.New(cfg.Workers, cfg, scrape.Deps{},
		crawl.WithAdapterSource(func(site model.Site) (scrape.Adapter, error) {
			deps := scrape.Deps{
				Fetcher:            fetcher,
				NonProductPatterns: cfg.NonProductPatterns(site),
			}
			if cfg.Rendered(site) {
				deps.Renderer = renderer
			}
			return scrape.AdapterFor(site, deps)
		}),
		crawl.WithPerSiteLimit(2, 5*time.Second),
	)

	var snapshots *cache.Cache
	if cfg.CachePath != "" {
		snapshots, err = cache.New(cfg.CachePath)
		if err != nil {
			return err
		}
	}

	p := pipeline.New(cfg, lines, orch, snapshots)

	runOnce := func(ctx context.Context) error {
		runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeoutDuration())
		defer cancel()

		rep, err := p.Run(runCtx, opts)
		if err != nil {
			return err
		}
		return writeReports(outDir, rep)
	}

	if cronSpec == "" {
		return runOnce(ctx)
	}

	runner, err := schedule.New(cronSpec, runOnce)
	if err != nil {
		return err
	}
	err = runner.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

func writeReports(outDir string, rep *pipeline.RunReport) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	if err := report.SaveCSV(filepath.Join(outDir, "listings.csv"), func(w io.Writer) error {
		return report.WriteListings(w, rep.Listings)
	}); err != nil {
		return err
	}

	if err := report.SaveCSV(filepath.Join(outDir, "recommendations.csv"), func(w io.Writer) error {
		return report.WriteRecommendations(w, rep.Recommendations)
	}); err != nil {
		return err
	}

	if len(rep.Failures) > 0 {
		rows := make([]report.FailureRow, 0, len(rep.Failures))
		for _, f := range rep.Failures {
			rows = append(rows, report.FailureRow{Target: f.Target, Err: f.Err.Error()})
		}
		if err := report.SaveCSV(filepath.Join(outDir, "failures.csv"), func(w io.Writer) error {
			return report.WriteFailures(w, rows)
		}); err != nil {
			return err
		}
	}

	log.Printf("reports written to %s", outDir)
	return nil
}

func needsRenderer(cfg *config.Config, selected []model.Site) bool {
	for _, site := range model.AllSites() {
		if !cfg.Rendered(site) {
			continue
		}
		if len(selected) == 0 {
			return true
		}
		for _, s := range selected {
			if s == site {
				return true
			}
		}
	}
	return false
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

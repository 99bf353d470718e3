package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/guarzo/pricegrab/internal/cache"
	"github.com/guarzo/pricegrab/internal/config"
	"github.com/guarzo/pricegrab/internal/crawl"
	"github.com/guarzo/pricegrab/internal/model"
	"github.com/guarzo/pricegrab/internal/scrape"
	"github.com/guarzo/pricegrab/internal/testutil"
)

const testYAML = `
fuzzy_threshold: 85
workers: 2
cache_ttl: 1h

selectors:
  PN:
    padel-rackets: {card: "div.p", name: "h3", price: "span.price"}
  ET:
    padel-rackets: {card: "div.p", name: "h3", price: "span.price"}

sites:
  PN:
    categories:
      padel-rackets:
        Babolat: "https://pn.example/babolat"
  ET:
    categories:
      padel-rackets:
        Babolat: "https://et.example/babolat"

categories:
  padel-rackets:
    sites: [PN, ET]
    bands:
      - {min: 0, max: 1000, strategy: MatchCheapest}
`

var testCatalog = []model.CatalogLine{
	{Brand: "Babolat", SKU: "BTV24", Category: "padel-rackets", Name: "Babolat Technical Viper 2024", CostCents: 5000, RetailCents: 10000},
}

var price = testutil.IntPtr

type stubAdapter struct {
	site     model.Site
	listings []model.Listing
	err      error
	calls    int32
}

func (a *stubAdapter) Site() model.Site { return a.site }

func (a *stubAdapter) Crawl(context.Context, model.SiteTarget, model.SelectorSet) ([]model.Listing, error) {
	atomic.AddInt32(&a.calls, 1)
	return a.listings, a.err
}

func newTestPipeline(t *testing.T, adapters map[model.Site]scrape.Adapter, snapshots *cache.Cache) *Pipeline {
	t.Helper()
	cfg, err := config.Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	orch := crawl.New(2, cfg, scrape.Deps{}, crawl.WithAdapterSource(func(site model.Site) (scrape.Adapter, error) {
		return adapters[site], nil
	}))
	return New(cfg, testCatalog, orch, snapshots)
}

func TestRunEndToEnd(t *testing.T) {
	adapters := map[model.Site]scrape.Adapter{
		model.SitePN: &stubAdapter{site: model.SitePN, listings: []model.Listing{
			{Site: model.SitePN, Name: "Babolat Technical Viper 2024", PriceCents: price(8500)},
		}},
		model.SiteET: &stubAdapter{site: model.SiteET, listings: []model.Listing{
			{Site: model.SiteET, Name: "Babolat Technical Viper 2024", PriceCents: price(9200)},
			{Site: model.SiteET, Name: "Wilson Blade 98", PriceCents: price(20000)},
		}},
	}

	p := newTestPipeline(t, adapters, nil)
	report, err := p.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Listings) != 3 {
		t.Errorf("listings = %d, want 3", len(report.Listings))
	}
	if len(report.Matches) != 2 {
		t.Errorf("matches = %d, want one per site", len(report.Matches))
	}
	if len(report.Recommendations) != 1 {
		t.Fatalf("recommendations = %d, want 1", len(report.Recommendations))
	}

	rec := report.Recommendations[0]
	if rec.Basis != model.BasisStrategyApplied || rec.RecommendedCents != 8500 {
		t.Errorf("recommendation = %+v, want cheapest competitor 8500", rec)
	}
	if len(report.Failures) != 0 {
		t.Errorf("failures = %+v", report.Failures)
	}
}

func TestRunToleratesSiteFailure(t *testing.T) {
	adapters := map[model.Site]scrape.Adapter{
		model.SitePN: &stubAdapter{site: model.SitePN, listings: []model.Listing{
			{Site: model.SitePN, Name: "Babolat Technical Viper 2024", PriceCents: price(8500)},
		}},
		model.SiteET: &stubAdapter{site: model.SiteET, err: errors.New("HTTP 503 after 6 attempts")},
	}

	p := newTestPipeline(t, adapters, nil)
	report, err := p.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(report.Failures))
	}
	if report.Failures[0].Target.Site != model.SiteET {
		t.Errorf("failed site = %s", report.Failures[0].Target.Site)
	}
	// The healthy site still produced a recommendation.
	if len(report.Recommendations) != 1 || report.Recommendations[0].RecommendedCents != 8500 {
		t.Errorf("recommendations = %+v", report.Recommendations)
	}
}

func TestRunUsesSnapshots(t *testing.T) {
	pn := &stubAdapter{site: model.SitePN, listings: []model.Listing{
		{Site: model.SitePN, Name: "Babolat Technical Viper 2024", PriceCents: price(8500)},
	}}
	et := &stubAdapter{site: model.SiteET, listings: []model.Listing{
		{Site: model.SiteET, Name: "Babolat Technical Viper 2024", PriceCents: price(9200)},
	}}
	adapters := map[model.Site]scrape.Adapter{model.SitePN: pn, model.SiteET: et}

	snapshots, err := cache.New(filepath.Join(t.TempDir(), "snap.json"))
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	p := newTestPipeline(t, adapters, snapshots)

	first, err := p.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.TargetsCrawled != 2 || first.TargetsCached != 0 {
		t.Errorf("first run: crawled=%d cached=%d", first.TargetsCrawled, first.TargetsCached)
	}

	second, err := p.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.TargetsCached != 2 || second.TargetsCrawled != 0 {
		t.Errorf("second run: crawled=%d cached=%d", second.TargetsCrawled, second.TargetsCached)
	}
	if got := atomic.LoadInt32(&pn.calls); got != 1 {
		t.Errorf("adapter crawled %d times, want 1 (second run cached)", got)
	}
	// Cached runs still price normally.
	if len(second.Recommendations) != 1 || second.Recommendations[0].RecommendedCents != 8500 {
		t.Errorf("recommendations from cache = %+v", second.Recommendations)
	}

	// Refresh bypasses the snapshots.
	third, err := p.Run(context.Background(), RunOptions{Refresh: true})
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if third.TargetsCrawled != 2 {
		t.Errorf("refresh run crawled %d targets, want 2", third.TargetsCrawled)
	}
}

func TestRunSiteFilter(t *testing.T) {
	pn := &stubAdapter{site: model.SitePN, listings: []model.Listing{
		{Site: model.SitePN, Name: "Babolat Technical Viper 2024", PriceCents: price(8500)},
	}}
	et := &stubAdapter{site: model.SiteET}
	adapters := map[model.Site]scrape.Adapter{model.SitePN: pn, model.SiteET: et}

	p := newTestPipeline(t, adapters, nil)
	report, err := p.Run(context.Background(), RunOptions{Sites: []model.Site{model.SitePN}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.TargetsCrawled != 1 {
		t.Errorf("crawled %d targets, want 1", report.TargetsCrawled)
	}
	if got := atomic.LoadInt32(&et.calls); got != 0 {
		t.Errorf("filtered site crawled %d times", got)
	}
}

func TestRunNoTargets(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	if _, err := p.Run(context.Background(), RunOptions{Brands: []string{"NoSuchBrand"}}); err == nil {
		t.Error("expected error for empty target set")
	}
}

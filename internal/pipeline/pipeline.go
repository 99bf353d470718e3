package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/guarzo/pricegrab/internal/cache"
	"github.com/guarzo/pricegrab/internal/config"
	"github.com/guarzo/pricegrab/internal/crawl"
	"github.com/guarzo/pricegrab/internal/match"
	"github.com/guarzo/pricegrab/internal/model"
	"github.com/guarzo/pricegrab/internal/pricing"
)

// Pipeline runs the full crawl, match and price sequence for a catalog.
type Pipeline struct {
	cfg       *config.Config
	catalog   []model.CatalogLine
	orch      *crawl.Orchestrator
	snapshots *cache.Cache
}

// RunOptions narrows one run. Empty slices mean everything the config and
// catalog cover.
type RunOptions struct {
	Brands     []string
	Categories []string
	Sites      []model.Site
	// Refresh bypasses cached crawl snapshots.
	Refresh bool
}

// RunReport is the outcome of one full run.
type RunReport struct {
	Listings        []model.Listing
	Matches         []model.MatchResult
	Recommendations []model.PriceRecommendation
	Failures        []crawl.Failure
	TargetsCrawled  int
	TargetsCached   int
	Elapsed         time.Duration
}

// New assembles a pipeline. The snapshot cache is optional.
func New(cfg *config.Config, catalog []model.CatalogLine, orch *crawl.Orchestrator, snapshots *cache.Cache) *Pipeline {
	return &Pipeline{cfg: cfg, catalog: catalog, orch: orch, snapshots: snapshots}
}

// Run crawls every selected target, matches listings against the catalog
// per category and prices each line. Crawl failures are reported, never
// fatal; an error only means the run could not start at all.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	start := time.Now()

	targets := p.cfg.Targets(opts.Brands, opts.Categories)
	targets = filterSites(targets, opts.Sites)
	if len(targets) == 0 {
		return nil, fmt.Errorf("pipeline: no crawl targets for the requested brands and categories")
	}

	cached, toCrawl := p.splitCached(targets, opts.Refresh)
	log.Printf("pipeline: %d targets (%d cached, %d to crawl)", len(targets), len(cached), len(toCrawl))

	listingsByTarget := make(map[model.SiteTarget][]model.Listing, len(targets))
	for t, ls := range cached {
		listingsByTarget[t] = ls
	}

	var failures []crawl.Failure
	if len(toCrawl) > 0 {
		result := p.orch.Run(ctx, toCrawl)
		failures = result.Failures
		for t, ls := range result.Listings {
			listingsByTarget[t] = ls
			p.storeSnapshot(t, ls)
		}
	}

	report := &RunReport{
		Failures:       failures,
		TargetsCrawled: len(toCrawl),
		TargetsCached:  len(cached),
	}

	// Matching and pricing run per category so each one gets its own
	// threshold mode and band table.
	categories := p.categoriesIn(targets)
	for _, category := range categories {
		lines := p.linesFor(category, opts.Brands)
		listings := listingsForCategory(listingsByTarget, category)
		report.Listings = append(report.Listings, listings...)
		if len(lines) == 0 {
			continue
		}

		matches := match.Match(lines, listings, match.Options{
			Threshold:  p.cfg.FuzzyThreshold,
			MatchOnSKU: p.cfg.MatchOnSKU(category),
			Sites:      opts.Sites,
		})
		report.Matches = append(report.Matches, matches...)

		recs := pricing.PriceAll(lines, p.cfg.BandsFor(category), matches)
		report.Recommendations = append(report.Recommendations, recs...)
	}

	report.Elapsed = time.Since(start)
	log.Printf("pipeline: %d listings, %d matches, %d recommendations, %d failures in %s",
		len(report.Listings), len(report.Matches), len(report.Recommendations), len(report.Failures), report.Elapsed.Round(time.Millisecond))
	return report, nil
}

func (p *Pipeline) splitCached(targets []model.SiteTarget, refresh bool) (map[model.SiteTarget][]model.Listing, []model.SiteTarget) {
	cached := make(map[model.SiteTarget][]model.Listing)
	var toCrawl []model.SiteTarget

	for _, t := range targets {
		if refresh || p.snapshots == nil {
			toCrawl = append(toCrawl, t)
			continue
		}
		var ls []model.Listing
		found, err := p.snapshots.Get(cache.TargetKey(t), &ls)
		if err != nil || !found {
			toCrawl = append(toCrawl, t)
			continue
		}
		cached[t] = ls
	}
	return cached, toCrawl
}

func (p *Pipeline) storeSnapshot(t model.SiteTarget, listings []model.Listing) {
	if p.snapshots == nil {
		return
	}
	if err := p.snapshots.Put(cache.TargetKey(t), listings, p.cfg.CacheTTLDuration()); err != nil {
		log.Printf("pipeline: caching snapshot for %s: %v", t.Key(), err)
	}
}

func (p *Pipeline) categoriesIn(targets []model.SiteTarget) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range targets {
		if !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	return out
}

func (p *Pipeline) linesFor(category string, brands []string) []model.CatalogLine {
	brandSet := map[string]bool{}
	for _, b := range brands {
		brandSet[b] = true
	}

	var lines []model.CatalogLine
	for _, l := range p.catalog {
		if l.Category != category {
			continue
		}
		if len(brandSet) > 0 && !brandSet[l.Brand] {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

func listingsForCategory(byTarget map[model.SiteTarget][]model.Listing, category string) []model.Listing {
	targets := make([]model.SiteTarget, 0, len(byTarget))
	for t := range byTarget {
		if t.Category == category {
			targets = append(targets, t)
		}
	}
	sortTargets(targets)

	var out []model.Listing
	for _, t := range targets {
		out = append(out, byTarget[t]...)
	}
	return out
}

func filterSites(targets []model.SiteTarget, sites []model.Site) []model.SiteTarget {
	if len(sites) == 0 {
		return targets
	}
	allowed := map[model.Site]bool{}
	for _, s := range sites {
		allowed[s] = true
	}
	var out []model.SiteTarget
	for _, t := range targets {
		if allowed[t.Site] {
			out = append(out, t)
		}
	}
	return out
}

func sortTargets(targets []model.SiteTarget) {
	sort.Slice(targets, func(i, j int) bool { return targets[i].Key() < targets[j].Key() })
}

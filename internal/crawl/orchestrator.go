package crawl

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/guarzo/pricegrab/internal/fetch"
	"github.com/guarzo/pricegrab/internal/model"
	"github.com/guarzo/pricegrab/internal/ratelimit"
	"github.com/guarzo/pricegrab/internal/scrape"
)

// SelectorSource resolves the selector set for one target. Satisfied by
// config.Config.
type SelectorSource interface {
	SelectorsFor(site model.Site, category string) (model.SelectorSet, error)
}

// AdapterSource builds the adapter for a site. The default uses the scrape
// registry; tests inject stubs.
type AdapterSource func(site model.Site) (scrape.Adapter, error)

// Failure records one target that produced no listings.
type Failure struct {
	Target model.SiteTarget
	Err    error
}

// Result is the outcome of one crawl run. Listings holds whatever was
// extracted; Failures holds the targets that errored out. Both can be
// non-empty in the same run.
type Result struct {
	Listings map[model.SiteTarget][]model.Listing
	Failures []Failure
	Elapsed  time.Duration
}

// ListingsBySite folds the per-target listings into per-site slices,
// in deterministic target order.
func (r *Result) ListingsBySite() map[model.Site][]model.Listing {
	targets := make([]model.SiteTarget, 0, len(r.Listings))
	for t := range r.Listings {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Key() < targets[j].Key() })

	out := make(map[model.Site][]model.Listing)
	for _, t := range targets {
		out[t.Site] = append(out[t.Site], r.Listings[t]...)
	}
	return out
}

// Orchestrator fans crawl targets out over a worker pool. One failed
// target never aborts the run; its error lands in Result.Failures and the
// remaining targets proceed.
type Orchestrator struct {
	workers   int
	selectors SelectorSource
	adapters  AdapterSource
	perSite   *ratelimit.PerSite
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithAdapterSource overrides how site adapters are built.
func WithAdapterSource(src AdapterSource) Option {
	return func(o *Orchestrator) { o.adapters = src }
}

// WithPerSiteLimit throttles crawling per site: a bucket of burst targets,
// refilled one per interval.
func WithPerSiteLimit(burst int, refill time.Duration) Option {
	return func(o *Orchestrator) { o.perSite = ratelimit.NewPerSite(burst, refill) }
}

// New creates an orchestrator with the given pool size.
func New(workers int, selectors SelectorSource, deps scrape.Deps, opts ...Option) *Orchestrator {
	if workers <= 0 {
		workers = 3
	}
	o := &Orchestrator{
		workers:   workers,
		selectors: selectors,
		adapters: func(site model.Site) (scrape.Adapter, error) {
			return scrape.AdapterFor(site, deps)
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type crawlOutcome struct {
	target   model.SiteTarget
	listings []model.Listing
	err      error
}

// Run crawls every target and collects listings and failures. Workers pull
// from a shared queue; adapters are built once per site and shared, so a
// rendered site prepares its browser session only once.
func (o *Orchestrator) Run(ctx context.Context, targets []model.SiteTarget) *Result {
	start := time.Now()

	adapters := make(map[model.Site]scrape.Adapter)
	adapterErrs := make(map[model.Site]error)
	for _, t := range targets {
		if _, seen := adapters[t.Site]; seen {
			continue
		}
		if _, seen := adapterErrs[t.Site]; seen {
			continue
		}
		a, err := o.adapters(t.Site)
		if err != nil {
			adapterErrs[t.Site] = err
			continue
		}
		adapters[t.Site] = a
	}

	jobs := make(chan model.SiteTarget, len(targets))
	outcomes := make(chan crawlOutcome, len(targets))

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				outcomes <- o.crawlOne(ctx, target, adapters, adapterErrs)
			}
		}()
	}

	for _, t := range targets {
		jobs <- t
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	result := &Result{Listings: make(map[model.SiteTarget][]model.Listing)}
	for out := range outcomes {
		if out.err != nil {
			log.Printf("crawl: %s/%s/%s failed: %v", out.target.Site, out.target.Category, out.target.Brand, out.err)
			result.Failures = append(result.Failures, Failure{Target: out.target, Err: out.err})
			continue
		}
		log.Printf("crawl: %s/%s/%s returned %d listings", out.target.Site, out.target.Category, out.target.Brand, len(out.listings))
		result.Listings[out.target] = out.listings
	}

	sortFailures(result.Failures)
	result.Elapsed = time.Since(start)
	return result
}

func (o *Orchestrator) crawlOne(ctx context.Context, target model.SiteTarget, adapters map[model.Site]scrape.Adapter, adapterErrs map[model.Site]error) crawlOutcome {
	if err := ctx.Err(); err != nil {
		return crawlOutcome{target: target, err: abortedErr(target, err)}
	}
	if err, ok := adapterErrs[target.Site]; ok {
		return crawlOutcome{target: target, err: err}
	}

	sel, err := o.selectors.SelectorsFor(target.Site, target.Category)
	if err != nil {
		return crawlOutcome{target: target, err: err}
	}

	if o.perSite != nil {
		if err := o.perSite.For(target.Site).WaitContext(ctx); err != nil {
			return crawlOutcome{target: target, err: abortedErr(target, err)}
		}
	}

	listings, err := adapters[target.Site].Crawl(ctx, target, sel)
	if err != nil {
		return crawlOutcome{target: target, err: err}
	}
	return crawlOutcome{target: target, listings: listings}
}

// abortedErr reports a target cut off by run cancellation with the same
// timeout kind an exhausted fetch would carry, so downstream failure
// handling sees one taxonomy.
func abortedErr(target model.SiteTarget, err error) error {
	return &fetch.Error{Kind: fetch.KindTimeout, URL: target.URL, Err: err}
}

func sortFailures(failures []Failure) {
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Target.Key() < failures[j].Target.Key()
	})
}

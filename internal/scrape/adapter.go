package scrape

import (
	"context"
	"fmt"
	"sync"

	"github.com/guarzo/pricegrab/internal/model"
)

// Fetcher retrieves a raw page body. Satisfied by fetch.Client.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Renderer produces HTML for pages that only take shape after client-side
// scripting. Prepare runs once per site before any Render call to settle
// session state (cookie consent, locale, VAT display).
type Renderer interface {
	Prepare(ctx context.Context, url string) error
	Render(ctx context.Context, url string) (string, error)
}

// Adapter extracts listings for one competitor site.
type Adapter interface {
	Site() model.Site
	// Crawl walks the listing pages starting at the target URL and returns
	// every product card it can parse. Follows pagination until exhausted.
	Crawl(ctx context.Context, target model.SiteTarget, sel model.SelectorSet) ([]model.Listing, error)
}

// Deps carries the shared collaborators an adapter needs. Renderer is nil
// for static sites.
type Deps struct {
	Fetcher  Fetcher
	Renderer Renderer
	// NonProductPatterns filters resolved product URLs; a URL containing
	// any pattern is dropped from results.
	NonProductPatterns []string
}

// Factory builds an adapter from its dependencies.
type Factory func(deps Deps) Adapter

var (
	registryMu sync.RWMutex
	registry   = map[model.Site]Factory{}
)

// Register installs the factory for a site. Called from init in adapter
// files; registering a site twice panics.
func Register(site model.Site, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[site]; dup {
		panic(fmt.Sprintf("scrape: adapter for %s registered twice", site))
	}
	registry[site] = factory
}

// AdapterFor builds the adapter registered for a site.
func AdapterFor(site model.Site, deps Deps) (Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[site]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("scrape: no adapter registered for site %s", site)
	}
	return factory(deps), nil
}

// RegisteredSites returns the sites with an installed adapter.
func RegisteredSites() []model.Site {
	registryMu.RLock()
	defer registryMu.RUnlock()
	var sites []model.Site
	for _, s := range model.AllSites() {
		if _, ok := registry[s]; ok {
			sites = append(sites, s)
		}
	}
	return sites
}

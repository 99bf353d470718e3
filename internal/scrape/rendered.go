package scrape

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/guarzo/pricegrab/internal/model"
)

func init() {
	Register(model.SiteTW, func(deps Deps) Adapter {
		return &RenderedAdapter{site: model.SiteTW, deps: deps}
	})
}

// RenderedAdapter scrapes sites whose listing pages are assembled by
// client-side scripts. Page HTML comes from the Renderer; extraction and
// pagination then work exactly like the static path.
type RenderedAdapter struct {
	site model.Site
	deps Deps

	mu       sync.Mutex
	prepared bool
}

func (a *RenderedAdapter) Site() model.Site { return a.site }

func (a *RenderedAdapter) Crawl(ctx context.Context, target model.SiteTarget, sel model.SelectorSet) ([]model.Listing, error) {
	if a.deps.Renderer == nil {
		return nil, fmt.Errorf("site %s requires a renderer", a.site)
	}

	// The renderer drives a single browser tab, so targets for this site
	// run one at a time. Interleaved navigations would hand one target
	// another target's page.
	a.mu.Lock()
	defer a.mu.Unlock()

	// Session setup runs against the first target. A failed setup is not
	// latched; the next target retries it.
	if !a.prepared {
		if err := a.deps.Renderer.Prepare(ctx, target.URL); err != nil {
			return nil, fmt.Errorf("preparing session for %s: %w", a.site, err)
		}
		a.prepared = true
	}

	var listings []model.Listing

	pageURL := target.URL
	visited := map[string]bool{}

	for pageURL != "" && !visited[pageURL] {
		visited[pageURL] = true

		html, err := a.deps.Renderer.Render(ctx, pageURL)
		if err != nil {
			return listings, fmt.Errorf("rendering %s: %w", pageURL, err)
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
		if err != nil {
			return listings, fmt.Errorf("parsing %s: %w", pageURL, err)
		}

		listings = append(listings, extractListings(doc, a.site, pageURL, sel, a.deps.NonProductPatterns)...)

		pageURL = nextPageURL(doc, pageURL, sel.NextPage)
	}

	return listings, nil
}

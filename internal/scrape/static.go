package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/guarzo/pricegrab/internal/model"
)

func init() {
	for _, site := range []model.Site{model.SitePN, model.SiteTTP, model.SiteET, model.SiteTP, model.SiteTPR} {
		site := site
		Register(site, func(deps Deps) Adapter {
			return &StaticAdapter{site: site, deps: deps}
		})
	}
}

// StaticAdapter scrapes sites that serve complete listing markup. One
// instance per site; the selector set carries the per-site CSS.
type StaticAdapter struct {
	site model.Site
	deps Deps
}

func (a *StaticAdapter) Site() model.Site { return a.site }

func (a *StaticAdapter) Crawl(ctx context.Context, target model.SiteTarget, sel model.SelectorSet) ([]model.Listing, error) {
	var listings []model.Listing

	pageURL := target.URL
	visited := map[string]bool{}

	for pageURL != "" && !visited[pageURL] {
		visited[pageURL] = true

		body, err := a.deps.Fetcher.Get(ctx, pageURL)
		if err != nil {
			return listings, fmt.Errorf("crawling %s: %w", pageURL, err)
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return listings, fmt.Errorf("parsing %s: %w", pageURL, err)
		}

		listings = append(listings, extractListings(doc, a.site, pageURL, sel, a.deps.NonProductPatterns)...)

		pageURL = nextPageURL(doc, pageURL, sel.NextPage)
	}

	return listings, nil
}

// extractListings pulls one Listing per product card. Cards with an empty
// name are skipped; cards with unparseable prices are kept with a nil price
// so matching can still see them.
func extractListings(doc *goquery.Document, site model.Site, pageURL string, sel model.SelectorSet, nonProduct []string) []model.Listing {
	var listings []model.Listing

	doc.Find(sel.Card).Each(func(_ int, card *goquery.Selection) {
		name := strings.TrimSpace(card.Find(sel.Name).First().Text())
		if name == "" {
			return
		}

		l := model.Listing{Site: site, Name: name}

		if sel.Price != "" {
			if cents, ok := ParseCents(card.Find(sel.Price).First().Text()); ok {
				l.PriceCents = &cents
			}
		}
		if sel.OldPrice != "" {
			if cents, ok := ParseCents(card.Find(sel.OldPrice).First().Text()); ok {
				l.OldPriceCents = &cents
			}
		}
		if sel.Badge != "" {
			l.Badge = CleanBadge(card.Find(sel.Badge).First().Text())
		}

		rawBadge := ""
		if sel.Badge != "" {
			rawBadge = card.Find(sel.Badge).First().Text()
		}
		if sel.Discount != "" {
			if d := card.Find(sel.Discount).First().Text(); strings.TrimSpace(d) != "" {
				rawBadge = d
			}
		}
		l.DiscountPct = DiscountPct(l.PriceCents, l.OldPriceCents, rawBadge)

		if sel.ProductURL != "" {
			if href, ok := card.Find(sel.ProductURL).First().Attr("href"); ok {
				resolved := resolveURL(pageURL, href)
				if isNonProductURL(resolved, nonProduct) {
					return
				}
				l.ProductURL = resolved
			}
		}

		listings = append(listings, l)
	})

	return listings
}

// nextPageURL resolves the pagination link, or "" when the crawl is done.
func nextPageURL(doc *goquery.Document, pageURL, selector string) string {
	if selector == "" {
		return ""
	}
	href, ok := doc.Find(selector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" || href == "#" {
		return ""
	}
	return resolveURL(pageURL, href)
}

func resolveURL(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

func isNonProductURL(u string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(u, p) {
			return true
		}
	}
	return false
}

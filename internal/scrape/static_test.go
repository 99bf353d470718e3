package scrape

import (
	"context"
	"fmt"
	"testing"

	"github.com/guarzo/pricegrab/internal/model"
)

// pageFetcher serves canned HTML keyed by URL.
type pageFetcher struct {
	pages map[string]string
	calls []string
}

func (f *pageFetcher) Get(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	html, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return []byte(html), nil
}

var testSelectors = model.SelectorSet{
	Card:       "div.product",
	Name:       "h3.name",
	Badge:      "span.badge",
	Price:      "span.price",
	OldPrice:   "span.old",
	ProductURL: "a.link",
	NextPage:   "a.next",
}

const page1 = `<html><body>
<div class="product">
  <h3 class="name">Babolat Technical Viper 2024</h3>
  <span class="old">150,00 €</span>
  <span class="price">120,00 €</span>
  <span class="badge">Προσφορά -20%</span>
  <a class="link" href="/product/viper-2024">view</a>
</div>
<div class="product">
  <h3 class="name">Head Speed Motion</h3>
  <span class="price">Call for price</span>
  <a class="link" href="/product/speed-motion">view</a>
</div>
<div class="product">
  <h3 class="name"></h3>
  <span class="price">10,00 €</span>
</div>
<a class="next" href="/rackets?page=2">next</a>
</body></html>`

const page2 = `<html><body>
<div class="product">
  <h3 class="name">Bullpadel Vertex 04</h3>
  <span class="price">99,90 €</span>
  <a class="link" href="/catpage-vertex">view</a>
</div>
<div class="product">
  <h3 class="name">Nox AT10</h3>
  <span class="price">185,00 €</span>
  <a class="link" href="/product/nox-at10">view</a>
</div>
</body></html>`

func TestStaticAdapterCrawl(t *testing.T) {
	base := "https://shop.example"
	fetcher := &pageFetcher{pages: map[string]string{
		base + "/rackets":        page1,
		base + "/rackets?page=2": page2,
	}}

	adapter, err := AdapterFor(model.SitePN, Deps{
		Fetcher:            fetcher,
		NonProductPatterns: []string{"/catpage-"},
	})
	if err != nil {
		t.Fatalf("AdapterFor: %v", err)
	}

	target := model.SiteTarget{Site: model.SitePN, Category: "padel-rackets", Brand: "Babolat", URL: base + "/rackets"}
	listings, err := adapter.Crawl(context.Background(), target, testSelectors)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	// Page 1 yields 2 cards (the nameless one is dropped); page 2 yields 1
	// (the catpage URL is filtered).
	if len(listings) != 3 {
		t.Fatalf("got %d listings, want 3: %+v", len(listings), listings)
	}

	first := listings[0]
	if first.Name != "Babolat Technical Viper 2024" {
		t.Errorf("name = %q", first.Name)
	}
	if first.PriceCents == nil || *first.PriceCents != 12000 {
		t.Errorf("price = %v, want 12000", first.PriceCents)
	}
	if first.OldPriceCents == nil || *first.OldPriceCents != 15000 {
		t.Errorf("old price = %v, want 15000", first.OldPriceCents)
	}
	if first.DiscountPct != 20 {
		t.Errorf("discount = %d, want 20", first.DiscountPct)
	}
	if first.Badge != "Προσφορά" {
		t.Errorf("badge = %q, want cleaned text", first.Badge)
	}
	if first.ProductURL != base+"/product/viper-2024" {
		t.Errorf("product URL = %q, relative href not resolved", first.ProductURL)
	}

	second := listings[1]
	if second.PriceCents != nil {
		t.Errorf("unparseable price should stay nil, got %v", *second.PriceCents)
	}

	if listings[2].Name != "Nox AT10" {
		t.Errorf("page 2 listing = %q", listings[2].Name)
	}

	if len(fetcher.calls) != 2 {
		t.Errorf("fetched %d pages, want 2", len(fetcher.calls))
	}
}

func TestStaticAdapterPaginationCycle(t *testing.T) {
	base := "https://shop.example"
	// The next link points back at page 1.
	cyclic := `<html><body>
<div class="product"><h3 class="name">Solo Item</h3><span class="price">50</span></div>
<a class="next" href="/rackets">again</a>
</body></html>`

	fetcher := &pageFetcher{pages: map[string]string{base + "/rackets": cyclic}}
	adapter, _ := AdapterFor(model.SiteTTP, Deps{Fetcher: fetcher})

	target := model.SiteTarget{Site: model.SiteTTP, Category: "padel-rackets", Brand: "Solo", URL: base + "/rackets"}
	listings, err := adapter.Crawl(context.Background(), target, testSelectors)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if len(listings) != 1 {
		t.Errorf("cycle not detected, got %d listings", len(listings))
	}
	if len(fetcher.calls) != 1 {
		t.Errorf("fetched %d pages, want 1", len(fetcher.calls))
	}
}

func TestStaticAdapterFetchFailure(t *testing.T) {
	fetcher := &pageFetcher{pages: map[string]string{}}
	adapter, _ := AdapterFor(model.SiteET, Deps{Fetcher: fetcher})

	target := model.SiteTarget{Site: model.SiteET, Category: "padel-rackets", Brand: "X", URL: "https://down.example/r"}
	_, err := adapter.Crawl(context.Background(), target, testSelectors)
	if err == nil {
		t.Fatal("expected error from failing fetcher")
	}
}

func TestRegistryCoversAllSites(t *testing.T) {
	got := RegisteredSites()
	want := model.AllSites()
	if len(got) != len(want) {
		t.Fatalf("registered %d sites, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("site %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestAdapterForUnknownSite(t *testing.T) {
	if _, err := AdapterFor(model.Site("ZZ"), Deps{}); err == nil {
		t.Error("expected error for unregistered site")
	}
}

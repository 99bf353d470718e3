package model

import "fmt"

// Site identifies one competitor storefront.
type Site string

const (
	SitePN  Site = "PN"  // Padel Nuestro
	SiteTTP Site = "TTP" // Total Padel
	SiteTW  Site = "TW"  // Tennis Warehouse
	SiteET  Site = "ET"  // e-tennis
	SiteTP  Site = "TP"  // Tennis-Point
	SiteTPR Site = "TPR" // Tennispro
)

// AllSites lists every known site code in a fixed order.
func AllSites() []Site {
	return []Site{SiteET, SitePN, SiteTP, SiteTPR, SiteTTP, SiteTW}
}

// ParseSite validates a site code from configuration.
func ParseSite(s string) (Site, bool) {
	for _, site := range AllSites() {
		if string(site) == s {
			return site, true
		}
	}
	return "", false
}

// DisplayName returns the human-readable store name for a site code.
func (s Site) DisplayName() string {
	switch s {
	case SitePN:
		return "Padel Nuestro"
	case SiteTTP:
		return "Total Padel"
	case SiteTW:
		return "Tennis Warehouse"
	case SiteET:
		return "e-tennis"
	case SiteTP:
		return "Tennis-Point"
	case SiteTPR:
		return "Tennispro"
	}
	return string(s)
}

// CatalogLine is one product record from the merchant's own catalog.
// Identified by (Brand, SKU); immutable for the duration of a run.
// Monetary amounts are integer cents to avoid float issues.
type CatalogLine struct {
	Brand       string
	SKU         string
	Category    string
	Name        string
	CostCents   int
	RetailCents int
}

// Key returns the unique identifier for this line.
func (l CatalogLine) Key() string {
	return l.Brand + "|" + l.SKU
}

// SiteTarget is one (site, category, brand) crawl unit. Derived from the
// site URL configuration; read-only once a run starts.
type SiteTarget struct {
	Site     Site
	Category string
	Brand    string
	URL      string
}

// Key returns a stable identifier usable as a cache or map key.
func (t SiteTarget) Key() string {
	return fmt.Sprintf("%s|%s|%s", t.Site, t.Category, t.Brand)
}

// SelectorSet holds the CSS selectors that drive extraction for one
// (site, category) pair. Card selects the repeated product node; the rest
// are evaluated relative to each card. Optional selectors may be empty.
type SelectorSet struct {
	Card       string `yaml:"card"`
	Name       string `yaml:"name"`
	Badge      string `yaml:"badge"`
	Discount   string `yaml:"discount"`
	Price      string `yaml:"price"`
	OldPrice   string `yaml:"old_price"`
	ProductURL string `yaml:"product_url"`
	NextPage   string `yaml:"next_page"`
}

// Listing is one scraped competitor product card. PriceCents is nil when the
// card rendered without a resolvable price; such listings can still match a
// catalog line but never drive a recommendation. Held only for the duration
// of one run.
type Listing struct {
	Site          Site
	Name          string
	Badge         string
	PriceCents    *int
	OldPriceCents *int
	DiscountPct   int
	ProductURL    string
}

// MatchResult pairs a catalog line with its best listing from one site.
// The matcher emits at most one MatchResult per (line, site).
type MatchResult struct {
	Line       CatalogLine
	Listing    Listing
	Similarity float64 // 0..1
}

// Strategy selects how a recommended price is computed inside a band.
type Strategy string

const (
	StrategyNone                 Strategy = "None"
	StrategyMatchCheapest        Strategy = "MatchCheapest"
	StrategyUndercutByPercent    Strategy = "UndercutByPercent"
	StrategyFixedMarginAboveCost Strategy = "FixedMarginAboveCost"
)

// ParseStrategy validates a strategy name from configuration.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case StrategyNone, StrategyMatchCheapest, StrategyUndercutByPercent, StrategyFixedMarginAboveCost:
		return Strategy(s), true
	}
	return "", false
}

// PriceBand is a retail-price range with an associated pricing strategy.
// A line belongs to the band whose [MinCents, MaxCents) interval contains
// its retail price. Param is a percentage for the strategies that take one.
type PriceBand struct {
	MinCents int
	MaxCents int
	Strategy Strategy
	Param    float64
}

// Contains reports whether a retail price falls inside this band.
func (b PriceBand) Contains(retailCents int) bool {
	return retailCents >= b.MinCents && retailCents < b.MaxCents
}

// Basis records how a recommendation was produced.
type Basis string

const (
	BasisNoCompetitorData Basis = "NoCompetitorData"
	BasisStrategyApplied  Basis = "StrategyApplied"
)

// PriceRecommendation is the per-line output of a run.
type PriceRecommendation struct {
	Line             CatalogLine
	RecommendedCents int
	Basis            Basis
	Strategy         Strategy
	BelowCostFloor   bool
	Matches          []MatchResult
}

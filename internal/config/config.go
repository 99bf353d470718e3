package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guarzo/pricegrab/internal/model"
)

// Config is the declarative run configuration: selector sets per
// (site, category), the crawlable URL universe per (site, category, brand),
// and per-category matching and pricing settings. Loaded once at startup and
// treated as immutable afterwards.
type Config struct {
	FuzzyThreshold int    `yaml:"fuzzy_threshold"`
	Workers        int    `yaml:"workers"`
	RunTimeout     string `yaml:"run_timeout"`
	CachePath      string `yaml:"cache_path"`
	CacheTTL       string `yaml:"cache_ttl"`

	// site -> category -> selectors
	Selectors map[string]map[string]model.SelectorSet `yaml:"selectors"`
	Sites     map[string]SiteConfig                   `yaml:"sites"`
	// merchant category -> matching/pricing settings
	Categories map[string]CategoryConfig `yaml:"categories"`

	runTimeout time.Duration
	cacheTTL   time.Duration
}

// SiteConfig describes one competitor storefront.
type SiteConfig struct {
	// Rendered marks sites whose listing pages need client-side rendering
	// before they can be parsed.
	Rendered bool `yaml:"rendered"`
	// category -> brand -> crawl root URL
	Categories map[string]map[string]string `yaml:"categories"`
	// Resolved product URLs matching any of these substrings are dropped
	// (category pages, videos, gear guides).
	NonProductPatterns []string `yaml:"non_product_patterns"`
}

// CategoryConfig holds the per-category settings the presentation layer
// would otherwise supply interactively.
type CategoryConfig struct {
	Sites      []string     `yaml:"sites"`
	MatchOnSKU bool         `yaml:"match_on_sku"`
	Bands      []BandConfig `yaml:"bands"`
}

// BandConfig is one user-authored price band. Min and Max are in the store
// currency's major unit.
type BandConfig struct {
	Min      float64 `yaml:"min"`
	Max      float64 `yaml:"max"`
	Strategy string  `yaml:"strategy"`
	Param    float64 `yaml:"param"`
}

// Error marks a configuration problem scoped to one target. It is distinct
// from runtime scraping failures: the affected target fails fast, other
// targets proceed.
type Error struct {
	Site     model.Site
	Category string
	Msg      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s/%s: %s", e.Site, e.Category, e.Msg)
}

// Load reads and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.FuzzyThreshold == 0 {
		c.FuzzyThreshold = 85
	}
	if c.FuzzyThreshold < 70 || c.FuzzyThreshold > 100 {
		return fmt.Errorf("config: fuzzy_threshold %d outside [70,100]", c.FuzzyThreshold)
	}
	if c.Workers <= 0 {
		c.Workers = 3
	}

	c.runTimeout = 10 * time.Minute
	if c.RunTimeout != "" {
		d, err := time.ParseDuration(c.RunTimeout)
		if err != nil {
			return fmt.Errorf("config: run_timeout: %w", err)
		}
		c.runTimeout = d
	}
	c.cacheTTL = time.Hour
	if c.CacheTTL != "" {
		d, err := time.ParseDuration(c.CacheTTL)
		if err != nil {
			return fmt.Errorf("config: cache_ttl: %w", err)
		}
		c.cacheTTL = d
	}

	for name := range c.Sites {
		if _, ok := model.ParseSite(name); !ok {
			return fmt.Errorf("config: unknown site code %q", name)
		}
	}
	for name := range c.Selectors {
		if _, ok := model.ParseSite(name); !ok {
			return fmt.Errorf("config: selectors for unknown site code %q", name)
		}
	}

	for cat, cc := range c.Categories {
		for _, s := range cc.Sites {
			if _, ok := model.ParseSite(s); !ok {
				return fmt.Errorf("config: category %q references unknown site %q", cat, s)
			}
		}
		bands, err := bandsFromConfig(cc.Bands)
		if err != nil {
			return fmt.Errorf("config: category %q: %w", cat, err)
		}
		if err := checkBandOverlap(bands); err != nil {
			return fmt.Errorf("config: category %q: %w", cat, err)
		}
	}

	return nil
}

// RunTimeoutDuration returns the parsed run-level timeout.
func (c *Config) RunTimeoutDuration() time.Duration { return c.runTimeout }

// CacheTTLDuration returns the parsed crawl-snapshot TTL.
func (c *Config) CacheTTLDuration() time.Duration { return c.cacheTTL }

// SelectorsFor resolves the selector set for one (site, category). A missing
// entry is a configuration error for that target only.
func (c *Config) SelectorsFor(site model.Site, category string) (model.SelectorSet, error) {
	byCat, ok := c.Selectors[string(site)]
	if ok {
		if sel, ok := byCat[category]; ok {
			if sel.Card == "" {
				return model.SelectorSet{}, &Error{Site: site, Category: category, Msg: "selector set has no card selector"}
			}
			return sel, nil
		}
	}
	return model.SelectorSet{}, &Error{Site: site, Category: category, Msg: "no selector set configured"}
}

// Rendered reports whether a site's pages require client-side rendering.
func (c *Config) Rendered(site model.Site) bool {
	return c.Sites[string(site)].Rendered
}

// NonProductPatterns returns the URL filter list for a site.
func (c *Config) NonProductPatterns(site model.Site) []string {
	return c.Sites[string(site)].NonProductPatterns
}

// SitesFor returns the site codes enabled for a merchant category, sorted.
func (c *Config) SitesFor(category string) []model.Site {
	cc, ok := c.Categories[category]
	if !ok {
		return nil
	}
	var out []model.Site
	for _, s := range cc.Sites {
		if site, ok := model.ParseSite(s); ok {
			out = append(out, site)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MatchOnSKU reports whether matching for a category keys on the SKU
// instead of the product name.
func (c *Config) MatchOnSKU(category string) bool {
	return c.Categories[category].MatchOnSKU
}

// BandsFor returns the price bands configured for a category, sorted by
// lower bound. Validation already ran at load time.
func (c *Config) BandsFor(category string) []model.PriceBand {
	bands, err := bandsFromConfig(c.Categories[category].Bands)
	if err != nil {
		return nil
	}
	return bands
}

// Targets expands the URL universe into the crawl units for the given
// brands and categories. Only (site, category) pairs enabled for the
// category produce targets; brands without a configured URL are skipped.
func (c *Config) Targets(brands, categories []string) []model.SiteTarget {
	brandSet := toSet(brands)
	catSet := toSet(categories)

	var targets []model.SiteTarget
	for siteName, sc := range c.Sites {
		site, ok := model.ParseSite(siteName)
		if !ok {
			continue
		}
		for category, byBrand := range sc.Categories {
			if catSet != nil && !catSet[category] {
				continue
			}
			if !siteEnabled(c.SitesFor(category), site) {
				continue
			}
			for brand, url := range byBrand {
				if brandSet != nil && !brandSet[brand] {
					continue
				}
				targets = append(targets, model.SiteTarget{
					Site:     site,
					Category: category,
					Brand:    brand,
					URL:      url,
				})
			}
		}
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i].Key() < targets[j].Key() })
	return targets
}

func siteEnabled(enabled []model.Site, site model.Site) bool {
	for _, s := range enabled {
		if s == site {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

func bandsFromConfig(bcs []BandConfig) ([]model.PriceBand, error) {
	var bands []model.PriceBand
	for _, bc := range bcs {
		strategy, ok := model.ParseStrategy(bc.Strategy)
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q", bc.Strategy)
		}
		if bc.Max <= bc.Min {
			return nil, fmt.Errorf("band [%v,%v) is empty", bc.Min, bc.Max)
		}
		bands = append(bands, model.PriceBand{
			MinCents: toCents(bc.Min),
			MaxCents: toCents(bc.Max),
			Strategy: strategy,
			Param:    bc.Param,
		})
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].MinCents < bands[j].MinCents })
	return bands, nil
}

func checkBandOverlap(bands []model.PriceBand) error {
	for i := 1; i < len(bands); i++ {
		if bands[i].MinCents < bands[i-1].MaxCents {
			return fmt.Errorf("bands overlap at %d cents", bands[i].MinCents)
		}
	}
	return nil
}

func toCents(major float64) int {
	if major < 0 {
		return 0
	}
	return int(major*100 + 0.5)
}

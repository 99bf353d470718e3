package match

import (
	"math"
	"sort"
	"strings"

	"github.com/guarzo/pricegrab/internal/model"
)

// Options tunes one matching run.
type Options struct {
	// Threshold is the minimum similarity percentage (0-100) for a match
	// to count. Values outside [70,100] fall back to the default of 85.
	Threshold int
	// MatchOnSKU compares listing names against the catalog SKU instead of
	// the product description.
	MatchOnSKU bool
	// Sites restricts matching to these site codes; empty means all.
	Sites []model.Site
}

func (o *Options) threshold() float64 {
	t := o.Threshold
	if t < 70 || t > 100 {
		t = 85
	}
	return float64(t) / 100
}

func (o *Options) siteAllowed(site model.Site) bool {
	if len(o.Sites) == 0 {
		return true
	}
	for _, s := range o.Sites {
		if s == site {
			return true
		}
	}
	return false
}

// Match pairs catalog lines with the competitor listings that most likely
// sell the same product. At most one result survives per (line, site): the
// listing with the highest similarity, priced listings winning ties. Output
// order is similarity descending, then priced before unpriced, then site
// code, so reports are stable across runs.
func Match(lines []model.CatalogLine, listings []model.Listing, opts Options) []model.MatchResult {
	threshold := opts.threshold()

	var results []model.MatchResult
	for _, line := range lines {
		query := Normalize(line.Name)
		if opts.MatchOnSKU {
			query = Normalize(line.SKU)
		}
		if query == "" {
			continue
		}

		best := map[model.Site]model.MatchResult{}
		for _, listing := range listings {
			if !opts.siteAllowed(listing.Site) {
				continue
			}
			sim := Similarity(query, Normalize(listing.Name))
			if sim < threshold {
				continue
			}
			cur, seen := best[listing.Site]
			if !seen || betterMatch(listing, sim, cur) {
				best[listing.Site] = model.MatchResult{Line: line, Listing: listing, Similarity: sim}
			}
		}
		for _, r := range best {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Line.Key() != b.Line.Key() {
			return a.Line.Key() < b.Line.Key()
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		ap, bp := a.Listing.PriceCents != nil, b.Listing.PriceCents != nil
		if ap != bp {
			return ap
		}
		return a.Listing.Site < b.Listing.Site
	})
	return results
}

// betterMatch reports whether a new candidate displaces the current best
// for a site. Higher similarity wins; at equal similarity a priced listing
// beats an unpriced one.
func betterMatch(listing model.Listing, sim float64, cur model.MatchResult) bool {
	if sim != cur.Similarity {
		return sim > cur.Similarity
	}
	return listing.PriceCents != nil && cur.Listing.PriceCents == nil
}

// Normalize lowercases, trims and collapses runs of whitespace so cosmetic
// formatting differences between storefronts never affect scores.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Similarity computes a score in [0,1] between two normalized names.
// Containment short-circuits to a high score so "Viper 2024" still matches
// "Babolat Technical Viper 2024"; otherwise the score falls back to
// Levenshtein distance over the longer string.
func Similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	if len(s1) == 0 || len(s2) == 0 {
		return 0.0
	}

	if strings.Contains(s2, s1) || strings.Contains(s1, s2) {
		minLen := math.Min(float64(len(s1)), float64(len(s2)))
		maxLen := math.Max(float64(len(s1)), float64(len(s2)))
		return 0.85 + (0.15 * (minLen / maxLen))
	}

	distance := levenshteinDistance(s1, s2)
	maxLen := math.Max(float64(len(s1)), float64(len(s2)))

	similarity := 1.0 - (float64(distance) / maxLen)
	return math.Max(0, similarity)
}

func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
	}

	for i := 0; i <= len(s1); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}

			matrix[i][j] = min3(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(s1)][len(s2)]
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}

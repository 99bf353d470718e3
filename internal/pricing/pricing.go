package pricing

import (
	"math"
	"sort"

	"github.com/guarzo/pricegrab/internal/model"
)

// Price produces a recommendation for one catalog line from its competitor
// matches. The band containing the line's retail price picks the strategy;
// lines outside every band, or with no usable competitor price, keep their
// retail price with BasisNoCompetitorData. Computed prices are clamped to
// the band, and margin strategies never land below cost.
func Price(line model.CatalogLine, bands []model.PriceBand, matches []model.MatchResult) model.PriceRecommendation {
	rec := model.PriceRecommendation{
		Line:             line,
		RecommendedCents: line.RetailCents,
		Basis:            model.BasisNoCompetitorData,
		Strategy:         model.StrategyNone,
		Matches:          matches,
	}

	cheapest, ok := cheapestCompetitor(matches)
	if !ok {
		return rec
	}

	band, ok := bandFor(bands, line.RetailCents)
	if !ok {
		return rec
	}

	rec.Basis = model.BasisStrategyApplied
	rec.Strategy = band.Strategy

	switch band.Strategy {
	case model.StrategyMatchCheapest:
		rec.RecommendedCents = cheapest
	case model.StrategyUndercutByPercent:
		rec.RecommendedCents = roundHalfUp(float64(cheapest) * (1 - band.Param/100))
	case model.StrategyFixedMarginAboveCost:
		rec.RecommendedCents = roundHalfUp(float64(line.CostCents) * (1 + band.Param/100))
	case model.StrategyNone:
		rec.RecommendedCents = line.RetailCents
	}

	// Computed prices stay inside the band that selected the strategy.
	if rec.RecommendedCents < band.MinCents {
		rec.RecommendedCents = band.MinCents
	}
	if rec.RecommendedCents > band.MaxCents {
		rec.RecommendedCents = band.MaxCents
	}

	// Margin strategies never price below cost.
	if band.Strategy == model.StrategyFixedMarginAboveCost && rec.RecommendedCents < line.CostCents {
		rec.RecommendedCents = line.CostCents
		rec.BelowCostFloor = true
	}
	if rec.RecommendedCents < 0 {
		rec.RecommendedCents = 0
	}

	return rec
}

// PriceAll recommends for every catalog line, in catalog order. Matches are
// grouped by line key beforehand so each line only sees its own.
func PriceAll(lines []model.CatalogLine, bands []model.PriceBand, matches []model.MatchResult) []model.PriceRecommendation {
	byLine := make(map[string][]model.MatchResult)
	for _, m := range matches {
		key := m.Line.Key()
		byLine[key] = append(byLine[key], m)
	}

	recs := make([]model.PriceRecommendation, 0, len(lines))
	for _, line := range lines {
		recs = append(recs, Price(line, bands, byLine[line.Key()]))
	}
	return recs
}

// cheapestCompetitor returns the lowest priced match. Matches without a
// price are informational only and never drive a recommendation.
func cheapestCompetitor(matches []model.MatchResult) (int, bool) {
	prices := make([]int, 0, len(matches))
	for _, m := range matches {
		if m.Listing.PriceCents != nil {
			prices = append(prices, *m.Listing.PriceCents)
		}
	}
	if len(prices) == 0 {
		return 0, false
	}
	sort.Ints(prices)
	return prices[0], true
}

func bandFor(bands []model.PriceBand, retailCents int) (model.PriceBand, bool) {
	for _, b := range bands {
		if b.Contains(retailCents) {
			return b, true
		}
	}
	return model.PriceBand{}, false
}

func roundHalfUp(f float64) int {
	return int(math.Floor(f + 0.5))
}

package pricing

import (
	"testing"

	"github.com/guarzo/pricegrab/internal/model"
	"github.com/guarzo/pricegrab/internal/testutil"
)

var price = testutil.IntPtr

var testLine = model.CatalogLine{
	Brand: "Babolat", SKU: "BTV24", Category: "padel-rackets",
	Name: "Babolat Technical Viper 2024", CostCents: 5000, RetailCents: 10000,
}

func band(min, max int, strategy model.Strategy, param float64) model.PriceBand {
	return model.PriceBand{MinCents: min, MaxCents: max, Strategy: strategy, Param: param}
}

func matchAt(cents int) model.MatchResult {
	return model.MatchResult{
		Line:       testLine,
		Listing:    model.Listing{Site: model.SitePN, Name: testLine.Name, PriceCents: price(cents)},
		Similarity: 1.0,
	}
}

func TestPriceNoCompetitorData(t *testing.T) {
	bands := []model.PriceBand{band(0, 100000, model.StrategyMatchCheapest, 0)}

	rec := Price(testLine, bands, nil)
	if rec.Basis != model.BasisNoCompetitorData {
		t.Errorf("basis = %s, want no competitor data", rec.Basis)
	}
	if rec.RecommendedCents != testLine.RetailCents {
		t.Errorf("recommended = %d, want retail %d", rec.RecommendedCents, testLine.RetailCents)
	}

	// Matches without any parseable price are the same as no matches.
	unpriced := model.MatchResult{Line: testLine, Listing: model.Listing{Site: model.SiteTP, Name: testLine.Name}, Similarity: 1.0}
	rec = Price(testLine, bands, []model.MatchResult{unpriced})
	if rec.Basis != model.BasisNoCompetitorData {
		t.Errorf("basis with unpriced matches = %s, want no competitor data", rec.Basis)
	}
}

func TestPriceMatchCheapest(t *testing.T) {
	bands := []model.PriceBand{band(0, 100000, model.StrategyMatchCheapest, 0)}
	matches := []model.MatchResult{matchAt(9800), matchAt(7550), matchAt(8900)}

	rec := Price(testLine, bands, matches)
	if rec.Basis != model.BasisStrategyApplied {
		t.Errorf("basis = %s", rec.Basis)
	}
	if rec.RecommendedCents != 7550 {
		t.Errorf("recommended = %d, want 7550", rec.RecommendedCents)
	}
	if rec.Strategy != model.StrategyMatchCheapest {
		t.Errorf("strategy = %s", rec.Strategy)
	}
}

func TestPriceUndercutByPercent(t *testing.T) {
	bands := []model.PriceBand{band(0, 100000, model.StrategyUndercutByPercent, 10)}

	rec := Price(testLine, bands, []model.MatchResult{matchAt(10000)})
	if rec.RecommendedCents != 9000 {
		t.Errorf("recommended = %d, want 9000 (10%% under 10000)", rec.RecommendedCents)
	}

	// Rounding is half-up: 3% under 99.99 is 96.9903, i.e. 9699 cents.
	bands = []model.PriceBand{band(0, 100000, model.StrategyUndercutByPercent, 3)}
	rec = Price(testLine, bands, []model.MatchResult{matchAt(9999)})
	if rec.RecommendedCents != 9699 {
		t.Errorf("recommended = %d, want 9699", rec.RecommendedCents)
	}
}

func TestPriceFixedMarginAboveCost(t *testing.T) {
	bands := []model.PriceBand{band(0, 100000, model.StrategyFixedMarginAboveCost, 20)}

	rec := Price(testLine, bands, []model.MatchResult{matchAt(4000)})
	if rec.RecommendedCents != 6000 {
		t.Errorf("recommended = %d, want 6000 (cost 5000 + 20%%)", rec.RecommendedCents)
	}
	if rec.BelowCostFloor {
		t.Error("floor flag set without clamping")
	}
}

func TestPriceCostFloor(t *testing.T) {
	// A negative margin would land below cost; the engine clamps and flags.
	bands := []model.PriceBand{band(0, 100000, model.StrategyFixedMarginAboveCost, -30)}

	rec := Price(testLine, bands, []model.MatchResult{matchAt(3000)})
	if rec.RecommendedCents != testLine.CostCents {
		t.Errorf("recommended = %d, want clamp at cost %d", rec.RecommendedCents, testLine.CostCents)
	}
	if !rec.BelowCostFloor {
		t.Error("expected BelowCostFloor flag")
	}
}

func TestPriceNoneStrategy(t *testing.T) {
	bands := []model.PriceBand{band(0, 100000, model.StrategyNone, 0)}

	rec := Price(testLine, bands, []model.MatchResult{matchAt(6000)})
	if rec.RecommendedCents != testLine.RetailCents {
		t.Errorf("recommended = %d, want retail (strategy none)", rec.RecommendedCents)
	}
	if rec.Basis != model.BasisStrategyApplied {
		t.Errorf("basis = %s, competitor data was present", rec.Basis)
	}
}

func TestPriceClampsToBand(t *testing.T) {
	// Cheapest competitor sits below the band floor; the recommendation is
	// pulled up to it.
	bands := []model.PriceBand{band(8000, 100000, model.StrategyMatchCheapest, 0)}

	rec := Price(testLine, bands, []model.MatchResult{matchAt(3000)})
	if rec.RecommendedCents != 8000 {
		t.Errorf("recommended = %d, want band floor 8000", rec.RecommendedCents)
	}
	if rec.Basis != model.BasisStrategyApplied {
		t.Errorf("basis = %s", rec.Basis)
	}
}

func TestPriceOutsideBands(t *testing.T) {
	bands := []model.PriceBand{band(0, 5000, model.StrategyMatchCheapest, 0)}

	rec := Price(testLine, bands, []model.MatchResult{matchAt(6000)})
	if rec.Basis != model.BasisNoCompetitorData {
		t.Errorf("basis = %s, retail 10000 sits outside every band", rec.Basis)
	}
	if rec.RecommendedCents != testLine.RetailCents {
		t.Errorf("recommended = %d, want retail", rec.RecommendedCents)
	}
}

func TestPriceBandBoundaries(t *testing.T) {
	// Bands are [min, max): retail exactly at a boundary belongs to the
	// upper band.
	bands := []model.PriceBand{
		band(0, 10000, model.StrategyMatchCheapest, 0),
		band(10000, 20000, model.StrategyUndercutByPercent, 10),
	}

	rec := Price(testLine, bands, []model.MatchResult{matchAt(10000)})
	if rec.Strategy != model.StrategyUndercutByPercent {
		t.Errorf("strategy = %s, retail 10000 belongs to the second band", rec.Strategy)
	}
}

func TestPriceAllGeneratedCatalog(t *testing.T) {
	factory := testutil.NewTestDataFactory(42)
	bands := []model.PriceBand{
		band(0, 20000, model.StrategyMatchCheapest, 0),
		band(20000, 100000, model.StrategyUndercutByPercent, 5),
	}

	var lines []model.CatalogLine
	var matches []model.MatchResult
	for i := 0; i < 25; i++ {
		line := factory.GenerateCatalogLine("padel-rackets")
		lines = append(lines, line)
		matches = append(matches, model.MatchResult{
			Line:       line,
			Listing:    factory.GenerateListing(model.SitePN, line.Name, i%3 != 0),
			Similarity: 0.9,
		})
	}

	recs := PriceAll(lines, bands, matches)
	if len(recs) != len(lines) {
		t.Fatalf("got %d recommendations for %d lines", len(recs), len(lines))
	}
	for i, rec := range recs {
		if rec.Line.Key() != lines[i].Key() {
			t.Fatalf("rec %d out of catalog order: %s vs %s", i, rec.Line.Key(), lines[i].Key())
		}
		if rec.RecommendedCents < 0 {
			t.Errorf("rec %d is negative: %d", i, rec.RecommendedCents)
		}
		if b, ok := bandFor(bands, rec.Line.RetailCents); ok && rec.Basis == model.BasisStrategyApplied {
			if rec.RecommendedCents < b.MinCents || rec.RecommendedCents > b.MaxCents {
				t.Errorf("rec %d = %d escaped band [%d, %d]", i, rec.RecommendedCents, b.MinCents, b.MaxCents)
			}
		}
	}
}

func TestPriceAll(t *testing.T) {
	other := model.CatalogLine{Brand: "Head", SKU: "HSM23", Category: "padel-rackets", Name: "Head Speed Motion", CostCents: 6000, RetailCents: 12000}
	bands := []model.PriceBand{band(0, 100000, model.StrategyMatchCheapest, 0)}

	matches := []model.MatchResult{matchAt(7550)}
	recs := PriceAll([]model.CatalogLine{testLine, other}, bands, matches)

	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(recs))
	}
	if recs[0].RecommendedCents != 7550 || recs[0].Basis != model.BasisStrategyApplied {
		t.Errorf("first rec = %+v", recs[0])
	}
	// The second line has no matches and keeps retail.
	if recs[1].RecommendedCents != other.RetailCents || recs[1].Basis != model.BasisNoCompetitorData {
		t.Errorf("second rec = %+v", recs[1])
	}
}

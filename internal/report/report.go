package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/guarzo/pricegrab/internal/model"
)

// WriteListings emits the raw crawl results as CSV, one row per listing.
func WriteListings(w io.Writer, listings []model.Listing) error {
	cw := csv.NewWriter(w)

	header := []string{"Site", "Store", "Product", "Price", "Old Price", "Discount %", "Badge", "URL"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, l := range listings {
		row := []string{
			string(l.Site),
			l.Site.DisplayName(),
			l.Name,
			formatCentsPtr(l.PriceCents),
			formatCentsPtr(l.OldPriceCents),
			strconv.Itoa(l.DiscountPct),
			l.Badge,
			l.ProductURL,
		}
		if err := cw.Write(EscapeCSVRow(row)); err != nil {
			return fmt.Errorf("write listing row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteRecommendations emits the pricing output as CSV, one row per catalog
// line. Competitor columns summarize the matches that drove the price.
func WriteRecommendations(w io.Writer, recs []model.PriceRecommendation) error {
	cw := csv.NewWriter(w)

	header := []string{
		"Brand", "SKU", "Product", "Cost", "Retail",
		"Recommended", "Basis", "Strategy", "Below Cost Floor",
		"Matches", "Cheapest Competitor", "Cheapest Site",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, rec := range recs {
		cheapestPrice, cheapestSite := cheapestMatch(rec.Matches)
		row := []string{
			rec.Line.Brand,
			rec.Line.SKU,
			rec.Line.Name,
			formatCents(rec.Line.CostCents),
			formatCents(rec.Line.RetailCents),
			formatCents(rec.RecommendedCents),
			string(rec.Basis),
			string(rec.Strategy),
			strconv.FormatBool(rec.BelowCostFloor),
			strconv.Itoa(len(rec.Matches)),
			cheapestPrice,
			cheapestSite,
		}
		if err := cw.Write(EscapeCSVRow(row)); err != nil {
			return fmt.Errorf("write recommendation row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFailures records the crawl targets that produced no data.
func WriteFailures(w io.Writer, failures []FailureRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"Site", "Category", "Brand", "URL", "Error"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, f := range failures {
		row := []string{string(f.Target.Site), f.Target.Category, f.Target.Brand, f.Target.URL, f.Err}
		if err := cw.Write(EscapeCSVRow(row)); err != nil {
			return fmt.Errorf("write failure row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FailureRow is one failed target plus its rendered error text.
type FailureRow struct {
	Target model.SiteTarget
	Err    string
}

// SaveCSV writes a report through fn to a file.
func SaveCSV(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func cheapestMatch(matches []model.MatchResult) (price, site string) {
	best := -1
	for _, m := range matches {
		if m.Listing.PriceCents == nil {
			continue
		}
		if best < 0 || *m.Listing.PriceCents < best {
			best = *m.Listing.PriceCents
			site = string(m.Listing.Site)
		}
	}
	if best < 0 {
		return "", ""
	}
	return formatCents(best), site
}

func formatCents(cents int) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func formatCentsPtr(cents *int) string {
	if cents == nil {
		return ""
	}
	return formatCents(*cents)
}

package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/guarzo/pricegrab/internal/model"
)

// The merchant ERP exports with localized column names. Every column below
// must be present or the file is rejected before any crawl starts.
var columnMap = map[string]string{
	"Κατασκευαστής":        "Brand",
	"Κωδικός Κατασκευαστή": "Sku",
	"Κατηγορία":            "Category",
	"Περιγραφή":            "Name",
	"Κόστος":               "Cost",
	"Λιανική":              "Retail",
	"Εκπτωση":              "Disc",
	"Τελική":               "Final",
	"No Vat":               "No Vat",
	"Μεικτό":               "Margin",
}

// ValidationError reports the expected columns missing from an upload.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog: missing expected columns: %s", strings.Join(e.Missing, ", "))
}

// Load reads the merchant catalog from CSV. It validates the full localized
// header set up front and returns a ValidationError listing any columns that
// are absent. Rows with an empty brand or SKU are skipped.
func Load(r io.Reader) ([]model.CatalogLine, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("catalog: reading header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}

	var missing []string
	for col := range columnMap {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &ValidationError{Missing: missing}
	}

	field := func(rec []string, localized string) string {
		i := idx[localized]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var lines []model.CatalogLine
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: reading row: %w", err)
		}

		brand := field(rec, "Κατασκευαστής")
		sku := field(rec, "Κωδικός Κατασκευαστή")
		if brand == "" || sku == "" {
			continue
		}

		lines = append(lines, model.CatalogLine{
			Brand:       brand,
			SKU:         sku,
			Category:    field(rec, "Κατηγορία"),
			Name:        field(rec, "Περιγραφή"),
			CostCents:   parseCents(field(rec, "Κόστος")),
			RetailCents: parseCents(field(rec, "Λιανική")),
		})
	}

	return lines, nil
}

// LoadFile reads the catalog from a file path.
func LoadFile(path string) ([]model.CatalogLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Brands returns the distinct brands present in the catalog, sorted.
func Brands(lines []model.CatalogLine) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lines {
		if !seen[l.Brand] {
			seen[l.Brand] = true
			out = append(out, l.Brand)
		}
	}
	sort.Strings(out)
	return out
}

// Categories returns the distinct categories present in the catalog, sorted.
func Categories(lines []model.CatalogLine) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lines {
		if l.Category != "" && !seen[l.Category] {
			seen[l.Category] = true
			out = append(out, l.Category)
		}
	}
	sort.Strings(out)
	return out
}

// parseCents converts an ERP money cell to integer cents. The export uses
// either dot or comma as the decimal separator. Unparseable cells become 0.
func parseCents(s string) int {
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimSpace(strings.TrimSuffix(s, "€"))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(math.Floor(f*100 + 0.5))
}

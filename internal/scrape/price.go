package scrape

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	priceRe    = regexp.MustCompile(`\d+[.,]?\d*`)
	badgeRe    = regexp.MustCompile(`[\-\d%]+`)
	badgePctRe = regexp.MustCompile(`(\d+)\s*%`)
)

// CleanPrice extracts the first numeric token from raw scraped price text,
// normalizing the decimal comma. Returns "" when no digits are present
// (e.g. "Call for price").
func CleanPrice(raw string) string {
	normalized := strings.ReplaceAll(raw, ",", ".")
	return priceRe.FindString(normalized)
}

// ParseCents converts raw price text to integer cents. The bool is false
// when the text carries no parseable price.
func ParseCents(raw string) (int, bool) {
	cleaned := CleanPrice(raw)
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return int(math.Floor(f*100 + 0.5)), true
}

// CleanBadge strips percentages and numeric noise from a promotional badge,
// keeping the leading text ("Προσφορά -20%" becomes "Προσφορά").
func CleanBadge(raw string) string {
	parts := badgeRe.Split(raw, 2)
	return strings.TrimSpace(parts[0])
}

// DiscountPct determines the advertised discount for a listing. Prices take
// precedence over badge text: when both current and old price are known the
// discount is computed from them, otherwise any percentage in the badge is
// used, and failing both the listing is treated as undiscounted.
func DiscountPct(priceCents, oldPriceCents *int, badge string) int {
	if priceCents != nil && oldPriceCents != nil && *oldPriceCents > 0 && *priceCents < *oldPriceCents {
		return int(math.Floor(float64(*oldPriceCents-*priceCents)/float64(*oldPriceCents)*100 + 0.5))
	}
	if m := badgePctRe.FindStringSubmatch(badge); m != nil {
		if pct, err := strconv.Atoi(m[1]); err == nil && pct > 0 && pct < 100 {
			return pct
		}
	}
	return 0
}

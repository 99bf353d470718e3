package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/guarzo/pricegrab/internal/model"
)

// TestDataFactory provides methods for generating dynamic test data
type TestDataFactory struct {
	rand *rand.Rand
}

// NewTestDataFactory creates a new test data factory with a seeded random generator
func NewTestDataFactory(seed int64) *TestDataFactory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &TestDataFactory{
		rand: rand.New(rand.NewSource(seed)),
	}
}

// GenerateBrand picks a random padel brand name
func (f *TestDataFactory) GenerateBrand() string {
	brands := []string{"Babolat", "Head", "Bullpadel", "Nox", "Adidas", "Wilson"}
	return brands[f.rand.Intn(len(brands))]
}

// GenerateSKU generates a random manufacturer code
func (f *TestDataFactory) GenerateSKU() string {
	return fmt.Sprintf("SKU-%05d", f.rand.Intn(100000))
}

// GeneratePriceCents generates a random price between 5 and 500 euro
func (f *TestDataFactory) GeneratePriceCents() int {
	return f.rand.Intn(49500) + 500
}

// GenerateCatalogLine builds a complete catalog line with a positive margin
func (f *TestDataFactory) GenerateCatalogLine(category string) model.CatalogLine {
	cost := f.GeneratePriceCents()
	return model.CatalogLine{
		Brand:       f.GenerateBrand(),
		SKU:         f.GenerateSKU(),
		Category:    category,
		Name:        fmt.Sprintf("%s Test Racket %d", f.GenerateBrand(), f.rand.Intn(1000)),
		CostCents:   cost,
		RetailCents: cost + 1 + f.rand.Intn(cost),
	}
}

// GenerateListing builds a listing for a site, optionally priced
func (f *TestDataFactory) GenerateListing(site model.Site, name string, priced bool) model.Listing {
	l := model.Listing{
		Site:       site,
		Name:       name,
		ProductURL: fmt.Sprintf("https://%s.test.local/product/%d", site, f.rand.Int63()),
	}
	if priced {
		p := f.GeneratePriceCents()
		l.PriceCents = &p
	}
	return l
}

// IntPtr returns a pointer to an int literal
func IntPtr(v int) *int { return &v }

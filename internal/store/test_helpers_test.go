package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/roach88/facets/internal/ir"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const testFixtureYAML = `
taxonomies:
  - {name: product_cat, hierarchical: true, public: true, product: true}
  - {name: product_tag, public: true, product: true}
attributes:
  - {name: color, label: Color}
  - {name: size, label: Size}
terms:
  - {taxonomy: product_cat, slug: shirts, name: Shirts, parent: clothing}
  - {taxonomy: product_cat, slug: clothing, name: Clothing}
  - {taxonomy: product_tag, slug: sale, name: Sale}
  - {taxonomy: pa_color, slug: red, name: Red}
  - {taxonomy: pa_color, slug: blue, name: Blue}
  - {taxonomy: pa_size, slug: large, name: Large}
tax_classes:
  - {slug: reduced-rate, name: Reduced rate}
tax_rates:
  - {country: GB, class: "", rate: "20", priority: 1}
  - {country: GB, class: reduced-rate, rate: "5", priority: 1}
products:
  - id: 20
    type: variation
    parent: 10
    name: Tee - Red Large
    min_price: "12"
    max_price: "12"
    attributes: {pa_color: [red], pa_size: [large]}
  - id: 10
    type: variable
    name: Tee
    min_price: "12"
    max_price: "15"
    average_rating: "4.6"
    rating_count: 3
    attributes: {pa_color: [red, blue], pa_size: [large]}
    terms: {product_cat: [shirts], product_tag: [sale]}
  - id: 30
    type: simple
    name: Mug
    min_price: "8.50"
    max_price: "8.50"
    stock_status: outofstock
    tax_class: reduced-rate
    attributes: {pa_color: [blue]}
    terms: {product_cat: [clothing]}
`

// createSeededStore returns a store loaded with testFixtureYAML.
func createSeededStore(t *testing.T) *Store {
	t.Helper()
	s := createTestStore(t)
	f, err := ParseFixture([]byte(testFixtureYAML))
	if err != nil {
		t.Fatalf("ParseFixture() failed: %v", err)
	}
	if err := s.Seed(context.Background(), f); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	return s
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustTerm(t *testing.T, s *Store, taxonomy, slug string) ir.Term {
	t.Helper()
	term, ok, err := s.TermBySlug(context.Background(), taxonomy, slug)
	if err != nil || !ok {
		t.Fatalf("TermBySlug(%s, %s) = ok %v, err %v", taxonomy, slug, ok, err)
	}
	return term
}

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/facets/internal/ir"
)

// Fixture is a catalog described in YAML, used to seed development and test
// databases.
type Fixture struct {
	Taxonomies []ir.Taxonomy  `yaml:"taxonomies"`
	Attributes []ir.Attribute `yaml:"attributes"`
	Terms      []FixtureTerm  `yaml:"terms"`
	TaxClasses []FixtureClass `yaml:"tax_classes"`
	TaxRates   []ir.TaxRate   `yaml:"tax_rates"`
	Products   []ir.Product   `yaml:"products"`
}

// FixtureTerm is a term whose parent is referenced by slug.
type FixtureTerm struct {
	ID       int64  `yaml:"id"`
	Taxonomy string `yaml:"taxonomy"`
	Slug     string `yaml:"slug"`
	Name     string `yaml:"name"`
	Parent   string `yaml:"parent"`
}

// FixtureClass is a registered tax class.
type FixtureClass struct {
	Slug string `yaml:"slug"`
	Name string `yaml:"name"`
}

// LoadFixture reads a YAML fixture file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a YAML fixture. Unknown fields are rejected.
func ParseFixture(data []byte) (Fixture, error) {
	var f Fixture
	if err := decodeStrict(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	return f, nil
}

// Seed writes every record of f in dependency order: taxonomies,
// attributes, terms (parents before children), tax classes, tax rates,
// then products (parents before variations).
func (s *Store) Seed(ctx context.Context, f Fixture) error {
	for _, tax := range f.Taxonomies {
		if err := s.RegisterTaxonomy(ctx, tax); err != nil {
			return err
		}
	}
	for _, attr := range f.Attributes {
		if _, err := s.RegisterAttribute(ctx, attr); err != nil {
			return err
		}
	}
	if err := s.seedTerms(ctx, f.Terms); err != nil {
		return err
	}
	for _, c := range f.TaxClasses {
		if err := s.SaveTaxClass(ctx, c.Slug, c.Name); err != nil {
			return err
		}
	}
	for _, r := range f.TaxRates {
		if _, err := s.SaveTaxRate(ctx, r); err != nil {
			return err
		}
	}

	var variations []ir.Product
	for _, p := range f.Products {
		if p.Type == ir.ProductTypeVariation {
			variations = append(variations, p)
			continue
		}
		if _, err := s.SaveProduct(ctx, p); err != nil {
			return err
		}
	}
	for _, p := range variations {
		if _, err := s.SaveProduct(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// seedTerms saves terms in passes so that a parent is always saved before
// its children, wherever it appears in the list.
func (s *Store) seedTerms(ctx context.Context, terms []FixtureTerm) error {
	type key struct{ taxonomy, slug string }
	saved := make(map[key]int64, len(terms))
	pending := terms

	for len(pending) > 0 {
		var next []FixtureTerm
		for _, ft := range pending {
			var parent int64
			if ft.Parent != "" {
				id, ok := saved[key{ft.Taxonomy, ir.SanitizeSlug(ft.Parent)}]
				if !ok {
					next = append(next, ft)
					continue
				}
				parent = id
			}
			term, err := s.SaveTerm(ctx, ir.Term{
				ID:       ft.ID,
				Taxonomy: ft.Taxonomy,
				Slug:     ft.Slug,
				Name:     ft.Name,
				Parent:   parent,
			})
			if err != nil {
				return err
			}
			saved[key{term.Taxonomy, term.Slug}] = term.ID
		}
		if len(next) == len(pending) {
			return fmt.Errorf("seed terms: unknown parent %q for term %q in %s",
				next[0].Parent, next[0].Slug, next[0].Taxonomy)
		}
		pending = next
	}
	return nil
}

func decodeStrict(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

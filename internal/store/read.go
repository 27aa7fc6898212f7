package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/queryir"
)

// Taxonomy returns a registered taxonomy. ok is false if name is unknown.
func (s *Store) Taxonomy(ctx context.Context, name string) (ir.Taxonomy, bool, error) {
	row := s.db.QueryRowContext(ctx, s.compiler.Rebind(`
		SELECT name, hierarchical, public, product
		FROM taxonomies
		WHERE name = ?
	`), name)

	tax, err := scanTaxonomy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Taxonomy{}, false, nil
	}
	if err != nil {
		return ir.Taxonomy{}, false, fmt.Errorf("query taxonomy %s: %w", name, err)
	}
	return tax, true, nil
}

// Taxonomies returns every registered taxonomy ordered by name.
func (s *Store) Taxonomies(ctx context.Context) ([]ir.Taxonomy, error) {
	rows, err := s.Query(ctx, `
		SELECT name, hierarchical, public, product
		FROM taxonomies
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query taxonomies: %w", err)
	}
	defer rows.Close()

	taxonomies := []ir.Taxonomy{}
	for rows.Next() {
		tax, err := scanTaxonomy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan taxonomy: %w", err)
		}
		taxonomies = append(taxonomies, tax)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate taxonomies: %w", err)
	}
	return taxonomies, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTaxonomy(row rowScanner) (ir.Taxonomy, error) {
	var (
		tax                           ir.Taxonomy
		hierarchical, public, product int64
	)
	if err := row.Scan(&tax.Name, &hierarchical, &public, &product); err != nil {
		return ir.Taxonomy{}, err
	}
	tax.Hierarchical = hierarchical != 0
	tax.Public = public != 0
	tax.Product = product != 0
	return tax, nil
}

// AttributeTaxonomies returns every registered global attribute ordered by
// name.
func (s *Store) AttributeTaxonomies(ctx context.Context) ([]ir.Attribute, error) {
	rows, err := s.Query(ctx, `
		SELECT attribute_id, attribute_name, attribute_label
		FROM attribute_taxonomies
		ORDER BY attribute_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query attribute taxonomies: %w", err)
	}
	defer rows.Close()

	attrs := []ir.Attribute{}
	for rows.Next() {
		var a ir.Attribute
		if err := rows.Scan(&a.ID, &a.Name, &a.Label); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		attrs = append(attrs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attributes: %w", err)
	}
	return attrs, nil
}

const termColumns = `t.term_id, tt.taxonomy, t.slug, t.name, tt.parent`

// Terms returns every term of taxonomy ordered by name, then term ID.
func (s *Store) Terms(ctx context.Context, taxonomy string) ([]ir.Term, error) {
	rows, err := s.Query(ctx, `
		SELECT `+termColumns+`
		FROM terms t
		INNER JOIN term_taxonomy tt ON tt.term_id = t.term_id
		WHERE tt.taxonomy = ?
		ORDER BY t.name ASC, t.term_id ASC
	`, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("query terms of %s: %w", taxonomy, err)
	}
	return collectTerms(rows)
}

// TermsBySlugs returns every term whose taxonomy is in taxonomies and whose
// slug is in slugs, in one query. Callers match (taxonomy, slug) pairs
// themselves.
func (s *Store) TermsBySlugs(ctx context.Context, taxonomies, slugs []string) ([]ir.Term, error) {
	if len(taxonomies) == 0 || len(slugs) == 0 {
		return []ir.Term{}, nil
	}

	args := make([]any, 0, len(taxonomies)+len(slugs))
	for _, t := range taxonomies {
		args = append(args, t)
	}
	for _, slug := range slugs {
		args = append(args, slug)
	}

	rows, err := s.Query(ctx, `
		SELECT `+termColumns+`
		FROM terms t
		INNER JOIN term_taxonomy tt ON tt.term_id = t.term_id
		WHERE tt.taxonomy IN (`+placeholders(len(taxonomies))+`)
		AND t.slug IN (`+placeholders(len(slugs))+`)
		ORDER BY tt.taxonomy ASC, t.term_id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query terms by slug: %w", err)
	}
	return collectTerms(rows)
}

// TermBySlug returns one term. ok is false if it does not exist.
func (s *Store) TermBySlug(ctx context.Context, taxonomy, slug string) (ir.Term, bool, error) {
	terms, err := s.TermsBySlugs(ctx, []string{taxonomy}, []string{slug})
	if err != nil || len(terms) == 0 {
		return ir.Term{}, false, err
	}
	return terms[0], true, nil
}

func collectTerms(rows *sql.Rows) ([]ir.Term, error) {
	defer rows.Close()

	terms := []ir.Term{}
	for rows.Next() {
		var t ir.Term
		if err := rows.Scan(&t.ID, &t.Taxonomy, &t.Slug, &t.Name, &t.Parent); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate terms: %w", err)
	}
	return terms, nil
}

// TaxClasses returns registered tax class slugs ordered by slug. The
// standard class ("") is implicit and not returned.
func (s *Store) TaxClasses(ctx context.Context) ([]string, error) {
	rows, err := s.Query(ctx, `SELECT slug FROM tax_classes WHERE slug <> '' ORDER BY slug ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tax classes: %w", err)
	}
	defer rows.Close()

	classes := []string{}
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scan tax class: %w", err)
		}
		classes = append(classes, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tax classes: %w", err)
	}
	return classes, nil
}

// TaxRates returns every rate of a tax class ordered by priority, then ID.
func (s *Store) TaxRates(ctx context.Context, class string) ([]ir.TaxRate, error) {
	rows, err := s.Query(ctx, `
		SELECT tax_rate_id, country, tax_class, rate, compound, priority
		FROM tax_rates
		WHERE tax_class = ?
		ORDER BY priority ASC, tax_rate_id ASC
	`, class)
	if err != nil {
		return nil, fmt.Errorf("query tax rates: %w", err)
	}
	defer rows.Close()

	rates := []ir.TaxRate{}
	for rows.Next() {
		var (
			r        ir.TaxRate
			compound int64
		)
		if err := rows.Scan(&r.ID, &r.Country, &r.Class, &r.Rate, &compound, &r.Priority); err != nil {
			return nil, fmt.Errorf("scan tax rate: %w", err)
		}
		r.Compound = compound != 0
		rates = append(rates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tax rates: %w", err)
	}
	return rates, nil
}

// Product returns one product with its lookup data. Attributes and Terms are
// not loaded. ok is false if the product does not exist.
func (s *Store) Product(ctx context.Context, id int64) (ir.Product, bool, error) {
	row := s.db.QueryRowContext(ctx, s.compiler.Rebind(`
		SELECT p.id, p.parent_id, p.type, p.status, p.name,
			m.min_price, m.max_price, m.stock_status, m.tax_status, m.tax_class,
			m.average_rating, m.rating_count
		FROM products p
		INNER JOIN product_meta_lookup m ON m.product_id = p.id
		WHERE p.id = ?
	`), id)

	var (
		p                  ir.Product
		minPrice, maxPrice decimal.NullDecimal
	)
	err := row.Scan(&p.ID, &p.ParentID, &p.Type, &p.Status, &p.Name,
		&minPrice, &maxPrice, &p.StockStatus, &p.TaxStatus, &p.TaxClass,
		&p.AverageRating, &p.RatingCount)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Product{}, false, nil
	}
	if err != nil {
		return ir.Product{}, false, fmt.Errorf("query product %d: %w", id, err)
	}
	p.MinPrice = minPrice.Decimal
	p.MaxPrice = maxPrice.Decimal
	return p, true, nil
}

// ProductIDs compiles and runs a single-column query of product IDs.
func (s *Store) ProductIDs(ctx context.Context, q queryir.Query) ([]int64, error) {
	ids := []int64{}
	err := s.QueryCompiled(ctx, q, func(rows *sql.Rows) error {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("product ids: %w", err)
	}
	return ids, nil
}

// QueryCompiled compiles q for the store's dialect, runs it and calls scan
// once per row.
func (s *Store) QueryCompiled(ctx context.Context, q queryir.Query, scan func(*sql.Rows) error) error {
	query, params, err := s.compiler.Compile(q)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/roach88/facets/internal/ir"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(ctx context.Context, e execer, query string, args ...any) error {
	_, err := e.ExecContext(ctx, s.compiler.Rebind(query), args...)
	return err
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// RegisterTaxonomy inserts or updates a taxonomy registration.
func (s *Store) RegisterTaxonomy(ctx context.Context, tax ir.Taxonomy) error {
	err := s.exec(ctx, s.db, `
		INSERT INTO taxonomies (name, hierarchical, public, product)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			hierarchical = excluded.hierarchical,
			public = excluded.public,
			product = excluded.product
	`, tax.Name, boolInt(tax.Hierarchical), boolInt(tax.Public), boolInt(tax.Product))
	if err != nil {
		return fmt.Errorf("register taxonomy %s: %w", tax.Name, err)
	}
	return nil
}

// RegisterAttribute inserts or updates a global attribute and registers its
// pa_ taxonomy (flat, not public, attached to products).
func (s *Store) RegisterAttribute(ctx context.Context, attr ir.Attribute) (ir.Attribute, error) {
	attr.Name = ir.SanitizeSlug(attr.Name)
	if attr.Name == "" {
		return ir.Attribute{}, fmt.Errorf("register attribute: empty name")
	}
	if attr.Label == "" {
		attr.Label = attr.Name
	}

	var err error
	if attr.ID == 0 {
		err = s.db.QueryRowContext(ctx, s.compiler.Rebind(`
			INSERT INTO attribute_taxonomies (attribute_name, attribute_label)
			VALUES (?, ?)
			ON CONFLICT (attribute_name) DO UPDATE SET attribute_label = excluded.attribute_label
			RETURNING attribute_id
		`), attr.Name, attr.Label).Scan(&attr.ID)
	} else {
		err = s.exec(ctx, s.db, `
			INSERT INTO attribute_taxonomies (attribute_id, attribute_name, attribute_label)
			VALUES (?, ?, ?)
			ON CONFLICT (attribute_id) DO UPDATE SET
				attribute_name = excluded.attribute_name,
				attribute_label = excluded.attribute_label
		`, attr.ID, attr.Name, attr.Label)
	}
	if err != nil {
		return ir.Attribute{}, fmt.Errorf("register attribute %s: %w", attr.Name, err)
	}

	if err := s.RegisterTaxonomy(ctx, ir.Taxonomy{Name: attr.Taxonomy(), Product: true}); err != nil {
		return ir.Attribute{}, err
	}
	return attr, nil
}

// SaveTaxClass inserts or renames a tax class.
func (s *Store) SaveTaxClass(ctx context.Context, slug, name string) error {
	slug = ir.SanitizeSlug(slug)
	if name == "" {
		name = slug
	}
	err := s.exec(ctx, s.db, `
		INSERT INTO tax_classes (slug, name) VALUES (?, ?)
		ON CONFLICT (slug) DO UPDATE SET name = excluded.name
	`, slug, name)
	if err != nil {
		return fmt.Errorf("save tax class %s: %w", slug, err)
	}
	return nil
}

// SaveTaxRate inserts a rate, or replaces it when rate.ID is set.
func (s *Store) SaveTaxRate(ctx context.Context, rate ir.TaxRate) (ir.TaxRate, error) {
	if rate.Priority == 0 {
		rate.Priority = 1
	}

	var err error
	if rate.ID == 0 {
		err = s.db.QueryRowContext(ctx, s.compiler.Rebind(`
			INSERT INTO tax_rates (country, tax_class, rate, compound, priority)
			VALUES (?, ?, ?, ?, ?)
			RETURNING tax_rate_id
		`), rate.Country, rate.Class, rate.Rate, boolInt(rate.Compound), rate.Priority).Scan(&rate.ID)
	} else {
		err = s.exec(ctx, s.db, `
			INSERT INTO tax_rates (tax_rate_id, country, tax_class, rate, compound, priority)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (tax_rate_id) DO UPDATE SET
				country = excluded.country,
				tax_class = excluded.tax_class,
				rate = excluded.rate,
				compound = excluded.compound,
				priority = excluded.priority
		`, rate.ID, rate.Country, rate.Class, rate.Rate, boolInt(rate.Compound), rate.Priority)
	}
	if err != nil {
		return ir.TaxRate{}, fmt.Errorf("save tax rate: %w", err)
	}
	return rate, nil
}

// SaveTerm inserts or updates a term and its taxonomy membership, then
// notifies term observers.
//
// A term without an ID is matched by (taxonomy, slug); a new term gets a
// generated ID. An empty slug is derived from the name.
func (s *Store) SaveTerm(ctx context.Context, term ir.Term) (ir.Term, error) {
	if term.Slug == "" {
		term.Slug = term.Name
	}
	term.Slug = ir.SanitizeSlug(term.Slug)
	if term.Slug == "" || term.Taxonomy == "" {
		return ir.Term{}, fmt.Errorf("save term: taxonomy and slug are required")
	}
	if term.Name == "" {
		term.Name = term.Slug
	}

	if term.ID == 0 {
		existing, ok, err := s.TermBySlug(ctx, term.Taxonomy, term.Slug)
		if err != nil {
			return ir.Term{}, fmt.Errorf("save term: %w", err)
		}
		if ok {
			term.ID = existing.ID
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Term{}, fmt.Errorf("save term: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if term.ID == 0 {
		err = tx.QueryRowContext(ctx, s.compiler.Rebind(`
			INSERT INTO terms (name, slug) VALUES (?, ?)
			RETURNING term_id
		`), term.Name, term.Slug).Scan(&term.ID)
	} else {
		err = s.exec(ctx, tx, `
			INSERT INTO terms (term_id, name, slug) VALUES (?, ?, ?)
			ON CONFLICT (term_id) DO UPDATE SET name = excluded.name, slug = excluded.slug
		`, term.ID, term.Name, term.Slug)
	}
	if err != nil {
		return ir.Term{}, fmt.Errorf("save term %s: %w", term.Slug, err)
	}

	err = s.exec(ctx, tx, `
		INSERT INTO term_taxonomy (term_id, taxonomy, parent) VALUES (?, ?, ?)
		ON CONFLICT (term_id, taxonomy) DO UPDATE SET parent = excluded.parent
	`, term.ID, term.Taxonomy, term.Parent)
	if err != nil {
		return ir.Term{}, fmt.Errorf("save term taxonomy %s: %w", term.Slug, err)
	}

	if err := tx.Commit(); err != nil {
		return ir.Term{}, fmt.Errorf("save term: commit: %w", err)
	}

	s.notifyTerm(ctx, term)
	return term, nil
}

// SaveProduct writes a product, its lookup-table rows, its attribute lookup
// rows and its term relationships in one transaction, then notifies product
// observers.
//
// Attribute rows of a variation are variation rows owned by the parent
// (product_or_parent_id = parent). Every referenced term must exist.
func (s *Store) SaveProduct(ctx context.Context, p ir.Product) (ir.Product, error) {
	if err := normalizeProduct(&p); err != nil {
		return ir.Product{}, err
	}

	terms, err := s.resolveProductTerms(ctx, p)
	if err != nil {
		return ir.Product{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Product{}, fmt.Errorf("save product: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if p.ID == 0 {
		err = tx.QueryRowContext(ctx, s.compiler.Rebind(`
			INSERT INTO products (parent_id, type, status, name) VALUES (?, ?, ?, ?)
			RETURNING id
		`), p.ParentID, p.Type, p.Status, p.Name).Scan(&p.ID)
	} else {
		err = s.exec(ctx, tx, `
			INSERT INTO products (id, parent_id, type, status, name) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				parent_id = excluded.parent_id,
				type = excluded.type,
				status = excluded.status,
				name = excluded.name
		`, p.ID, p.ParentID, p.Type, p.Status, p.Name)
	}
	if err != nil {
		return ir.Product{}, fmt.Errorf("save product %d: %w", p.ID, err)
	}

	err = s.exec(ctx, tx, `
		INSERT INTO product_meta_lookup
		(product_id, min_price, max_price, stock_status, tax_status, tax_class, average_rating, rating_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id) DO UPDATE SET
			min_price = excluded.min_price,
			max_price = excluded.max_price,
			stock_status = excluded.stock_status,
			tax_status = excluded.tax_status,
			tax_class = excluded.tax_class,
			average_rating = excluded.average_rating,
			rating_count = excluded.rating_count
	`, p.ID, p.MinPrice, p.MaxPrice, p.StockStatus, p.TaxStatus, p.TaxClass, p.AverageRating, p.RatingCount)
	if err != nil {
		return ir.Product{}, fmt.Errorf("save product %d lookup: %w", p.ID, err)
	}

	if err := s.writeAttributeRows(ctx, tx, p, terms); err != nil {
		return ir.Product{}, err
	}
	if err := s.writeTermRelationships(ctx, tx, p, terms); err != nil {
		return ir.Product{}, err
	}

	if err := tx.Commit(); err != nil {
		return ir.Product{}, fmt.Errorf("save product: commit: %w", err)
	}

	s.notifyProduct(ctx, false, p.ID)
	return p, nil
}

// DeleteProductTransients signals that data cached for a product is stale.
// Observers (the facet cache controller) react to it.
func (s *Store) DeleteProductTransients(ctx context.Context, productID int64) {
	s.notifyProduct(ctx, true, productID)
}

func normalizeProduct(p *ir.Product) error {
	switch p.Type {
	case ir.ProductTypeSimple, ir.ProductTypeVariable:
	case ir.ProductTypeVariation:
		if p.ParentID == 0 {
			return fmt.Errorf("save product %d: variation without parent", p.ID)
		}
	default:
		return fmt.Errorf("save product %d: unknown type %q", p.ID, p.Type)
	}
	if p.Status == "" {
		p.Status = ir.StatusPublish
	}
	if p.StockStatus == "" {
		p.StockStatus = ir.StockInStock
	}
	if !ir.IsStockStatus(p.StockStatus) {
		return fmt.Errorf("save product %d: unknown stock status %q", p.ID, p.StockStatus)
	}
	if p.TaxStatus == "" {
		p.TaxStatus = ir.TaxStatusTaxable
	}
	if p.MaxPrice.LessThan(p.MinPrice) {
		p.MaxPrice = p.MinPrice
	}
	return nil
}

type termKey struct {
	taxonomy string
	slug     string
}

// resolveProductTerms looks up every attribute and taxonomy term of p in
// one query.
func (s *Store) resolveProductTerms(ctx context.Context, p ir.Product) (map[termKey]ir.Term, error) {
	var taxonomies, slugs []string
	collect := func(m map[string][]string) {
		for tax, list := range m {
			taxonomies = append(taxonomies, tax)
			for _, slug := range list {
				slugs = append(slugs, ir.SanitizeSlug(slug))
			}
		}
	}
	collect(p.Attributes)
	collect(p.Terms)
	slices.Sort(taxonomies)
	slices.Sort(slugs)

	found, err := s.TermsBySlugs(ctx, slices.Compact(taxonomies), slices.Compact(slugs))
	if err != nil {
		return nil, fmt.Errorf("save product %d: %w", p.ID, err)
	}
	terms := make(map[termKey]ir.Term, len(found))
	for _, t := range found {
		terms[termKey{t.Taxonomy, t.Slug}] = t
	}

	check := func(m map[string][]string) error {
		for tax, list := range m {
			for _, slug := range list {
				if _, ok := terms[termKey{tax, ir.SanitizeSlug(slug)}]; !ok {
					return fmt.Errorf("save product %d: unknown term %q in %s", p.ID, slug, tax)
				}
			}
		}
		return nil
	}
	if err := check(p.Attributes); err != nil {
		return nil, err
	}
	if err := check(p.Terms); err != nil {
		return nil, err
	}
	return terms, nil
}

func (s *Store) writeAttributeRows(ctx context.Context, tx *sql.Tx, p ir.Product, terms map[termKey]ir.Term) error {
	if err := s.exec(ctx, tx, `DELETE FROM product_attributes_lookup WHERE product_id = ?`, p.ID); err != nil {
		return fmt.Errorf("save product %d attributes: %w", p.ID, err)
	}

	isVariation := p.Type == ir.ProductTypeVariation
	ownerID := p.ID
	if isVariation {
		ownerID = p.ParentID
	}
	inStock := p.StockStatus == ir.StockInStock

	for tax, list := range p.Attributes {
		for _, slug := range list {
			term := terms[termKey{tax, ir.SanitizeSlug(slug)}]
			err := s.exec(ctx, tx, `
				INSERT INTO product_attributes_lookup
				(product_id, product_or_parent_id, taxonomy, term_id, is_variation_attribute, in_stock)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT DO NOTHING
			`, p.ID, ownerID, tax, term.ID, boolInt(isVariation), boolInt(inStock))
			if err != nil {
				return fmt.Errorf("save product %d attribute %s: %w", p.ID, tax, err)
			}
		}
	}
	return nil
}

func (s *Store) writeTermRelationships(ctx context.Context, tx *sql.Tx, p ir.Product, terms map[termKey]ir.Term) error {
	if err := s.exec(ctx, tx, `DELETE FROM term_relationships WHERE object_id = ?`, p.ID); err != nil {
		return fmt.Errorf("save product %d terms: %w", p.ID, err)
	}

	for tax, list := range p.Terms {
		for _, slug := range list {
			term := terms[termKey{tax, ir.SanitizeSlug(slug)}]
			err := s.exec(ctx, tx, `
				INSERT INTO term_relationships (object_id, term_taxonomy_id)
				SELECT ?, term_taxonomy_id FROM term_taxonomy WHERE term_id = ? AND taxonomy = ?
				ON CONFLICT DO NOTHING
			`, p.ID, term.ID, tax)
			if err != nil {
				return fmt.Errorf("save product %d term %s/%s: %w", p.ID, tax, slug, err)
			}
		}
	}
	return nil
}

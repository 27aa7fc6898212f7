package clauses

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/metrics"
	"github.com/roach88/facets/internal/params"
	"github.com/roach88/facets/internal/queryir"
	"github.com/roach88/facets/internal/tax"
)

// Default descendant cache settings.
const (
	DefaultChildrenTTL  = time.Minute
	DefaultChildrenSize = 1024
)

// TermLookup resolves taxonomies and term slugs. *store.Store satisfies it.
type TermLookup interface {
	Taxonomy(ctx context.Context, name string) (ir.Taxonomy, bool, error)
	TermsBySlugs(ctx context.Context, taxonomies, slugs []string) ([]ir.Term, error)
}

// Hierarchy returns the descendants of a term. *hierarchy.Data satisfies it.
type Hierarchy interface {
	Descendants(ctx context.Context, termID int64, taxonomy string) ([]int64, error)
}

// Options configures a Builder.
type Options struct {
	// HideOutOfStock restricts attribute matches to in-stock lookup rows.
	HideOutOfStock bool

	// FailOpenTaxonomies leaves the query unchanged when no selected term
	// of a taxonomy resolves, instead of matching nothing.
	FailOpenTaxonomies bool

	// ChildrenTTL and ChildrenSize bound the descendant cache.
	ChildrenTTL  time.Duration
	ChildrenSize int

	Logger *slog.Logger
}

// Builder appends filter clauses to Args.
//
// Builder is safe for concurrent use.
type Builder struct {
	params    *params.Params
	terms     TermLookup
	hierarchy Hierarchy
	tax       *tax.Calculator
	opts      Options
	logger    *slog.Logger
	children  *expirable.LRU[string, []int64]
}

// NewBuilder creates a Builder. calc may be nil, in which case price bounds
// are never tax adjusted.
func NewBuilder(p *params.Params, terms TermLookup, h Hierarchy, calc *tax.Calculator, opts Options) *Builder {
	if opts.ChildrenTTL <= 0 {
		opts.ChildrenTTL = DefaultChildrenTTL
	}
	if opts.ChildrenSize <= 0 {
		opts.ChildrenSize = DefaultChildrenSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		params:    p,
		terms:     terms,
		hierarchy: h,
		tax:       calc,
		opts:      opts,
		logger:    logger,
		children:  expirable.NewLRU[string, []int64](opts.ChildrenSize, nil, opts.ChildrenTTL),
	}
}

// Params returns the builder's parameter vocabulary.
func (b *Builder) Params() *params.Params {
	return b.params
}

// HideOutOfStock reports whether attribute matches are restricted to
// in-stock rows.
func (b *Builder) HideOutOfStock() bool {
	return b.opts.HideOutOfStock
}

// AddStockClauses restricts args to products whose stock status is one of
// statuses. No statuses leaves args unchanged; statuses that are all
// invalid match nothing.
func (b *Builder) AddStockClauses(args Args, statuses []string) Args {
	if len(statuses) == 0 {
		return args
	}

	var valid []string
	for _, s := range statuses {
		if ir.IsStockStatus(s) && !slices.Contains(valid, s) {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		b.logger.Debug("no valid stock status, matching nothing", "statuses", statuses)
		return args.WithWhere(queryir.False{})
	}

	return args.WithJoin(MetaJoin()).WithWhere(queryir.In{
		Field:  MetaAlias + ".stock_status",
		Values: queryir.StringValues(valid),
	})
}

// AddPriceClauses restricts args to products whose price range overlaps
// bounds: max_price >= Min and min_price <= Max.
//
// When the shop displays prices with a different tax treatment than it
// stores them, each bound is converted per tax class and compared only
// against taxable products of that class; non-taxable products compare
// against the bound as given.
func (b *Builder) AddPriceClauses(ctx context.Context, args Args, bounds ir.PriceBounds) (Args, error) {
	if bounds.IsZero() {
		return args, nil
	}

	var preds []queryir.Predicate
	if bounds.Min.Valid {
		p, err := b.priceBound(ctx, bounds.Min.Decimal, "max_price", queryir.OpGe)
		if err != nil {
			return args, err
		}
		preds = append(preds, p)
	}
	if bounds.Max.Valid {
		p, err := b.priceBound(ctx, bounds.Max.Decimal, "min_price", queryir.OpLe)
		if err != nil {
			return args, err
		}
		preds = append(preds, p)
	}

	args = args.WithJoin(MetaJoin())
	for _, p := range preds {
		args = args.WithWhere(p)
	}
	return args, nil
}

func (b *Builder) priceBound(ctx context.Context, bound decimal.Decimal, column string, op queryir.Op) (queryir.Predicate, error) {
	field := MetaAlias + "." + column
	direct := queryir.Compare{Field: field, Op: op, Value: ir.IRDecimal(bound)}
	if b.tax == nil || !b.tax.Settings().AdjustFilters() {
		return direct, nil
	}

	classes, err := b.tax.Classes(ctx)
	if err != nil {
		return nil, newError(ErrCodeTaxRates, DimensionPrice, "list tax classes", err)
	}

	perClass := make([]queryir.Predicate, 0, len(classes))
	for _, class := range classes {
		adjusted, err := b.tax.AdjustBound(ctx, bound, class)
		if err != nil {
			return nil, newError(ErrCodeTaxRates, DimensionPrice, fmt.Sprintf("adjust bound for class %q", class), err)
		}
		perClass = append(perClass, queryir.And{Predicates: []queryir.Predicate{
			queryir.Compare{Field: MetaAlias + ".tax_class", Op: queryir.OpEq, Value: ir.IRString(class)},
			queryir.Compare{Field: field, Op: op, Value: ir.IRDecimal(adjusted)},
		}})
	}

	return queryir.Or{Predicates: []queryir.Predicate{
		queryir.And{Predicates: []queryir.Predicate{
			queryir.Compare{Field: MetaAlias + ".tax_status", Op: queryir.OpEq, Value: ir.IRString(ir.TaxStatusTaxable)},
			queryir.Or{Predicates: perClass},
		}},
		queryir.And{Predicates: []queryir.Predicate{
			queryir.Compare{Field: MetaAlias + ".tax_status", Op: queryir.OpNe, Value: ir.IRString(ir.TaxStatusTaxable)},
			direct,
		}},
	}}, nil
}

// AddAttributeClauses restricts args to products carrying the chosen
// attribute terms.
//
// An "or" selection, or any selection of a single term, matches products
// with any of its terms. The terms of every "and" selection with more than
// one term are pooled: a product matches when it carries all pooled terms
// directly, or when one of its variations carries all of them. Attributes
// combine with AND. A registered attribute none of whose slugs resolve
// makes args match nothing.
func (b *Builder) AddAttributeClauses(ctx context.Context, args Args, chosen []ir.ChosenAttribute) (Args, error) {
	chosen, err := b.registeredAttributes(ctx, chosen)
	if err != nil {
		return args, err
	}
	if len(chosen) == 0 {
		return args, nil
	}

	resolved, err := b.resolve(ctx, DimensionAttribute, attributeSlugs(chosen))
	if err != nil {
		return args, err
	}

	var (
		clauses []queryir.Predicate
		pooled  []int64
	)
	for _, c := range chosen {
		ids := resolved.ids(c.Taxonomy, c.Terms)
		if len(ids) == 0 {
			b.logger.Debug("attribute terms unresolved, matching nothing", "taxonomy", c.Taxonomy, "terms", c.Terms)
			return args.WithWhere(queryir.False{}), nil
		}
		if c.QueryType == ir.QueryTypeAnd && len(ids) > 1 {
			pooled = append(pooled, ids...)
			continue
		}
		clauses = append(clauses, queryir.InQuery{
			Field: ProductsTable + ".id",
			Query: b.attributeRows(ids),
		})
	}

	if len(pooled) > 0 {
		slices.Sort(pooled)
		pooled = slices.Compact(pooled)
		clauses = append(clauses, queryir.InQuery{
			Field: ProductsTable + ".id",
			Query: queryir.Union{Queries: []queryir.Query{
				b.attributeRowsHaving(pooled, false),
				b.attributeRowsHaving(pooled, true),
			}},
		})
	}

	for _, c := range clauses {
		args = args.WithWhere(c)
	}
	return args, nil
}

// attributeRows selects owners of lookup rows carrying any of ids.
func (b *Builder) attributeRows(ids []int64) queryir.Select {
	preds := []queryir.Predicate{
		queryir.In{Field: "term_id", Values: queryir.IntValues(ids)},
	}
	if b.opts.HideOutOfStock {
		preds = append(preds, queryir.Compare{Field: "in_stock", Op: queryir.OpEq, Value: ir.IRBool(true)})
	}
	return queryir.Select{
		Columns: []string{"product_or_parent_id"},
		From:    AttrTable,
		Filter:  queryir.And{Predicates: preds},
	}
}

// attributeRowsHaving selects owners of a product (variation=false) or a
// variation (variation=true) whose rows carry every one of ids.
func (b *Builder) attributeRowsHaving(ids []int64, variation bool) queryir.Select {
	preds := []queryir.Predicate{
		queryir.Compare{Field: "is_variation_attribute", Op: queryir.OpEq, Value: ir.IRBool(variation)},
	}
	if b.opts.HideOutOfStock {
		preds = append(preds, queryir.Compare{Field: "in_stock", Op: queryir.OpEq, Value: ir.IRBool(true)})
	}
	preds = append(preds, queryir.In{Field: "term_id", Values: queryir.IntValues(ids)})
	return queryir.Select{
		Columns: []string{"product_or_parent_id"},
		From:    AttrTable,
		Filter:  queryir.And{Predicates: preds},
		GroupBy: []string{"product_id", "product_or_parent_id"},
		Having:  queryir.Compare{Field: "COUNT(DISTINCT term_id)", Op: queryir.OpEq, Value: ir.IRInt(len(ids))},
	}
}

// AddTaxonomyClauses restricts args to products assigned any selected term
// of each chosen taxonomy, or any descendant of one when the taxonomy is
// hierarchical. Taxonomies combine with AND.
func (b *Builder) AddTaxonomyClauses(ctx context.Context, args Args, chosen []ir.ChosenTaxonomy) (Args, error) {
	type registered struct {
		ir.ChosenTaxonomy
		hierarchical bool
	}

	var selected []registered
	slugs := map[string][]string{}
	for _, c := range chosen {
		if len(c.Terms) == 0 {
			continue
		}
		info, ok, err := b.terms.Taxonomy(ctx, c.Taxonomy)
		if err != nil {
			return args, newError(ErrCodeTermLookup, DimensionTaxonomy, "look up taxonomy "+c.Taxonomy, err)
		}
		if !ok || !info.Product {
			continue
		}
		selected = append(selected, registered{c, info.Hierarchical})
		slugs[c.Taxonomy] = c.Terms
	}
	if len(selected) == 0 {
		return args, nil
	}

	resolved, err := b.resolve(ctx, DimensionTaxonomy, slugs)
	if err != nil {
		return args, err
	}

	var clauses []queryir.Predicate
	for _, s := range selected {
		ids := resolved.ids(s.Taxonomy, s.Terms)
		if len(ids) == 0 {
			if b.opts.FailOpenTaxonomies {
				b.logger.Debug("taxonomy terms unresolved, leaving query unchanged", "taxonomy", s.Taxonomy)
				continue
			}
			b.logger.Debug("taxonomy terms unresolved, matching nothing", "taxonomy", s.Taxonomy, "terms", s.Terms)
			return args.WithWhere(queryir.False{}), nil
		}

		if s.hierarchical {
			ids, err = b.expand(ctx, s.Taxonomy, ids)
			if err != nil {
				return args, err
			}
		}
		clauses = append(clauses, TermExists(s.Taxonomy, ids))
	}

	for _, c := range clauses {
		args = args.WithWhere(c)
	}
	return args, nil
}

// TermExists matches products related to any of termIDs in taxonomy.
func TermExists(taxonomy string, termIDs []int64) queryir.Predicate {
	return queryir.Exists{Query: queryir.Select{
		Columns: []string{"1"},
		From:    "term_relationships",
		Alias:   "tr",
		Joins: []queryir.TableJoin{{
			Kind:  queryir.JoinInner,
			Table: "term_taxonomy",
			Alias: "tt",
			On:    queryir.ColumnEquals{Left: "tt.term_taxonomy_id", Right: "tr.term_taxonomy_id"},
		}},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.ColumnEquals{Left: "tr.object_id", Right: ProductsTable + ".id"},
			queryir.Compare{Field: "tt.taxonomy", Op: queryir.OpEq, Value: ir.IRString(taxonomy)},
			queryir.In{Field: "tt.term_id", Values: queryir.IntValues(termIDs)},
		}},
	}}
}

// expand adds every descendant of ids, sorted and de-duplicated.
func (b *Builder) expand(ctx context.Context, taxonomy string, ids []int64) ([]int64, error) {
	out := slices.Clone(ids)
	for _, id := range ids {
		key := childrenKey(taxonomy, id)
		desc, ok := b.children.Get(key)
		metrics.Hit(metrics.CacheChildren, ok)
		if !ok {
			var err error
			desc, err = b.hierarchy.Descendants(ctx, id, taxonomy)
			if err != nil {
				return nil, newError(ErrCodeHierarchy, DimensionTaxonomy, "descendants of "+key, err)
			}
			b.children.Add(key, desc)
		}
		out = append(out, desc...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// ForgetChildren drops cached descendants of taxonomy's terms.
func (b *Builder) ForgetChildren(taxonomy string) {
	prefix := taxonomy + "/"
	for _, key := range b.children.Keys() {
		if strings.HasPrefix(key, prefix) {
			b.children.Remove(key)
		}
	}
}

func childrenKey(taxonomy string, id int64) string {
	return fmt.Sprintf("%s/%d", taxonomy, id)
}

// AddRatingClauses restricts args to products whose average rating rounds
// to one of ratings.
func (b *Builder) AddRatingClauses(args Args, ratings []int) Args {
	if len(ratings) == 0 {
		return args
	}
	values := make([]ir.IRValue, len(ratings))
	for i, r := range ratings {
		values[i] = ir.IRInt(r)
	}
	return args.WithJoin(MetaJoin()).WithWhere(queryir.In{
		Field:  "ROUND(" + MetaAlias + ".average_rating)",
		Values: values,
	})
}

// registeredAttributes drops selections of unregistered attributes and
// selections without terms.
func (b *Builder) registeredAttributes(ctx context.Context, chosen []ir.ChosenAttribute) ([]ir.ChosenAttribute, error) {
	var out []ir.ChosenAttribute
	for _, c := range chosen {
		if len(c.Terms) == 0 {
			continue
		}
		_, ok, err := b.terms.Taxonomy(ctx, c.Taxonomy)
		if err != nil {
			return nil, newError(ErrCodeTermLookup, DimensionAttribute, "look up taxonomy "+c.Taxonomy, err)
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func attributeSlugs(chosen []ir.ChosenAttribute) map[string][]string {
	out := make(map[string][]string, len(chosen))
	for _, c := range chosen {
		out[c.Taxonomy] = c.Terms
	}
	return out
}

// resolvedTerms indexes looked-up terms by taxonomy and slug.
type resolvedTerms map[string]map[string]int64

// ids returns the IDs of slugs in taxonomy, in slug order, skipping slugs
// that did not resolve.
func (r resolvedTerms) ids(taxonomy string, slugs []string) []int64 {
	var out []int64
	for _, slug := range slugs {
		if id, ok := r[taxonomy][ir.SanitizeSlug(slug)]; ok {
			out = append(out, id)
		}
	}
	return out
}

// resolve looks up every (taxonomy, slug) pair in one query.
func (b *Builder) resolve(ctx context.Context, dimension string, slugs map[string][]string) (resolvedTerms, error) {
	var taxonomies, all []string
	for taxonomy, list := range slugs {
		taxonomies = append(taxonomies, taxonomy)
		for _, s := range list {
			all = append(all, ir.SanitizeSlug(s))
		}
	}
	slices.Sort(taxonomies)
	slices.Sort(all)

	terms, err := b.terms.TermsBySlugs(ctx, taxonomies, slices.Compact(all))
	if err != nil {
		return nil, newError(ErrCodeTermLookup, dimension, "resolve term slugs", err)
	}

	out := make(resolvedTerms, len(taxonomies))
	for _, t := range terms {
		if out[t.Taxonomy] == nil {
			out[t.Taxonomy] = map[string]int64{}
		}
		out[t.Taxonomy][t.Slug] = t.ID
	}
	return out, nil
}

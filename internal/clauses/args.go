package clauses

import (
	"slices"

	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/queryir"
)

// Table aliases used in product queries.
const (
	ProductsTable = "products"
	MetaTable     = "product_meta_lookup"
	MetaAlias     = "meta_lookup"
	AttrTable     = "product_attributes_lookup"
)

// Args holds the joins and WHERE terms added to the base product query.
// Methods return modified copies; an Args value is never changed in place.
type Args struct {
	Joins []queryir.TableJoin
	Where []queryir.Predicate
}

// HasJoin reports whether a join with the given alias (or table name, for
// unaliased joins) is present.
func (a Args) HasJoin(name string) bool {
	return slices.ContainsFunc(a.Joins, func(j queryir.TableJoin) bool {
		return j.Name() == name
	})
}

// WithJoin returns a copy of a with j appended, unless a join of the same
// name is already present.
func (a Args) WithJoin(j queryir.TableJoin) Args {
	if a.HasJoin(j.Name()) {
		return a
	}
	return Args{
		Joins: append(slices.Clone(a.Joins), j),
		Where: a.Where,
	}
}

// WithWhere returns a copy of a with p appended to the WHERE terms.
func (a Args) WithWhere(p queryir.Predicate) Args {
	return Args{
		Joins: a.Joins,
		Where: append(slices.Clone(a.Where), p),
	}
}

// Predicate returns the WHERE terms combined with AND.
func (a Args) Predicate() queryir.Predicate {
	return queryir.And{Predicates: slices.Clone(a.Where)}
}

// MetaJoin joins the product lookup table as meta_lookup.
func MetaJoin() queryir.TableJoin {
	return queryir.TableJoin{
		Kind:  queryir.JoinInner,
		Table: MetaTable,
		Alias: MetaAlias,
		On:    queryir.ColumnEquals{Left: MetaAlias + ".product_id", Right: ProductsTable + ".id"},
	}
}

// Base returns the unfiltered product query: published simple and
// variable products, ordered by ID.
func Base() queryir.Select {
	return queryir.Select{
		Columns: []string{ProductsTable + ".id"},
		From:    ProductsTable,
		Filter:  baseFilter(),
		OrderBy: []string{ProductsTable + ".id ASC"},
	}
}

func baseFilter() queryir.Predicate {
	return queryir.And{Predicates: []queryir.Predicate{
		queryir.In{Field: ProductsTable + ".type", Values: queryir.StringValues([]string{
			ir.ProductTypeSimple, ir.ProductTypeVariable,
		})},
		queryir.Compare{Field: ProductsTable + ".status", Op: queryir.OpEq, Value: ir.IRString(ir.StatusPublish)},
	}}
}

// Query returns the base product query narrowed by a.
func Query(a Args) queryir.Select {
	q := Base()
	q.Joins = slices.Clone(a.Joins)
	q.Filter = queryir.And{Predicates: append([]queryir.Predicate{baseFilter()}, a.Where...)}
	return q
}

package facets

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/roach88/facets/internal/clauses"
	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/queryir"
)

func inIDs(field string, ids []int64) queryir.Predicate {
	return queryir.In{Field: field, Values: queryir.IntValues(ids)}
}

// PriceRange returns the lowest min price and highest max price of the
// filtered products.
func (f *FilterData) PriceRange(ctx context.Context, vars ir.QueryVars) (ir.PriceRange, error) {
	req := Request{FilterType: FilterTypePrice, Vars: vars}
	return get(ctx, f, req, func(ctx context.Context, ids []int64) (ir.PriceRange, error) {
		var r ir.PriceRange
		if len(ids) == 0 {
			return r, nil
		}
		q := queryir.Select{
			Columns: []string{"MIN(min_price) AS min_price", "MAX(max_price) AS max_price"},
			From:    clauses.MetaTable,
			Filter:  inIDs("product_id", ids),
		}
		err := f.catalog.QueryCompiled(ctx, q, func(rows *sql.Rows) error {
			return rows.Scan(&r.MinPrice, &r.MaxPrice)
		})
		return r, err
	})
}

// StockStatusCounts returns the number of filtered products per stock
// status.
func (f *FilterData) StockStatusCounts(ctx context.Context, vars ir.QueryVars) (ir.StockCounts, error) {
	req := Request{FilterType: FilterTypeStock, Vars: vars}
	return get(ctx, f, req, func(ctx context.Context, ids []int64) (ir.StockCounts, error) {
		counts := ir.StockCounts{}
		if len(ids) == 0 {
			return counts, nil
		}
		q := queryir.Select{
			Columns: []string{"stock_status", "COUNT(DISTINCT product_id) AS product_count"},
			From:    clauses.MetaTable,
			Filter:  inIDs("product_id", ids),
			GroupBy: []string{"stock_status"},
		}
		err := f.catalog.QueryCompiled(ctx, q, func(rows *sql.Rows) error {
			var (
				status string
				n      int64
			)
			if err := rows.Scan(&status, &n); err != nil {
				return err
			}
			counts[status] = n
			return nil
		})
		return counts, err
	})
}

// RatingCounts returns the number of filtered, rated products per average
// rating rounded to the nearest integer, highest rating first.
func (f *FilterData) RatingCounts(ctx context.Context, vars ir.QueryVars) (ir.RatingCounts, error) {
	req := Request{FilterType: FilterTypeRating, Vars: vars}
	return get(ctx, f, req, func(ctx context.Context, ids []int64) (ir.RatingCounts, error) {
		counts := ir.RatingCounts{}
		if len(ids) == 0 {
			return counts, nil
		}
		q := queryir.Select{
			Columns: []string{"ROUND(average_rating) AS rounded_rating", "COUNT(DISTINCT product_id) AS product_count"},
			From:    clauses.MetaTable,
			Filter: queryir.And{Predicates: []queryir.Predicate{
				inIDs("product_id", ids),
				queryir.Compare{Field: "average_rating", Op: queryir.OpGt, Value: ir.IRInt(0)},
			}},
			GroupBy: []string{"ROUND(average_rating)"},
			OrderBy: []string{"rounded_rating DESC"},
		}
		err := f.catalog.QueryCompiled(ctx, q, func(rows *sql.Rows) error {
			var (
				rating decimal.Decimal
				n      int64
			)
			if err := rows.Scan(&rating, &n); err != nil {
				return err
			}
			counts = append(counts, ir.RatingCount{Rating: int(rating.IntPart()), Count: n})
			return nil
		})
		return counts, err
	})
}

// AttributeCounts returns, per term of the attribute taxonomy, the number
// of filtered products carrying it directly or on a variation. With hidden
// out-of-stock items only in-stock rows count. An unregistered taxonomy
// yields no counts.
func (f *FilterData) AttributeCounts(ctx context.Context, vars ir.QueryVars, taxonomy string) (ir.TermCounts, error) {
	req := Request{
		FilterType: FilterTypeAttribute,
		Vars:       vars,
		Extra:      ir.IRObject{"taxonomy": ir.IRString(taxonomy)},
	}
	return get(ctx, f, req, func(ctx context.Context, ids []int64) (ir.TermCounts, error) {
		counts := ir.TermCounts{}
		if len(ids) == 0 {
			return counts, nil
		}
		if _, ok, err := f.catalog.Taxonomy(ctx, taxonomy); err != nil || !ok {
			return counts, err
		}

		preds := []queryir.Predicate{
			queryir.Compare{Field: "taxonomy", Op: queryir.OpEq, Value: ir.IRString(taxonomy)},
			inIDs("product_or_parent_id", ids),
		}
		if f.builder.HideOutOfStock() {
			preds = append(preds, queryir.Compare{Field: "in_stock", Op: queryir.OpEq, Value: ir.IRBool(true)})
		}
		q := queryir.Select{
			Columns: []string{"term_id", "COUNT(DISTINCT product_or_parent_id) AS term_count"},
			From:    clauses.AttrTable,
			Filter:  queryir.And{Predicates: preds},
			GroupBy: []string{"term_id"},
		}
		err := f.catalog.QueryCompiled(ctx, q, func(rows *sql.Rows) error {
			var id, n int64
			if err := rows.Scan(&id, &n); err != nil {
				return err
			}
			counts[id] = n
			return nil
		})
		return counts, err
	})
}

// TaxonomyCounts returns, per term of taxonomy, the number of filtered
// products assigned it. For a hierarchical taxonomy a product also counts
// once toward every ancestor of its terms. An unregistered taxonomy yields
// no counts.
func (f *FilterData) TaxonomyCounts(ctx context.Context, vars ir.QueryVars, taxonomy string) (ir.TermCounts, error) {
	req := Request{
		FilterType: FilterTypeTaxonomy,
		Vars:       vars,
		Extra:      ir.IRObject{"taxonomy": ir.IRString(taxonomy)},
	}
	return get(ctx, f, req, func(ctx context.Context, ids []int64) (ir.TermCounts, error) {
		counts := ir.TermCounts{}
		if len(ids) == 0 {
			return counts, nil
		}
		info, ok, err := f.catalog.Taxonomy(ctx, taxonomy)
		if err != nil || !ok {
			return counts, err
		}

		products := map[int64][]int64{}
		err = f.catalog.QueryCompiled(ctx, termAssignments(taxonomy, ids), func(rows *sql.Rows) error {
			var termID, productID int64
			if err := rows.Scan(&termID, &productID); err != nil {
				return err
			}
			products[termID] = append(products[termID], productID)
			return nil
		})
		if err != nil {
			return nil, err
		}

		if !info.Hierarchical {
			for termID, ps := range products {
				counts[termID] = int64(len(ps))
			}
			return counts, nil
		}

		rolled := map[int64]map[int64]struct{}{}
		add := func(termID int64, ps []int64) {
			set := rolled[termID]
			if set == nil {
				set = map[int64]struct{}{}
				rolled[termID] = set
			}
			for _, p := range ps {
				set[p] = struct{}{}
			}
		}
		for termID, ps := range products {
			add(termID, ps)
			ancestors, err := f.ancestry.Ancestors(ctx, termID, taxonomy)
			if err != nil {
				return nil, err
			}
			for _, a := range ancestors {
				add(a, ps)
			}
		}
		for termID, set := range rolled {
			counts[termID] = int64(len(set))
		}
		return counts, nil
	})
}

// termAssignments selects distinct (term_id, product) pairs of taxonomy
// among ids.
func termAssignments(taxonomy string, ids []int64) queryir.Select {
	return queryir.Select{
		Columns:  []string{"tt.term_id", "tr.object_id"},
		Distinct: true,
		From:     "term_relationships",
		Alias:    "tr",
		Joins: []queryir.TableJoin{{
			Kind:  queryir.JoinInner,
			Table: "term_taxonomy",
			Alias: "tt",
			On:    queryir.ColumnEquals{Left: "tt.term_taxonomy_id", Right: "tr.term_taxonomy_id"},
		}},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Compare{Field: "tt.taxonomy", Op: queryir.OpEq, Value: ir.IRString(taxonomy)},
			inIDs("tr.object_id", ids),
		}},
	}
}

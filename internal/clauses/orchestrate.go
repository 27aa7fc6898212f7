package clauses

import (
	"context"

	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/metrics"
	"github.com/roach88/facets/internal/params"
)

// AddQueryClauses narrows args by every filter selected in vars, in order:
// stock, price, attribute, taxonomy, rating.
//
// A dimension whose lookups fail is logged and left unmodified; the other
// dimensions still apply.
func (b *Builder) AddQueryClauses(ctx context.Context, args Args, vars ir.QueryVars) Args {
	args = b.AddStockClauses(args, params.StockStatuses(vars))

	next, err := b.AddPriceClauses(ctx, args, params.PriceBounds(vars))
	args = b.keep(args, next, err, DimensionPrice)

	if chosen, err := b.params.ChosenAttributes(ctx, vars); err != nil {
		b.report(newError(ErrCodeParams, DimensionAttribute, "read attribute params", err), DimensionAttribute)
	} else {
		next, err := b.AddAttributeClauses(ctx, args, chosen)
		args = b.keep(args, next, err, DimensionAttribute)
	}

	args = b.addTaxonomies(ctx, args, vars)
	return b.AddRatingClauses(args, params.Ratings(vars))
}

// AddQueryClausesForMainQuery narrows args for the main product listing,
// where price, attribute and rating filtering happen elsewhere: stock, then
// taxonomy.
func (b *Builder) AddQueryClausesForMainQuery(ctx context.Context, args Args, vars ir.QueryVars) Args {
	args = b.AddStockClauses(args, params.StockStatuses(vars))
	return b.addTaxonomies(ctx, args, vars)
}

func (b *Builder) addTaxonomies(ctx context.Context, args Args, vars ir.QueryVars) Args {
	chosen, err := b.params.ChosenTaxonomies(ctx, vars)
	if err != nil {
		b.report(newError(ErrCodeParams, DimensionTaxonomy, "read taxonomy params", err), DimensionTaxonomy)
		return args
	}
	next, err := b.AddTaxonomyClauses(ctx, args, chosen)
	return b.keep(args, next, err, DimensionTaxonomy)
}

// keep returns next, or prev when building the dimension failed.
func (b *Builder) keep(prev, next Args, err error, dimension string) Args {
	if err != nil {
		b.report(err, dimension)
		return prev
	}
	return next
}

func (b *Builder) report(err error, dimension string) {
	metrics.ClauseErrors.WithLabelValues(dimension).Inc()
	b.logger.Warn("filter dimension skipped", "dimension", dimension, "error", err)
}

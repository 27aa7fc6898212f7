package controller

import (
	"context"

	"github.com/roach88/facets/internal/clauses"
	"github.com/roach88/facets/internal/ir"
)

// Query describes a product listing query.
type Query struct {
	// Main is set for the request's primary query.
	Main bool

	// Archive is set for the shop page and product taxonomy archives.
	Archive bool

	Vars ir.QueryVars
}

// MainQueryController narrows the main product archive query.
type MainQueryController struct {
	builder *clauses.Builder
}

// NewMainQueryController creates a MainQueryController.
func NewMainQueryController(b *clauses.Builder) *MainQueryController {
	return &MainQueryController{builder: b}
}

// MainQueryFilter applies stock and taxonomy narrowing to args when q is
// the main product archive query. Other queries are returned unchanged.
func (m *MainQueryController) MainQueryFilter(ctx context.Context, args clauses.Args, q Query) clauses.Args {
	if !q.Main || !q.Archive {
		return args
	}
	return m.builder.AddQueryClausesForMainQuery(ctx, args, q.Vars)
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/facets/internal/cache"
	"github.com/roach88/facets/internal/clauses"
	"github.com/roach88/facets/internal/controller"
	"github.com/roach88/facets/internal/facets"
	"github.com/roach88/facets/internal/hierarchy"
	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/params"
	"github.com/roach88/facets/internal/store"
	"github.com/roach88/facets/internal/tax"
)

// DefaultFacetConcurrency bounds the facet queries one Facets call runs at
// a time.
const DefaultFacetConcurrency = 4

// Engine is the assembled filter engine. It is safe for concurrent use.
type Engine struct {
	store     *store.Store
	backend   cache.Backend
	params    *params.Params
	hierarchy *hierarchy.Data
	builder   *clauses.Builder
	facets    *facets.FilterData
	cache     *controller.CacheController
	mainQuery *controller.MainQueryController
	logger    *slog.Logger

	concurrency int
	closers     []func() error
}

type options struct {
	tax         *tax.Settings
	clauses     clauses.Options
	facets      []facets.Option
	debug       bool
	logger      *slog.Logger
	concurrency int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*options)

// WithTax enables tax-adjusted price filtering.
func WithTax(s tax.Settings) EngineOption {
	return func(o *options) {
		o.tax = &s
	}
}

// WithClauseOptions configures the clause builder.
func WithClauseOptions(opts clauses.Options) EngineOption {
	return func(o *options) {
		o.clauses = opts
	}
}

// WithFacetOptions configures FilterData (TTL, hooks, ID memo).
func WithFacetOptions(opts ...facets.Option) EngineOption {
	return func(o *options) {
		o.facets = append(o.facets, opts...)
	}
}

// WithDebug makes hierarchy maps skip the durable cache.
func WithDebug(debug bool) EngineOption {
	return func(o *options) {
		o.debug = debug
	}
}

// WithLogger sets the logger of every component.
func WithLogger(l *slog.Logger) EngineOption {
	return func(o *options) {
		o.logger = l
	}
}

// WithFacetConcurrency bounds the concurrent queries of Facets.
//
// Default: DefaultFacetConcurrency
func WithFacetConcurrency(n int) EngineOption {
	return func(o *options) {
		o.concurrency = n
	}
}

// New wires an Engine over s and backend and registers its cache
// controller on s.
func New(s *store.Store, backend cache.Backend, opts ...EngineOption) *Engine {
	o := options{concurrency: DefaultFacetConcurrency}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.concurrency <= 0 {
		o.concurrency = DefaultFacetConcurrency
	}

	var calc *tax.Calculator
	if o.tax != nil {
		calc = tax.NewCalculator(*o.tax, s)
	}

	p := params.New(s)
	h := hierarchy.New(s, backend, hierarchy.Options{Debug: o.debug, Logger: o.logger})
	clauseOpts := o.clauses
	if clauseOpts.Logger == nil {
		clauseOpts.Logger = o.logger
	}
	b := clauses.NewBuilder(p, s, h, calc, clauseOpts)
	fd := facets.New(s, b, h, backend, append([]facets.Option{facets.WithLogger(o.logger)}, o.facets...)...)
	cc := controller.NewCacheController(backend, controller.CacheControllerOptions{
		FilterData: fd,
		Hierarchy:  h,
		Builder:    b,
		Logger:     o.logger,
	})
	cc.Register(s)

	return &Engine{
		store:       s,
		backend:     backend,
		params:      p,
		hierarchy:   h,
		builder:     b,
		facets:      fd,
		cache:       cc,
		mainQuery:   controller.NewMainQueryController(b),
		logger:      o.logger,
		concurrency: o.concurrency,
	}
}

// Close releases what Open acquired. Engines built with New own nothing
// and Close is a no-op.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Store returns the catalog store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Backend returns the durable cache backend.
func (e *Engine) Backend() cache.Backend {
	return e.backend
}

// Params returns the parameter vocabulary.
func (e *Engine) Params() *params.Params {
	return e.params
}

// Hierarchy returns the taxonomy hierarchy service.
func (e *Engine) Hierarchy() *hierarchy.Data {
	return e.hierarchy
}

// Builder returns the clause builder.
func (e *Engine) Builder() *clauses.Builder {
	return e.builder
}

// FilterData returns the facet service.
func (e *Engine) FilterData() *facets.FilterData {
	return e.facets
}

// CacheController returns the invalidation controller.
func (e *Engine) CacheController() *controller.CacheController {
	return e.cache
}

// MainQuery returns the main-query controller.
func (e *Engine) MainQuery() *controller.MainQueryController {
	return e.mainQuery
}

// ProductIDs returns the products matching every filter in vars.
func (e *Engine) ProductIDs(ctx context.Context, vars ir.QueryVars) ([]int64, error) {
	return e.facets.ProductIDs(ctx, vars)
}

// Archive returns the products of the main archive query. Only stock and
// taxonomy selections narrow it, and only when archive is set.
func (e *Engine) Archive(ctx context.Context, vars ir.QueryVars, archive bool) ([]int64, error) {
	args := e.mainQuery.MainQueryFilter(ctx, clauses.Args{}, controller.Query{
		Main:    true,
		Archive: archive,
		Vars:    vars,
	})
	return e.store.ProductIDs(ctx, clauses.Query(args))
}

// Clauses renders the product query for vars in the store's dialect. main
// selects the main-query narrowing instead of the full filter set.
func (e *Engine) Clauses(ctx context.Context, vars ir.QueryVars, main bool) (string, []any, error) {
	var args clauses.Args
	if main {
		args = e.builder.AddQueryClausesForMainQuery(ctx, args, vars)
	} else {
		args = e.builder.AddQueryClauses(ctx, args, vars)
	}
	sql, binds, err := e.store.Compiler().Compile(clauses.Query(args))
	if err != nil {
		return "", nil, fmt.Errorf("compile product query: %w", err)
	}
	return sql, binds, nil
}

// FacetSet holds every facet of one query.
type FacetSet struct {
	Price      ir.PriceRange            `json:"price"`
	Stock      ir.StockCounts           `json:"stock"`
	Rating     ir.RatingCounts          `json:"rating"`
	Attributes map[string]ir.TermCounts `json:"attributes"`
	Taxonomies map[string]ir.TermCounts `json:"taxonomies"`
}

// Facets computes every facet of vars concurrently. Each facet is counted
// without its own selection, so a shopper can widen a filter already
// applied.
func (e *Engine) Facets(ctx context.Context, vars ir.QueryVars) (FacetSet, error) {
	attrs, err := e.params.Param(ctx, params.TypeAttribute)
	if err != nil {
		return FacetSet{}, err
	}
	taxonomies, err := e.params.Param(ctx, params.TypeTaxonomy)
	if err != nil {
		return FacetSet{}, err
	}

	set := FacetSet{
		Attributes: make(map[string]ir.TermCounts, len(attrs)),
		Taxonomies: make(map[string]ir.TermCounts, len(taxonomies)),
	}
	var mu sync.Mutex
	fd := e.facets

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	g.Go(func() (err error) {
		set.Price, err = fd.PriceRange(gctx, facets.WithoutParams(vars, params.MinPrice, params.MaxPrice))
		return err
	})
	g.Go(func() (err error) {
		set.Stock, err = fd.StockStatusCounts(gctx, facets.WithoutParams(vars, params.StockStatus))
		return err
	})
	g.Go(func() (err error) {
		set.Rating, err = fd.RatingCounts(gctx, facets.WithoutParams(vars, params.RatingParam))
		return err
	})
	for _, taxonomy := range attrs {
		g.Go(func() error {
			counts, err := e.TermCounts(gctx, facets.FilterTypeAttribute, taxonomy, vars)
			if err != nil {
				return err
			}
			mu.Lock()
			set.Attributes[taxonomy] = counts
			mu.Unlock()
			return nil
		})
	}
	for _, taxonomy := range taxonomies {
		g.Go(func() error {
			counts, err := e.TermCounts(gctx, facets.FilterTypeTaxonomy, taxonomy, vars)
			if err != nil {
				return err
			}
			mu.Lock()
			set.Taxonomies[taxonomy] = counts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return FacetSet{}, err
	}
	return set, nil
}

// TermCounts counts the terms of an attribute or taxonomy without the
// parameters selecting it.
func (e *Engine) TermCounts(ctx context.Context, filterType, taxonomy string, vars ir.QueryVars) (ir.TermCounts, error) {
	keys, err := e.params.SelectionKeys(ctx, taxonomy)
	if err != nil {
		return nil, err
	}
	vars = facets.WithoutParams(vars, keys...)
	switch filterType {
	case facets.FilterTypeAttribute:
		return e.facets.AttributeCounts(ctx, vars, taxonomy)
	case facets.FilterTypeTaxonomy:
		return e.facets.TaxonomyCounts(ctx, vars, taxonomy)
	}
	return nil, fmt.Errorf("filter type %q has no terms", filterType)
}

// Count computes one facet of vars as given, including its own selection.
// taxonomy is required for attribute and taxonomy facets.
func (e *Engine) Count(ctx context.Context, filterType, taxonomy string, vars ir.QueryVars) (any, error) {
	switch filterType {
	case facets.FilterTypePrice:
		return e.facets.PriceRange(ctx, vars)
	case facets.FilterTypeStock:
		return e.facets.StockStatusCounts(ctx, vars)
	case facets.FilterTypeRating:
		return e.facets.RatingCounts(ctx, vars)
	case facets.FilterTypeAttribute:
		return e.facets.AttributeCounts(ctx, vars, taxonomy)
	case facets.FilterTypeTaxonomy:
		return e.facets.TaxonomyCounts(ctx, vars, taxonomy)
	}
	return nil, fmt.Errorf("unknown filter type %q", filterType)
}

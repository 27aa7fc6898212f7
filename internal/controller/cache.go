package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/facets/internal/cache"
	"github.com/roach88/facets/internal/clauses"
	"github.com/roach88/facets/internal/facets"
	"github.com/roach88/facets/internal/hierarchy"
	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/metrics"
	"github.com/roach88/facets/internal/store"
)

// Events is the catalog event source. *store.Store satisfies it.
type Events interface {
	OnProductSaved(fn store.ProductObserver)
	OnTermSaved(fn store.TermObserver)
	OnTransientsDeleted(fn store.ProductObserver)
}

// CacheController invalidates cached filter data.
type CacheController struct {
	backend   cache.Backend
	facets    *facets.FilterData
	hierarchy *hierarchy.Data
	builder   *clauses.Builder
	logger    *slog.Logger
}

// CacheControllerOptions lists the in-process caches cleared alongside the
// durable ones. Nil fields are skipped.
type CacheControllerOptions struct {
	FilterData *facets.FilterData
	Hierarchy  *hierarchy.Data
	Builder    *clauses.Builder
	Logger     *slog.Logger
}

// NewCacheController creates a CacheController bumping versions in backend.
func NewCacheController(backend cache.Backend, opts CacheControllerOptions) *CacheController {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheController{
		backend:   backend,
		facets:    opts.FilterData,
		hierarchy: opts.Hierarchy,
		builder:   opts.Builder,
		logger:    logger,
	}
}

// Register subscribes c to product saves, stock transient deletions and
// term saves.
func (c *CacheController) Register(events Events) {
	events.OnProductSaved(c.productChanged)
	events.OnTransientsDeleted(c.productChanged)
	events.OnTermSaved(c.termSaved)
}

// ClearFilterDataCache invalidates every cached facet result by bumping
// the filter_data version. Cached entries are left in place and ignored.
func (c *CacheController) ClearFilterDataCache(ctx context.Context) error {
	version, err := c.backend.Bump(ctx, facets.Namespace)
	if err != nil {
		return fmt.Errorf("bump %s version: %w", facets.Namespace, err)
	}
	metrics.Invalidations.Inc()
	if c.facets != nil {
		c.facets.ForgetProductIDs()
	}
	c.logger.Debug("filter data cache invalidated", "version", version)
	return nil
}

// ClearHierarchy drops the hierarchy map and cached descendants of
// taxonomy.
func (c *CacheController) ClearHierarchy(ctx context.Context, taxonomy string) error {
	if c.builder != nil {
		c.builder.ForgetChildren(taxonomy)
	}
	if c.hierarchy == nil {
		return nil
	}
	if err := c.hierarchy.ClearCache(ctx, taxonomy); err != nil {
		return fmt.Errorf("clear hierarchy of %s: %w", taxonomy, err)
	}
	return nil
}

func (c *CacheController) productChanged(ctx context.Context, productID int64) {
	if err := c.ClearFilterDataCache(ctx); err != nil {
		c.logger.Warn("filter data invalidation failed", "product_id", productID, "error", err)
	}
}

// termSaved clears the term's hierarchy and the facet cache, since moving a
// term changes rolled-up counts.
func (c *CacheController) termSaved(ctx context.Context, term ir.Term) {
	if err := c.ClearHierarchy(ctx, term.Taxonomy); err != nil {
		c.logger.Warn("hierarchy invalidation failed", "taxonomy", term.Taxonomy, "term_id", term.ID, "error", err)
	}
	if err := c.ClearFilterDataCache(ctx); err != nil {
		c.logger.Warn("filter data invalidation failed", "term_id", term.ID, "error", err)
	}
}

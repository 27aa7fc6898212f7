package facets

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/facets/internal/cache"
	"github.com/roach88/facets/internal/clauses"
	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/metrics"
	"github.com/roach88/facets/internal/queryir"
)

// Filter types, used in cache keys, hook requests and metrics.
const (
	FilterTypePrice     = "price"
	FilterTypeStock     = "stock"
	FilterTypeRating    = "rating"
	FilterTypeAttribute = "attribute"
	FilterTypeTaxonomy  = "taxonomy"
)

// Defaults for FilterData options.
const (
	DefaultTTL        = 24 * time.Hour
	DefaultIDsTTL     = time.Minute
	DefaultIDsMemoCap = 256
)

// Catalog runs product queries. *store.Store satisfies it.
type Catalog interface {
	Taxonomy(ctx context.Context, name string) (ir.Taxonomy, bool, error)
	ProductIDs(ctx context.Context, q queryir.Query) ([]int64, error)
	QueryCompiled(ctx context.Context, q queryir.Query, scan func(*sql.Rows) error) error
}

// Ancestry returns the ancestors of a term, nearest first.
// *hierarchy.Data satisfies it.
type Ancestry interface {
	Ancestors(ctx context.Context, termID int64, taxonomy string) ([]int64, error)
}

// Request describes one facet computation to the hooks.
type Request struct {
	FilterType string
	Vars       ir.QueryVars
	Extra      ir.IRObject
}

// Hooks are the extension points of the facet protocol.
//
// Pre may supply a result, for example from an external search index; when
// it returns ok, the value is returned as is. Post receives every computed
// result and returns the result to cache and return. A hook value of the
// wrong type for the facet is ignored.
type Hooks struct {
	Pre  func(ctx context.Context, req Request) (result any, ok bool)
	Post func(ctx context.Context, req Request, result any) any
}

// FilterData computes facet counts. It is safe for concurrent use.
type FilterData struct {
	catalog  Catalog
	builder  *clauses.Builder
	ancestry Ancestry
	cache    cache.Backend

	hooks   Hooks
	ttl     time.Duration
	idsTTL  time.Duration
	idsCap  int
	logger  *slog.Logger
	idsMemo *expirable.LRU[string, []int64]

	idsMu  sync.Mutex
	idsGen uint64 // bumped by ForgetProductIDs
}

// Option configures a FilterData.
type Option func(*FilterData)

// WithHooks installs extension hooks.
func WithHooks(h Hooks) Option {
	return func(f *FilterData) {
		f.hooks = h
	}
}

// WithTTL sets the lifetime of cached facet results.
//
// Default: 24h (DefaultTTL). Zero keeps entries until the backend evicts them.
func WithTTL(ttl time.Duration) Option {
	return func(f *FilterData) {
		f.ttl = ttl
	}
}

// WithIDsMemo bounds the product-ID working set memo.
func WithIDsMemo(size int, ttl time.Duration) Option {
	return func(f *FilterData) {
		f.idsCap = size
		f.idsTTL = ttl
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *FilterData) {
		f.logger = l
	}
}

// New creates a FilterData. Product IDs are resolved by narrowing the base
// product query with builder; hierarchical taxonomy counts roll up through
// ancestry.
func New(catalog Catalog, builder *clauses.Builder, ancestry Ancestry, backend cache.Backend, opts ...Option) *FilterData {
	f := &FilterData{
		catalog:  catalog,
		builder:  builder,
		ancestry: ancestry,
		cache:    backend,
		ttl:      DefaultTTL,
		idsTTL:   DefaultIDsTTL,
		idsCap:   DefaultIDsMemoCap,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.idsCap <= 0 {
		f.idsCap = DefaultIDsMemoCap
	}
	if f.idsTTL <= 0 {
		f.idsTTL = DefaultIDsTTL
	}
	f.idsMemo = expirable.NewLRU[string, []int64](f.idsCap, nil, f.idsTTL)
	return f
}

// ProductIDs returns the IDs of products matching vars, ascending. Results
// are memoized per query-var shape and filter_data version until
// ForgetProductIDs, a version bump or expiry. A result computed across a
// ForgetProductIDs is returned but not memoized.
//
// The returned slice is shared; callers must not modify it.
func (f *FilterData) ProductIDs(ctx context.Context, vars ir.QueryVars) ([]int64, error) {
	vars, err := f.relevant(ctx, vars)
	if err != nil {
		return nil, err
	}
	key, err := ir.ProductIDsKey(vars)
	if err != nil {
		return nil, err
	}
	if version, ok := f.version(ctx); ok {
		key = version + ":" + key
	}

	ids, ok := f.idsMemo.Get(key)
	metrics.Hit(metrics.CacheProductIDs, ok)
	if ok {
		return ids, nil
	}

	f.idsMu.Lock()
	gen := f.idsGen
	f.idsMu.Unlock()

	args := f.builder.AddQueryClauses(ctx, clauses.Args{}, vars)
	ids, err = f.catalog.ProductIDs(ctx, clauses.Query(args))
	if err != nil {
		return nil, fmt.Errorf("filtered product ids: %w", err)
	}

	f.idsMu.Lock()
	defer f.idsMu.Unlock()
	if f.idsGen == gen {
		f.idsMemo.Add(key, ids)
	}
	return ids, nil
}

// ForgetProductIDs drops every memoized working set, including any being
// computed.
func (f *FilterData) ForgetProductIDs() {
	f.idsMu.Lock()
	defer f.idsMu.Unlock()
	f.idsGen++
	f.idsMemo.Purge()
}

// relevant restricts vars to the filter vocabulary.
func (f *FilterData) relevant(ctx context.Context, vars ir.QueryVars) (ir.QueryVars, error) {
	keys, err := f.builder.Params().ParamKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("param keys: %w", err)
	}
	return vars.Restrict(keys), nil
}

// get runs the facet protocol for one filter type. compute receives the
// filtered product IDs, which may be empty.
func get[T any](
	ctx context.Context,
	f *FilterData,
	req Request,
	compute func(ctx context.Context, ids []int64) (T, error),
) (T, error) {
	var zero T

	if f.hooks.Pre != nil {
		if v, ok := f.hooks.Pre(ctx, req); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
			f.logger.Warn("pre hook result ignored", "filter_type", req.FilterType, "type", fmt.Sprintf("%T", v))
		}
	}

	vars, err := f.relevant(ctx, req.Vars)
	if err != nil {
		return zero, err
	}
	key, err := ir.FilterDataKey(vars, req.FilterType, req.Extra)
	if err != nil {
		return zero, err
	}

	version, cacheOK := f.version(ctx)
	if cacheOK {
		if v, ok := readCached[T](ctx, f, key, version); ok {
			return v, nil
		}
	}

	timer := prometheus.NewTimer(metrics.FacetComputeSeconds.WithLabelValues(req.FilterType))
	ids, err := f.ProductIDs(ctx, vars)
	if err != nil {
		return zero, err
	}
	result, err := compute(ctx, ids)
	timer.ObserveDuration()
	if err != nil {
		return zero, fmt.Errorf("%s counts: %w", req.FilterType, err)
	}

	if f.hooks.Post != nil {
		v := f.hooks.Post(ctx, req, result)
		if typed, ok := v.(T); ok {
			result = typed
		} else {
			f.logger.Warn("post hook result ignored", "filter_type", req.FilterType, "type", fmt.Sprintf("%T", v))
		}
	}

	if cacheOK {
		writeCached(ctx, f, key, version, result)
	}
	return result, nil
}

// WithoutParams returns a copy of vars without keys. Callers computing the
// counts of a facet usually drop that facet's own selection first, so every
// option shows what selecting it would yield.
func WithoutParams(vars ir.QueryVars, keys ...string) ir.QueryVars {
	return vars.Without(keys...)
}

package facets

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/facets/internal/cache"
	"github.com/roach88/facets/internal/clauses"
	"github.com/roach88/facets/internal/hierarchy"
	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/params"
	"github.com/roach88/facets/internal/queryir"
	"github.com/roach88/facets/internal/store"
	"github.com/roach88/facets/internal/testutil"
)

// countingCatalog counts queries reaching the store.
type countingCatalog struct {
	*store.Store
	counts atomic.Int64
	ids    atomic.Int64

	// When set, the next ProductIDs signals entered after querying and
	// waits for release.
	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
}

func (c *countingCatalog) QueryCompiled(ctx context.Context, q queryir.Query, scan func(*sql.Rows) error) error {
	c.counts.Add(1)
	return c.Store.QueryCompiled(ctx, q, scan)
}

func (c *countingCatalog) ProductIDs(ctx context.Context, q queryir.Query) ([]int64, error) {
	c.ids.Add(1)
	ids, err := c.Store.ProductIDs(ctx, q)

	c.mu.Lock()
	entered, release := c.entered, c.release
	c.entered, c.release = nil, nil
	c.mu.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}
	return ids, err
}

// pause makes the next ProductIDs block after querying until the returned
// release func is called.
func (c *countingCatalog) pause() (entered <-chan struct{}, release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, out := make(chan struct{}), make(chan struct{})
	c.entered, c.release = in, out
	return in, func() { close(out) }
}

type fixture struct {
	store   *store.Store
	catalog *countingCatalog
	cache   *cache.Memory
	data    *FilterData
}

func newFixture(t *testing.T, clauseOpts clauses.Options, opts ...Option) *fixture {
	t.Helper()
	s := testutil.Catalog(t)
	h := hierarchy.New(s, nil, hierarchy.Options{})
	b := clauses.NewBuilder(params.New(s), s, h, nil, clauseOpts)
	c := &countingCatalog{Store: s}
	mem := cache.NewMemory()
	return &fixture{store: s, catalog: c, cache: mem, data: New(c, b, h, mem, opts...)}
}

func vars(t *testing.T, raw string) ir.QueryVars {
	t.Helper()
	v, err := ir.ParseQueryVars(raw)
	require.NoError(t, err)
	return v
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPriceRange(t *testing.T) {
	f := newFixture(t, clauses.Options{})
	ctx := context.Background()

	r, err := f.data.PriceRange(ctx, vars(t, ""))
	require.NoError(t, err)
	require.True(t, r.MinPrice.Valid)
	require.True(t, r.MaxPrice.Valid)
	assert.True(t, r.MinPrice.Decimal.Equal(dec("8.5")), "min %s", r.MinPrice.Decimal)
	assert.True(t, r.MaxPrice.Decimal.Equal(dec("60")), "max %s", r.MaxPrice.Decimal)

	r, err = f.data.PriceRange(ctx, vars(t, "tags=sale"))
	require.NoError(t, err)
	assert.True(t, r.MinPrice.Decimal.Equal(dec("15")))
	assert.True(t, r.MaxPrice.Decimal.Equal(dec("22")))

	r, err = f.data.PriceRange(ctx, vars(t, "categories=nope"))
	require.NoError(t, err)
	assert.True(t, r.IsEmpty())
}

func TestStockStatusCounts(t *testing.T) {
	f := newFixture(t, clauses.Options{})

	counts, err := f.data.StockStatusCounts(context.Background(), vars(t, ""))
	require.NoError(t, err)
	assert.Equal(t, ir.StockCounts{
		ir.StockInStock:     4,
		ir.StockOutOfStock:  1,
		ir.StockOnBackorder: 1,
	}, counts)
}

func TestRatingCounts_RoundedDescending(t *testing.T) {
	f := newFixture(t, clauses.Options{})

	counts, err := f.data.RatingCounts(context.Background(), vars(t, ""))
	require.NoError(t, err)
	assert.Equal(t, ir.RatingCounts{
		{Rating: 5, Count: 2},
		{Rating: 4, Count: 1},
		{Rating: 3, Count: 1},
	}, counts)
}

func TestAttributeCounts(t *testing.T) {
	ctx := context.Background()

	t.Run("variations count toward their parent", func(t *testing.T) {
		f := newFixture(t, clauses.Options{})
		counts, err := f.data.AttributeCounts(ctx, vars(t, ""), "pa_color")
		require.NoError(t, err)
		assert.Equal(t, ir.TermCounts{
			testutil.TermID(t, f.store, "pa_color", "red"):   5,
			testutil.TermID(t, f.store, "pa_color", "blue"):  4,
			testutil.TermID(t, f.store, "pa_color", "green"): 1,
		}, counts)
	})

	t.Run("hidden out of stock rows", func(t *testing.T) {
		f := newFixture(t, clauses.Options{HideOutOfStock: true})
		counts, err := f.data.AttributeCounts(ctx, vars(t, ""), "pa_color")
		require.NoError(t, err)
		assert.Equal(t, ir.TermCounts{
			testutil.TermID(t, f.store, "pa_color", "red"):   4,
			testutil.TermID(t, f.store, "pa_color", "blue"):  2,
			testutil.TermID(t, f.store, "pa_color", "green"): 1,
		}, counts)
	})

	t.Run("own selection dropped", func(t *testing.T) {
		f := newFixture(t, clauses.Options{})
		v := vars(t, "filter_color=green&filter_size=small")
		counts, err := f.data.AttributeCounts(ctx, WithoutParams(v, "filter_color", "query_type_color"), "pa_color")
		require.NoError(t, err)
		// small: 10 (variation 11), 40, 60, 70.
		assert.Equal(t, ir.TermCounts{
			testutil.TermID(t, f.store, "pa_color", "red"):  4,
			testutil.TermID(t, f.store, "pa_color", "blue"): 3,
		}, counts)
	})

	t.Run("unregistered attribute", func(t *testing.T) {
		f := newFixture(t, clauses.Options{})
		counts, err := f.data.AttributeCounts(ctx, vars(t, ""), "pa_material")
		require.NoError(t, err)
		assert.Empty(t, counts)
	})
}

func TestTaxonomyCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, clauses.Options{})
	id := func(tax, slug string) int64 { return testutil.TermID(t, f.store, tax, slug) }

	t.Run("hierarchical counts roll up to ancestors", func(t *testing.T) {
		counts, err := f.data.TaxonomyCounts(ctx, vars(t, ""), "product_cat")
		require.NoError(t, err)
		assert.Equal(t, ir.TermCounts{
			id("product_cat", "clothing"):    3,
			id("product_cat", "shirts"):      1,
			id("product_cat", "tshirts"):     1,
			id("product_cat", "hoodies"):     1,
			id("product_cat", "accessories"): 3,
			id("product_cat", "mugs"):        1,
		}, counts)
	})

	t.Run("flat", func(t *testing.T) {
		counts, err := f.data.TaxonomyCounts(ctx, vars(t, ""), "product_tag")
		require.NoError(t, err)
		assert.Equal(t, ir.TermCounts{
			id("product_tag", "sale"): 2,
			id("product_tag", "new"):  1,
		}, counts)
	})

	t.Run("narrowed by other filters", func(t *testing.T) {
		counts, err := f.data.TaxonomyCounts(ctx, vars(t, "filter_stock_status=instock"), "product_cat")
		require.NoError(t, err)
		assert.Equal(t, ir.TermCounts{
			id("product_cat", "clothing"):    3,
			id("product_cat", "shirts"):      1,
			id("product_cat", "tshirts"):     1,
			id("product_cat", "hoodies"):     1,
			id("product_cat", "accessories"): 1,
		}, counts)
	})

	t.Run("unregistered taxonomy", func(t *testing.T) {
		counts, err := f.data.TaxonomyCounts(ctx, vars(t, ""), "product_season")
		require.NoError(t, err)
		assert.Empty(t, counts)
	})
}

func TestCache_ServesVersionedResult(t *testing.T) {
	f := newFixture(t, clauses.Options{})
	ctx := context.Background()

	first, err := f.data.StockStatusCounts(ctx, vars(t, ""))
	require.NoError(t, err)
	second, err := f.data.StockStatusCounts(ctx, vars(t, ""))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), f.catalog.counts.Load())
}

func TestCache_IgnoresIrrelevantVars(t *testing.T) {
	f := newFixture(t, clauses.Options{})
	ctx := context.Background()

	_, err := f.data.StockStatusCounts(ctx, vars(t, "categories=clothing"))
	require.NoError(t, err)
	_, err = f.data.StockStatusCounts(ctx, vars(t, "categories=clothing&utm_source=mail&paged=2"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.catalog.counts.Load())
	assert.Equal(t, int64(1), f.catalog.ids.Load())
}

func TestCache_VersionBumpForcesRecompute(t *testing.T) {
	f := newFixture(t, clauses.Options{})
	ctx := context.Background()

	_, err := f.data.RatingCounts(ctx, vars(t, ""))
	require.NoError(t, err)
	require.Equal(t, int64(1), f.catalog.counts.Load())

	_, err = f.cache.Bump(ctx, Namespace)
	require.NoError(t, err)

	_, err = f.data.RatingCounts(ctx, vars(t, ""))
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.catalog.counts.Load(), "stale entry must not be served")

	_, err = f.data.RatingCounts(ctx, vars(t, ""))
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.catalog.counts.Load(), "recomputed entry is cached under the new version")
}

func TestCache_EmptyResultNeverCached(t *testing.T) {
	f := newFixture(t, clauses.Options{})
	ctx := context.Background()

	// The Mug is the only acme product and has no rating.
	for range 2 {
		counts, err := f.data.RatingCounts(ctx, vars(t, "brands=acme"))
		require.NoError(t, err)
		assert.Empty(t, counts)
	}
	assert.Equal(t, int64(2), f.catalog.counts.Load())
}

func TestEmptyProductSetSkipsCountQuery(t *testing.T) {
	f := newFixture(t, clauses.Options{})
	ctx := context.Background()

	for range 2 {
		counts, err := f.data.StockStatusCounts(ctx, vars(t, "categories=nope"))
		require.NoError(t, err)
		assert.NotNil(t, counts)
		assert.Empty(t, counts)
	}
	assert.Zero(t, f.catalog.counts.Load())
	assert.Equal(t, int64(1), f.catalog.ids.Load(), "working set memoized")
}

func TestProductIDs_Memo(t *testing.T) {
	f := newFixture(t, clauses.Options{})
	ctx := context.Background()

	ids, err := f.data.ProductIDs(ctx, vars(t, "filter_color=red,blue"))
	require.NoError(t, err)
	assert.Equal(t, []int64{60, 70}, ids)

	_, err = f.data.ProductIDs(ctx, vars(t, "filter_color=blue,red"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.catalog.ids.Load(), "value order does not change the shape")

	f.data.ForgetProductIDs()
	_, err = f.data.ProductIDs(ctx, vars(t, "filter_color=red,blue"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.catalog.ids.Load())
}

func TestProductIDs_ForgetDuringQuery(t *testing.T) {
	f := newFixture(t, clauses.Options{})
	ctx := context.Background()
	entered, release := f.catalog.pause()

	done := make(chan []int64)
	go func() {
		ids, err := f.data.ProductIDs(ctx, vars(t, "filter_stock_status=instock"))
		assert.NoError(t, err)
		done <- ids
	}()
	<-entered
	f.data.ForgetProductIDs()
	release()
	assert.Equal(t, []int64{10, 20, 60, 70}, <-done)

	_, err := f.data.ProductIDs(ctx, vars(t, "filter_stock_status=instock"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.catalog.ids.Load(), "working set read across a forget is not memoized")

	_, err = f.data.ProductIDs(ctx, vars(t, "filter_stock_status=instock"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.catalog.ids.Load())
}

func TestProductIDs_VersionBump(t *testing.T) {
	f := newFixture(t, clauses.Options{})
	ctx := context.Background()

	_, err := f.data.ProductIDs(ctx, vars(t, "filter_stock_status=instock"))
	require.NoError(t, err)

	// Another process invalidated the shared cache; this memo was not purged.
	_, err = f.cache.Bump(ctx, Namespace)
	require.NoError(t, err)

	_, err = f.data.ProductIDs(ctx, vars(t, "filter_stock_status=instock"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.catalog.ids.Load())
}

func TestHooks_PreBypassesEverything(t *testing.T) {
	supplied := ir.StockCounts{"instock": 99}
	f := newFixture(t, clauses.Options{}, WithHooks(Hooks{
		Pre: func(_ context.Context, req Request) (any, bool) {
			if req.FilterType == FilterTypeStock {
				return supplied, true
			}
			return nil, false
		},
	}))

	counts, err := f.data.StockStatusCounts(context.Background(), vars(t, ""))
	require.NoError(t, err)
	assert.Equal(t, supplied, counts)
	assert.Zero(t, f.catalog.ids.Load())
	assert.Zero(t, f.catalog.counts.Load())
}

func TestHooks_PreWrongTypeIgnored(t *testing.T) {
	f := newFixture(t, clauses.Options{}, WithHooks(Hooks{
		Pre: func(context.Context, Request) (any, bool) { return "not counts", true },
	}))

	counts, err := f.data.StockStatusCounts(context.Background(), vars(t, ""))
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts[ir.StockInStock])
}

func TestHooks_PostResultIsCached(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
		seen  Request
	)
	f := newFixture(t, clauses.Options{}, WithHooks(Hooks{
		Post: func(_ context.Context, req Request, result any) any {
			mu.Lock()
			defer mu.Unlock()
			calls++
			seen = req
			counts := result.(ir.TermCounts)
			counts[0] = 42
			return counts
		},
	}))
	ctx := context.Background()

	for range 2 {
		counts, err := f.data.TaxonomyCounts(ctx, vars(t, ""), "product_tag")
		require.NoError(t, err)
		assert.Equal(t, int64(42), counts[0])
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, FilterTypeTaxonomy, seen.FilterType)
	assert.Equal(t, ir.IRObject{"taxonomy": ir.IRString("product_tag")}, seen.Extra)
}

type unavailableBackend struct {
	cache.Backend
}

func (unavailableBackend) Version(context.Context, string) (string, error) {
	return "", errors.New("backend down")
}

func TestCacheUnavailableStillComputes(t *testing.T) {
	s := testutil.Catalog(t)
	h := hierarchy.New(s, nil, hierarchy.Options{})
	b := clauses.NewBuilder(params.New(s), s, h, nil, clauses.Options{})
	data := New(s, b, h, unavailableBackend{Backend: cache.NewMemory()})

	counts, err := data.StockStatusCounts(context.Background(), vars(t, ""))
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts[ir.StockInStock])
}

func TestCacheable(t *testing.T) {
	assert.False(t, Cacheable(nil))
	assert.False(t, Cacheable(ir.StockCounts{}))
	assert.False(t, Cacheable(ir.TermCounts(nil)))
	assert.False(t, Cacheable(ir.RatingCounts{}))
	assert.False(t, Cacheable(ir.PriceRange{}))
	assert.True(t, Cacheable(ir.StockCounts{"instock": 0}))
	assert.True(t, Cacheable(ir.RatingCounts{{Rating: 5, Count: 1}}))
	assert.True(t, Cacheable(ir.PriceRange{MinPrice: decimal.NewNullDecimal(decimal.Zero)}))
}

func TestWithoutParams(t *testing.T) {
	v := vars(t, "filter_color=red&categories=clothing")
	out := WithoutParams(v, "filter_color")

	assert.False(t, out.Has("filter_color"))
	assert.True(t, out.Has("categories"))
	assert.True(t, v.Has("filter_color"), "input untouched")
}

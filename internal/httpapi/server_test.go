package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/facets/internal/cache"
	"github.com/roach88/facets/internal/engine"
	"github.com/roach88/facets/internal/facets"
	"github.com/roach88/facets/internal/hierarchy"
	"github.com/roach88/facets/internal/params"
	"github.com/roach88/facets/internal/store"
	"github.com/roach88/facets/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	store  *store.Store
	cache  *cache.Memory
	server *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := testutil.Catalog(t)
	mem := cache.NewMemory()
	srv := New(engine.New(s, mem), Options{
		IDs: testutil.NewFixedIDGenerator("req-1"),
	})
	return &fixture{store: s, cache: mem, server: srv}
}

func (f *fixture) do(t *testing.T, method, target string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func (f *fixture) termKey(t *testing.T, taxonomy, slug string) string {
	return strconv.FormatInt(testutil.TermID(t, f.store, taxonomy, slug), 10)
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/params", nil)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/params", nil)
	req.Header.Set(RequestIDHeader, "from-client")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "from-client", rec.Header().Get(RequestIDHeader))
}

func TestUUIDv7Generator(t *testing.T) {
	a := UUIDv7Generator{}.Generate()
	b := UUIDv7Generator{}.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestGetParams(t *testing.T) {
	f := newFixture(t)

	var resp ParamsResponse
	rec := f.do(t, http.MethodGet, "/api/v1/params", &resp)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, resp.Keys, "filter_color")
	assert.Contains(t, resp.Keys, "query_type_color")
	assert.Contains(t, resp.Keys, "categories")
	assert.Equal(t, "pa_size", resp.Params[params.TypeAttribute]["filter_size"])
	assert.Equal(t, "product_tag", resp.Params[params.TypeTaxonomy]["tags"])
}

func TestGetProducts(t *testing.T) {
	f := newFixture(t)

	var resp ProductsResponse
	f.do(t, http.MethodGet, "/api/v1/products?filter_stock_status=instock", &resp)
	assert.Equal(t, []int64{10, 20, 60, 70}, resp.ProductIDs)
	assert.Equal(t, 4, resp.Count)

	f.do(t, http.MethodGet, "/api/v1/products?categories=nope", &resp)
	assert.Empty(t, resp.ProductIDs)
}

func TestGetArchive(t *testing.T) {
	f := newFixture(t)

	var resp ProductsResponse
	f.do(t, http.MethodGet, "/api/v1/archive?categories=clothing&filter_color=blue", &resp)
	assert.Equal(t, []int64{10, 20, 60}, resp.ProductIDs, "only stock and taxonomies narrow the archive")

	f.do(t, http.MethodGet, "/api/v1/archive?archive=false&categories=clothing", &resp)
	assert.Equal(t, []int64{10, 20, 30, 40, 60, 70}, resp.ProductIDs)

	rec := f.do(t, http.MethodGet, "/api/v1/archive?archive=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFacets(t *testing.T) {
	f := newFixture(t)

	var resp engine.FacetSet
	rec := f.do(t, http.MethodGet, "/api/v1/facets", &resp)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "8.5", resp.Price.MinPrice.Decimal.String())
	assert.Equal(t, "60", resp.Price.MaxPrice.Decimal.String())
	assert.EqualValues(t, 4, resp.Stock["instock"])
	require.NotEmpty(t, resp.Rating)
	assert.EqualValues(t, 5, resp.Rating[0].Rating)

	require.Contains(t, resp.Attributes, "pa_color")
	require.Contains(t, resp.Taxonomies, "product_cat")
	red := testutil.TermID(t, f.store, "pa_color", "red")
	clothing := testutil.TermID(t, f.store, "product_cat", "clothing")
	assert.EqualValues(t, 5, resp.Attributes["pa_color"][red])
	assert.EqualValues(t, 3, resp.Taxonomies["product_cat"][clothing])
}

func TestGetFacets_OwnSelectionDropped(t *testing.T) {
	f := newFixture(t)

	var resp engine.FacetSet
	f.do(t, http.MethodGet, "/api/v1/facets?filter_size=small&filter_color=green", &resp)

	red := testutil.TermID(t, f.store, "pa_color", "red")
	blue := testutil.TermID(t, f.store, "pa_color", "blue")
	assert.EqualValues(t, 4, resp.Attributes["pa_color"][red], "colors ignore filter_color")
	assert.EqualValues(t, 3, resp.Attributes["pa_color"][blue])

	// Sizes are narrowed by green, which only the hoodie (large) carries.
	large := testutil.TermID(t, f.store, "pa_size", "large")
	small := testutil.TermID(t, f.store, "pa_size", "small")
	assert.EqualValues(t, 1, resp.Attributes["pa_size"][large])
	assert.NotContains(t, resp.Attributes["pa_size"], small)
}

func TestGetSingleFacets(t *testing.T) {
	f := newFixture(t)

	var stock map[string]int64
	f.do(t, http.MethodGet, "/api/v1/facets/stock", &stock)
	assert.Equal(t, map[string]int64{"instock": 4, "outofstock": 1, "onbackorder": 1}, stock)

	var price map[string]string
	f.do(t, http.MethodGet, "/api/v1/facets/price?tags=sale", &price)
	assert.Equal(t, map[string]string{"min_price": "15", "max_price": "22"}, price)

	var ratings []map[string]int64
	f.do(t, http.MethodGet, "/api/v1/facets/rating", &ratings)
	assert.Len(t, ratings, 3)

	var tags map[string]int64
	f.do(t, http.MethodGet, "/api/v1/facets/taxonomy/product_tag", &tags)
	assert.Equal(t, map[string]int64{
		f.termKey(t, "product_tag", "sale"): 2,
		f.termKey(t, "product_tag", "new"):  1,
	}, tags)

	var colors map[string]int64
	f.do(t, http.MethodGet, "/api/v1/facets/attribute/pa_color?filter_size=small", &colors)
	assert.EqualValues(t, 4, colors[f.termKey(t, "pa_color", "red")])

	var unknown map[string]int64
	rec := f.do(t, http.MethodGet, "/api/v1/facets/attribute/pa_nope", &unknown)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, unknown)
}

func TestGetHierarchy(t *testing.T) {
	f := newFixture(t)

	var resp struct {
		Taxonomy string           `json:"taxonomy"`
		Tree     []hierarchy.Node `json:"tree"`
	}
	f.do(t, http.MethodGet, "/api/v1/taxonomies/product_cat/hierarchy", &resp)
	assert.Equal(t, "product_cat", resp.Taxonomy)
	require.Len(t, resp.Tree, 2)
	assert.Equal(t, "accessories", resp.Tree[0].Slug)
	assert.Equal(t, "clothing", resp.Tree[1].Slug)
	require.Len(t, resp.Tree[1].Children, 2)

	f.do(t, http.MethodGet, "/api/v1/taxonomies/product_tag/hierarchy", &resp)
	assert.Empty(t, resp.Tree)
}

func TestPostInvalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.cache.Version(ctx, facets.Namespace)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate?taxonomy=product_cat", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	after, err := f.cache.Version(ctx, facets.Namespace)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	rec = f.do(t, http.MethodGet, "/api/v1/cache/invalidate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/facets/stock", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "facets_cache_misses_total")
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/params", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServe_GracefulShutdown(t *testing.T) {
	f := newFixture(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/api/v1/facets/stock")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_ListenerError(t *testing.T) {
	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	err = f.server.Serve(context.Background(), ln)
	require.Error(t, err)
	assert.False(t, errors.Is(err, http.ErrServerClosed))
}

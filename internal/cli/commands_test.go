package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/facets/internal/store"
)

func TestSeedCommand(t *testing.T) {
	env := newTestEnv(t)
	fixture := env.fixture(t)

	out, err := env.run(t, "seed", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Seeded "+fixture)
	assert.Contains(t, out, "3 taxonomies")

	fresh := newTestEnv(t)
	out, err = fresh.run(t, "--format", "json", "seed", fresh.fixture(t))
	require.NoError(t, err)
	var result SeedResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, result.Taxonomies)
	assert.Positive(t, result.Products)
}

func TestSeedCommand_BadFixture(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("products: [\n"), 0644))

	out, err := env.run(t, "seed", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_FIXTURE]")
}

func TestProductsCommand(t *testing.T) {
	env := seeded(t)

	out, err := env.run(t, "--format", "json", "products", "filter_stock_status=instock")
	require.NoError(t, err)
	var result ProductsResult
	decodeData(t, out, &result)
	assert.Equal(t, []int64{10, 20, 60, 70}, result.ProductIDs)
	assert.Equal(t, 4, result.Count)

	out, err = env.run(t, "products", "filter_stock_status=instock")
	require.NoError(t, err)
	assert.Equal(t, "10\n20\n60\n70\n4 product(s)\n", out)
}

func TestProductsCommand_Main(t *testing.T) {
	env := seeded(t)

	out, err := env.run(t, "--format", "json", "products", "--main", "categories=accessories&filter_color=blue")
	require.NoError(t, err)
	var result ProductsResult
	decodeData(t, out, &result)
	assert.Equal(t, []int64{30, 40, 70}, result.ProductIDs)

	out, err = env.run(t, "--format", "json", "products", "categories=accessories&filter_color=blue")
	require.NoError(t, err)
	decodeData(t, out, &result)
	assert.Equal(t, []int64{30, 70}, result.ProductIDs)
}

func TestProductsCommand_InvalidQuery(t *testing.T) {
	env := seeded(t)

	out, err := env.run(t, "products", "%zz")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_QUERY]")
}

func TestClausesCommand(t *testing.T) {
	env := seeded(t)

	out, err := env.run(t, "clauses", "filter_stock_status=instock")
	require.NoError(t, err)
	assert.Contains(t, out, "meta_lookup.stock_status IN (?)")
	assert.Contains(t, out, "binds: [")
	assert.Contains(t, out, "instock")

	out, err = env.run(t, "--format", "json", "clauses")
	require.NoError(t, err)
	var result ClausesResult
	decodeData(t, out, &result)
	assert.NotNil(t, result.Binds)
}

func TestCountsCommand(t *testing.T) {
	env := seeded(t)

	out, err := env.run(t, "counts", "stock")
	require.NoError(t, err)
	assert.Equal(t, "instock\t4\nonbackorder\t1\noutofstock\t1\n", out)

	out, err = env.run(t, "counts", "attribute", "--taxonomy", "pa_color", "filter_color=green")
	require.NoError(t, err)
	assert.Equal(t, "green\t1\nred\t1\n", out)

	out, err = env.run(t, "counts", "taxonomy", "--taxonomy", "product_tag")
	require.NoError(t, err)
	assert.Equal(t, "new\t1\nsale\t2\n", out)

	out, err = env.run(t, "counts", "rating")
	require.NoError(t, err)
	assert.Equal(t, "5\t2\n4\t1\n3\t1\n", out)

	out, err = env.run(t, "counts", "price", "tags=sale")
	require.NoError(t, err)
	assert.Regexp(t, `^min_price\t15(\.0+)?\nmax_price\t22(\.0+)?\n$`, out)
}

func TestCountsCommand_JSON(t *testing.T) {
	env := seeded(t)

	out, err := env.run(t, "--format", "json", "counts", "taxonomy", "--taxonomy", "product_tag")
	require.NoError(t, err)
	var result struct {
		Type     string           `json:"type"`
		Taxonomy string           `json:"taxonomy"`
		Counts   map[string]int64 `json:"counts"`
	}
	decodeData(t, out, &result)
	assert.Equal(t, "taxonomy", result.Type)
	assert.Equal(t, "product_tag", result.Taxonomy)
	assert.Equal(t, map[string]int64{"new": 1, "sale": 2}, result.Counts)
}

func TestCountsCommand_NoMatches(t *testing.T) {
	env := seeded(t)

	out, err := env.run(t, "counts", "stock", "categories=no-such-category")
	require.NoError(t, err)
	assert.Equal(t, "(no matches)\n", out)
}

func TestCountsCommand_RequiresTaxonomy(t *testing.T) {
	env := seeded(t)

	for _, typ := range []string{"attribute", "taxonomy"} {
		t.Run(typ, func(t *testing.T) {
			out, err := env.run(t, "counts", typ)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, typ+" counts require --taxonomy")
		})
	}
}

func TestHierarchyCommand(t *testing.T) {
	env := seeded(t)

	out, err := env.run(t, "hierarchy", "product_cat")
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^accessories \(\d+\)$`, out)
	assert.Regexp(t, `(?m)^  mugs \(\d+\)$`, out)
	assert.Regexp(t, `(?m)^    tshirts \(\d+\)$`, out)

	out, err = env.run(t, "hierarchy", "product_brand")
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^acme \(\d+\)$`, out)

	out, err = env.run(t, "hierarchy", "no_such_taxonomy")
	require.NoError(t, err)
	assert.Equal(t, "no_such_taxonomy has no terms\n", out)
}

func TestHierarchyCommand_JSON(t *testing.T) {
	env := seeded(t)

	out, err := env.run(t, "--format", "json", "hierarchy", "product_cat")
	require.NoError(t, err)
	var result HierarchyResult
	decodeData(t, out, &result)
	assert.Equal(t, "product_cat", result.Taxonomy)

	var roots []string
	for _, n := range result.Tree {
		roots = append(roots, n.Slug)
		assert.Equal(t, 0, n.Depth)
	}
	assert.ElementsMatch(t, []string{"clothing", "accessories"}, roots)
}

func TestInvalidateCommand(t *testing.T) {
	env := seeded(t)

	out, err := env.run(t, "invalidate")
	require.NoError(t, err)
	assert.Equal(t, "✓ Invalidated cached filter data\n", out)

	out, err = env.run(t, "invalidate", "--taxonomy", "product_cat")
	require.NoError(t, err)
	assert.Equal(t, "✓ Cleared product_cat hierarchy\n✓ Invalidated cached filter data\n", out)

	out, err = env.run(t, "--format", "json", "invalidate")
	require.NoError(t, err)
	var result InvalidateResult
	decodeData(t, out, &result)
	assert.True(t, result.FilterData)
	assert.Zero(t, result.Purged)
}

func TestInvalidateCommand_PurgesExpiredEntries(t *testing.T) {
	env := seeded(t)
	ctx := t.Context()

	s, err := store.Open(filepath.Join(env.dir, "catalog.db"))
	require.NoError(t, err)
	ct := s.CacheTable()
	require.NoError(t, ct.Set(ctx, "expired", []byte("1"), time.Nanosecond))
	require.NoError(t, ct.Set(ctx, "live", []byte("1"), time.Hour))
	require.NoError(t, s.Close())
	time.Sleep(time.Millisecond)

	out, err := env.run(t, "invalidate")
	require.NoError(t, err)
	assert.Equal(t, "✓ Invalidated cached filter data\n✓ Purged 1 expired cache entries\n", out)
}

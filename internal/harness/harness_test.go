package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/store"
)

func TestRun_TestdataScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario := &Scenario{
		Name: "mismatch",
		Flow: []FlowStep{{
			Name:   "in-stock",
			Query:  QueryProducts,
			Vars:   "filter_stock_status=instock",
			Expect: &Expect{Output: []any{10}},
		}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `flow step "in-stock": expected output [10], got [10,20,60,70]`)
}

func TestRun_Trace(t *testing.T) {
	scenario := &Scenario{
		Name: "trace",
		Setup: []SetupStep{
			{Invalidate: &Invalidate{}},
		},
		Flow: []FlowStep{
			{Name: "all", Query: QueryProducts},
			{Name: "stock", Query: QueryFacet, Facet: "stock", Vars: "categories=mugs"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, TraceEvent{Seq: 1, Kind: EventSetup, Name: ActionInvalidate}, result.Trace[0])
	assert.Equal(t, int64(2), result.Trace[1].Seq)
	assert.Equal(t, EventQuery, result.Trace[1].Kind)
	assert.Equal(t, ir.IRArray{ir.IRInt(10), ir.IRInt(20), ir.IRInt(30), ir.IRInt(40), ir.IRInt(60), ir.IRInt(70)}, result.Trace[1].Output)

	stock, ok := result.Output("stock")
	require.True(t, ok)
	assert.Equal(t, ir.IRObject{"outofstock": ir.IRInt(1)}, stock)

	_, ok = result.Output("missing")
	assert.False(t, ok)
}

func TestRun_FacetsOwnSelectionDropped(t *testing.T) {
	scenario := &Scenario{
		Name: "facets",
		Flow: []FlowStep{{
			Name:  "small-green",
			Query: QueryFacets,
			Vars:  "filter_size=small&filter_color=green",
		}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	out, ok := result.Output("small-green")
	require.True(t, ok)
	set, ok := out.(ir.IRObject)
	require.True(t, ok)

	attrs := set["attributes"].(ir.IRObject)
	assert.Equal(t, ir.IRObject{"red": ir.IRInt(4), "blue": ir.IRInt(3)}, attrs["pa_color"])
	assert.Equal(t, ir.IRObject{"large": ir.IRInt(1)}, attrs["pa_size"])

	// No product is both small and green.
	assert.Equal(t, ir.IRObject{}, set["price"])
	assert.Equal(t, ir.IRObject{}, set["stock"])
	assert.Contains(t, set["taxonomies"], "product_cat")
}

func TestRun_Clauses(t *testing.T) {
	scenario := &Scenario{
		Name: "clauses",
		Flow: []FlowStep{{Name: "sql", Query: QueryClauses, Vars: "filter_stock_status=instock"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	out, _ := result.Output("sql")
	obj := out.(ir.IRObject)
	assert.Contains(t, string(obj["sql"].(ir.IRString)), "meta_lookup.stock_status IN (?)")
	assert.Contains(t, obj["binds"], ir.IRString("instock"))
}

const miniFixture = `
taxonomies:
  - {name: product_cat, hierarchical: true, public: true, product: true}
terms:
  - {taxonomy: product_cat, slug: books, name: Books}
products:
  - {id: 1, type: simple, name: Novel, min_price: "9", max_price: "9", terms: {product_cat: [books]}}
  - {id: 2, type: simple, name: Atlas, min_price: "30", max_price: "30"}
`

func TestRun_FixtureFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mini.yaml"), []byte(miniFixture), 0644))
	scenarioPath := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(`
name: mini
fixture: mini.yaml
flow:
  - query: products
    vars: categories=books
    expect:
      output: [1]
  - query: facet
    facet: price
    expect:
      output: {min_price: "9", max_price: "30"}
  - query: facet
    facet: taxonomy
    taxonomy: product_cat
    expect:
      output: {books: 1}
`), 0644))

	scenario, err := LoadScenario(scenarioPath)
	require.NoError(t, err)
	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name     string
		scenario *Scenario
		want     string
	}{
		{
			name: "missing fixture",
			scenario: &Scenario{
				Name:    "x",
				Fixture: filepath.Join(t.TempDir(), "missing.yaml"),
				Flow:    []FlowStep{{Name: "a", Query: QueryProducts}},
			},
			want: "failed to read fixture",
		},
		{
			name: "unknown product term",
			scenario: &Scenario{
				Name: "x",
				Setup: []SetupStep{{SaveProduct: &ir.Product{
					ID:    80,
					Type:  ir.ProductTypeSimple,
					Name:  "Sock",
					Terms: map[string][]string{"product_cat": {"socks"}},
				}}},
				Flow: []FlowStep{{Name: "a", Query: QueryProducts}},
			},
			want: "failed to execute setup",
		},
		{
			name: "unknown term parent",
			scenario: &Scenario{
				Name: "x",
				Setup: []SetupStep{{SaveTerm: &store.FixtureTerm{
					Taxonomy: "product_cat",
					Slug:     "scarves",
					Name:     "Scarves",
					Parent:   "knitwear",
				}}},
				Flow: []FlowStep{{Name: "a", Query: QueryProducts}},
			},
			want: `unknown parent "knitwear"`,
		},
		{
			name: "unknown facet",
			scenario: &Scenario{
				Name: "x",
				Flow: []FlowStep{{Name: "a", Query: QueryFacet, Facet: "colour"}},
			},
			want: `flow step "a": unknown filter type "colour"`,
		},
		{
			name: "bad vars",
			scenario: &Scenario{
				Name: "x",
				Flow: []FlowStep{{Name: "a", Query: QueryProducts, Vars: "%zz"}},
			},
			want: `flow step "a"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(tt.scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConvertToIRValue(t *testing.T) {
	v, err := convertToIRValue(map[string]any{
		"ids":   []any{1, int64(2)},
		"price": 8.5,
		"whole": 60.0,
		"on":    true,
		"name":  "x",
	})
	require.NoError(t, err)

	obj := v.(ir.IRObject)
	assert.Equal(t, ir.IRArray{ir.IRInt(1), ir.IRInt(2)}, obj["ids"])
	assert.True(t, obj["price"].(ir.IRDecimal).Decimal().Equal(decimal.RequireFromString("8.5")))
	assert.Equal(t, ir.IRInt(60), obj["whole"])
	assert.Equal(t, ir.IRBool(true), obj["on"])
	assert.Equal(t, ir.IRString("x"), obj["name"])

	_, err = convertToIRValue([]any{nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array[0]")

	_, err = convertToIRValue(struct{}{})
	require.Error(t, err)
}

package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")

	content := `
name: test_scenario
description: "Test scenario for validation"
fixture: catalog.yaml
setup:
  - delete_transients: 30
  - save_term: {taxonomy: product_cat, slug: scarves, name: Scarves, parent: accessories}
flow:
  - query: products
    vars: filter_color=red
    expect:
      output: [10, 20]
  - name: colors
    query: facet
    facet: attribute
    taxonomy: pa_color
assertions:
  - type: different_output
    steps: [step-1, colors]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, filepath.Join(dir, "catalog.yaml"), scenario.Fixture)
	require.Len(t, scenario.Setup, 2)
	assert.Equal(t, ActionDeleteTransients, scenario.Setup[0].Action())
	assert.Equal(t, "accessories", scenario.Setup[1].SaveTerm.Parent)
	require.Len(t, scenario.Flow, 2)
	assert.Equal(t, "step-1", scenario.Flow[0].Name, "unnamed steps get a default name")
	assert.Equal(t, []any{10, 20}, scenario.Flow[0].Expect.Output)
	assert.Equal(t, "pa_color", scenario.Flow[1].Taxonomy)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
flow:
  - query: products
    varz: filter_color=red
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "flow: [{query: products}]",
			want: "name is required",
		},
		{
			name: "empty flow",
			yaml: "name: x",
			want: "flow must have at least one step",
		},
		{
			name: "unknown query",
			yaml: "name: x\nflow: [{query: orders}]",
			want: "query must be one of",
		},
		{
			name: "unknown facet",
			yaml: "name: x\nflow: [{query: facet, facet: colour}]",
			want: "facet must be one of",
		},
		{
			name: "attribute without taxonomy",
			yaml: "name: x\nflow: [{query: facet, facet: attribute}]",
			want: "attribute facet requires taxonomy",
		},
		{
			name: "duplicate step name",
			yaml: "name: x\nflow: [{name: a, query: products}, {name: a, query: archive}]",
			want: `duplicate name "a"`,
		},
		{
			name: "setup without action",
			yaml: "name: x\nsetup: [{}]\nflow: [{query: products}]",
			want: "exactly one action is required",
		},
		{
			name: "setup with two actions",
			yaml: "name: x\nsetup: [{delete_transients: 30, invalidate: {}}]\nflow: [{query: products}]",
			want: "exactly one action is required",
		},
		{
			name: "assertion without type",
			yaml: "name: x\nflow: [{query: products}]\nassertions: [{steps: [step-1]}]",
			want: "type is required",
		},
		{
			name: "assertion on unknown step",
			yaml: "name: x\nflow: [{query: products}]\nassertions: [{type: same_output, steps: [step-1, step-2]}]",
			want: `unknown step "step-2"`,
		},
		{
			name: "comparison with one step",
			yaml: "name: x\nflow: [{query: products}]\nassertions: [{type: same_output, steps: [step-1]}]",
			want: "requires at least two steps",
		},
		{
			name: "sql_contains on a products step",
			yaml: "name: x\nflow: [{query: products}]\nassertions: [{type: sql_contains, step: step-1, contains: [x]}]",
			want: "requires a clauses step",
		},
		{
			name: "sql_contains without substrings",
			yaml: "name: x\nflow: [{query: clauses}]\nassertions: [{type: sql_contains, step: step-1}]",
			want: "requires contains or excludes",
		},
		{
			name: "unknown assertion type",
			yaml: "name: x\nflow: [{query: products}]\nassertions: [{type: trace_order}]",
			want: `unknown assertion type "trace_order"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)
		assert.NotEmpty(t, scenario.Flow, path)
	}
}

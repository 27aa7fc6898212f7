package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: in-stock
description: In-stock listing of the default catalog.
flow:
  - name: in-stock
    query: products
    vars: filter_stock_status=instock
    expect:
      output: [10, 20, 60, 70]
`

const failingScenario = `name: wrong-count
flow:
  - name: stock
    query: facet
    facet: stock
    expect:
      output: {instock: 1}
`

func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestTestCommand_Pass(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"in-stock.yaml": passingScenario})

	out, err := execute(t, t.Context(), "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ in-stock")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_Fail(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"in-stock.yaml":    passingScenario,
		"wrong-count.yaml": failingScenario,
	})

	out, err := execute(t, t.Context(), "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong-count")
	assert.Contains(t, out, `flow step "stock": expected output`)
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommand_Filter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"in-stock.yaml":    passingScenario,
		"wrong-count.yaml": failingScenario,
	})

	out, err := execute(t, t.Context(), "test", dir, "--filter", "in-*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")

	out, err = execute(t, t.Context(), "test", dir, "--filter", "nothing-*")
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTestCommand_Golden(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"in-stock.yaml": passingScenario})
	golden := filepath.Join(dir, "golden", "in-stock.golden")

	_, err := execute(t, t.Context(), "test", dir, "--update")
	require.NoError(t, err)
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario":"in-stock"`)

	_, err = execute(t, t.Context(), "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario":"tampered"}`), 0644))
	out, err := execute(t, t.Context(), "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_JSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"in-stock.yaml":    passingScenario,
		"wrong-count.yaml": failingScenario,
	})

	out, err := execute(t, t.Context(), "--format", "json", "test", dir)
	require.Error(t, err)

	var result TestResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Total)
}

func TestTestCommand_BadScenario(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"broken.yaml": "name: broken\nflow: []\n"})

	out, err := execute(t, t.Context(), "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommand_MissingDirectory(t *testing.T) {
	_, err := execute(t, t.Context(), "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "restock.golden"), goldenFilePath(filepath.Join("scenarios", "restock.yaml")))
}

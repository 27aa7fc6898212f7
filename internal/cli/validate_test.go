package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "validate", env.fixture(t))
	require.NoError(t, err)
	assert.Equal(t, "✓ Config and 1 fixture(s) valid\n", out)

	out, err = env.run(t, "--format", "json", "validate")
	require.NoError(t, err)
	var result ValidationResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	assert.Zero(t, result.Fixtures)
}

func TestValidateCommand_BadFixture(t *testing.T) {
	env := newTestEnv(t)
	bad := filepath.Join(env.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("products: [\n"), 0644))

	out, err := env.run(t, "validate", env.fixture(t), bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 validation error(s)")
	assert.Contains(t, out, "✗ "+bad+": ")
}

func TestValidateCommand_BadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "facets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: oracle\n  dsn: shop\n"), 0644))

	out, err := execute(t, t.Context(), "--config", path, "--format", "json", "validate")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ValidationResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalid, resp.Error.Code)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, path, result.Errors[0].Source)
	assert.Contains(t, result.Errors[0].Field, "database.driver")
}

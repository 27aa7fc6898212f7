// Package cachetest holds the behaviour every cache.Backend must satisfy.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/facets/internal/cache"
)

// Run exercises a backend returned by newBackend. Each subtest gets a fresh
// backend.
func Run(t *testing.T, newBackend func(t *testing.T) cache.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		b := newBackend(t)
		_, ok, err := b.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set get delete", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Set(ctx, "k", []byte(`{"a":1}`), 0))

		got, ok, err := b.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, `{"a":1}`, string(got))

		require.NoError(t, b.Delete(ctx, "k"))
		_, ok, err = b.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, b.Delete(ctx, "k"), "deleting a missing key is not an error")
	})

	t.Run("overwrite", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Set(ctx, "k", []byte("one"), time.Hour))
		require.NoError(t, b.Set(ctx, "k", []byte("two"), time.Hour))

		got, ok, err := b.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "two", string(got))
	})

	t.Run("version stable until bumped", func(t *testing.T) {
		b := newBackend(t)
		v1, err := b.Version(ctx, "filter_data")
		require.NoError(t, err)
		require.NotEmpty(t, v1)

		again, err := b.Version(ctx, "filter_data")
		require.NoError(t, err)
		assert.Equal(t, v1, again)

		bumped, err := b.Bump(ctx, "filter_data")
		require.NoError(t, err)
		assert.NotEqual(t, v1, bumped)

		current, err := b.Version(ctx, "filter_data")
		require.NoError(t, err)
		assert.Equal(t, bumped, current)
	})

	t.Run("namespaces independent", func(t *testing.T) {
		b := newBackend(t)
		other, err := b.Version(ctx, "other")
		require.NoError(t, err)

		_, err = b.Bump(ctx, "filter_data")
		require.NoError(t, err)

		after, err := b.Version(ctx, "other")
		require.NoError(t, err)
		assert.Equal(t, other, after)
	})

	t.Run("json helpers", func(t *testing.T) {
		b := newBackend(t)
		type payload struct {
			Version string `json:"version"`
			Value   []int  `json:"value"`
		}
		require.NoError(t, cache.SetJSON(ctx, b, "j", payload{Version: "7", Value: []int{1, 2}}, 0))

		var got payload
		ok, err := cache.GetJSON(ctx, b, "j", &got)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, payload{Version: "7", Value: []int{1, 2}}, got)

		require.NoError(t, b.Set(ctx, "bad", []byte("not json"), 0))
		ok, err = cache.GetJSON(ctx, b, "bad", &got)
		require.NoError(t, err)
		assert.False(t, ok, "undecodable value is a miss")
	})
}

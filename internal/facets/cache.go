package facets

import (
	"context"

	"github.com/roach88/facets/internal/cache"
	"github.com/roach88/facets/internal/metrics"
)

// Namespace is the cache version namespace of facet results.
const Namespace = "filter_data"

// entry is a cached facet result stamped with the namespace version it
// was computed under.
type entry[T any] struct {
	Version string `json:"version"`
	Value   T      `json:"value"`
}

type emptier interface {
	IsEmpty() bool
}

// Cacheable reports whether a facet result may be written to or served
// from the cache. Empty results never are.
func Cacheable(v any) bool {
	if e, ok := v.(emptier); ok {
		return !e.IsEmpty()
	}
	return v != nil
}

// version returns the current namespace version. ok is false when the
// backend is unavailable, in which case the cache is bypassed.
func (f *FilterData) version(ctx context.Context) (string, bool) {
	v, err := f.cache.Version(ctx, Namespace)
	if err != nil {
		f.logger.Warn("facet cache version unavailable", "error", err)
		return "", false
	}
	return v, true
}

func readCached[T any](ctx context.Context, f *FilterData, key, version string) (T, bool) {
	var e entry[T]
	ok, err := cache.GetJSON(ctx, f.cache, key, &e)
	if err != nil {
		f.logger.Warn("facet cache read failed", "key", key, "error", err)
	}
	hit := ok && e.Version == version && Cacheable(e.Value)
	metrics.Hit(metrics.CacheFilterData, hit)
	if !hit {
		var zero T
		return zero, false
	}
	return e.Value, true
}

func writeCached[T any](ctx context.Context, f *FilterData, key, version string, value T) {
	if !Cacheable(value) {
		return
	}
	if err := cache.SetJSON(ctx, f.cache, key, entry[T]{Version: version, Value: value}, f.ttl); err != nil {
		f.logger.Warn("facet cache write failed", "key", key, "error", err)
	}
}

// Package metrics holds the Prometheus collectors of the filter engine.
// Collectors register with the default registry at init; the HTTP server
// exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache names used as the "cache" label.
const (
	CacheFilterData = "filter_data"
	CacheHierarchy  = "hierarchy"
	CacheProductIDs = "product_ids"
	CacheChildren   = "children"
)

var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facets_cache_hits_total",
		Help: "Cache hits by cache.",
	}, []string{"cache"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facets_cache_misses_total",
		Help: "Cache misses by cache.",
	}, []string{"cache"})

	FacetComputeSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "facets_compute_seconds",
		Help:    "Time spent computing one facet after a cache miss.",
		Buckets: prometheus.DefBuckets,
	}, []string{"filter_type"})

	HierarchyRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facets_hierarchy_rebuilds_total",
		Help: "Hierarchy maps rebuilt from terms.",
	}, []string{"taxonomy"})

	Invalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facets_cache_invalidations_total",
		Help: "Facet cache version bumps.",
	})

	ClauseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facets_clause_errors_total",
		Help: "Filter dimensions left unmodified after a lookup error.",
	}, []string{"dimension"})
)

// Hit records a hit or a miss on cache.
func Hit(cache string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cache).Inc()
		return
	}
	CacheMisses.WithLabelValues(cache).Inc()
}

// Package facets computes filter facet counts over the currently filtered
// product set: price range, stock status counts, rating histogram, and term
// counts for one attribute or taxonomy.
//
// Every facet is computed the same way:
//
//  1. The Pre hook may supply the result, bypassing everything below.
//  2. A cached result is served when its version matches the current
//     filter_data namespace version and it is not empty.
//  3. Otherwise the product-ID working set is resolved (memoized per
//     query-var shape) and one aggregate query runs against it.
//  4. The Post hook may replace the result.
//  5. The result is cached, version-stamped, unless it is empty.
//
// Empty results are never cached (see Cacheable), so a facet with no
// matches is recomputed on every call. Invalidation bumps the namespace
// version; stale entries are ignored rather than deleted.
package facets

// Package harness runs filter scenarios against a seeded catalog.
//
// A scenario is a YAML file naming a catalog fixture, shop options, setup
// steps that mutate the catalog (saving products and terms, deleting
// transients, invalidating caches), and a flow of queries whose outputs
// are checked against expectations:
//
//	name: stock-filter
//	flow:
//	  - name: in-stock
//	    query: products
//	    vars: filter_stock_status=instock
//	    expect:
//	      output: [10, 20, 60, 70]
//
// Every scenario runs against a fresh in-memory store and in-memory cache,
// through the same engine.Engine the server uses, so setup steps exercise
// the real invalidation path.
//
// # Outputs
//
// Query outputs are normalized to IR values so they can be compared and
// snapshotted as canonical JSON:
//
//   - products, archive: array of product IDs
//   - facet price: {"max_price": "60", "min_price": "8.5"}, bounds omitted when absent
//   - facet stock: {status: count}
//   - facet rating: [{"count": n, "rating": r}], highest rating first
//   - facet attribute, facet taxonomy: {term slug: count}
//   - facets: {"attributes": {taxonomy: {slug: count}}, "price": ..., "rating": ...,
//     "stock": ..., "taxonomies": {taxonomy: {slug: count}}}
//   - clauses: {"binds": [...], "sql": "..."}
//
// Term counts are keyed by slug rather than term ID so golden files do not
// depend on ID assignment.
//
// # Golden files
//
// RunWithGolden compares a scenario's trace with testdata/golden/<name>.golden
// using goldie. Regenerate with:
//
//	go test ./internal/harness -update
package harness

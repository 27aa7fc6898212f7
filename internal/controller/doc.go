// Package controller connects the filter engine to catalog events and to
// the main product listing.
//
// CacheController invalidates facet results when products change and drops
// hierarchy data when terms change. MainQueryController narrows the main
// product-archive query with the same stock and taxonomy semantics the facet
// counts use, so the grid and the counts always agree.
package controller

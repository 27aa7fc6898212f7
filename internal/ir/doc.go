// Package ir defines the catalog and filter-selection types shared by the
// clause builder, the facet counter and the store.
//
// Query vars are converted to IR values before hashing so that two requests
// with the same filter shape produce the same cache key, regardless of
// parameter order, value order or Unicode normalization form.
//
// # Critical Patterns
//
// Canonical encoding: cache keys are computed over RFC 8785 canonical JSON
// (sorted keys by UTF-16 code units, NFC strings, no HTML escaping, no floats).
//
// Domain separation: every key family hashes under its own domain prefix so
// a product-ID working set key can never collide with a facet key.
package ir

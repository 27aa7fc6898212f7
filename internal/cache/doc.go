// Package cache provides the durable key/value stores behind the hierarchy
// cache and the facet-count cache.
//
// A Backend stores opaque byte values with an optional lifetime and keeps a
// version token per namespace. Facet entries are stamped with the token of
// their namespace when written; bumping the token invalidates every entry of
// the namespace at once without enumerating or deleting them.
//
// Backends:
//   - Memory: in-process, for tests and single-process deployments
//   - Redis: shared across processes (go-redis/v9, INCR version tokens)
//   - store.CacheTable: the catalog database's cache_entries table
//
// Read failures are reported to the caller, who treats them as misses.
package cache

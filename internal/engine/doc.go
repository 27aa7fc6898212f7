// Package engine assembles the filter engine from its parts.
//
// An Engine owns one catalog store and one durable cache backend, and wires
// the services on top of them in dependency order:
//
//	params.Params        parameter vocabulary
//	hierarchy.Data       term hierarchies (durable cache + in-process memo)
//	clauses.Builder      filter clauses, tax-adjusted when tax is enabled
//	facets.FilterData    cached facet counts
//	controller.*         invalidation and main-query narrowing
//
// The cache controller is registered on the store at construction, so
// product saves, term saves and transient deletions invalidate cached facet
// data for every consumer of the engine.
//
// Engine adds the operations that span several facets: Facets computes
// every facet of a query concurrently, each without its own selection;
// Clauses renders the SQL a query would run.
//
// Open builds an Engine from config.Config, choosing the store driver and
// cache backend. New takes an already opened store and backend, which is
// what tests and the harness use.
package engine

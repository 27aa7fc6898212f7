// Package clauses narrows a product query by the active filters.
//
// A Builder turns filter selections into queryir predicates appended to an
// Args value (the query's joins and WHERE terms). Dimensions combine with
// AND; within a dimension, alternatives combine with OR. Nothing is spliced
// into SQL text: the final query is compiled by querysql.
//
// Unresolvable selections fail closed. An invalid stock status, an
// attribute whose slugs match no terms, or a registered taxonomy whose
// slugs match no terms makes the query match nothing. Unregistered
// attribute and taxonomy names are ignored. Options.FailOpenTaxonomies
// restores the older behaviour of leaving the query unchanged when no
// taxonomy term resolves.
//
// Lookup errors (terms, tax rates, hierarchy) are returned as *Error by the
// per-dimension methods. The orchestration methods log them and leave that
// dimension unmodified.
package clauses

// Package queryir provides the query intermediate representation used to
// narrow product queries and to count facets.
//
// Filters are never assembled by string concatenation. The clause builder
// produces predicate trees; the querysql package renders them to SQL with
// every literal bound as a parameter.
//
// ARCHITECTURE:
//
//	[query vars] → [clause builder] → [Query IR] → [SQL compiler] → SQLite / PostgreSQL
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, so compilers can switch
// exhaustively:
//
//	switch q := query.(type) {
//	case Select:
//	    // Handle select
//	case Union:
//	    // Handle union
//	default:
//	    // Impossible - compiler knows all Query types
//	}
//
// Both value and pointer forms of every node are accepted.
//
// EXPRESSION SAFETY:
//
// Column, GROUP BY and ORDER BY entries are expressions written into SQL
// text. Validate restricts them to identifiers, a small set of aggregates
// and aliases. Literal values exist only as ir.IRValue inside predicates.
//
// CRITICAL PATTERNS:
//
// IRValue types only: literals use ir.IRValue (no floats). Prices travel as
// ir.IRDecimal so tax-adjusted bounds keep their exact value until bound.
//
// Fail closed: an In with no values and the False predicate compile to 1=0,
// so an unresolvable selection narrows to nothing instead of widening.
package queryir

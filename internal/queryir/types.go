package queryir

import "github.com/roach88/facets/internal/ir"

// Query represents an abstract query in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
//
// Query types:
//   - Select: table access with joins, filtering, grouping and ordering
//   - Union: set union of two or more queries with the same column shape
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
// Predicates are used in Select.Filter, Select.Having and TableJoin.On.
//
// Predicate types:
//   - Compare: expression <op> literal value
//   - ColumnEquals: expression = expression (join conditions, correlation)
//   - In: expression IN (literal values)
//   - InQuery: expression IN (subquery)
//   - Exists: EXISTS (subquery)
//   - And, Or: conjunction and disjunction
//   - True, False: constant predicates (1=1, 1=0)
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "<>"
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Valid reports whether op is one of the supported comparison operators.
func (op Op) Valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// JoinKind selects between inner and left outer joins.
type JoinKind string

const (
	JoinInner JoinKind = "INNER"
	JoinLeft  JoinKind = "LEFT"
)

// Select represents table access with optional joins, filtering and grouping.
//
// Semantics:
//
//	SELECT <columns> FROM <from> [AS <alias>] <joins>
//	WHERE <filter> GROUP BY <group_by> HAVING <having> ORDER BY <order_by>
//
// Columns, GroupBy and OrderBy hold expressions, not values. Expressions are
// restricted to a safe grammar checked by Validate (qualified identifiers,
// a fixed set of aggregate functions, aliases). Values only ever appear in
// predicates, where the compiler turns them into bound parameters.
//
// Example:
//
//	Select{
//	  Columns: []string{"meta_lookup.stock_status", "COUNT(DISTINCT products.id) AS product_count"},
//	  From:    "products",
//	  Joins: []TableJoin{{
//	    Kind: JoinInner, Table: "product_meta_lookup", Alias: "meta_lookup",
//	    On: ColumnEquals{Left: "meta_lookup.product_id", Right: "products.id"},
//	  }},
//	  Filter:  In{Field: "products.id", Values: []ir.IRValue{ir.IRInt(10), ir.IRInt(11)}},
//	  GroupBy: []string{"meta_lookup.stock_status"},
//	}
type Select struct {
	Columns  []string    // Column expressions (required, no SELECT *)
	Distinct bool        // SELECT DISTINCT
	From     string      // Table name
	Alias    string      // Optional table alias
	Joins    []TableJoin // Joined tables in order
	Filter   Predicate   // WHERE conditions (nil = no filter)
	GroupBy  []string    // GROUP BY expressions
	Having   Predicate   // HAVING conditions (requires GroupBy)
	OrderBy  []string    // ORDER BY expressions, optionally suffixed ASC/DESC
}

func (Select) queryNode() {}

// Union represents the set union of queries.
//
// Semantics:
//
//	<q1> UNION <q2> UNION ...
//
// Members must not carry ORDER BY; ordering of a union is undefined.
type Union struct {
	Queries []Query
	All     bool // UNION ALL keeps duplicates
}

func (Union) queryNode() {}

// TableJoin joins one table into a Select.
type TableJoin struct {
	Kind  JoinKind  // JoinInner or JoinLeft
	Table string    // Table name
	Alias string    // Optional alias; joins are identified by Alias, else Table
	On    Predicate // Join condition (required)
}

// Name returns the identifier the join is referenced by.
func (j TableJoin) Name() string {
	if j.Alias != "" {
		return j.Alias
	}
	return j.Table
}

// Compare represents an expression compared to a literal value.
//
//	Compare{Field: "meta_lookup.max_price", Op: OpGe, Value: ir.IRDecimal(d)}
//
// Translates to SQL:
//
//	meta_lookup.max_price >= ?
//
// Value is always bound as a parameter and never interpolated.
type Compare struct {
	Field string
	Op    Op
	Value ir.IRValue
}

func (Compare) predicateNode() {}

// ColumnEquals compares two expressions for equality.
// Used for join conditions and correlated subqueries.
//
//	ColumnEquals{Left: "tr.object_id", Right: "products.id"}
type ColumnEquals struct {
	Left  string
	Right string
}

func (ColumnEquals) predicateNode() {}

// In represents membership in a literal value list.
//
// An empty Values list matches nothing and compiles to 1=0; an empty
// selection never widens a query.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// InQuery represents membership in the single-column result of a subquery.
//
//	products.id IN (SELECT product_or_parent_id FROM ...)
type InQuery struct {
	Field string
	Query Query
}

func (InQuery) predicateNode() {}

// Exists represents an EXISTS subquery, typically correlated through a
// ColumnEquals in its filter.
type Exists struct {
	Query Query
}

func (Exists) predicateNode() {}

// And represents a conjunction. An empty And is true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction. An empty Or is false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// True always matches (1=1).
type True struct{}

func (True) predicateNode() {}

// False never matches (1=0). Fail-closed filters use it.
type False struct{}

func (False) predicateNode() {}

// IntValues converts ids to IR values for In predicates.
func IntValues(ids []int64) []ir.IRValue {
	out := make([]ir.IRValue, len(ids))
	for i, id := range ids {
		out[i] = ir.IRInt(id)
	}
	return out
}

// StringValues converts strings to IR values for In predicates.
func StringValues(vals []string) []ir.IRValue {
	out := make([]ir.IRValue, len(vals))
	for i, v := range vals {
		out[i] = ir.IRString(v)
	}
	return out
}

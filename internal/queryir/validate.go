package queryir

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/facets/internal/ir"
)

// Expression grammar. Expressions are spliced into SQL text, so anything
// outside this grammar is rejected before compilation.
const (
	identPattern  = `[A-Za-z_][A-Za-z0-9_]*`
	columnPattern = identPattern + `(?:\.` + identPattern + `)?`
	exprPattern   = `(?:` + columnPattern + `|1|COUNT\(\*\)|(?:COUNT|MIN|MAX|SUM|AVG|ROUND)\((?:DISTINCT )?` + columnPattern + `\))`
)

var (
	identRe  = regexp.MustCompile(`^` + identPattern + `$`)
	exprRe   = regexp.MustCompile(`^` + exprPattern + `$`)
	columnRe = regexp.MustCompile(`^` + exprPattern + `(?: AS ` + identPattern + `)?$`)
	orderRe  = regexp.MustCompile(`^` + exprPattern + `(?: (?:ASC|DESC))?$`)
)

// ValidationResult contains the safety analysis of a query.
type ValidationResult struct {
	// IsSafe is true when every expression matches the expression grammar
	// and every node is well formed.
	IsSafe bool

	// Problems lists each violation found. Empty when IsSafe is true.
	Problems []string
}

// Err returns a *ValidationError when the query is unsafe, nil otherwise.
func (r ValidationResult) Err() error {
	if r.IsSafe {
		return nil
	}
	return &ValidationError{Problems: r.Problems}
}

// ValidationError reports every problem found in a query.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validate checks that a query is well formed and that every expression
// spliced into SQL text belongs to the safe expression grammar:
//
//  1. Table names and aliases are plain identifiers
//  2. Field expressions are qualified identifiers, the literal 1, or one of
//     COUNT/MIN/MAX/SUM/AVG/ROUND over a column (optionally DISTINCT)
//  3. Columns may carry "AS alias"; ORDER BY entries may carry ASC/DESC
//  4. Literal values appear only inside predicates and are scalar
//  5. Every join has an ON predicate; HAVING requires GROUP BY
//  6. Union members are Selects without ORDER BY, all with the same width
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateQuery(query)

	return ValidationResult{
		IsSafe:   len(v.problems) == 0,
		Problems: v.problems,
	}
}

// ValidatePredicate checks a standalone predicate, such as a WHERE fragment
// assembled by the clause builder.
func ValidatePredicate(p Predicate) ValidationResult {
	v := &validator{problems: []string{}}
	v.validatePredicate(p)

	return ValidationResult{
		IsSafe:   len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Union:
		v.validateUnion(query)
	case *Union:
		v.validateUnion(*query)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if len(sel.Columns) == 0 {
		v.addProblem("select from %q has no columns", sel.From)
	}
	for _, col := range sel.Columns {
		if !columnRe.MatchString(col) {
			v.addProblem("unsafe column expression %q", col)
		}
	}
	if !identRe.MatchString(sel.From) {
		v.addProblem("unsafe table name %q", sel.From)
	}
	if sel.Alias != "" && !identRe.MatchString(sel.Alias) {
		v.addProblem("unsafe table alias %q", sel.Alias)
	}

	for _, j := range sel.Joins {
		v.validateJoin(j)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}

	for _, g := range sel.GroupBy {
		if !exprRe.MatchString(g) {
			v.addProblem("unsafe GROUP BY expression %q", g)
		}
	}
	if sel.Having != nil {
		if len(sel.GroupBy) == 0 {
			v.addProblem("HAVING without GROUP BY on %q", sel.From)
		}
		v.validatePredicate(sel.Having)
	}
	for _, o := range sel.OrderBy {
		if !orderRe.MatchString(o) {
			v.addProblem("unsafe ORDER BY expression %q", o)
		}
	}
}

func (v *validator) validateUnion(u Union) {
	if len(u.Queries) == 0 {
		v.addProblem("empty union")
		return
	}

	width := -1
	for i, q := range u.Queries {
		sel, ok := asSelect(q)
		if !ok {
			v.addProblem("union member %d is %T, want Select", i, q)
			continue
		}
		if len(sel.OrderBy) > 0 {
			v.addProblem("union member %d has ORDER BY", i)
		}
		if width >= 0 && len(sel.Columns) != width {
			v.addProblem("union member %d has %d columns, want %d", i, len(sel.Columns), width)
		}
		width = len(sel.Columns)
		v.validateSelect(sel)
	}
}

func (v *validator) validateJoin(j TableJoin) {
	if j.Kind != JoinInner && j.Kind != JoinLeft {
		v.addProblem("unknown join kind %q", j.Kind)
	}
	if !identRe.MatchString(j.Table) {
		v.addProblem("unsafe join table %q", j.Table)
	}
	if j.Alias != "" && !identRe.MatchString(j.Alias) {
		v.addProblem("unsafe join alias %q", j.Alias)
	}
	if j.On == nil {
		v.addProblem("join %q has no ON predicate", j.Name())
		return
	}
	v.validatePredicate(j.On)
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.addProblem("nil predicate")
	case Compare:
		v.validateCompare(pred)
	case *Compare:
		v.validateCompare(*pred)
	case ColumnEquals:
		v.validateExpr(pred.Left)
		v.validateExpr(pred.Right)
	case *ColumnEquals:
		v.validateExpr(pred.Left)
		v.validateExpr(pred.Right)
	case In:
		v.validateIn(pred)
	case *In:
		v.validateIn(*pred)
	case InQuery:
		v.validateExpr(pred.Field)
		v.validateQuery(pred.Query)
	case *InQuery:
		v.validateExpr(pred.Field)
		v.validateQuery(pred.Query)
	case Exists:
		v.validateQuery(pred.Query)
	case *Exists:
		v.validateQuery(pred.Query)
	case And:
		v.validatePredicates(pred.Predicates)
	case *And:
		v.validatePredicates(pred.Predicates)
	case Or:
		v.validatePredicates(pred.Predicates)
	case *Or:
		v.validatePredicates(pred.Predicates)
	case True, *True, False, *False:
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}

func (v *validator) validatePredicates(preds []Predicate) {
	for _, p := range preds {
		v.validatePredicate(p)
	}
}

func (v *validator) validateExpr(expr string) {
	if !exprRe.MatchString(expr) {
		v.addProblem("unsafe expression %q", expr)
	}
}

func (v *validator) validateCompare(c Compare) {
	v.validateExpr(c.Field)
	if !c.Op.Valid() {
		v.addProblem("unknown operator %q on %q", c.Op, c.Field)
	}
	v.validateScalar(c.Field, c.Value)
}

func (v *validator) validateIn(in In) {
	v.validateExpr(in.Field)
	for _, val := range in.Values {
		v.validateScalar(in.Field, val)
	}
}

func (v *validator) validateScalar(field string, val ir.IRValue) {
	switch val.(type) {
	case ir.IRString, ir.IRInt, ir.IRBool, ir.IRDecimal:
	case nil:
		v.addProblem("field %q compared to NULL", field)
	default:
		v.addProblem("field %q compared to non-scalar %T", field, val)
	}
}

func asSelect(q Query) (Select, bool) {
	switch query := q.(type) {
	case Select:
		return query, true
	case *Select:
		if query != nil {
			return *query, true
		}
	}
	return Select{}, false
}

package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/queryir"
)

// Dialect selects the placeholder style of the target database.
type Dialect string

const (
	// SQLite uses "?" placeholders.
	SQLite Dialect = "sqlite"
	// Postgres uses "$1", "$2", ... placeholders.
	Postgres Dialect = "postgres"
)

// ParseDialect maps a database driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "pgx":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unknown database driver %q", driver)
	}
}

// SQLCompiler compiles QueryIR to parameterized SQL.
//
// CRITICAL: All values are parameterized (never interpolated). The only
// text spliced into SQL is identifiers and expressions that passed
// queryir.Validate.
type SQLCompiler struct {
	Dialect Dialect
}

// NewSQLCompiler creates a compiler for the given dialect.
func NewSQLCompiler(dialect Dialect) *SQLCompiler {
	if dialect == "" {
		dialect = SQLite
	}
	return &SQLCompiler{Dialect: dialect}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple.
//
// The query is validated first; unsafe expressions are rejected with a
// *queryir.ValidationError.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if err := queryir.Validate(q).Err(); err != nil {
		return "", nil, err
	}

	w := &writer{}
	if err := w.query(q); err != nil {
		return "", nil, err
	}
	return c.finish(w)
}

// CompilePredicate converts a standalone predicate to a WHERE fragment.
func (c *SQLCompiler) CompilePredicate(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "1=1", nil, nil
	}
	if err := queryir.ValidatePredicate(p).Err(); err != nil {
		return "", nil, err
	}

	w := &writer{}
	if err := w.predicate(p, false); err != nil {
		return "", nil, err
	}
	return c.finish(w)
}

// Rebind rewrites "?" placeholders for the compiler's dialect. Store code
// with hand-written SQL uses it so a single statement serves both drivers.
func (c *SQLCompiler) Rebind(query string) string {
	if c.Dialect != Postgres {
		return query
	}
	return rebindDollar(query)
}

func (c *SQLCompiler) finish(w *writer) (string, []any, error) {
	sql := w.sb.String()
	if c.Dialect == Postgres {
		sql = rebindDollar(sql)
	}
	return sql, w.params, nil
}

// rebindDollar numbers "?" placeholders as $1..$n. Compiled SQL never
// contains string literals, so every "?" is a placeholder.
func rebindDollar(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// writer accumulates SQL text and parameters in order.
type writer struct {
	sb     strings.Builder
	params []any
}

func (w *writer) write(s string) {
	w.sb.WriteString(s)
}

func (w *writer) bind(v ir.IRValue) error {
	param, err := irValueToParam(v)
	if err != nil {
		return err
	}
	w.sb.WriteByte('?')
	w.params = append(w.params, param)
	return nil
}

func (w *writer) query(q queryir.Query) error {
	switch query := q.(type) {
	case queryir.Select:
		return w.selectQuery(query)
	case *queryir.Select:
		return w.selectQuery(*query)
	case queryir.Union:
		return w.union(query)
	case *queryir.Union:
		return w.union(*query)
	default:
		return fmt.Errorf("unsupported query type: %T", q)
	}
}

// selectQuery renders
// SELECT cols FROM t [alias] joins WHERE f GROUP BY g HAVING h ORDER BY o.
func (w *writer) selectQuery(q queryir.Select) error {
	w.write("SELECT ")
	if q.Distinct {
		w.write("DISTINCT ")
	}
	w.write(strings.Join(q.Columns, ", "))
	w.write(" FROM ")
	w.write(q.From)
	if q.Alias != "" {
		w.write(" AS ")
		w.write(q.Alias)
	}

	for _, j := range q.Joins {
		w.write(" ")
		w.write(string(j.Kind))
		w.write(" JOIN ")
		w.write(j.Table)
		if j.Alias != "" {
			w.write(" AS ")
			w.write(j.Alias)
		}
		w.write(" ON ")
		if err := w.predicate(j.On, false); err != nil {
			return fmt.Errorf("compile join %s: %w", j.Name(), err)
		}
	}

	if q.Filter != nil {
		w.write(" WHERE ")
		if err := w.predicate(q.Filter, false); err != nil {
			return fmt.Errorf("compile filter: %w", err)
		}
	}
	if len(q.GroupBy) > 0 {
		w.write(" GROUP BY ")
		w.write(strings.Join(q.GroupBy, ", "))
	}
	if q.Having != nil {
		w.write(" HAVING ")
		if err := w.predicate(q.Having, false); err != nil {
			return fmt.Errorf("compile having: %w", err)
		}
	}
	if len(q.OrderBy) > 0 {
		w.write(" ORDER BY ")
		w.write(strings.Join(q.OrderBy, ", "))
	}
	return nil
}

func (w *writer) union(u queryir.Union) error {
	sep := " UNION "
	if u.All {
		sep = " UNION ALL "
	}
	for i, q := range u.Queries {
		if i > 0 {
			w.write(sep)
		}
		if err := w.query(q); err != nil {
			return fmt.Errorf("compile union member %d: %w", i, err)
		}
	}
	return nil
}

// predicate renders p. nested is true when p is an operand of And/Or, in
// which case multi-term groups are parenthesized.
func (w *writer) predicate(p queryir.Predicate, nested bool) error {
	switch pred := p.(type) {
	case queryir.Compare:
		return w.compare(pred)
	case *queryir.Compare:
		return w.compare(*pred)
	case queryir.ColumnEquals:
		w.write(pred.Left + " = " + pred.Right)
	case *queryir.ColumnEquals:
		w.write(pred.Left + " = " + pred.Right)
	case queryir.In:
		return w.in(pred)
	case *queryir.In:
		return w.in(*pred)
	case queryir.InQuery:
		return w.subquery(pred.Field+" IN (", pred.Query)
	case *queryir.InQuery:
		return w.subquery(pred.Field+" IN (", pred.Query)
	case queryir.Exists:
		return w.subquery("EXISTS (", pred.Query)
	case *queryir.Exists:
		return w.subquery("EXISTS (", pred.Query)
	case queryir.And:
		return w.group(pred.Predicates, " AND ", "1=1", nested)
	case *queryir.And:
		return w.group(pred.Predicates, " AND ", "1=1", nested)
	case queryir.Or:
		return w.group(pred.Predicates, " OR ", "1=0", nested)
	case *queryir.Or:
		return w.group(pred.Predicates, " OR ", "1=0", nested)
	case queryir.True, *queryir.True:
		w.write("1=1")
	case queryir.False, *queryir.False:
		w.write("1=0")
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
	return nil
}

// compare renders "field op ?".
// CRITICAL: Value is NEVER interpolated - always parameterized.
func (w *writer) compare(c queryir.Compare) error {
	w.write(c.Field + " " + string(c.Op) + " ")
	if err := w.bind(c.Value); err != nil {
		return fmt.Errorf("convert value for %s: %w", c.Field, err)
	}
	return nil
}

// in renders "field IN (?, ?)". An empty list matches nothing.
func (w *writer) in(in queryir.In) error {
	if len(in.Values) == 0 {
		w.write("1=0")
		return nil
	}
	w.write(in.Field + " IN (")
	for i, v := range in.Values {
		if i > 0 {
			w.write(", ")
		}
		if err := w.bind(v); err != nil {
			return fmt.Errorf("convert value for %s: %w", in.Field, err)
		}
	}
	w.write(")")
	return nil
}

func (w *writer) subquery(prefix string, q queryir.Query) error {
	w.write(prefix)
	if err := w.query(q); err != nil {
		return err
	}
	w.write(")")
	return nil
}

func (w *writer) group(preds []queryir.Predicate, sep, empty string, nested bool) error {
	switch len(preds) {
	case 0:
		w.write(empty)
		return nil
	case 1:
		return w.predicate(preds[0], nested)
	}

	if nested {
		w.write("(")
	}
	for i, p := range preds {
		if i > 0 {
			w.write(sep)
		}
		if err := w.predicate(p, true); err != nil {
			return err
		}
	}
	if nested {
		w.write(")")
	}
	return nil
}

// irValueToParam converts an ir.IRValue to a Go native type for a SQL
// parameter. Booleans bind as 0/1 because flag columns are integers in both
// dialects. Decimals bind as their exact string form.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.IRDecimal:
		return val.Decimal().String(), nil
	case ir.IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}

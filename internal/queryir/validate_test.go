package queryir

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/facets/internal/ir"
)

func metaJoin() TableJoin {
	return TableJoin{
		Kind:  JoinInner,
		Table: "product_meta_lookup",
		Alias: "meta_lookup",
		On:    ColumnEquals{Left: "meta_lookup.product_id", Right: "products.id"},
	}
}

func TestValidate_SafeQuery(t *testing.T) {
	query := Select{
		Columns: []string{"meta_lookup.stock_status", "COUNT(DISTINCT products.id) AS product_count"},
		From:    "products",
		Joins:   []TableJoin{metaJoin()},
		Filter: And{Predicates: []Predicate{
			In{Field: "products.id", Values: IntValues([]int64{1, 2})},
			Compare{Field: "meta_lookup.max_price", Op: OpGe, Value: ir.IRDecimal(decimal.NewFromInt(10))},
		}},
		GroupBy: []string{"meta_lookup.stock_status"},
		OrderBy: []string{"meta_lookup.stock_status ASC"},
	}

	result := Validate(query)

	assert.True(t, result.IsSafe, "problems: %v", result.Problems)
	assert.Empty(t, result.Problems)
	assert.NoError(t, result.Err())
}

func TestValidate_PointerNodes(t *testing.T) {
	query := &Select{
		Columns: []string{"products.id"},
		From:    "products",
		Filter:  &Compare{Field: "products.status", Op: OpEq, Value: ir.IRString("publish")},
	}

	result := Validate(query)
	assert.True(t, result.IsSafe, "problems: %v", result.Problems)
}

func TestValidate_UnsafeExpressions(t *testing.T) {
	tests := []struct {
		name  string
		query Query
	}{
		{
			name:  "injected column",
			query: Select{Columns: []string{"id; DROP TABLE products"}, From: "products"},
		},
		{
			name:  "injected table",
			query: Select{Columns: []string{"id"}, From: "products p, terms"},
		},
		{
			name: "injected compare field",
			query: Select{Columns: []string{"id"}, From: "products",
				Filter: Compare{Field: "1=1 OR id", Op: OpEq, Value: ir.IRInt(1)}},
		},
		{
			name:  "unknown function",
			query: Select{Columns: []string{"LOAD_EXTENSION(id)"}, From: "products"},
		},
		{
			name:  "bad order direction",
			query: Select{Columns: []string{"id"}, From: "products", OrderBy: []string{"id SIDEWAYS"}},
		},
		{
			name: "unknown operator",
			query: Select{Columns: []string{"id"}, From: "products",
				Filter: Compare{Field: "id", Op: Op("LIKE"), Value: ir.IRString("%")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query)
			assert.False(t, result.IsSafe)
			assert.NotEmpty(t, result.Problems)

			err := result.Err()
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
}

func TestValidate_NoColumns(t *testing.T) {
	result := Validate(Select{From: "products"})

	assert.False(t, result.IsSafe)
	require.Len(t, result.Problems, 1)
	assert.Contains(t, result.Problems[0], "no columns")
}

func TestValidate_NilQuery(t *testing.T) {
	result := Validate(nil)
	assert.False(t, result.IsSafe)
}

func TestValidate_JoinWithoutOn(t *testing.T) {
	query := Select{
		Columns: []string{"products.id"},
		From:    "products",
		Joins:   []TableJoin{{Kind: JoinInner, Table: "product_meta_lookup"}},
	}

	result := Validate(query)
	assert.False(t, result.IsSafe)
	assert.Contains(t, result.Problems[0], "no ON predicate")
}

func TestValidate_HavingRequiresGroupBy(t *testing.T) {
	query := Select{
		Columns: []string{"product_id"},
		From:    "product_attributes_lookup",
		Having:  Compare{Field: "COUNT(DISTINCT term_id)", Op: OpEq, Value: ir.IRInt(2)},
	}

	result := Validate(query)
	assert.False(t, result.IsSafe)
	assert.Contains(t, result.Problems[0], "HAVING without GROUP BY")
}

func TestValidate_NonScalarValues(t *testing.T) {
	query := Select{
		Columns: []string{"id"},
		From:    "products",
		Filter: Or{Predicates: []Predicate{
			Compare{Field: "id", Op: OpEq, Value: nil},
			In{Field: "id", Values: []ir.IRValue{ir.IRArray{}}},
		}},
	}

	result := Validate(query)
	assert.False(t, result.IsSafe)
	assert.Len(t, result.Problems, 2)
}

func TestValidate_Union(t *testing.T) {
	member := func(variation bool) Select {
		return Select{
			Columns: []string{"product_or_parent_id"},
			From:    "product_attributes_lookup",
			Filter:  Compare{Field: "is_variation_attribute", Op: OpEq, Value: ir.IRBool(variation)},
		}
	}

	t.Run("valid", func(t *testing.T) {
		result := Validate(Union{Queries: []Query{member(false), member(true)}})
		assert.True(t, result.IsSafe, "problems: %v", result.Problems)
	})

	t.Run("width mismatch", func(t *testing.T) {
		wide := member(true)
		wide.Columns = append(wide.Columns, "product_id")
		result := Validate(Union{Queries: []Query{member(false), wide}})
		assert.False(t, result.IsSafe)
	})

	t.Run("member order by", func(t *testing.T) {
		ordered := member(true)
		ordered.OrderBy = []string{"product_or_parent_id"}
		result := Validate(Union{Queries: []Query{member(false), ordered}})
		assert.False(t, result.IsSafe)
	})

	t.Run("empty", func(t *testing.T) {
		assert.False(t, Validate(Union{}).IsSafe)
	})
}

func TestValidate_Subqueries(t *testing.T) {
	sub := Select{
		Columns: []string{"1"},
		From:    "term_relationships",
		Alias:   "tr",
		Filter:  ColumnEquals{Left: "tr.object_id", Right: "products.id"},
	}
	query := Select{
		Columns: []string{"products.id"},
		From:    "products",
		Filter: And{Predicates: []Predicate{
			Exists{Query: sub},
			InQuery{Field: "products.id", Query: Select{Columns: []string{"product_or_parent_id"}, From: "product_attributes_lookup"}},
		}},
	}
	assert.True(t, Validate(query).IsSafe)

	bad := query
	bad.Filter = Exists{Query: Select{Columns: []string{"1"}, From: "x y"}}
	assert.False(t, Validate(bad).IsSafe)
}

func TestValidatePredicate(t *testing.T) {
	assert.True(t, ValidatePredicate(False{}).IsSafe)
	assert.True(t, ValidatePredicate(In{Field: "meta_lookup.stock_status", Values: StringValues([]string{"instock"})}).IsSafe)
	assert.False(t, ValidatePredicate(nil).IsSafe)
}

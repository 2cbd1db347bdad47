package filter_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem/pkg/filter"
)

func mustParse(t *testing.T, m map[string]interface{}) filter.Expr {
	t.Helper()
	expr, err := filter.Parse(filter.Map(m))
	require.NoError(t, err)
	return expr
}

func TestParseShapes(t *testing.T) {
	// Plain equality
	expr := mustParse(t, map[string]interface{}{"type": "working"})
	assert.Equal(t, filter.Eq{Field: "type", Value: "working"}, expr)

	// List value becomes IN
	expr = mustParse(t, map[string]interface{}{"type": []interface{}{"a", "b"}})
	assert.Equal(t, filter.In{Field: "type", Values: []interface{}{"a", "b"}}, expr)

	// Nil value becomes IS NULL
	expr = mustParse(t, map[string]interface{}{"archived_at": nil})
	assert.Equal(t, filter.IsNull{Field: "archived_at"}, expr)

	// Operator object becomes Cmp
	expr = mustParse(t, map[string]interface{}{"score": map[string]interface{}{"gte": 0.5}})
	assert.Equal(t, filter.Cmp{Field: "score", Op: filter.OpGte, Value: 0.5}, expr)

	// Empty map means no filter
	expr, err := filter.Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, expr)
}

func TestParseRejectsUnknownOperator(t *testing.T) {
	_, err := filter.Parse(filter.Map{"score": map[string]interface{}{"between": []interface{}{1, 2}}})
	require.Error(t, err)
	var parseErr *filter.ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestMatchOperators(t *testing.T) {
	record := map[string]interface{}{
		"type":  "working",
		"score": 0.7,
		"name":  "Alice Smith",
		"metadata": map[string]interface{}{
			"scope": "private",
		},
	}

	tests := []struct {
		name   string
		filter map[string]interface{}
		want   bool
	}{
		{"eq match", map[string]interface{}{"type": "working"}, true},
		{"eq miss", map[string]interface{}{"type": "episodic"}, false},
		{"ne", map[string]interface{}{"type": map[string]interface{}{"ne": "episodic"}}, true},
		{"gt", map[string]interface{}{"score": map[string]interface{}{"gt": 0.5}}, true},
		{"gte boundary", map[string]interface{}{"score": map[string]interface{}{"gte": 0.7}}, true},
		{"lt miss", map[string]interface{}{"score": map[string]interface{}{"lt": 0.7}}, false},
		{"lte boundary", map[string]interface{}{"score": map[string]interface{}{"lte": 0.7}}, true},
		{"in", map[string]interface{}{"type": []interface{}{"working", "episodic"}}, true},
		{"in miss", map[string]interface{}{"type": []interface{}{"episodic"}}, false},
		{"nin", map[string]interface{}{"type": map[string]interface{}{"nin": []interface{}{"episodic"}}}, true},
		{"nin miss", map[string]interface{}{"type": map[string]interface{}{"nin": []interface{}{"working"}}}, false},
		{"like prefix", map[string]interface{}{"name": map[string]interface{}{"like": "Alice%"}}, true},
		{"like case-sensitive miss", map[string]interface{}{"name": map[string]interface{}{"like": "alice%"}}, false},
		{"ilike", map[string]interface{}{"name": map[string]interface{}{"ilike": "alice%"}}, true},
		{"like suffix", map[string]interface{}{"name": map[string]interface{}{"like": "%Smith"}}, true},
		{"is null on absent field", map[string]interface{}{"missing": nil}, true},
		{"is null on present field", map[string]interface{}{"type": nil}, false},
		{"dotted metadata path", map[string]interface{}{"metadata.scope": "private"}, true},
		{"multiple ops AND under one field", map[string]interface{}{"score": map[string]interface{}{"gt": 0.5, "lt": 0.9}}, true},
		{"AND combinator", map[string]interface{}{"AND": []interface{}{
			map[string]interface{}{"type": "working"},
			map[string]interface{}{"score": map[string]interface{}{"gt": 0.5}},
		}}, true},
		{"OR combinator", map[string]interface{}{"OR": []interface{}{
			map[string]interface{}{"type": "episodic"},
			map[string]interface{}{"score": map[string]interface{}{"gt": 0.5}},
		}}, true},
		{"OR all-miss", map[string]interface{}{"OR": []interface{}{
			map[string]interface{}{"type": "episodic"},
			map[string]interface{}{"score": map[string]interface{}{"gt": 0.9}},
		}}, false},
		{"nested boolean", map[string]interface{}{"AND": []interface{}{
			map[string]interface{}{"OR": []interface{}{
				map[string]interface{}{"type": "working"},
				map[string]interface{}{"type": "episodic"},
			}},
			map[string]interface{}{"metadata.scope": "private"},
		}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr := mustParse(t, tt.filter)
			got, err := filter.Match(expr, record)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchNilExprMatchesEverything(t *testing.T) {
	got, err := filter.Match(nil, map[string]interface{}{"anything": 1})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCompilePostgres(t *testing.T) {
	dialect := filter.Postgres("metadata", map[string]string{"user_id": "user_id"})

	expr := mustParse(t, map[string]interface{}{
		"AND": []interface{}{
			map[string]interface{}{"user_id": "u1"},
			map[string]interface{}{"metadata.scope": map[string]interface{}{"ne": "private"}},
		},
	})

	sql, args, err := filter.CompileSQL(expr, dialect, 1)
	require.NoError(t, err)
	assert.Equal(t, "(user_id = $1 AND metadata->>'scope' != $2)", sql)
	assert.Equal(t, []interface{}{"u1", "private"}, args)
}

func TestCompileMySQLJSON(t *testing.T) {
	dialect := filter.MySQLJSON("metadata", nil)

	expr := mustParse(t, map[string]interface{}{"type": []interface{}{"working", "episodic"}})
	sql, args, err := filter.CompileSQL(expr, dialect, 1)
	require.NoError(t, err)
	assert.Equal(t, "metadata->>'$.type' IN (?, ?)", sql)
	assert.Len(t, args, 2)
}

func TestSQLiteEqualityHonorsPlainAndRejectsRest(t *testing.T) {
	dialect := filter.SQLiteEquality("metadata", nil)

	// Plain equality compiles.
	expr := mustParse(t, map[string]interface{}{"type": "working"})
	sql, args, err := filter.CompileSQL(expr, dialect, 1)
	require.NoError(t, err)
	assert.Equal(t, "json_extract(metadata, '$.type') = ?", sql)
	assert.Equal(t, []interface{}{"working"}, args)

	// Everything else fails fast with the typed error.
	for name, m := range map[string]map[string]interface{}{
		"in":      {"type": []interface{}{"a", "b"}},
		"cmp":     {"score": map[string]interface{}{"gt": 0.5}},
		"like":    {"name": map[string]interface{}{"like": "A%"}},
		"null":    {"archived_at": nil},
		"boolean": {"OR": []interface{}{map[string]interface{}{"a": 1}, map[string]interface{}{"b": 2}}},
	} {
		t.Run(name, func(t *testing.T) {
			expr := mustParse(t, m)
			_, _, err := filter.CompileSQL(expr, dialect, 1)
			var unsupported *filter.UnsupportedFilterOpError
			assert.True(t, errors.As(err, &unsupported), "expected UnsupportedFilterOpError, got %v", err)
		})
	}
}

func TestSpecializes(t *testing.T) {
	routing := mustParse(t, map[string]interface{}{"type": "working"})

	// Equal filter specializes.
	assert.True(t, filter.Specializes(mustParse(t, map[string]interface{}{"type": "working"}), routing))

	// Narrower filter (extra clause) specializes.
	narrower := mustParse(t, map[string]interface{}{"type": "working", "user_id": "u1"})
	assert.True(t, filter.Specializes(narrower, routing))

	// Different value does not.
	assert.False(t, filter.Specializes(mustParse(t, map[string]interface{}{"type": "episodic"}), routing))

	// Missing key does not.
	assert.False(t, filter.Specializes(mustParse(t, map[string]interface{}{"user_id": "u1"}), routing))

	// Nil (no filter) does not specialize a non-trivial routing filter.
	assert.False(t, filter.Specializes(nil, routing))

	// IN with a subset of the routing filter's values specializes.
	broadIn := mustParse(t, map[string]interface{}{"type": []interface{}{"working", "episodic"}})
	narrowIn := mustParse(t, map[string]interface{}{"type": "working"})
	assert.True(t, filter.Specializes(narrowIn, broadIn))
	assert.False(t, filter.Specializes(broadIn, narrowIn))
}

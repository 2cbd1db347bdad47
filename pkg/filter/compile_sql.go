package filter

import (
	"fmt"
	"strings"
)

// SQLDialect captures the handful of differences between the SQL backends
// that otherwise share one filter compiler: placeholder syntax and how a
// dotted metadata path turns into a JSON-extraction expression.
type SQLDialect struct {
	// Name identifies the backend for UnsupportedFilterOpError messages.
	Name string

	// Placeholder renders the i'th (1-based) bound parameter marker.
	Placeholder func(i int) string

	// JSONField renders the SQL expression that extracts a dotted metadata
	// path (e.g. "metadata.scope" -> path ["scope"]) as text, given the
	// name of the JSON/JSONB column holding metadata.
	JSONField func(column string, path []string) string

	// Columns lists field names that map directly to real table columns
	// instead of the metadata JSON blob (e.g. "user_id", "agent_id").
	Columns map[string]string

	// MetadataColumn is the column holding the JSON metadata blob.
	MetadataColumn string

	// SupportsLike/SupportsIn/SupportsCmp/SupportsBoolean/SupportsNull
	// gate which AST node kinds this dialect can render at all; anything
	// unsupported fails fast with UnsupportedFilterOpError instead of
	// being silently dropped.
	SupportsLike    bool
	SupportsCmp     bool
	SupportsIn      bool
	SupportsBoolean bool
	SupportsNull    bool
}

// Postgres returns the dialect used by pkg/storage/postgres: JSONB ->> text
// extraction, $N placeholders, full operator support.
func Postgres(metadataColumn string, columns map[string]string) SQLDialect {
	return SQLDialect{
		Name:           "postgres",
		MetadataColumn: metadataColumn,
		Columns:        columns,
		Placeholder:    func(i int) string { return fmt.Sprintf("$%d", i) },
		JSONField: func(column string, path []string) string {
			expr := column
			for i, p := range path {
				if i == len(path)-1 {
					expr = fmt.Sprintf("%s->>'%s'", expr, p)
				} else {
					expr = fmt.Sprintf("%s->'%s'", expr, p)
				}
			}
			return expr
		},
		SupportsLike:    true,
		SupportsCmp:     true,
		SupportsIn:      true,
		SupportsBoolean: true,
		SupportsNull:    true,
	}
}

// MySQLJSON returns the dialect used by pkg/storage/oceanbase: MySQL's
// JSON_UNQUOTE(JSON_EXTRACT(...)) sugar (->>), ? placeholders.
func MySQLJSON(metadataColumn string, columns map[string]string) SQLDialect {
	return SQLDialect{
		Name:           "oceanbase",
		MetadataColumn: metadataColumn,
		Columns:        columns,
		Placeholder:    func(int) string { return "?" },
		JSONField: func(column string, path []string) string {
			return fmt.Sprintf("%s->>'$.%s'", column, strings.Join(path, "."))
		},
		SupportsLike:    true,
		SupportsCmp:     true,
		SupportsIn:      true,
		SupportsBoolean: true,
		SupportsNull:    true,
	}
}

// SQLiteEquality returns the strict equality-only dialect used by
// pkg/storage/sqlite, the embedded dense-only tier: a plain {field: value}
// clause is honored, but IN/LIKE/comparison/boolean-combination clauses are
// rejected rather than silently narrowed or ignored.
func SQLiteEquality(metadataColumn string, columns map[string]string) SQLDialect {
	return SQLDialect{
		Name:           "sqlite",
		MetadataColumn: metadataColumn,
		Columns:        columns,
		Placeholder:    func(int) string { return "?" },
		JSONField: func(column string, path []string) string {
			return fmt.Sprintf("json_extract(%s, '$.%s')", column, strings.Join(path, "."))
		},
		SupportsLike:    false,
		SupportsCmp:     false,
		SupportsIn:      false,
		SupportsBoolean: false,
		SupportsNull:    false,
	}
}

// CompileSQL renders expr into a "col op ? [AND col op ?]..." fragment (no
// leading "WHERE") plus the positional argument list, starting parameter
// numbering at startIndex (1-based; only meaningful for $N dialects).
func CompileSQL(expr Expr, d SQLDialect, startIndex int) (string, []interface{}, error) {
	c := &sqlCompiler{dialect: d, index: startIndex}
	sql, err := c.compile(expr)
	if err != nil {
		return "", nil, err
	}
	return sql, c.args, nil
}

type sqlCompiler struct {
	dialect SQLDialect
	index   int
	args    []interface{}
}

func (c *sqlCompiler) fieldExpr(field string) string {
	if col, ok := c.dialect.Columns[field]; ok {
		return col
	}
	path := strings.Split(field, ".")
	if len(path) > 1 && path[0] == "metadata" {
		path = path[1:]
	}
	return c.dialect.JSONField(c.dialect.MetadataColumn, path)
}

func (c *sqlCompiler) bind(v interface{}) string {
	ph := c.dialect.Placeholder(c.index)
	c.index++
	c.args = append(c.args, v)
	return ph
}

func (c *sqlCompiler) compile(expr Expr) (string, error) {
	switch e := expr.(type) {
	case nil:
		return "", nil
	case Eq:
		return fmt.Sprintf("%s = %s", c.fieldExpr(e.Field), c.bind(e.Value)), nil
	case IsNull:
		if !c.dialect.SupportsNull {
			return "", &UnsupportedFilterOpError{Backend: c.dialect.Name, Field: e.Field}
		}
		return fmt.Sprintf("%s IS NULL", c.fieldExpr(e.Field)), nil
	case In:
		if !c.dialect.SupportsIn {
			return "", &UnsupportedFilterOpError{Backend: c.dialect.Name, Op: OpIn, Field: e.Field}
		}
		placeholders := make([]string, len(e.Values))
		for i, v := range e.Values {
			placeholders[i] = c.bind(v)
		}
		return fmt.Sprintf("%s IN (%s)", c.fieldExpr(e.Field), strings.Join(placeholders, ", ")), nil
	case Like:
		if !c.dialect.SupportsLike {
			op := OpLike
			if e.Ilike {
				op = OpIlike
			}
			return "", &UnsupportedFilterOpError{Backend: c.dialect.Name, Op: op, Field: e.Field}
		}
		op := "LIKE"
		if e.Ilike {
			op = "ILIKE"
		}
		return fmt.Sprintf("%s %s %s", c.fieldExpr(e.Field), op, c.bind(e.Pattern)), nil
	case Cmp:
		if !c.dialect.SupportsCmp && e.Op != OpEq {
			return "", &UnsupportedFilterOpError{Backend: c.dialect.Name, Op: e.Op, Field: e.Field}
		}
		sqlOp, ok := cmpOps[e.Op]
		if !ok {
			return "", &UnsupportedFilterOpError{Backend: c.dialect.Name, Op: e.Op, Field: e.Field}
		}
		if e.Op == OpNin {
			if !c.dialect.SupportsIn {
				return "", &UnsupportedFilterOpError{Backend: c.dialect.Name, Op: e.Op, Field: e.Field}
			}
			values, _ := e.Value.([]interface{})
			placeholders := make([]string, len(values))
			for i, v := range values {
				placeholders[i] = c.bind(v)
			}
			return fmt.Sprintf("%s NOT IN (%s)", c.fieldExpr(e.Field), strings.Join(placeholders, ", ")), nil
		}
		return fmt.Sprintf("%s %s %s", c.fieldExpr(e.Field), sqlOp, c.bind(e.Value)), nil
	case And:
		if len(e.Exprs) == 0 {
			return "", nil
		}
		if !c.dialect.SupportsBoolean && len(e.Exprs) > 1 {
			return "", &UnsupportedFilterOpError{Backend: c.dialect.Name}
		}
		parts := make([]string, 0, len(e.Exprs))
		for _, sub := range e.Exprs {
			s, err := c.compile(sub)
			if err != nil {
				return "", err
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return "(" + strings.Join(parts, " AND ") + ")", nil
	case Or:
		if !c.dialect.SupportsBoolean {
			return "", &UnsupportedFilterOpError{Backend: c.dialect.Name}
		}
		parts := make([]string, 0, len(e.Exprs))
		for _, sub := range e.Exprs {
			s, err := c.compile(sub)
			if err != nil {
				return "", err
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil
	default:
		return "", &UnsupportedFilterOpError{Backend: c.dialect.Name}
	}
}

var cmpOps = map[Op]string{
	OpEq:  "=",
	OpNe:  "!=",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
	OpNin: "NOT IN",
}

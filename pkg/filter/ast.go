// Package filter implements the structured filter algebra shared by every
// vector store backend: a small AST plus one compiler per backend family.
package filter

// Op is a comparison operator usable inside a Cmp node.
type Op string

const (
	OpEq   Op = "eq"
	OpNe   Op = "ne"
	OpGt   Op = "gt"
	OpGte  Op = "gte"
	OpLt   Op = "lt"
	OpLte  Op = "lte"
	OpIn   Op = "in"
	OpNin  Op = "nin"
	OpLike Op = "like"
	OpIlike Op = "ilike"
)

// Expr is a node in the filter AST. Only the types declared in this file
// implement it; the interface is sealed by an unexported method.
type Expr interface {
	isExpr()
}

// Eq is field == value.
type Eq struct {
	Field string
	Value interface{}
}

// In is field IN (values...).
type In struct {
	Field  string
	Values []interface{}
}

// Cmp is field <op> value, for any Op other than eq/in (those have their
// own node types above for convenience, but Cmp(OpEq,...) / Cmp(OpIn,...)
// are equivalent and accepted by compilers too).
type Cmp struct {
	Field string
	Op    Op
	Value interface{}
}

// Like is a pattern match (Ilike marks case-insensitivity).
type Like struct {
	Field   string
	Pattern string
	Ilike   bool
}

// IsNull is field IS NULL.
type IsNull struct {
	Field string
}

// And combines sub-expressions with logical AND.
type And struct {
	Exprs []Expr
}

// Or combines sub-expressions with logical OR.
type Or struct {
	Exprs []Expr
}

func (Eq) isExpr()     {}
func (In) isExpr()     {}
func (Cmp) isExpr()    {}
func (Like) isExpr()   {}
func (IsNull) isExpr() {}
func (And) isExpr()    {}
func (Or) isExpr()     {}

// Map is the wire representation accepted at the API boundary:
//
//	{field: primitive}                  -> equality
//	{field: [v1, v2, ...]}               -> IN
//	{field: {op: value, ...}}            -> Cmp per op, AND'd together
//	{field: nil}                         -> IS NULL
//	{"AND": [expr, ...]}, {"OR": [...]}   -> nested boolean combination
//
// Dotted field paths (e.g. "metadata.scope") address nested JSON and are
// passed through to the backend compiler unchanged; it is the compiler's
// job to turn dots into whatever path syntax its store understands.
type Map map[string]interface{}

// Parse turns a wire-format filter map into an AST. An empty/nil map
// parses to a nil Expr (meaning "no filter").
func Parse(m Map) (Expr, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return parseMap(m)
}

func parseMap(m map[string]interface{}) (Expr, error) {
	var clauses []Expr
	for field, value := range m {
		switch field {
		case "AND", "OR":
			list, ok := value.([]interface{})
			if !ok {
				return nil, &ParseError{Reason: field + " must be a list of filter expressions"}
			}
			var sub []Expr
			for _, item := range list {
				itemMap, ok := item.(map[string]interface{})
				if !ok {
					if m2, ok := item.(Map); ok {
						itemMap = map[string]interface{}(m2)
					} else {
						return nil, &ParseError{Reason: field + " entries must be filter maps"}
					}
				}
				e, err := parseMap(itemMap)
				if err != nil {
					return nil, err
				}
				if e != nil {
					sub = append(sub, e)
				}
			}
			if field == "AND" {
				clauses = append(clauses, And{Exprs: sub})
			} else {
				clauses = append(clauses, Or{Exprs: sub})
			}
			continue
		}

		e, err := parseField(field, value)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, e)
	}

	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return And{Exprs: clauses}, nil
}

func parseField(field string, value interface{}) (Expr, error) {
	if value == nil {
		return IsNull{Field: field}, nil
	}

	switch v := value.(type) {
	case []interface{}:
		return In{Field: field, Values: v}, nil
	case map[string]interface{}:
		var ops []Expr
		for opName, opValue := range v {
			op := Op(opName)
			switch op {
			case OpEq:
				ops = append(ops, Eq{Field: field, Value: opValue})
			case OpIn:
				values, ok := opValue.([]interface{})
				if !ok {
					return nil, &ParseError{Reason: "in operator requires a list value"}
				}
				ops = append(ops, In{Field: field, Values: values})
			case OpLike:
				s, _ := opValue.(string)
				ops = append(ops, Like{Field: field, Pattern: s, Ilike: false})
			case OpIlike:
				s, _ := opValue.(string)
				ops = append(ops, Like{Field: field, Pattern: s, Ilike: true})
			case OpNe, OpGt, OpGte, OpLt, OpLte, OpNin:
				ops = append(ops, Cmp{Field: field, Op: op, Value: opValue})
			default:
				return nil, &ParseError{Reason: "unknown filter operator: " + opName}
			}
		}
		if len(ops) == 1 {
			return ops[0], nil
		}
		return And{Exprs: ops}, nil
	default:
		return Eq{Field: field, Value: value}, nil
	}
}

// ParseError reports a malformed filter expression (a ValidationError kind,
// distinct from UnsupportedFilterOpError which is raised by compilers).
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "filter: " + e.Reason
}

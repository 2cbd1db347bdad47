package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Match evaluates expr against an in-memory record, addressed as a plain
// map[string]interface{} (the same shape the ingest pipeline and sub-store
// router already hold metadata in). It is the backend-agnostic counterpart
// to the SQL compiler: used wherever a filter needs to be evaluated without
// a round-trip to a store, e.g. the sub-store router's routing-filter test
// and the specialization check used for read routing.
//
// A nil expr matches everything. Unsupported operators return an error
// rather than silently matching/excluding, mirroring the fail-fast
// contract backend compilers use.
func Match(expr Expr, record map[string]interface{}) (bool, error) {
	if expr == nil {
		return true, nil
	}
	return evalExpr(expr, record)
}

func evalExpr(expr Expr, record map[string]interface{}) (bool, error) {
	switch e := expr.(type) {
	case Eq:
		v, _ := lookup(record, e.Field)
		return looseEqual(v, e.Value), nil
	case In:
		v, _ := lookup(record, e.Field)
		for _, candidate := range e.Values {
			if looseEqual(v, candidate) {
				return true, nil
			}
		}
		return false, nil
	case IsNull:
		v, ok := lookup(record, e.Field)
		return !ok || v == nil, nil
	case Like:
		v, _ := lookup(record, e.Field)
		s, ok := v.(string)
		if !ok {
			return false, nil
		}
		return matchLike(s, e.Pattern, e.Ilike), nil
	case Cmp:
		v, _ := lookup(record, e.Field)
		return evalCmp(v, e.Op, e.Value)
	case And:
		for _, sub := range e.Exprs {
			ok, err := evalExpr(sub, record)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case Or:
		for _, sub := range e.Exprs {
			ok, err := evalExpr(sub, record)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return len(e.Exprs) == 0, nil
	default:
		return false, &UnsupportedFilterOpError{Backend: "memory"}
	}
}

func evalCmp(v interface{}, op Op, target interface{}) (bool, error) {
	switch op {
	case OpEq:
		return looseEqual(v, target), nil
	case OpNe:
		return !looseEqual(v, target), nil
	case OpNin:
		values, _ := target.([]interface{})
		for _, candidate := range values {
			if looseEqual(v, candidate) {
				return false, nil
			}
		}
		return true, nil
	case OpGt, OpGte, OpLt, OpLte:
		a, aok := asFloat(v)
		b, bok := asFloat(target)
		if !aok || !bok {
			return false, nil
		}
		switch op {
		case OpGt:
			return a > b, nil
		case OpGte:
			return a >= b, nil
		case OpLt:
			return a < b, nil
		case OpLte:
			return a <= b, nil
		}
	}
	return false, &UnsupportedFilterOpError{Backend: "memory", Op: op}
}

// lookup resolves a possibly dotted field path ("metadata.scope") against a
// record. A leading "metadata." prefix is stripped and re-resolved starting
// from record["metadata"] if present, mirroring how SQL compilers treat it
// as the JSON metadata blob; otherwise the whole dotted path is walked
// against the record itself.
func lookup(record map[string]interface{}, field string) (interface{}, bool) {
	parts := strings.Split(field, ".")
	cur := interface{}(record)
	if parts[0] == "metadata" {
		if m, ok := record["metadata"].(map[string]interface{}); ok {
			cur = interface{}(m)
			parts = parts[1:]
		}
	}
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func matchLike(s, pattern string, ilike bool) bool {
	if ilike {
		s = strings.ToLower(s)
		pattern = strings.ToLower(pattern)
	}
	// Translate the SQL LIKE wildcards ('%', '_') into a simple matcher;
	// metadata filters in practice use them as prefix/suffix/contains markers.
	if !strings.ContainsAny(pattern, "%_") {
		return s == pattern
	}
	segments := strings.Split(pattern, "%")
	if len(segments) == 1 {
		return likeSegmentMatch(s, pattern)
	}
	pos := 0
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		idx := indexLikeSegment(s[pos:], seg)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(seg)
	}
	if last := segments[len(segments)-1]; last != "" && !strings.HasSuffix(pattern, "%") {
		return strings.HasSuffix(s, last)
	}
	return true
}

func likeSegmentMatch(s, seg string) bool {
	if !strings.Contains(seg, "_") {
		return s == seg
	}
	if len(s) != len(seg) {
		return false
	}
	for i := range seg {
		if seg[i] != '_' && seg[i] != s[i] {
			return false
		}
	}
	return true
}

func indexLikeSegment(s, seg string) int {
	if !strings.Contains(seg, "_") {
		return strings.Index(s, seg)
	}
	for i := 0; i+len(seg) <= len(s); i++ {
		if likeSegmentMatch(s[i:i+len(seg)], seg) {
			return i
		}
	}
	return -1
}

// Specializes reports whether filter `narrow` is at least as restrictive as
// `broad` under a simple syntactic specialization check: every top-level
// Eq/In clause in broad must appear, with an equal-or-narrower value set, in
// narrow. This backs read-routing: a query filter routes to a sub-store
// only if it is a specialization of that sub-store's routing filter --
// all of the routing filter's keys equal or narrower in the query.
// It intentionally does not attempt general boolean entailment (NP-hard in
// general); nested And/Or broad filters fall back to "not a specialization"
// since a sub-store's routing_filter is expected to be a flat AND of
// equalities in practice.
func Specializes(narrow, broad Expr) bool {
	broadClauses := flattenEq(broad)
	if broadClauses == nil {
		return false
	}
	narrowClauses := flattenEq(narrow)
	if narrowClauses == nil {
		return false
	}
	for field, values := range broadClauses {
		nv, ok := narrowClauses[field]
		if !ok {
			return false
		}
		if !isSubsetValues(nv, values) {
			return false
		}
	}
	return true
}

// flattenEq collects top-level Eq/In clauses (AND-combined) into a
// field->allowed-values map. Returns nil if expr contains anything else
// (Or, Cmp, Like, IsNull, nested And with non-Eq/In children), signaling
// "not expressible as a flat equality filter."
func flattenEq(expr Expr) map[string][]interface{} {
	out := map[string][]interface{}{}
	var walk func(e Expr) bool
	walk = func(e Expr) bool {
		switch v := e.(type) {
		case nil:
			return true
		case Eq:
			out[v.Field] = append(out[v.Field], v.Value)
			return true
		case In:
			out[v.Field] = append(out[v.Field], v.Values...)
			return true
		case And:
			for _, sub := range v.Exprs {
				if !walk(sub) {
					return false
				}
			}
			return true
		default:
			return false
		}
	}
	if !walk(expr) {
		return nil
	}
	return out
}

func isSubsetValues(sub, super []interface{}) bool {
	for _, s := range sub {
		found := false
		for _, p := range super {
			if looseEqual(s, p) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

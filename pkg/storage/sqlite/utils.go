package sqlite

import (
	"fmt"
	"strings"

	"github.com/oceanbase/powermem/pkg/filter"
)

// buildWhereClause builds a WHERE clause from scope keys and plain
// equality filters.
//
// This backend is the minimal tier: only `{key: value}` equality
// filters (and `{key: nil}`, compiled to IS NULL) are honored, against
// json_extract on the metadata column. Operator objects, lists, and
// boolean combinators are rejected
// with filter.UnsupportedFilterOpError rather than silently dropped.
func buildWhereClause(userID, agentID string, filters map[string]interface{}) (string, []interface{}, error) {
	conditions := []string{}
	args := []interface{}{}

	if userID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, userID)
	}

	if agentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, agentID)
	}

	for key, value := range filters {
		switch value.(type) {
		case map[string]interface{}, []interface{}, filter.Map:
			return "", nil, &filter.UnsupportedFilterOpError{Backend: "sqlite", Field: key}
		case nil:
			conditions = append(conditions, fmt.Sprintf("json_extract(metadata, '$.%s') IS NULL", key))
		default:
			conditions = append(conditions, fmt.Sprintf("json_extract(metadata, '$.%s') = ?", key))
			args = append(args, value)
		}
	}

	if len(conditions) == 0 {
		return "", args, nil
	}

	return "WHERE " + strings.Join(conditions, " AND "), args, nil
}

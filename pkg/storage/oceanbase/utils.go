package oceanbase

import (
	"fmt"
	"strings"

	"github.com/oceanbase/powermem/pkg/contenthash"
	"github.com/oceanbase/powermem/pkg/filter"
)

// vectorToString converts a float64 slice to an OceanBase VECTOR format string.
// Example: [0.1, 0.2, 0.3] -> "[0.100000,0.200000,0.300000]"
func vectorToString(vector []float64) string {
	if len(vector) == 0 {
		return "[]"
	}

	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = fmt.Sprintf("%f", v)
	}

	return "[" + strings.Join(parts, ",") + "]"
}

// stringToVector converts a string to a float64 slice.
// Example: "[0.1,0.2,0.3]" -> [0.1, 0.2, 0.3]
func stringToVector(s string) ([]float64, error) {
	// Remove leading and trailing square brackets
	s = strings.Trim(s, "[]")
	if s == "" {
		return []float64{}, nil
	}

	parts := strings.Split(s, ",")
	result := make([]float64, len(parts))

	for i, part := range parts {
		var val float64
		_, err := fmt.Sscanf(strings.TrimSpace(part), "%f", &val)
		if err != nil {
			return nil, err
		}
		result[i] = val
	}

	return result, nil
}

var oceanbaseDialect = filter.MySQLJSON("metadata", map[string]string{
	"user_id":  "user_id",
	"agent_id": "agent_id",
	"run_id":   "run_id",
	"actor_id": "actor_id",
})

// buildWhereClause builds a WHERE clause combining user/agent scoping with
// an arbitrary filter expression compiled against the JSON metadata column.
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

	expr, err := filter.Parse(filter.Map(filters))
	if err != nil {
		return "", nil, err
	}
	if expr != nil {
		sql, fargs, err := filter.CompileSQL(expr, oceanbaseDialect, 1)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, sql)
		args = append(args, fargs...)
	}

	if len(conditions) == 0 {
		return "", args, nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args, nil
}

// generateHash computes the exact-duplicate fingerprint for content.
func generateHash(content string) string {
	return contenthash.Hash(content)
}

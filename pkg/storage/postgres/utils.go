package postgres

import (
	"strings"

	"github.com/oceanbase/powermem/pkg/contenthash"
	"github.com/oceanbase/powermem/pkg/filter"
)

var postgresDialect = filter.Postgres("metadata", map[string]string{
	"user_id":  "user_id",
	"agent_id": "agent_id",
	"run_id":   "run_id",
	"actor_id": "actor_id",
})

// buildWhereClause builds a WHERE clause starting from $1.
func buildWhereClause(userID, agentID string, filters map[string]interface{}) (string, []interface{}, error) {
	return buildWhereClauseWithOffset(userID, agentID, filters, 1)
}

// buildWhereClauseWithOffset builds a WHERE clause combining user/agent
// scoping with an arbitrary filter expression compiled against the JSONB
// metadata column, starting parameter numbering at startIndex.
func buildWhereClauseWithOffset(userID, agentID string, filters map[string]interface{}, startIndex int) (string, []interface{}, error) {
	conditions := []string{}
	args := []interface{}{}
	index := startIndex

	bind := func(v interface{}) string {
		ph := postgresDialect.Placeholder(index)
		index++
		args = append(args, v)
		return ph
	}

	if userID != "" {
		conditions = append(conditions, "user_id = "+bind(userID))
	}
	if agentID != "" {
		conditions = append(conditions, "agent_id = "+bind(agentID))
	}

	expr, err := filter.Parse(filter.Map(filters))
	if err != nil {
		return "", nil, err
	}
	if expr != nil {
		sql, fargs, err := filter.CompileSQL(expr, postgresDialect, index)
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

package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ExecuteSQLTool runs a read-only query over the caller's transactions
func ExecuteSQLTool(sess *Session) Tool {
	return Tool{
		Name: "execute_sql",
		Description: "Execute a single SQL SELECT over the ledger tables and return the rows. " +
			"Only SELECT queries are allowed. Rows are automatically restricted to the current user; do not filter on user_id.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"sql": map[string]interface{}{
					"type":        "string",
					"description": "The SQL SELECT query to execute",
				},
			},
			"required": []string{"sql"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			sql, err := requireString(input, "sql")
			if err != nil {
				return "", err
			}
			if sess.store == nil {
				return "", errNoStore
			}

			result, err := sess.run(ctx, sql)
			if err != nil {
				return "", fmt.Errorf("execute query: %w", err)
			}

			out := map[string]interface{}{
				"row_count": result.Len(),
				"columns":   result.Columns,
				"data":      result.Head(maxToolRows),
			}
			if result.Len() > maxToolRows {
				out["note"] = fmt.Sprintf("only the first %d rows are shown", maxToolRows)
			}
			b, err := json.Marshal(out)
			if err != nil {
				return "", fmt.Errorf("marshal result: %w", err)
			}
			return string(b), nil
		},
	}
}

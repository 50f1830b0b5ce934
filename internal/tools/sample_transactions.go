package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/ledgerai/ledgerai/internal/dialect"
)

// SampleTransactionsTool fetches a few of the caller's most recent
// transactions so the agent can see real descriptions and category labels.
func SampleTransactionsTool(sess *Session) Tool {
	return Tool{
		Name:        "get_sample_transactions",
		Description: "Get 3 of the user's most recent transactions to understand description formats and category labels before writing filters.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
			"required":   []string{},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			if sess.store == nil {
				return "", errNoStore
			}
			sql, _, err := squirrel.Select("date", "description", "amount", "category", "account", "transaction_type").
				From(dialect.TransactionsTable).
				OrderBy("date DESC").
				Limit(3).
				ToSql()
			if err != nil {
				return "", fmt.Errorf("build sample query: %w", err)
			}

			result, err := sess.run(ctx, sql)
			if err != nil {
				return "", fmt.Errorf("sample data: %w", err)
			}

			out := map[string]interface{}{
				"table":   dialect.TransactionsTable,
				"columns": result.Columns,
				"sample":  result.Rows,
				"note":    "These are sample rows only. Use them to understand data format and category values.",
			}
			b, err := json.Marshal(out)
			if err != nil {
				return "", fmt.Errorf("marshal sample: %w", err)
			}
			return string(b), nil
		},
	}
}

package tools

import (
	"context"
	"fmt"
	"strings"
)

// GetSchemaTool describes the ledger tables
func GetSchemaTool(sess *Session) Tool {
	return Tool{
		Name:        "get_schema",
		Description: "Get the column names and types of the ledger tables (transactions, category_rules). Use this before writing SQL.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
			"required":   []string{},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			if sess.store == nil {
				return "", errNoStore
			}
			desc, err := sess.store.DescribeSchema(ctx)
			if err != nil {
				return "", fmt.Errorf("get schema: %w", err)
			}
			d := sess.store.Dialect()
			var sb strings.Builder
			sb.WriteString(desc.String())
			fmt.Fprintf(&sb, "\n\nSQL dialect: %s\nThis month: %s\nLast month: %s\n",
				d.Name, d.ThisMonth, d.LastMonth)
			return sb.String(), nil
		},
	}
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/ledgerai/ledgerai/internal/dialect"
)

const (
	PeriodThisMonth = "this_month"
	PeriodLastMonth = "last_month"
	PeriodAll       = "all"
)

// FinancialSummaryTool returns income, expenses, net and the top spending
// categories for a period.
func FinancialSummaryTool(sess *Session) Tool {
	return Tool{
		Name:        "get_financial_summary",
		Description: "Get total income, total expenses (as a positive amount), net balance, transaction count and the top 5 spending categories for a period.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"period": map[string]interface{}{
					"type":        "string",
					"enum":        []string{PeriodThisMonth, PeriodLastMonth, PeriodAll},
					"description": "Time window to summarise (default: this_month)",
				},
			},
			"required": []string{},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			if sess.store == nil {
				return "", errNoStore
			}
			period, _ := input["period"].(string)
			if period == "" {
				period = PeriodThisMonth
			}
			d := sess.store.Dialect()
			totalsSQL, categoriesSQL, err := summaryQueries(d, period)
			if err != nil {
				return "", err
			}

			totals, err := sess.run(ctx, totalsSQL)
			if err != nil {
				return "", fmt.Errorf("summary totals: %w", err)
			}
			categories, err := sess.run(ctx, categoriesSQL)
			if err != nil {
				return "", fmt.Errorf("summary categories: %w", err)
			}

			out := map[string]interface{}{
				"period":         period,
				"top_categories": categories.Rows,
			}
			if totals.Len() > 0 {
				for k, v := range totals.Rows[0] {
					out[k] = v
				}
			}
			b, err := json.Marshal(out)
			if err != nil {
				return "", fmt.Errorf("marshal summary: %w", err)
			}
			return string(b), nil
		},
	}
}

// summaryQueries builds the two unscoped summary statements for period.
func summaryQueries(d dialect.Dialect, period string) (string, string, error) {
	var window string
	switch period {
	case PeriodThisMonth:
		window = d.ThisMonth
	case PeriodLastMonth:
		window = d.LastMonth
	case PeriodAll:
	default:
		return "", "", fmt.Errorf("unknown period %q", period)
	}

	totals := squirrel.Select(
		"COUNT(*) AS transaction_count",
		d.Round2("SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END)")+" AS total_income",
		d.Round2("ABS(SUM(CASE WHEN amount < 0 THEN amount ELSE 0 END))")+" AS total_expenses",
		d.Round2("SUM(amount)")+" AS net",
	).From(dialect.TransactionsTable)

	categories := squirrel.Select(
		"COALESCE(category, 'Uncategorized') AS category",
		d.Round2("ABS(SUM(amount))")+" AS total",
	).From(dialect.TransactionsTable).
		Where("amount < 0").
		GroupBy("COALESCE(category, 'Uncategorized')").
		OrderBy("total DESC").
		Limit(5)

	if window != "" {
		totals = totals.Where(window)
		categories = categories.Where(window)
	}

	totalsSQL, _, err := totals.ToSql()
	if err != nil {
		return "", "", fmt.Errorf("build summary totals: %w", err)
	}
	categoriesSQL, _, err := categories.ToSql()
	if err != nil {
		return "", "", fmt.Errorf("build summary categories: %w", err)
	}
	return totalsSQL, categoriesSQL, nil
}

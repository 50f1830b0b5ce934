package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerai/ledgerai/internal/dialect"
	"github.com/ledgerai/ledgerai/internal/models"
)

// DefaultRowLimit is the LIMIT the generator is told to add.
const DefaultRowLimit = 100

// previewRows bounds the rows shown to the synthesizer.
const previewRows = 10

func generatorSystemPrompt(schema models.SchemaDescription, d dialect.Dialect, today time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a SQL expert assistant. Generate %s queries that answer questions about a user's bank transactions.\n\n", d.Name)
	sb.WriteString("Database Schema:\n")
	sb.WriteString(schema.String())
	sb.WriteString("\n\nImportant Notes:\n")
	sb.WriteString("- The transactions table stores financial transactions\n")
	sb.WriteString("- amount is negative for expenses and positive for income\n")
	sb.WriteString("- Use date for filtering by time periods (format: YYYY-MM-DD)\n")
	fmt.Fprintf(&sb, "- category is one of: %s\n", strings.Join(dialect.Categories, ", "))
	sb.WriteString("- transaction_type is either 'expense' or 'income'\n")
	sb.WriteString("- Rows are already restricted to the current user. Never filter on user_id.\n")
	fmt.Fprintf(&sb, "- Today's date is %s\n\n", today.Format(time.DateOnly))

	rules := []string{
		"Only generate a single SELECT statement (no INSERT, UPDATE, DELETE or DDL)",
		fmt.Sprintf("Use proper %s syntax", d.Name),
		"Return only the SQL query without explanations or markdown formatting",
		fmt.Sprintf("Always include a LIMIT (default %d)", DefaultRowLimit),
		fmt.Sprintf(`For "this month", use: %s`, d.ThisMonth),
		fmt.Sprintf(`For "last month", use: %s`, d.LastMonth),
		"Always use ABS(amount) when summing expenses to show positive values",
		fmt.Sprintf("Round monetary values to 2 decimal places, e.g. %s", d.Round2("ABS(SUM(amount))")),
		fmt.Sprintf("For category queries, use case-insensitive matching, e.g. %s", d.CaseInsensitive),
		"When comparing time periods, use Common Table Expressions with one named result per period, in one query",
		`When asked about "spending", focus on negative amounts (expenses)`,
		fmt.Sprintf("To group by month, select %s", d.MonthBucket),
	}
	sb.WriteString("Rules:\n")
	for i, r := range rules {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func generatorUserPrompt(question string) string {
	return fmt.Sprintf("Generate a SQL query to answer this question: %q", question)
}

const synthesizerSystemPrompt = `You are a financial assistant. Given a user's question, the SQL query used, and the results, provide a clear, concise answer in natural language.

Guidelines:
- Be conversational and helpful
- Include specific numbers and insights from the data
- Format currency values with the $ symbol and two decimals
- If comparing time periods, clearly state both values
- Highlight interesting patterns or anomalies
- Keep responses concise (2-4 sentences)`

func synthesizerUserPrompt(question, sql string, rs models.ResultSet) (string, error) {
	preview, err := json.MarshalIndent(rs.Head(previewRows), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode results preview: %w", err)
	}
	return fmt.Sprintf(`User Question: %s

SQL Query: %s

Results (showing first %d rows):
%s

Total rows returned: %d

Please provide a natural language answer to the user's question based on these results.`,
		question, sql, previewRows, preview, rs.Len()), nil
}

func toolAgentSystemPrompt(d dialect.Dialect, today time.Time) string {
	return fmt.Sprintf(`You are LedgerAI, a personal finance analyst with access to the user's bank transactions.

Use the tools to look at the data before answering:
- get_schema shows the tables and the %s idioms to use
- get_sample_transactions shows a few recent rows
- get_financial_summary returns income, expenses and top categories for a period
- execute_sql runs one read-only SELECT (include a LIMIT)

RULES:
1. Rows are already restricted to the current user. Never filter on user_id.
2. amount is negative for expenses and positive for income; report spending as positive values
3. Cite concrete numbers, format currency with the $ symbol and two decimals
4. Keep the final answer to a short paragraph
5. Today's date is %s`, d.Name, today.Format(time.DateOnly))
}

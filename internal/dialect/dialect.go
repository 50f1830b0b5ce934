// Package dialect describes the SQL engines a ledger store can run on: how
// the owner id is bound and which native idioms the model is told to use.
package dialect

import (
	"database/sql"
	"strings"

	"github.com/Masterminds/squirrel"
)

const (
	TransactionsTable  = "transactions"
	CategoryRulesTable = "category_rules"
	OwnerColumn        = "user_id"
)

// Dialect is the per-engine behaviour needed by the generator prompt and the
// tenant scoper.
type Dialect struct {
	Name string

	// Placeholders rewrites "?" in the scoped subquery into the engine's
	// bind syntax.
	Placeholders squirrel.PlaceholderFormat
	// SharedOwnerArg is true when every scoped reference reuses one bound
	// argument ($1, @owner_id). Otherwise one argument is bound per reference.
	SharedOwnerArg bool
	// NamedOwnerArg binds the owner id as sql.Named(OwnerParam, ...).
	NamedOwnerArg bool

	ThisMonth       string
	LastMonth       string
	CaseInsensitive string
	MonthBucket     string

	// numericCast is appended to an expression before ROUND on engines whose
	// ROUND(x, n) only accepts exact numerics.
	numericCast string
}

// Round2 rounds expr to cents.
func (d Dialect) Round2(expr string) string {
	if d.numericCast != "" {
		return "ROUND((" + expr + ")" + d.numericCast + ", 2)"
	}
	return "ROUND(" + expr + ", 2)"
}

// OwnerArgs returns the bound arguments for a statement that references the
// transactions table refs times.
func (d Dialect) OwnerArgs(owner string, refs int) []any {
	if refs == 0 {
		return nil
	}
	var v any = owner
	if d.NamedOwnerArg {
		v = sql.Named(OwnerParam, owner)
	}
	if d.SharedOwnerArg {
		return []any{v}
	}
	args := make([]any, refs)
	for i := range args {
		args[i] = v
	}
	return args
}

// OwnerParam is the parameter name used by engines with named parameters.
const OwnerParam = "owner_id"

type namedPlaceholder string

func (n namedPlaceholder) ReplacePlaceholders(s string) (string, error) {
	return strings.ReplaceAll(s, "?", string(n)), nil
}

var Postgres = Dialect{
	Name:            "postgres",
	Placeholders:    squirrel.Dollar,
	SharedOwnerArg:  true,
	ThisMonth:       "date >= date_trunc('month', CURRENT_DATE)",
	LastMonth:       "date >= date_trunc('month', CURRENT_DATE) - INTERVAL '1 month' AND date < date_trunc('month', CURRENT_DATE)",
	CaseInsensitive: "category ILIKE 'coffee'",
	numericCast:     "::numeric",
	MonthBucket:     "to_char(date, 'YYYY-MM') AS month",
}

var SQLite = Dialect{
	Name:            "sqlite",
	Placeholders:    squirrel.Question,
	ThisMonth:       "date >= date('now', 'start of month')",
	LastMonth:       "date >= date('now', '-1 month', 'start of month') AND date < date('now', 'start of month')",
	CaseInsensitive: "LOWER(category) = LOWER('coffee')",
	MonthBucket:     "strftime('%Y-%m', date) AS month",
}

var BigQuery = Dialect{
	Name:            "bigquery",
	Placeholders:    namedPlaceholder("@" + OwnerParam),
	SharedOwnerArg:  true,
	NamedOwnerArg:   true,
	ThisMonth:       "date >= DATE_TRUNC(CURRENT_DATE(), MONTH)",
	LastMonth:       "date >= DATE_SUB(DATE_TRUNC(CURRENT_DATE(), MONTH), INTERVAL 1 MONTH) AND date < DATE_TRUNC(CURRENT_DATE(), MONTH)",
	CaseInsensitive: "LOWER(category) = LOWER('coffee')",
	MonthBucket:     "FORMAT_DATE('%Y-%m', date) AS month",
}

// ByName resolves a configured dialect name.
func ByName(name string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, true
	case "sqlite", "sqlite3":
		return SQLite, true
	case "bigquery", "bq":
		return BigQuery, true
	}
	return Dialect{}, false
}

// Categories is the closed label set the categorisation pass assigns.
var Categories = []string{
	"Coffee", "Groceries", "Dining", "Entertainment", "Shopping",
	"Transportation", "Gas", "Healthcare", "Fitness", "Utilities",
	"Insurance", "Subscriptions", "Travel", "Education", "Personal Care",
	"Pets", "Home", "Transfer", "Cash Withdrawal", "Fees", "Income", "Other",
}

package models

import (
	"fmt"
	"strings"
	"time"
)

// Transaction is one bank-statement line owned by exactly one user. A
// negative amount is an expense, a positive amount is income.
type Transaction struct {
	ID              int64     `json:"id"`
	OwnerID         string    `json:"user_id"`
	Date            time.Time `json:"date"`
	Description     string    `json:"description"`
	Amount          float64   `json:"amount"`
	Category        *string   `json:"category,omitempty"`
	Account         *string   `json:"account,omitempty"`
	TransactionType string    `json:"transaction_type,omitempty"`
}

const (
	TransactionTypeExpense = "expense"
	TransactionTypeIncome  = "income"
)

// TypeForAmount derives transaction_type from the amount sign.
func TypeForAmount(amount float64) string {
	if amount < 0 {
		return TransactionTypeExpense
	}
	return TransactionTypeIncome
}

// Column is a column name with its declared type.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableSchema lists a table's columns in the store's natural order.
type TableSchema struct {
	Name    string   `json:"table"`
	Columns []Column `json:"columns"`
}

// SchemaDescription is derived fresh from the store on every question.
type SchemaDescription struct {
	Tables []TableSchema `json:"tables"`
}

// Table returns the named table, if present.
func (s SchemaDescription) Table(name string) (TableSchema, bool) {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return TableSchema{}, false
}

// String renders the schema the way the generator prompt embeds it.
func (s SchemaDescription) String() string {
	var sb strings.Builder
	for i, t := range s.Tables {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		cols := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			cols[j] = fmt.Sprintf("%s (%s)", c.Name, c.Type)
		}
		sb.WriteString("Table: " + t.Name + "\nColumns: " + strings.Join(cols, ", "))
	}
	return sb.String()
}

// Row maps column name to a scalar value: string, float64, int64, bool or nil.
type Row map[string]any

// ResultSet is the ordered output of one executed query.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

func (r ResultSet) Len() int { return len(r.Rows) }

// Head returns at most n rows.
func (r ResultSet) Head(n int) []Row {
	if n < 0 || n >= len(r.Rows) {
		return r.Rows
	}
	return r.Rows[:n]
}

// Package ledgertest builds in-memory ledgers for tests.
package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/ledgerai/ledgerai/internal/models"
	"github.com/ledgerai/ledgerai/internal/service"
)

var schema = []string{
	`CREATE TABLE transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		description TEXT NOT NULL,
		amount REAL NOT NULL,
		category TEXT,
		account TEXT,
		transaction_type TEXT,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE category_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pattern TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX idx_transactions_user_date ON transactions(user_id, date)`,
}

// OpenStore returns a fresh in-memory SQLite store seeded with txns. It is
// closed when the test ends.
func OpenStore(t testing.TB, txns ...models.Transaction) *service.SQLStore {
	t.Helper()
	store, err := service.OpenSQLite(context.Background(), service.DBConfig{DSN: ":memory:"}, service.StoreOptions{})
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	for _, stmt := range schema {
		if err := store.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	Insert(t, store, txns...)
	return store
}

// Insert adds transactions. transaction_type is derived from the amount when
// empty.
func Insert(t testing.TB, store *service.SQLStore, txns ...models.Transaction) {
	t.Helper()
	if len(txns) == 0 {
		return
	}
	q := squirrel.Insert("transactions").
		Columns("user_id", "date", "description", "amount", "category", "account", "transaction_type")
	for _, tx := range txns {
		typ := tx.TransactionType
		if typ == "" {
			typ = models.TypeForAmount(tx.Amount)
		}
		q = q.Values(tx.OwnerID, tx.Date.Format(time.DateOnly), tx.Description, tx.Amount, tx.Category, tx.Account, typ)
	}
	stmt, args, err := q.ToSql()
	if err != nil {
		t.Fatalf("build insert: %v", err)
	}
	if err := store.Exec(context.Background(), stmt, args...); err != nil {
		t.Fatalf("insert transactions: %v", err)
	}
}

// ThisMonth returns day n of the current UTC month.
func ThisMonth(day int) time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, time.UTC)
}

// LastMonth returns day n of the previous UTC month.
func LastMonth(day int) time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month()-1, day, 0, 0, 0, 0, time.UTC)
}

// Txn is shorthand for a categorised transaction.
func Txn(owner string, date time.Time, description string, amount float64, category string) models.Transaction {
	tx := models.Transaction{
		OwnerID:     owner,
		Date:        date,
		Description: description,
		Amount:      amount,
	}
	if category != "" {
		tx.Category = &category
	}
	return tx
}

// CoffeeScenario is u1 with two coffees and a salary this month, plus u2
// with a coffee that must never show up in u1's answers.
func CoffeeScenario() []models.Transaction {
	return []models.Transaction{
		Txn("u1", ThisMonth(1), "Blue Bottle", -10, "Coffee"),
		Txn("u1", ThisMonth(1), "Blue Bottle", -20, "Coffee"),
		Txn("u1", ThisMonth(1), "ACME Payroll", 1000, "Income"),
		Txn("u2", ThisMonth(1), "Starbucks", -99, "Coffee"),
	}
}

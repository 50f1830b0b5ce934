package service_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/ledgerai/ledgerai/internal/dialect"
	"github.com/ledgerai/ledgerai/internal/ledgertest"
	"github.com/ledgerai/ledgerai/internal/service"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func newPostgresStore(t *testing.T, opts service.StoreOptions) (*service.SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSQLMock(t)
	store, err := service.NewSQLStore(db, dialect.Postgres, opts)
	if err != nil {
		t.Fatalf("NewSQLStore() error = %v", err)
	}
	return store, mock
}

const postgresSchemaSQL = `SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = current_schema() ORDER BY table_name, ordinal_position`

func TestPostgresDescribeSchema(t *testing.T) {
	store, mock := newPostgresStore(t, service.StoreOptions{})

	mock.ExpectQuery(regexp.QuoteMeta(postgresSchemaSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type"}).
			AddRow("category_rules", "id", "integer").
			AddRow("category_rules", "pattern", "text").
			AddRow("transactions", "id", "integer").
			AddRow("transactions", "user_id", "text").
			AddRow("transactions", "amount", "numeric"))

	desc, err := store.DescribeSchema(context.Background())
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	if len(desc.Tables) != 2 {
		t.Fatalf("tables = %d, want 2", len(desc.Tables))
	}
	tx, ok := desc.Table("transactions")
	if !ok {
		t.Fatal("transactions table missing")
	}
	if len(tx.Columns) != 3 || tx.Columns[2].Name != "amount" || tx.Columns[2].Type != "numeric" {
		t.Fatalf("transactions columns = %+v", tx.Columns)
	}
	assertSQLMock(t, mock)
}

func TestPostgresDescribeSchemaFailure(t *testing.T) {
	store, mock := newPostgresStore(t, service.StoreOptions{})
	mock.ExpectQuery(regexp.QuoteMeta(postgresSchemaSQL)).WillReturnError(errors.New("connection refused"))

	_, err := store.DescribeSchema(context.Background())
	if !errors.Is(err, service.ErrSchemaUnavailable) {
		t.Fatalf("error = %v, want ErrSchemaUnavailable", err)
	}
	assertSQLMock(t, mock)
}

func TestPostgresDescribeSchemaEmpty(t *testing.T) {
	store, mock := newPostgresStore(t, service.StoreOptions{})
	mock.ExpectQuery(regexp.QuoteMeta(postgresSchemaSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type"}))

	if _, err := store.DescribeSchema(context.Background()); !errors.Is(err, service.ErrSchemaUnavailable) {
		t.Fatalf("error = %v, want ErrSchemaUnavailable", err)
	}
	assertSQLMock(t, mock)
}

func TestPostgresQueryRunsReadOnlyAndNormalises(t *testing.T) {
	store, mock := newPostgresStore(t, service.StoreOptions{})
	const q = `SELECT ROUND(ABS(SUM(amount))::numeric, 2) AS total FROM (SELECT * FROM transactions WHERE user_id = $1) AS transactions`

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs("u1").
		WillReturnRows(mock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("total").OfType("NUMERIC", "0"),
		).AddRow("30.00"))
	mock.ExpectRollback()

	rs, err := store.Query(context.Background(), q, "u1")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if rs.Len() != 1 {
		t.Fatalf("rows = %d, want 1", rs.Len())
	}
	if got := rs.Rows[0]["total"]; got != 30.0 {
		t.Fatalf("total = %#v, want float64 30", got)
	}
	assertSQLMock(t, mock)
}

func TestPostgresQueryErrorKeepsStoreMessage(t *testing.T) {
	store, mock := newPostgresStore(t, service.StoreOptions{})
	const q = `SELECT nope FROM transactions`

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(q)).WillReturnError(errors.New(`column "nope" does not exist`))
	mock.ExpectRollback()

	_, err := store.Query(context.Background(), q)
	var execErr *service.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %T %v, want *ExecutionError", err, err)
	}
	if execErr.Timeout {
		t.Error("syntax errors are not timeouts")
	}
	if want := `column "nope" does not exist`; execErr.Err.Error() != want {
		t.Errorf("message = %q, want %q", execErr.Err.Error(), want)
	}
	assertSQLMock(t, mock)
}

func TestPostgresQueryRowCap(t *testing.T) {
	store, mock := newPostgresStore(t, service.StoreOptions{MaxResultRows: 2})
	const q = `SELECT description FROM transactions`

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WillReturnRows(mock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("description").OfType("TEXT", ""),
		).AddRow("a").AddRow("b").AddRow("c"))
	mock.ExpectRollback()

	rs, err := store.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if rs.Len() != 2 {
		t.Fatalf("rows = %d, want 2", rs.Len())
	}
	assertSQLMock(t, mock)
}

func TestNewSQLStoreRejectsBigQueryDialect(t *testing.T) {
	db, _ := newSQLMock(t)
	if _, err := service.NewSQLStore(db, dialect.BigQuery, service.StoreOptions{}); err == nil {
		t.Fatal("expected error for a dialect without a SQL store")
	}
}

func TestSQLiteDescribeSchema(t *testing.T) {
	store := ledgertest.OpenStore(t)

	desc, err := store.DescribeSchema(context.Background())
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	var names []string
	for _, tbl := range desc.Tables {
		names = append(names, tbl.Name)
	}
	if len(names) != 2 || names[0] != "category_rules" || names[1] != "transactions" {
		t.Fatalf("tables = %v, want [category_rules transactions]", names)
	}

	tx, _ := desc.Table("transactions")
	want := []string{"id", "user_id", "date", "description", "amount", "category", "account", "transaction_type", "created_at"}
	if len(tx.Columns) != len(want) {
		t.Fatalf("columns = %+v", tx.Columns)
	}
	for i, c := range tx.Columns {
		if c.Name != want[i] {
			t.Errorf("column %d = %s, want %s", i, c.Name, want[i])
		}
	}
	if tx.Columns[4].Type != "REAL" {
		t.Errorf("amount type = %q, want REAL", tx.Columns[4].Type)
	}
}

func TestSQLiteRoundsExpenseToPositiveCents(t *testing.T) {
	store := ledgertest.OpenStore(t,
		ledgertest.Txn("u1", ledgertest.ThisMonth(1), "Hardware store", -42.567, "Home"),
	)

	rs, err := store.Query(context.Background(),
		`SELECT ROUND(ABS(SUM(amount)), 2) AS total FROM transactions WHERE user_id = ?`, "u1")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got := rs.Rows[0]["total"]; got != 42.57 {
		t.Fatalf("total = %#v, want 42.57", got)
	}
}

func TestSQLiteQueryError(t *testing.T) {
	store := ledgertest.OpenStore(t)
	_, err := store.Query(context.Background(), `SELECT nope FROM transactions`)
	var execErr *service.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want *ExecutionError", err)
	}
}

func TestSQLiteEmptyResultHasColumns(t *testing.T) {
	store := ledgertest.OpenStore(t)
	rs, err := store.Query(context.Background(), `SELECT category, amount FROM transactions`)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if rs.Len() != 0 || len(rs.Columns) != 2 || rs.Rows == nil {
		t.Fatalf("result = %+v", rs)
	}
}

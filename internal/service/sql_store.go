package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/ledgerai/ledgerai/internal/dialect"
	"github.com/ledgerai/ledgerai/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxResultRows = 1000
	DefaultQueryTimeout  = 10 * time.Second
)

// SQLStore runs the pipeline against a database/sql handle. The handle is
// owned by the caller that opened it.
type SQLStore struct {
	db           *sql.DB
	dialect      dialect.Dialect
	schemaQuery  squirrel.SelectBuilder
	maxRows      int
	queryTimeout time.Duration
	readOnlyTx   bool
}

// StoreOptions bounds what a single query may cost.
type StoreOptions struct {
	MaxResultRows int
	QueryTimeout  time.Duration
}

func (o StoreOptions) withDefaults() StoreOptions {
	if o.MaxResultRows <= 0 {
		o.MaxResultRows = DefaultMaxResultRows
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = DefaultQueryTimeout
	}
	return o
}

// NewSQLStore wraps db for the given dialect. Only postgres and sqlite have
// introspection queries.
func NewSQLStore(db *sql.DB, d dialect.Dialect, opts StoreOptions) (*SQLStore, error) {
	opts = opts.withDefaults()
	s := &SQLStore{
		db:           db,
		dialect:      d,
		maxRows:      opts.MaxResultRows,
		queryTimeout: opts.QueryTimeout,
	}
	switch d.Name {
	case dialect.Postgres.Name:
		s.schemaQuery = postgresSchemaQuery()
		s.readOnlyTx = true
	case dialect.SQLite.Name:
		s.schemaQuery = sqliteSchemaQuery()
	default:
		return nil, fmt.Errorf("no SQL store for dialect %q", d.Name)
	}
	return s, nil
}

func postgresSchemaQuery() squirrel.SelectBuilder {
	return squirrel.Select("table_name", "column_name", "data_type").
		From("information_schema.columns").
		Where("table_schema = current_schema()").
		OrderBy("table_name", "ordinal_position").
		PlaceholderFormat(squirrel.Dollar)
}

func sqliteSchemaQuery() squirrel.SelectBuilder {
	return squirrel.Select("m.name", "p.name", "p.type").
		From("sqlite_master AS m").
		Join("pragma_table_info(m.name) AS p").
		Where(squirrel.Eq{"m.type": "table"}).
		Where(squirrel.NotLike{"m.name": "sqlite_%"}).
		OrderBy("m.name", "p.cid")
}

func (s *SQLStore) Dialect() dialect.Dialect { return s.dialect }

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DescribeSchema reads column metadata for every user table.
func (s *SQLStore) DescribeSchema(ctx context.Context) (models.SchemaDescription, error) {
	query, args, err := s.schemaQuery.ToSql()
	if err != nil {
		return models.SchemaDescription{}, schemaError(err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return models.SchemaDescription{}, schemaError(err)
	}
	defer rows.Close()

	var desc models.SchemaDescription
	for rows.Next() {
		var table, column string
		var typ sql.NullString
		if err := rows.Scan(&table, &column, &typ); err != nil {
			return models.SchemaDescription{}, schemaError(err)
		}
		n := len(desc.Tables)
		if n == 0 || desc.Tables[n-1].Name != table {
			desc.Tables = append(desc.Tables, models.TableSchema{Name: table})
			n++
		}
		desc.Tables[n-1].Columns = append(desc.Tables[n-1].Columns, models.Column{Name: column, Type: typ.String})
	}
	if err := rows.Err(); err != nil {
		return models.SchemaDescription{}, schemaError(err)
	}
	if len(desc.Tables) == 0 {
		return models.SchemaDescription{}, schemaError(fmt.Errorf("store exposes no tables"))
	}
	return desc, nil
}

// Exec runs a write statement. It exists for ingestion and fixtures; the
// question pipeline only ever calls Query.
func (s *SQLStore) Exec(ctx context.Context, stmt string, args ...any) error {
	_, err := s.db.ExecContext(ctx, stmt, args...)
	return err
}

// Query runs a scoped statement. Postgres runs it inside a READ ONLY
// transaction that is always rolled back. At most maxRows rows are returned.
func (s *SQLStore) Query(ctx context.Context, query string, args ...any) (models.ResultSet, error) {
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var q interface {
		QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	} = s.db
	if s.readOnlyTx {
		tx, err := s.db.BeginTx(qctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return models.ResultSet{}, newExecutionError(qctx, err)
		}
		defer func() { _ = tx.Rollback() }()
		q = tx
	}

	start := time.Now()
	rows, err := q.QueryContext(qctx, query, args...)
	if err != nil {
		return models.ResultSet{}, newExecutionError(qctx, err)
	}
	defer rows.Close()

	rs, truncated, err := scanRows(rows, s.maxRows)
	if err != nil {
		return models.ResultSet{}, newExecutionError(qctx, err)
	}

	if truncated {
		log.Warn().Int("max_rows", s.maxRows).Msg("result set truncated")
	}
	log.Debug().
		Str("dialect", s.dialect.Name).
		Int("rows", rs.Len()).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("query executed")
	return rs, nil
}

// scanRows reads at most maxRows rows. The bool reports whether more rows were
// available.
func scanRows(rows *sql.Rows, maxRows int) (models.ResultSet, bool, error) {
	cols, err := rows.Columns()
	if err != nil {
		return models.ResultSet{}, false, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return models.ResultSet{}, false, err
	}
	dbTypes := make([]string, len(types))
	for i, ct := range types {
		dbTypes[i] = ct.DatabaseTypeName()
	}

	rs := models.ResultSet{Columns: cols, Rows: []models.Row{}}
	truncated := false
	for rows.Next() {
		if rs.Len() >= maxRows {
			truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return models.ResultSet{}, false, err
		}
		row := make(models.Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(vals[i], dbTypes[i])
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return models.ResultSet{}, false, err
	}
	return rs, truncated, nil
}

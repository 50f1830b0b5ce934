package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/ledgerai/ledgerai/internal/dialect"
	"github.com/ledgerai/ledgerai/internal/models"
	"github.com/ledgerai/ledgerai/internal/security"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BigQueryConfig points the store at the dataset holding the ledger tables.
type BigQueryConfig struct {
	ProjectID       string
	DatasetID       string
	CredentialsFile string
	Location        string
	MaxBytesBilled  int64
}

// BigQueryStore serves the ledger from a BigQuery dataset. Generated SQL
// names tables unqualified; the dataset is supplied as the job default.
type BigQueryStore struct {
	client       *bigquery.Client
	cfg          BigQueryConfig
	costTracker  *security.CostTracker
	maxRows      int
	queryTimeout time.Duration
}

// NewBigQueryStore creates a new BigQuery client
func NewBigQueryStore(ctx context.Context, cfg BigQueryConfig, opts StoreOptions) (*BigQueryStore, error) {
	if cfg.ProjectID == "" || cfg.DatasetID == "" {
		return nil, fmt.Errorf("bigquery project and dataset are required")
	}
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}

	opts = opts.withDefaults()
	return &BigQueryStore{
		client:       client,
		cfg:          cfg,
		costTracker:  security.NewCostTracker(cfg.MaxBytesBilled),
		maxRows:      opts.MaxResultRows,
		queryTimeout: opts.QueryTimeout,
	}, nil
}

func (s *BigQueryStore) Dialect() dialect.Dialect { return dialect.BigQuery }

// Close releases the BigQuery client
func (s *BigQueryStore) Close() error {
	return s.client.Close()
}

// Ping verifies the dataset is reachable
func (s *BigQueryStore) Ping(ctx context.Context) error {
	_, err := s.client.Dataset(s.cfg.DatasetID).Metadata(ctx)
	return err
}

// DescribeSchema returns the schema of every table in the dataset
func (s *BigQueryStore) DescribeSchema(ctx context.Context) (models.SchemaDescription, error) {
	ds := s.client.Dataset(s.cfg.DatasetID)
	var names []string
	it := ds.Tables(ctx)
	for {
		tbl, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return models.SchemaDescription{}, schemaError(fmt.Errorf("list tables: %w", err))
		}
		names = append(names, tbl.TableID)
	}
	if len(names) == 0 {
		return models.SchemaDescription{}, schemaError(fmt.Errorf("dataset %q has no tables", s.cfg.DatasetID))
	}
	sort.Strings(names)

	var desc models.SchemaDescription
	for _, name := range names {
		meta, err := ds.Table(name).Metadata(ctx)
		if err != nil {
			return models.SchemaDescription{}, schemaError(fmt.Errorf("get table %q.%q: %w", s.cfg.DatasetID, name, err))
		}
		if meta.Type != bigquery.RegularTable {
			continue
		}
		t := models.TableSchema{Name: name}
		for _, f := range meta.Schema {
			t.Columns = append(t.Columns, models.Column{Name: f.Name, Type: string(f.Type)})
		}
		desc.Tables = append(desc.Tables, t)
	}
	return desc, nil
}

// Query runs a scoped statement. A dry run is checked against the byte limit
// before the real job is started.
func (s *BigQueryStore) Query(ctx context.Context, query string, args ...any) (models.ResultSet, error) {
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	params, err := queryParameters(args)
	if err != nil {
		return models.ResultSet{}, &ExecutionError{Err: err}
	}
	build := func(dryRun bool) *bigquery.Query {
		q := s.client.Query(query)
		q.DefaultProjectID = s.cfg.ProjectID
		q.DefaultDatasetID = s.cfg.DatasetID
		q.Parameters = params
		q.DryRun = dryRun
		if s.cfg.MaxBytesBilled > 0 {
			q.MaxBytesBilled = s.cfg.MaxBytesBilled
		}
		return q
	}

	owner := ownerFromParams(params)
	if s.cfg.MaxBytesBilled > 0 {
		job, err := build(true).Run(qctx)
		if err != nil {
			return models.ResultSet{}, newExecutionError(qctx, fmt.Errorf("dry run: %w", err))
		}
		if stats := job.LastStatus().Statistics; stats != nil {
			if ok, msg := s.costTracker.CheckLimits(stats.TotalBytesProcessed); !ok {
				return models.ResultSet{}, &ExecutionError{Err: errors.New(msg)}
			}
		}
	}

	start := time.Now()
	job, err := build(false).Run(qctx)
	if err != nil {
		return models.ResultSet{}, newExecutionError(qctx, fmt.Errorf("query run: %w", err))
	}
	status, err := job.Wait(qctx)
	if err != nil {
		return models.ResultSet{}, newExecutionError(qctx, fmt.Errorf("job wait: %w", err))
	}
	if err := status.Err(); err != nil {
		return models.ResultSet{}, &ExecutionError{Err: err}
	}

	it, err := job.Read(qctx)
	if err != nil {
		return models.ResultSet{}, newExecutionError(qctx, fmt.Errorf("job read: %w", err))
	}

	rs := models.ResultSet{Rows: []models.Row{}}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return models.ResultSet{}, newExecutionError(qctx, fmt.Errorf("read row: %w", err))
		}
		if rs.Columns == nil {
			for _, f := range it.Schema {
				rs.Columns = append(rs.Columns, f.Name)
			}
		}
		if rs.Len() >= s.maxRows {
			log.Warn().Int("max_rows", s.maxRows).Msg("result set truncated")
			break
		}
		m := make(models.Row, len(row))
		for i, v := range row {
			if i < len(rs.Columns) {
				m[rs.Columns[i]] = normalizeValue(v, string(it.Schema[i].Type))
			}
		}
		rs.Rows = append(rs.Rows, m)
	}

	if stats := job.LastStatus().Statistics; stats != nil {
		s.costTracker.LogQueryCost(query, stats.TotalBytesProcessed, owner, time.Since(start).Milliseconds())
	}
	return rs, nil
}

// queryParameters maps sql.Named owner arguments onto BigQuery named
// parameters. Positional arguments are not supported.
func queryParameters(args []any) ([]bigquery.QueryParameter, error) {
	params := make([]bigquery.QueryParameter, 0, len(args))
	for _, a := range args {
		named, ok := a.(sql.NamedArg)
		if !ok {
			return nil, fmt.Errorf("bigquery requires named parameters, got %T", a)
		}
		params = append(params, bigquery.QueryParameter{Name: named.Name, Value: named.Value})
	}
	return params, nil
}

func ownerFromParams(params []bigquery.QueryParameter) string {
	for _, p := range params {
		if p.Name == dialect.OwnerParam {
			if s, ok := p.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

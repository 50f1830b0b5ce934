package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerai/ledgerai/internal/dialect"
	"github.com/ledgerai/ledgerai/internal/models"
)

// Store is the ledger database the pipeline reads from. Implementations are
// opened once at startup and shared by all requests.
type Store interface {
	Dialect() dialect.Dialect
	// DescribeSchema lists every non-system table with its columns in
	// declaration order. It never returns a partial schema.
	DescribeSchema(ctx context.Context) (models.SchemaDescription, error)
	// Query runs one read-only statement. Failures are *ExecutionError.
	Query(ctx context.Context, query string, args ...any) (models.ResultSet, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrSchemaUnavailable wraps every introspection failure.
var ErrSchemaUnavailable = errors.New("schema unavailable")

// ExecutionError is a store-level failure running a scoped query. It keeps the
// store's own message.
type ExecutionError struct {
	Err     error
	Timeout bool
}

func (e *ExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("query timed out: %v", e.Err)
	}
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func newExecutionError(ctx context.Context, err error) *ExecutionError {
	return &ExecutionError{
		Err:     err,
		Timeout: errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
}

func schemaError(err error) error {
	return fmt.Errorf("%w: %w", ErrSchemaUnavailable, err)
}

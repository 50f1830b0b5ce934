package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ledgerai/ledgerai/internal/dialect"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens a file or in-memory SQLite ledger. An in-memory database
// lives only as long as its connection, so the pool is pinned to one.
func OpenSQLite(ctx context.Context, cfg DBConfig, opts StoreOptions) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	if isMemoryDSN(cfg.DSN) {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxIdleTime = 0
		cfg.ConnMaxLifetime = 0
	}
	applyPool(db, cfg)

	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger db: %w", err)
	}
	return NewSQLStore(db, dialect.SQLite, opts)
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

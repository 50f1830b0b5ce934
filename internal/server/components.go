package server

import (
	"context"
	"fmt"

	"github.com/ledgerai/ledgerai/internal/config"
	"github.com/ledgerai/ledgerai/internal/llm"
	"github.com/ledgerai/ledgerai/internal/service"
	"github.com/rs/zerolog/log"
)

// Components are the long-lived services the routes are built from. They are
// opened once at startup and shared by every request.
type Components struct {
	Store     service.Store
	LLM       llm.Completer
	AuditSink *service.ElasticsearchAuditSink // nil when disabled
}

// Build opens the ledger store, the language model client and the optional
// audit sink described by cfg.
func Build(ctx context.Context, cfg *config.Config) (Components, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return Components{}, err
	}

	completer, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		BaseURL:  cfg.LLMBaseURL,
		Timeout:  cfg.LLMTimeout.Std(),
	})
	if err != nil {
		_ = store.Close()
		return Components{}, fmt.Errorf("language model: %w", err)
	}

	c := Components{Store: store, LLM: completer}
	if cfg.ElasticsearchEnabled {
		sink, err := service.NewElasticsearchAuditSink(service.ElasticsearchConfig{
			Addresses:   cfg.ElasticsearchAddresses,
			Username:    cfg.ElasticsearchUser,
			Password:    cfg.ElasticsearchPassword,
			VerifyCerts: cfg.ElasticsearchVerifyCerts,
			MaxRetries:  cfg.ElasticsearchMaxRetries,
			Index:       cfg.ElasticsearchIndex,
		})
		if err != nil {
			// audit events still reach the log
			log.Warn().Err(err).Msg("Elasticsearch audit sink unavailable")
		} else {
			c.AuditSink = sink
		}
	}
	return c, nil
}

func openStore(ctx context.Context, cfg *config.Config) (service.Store, error) {
	opts := service.StoreOptions{
		MaxResultRows: cfg.MaxResultRows,
		QueryTimeout:  cfg.QueryTimeout.Std(),
	}
	db := service.DBConfig{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime.Std(),
		ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
	}

	switch cfg.DBDialect {
	case "postgres":
		return service.OpenPostgres(ctx, db, opts)
	case "sqlite":
		return service.OpenSQLite(ctx, db, opts)
	case "bigquery":
		return service.NewBigQueryStore(ctx, service.BigQueryConfig{
			ProjectID:       cfg.GCPProjectID,
			DatasetID:       cfg.BigQueryDataset,
			CredentialsFile: cfg.GoogleApplicationCredentials,
			Location:        cfg.BigQueryLocation,
			MaxBytesBilled:  cfg.MaxQueryBytesProcessed,
		}, opts)
	default:
		return nil, fmt.Errorf("unsupported db dialect %q", cfg.DBDialect)
	}
}

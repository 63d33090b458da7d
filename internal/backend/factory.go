// Package backend selects and opens the configured data backend.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"pmt/internal/config"
	"pmt/internal/services"
	"pmt/internal/storage"
	"pmt/internal/storage/postgres"
)

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// Result bundles the opened store with its cleanup and readiness probe.
type Result struct {
	Store   services.Store
	Cleanup CleanupFunc
	// Ready pings the underlying database. Used by /readyz.
	Ready func(ctx context.Context) error
}

// Open creates the store named by cfg.DataBackend.
func Open(cfg *config.Config) (*Result, error) {
	switch cfg.DataBackend {
	case "sqlite":
		return openSQLite(cfg)
	case "postgres":
		return openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported data backend: %s", cfg.DataBackend)
	}
}

func openSQLite(cfg *config.Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	slog.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)

	return &Result{
		Store:   repo,
		Cleanup: repo.Close,
		Ready: func(ctx context.Context) error {
			return repo.DB().PingContext(ctx)
		},
	}, nil
}

func openPostgres(cfg *config.Config) (*Result, error) {
	store, err := postgres.NewStore(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}

	slog.Info("Initialized Postgres backend")

	return &Result{
		Store:   store,
		Cleanup: store.Close,
		Ready: func(ctx context.Context) error {
			return store.DB().PingContext(ctx)
		},
	}, nil
}

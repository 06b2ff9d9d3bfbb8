package backend

import (
	"context"
	"fmt"
	"log/slog"

	"teambudget/internal/storage"
	"teambudget/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return f.sqlResult(ctx, repo, config)

	case PostgresBackend:
		repo, err := storage.NewPostgresRepository(ctx, config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL repository: %w", err)
		}
		f.logger.Info("Initialized PostgreSQL backend")
		return f.sqlResult(ctx, repo, config)

	case MemoryBackend:
		store := memory.New()
		if config.SeedDefaults {
			store = memory.NewSeeded()
		}
		f.logger.Info("Initialized memory backend", "seeded", config.SeedDefaults)
		return &BackendResult{
			Store:   store,
			Cleanup: store.Close,
			Seeded:  config.SeedDefaults,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) sqlResult(ctx context.Context, repo *storage.Repository, config Config) (*BackendResult, error) {
	seeded := false
	if config.SeedDefaults {
		var err error
		if seeded, err = repo.Seed(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("seed defaults: %w", err)
		}
	}
	return &BackendResult{
		Store:   repo,
		Cleanup: repo.Close,
		Seeded:  seeded,
	}, nil
}

package backend

import (
	"context"
	"fmt"

	"budget/internal/log"
	"budget/internal/persistence/memory"
	"budget/internal/storage"
	"budget/internal/storage/postgres"
)

type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend validates config and opens the matching store. SQL stores
// are migrated before they are returned.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = openSQLite(config)
	case PostgresBackend:
		res, err = openPostgres(ctx, config)
	case MemoryBackend:
		res = openMemory(config)
	}
	if err != nil {
		f.logger.ErrorContext(ctx, "Failed to open store",
			"backend", config.Type.String(),
			"target", config.Target(),
			log.FieldError, err)
		return nil, err
	}

	f.logger.InfoContext(ctx, "Opened store",
		"backend", config.Type.String(),
		"target", config.Target())
	return res, nil
}

func openSQLite(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
}

func openPostgres(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := postgres.New(ctx, config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	return &BackendResult{Store: store, Cleanup: store.Close}, nil
}

func openMemory(config Config) *BackendResult {
	store := memory.New()
	if config.DataDirectory != "" {
		store = memory.NewFromFiles(config.DataDirectory)
	}
	return &BackendResult{Store: store, Cleanup: store.Close}
}

package core

import (
	"context"
	"fmt"

	"claimdesk/internal/infra/persistence/memory"
	"claimdesk/internal/infra/persistence/postgres"
	"claimdesk/internal/infra/persistence/sqlite"
	"claimdesk/pkg/domain"
)

// StorageDriver identifies a concrete row store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file (local dev)
	StoragePostgres StorageDriver = "postgres" // hosted PostgreSQL (default)
)

// StorageConfig selects and parameterises the row store.
type StorageConfig struct {
	Driver       StorageDriver
	URL          string
	Key          string
	SQLitePath   string
	MaxOpenConns int
}

// OpenRowStore constructs the configured row store. An empty driver selects postgres.
func OpenRowStore(ctx context.Context, cfg StorageConfig) (domain.RowStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StoragePostgres
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, postgres.Config{URL: cfg.URL, Key: cfg.Key, MaxOpenConns: cfg.MaxOpenConns})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

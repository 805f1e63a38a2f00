package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("storage: key not found")

// Storage is a key/value byte store. Sessions keep their full thread list
// under a single key.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver     string
	SQLitePath string
	Postgres   DatabaseConfig
}

// New opens the store selected by cfg.Driver.
func New(cfg Config, logger *zap.Logger) (Storage, error) {
	switch cfg.Driver {
	case DriverMemory:
		logger.Info("Using in-memory storage")
		return NewMemoryStorage(), nil
	case DriverSQLite, "":
		logger.Info("Using SQLite storage", zap.String("path", cfg.SQLitePath))
		return NewSQLiteStorage(cfg.SQLitePath)
	case DriverPostgres:
		logger.Info("Using PostgreSQL storage",
			zap.String("host", cfg.Postgres.Host),
			zap.String("dbname", cfg.Postgres.DBName))
		return NewPostgresStorage(cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

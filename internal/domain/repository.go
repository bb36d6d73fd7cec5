// Package domain defines the core interfaces and types for fraudscan.
package domain

import (
	"context"
	"database/sql"
	"time"
)

// Dataset is a queryable handle over the billing, registry and exclusion
// tables. Detectors depend only on this interface.
type Dataset interface {
	// Query runs a read query. Placeholders are written as ? and rebound
	// for the underlying driver.
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)

	// CountBillingProviders returns the number of distinct billing NPIs.
	CountBillingProviders(ctx context.Context) (int64, error)

	// Health check
	Ping(ctx context.Context) error
}

// ReferenceSource resolves identity and billing totals for many NPIs in
// one round trip. Missing NPIs are simply absent from the result.
type ReferenceSource interface {
	BatchLookupIdentity(ctx context.Context, npis []string) (map[string]Identity, error)
	BatchLookupTotals(ctx context.Context, npis []string) (map[string]Totals, error)
}

// Repository is the SQL-backed dataset.
type Repository interface {
	Dataset
	ReferenceSource

	// Lifecycle
	Close() error
}

// Detector produces findings for one signal type over a dataset.
type Detector interface {
	Name() SignalType
	Detect(ctx context.Context, ds Dataset) ([]Finding, error)
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `koanf:"driver"`

	// SQLite specific
	SQLitePath string `koanf:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `koanf:"postgres_host"`
	PostgresPort     int    `koanf:"postgres_port"`
	PostgresUser     string `koanf:"postgres_user"`
	PostgresPassword string `koanf:"postgres_password"`
	PostgresDB       string `koanf:"postgres_db"`
	PostgresSSLMode  string `koanf:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`

	// LookupBatchSize bounds the IN (...) list of batch lookups.
	LookupBatchSize int `koanf:"lookup_batch_size"`
}

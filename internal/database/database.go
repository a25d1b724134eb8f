// Package database opens SQL connections for dataset inputs.
// Connections go through sqlx; PostgreSQL is served by lib/pq.
package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" driver

	"github.com/tabprep/runtime/internal/errhandling"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
)

// DefaultConnectTimeout bounds the initial ping.
const DefaultConnectTimeout = 10 * time.Second

var (
	// ErrMissingConnectionString is returned when neither a connection string
	// nor a reference to one is configured.
	ErrMissingConnectionString = errors.New("connectionString or connectionStringRef is required")
	// ErrUnsupportedDriver is returned for drivers other than postgres.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Config describes a database connection.
type Config struct {
	// Driver is the database/sql driver name (default "postgres")
	Driver string
	// ConnectionString is the DSN
	ConnectionString string
	// ConnectionStringRef names an environment variable holding the DSN
	ConnectionStringRef string
	// ConnectTimeout bounds the initial ping (default 10s)
	ConnectTimeout time.Duration
}

// ResolveConnectionString returns the DSN, reading ConnectionStringRef from the
// environment when no literal connection string is configured.
func (c Config) ResolveConnectionString() (string, error) {
	if c.ConnectionString != "" {
		return c.ConnectionString, nil
	}
	if c.ConnectionStringRef == "" {
		return "", ErrMissingConnectionString
	}
	dsn, ok := os.LookupEnv(c.ConnectionStringRef)
	if !ok || dsn == "" {
		return "", errhandling.NewConfigurationError(
			fmt.Sprintf("environment variable %s referenced by connectionStringRef is not set", c.ConnectionStringRef), nil)
	}
	return dsn, nil
}

// DriverName returns the configured driver, defaulting to postgres.
func (c Config) DriverName() (string, error) {
	switch c.Driver {
	case "", DriverPostgres, "postgresql":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, c.Driver)
	}
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	driver, err := cfg.DriverName()
	if err != nil {
		return nil, errhandling.NewConfigurationError(err.Error(), err)
	}
	dsn, err := cfg.ResolveConnectionString()
	if err != nil {
		return nil, err
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, ClassifyDatabaseError(err, "connect")
	}
	return db, nil
}

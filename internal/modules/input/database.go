package input

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tabprep/runtime/internal/database"
	"github.com/tabprep/runtime/internal/logger"
	"github.com/tabprep/runtime/internal/modules/modconfig"
	"github.com/tabprep/runtime/internal/table"
	"github.com/tabprep/runtime/pkg/prep"
)

const defaultQueryTimeout = 60 * time.Second

// DatabaseInputConfig holds the parsed options of a database input.
type DatabaseInputConfig struct {
	Driver              string
	ConnectionString    string
	ConnectionStringRef string
	Query               string
	Timeout             time.Duration
	Types               map[string]table.Type
}

// DatabaseInput loads a dataset with a single SQL query.
//
// Config fields:
//   - driver: "postgres" (default)
//   - connectionString or connectionStringRef (required)
//   - query (required): SELECT returning one row per sample
//   - timeoutMs: query timeout, default 60000
//   - types: column -> float|int|string|bool
type DatabaseInput struct {
	config DatabaseInputConfig
	db     *sqlx.DB
}

// ParseDatabaseInputConfig validates the module options without connecting.
func ParseDatabaseInputConfig(cfg *prep.ModuleConfig) (DatabaseInputConfig, error) {
	if cfg == nil {
		return DatabaseInputConfig{}, ErrNilConfig
	}
	c := DatabaseInputConfig{
		Driver:              modconfig.String(cfg.Config, "driver"),
		ConnectionString:    modconfig.String(cfg.Config, "connectionString"),
		ConnectionStringRef: modconfig.String(cfg.Config, "connectionStringRef"),
		Query:               modconfig.String(cfg.Config, "query"),
		Timeout:             modconfig.Timeout(cfg.Config, defaultQueryTimeout),
	}
	if c.Query == "" {
		return c, modconfig.Required("database", "query")
	}
	if c.ConnectionString == "" && c.ConnectionStringRef == "" {
		return c, modconfig.Required("database", "connectionString")
	}
	if _, err := c.dbConfig().DriverName(); err != nil {
		return c, &modconfig.ValidationError{Module: "database", Field: "driver", Message: err.Error()}
	}
	types, err := parseTypes("database", cfg.Config)
	if err != nil {
		return c, err
	}
	c.Types = types
	return c, nil
}

func (c DatabaseInputConfig) dbConfig() database.Config {
	return database.Config{
		Driver:              c.Driver,
		ConnectionString:    c.ConnectionString,
		ConnectionStringRef: c.ConnectionStringRef,
	}
}

// NewDatabaseInputFromConfig creates a database input module. The connection
// is opened lazily on the first Fetch.
func NewDatabaseInputFromConfig(cfg *prep.ModuleConfig) (*DatabaseInput, error) {
	c, err := ParseDatabaseInputConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &DatabaseInput{config: c}, nil
}

// Fetch runs the query and loads every row.
func (d *DatabaseInput) Fetch(ctx context.Context) (*table.Table, error) {
	if d.db == nil {
		db, err := database.Open(ctx, d.config.dbConfig())
		if err != nil {
			return nil, err
		}
		d.db = db
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	start := time.Now()
	rows, err := d.db.QueryxContext(ctx, d.config.Query)
	if err != nil {
		return nil, database.ClassifyDatabaseError(err, "select")
	}
	defer func() { _ = rows.Close() }()

	var records []map[string]interface{}
	for rows.Next() {
		record := make(map[string]interface{})
		if err := rows.MapScan(record); err != nil {
			return nil, database.ClassifyDatabaseError(err, "scan")
		}
		for k, v := range record {
			record[k] = convertDatabaseValue(v)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, database.ClassifyDatabaseError(err, "select")
	}

	t, err := table.FromMaps(records, d.config.Types)
	if err != nil {
		return nil, fmt.Errorf("loading query rows: %w", err)
	}
	logger.Debug("database input read", "rows", t.Nrow(), "duration", time.Since(start))
	return t, nil
}

// convertDatabaseValue turns driver values into values gota can type-detect.
func convertDatabaseValue(val interface{}) interface{} {
	switch v := val.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return v
	}
}

// Close closes the connection pool.
func (d *DatabaseInput) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

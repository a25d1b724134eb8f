package output

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tabprep/runtime/internal/database"
	"github.com/tabprep/runtime/internal/logger"
	"github.com/tabprep/runtime/internal/modules/modconfig"
	"github.com/tabprep/runtime/internal/transform"
	"github.com/tabprep/runtime/pkg/prep"
)

const (
	defaultDatabaseOutputTimeout = 30 * time.Second
	defaultBatchSize             = 500
	// PostgreSQL accepts at most 65535 bind parameters per statement.
	maxBindParameters = 65535
)

// DatabaseOutputConfig holds the parsed options of a database output.
type DatabaseOutputConfig struct {
	Driver              string
	ConnectionString    string
	ConnectionStringRef string
	Table               string
	CreateTable         bool
	Truncate            bool
	BatchSize           int
	Timeout             time.Duration
}

// DatabaseOutput inserts the feature matrix into a table, one column per
// feature, inside a single transaction.
//
// Config fields:
//   - driver: "postgres" (default)
//   - connectionString or connectionStringRef (required)
//   - table (required): destination table, optionally schema-qualified
//   - createTable: create the table with DOUBLE PRECISION columns if missing
//   - truncate: empty the table before inserting
//   - batchSize: rows per INSERT statement, default 500
//   - timeoutMs: timeout for the whole write, default 30000
type DatabaseOutput struct {
	config DatabaseOutputConfig
	db     *sqlx.DB
}

// ParseDatabaseOutputConfig validates the module options without connecting.
func ParseDatabaseOutputConfig(cfg *prep.ModuleConfig) (DatabaseOutputConfig, error) {
	if cfg == nil {
		return DatabaseOutputConfig{}, ErrNilConfig
	}
	c := DatabaseOutputConfig{
		Driver:              modconfig.String(cfg.Config, "driver"),
		ConnectionString:    modconfig.String(cfg.Config, "connectionString"),
		ConnectionStringRef: modconfig.String(cfg.Config, "connectionStringRef"),
		Table:               modconfig.String(cfg.Config, "table"),
		CreateTable:         modconfig.Bool(cfg.Config, "createTable", false),
		Truncate:            modconfig.Bool(cfg.Config, "truncate", false),
		BatchSize:           defaultBatchSize,
		Timeout:             modconfig.Timeout(cfg.Config, defaultDatabaseOutputTimeout),
	}
	if c.Table == "" {
		return c, modconfig.Required("database", "table")
	}
	for _, part := range strings.Split(c.Table, ".") {
		if part == "" {
			return c, &modconfig.ValidationError{Module: "database", Field: "table", Message: fmt.Sprintf("invalid table name %q", c.Table)}
		}
	}
	if c.ConnectionString == "" && c.ConnectionStringRef == "" {
		return c, modconfig.Required("database", "connectionString")
	}
	if _, err := c.dbConfig().DriverName(); err != nil {
		return c, &modconfig.ValidationError{Module: "database", Field: "driver", Message: err.Error()}
	}
	if n, ok := modconfig.Int(cfg.Config, "batchSize"); ok {
		if n <= 0 {
			return c, &modconfig.ValidationError{Module: "database", Field: "batchSize", Message: "must be positive"}
		}
		c.BatchSize = n
	}
	return c, nil
}

func (c DatabaseOutputConfig) dbConfig() database.Config {
	return database.Config{
		Driver:              c.Driver,
		ConnectionString:    c.ConnectionString,
		ConnectionStringRef: c.ConnectionStringRef,
	}
}

// NewDatabaseOutputFromConfig creates a database output module. The
// connection is opened lazily on the first Write.
func NewDatabaseOutputFromConfig(cfg *prep.ModuleConfig) (*DatabaseOutput, error) {
	c, err := ParseDatabaseOutputConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &DatabaseOutput{config: c}, nil
}

// Write inserts every row. Nothing is committed if any statement fails.
func (d *DatabaseOutput) Write(ctx context.Context, out *transform.Output) (int, error) {
	if len(out.Features) == 0 {
		logger.Warn("database output skipped: no features", slog.String("table", d.config.Table))
		return 0, nil
	}
	if d.db == nil {
		db, err := database.Open(ctx, d.config.dbConfig())
		if err != nil {
			return 0, err
		}
		d.db = db
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	start := time.Now()
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, database.ClassifyDatabaseError(err, "begin")
	}
	written, err := d.writeTx(ctx, tx, out)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, database.ClassifyDatabaseError(err, "commit")
	}

	logger.Debug("database output written",
		slog.String("table", d.config.Table),
		slog.Int("rows", written),
		slog.Duration("duration", time.Since(start)),
	)
	return written, nil
}

func (d *DatabaseOutput) writeTx(ctx context.Context, tx *sqlx.Tx, out *transform.Output) (int, error) {
	if d.config.CreateTable {
		if _, err := tx.ExecContext(ctx, createTableStatement(d.config.Table, out.Features)); err != nil {
			return 0, database.ClassifyDatabaseError(err, "create table")
		}
	}
	if d.config.Truncate {
		if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE "+quoteTable(d.config.Table)); err != nil {
			return 0, database.ClassifyDatabaseError(err, "truncate")
		}
	}

	batch := batchRows(d.config.BatchSize, len(out.Features))
	written := 0
	for lo := 0; lo < out.Rows; lo += batch {
		hi := lo + batch
		if hi > out.Rows {
			hi = out.Rows
		}
		query := tx.Rebind(insertStatement(d.config.Table, out.Features, hi-lo))
		if _, err := tx.ExecContext(ctx, query, insertArgs(out, lo, hi)...); err != nil {
			return written, database.ClassifyDatabaseError(err, "insert")
		}
		written += hi - lo
	}
	return written, nil
}

// batchRows caps the batch so a statement stays under the bind limit.
func batchRows(batchSize, features int) int {
	if limit := maxBindParameters / features; batchSize > limit {
		return limit
	}
	return batchSize
}

func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func quoteColumns(features []string) []string {
	cols := make([]string, len(features))
	for i, f := range features {
		cols[i] = pq.QuoteIdentifier(f)
	}
	return cols
}

func createTableStatement(table string, features []string) string {
	cols := quoteColumns(features)
	for i := range cols {
		cols[i] += " DOUBLE PRECISION"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteTable(table), strings.Join(cols, ", "))
}

// insertStatement builds a multi-row INSERT with '?' bind variables.
func insertStatement(table string, features []string, rows int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(features)), ", ") + ")"
	values := make([]string, rows)
	for i := range values {
		values[i] = row
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteTable(table), strings.Join(quoteColumns(features), ", "), strings.Join(values, ", "))
}

// insertArgs flattens rows [lo, hi) with NaN as NULL.
func insertArgs(out *transform.Output, lo, hi int) []interface{} {
	args := make([]interface{}, 0, (hi-lo)*len(out.Features))
	for i := lo; i < hi; i++ {
		for _, v := range out.Row(i) {
			if math.IsNaN(v) {
				args = append(args, nil)
				continue
			}
			args = append(args, v)
		}
	}
	return args
}

// Close closes the connection pool.
func (d *DatabaseOutput) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

package input

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/logger"
	"github.com/tabprep/runtime/internal/modules/modconfig"
	"github.com/tabprep/runtime/internal/table"
	"github.com/tabprep/runtime/pkg/prep"
)

// CSVInput reads a dataset from a local CSV file with a header row.
//
// Config fields:
//   - path (required): file to read
//   - delimiter: single character, default ","
//   - types: column -> float|int|string|bool, other columns are detected
//   - nanValues: raw strings read as missing
type CSVInput struct {
	path string
	opts table.ReadOptions
}

// NewCSVInputFromConfig creates a CSV input module from configuration.
func NewCSVInputFromConfig(cfg *prep.ModuleConfig) (*CSVInput, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	path := modconfig.String(cfg.Config, "path")
	if path == "" {
		return nil, modconfig.Required("csv", "path")
	}
	opts := table.ReadOptions{NaNValues: modconfig.StringSlice(cfg.Config, "nanValues")}
	if d := modconfig.String(cfg.Config, "delimiter"); d != "" {
		r, size := utf8.DecodeRuneInString(d)
		if size != len(d) {
			return nil, &modconfig.ValidationError{Module: "csv", Field: "delimiter", Message: "must be a single character"}
		}
		opts.Delimiter = r
	}
	types, err := parseTypes("csv", cfg.Config)
	if err != nil {
		return nil, err
	}
	opts.Types = types
	return &CSVInput{path: path, opts: opts}, nil
}

// Fetch reads the whole file.
func (c *CSVInput) Fetch(ctx context.Context) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(c.path)
	if err != nil {
		return nil, errhandling.NewIOError(fmt.Sprintf("opening %s", c.path), err)
	}
	defer func() { _ = f.Close() }()

	t, err := table.ReadCSV(f, c.opts)
	if err != nil {
		return nil, errhandling.NewIOError(fmt.Sprintf("reading %s", c.path), err)
	}
	logger.Debug("csv input read", "path", c.path, "rows", t.Nrow(), "columns", len(t.Names()))
	return t, nil
}

// Close is a no-op; the file is closed after each Fetch.
func (c *CSVInput) Close() error {
	return nil
}

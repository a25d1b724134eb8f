package output

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/logger"
	"github.com/tabprep/runtime/internal/modules/modconfig"
	"github.com/tabprep/runtime/internal/transform"
	"github.com/tabprep/runtime/pkg/prep"
)

// CSVOutput writes the feature matrix as CSV.
//
// Config fields:
//   - path (required): destination file, "-" for standard output
//   - header: write the feature names as the first row, default true
type CSVOutput struct {
	path   string
	header bool
	stdout io.Writer
}

// NewCSVOutputFromConfig creates a CSV output module from configuration.
func NewCSVOutputFromConfig(cfg *prep.ModuleConfig) (*CSVOutput, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	path := modconfig.String(cfg.Config, "path")
	if path == "" {
		return nil, modconfig.Required("csv", "path")
	}
	return &CSVOutput{
		path:   path,
		header: modconfig.Bool(cfg.Config, "header", true),
		stdout: os.Stdout,
	}, nil
}

// Write writes all rows. A matrix without features writes nothing.
func (c *CSVOutput) Write(ctx context.Context, out *transform.Output) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(out.Features) == 0 {
		logger.Warn("csv output skipped: no features", slog.String("path", c.path))
		return 0, nil
	}
	t, err := featureTable(out)
	if err != nil {
		return 0, err
	}

	w, closeFn, err := openDestination(c.path, c.stdout)
	if err != nil {
		return 0, err
	}
	if err := t.WriteCSV(w, c.header); err != nil {
		_ = closeFn()
		return 0, errhandling.NewIOError("writing csv output", err)
	}
	if err := closeFn(); err != nil {
		return 0, errhandling.NewIOError("closing csv output", err)
	}

	logger.Debug("csv output written",
		slog.String("path", c.path),
		slog.Int("rows", out.Rows),
		slog.Int("features", len(out.Features)),
	)
	return out.Rows, nil
}

// Close is a no-op; the destination is closed after each Write.
func (c *CSVOutput) Close() error {
	return nil
}

package output

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/logger"
	"github.com/tabprep/runtime/internal/modules/modconfig"
	"github.com/tabprep/runtime/internal/transform"
	"github.com/tabprep/runtime/pkg/prep"
)

// JSONOutput writes the feature matrix as a JSON array with one object per
// row, keyed by feature name. Missing values are written as null.
//
// Config fields:
//   - path (required): destination file, "-" for standard output
//   - pretty: indent the output
type JSONOutput struct {
	path   string
	pretty bool
	stdout io.Writer
}

// NewJSONOutputFromConfig creates a JSON output module from configuration.
func NewJSONOutputFromConfig(cfg *prep.ModuleConfig) (*JSONOutput, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	path := modconfig.String(cfg.Config, "path")
	if path == "" {
		return nil, modconfig.Required("json", "path")
	}
	return &JSONOutput{
		path:   path,
		pretty: modconfig.Bool(cfg.Config, "pretty", false),
		stdout: os.Stdout,
	}, nil
}

// Write writes all rows.
func (j *JSONOutput) Write(ctx context.Context, out *transform.Output) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	records := make([]map[string]interface{}, out.Rows)
	for i := range records {
		row := out.Row(i)
		rec := make(map[string]interface{}, len(row))
		for k, v := range row {
			if math.IsNaN(v) {
				rec[out.Features[k]] = nil
				continue
			}
			rec[out.Features[k]] = v
		}
		records[i] = rec
	}

	w, closeFn, err := openDestination(j.path, j.stdout)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	if j.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(records); err != nil {
		_ = closeFn()
		return 0, errhandling.NewIOError("writing json output", err)
	}
	if err := closeFn(); err != nil {
		return 0, errhandling.NewIOError("closing json output", err)
	}

	logger.Debug("json output written", slog.String("path", j.path), slog.Int("rows", out.Rows))
	return out.Rows, nil
}

// Close is a no-op; the destination is closed after each Write.
func (j *JSONOutput) Close() error {
	return nil
}

// Package output provides the feature-matrix output modules.
// Output modules write a transformed dataset to a destination.
package output

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/table"
	"github.com/tabprep/runtime/internal/transform"
)

// Stdout is the path value that selects standard output.
const Stdout = "-"

// ErrNilConfig is returned when a constructor receives no configuration.
var ErrNilConfig = errors.New("module configuration is nil")

// Module represents an output module that writes a feature matrix.
type Module interface {
	// Write writes every row of out and returns the number of rows written.
	Write(ctx context.Context, out *transform.Output) (int, error)

	// Close releases any resources held by the module.
	Close() error
}

// featureTable converts the matrix into a table with one column per feature.
// Values are pre-formatted with the shortest exact representation.
func featureTable(out *transform.Output) (*table.Table, error) {
	cols := make([]table.Column, len(out.Features))
	for j, name := range out.Features {
		values := out.Column(j)
		text := make([]string, len(values))
		for i, v := range values {
			if math.IsNaN(v) {
				text[i] = table.MissingLabel
				continue
			}
			text[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		cols[j] = table.StringColumn(name, text)
	}
	return table.New(cols...)
}

// openDestination opens path for writing, creating parent directories.
// Stdout selects w; closing it is then a no-op.
func openDestination(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == Stdout {
		return stdout, func() error { return nil }, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, errhandling.NewIOError("creating output directory", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errhandling.NewIOError("creating output file", err)
	}
	return f, f.Close, nil
}

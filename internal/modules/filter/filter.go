// Package filter provides the table filter modules applied before preprocessing.
// Filters drop rows or columns; they never change cell values.
package filter

import (
	"context"

	"github.com/tabprep/runtime/internal/table"
)

// Module represents a filter module that narrows a table.
type Module interface {
	// Process returns the filtered table. The input table is not modified.
	Process(ctx context.Context, t *table.Table) (*table.Table, error)
}

package filter

import (
	"context"
	"fmt"

	"github.com/tabprep/runtime/internal/modules/modconfig"
	"github.com/tabprep/runtime/internal/table"
	"github.com/tabprep/runtime/pkg/prep"
)

// SelectModule keeps only the listed columns, in the listed order.
type SelectModule struct {
	columns []string
}

// NewSelectFromConfig creates a select filter. Config: columns (required).
func NewSelectFromConfig(cfg prep.ModuleConfig, index int) (*SelectModule, error) {
	columns := modconfig.StringSlice(cfg.Config, "columns")
	if len(columns) == 0 {
		return nil, &modconfig.ValidationError{Module: indexed("select", index), Field: "columns", Message: "at least one column is required"}
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return nil, &modconfig.ValidationError{Module: indexed("select", index), Field: "columns", Message: fmt.Sprintf("column %q listed twice", c)}
		}
		seen[c] = true
	}
	return &SelectModule{columns: columns}, nil
}

// Process returns the selected columns. Every listed column must exist.
func (m *SelectModule) Process(_ context.Context, t *table.Table) (*table.Table, error) {
	return t.Select(m.columns...)
}

func indexed(module string, index int) string {
	return fmt.Sprintf("%s (filter %d)", module, index)
}

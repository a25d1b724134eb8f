package filter

import (
	"context"

	"github.com/tabprep/runtime/internal/logger"
	"github.com/tabprep/runtime/internal/modules/modconfig"
	"github.com/tabprep/runtime/internal/table"
	"github.com/tabprep/runtime/pkg/prep"
)

// DropMissingModule removes rows with a missing value in any listed column,
// typically the target label before fitting.
type DropMissingModule struct {
	columns []string
}

// NewDropMissingFromConfig creates a dropMissing filter. Config: columns (required).
func NewDropMissingFromConfig(cfg prep.ModuleConfig, index int) (*DropMissingModule, error) {
	columns := modconfig.StringSlice(cfg.Config, "columns")
	if len(columns) == 0 {
		return nil, &modconfig.ValidationError{Module: indexed("dropMissing", index), Field: "columns", Message: "at least one column is required"}
	}
	return &DropMissingModule{columns: columns}, nil
}

// Process drops rows with missing values in the configured columns.
func (m *DropMissingModule) Process(_ context.Context, t *table.Table) (*table.Table, error) {
	out, err := t.DropMissing(m.columns...)
	if err != nil {
		return nil, err
	}
	if dropped := t.Nrow() - out.Nrow(); dropped > 0 {
		logger.Debug("rows with missing values dropped", "columns", m.columns, "dropped", dropped)
	}
	return out, nil
}

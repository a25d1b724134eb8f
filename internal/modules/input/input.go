// Package input provides the dataset input modules.
// Input modules load a whole table from a source system.
package input

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tabprep/runtime/internal/modules/modconfig"
	"github.com/tabprep/runtime/internal/table"
)

// ErrNilConfig is returned when a constructor receives no configuration.
var ErrNilConfig = errors.New("module configuration is nil")

// Module represents an input module that loads a dataset.
type Module interface {
	// Fetch loads the dataset. The context cancels long-running reads.
	Fetch(ctx context.Context) (*table.Table, error)
	// Close releases any resources held by the module.
	Close() error
}

// parseTypes reads the "types" option: column name -> float|int|string|bool.
func parseTypes(module string, config map[string]interface{}) (map[string]table.Type, error) {
	raw := modconfig.StringMap(config, "types")
	if len(raw) == 0 {
		return nil, nil
	}
	types := make(map[string]table.Type, len(raw))
	for col, name := range raw {
		switch strings.ToLower(name) {
		case "float", "number":
			types[col] = table.Float
		case "int", "integer":
			types[col] = table.Int
		case "string", "category":
			types[col] = table.String
		case "bool", "boolean":
			types[col] = table.Bool
		default:
			return nil, &modconfig.ValidationError{
				Module:  module,
				Field:   "types." + col,
				Message: fmt.Sprintf("unknown type %q (want float, int, string or bool)", name),
			}
		}
	}
	return types, nil
}

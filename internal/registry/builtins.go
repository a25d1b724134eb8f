package registry

import (
	"github.com/tabprep/runtime/internal/modules/filter"
	"github.com/tabprep/runtime/internal/modules/input"
	"github.com/tabprep/runtime/internal/modules/output"
	"github.com/tabprep/runtime/pkg/prep"
)

func init() {
	RegisterBuiltins()
}

// RegisterBuiltins registers every built-in module type. It is called from
// init and may be called again after ClearRegistries.
func RegisterBuiltins() {
	registerBuiltinInputModules()
	registerBuiltinFilterModules()
	registerBuiltinOutputModules()
}

func registerBuiltinInputModules() {
	// csv - local CSV file
	RegisterInput("csv", func(cfg *prep.ModuleConfig) (input.Module, error) {
		return input.NewCSVInputFromConfig(cfg)
	})

	// http - remote CSV or JSON dataset with retry
	RegisterInput("http", func(cfg *prep.ModuleConfig) (input.Module, error) {
		return input.NewHTTPInputFromConfig(cfg)
	})

	// database - SQL query result
	RegisterInput("database", func(cfg *prep.ModuleConfig) (input.Module, error) {
		return input.NewDatabaseInputFromConfig(cfg)
	})
}

func registerBuiltinFilterModules() {
	// dropMissing - drop rows with missing values in the listed columns
	RegisterFilter("dropMissing", func(cfg prep.ModuleConfig, index int) (filter.Module, error) {
		return filter.NewDropMissingFromConfig(cfg, index)
	})

	// select - keep only the listed columns
	RegisterFilter("select", func(cfg prep.ModuleConfig, index int) (filter.Module, error) {
		return filter.NewSelectFromConfig(cfg, index)
	})

	// condition - keep rows matching an expression
	RegisterFilter("condition", func(cfg prep.ModuleConfig, index int) (filter.Module, error) {
		return filter.NewConditionFromConfig(cfg, index)
	})
}

func registerBuiltinOutputModules() {
	// csv - feature matrix as CSV
	RegisterOutput("csv", func(cfg *prep.ModuleConfig) (output.Module, error) {
		return output.NewCSVOutputFromConfig(cfg)
	})

	// json - feature matrix as an array of objects
	RegisterOutput("json", func(cfg *prep.ModuleConfig) (output.Module, error) {
		return output.NewJSONOutputFromConfig(cfg)
	})

	// database - feature matrix inserted into a SQL table
	RegisterOutput("database", func(cfg *prep.ModuleConfig) (output.Module, error) {
		return output.NewDatabaseOutputFromConfig(cfg)
	})
}

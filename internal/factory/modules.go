// Package factory creates pipeline modules from configuration.
// It looks constructors up in the registry; unknown types are configuration
// errors.
//
// To add a new module type, see the documentation in internal/registry.
// You do NOT need to modify this factory; just register your constructor.
package factory

import (
	"errors"
	"fmt"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/modules/filter"
	"github.com/tabprep/runtime/internal/modules/input"
	"github.com/tabprep/runtime/internal/modules/output"
	"github.com/tabprep/runtime/internal/registry"
	"github.com/tabprep/runtime/pkg/prep"
)

// ErrNilModuleConfig is returned when a required module section is absent.
var ErrNilModuleConfig = errors.New("module configuration is nil")

// UnknownModuleError reports a module type with no registered constructor.
type UnknownModuleError struct {
	Kind string // input, filter or output
	Type string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("unknown %s module type %q", e.Kind, e.Type)
}

// Category implements errhandling.Categorized.
func (e *UnknownModuleError) Category() errhandling.ErrorCategory {
	return errhandling.CategoryConfiguration
}

// CreateInputModule creates an input module instance from configuration.
func CreateInputModule(cfg *prep.ModuleConfig) (input.Module, error) {
	if cfg == nil {
		return nil, ErrNilModuleConfig
	}
	constructor := registry.GetInputConstructor(cfg.Type)
	if constructor == nil {
		return nil, &UnknownModuleError{Kind: "input", Type: cfg.Type}
	}
	module, err := constructor(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid %s input config: %w", cfg.Type, err)
	}
	return module, nil
}

// CreateFilterModules creates filter module instances in pipeline order.
func CreateFilterModules(cfgs []prep.ModuleConfig) ([]filter.Module, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}
	modules := make([]filter.Module, 0, len(cfgs))
	for i, cfg := range cfgs {
		constructor := registry.GetFilterConstructor(cfg.Type)
		if constructor == nil {
			return nil, &UnknownModuleError{Kind: "filter", Type: cfg.Type}
		}
		module, err := constructor(cfg, i)
		if err != nil {
			return nil, fmt.Errorf("invalid %s config at index %d: %w", cfg.Type, i, err)
		}
		modules = append(modules, module)
	}
	return modules, nil
}

// CreateOutputModule creates an output module instance from configuration.
func CreateOutputModule(cfg *prep.ModuleConfig) (output.Module, error) {
	if cfg == nil {
		return nil, ErrNilModuleConfig
	}
	constructor := registry.GetOutputConstructor(cfg.Type)
	if constructor == nil {
		return nil, &UnknownModuleError{Kind: "output", Type: cfg.Type}
	}
	module, err := constructor(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid %s output config: %w", cfg.Type, err)
	}
	return module, nil
}

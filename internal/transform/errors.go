// Package transform implements the feature preprocessing stages: binning
// derivers, the column router with its standard scaler and one-hot encoder,
// and the fitted Model that replays them on new data.
package transform

import (
	"errors"
	"fmt"

	"github.com/tabprep/runtime/internal/errhandling"
)

// ErrNotFitted is returned when a stateful transformer is used before Fit.
var ErrNotFitted = errors.New("transformer is not fitted")

// ConfigError reports an invalid transformer definition. It is raised at
// construction, before any data is processed.
type ConfigError struct {
	Component string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %s", e.Component, e.Reason)
}

// Category implements errhandling.Categorized.
func (e *ConfigError) Category() errhandling.ErrorCategory {
	return errhandling.CategoryConfiguration
}

func configErrorf(component, format string, args ...interface{}) error {
	return &ConfigError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

// UnknownCategoryError reports a category that was not seen during fit,
// raised only when the encoder's unknown policy is "error".
type UnknownCategoryError struct {
	Column string
	Value  string
	Row    int
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q in column %q at row %d", e.Value, e.Column, e.Row)
}

// Category implements errhandling.Categorized.
func (e *UnknownCategoryError) Category() errhandling.ErrorCategory {
	return errhandling.CategoryData
}

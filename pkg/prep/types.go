// Package prep provides the public types of tabprep preprocessing pipelines.
// This package is intended to be importable by external projects that need
// to build pipeline definitions or read execution results.
package prep

import "time"

// Execution modes.
const (
	// ModeFit fits the preprocessor, persists the model and writes the
	// transformed training matrix.
	ModeFit = "fit"
	// ModeTransform loads a persisted model and transforms new data.
	ModeTransform = "transform"
	// ModeFitTransform fits and transforms in one run without persisting.
	ModeFitTransform = "fitTransform"
)

// Execution statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Filter gates, set in ModuleConfig.When.
const (
	WhenAlways    = "always"
	WhenFit       = "fit"
	WhenTransform = "transform"
)

// Pipeline represents a complete preprocessing pipeline configuration.
// Data flows Input -> Filters -> Preprocessor -> Output.
type Pipeline struct {
	// ID is the unique identifier for this pipeline
	ID string `json:"id"`

	// Name is the human-readable name of the pipeline
	Name string `json:"name"`

	// Description provides additional context about the pipeline
	Description string `json:"description,omitempty"`

	// Version is the pipeline configuration version
	Version string `json:"version"`

	// Input defines the dataset source module
	Input *ModuleConfig `json:"input"`

	// Filters is an ordered list of row/column filters applied before preprocessing
	Filters []ModuleConfig `json:"filters,omitempty"`

	// Preprocessor declares derived columns and feature sets
	Preprocessor *PreprocessorConfig `json:"preprocessor"`

	// Model configures where the fitted model is stored
	Model *ModelConfig `json:"model,omitempty"`

	// Output defines the matrix destination module
	Output *ModuleConfig `json:"output"`

	// CreatedAt is when the pipeline was created
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// ModuleConfig represents the configuration for a pipeline module.
type ModuleConfig struct {
	// Type identifies the module type (e.g., "csv", "dropMissing", "json")
	Type string `json:"type"`

	// When restricts a filter to one mode ("fit", "transform"); empty means always
	When string `json:"when,omitempty"`

	// Config contains the module-specific configuration
	Config map[string]interface{} `json:"config"`
}

// AppliesTo reports whether a filter gated by When runs in mode.
// Transform-gated filters also run in fitTransform, as do fit-gated ones.
func (m ModuleConfig) AppliesTo(mode string) bool {
	switch m.When {
	case "", WhenAlways:
		return true
	case WhenFit:
		return mode == ModeFit || mode == ModeFitTransform
	case WhenTransform:
		return mode == ModeTransform || mode == ModeFitTransform
	default:
		return false
	}
}

// PreprocessorConfig declares derivations and feature sets.
type PreprocessorConfig struct {
	// Derive lists binning derivations applied before routing
	Derive []DeriveConfig `json:"derive,omitempty"`

	// Numeric columns are standardised
	Numeric []string `json:"numeric,omitempty"`

	// Categorical columns are one-hot encoded; derived targets are appended
	Categorical []string `json:"categorical,omitempty"`

	// Encoder sets the one-hot policies
	Encoder *EncoderConfig `json:"encoder,omitempty"`
}

// DeriveConfig defines a binning derivation, either fully or through a preset.
type DeriveConfig struct {
	// Preset names a built-in derivation ("ageGroup"); explicit fields override it
	Preset string `json:"preset,omitempty"`

	Source        string    `json:"source,omitempty"`
	Target        string    `json:"target,omitempty"`
	Edges         []float64 `json:"edges,omitempty"`
	Labels        []string  `json:"labels,omitempty"`
	IncludeLowest *bool     `json:"includeLowest,omitempty"`
}

// EncoderConfig sets one-hot encoder policies.
type EncoderConfig struct {
	// Drop is "first" (default) or "none"
	Drop string `json:"drop,omitempty"`

	// HandleUnknown is "ignore" (default) or "error"
	HandleUnknown string `json:"handleUnknown,omitempty"`
}

// ModelConfig locates the persisted model.
type ModelConfig struct {
	// Dir is the directory holding model files (default "./tabprep-data/models")
	Dir string `json:"dir,omitempty"`

	// Name is the model file name without extension (default: pipeline ID)
	Name string `json:"name,omitempty"`
}

// ExecutionResult represents the result of a pipeline execution.
type ExecutionResult struct {
	// RunID uniquely identifies this execution
	RunID string `json:"runId"`

	// PipelineID is the ID of the executed pipeline
	PipelineID string `json:"pipelineId"`

	// Mode is the execution mode ("fit", "transform", "fitTransform")
	Mode string `json:"mode"`

	// Status is the execution status ("success", "error")
	Status string `json:"status"`

	// StartedAt is when execution started
	StartedAt time.Time `json:"startedAt"`

	// CompletedAt is when execution completed
	CompletedAt time.Time `json:"completedAt"`

	// RowsRead is the number of rows returned by the input
	RowsRead int `json:"rowsRead"`

	// RowsDropped is the number of rows removed by filters
	RowsDropped int `json:"rowsDropped"`

	// RowsTransformed is the number of rows in the output matrix
	RowsTransformed int `json:"rowsTransformed"`

	// RowsWritten is the number of rows written by the output module
	RowsWritten int `json:"rowsWritten"`

	// Features are the output column names in matrix order
	Features []string `json:"features,omitempty"`

	// ModelPath is the model file that was written or read
	ModelPath string `json:"modelPath,omitempty"`

	// DryRun is true when output (and model persistence) was skipped
	DryRun bool `json:"dryRun,omitempty"`

	// Error contains error details if execution failed
	Error *ExecutionError `json:"error,omitempty"`
}

// ExecutionError contains details about an execution failure.
type ExecutionError struct {
	// Code is the error code
	Code string `json:"code"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Module is the module where the error occurred
	Module string `json:"module,omitempty"`

	// Category is the error classification ("schema", "configuration", ...)
	Category string `json:"category,omitempty"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`
}

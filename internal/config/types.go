package config

import (
	"fmt"
	"strings"

	"github.com/tabprep/runtime/internal/errhandling"
)

// Parse error types.
const (
	ErrorTypeIO     = "io"
	ErrorTypeSyntax = "syntax"
	ErrorTypeFormat = "format"
)

// ParseResult contains the result of parsing a configuration file.
type ParseResult struct {
	// Data contains the parsed configuration as a map
	Data map[string]interface{}
	// Errors contains any parsing errors encountered
	Errors []ParseError
	// FilePath is the path to the parsed file (empty if parsed from string)
	FilePath string
	// Format indicates the detected format (json, yaml)
	Format string
}

// IsValid returns true if no parsing errors occurred.
func (r *ParseResult) IsValid() bool {
	return len(r.Errors) == 0
}

// ParseError represents a parsing error with location information.
type ParseError struct {
	Path    string
	Line    int // 1-based, 0 if unknown
	Column  int // 1-based, 0 if unknown
	Offset  int64
	Message string
	Type    string // io, syntax or format
}

func (e ParseError) Error() string {
	var sb strings.Builder
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteString(": ")
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, "line %d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(&sb, ", column %d", e.Column)
		}
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

// ValidationResult contains the result of validating a configuration.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError represents a schema validation error.
type ValidationError struct {
	// Path is the JSON pointer of the offending value (e.g., "/pipeline/input/path")
	Path string
	// Type is the failing schema keyword (required, type, enum, ...)
	Type    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Result contains the combined result of parsing and validation.
type Result struct {
	Data             map[string]interface{}
	ParseErrors      []ParseError
	ValidationErrors []ValidationError
	FilePath         string
	Format           string
}

// IsValid returns true if no errors occurred.
func (r *Result) IsValid() bool {
	return len(r.ParseErrors) == 0 && len(r.ValidationErrors) == 0
}

// AllErrors returns parsing errors followed by validation errors.
func (r *Result) AllErrors() []error {
	errs := make([]error, 0, len(r.ParseErrors)+len(r.ValidationErrors))
	for _, e := range r.ParseErrors {
		errs = append(errs, e)
	}
	for _, e := range r.ValidationErrors {
		errs = append(errs, e)
	}
	return errs
}

// LoadError is returned by Load when a file cannot be parsed, validated or
// converted. Result is nil for conversion failures.
type LoadError struct {
	Path   string
	Result *Result
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	var errs []error
	if e.Result != nil {
		errs = e.Result.AllErrors()
	}
	switch len(errs) {
	case 0:
		return e.Path + ": invalid configuration"
	case 1:
		return fmt.Sprintf("%s: %v", e.Path, errs[0])
	default:
		return fmt.Sprintf("%s: %d configuration errors, first: %v", e.Path, len(errs), errs[0])
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

// ParseFailed reports whether the file could not be read or parsed at all.
func (e *LoadError) ParseFailed() bool {
	return e.Result != nil && len(e.Result.ParseErrors) > 0
}

// Category implements errhandling.Categorized.
func (e *LoadError) Category() errhandling.ErrorCategory {
	return errhandling.CategoryConfiguration
}

package config

import (
	"github.com/tabprep/runtime/pkg/prep"
)

// Load parses, validates and converts a pipeline file. Any failure is
// returned as a *LoadError.
func Load(filepath string) (*prep.Pipeline, error) {
	result := ParseConfig(filepath)
	if !result.IsValid() {
		return nil, &LoadError{Path: filepath, Result: result}
	}
	pipeline, err := ConvertToPipeline(result.Data)
	if err != nil {
		return nil, &LoadError{Path: filepath, Err: err}
	}
	return pipeline, nil
}

package config

import (
	"fmt"
	"time"

	"github.com/tabprep/runtime/pkg/prep"
)

// ConvertToPipeline converts parsed configuration data to a Pipeline.
// The data should have been validated against the schema first.
//
// The configuration is expected to have this structure:
//
//	schemaVersion: "1.0.0"
//	pipeline:
//	  name: ...
//	  version: ...
//	  input: {type: csv, path: ...}
//	  filters: [{type: dropMissing, when: fit, columns: [...]}]
//	  preprocessor: {derive: [...], numeric: [...], categorical: [...]}
//	  model: {dir: ..., name: ...}
//	  output: {type: csv, path: ...}
func ConvertToPipeline(data map[string]interface{}) (*prep.Pipeline, error) {
	if data == nil {
		return nil, fmt.Errorf("configuration data is nil")
	}
	p, ok := data["pipeline"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'pipeline' section")
	}

	pipeline := &prep.Pipeline{CreatedAt: time.Now()}
	if pipeline.Name, ok = p["name"].(string); !ok {
		return nil, fmt.Errorf("missing required field 'pipeline.name'")
	}
	if pipeline.Version, ok = p["version"].(string); !ok {
		return nil, fmt.Errorf("missing required field 'pipeline.version'")
	}
	pipeline.ID = pipeline.Name
	if id, okID := p["id"].(string); okID && id != "" {
		pipeline.ID = id
	}
	pipeline.Description, _ = p["description"].(string)

	var err error
	if pipeline.Input, err = convertModuleSection(p, "input"); err != nil {
		return nil, err
	}
	if pipeline.Output, err = convertModuleSection(p, "output"); err != nil {
		return nil, err
	}

	if filters, okFilters := p["filters"].([]interface{}); okFilters {
		for i, raw := range filters {
			m, isMap := raw.(map[string]interface{})
			if !isMap {
				return nil, fmt.Errorf("invalid filter at index %d", i)
			}
			filter, convertErr := convertModuleConfig(m)
			if convertErr != nil {
				return nil, fmt.Errorf("invalid filter at index %d: %w", i, convertErr)
			}
			pipeline.Filters = append(pipeline.Filters, *filter)
		}
	}

	pre, ok := p["preprocessor"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'pipeline.preprocessor' section")
	}
	if pipeline.Preprocessor, err = convertPreprocessor(pre); err != nil {
		return nil, fmt.Errorf("invalid preprocessor config: %w", err)
	}

	if m, okModel := p["model"].(map[string]interface{}); okModel {
		pipeline.Model = &prep.ModelConfig{}
		pipeline.Model.Dir, _ = m["dir"].(string)
		pipeline.Model.Name, _ = m["name"].(string)
	}
	return pipeline, nil
}

func convertModuleSection(p map[string]interface{}, key string) (*prep.ModuleConfig, error) {
	m, ok := p[key].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'pipeline.%s' section", key)
	}
	cfg, err := convertModuleConfig(m)
	if err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", key, err)
	}
	return cfg, nil
}

// convertModuleConfig moves every field except type and when into Config.
func convertModuleConfig(data map[string]interface{}) (*prep.ModuleConfig, error) {
	moduleType, ok := data["type"].(string)
	if !ok {
		return nil, fmt.Errorf("missing required field 'type'")
	}
	cfg := &prep.ModuleConfig{Type: moduleType, Config: make(map[string]interface{}, len(data))}
	cfg.When, _ = data["when"].(string)
	for key, value := range data {
		if key != "type" && key != "when" {
			cfg.Config[key] = value
		}
	}
	return cfg, nil
}

func convertPreprocessor(data map[string]interface{}) (*prep.PreprocessorConfig, error) {
	cfg := &prep.PreprocessorConfig{
		Numeric:     stringSlice(data["numeric"]),
		Categorical: stringSlice(data["categorical"]),
	}
	if derive, ok := data["derive"].([]interface{}); ok {
		for i, raw := range derive {
			m, isMap := raw.(map[string]interface{})
			if !isMap {
				return nil, fmt.Errorf("invalid derive at index %d", i)
			}
			d, err := convertDerive(m)
			if err != nil {
				return nil, fmt.Errorf("invalid derive at index %d: %w", i, err)
			}
			cfg.Derive = append(cfg.Derive, d)
		}
	}
	if enc, ok := data["encoder"].(map[string]interface{}); ok {
		cfg.Encoder = &prep.EncoderConfig{}
		cfg.Encoder.Drop, _ = enc["drop"].(string)
		cfg.Encoder.HandleUnknown, _ = enc["handleUnknown"].(string)
	}
	return cfg, nil
}

func convertDerive(data map[string]interface{}) (prep.DeriveConfig, error) {
	d := prep.DeriveConfig{Labels: stringSlice(data["labels"])}
	d.Preset, _ = data["preset"].(string)
	d.Source, _ = data["source"].(string)
	d.Target, _ = data["target"].(string)
	if b, ok := data["includeLowest"].(bool); ok {
		d.IncludeLowest = &b
	}
	if edges, ok := data["edges"].([]interface{}); ok {
		for i, raw := range edges {
			v, isNum := toFloat(raw)
			if !isNum {
				return d, fmt.Errorf("edge %d: expected number, got %T", i, raw)
			}
			d.Edges = append(d.Edges, v)
		}
	}
	return d, nil
}

func stringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, isString := item.(string); isString {
			out = append(out, s)
		}
	}
	return out
}

// toFloat accepts JSON (float64) and YAML (int, float64) numbers.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

package runtime

import (
	"fmt"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/persistence"
	"github.com/tabprep/runtime/internal/transform"
	"github.com/tabprep/runtime/pkg/prep"
)

// PresetAgeGroup names the built-in age group derivation.
const PresetAgeGroup = "ageGroup"

// PreprocessorConfig converts the pipeline declaration into a transform
// configuration. A preset supplies defaults that explicit fields override.
func PreprocessorConfig(cfg *prep.PreprocessorConfig) (transform.PreprocessorConfig, error) {
	if cfg == nil {
		return transform.PreprocessorConfig{}, errhandling.NewConfigurationError("preprocessor is not configured", nil)
	}
	out := transform.PreprocessorConfig{
		Numeric:     append([]string(nil), cfg.Numeric...),
		Categorical: append([]string(nil), cfg.Categorical...),
	}
	if cfg.Encoder != nil {
		out.Encoder = transform.EncoderOptions{
			Drop:          cfg.Encoder.Drop,
			HandleUnknown: cfg.Encoder.HandleUnknown,
		}
	}
	for i, d := range cfg.Derive {
		spec, err := binSpec(d)
		if err != nil {
			return transform.PreprocessorConfig{}, errhandling.NewConfigurationError(fmt.Sprintf("derive[%d]", i), err)
		}
		out.Derive = append(out.Derive, spec)
	}
	return out, nil
}

func binSpec(d prep.DeriveConfig) (transform.BinSpec, error) {
	var spec transform.BinSpec
	switch d.Preset {
	case "":
	case PresetAgeGroup:
		spec = transform.AgeGroupSpec()
	default:
		return spec, fmt.Errorf("unknown preset %q", d.Preset)
	}
	if d.Source != "" {
		spec.Source = d.Source
	}
	if d.Target != "" {
		spec.Target = d.Target
	}
	if len(d.Edges) > 0 {
		spec.Edges = append([]float64(nil), d.Edges...)
	}
	if len(d.Labels) > 0 {
		spec.Labels = append([]string(nil), d.Labels...)
	}
	if d.IncludeLowest != nil {
		spec.IncludeLowest = *d.IncludeLowest
	}
	return spec, nil
}

// modelLocation returns the store and model name of a pipeline. The name
// defaults to the pipeline ID; store overrides the configured directory.
func modelLocation(pipeline *prep.Pipeline, store *persistence.ModelStore) (*persistence.ModelStore, string) {
	name := pipeline.ID
	dir := ""
	if pipeline.Model != nil {
		if pipeline.Model.Name != "" {
			name = pipeline.Model.Name
		}
		dir = pipeline.Model.Dir
	}
	if store == nil {
		store = persistence.NewModelStore(dir)
	}
	return store, name
}

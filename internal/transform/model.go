package transform

import (
	"fmt"
	"time"

	"github.com/tabprep/runtime/internal/table"
)

// ModelVersion is the persisted model format version.
const ModelVersion = 1

// PreprocessorConfig declares derivations and feature sets.
type PreprocessorConfig struct {
	Derive      []BinSpec      `json:"derive,omitempty"`
	Numeric     []string       `json:"numeric"`
	Categorical []string       `json:"categorical"`
	Encoder     EncoderOptions `json:"encoder"`
}

// TitanicConfig returns the titanic preprocessing: age groups, scaled
// age and fare, one-hot encoded class, sex, port and age group.
func TitanicConfig() PreprocessorConfig {
	return PreprocessorConfig{
		Derive:      []BinSpec{AgeGroupSpec()},
		Numeric:     []string{"age", "fare"},
		Categorical: []string{"pclass", "sex", "embarked"},
	}
}

// Preprocessor is a validated, unfitted preprocessing definition.
type Preprocessor struct {
	derivers    []*Binner
	numeric     []string
	categorical []string
	encoder     EncoderOptions
}

// NewPreprocessor validates cfg. Derived target columns that are not already
// listed are appended to the categorical set; a derived column listed as
// numeric is a configuration error.
func NewPreprocessor(cfg PreprocessorConfig) (*Preprocessor, error) {
	p := &Preprocessor{
		numeric:     append([]string(nil), cfg.Numeric...),
		categorical: append([]string(nil), cfg.Categorical...),
		encoder:     cfg.Encoder.withDefaults(),
	}
	targets := make(map[string]bool, len(cfg.Derive))
	for i, spec := range cfg.Derive {
		b, err := NewBinner(spec)
		if err != nil {
			return nil, fmt.Errorf("derive[%d]: %w", i, err)
		}
		if targets[spec.Target] {
			return nil, configErrorf("preprocessor", "column %q is derived twice", spec.Target)
		}
		targets[spec.Target] = true
		p.derivers = append(p.derivers, b)
	}
	for _, b := range p.derivers {
		target := b.spec.Target
		if contains(p.numeric, target) {
			return nil, configErrorf("preprocessor", "derived column %q cannot be numeric", target)
		}
		if !contains(p.categorical, target) {
			p.categorical = append(p.categorical, target)
		}
	}
	if _, err := NewColumnRouter(p.numeric, p.categorical, p.encoder); err != nil {
		return nil, err
	}
	return p, nil
}

// Numeric returns the numeric feature set.
func (p *Preprocessor) Numeric() []string { return append([]string(nil), p.numeric...) }

// Categorical returns the categorical feature set, derived columns included.
func (p *Preprocessor) Categorical() []string { return append([]string(nil), p.categorical...) }

// Fit derives columns on t and fits the router. t is not modified.
func (p *Preprocessor) Fit(t *table.Table) (*Model, error) {
	m, _, err := p.fit(t)
	return m, err
}

// FitTransform fits a model on t and transforms t with it.
func (p *Preprocessor) FitTransform(t *table.Table) (*Model, *Output, error) {
	m, derived, err := p.fit(t)
	if err != nil {
		return nil, nil, err
	}
	out, err := m.Router.Transform(derived)
	if err != nil {
		return nil, nil, err
	}
	return m, out, nil
}

func (p *Preprocessor) fit(t *table.Table) (*Model, *table.Table, error) {
	if err := p.requireInputs(t); err != nil {
		return nil, nil, err
	}
	derived, err := derive(p.derivers, t)
	if err != nil {
		return nil, nil, err
	}
	router, err := NewColumnRouter(p.numeric, p.categorical, p.encoder)
	if err != nil {
		return nil, nil, err
	}
	if err := router.Fit(derived); err != nil {
		return nil, nil, err
	}
	specs := make([]BinSpec, len(p.derivers))
	for i, b := range p.derivers {
		specs[i] = b.Spec()
	}
	return &Model{
		Version:    ModelVersion,
		FittedAt:   time.Now().UTC(),
		RowsFitted: t.Nrow(),
		Derive:     specs,
		Router:     router,
	}, derived, nil
}

// requireInputs checks every column needed from the raw table at once.
func (p *Preprocessor) requireInputs(t *table.Table) error {
	return t.Require(requiredInputs(p.derivers, append(p.Numeric(), p.categorical...))...)
}

// Model is a fitted preprocessor. It is immutable after Fit and safe to share
// between readers. Models are JSON serialisable.
type Model struct {
	Version    int           `json:"version"`
	FittedAt   time.Time     `json:"fittedAt"`
	RowsFitted int           `json:"rowsFitted"`
	Derive     []BinSpec     `json:"derive,omitempty"`
	Router     *ColumnRouter `json:"router"`
}

// Validate checks a model, typically one loaded from disk.
func (m *Model) Validate() error {
	if m.Version != ModelVersion {
		return configErrorf("model", "unsupported version %d (want %d)", m.Version, ModelVersion)
	}
	if m.Router == nil || m.Router.Scaler == nil || m.Router.Encoder == nil {
		return configErrorf("model", "router state is missing")
	}
	for i, spec := range m.Derive {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("derive[%d]: %w", i, err)
		}
	}
	if _, err := NewColumnRouter(m.Router.Scaler.Columns, m.Router.Encoder.Columns, EncoderOptions{
		Drop:          m.Router.Encoder.Drop,
		HandleUnknown: m.Router.Encoder.HandleUnknown,
	}); err != nil {
		return err
	}
	if !m.Router.Scaler.Fitted() || !m.Router.Encoder.Fitted() {
		return ErrNotFitted
	}
	for j, s := range m.Router.Scaler.Scale {
		if s == 0 {
			return configErrorf("model", "scale of column %q is zero", m.Router.Scaler.Columns[j])
		}
	}
	return nil
}

// Features returns the output feature names in matrix order.
func (m *Model) Features() []string {
	return m.Router.FeatureNames()
}

// Transform derives columns and applies the fitted router. Missing columns are
// reported before any computation.
func (m *Model) Transform(t *table.Table) (*Output, error) {
	derivers := make([]*Binner, len(m.Derive))
	for i, spec := range m.Derive {
		b, err := NewBinner(spec)
		if err != nil {
			return nil, fmt.Errorf("derive[%d]: %w", i, err)
		}
		derivers[i] = b
	}
	if err := t.Require(requiredInputs(derivers, m.Router.Columns())...); err != nil {
		return nil, err
	}
	derived, err := derive(derivers, t)
	if err != nil {
		return nil, err
	}
	return m.Router.Transform(derived)
}

// requiredInputs returns routed columns that are not derived, plus every
// derivation source, in first-seen order.
func requiredInputs(derivers []*Binner, routed []string) []string {
	derived := make(map[string]bool, len(derivers))
	for _, b := range derivers {
		derived[b.spec.Target] = true
	}
	var out []string
	seen := make(map[string]bool)
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, b := range derivers {
		add(b.spec.Source)
	}
	for _, c := range routed {
		if !derived[c] {
			add(c)
		}
	}
	return out
}

func derive(derivers []*Binner, t *table.Table) (*table.Table, error) {
	out := t
	for _, b := range derivers {
		next, err := b.Transform(out)
		if err != nil {
			return nil, fmt.Errorf("deriving %q: %w", b.spec.Target, err)
		}
		out = next
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

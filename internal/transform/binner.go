package transform

import (
	"math"

	"github.com/tabprep/runtime/internal/table"
)

// BinSpec defines a numeric-to-categorical binning derivation.
//
// Bins are right-closed: value v falls in bin i when Edges[i] < v <= Edges[i+1].
// IncludeLowest also closes the first bin on the left so Edges[0] is in bin 0.
// Values outside the edges and missing values map to table.MissingLabel.
type BinSpec struct {
	Source        string    `json:"source"`
	Target        string    `json:"target"`
	Edges         []float64 `json:"edges"`
	Labels        []string  `json:"labels"`
	IncludeLowest bool      `json:"includeLowest,omitempty"`
}

// AgeGroupSpec returns the age group derivation used by the titanic pipeline.
func AgeGroupSpec() BinSpec {
	return BinSpec{
		Source:        "age",
		Target:        "Age_Group",
		Edges:         []float64{0, 18, 40, 80, 100},
		Labels:        []string{"<18", "18-40", "40-80", "80+"},
		IncludeLowest: true,
	}
}

// Validate checks the edges and labels.
func (s BinSpec) Validate() error {
	if s.Source == "" {
		return configErrorf("binner", "source column is required")
	}
	if s.Target == "" {
		return configErrorf("binner", "target column is required")
	}
	if s.Source == s.Target {
		return configErrorf("binner", "target column %q must differ from the source column", s.Target)
	}
	if len(s.Edges) < 2 {
		return configErrorf("binner", "at least 2 edges are required, got %d", len(s.Edges))
	}
	for i, e := range s.Edges {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return configErrorf("binner", "edge %d is not finite", i)
		}
		if i > 0 && e <= s.Edges[i-1] {
			return configErrorf("binner", "edges must be strictly increasing (edge %d = %g after %g)", i, e, s.Edges[i-1])
		}
	}
	if len(s.Labels) != len(s.Edges)-1 {
		return configErrorf("binner", "%d edges need %d labels, got %d", len(s.Edges), len(s.Edges)-1, len(s.Labels))
	}
	seen := make(map[string]struct{}, len(s.Labels))
	for _, l := range s.Labels {
		if l == "" || l == table.MissingLabel {
			return configErrorf("binner", "label %q is reserved", l)
		}
		if _, dup := seen[l]; dup {
			return configErrorf("binner", "duplicate label %q", l)
		}
		seen[l] = struct{}{}
	}
	return nil
}

// Binner derives a categorical column from a numeric one. It is stateless.
type Binner struct {
	spec BinSpec
}

// NewBinner validates spec and returns a Binner.
func NewBinner(spec BinSpec) (*Binner, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec.Edges = append([]float64(nil), spec.Edges...)
	spec.Labels = append([]string(nil), spec.Labels...)
	return &Binner{spec: spec}, nil
}

// Spec returns a copy of the binner's definition.
func (b *Binner) Spec() BinSpec {
	s := b.spec
	s.Edges = append([]float64(nil), s.Edges...)
	s.Labels = append([]string(nil), s.Labels...)
	return s
}

// Fit is a no-op.
func (b *Binner) Fit(*table.Table) error {
	return nil
}

// Transform returns a new table with the target column set to the bin label of
// each source value. An existing target column is replaced; t is not modified.
func (b *Binner) Transform(t *table.Table) (*table.Table, error) {
	values, err := t.Floats(b.spec.Source)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(values))
	for i, v := range values {
		labels[i] = b.Label(v)
	}
	return t.WithColumn(table.StringColumn(b.spec.Target, labels))
}

// Label returns the bin label for a single value.
func (b *Binner) Label(v float64) string {
	edges := b.spec.Edges
	if math.IsNaN(v) {
		return table.MissingLabel
	}
	if b.spec.IncludeLowest && v == edges[0] {
		return b.spec.Labels[0]
	}
	if v <= edges[0] || v > edges[len(edges)-1] {
		return table.MissingLabel
	}
	for i := 1; i < len(edges); i++ {
		if v <= edges[i] {
			return b.spec.Labels[i-1]
		}
	}
	return table.MissingLabel
}

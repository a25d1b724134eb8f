package transform

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/tabprep/runtime/internal/table"
)

// StandardScaler standardises numeric columns to zero mean and unit variance.
//
// Mean and Scale are learned by Fit from the non-missing values of each column,
// using the population standard deviation. A column with zero spread gets a
// scale of 1. Missing values stay NaN after Transform.
type StandardScaler struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean,omitempty"`
	Scale   []float64 `json:"scale,omitempty"`
}

// NewStandardScaler returns an unfitted scaler over columns.
func NewStandardScaler(columns []string) *StandardScaler {
	return &StandardScaler{Columns: append([]string(nil), columns...)}
}

// Fitted reports whether Fit has produced statistics for every column.
func (s *StandardScaler) Fitted() bool {
	return len(s.Mean) == len(s.Columns) && len(s.Scale) == len(s.Columns)
}

// Fit learns the per-column mean and scale.
func (s *StandardScaler) Fit(t *table.Table) error {
	if err := t.Require(s.Columns...); err != nil {
		return err
	}
	means := make([]float64, len(s.Columns))
	scales := make([]float64, len(s.Columns))
	for j, name := range s.Columns {
		values, err := t.Floats(name)
		if err != nil {
			return err
		}
		means[j], scales[j] = meanScale(values)
	}
	s.Mean, s.Scale = means, scales
	return nil
}

// Transform returns the standardised columns, one slice per scaler column.
func (s *StandardScaler) Transform(t *table.Table) ([][]float64, error) {
	if !s.Fitted() {
		return nil, ErrNotFitted
	}
	if err := t.Require(s.Columns...); err != nil {
		return nil, err
	}
	out := make([][]float64, len(s.Columns))
	for j, name := range s.Columns {
		values, err := t.Floats(name)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[j] = values
	}
	return out, nil
}

// FeatureNames returns the output column names, which are the input names.
func (s *StandardScaler) FeatureNames() []string {
	return append([]string(nil), s.Columns...)
}

func meanScale(values []float64) (mean, scale float64) {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return 0, 1
	}
	mean, std := stat.PopMeanStdDev(present, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	return mean, std
}

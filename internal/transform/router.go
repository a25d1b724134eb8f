package transform

import (
	"gonum.org/v1/gonum/mat"

	"github.com/tabprep/runtime/internal/table"
)

// Output is a transformed dataset: a numeric matrix with one named column
// per feature.
type Output struct {
	Matrix   *mat.Dense
	Features []string
	Rows     int
}

// Row returns a copy of row i.
func (o *Output) Row(i int) []float64 {
	row := make([]float64, len(o.Features))
	if len(row) == 0 {
		return row
	}
	return mat.Row(row, i, o.Matrix)
}

// Column returns a copy of feature column j.
func (o *Output) Column(j int) []float64 {
	col := make([]float64, o.Rows)
	if o.Rows == 0 {
		return col
	}
	return mat.Col(col, j, o.Matrix)
}

// ColumnRouter routes numeric columns to a StandardScaler and categorical
// columns to a OneHotEncoder, then concatenates both blocks (numeric first).
// Columns in neither set are dropped.
type ColumnRouter struct {
	Scaler  *StandardScaler `json:"scaler"`
	Encoder *OneHotEncoder  `json:"encoder"`
}

// NewColumnRouter validates the feature sets and builds an unfitted router.
func NewColumnRouter(numeric, categorical []string, opts EncoderOptions) (*ColumnRouter, error) {
	if len(numeric)+len(categorical) == 0 {
		return nil, configErrorf("router", "at least one numeric or categorical column is required")
	}
	seen := make(map[string]string, len(numeric)+len(categorical))
	for _, set := range []struct {
		kind    string
		columns []string
	}{{"numeric", numeric}, {"categorical", categorical}} {
		for _, c := range set.columns {
			if c == "" {
				return nil, configErrorf("router", "empty %s column name", set.kind)
			}
			if prev, dup := seen[c]; dup {
				if prev == set.kind {
					return nil, configErrorf("router", "column %q listed twice in the %s set", c, set.kind)
				}
				return nil, configErrorf("router", "column %q is both numeric and categorical", c)
			}
			seen[c] = set.kind
		}
	}
	enc, err := NewOneHotEncoder(categorical, opts)
	if err != nil {
		return nil, err
	}
	return &ColumnRouter{Scaler: NewStandardScaler(numeric), Encoder: enc}, nil
}

// Columns returns every routed column, numeric first.
func (r *ColumnRouter) Columns() []string {
	cols := append([]string(nil), r.Scaler.Columns...)
	return append(cols, r.Encoder.Columns...)
}

// Fit learns scaler and encoder state. All routed columns are checked before
// either transformer is fitted.
func (r *ColumnRouter) Fit(t *table.Table) error {
	if err := t.Require(r.Columns()...); err != nil {
		return err
	}
	if err := r.Scaler.Fit(t); err != nil {
		return err
	}
	return r.Encoder.Fit(t)
}

// Transform produces the numeric matrix. All routed columns are checked before
// any block is computed.
func (r *ColumnRouter) Transform(t *table.Table) (*Output, error) {
	if err := t.Require(r.Columns()...); err != nil {
		return nil, err
	}
	numeric, err := r.Scaler.Transform(t)
	if err != nil {
		return nil, err
	}
	indicators, err := r.Encoder.Transform(t)
	if err != nil {
		return nil, err
	}
	return newOutput(t.Nrow(), append(numeric, indicators...), r.FeatureNames()), nil
}

// FeatureNames returns the output column names in matrix order.
func (r *ColumnRouter) FeatureNames() []string {
	return append(r.Scaler.FeatureNames(), r.Encoder.FeatureNames()...)
}

// newOutput lays column-major blocks out as a row-major dense matrix.
func newOutput(rows int, columns [][]float64, features []string) *Output {
	out := &Output{Features: features, Rows: rows, Matrix: &mat.Dense{}}
	if rows == 0 || len(columns) == 0 {
		return out
	}
	data := make([]float64, rows*len(columns))
	for j, col := range columns {
		for i, v := range col {
			data[i*len(columns)+j] = v
		}
	}
	out.Matrix = mat.NewDense(rows, len(columns), data)
	return out
}

package transform

import (
	"sort"
	"strconv"

	"github.com/tabprep/runtime/internal/table"
)

// Drop policies.
const (
	DropFirst = "first"
	DropNone  = "none"
)

// Unknown category policies.
const (
	HandleUnknownIgnore = "ignore"
	HandleUnknownError  = "error"
)

// EncoderOptions configures a OneHotEncoder.
type EncoderOptions struct {
	// Drop is "first" (default) to omit the reference category, or "none".
	Drop string `json:"drop,omitempty"`
	// HandleUnknown is "ignore" (default, all-zero row) or "error".
	HandleUnknown string `json:"handleUnknown,omitempty"`
}

func (o EncoderOptions) withDefaults() EncoderOptions {
	if o.Drop == "" {
		o.Drop = DropFirst
	}
	if o.HandleUnknown == "" {
		o.HandleUnknown = HandleUnknownIgnore
	}
	return o
}

// Validate checks the policies.
func (o EncoderOptions) Validate() error {
	o = o.withDefaults()
	switch o.Drop {
	case DropFirst, DropNone:
	default:
		return configErrorf("encoder", "drop must be %q or %q, got %q", DropFirst, DropNone, o.Drop)
	}
	switch o.HandleUnknown {
	case HandleUnknownIgnore, HandleUnknownError:
	default:
		return configErrorf("encoder", "handleUnknown must be %q or %q, got %q", HandleUnknownIgnore, HandleUnknownError, o.HandleUnknown)
	}
	return nil
}

// OneHotEncoder expands categorical columns into 0/1 indicator columns.
//
// Categories holds the sorted vocabulary of each column learned by Fit. With
// the "first" drop policy the first category is the reference level and gets
// no indicator, so a column with k categories yields k-1 indicators.
type OneHotEncoder struct {
	Columns       []string   `json:"columns"`
	Drop          string     `json:"drop"`
	HandleUnknown string     `json:"handleUnknown"`
	Categories    [][]string `json:"categories,omitempty"`
}

// NewOneHotEncoder returns an unfitted encoder over columns.
func NewOneHotEncoder(columns []string, opts EncoderOptions) (*OneHotEncoder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return &OneHotEncoder{
		Columns:       append([]string(nil), columns...),
		Drop:          opts.Drop,
		HandleUnknown: opts.HandleUnknown,
	}, nil
}

// Fitted reports whether Fit has produced a vocabulary for every column.
func (e *OneHotEncoder) Fitted() bool {
	return len(e.Categories) == len(e.Columns)
}

// Fit learns the vocabulary of each column.
func (e *OneHotEncoder) Fit(t *table.Table) error {
	if err := t.Require(e.Columns...); err != nil {
		return err
	}
	categories := make([][]string, len(e.Columns))
	for j, name := range e.Columns {
		labels, err := t.Labels(name)
		if err != nil {
			return err
		}
		categories[j] = vocabulary(labels)
	}
	e.Categories = categories
	return nil
}

// Transform returns the indicator columns in FeatureNames order.
func (e *OneHotEncoder) Transform(t *table.Table) ([][]float64, error) {
	if !e.Fitted() {
		return nil, ErrNotFitted
	}
	if err := t.Require(e.Columns...); err != nil {
		return nil, err
	}
	n := t.Nrow()
	var out [][]float64
	for j, name := range e.Columns {
		labels, err := t.Labels(name)
		if err != nil {
			return nil, err
		}
		kept := e.indicators(j)
		index := make(map[string]int, len(e.Categories[j]))
		for k, c := range e.Categories[j] {
			index[c] = k
		}
		block := make([][]float64, len(kept))
		for k := range block {
			block[k] = make([]float64, n)
		}
		offset := len(e.Categories[j]) - len(kept)
		for i, label := range labels {
			k, ok := index[label]
			if !ok {
				if e.HandleUnknown == HandleUnknownError {
					return nil, &UnknownCategoryError{Column: name, Value: label, Row: i}
				}
				continue
			}
			if k < offset {
				continue
			}
			block[k-offset][i] = 1
		}
		out = append(out, block...)
	}
	return out, nil
}

// FeatureNames returns "column_category" for every indicator column.
func (e *OneHotEncoder) FeatureNames() []string {
	var names []string
	for j, name := range e.Columns {
		if j >= len(e.Categories) {
			break
		}
		for _, c := range e.indicators(j) {
			names = append(names, name+"_"+c)
		}
	}
	return names
}

// indicators returns the categories of column j that get an output column.
func (e *OneHotEncoder) indicators(j int) []string {
	cats := e.Categories[j]
	if e.Drop == DropFirst && len(cats) > 0 {
		return cats[1:]
	}
	return cats
}

// vocabulary returns the distinct labels in category order.
func vocabulary(labels []string) []string {
	seen := make(map[string]struct{})
	var cats []string
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		cats = append(cats, l)
	}
	sort.Slice(cats, func(a, b int) bool { return categoryLess(cats[a], cats[b]) })
	return cats
}

// categoryLess orders numbers numerically before other labels, other labels
// lexically, and the missing label last.
func categoryLess(a, b string) bool {
	if a == table.MissingLabel || b == table.MissingLabel {
		return b == table.MissingLabel && a != table.MissingLabel
	}
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		if fa != fb {
			return fa < fb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

package transform

import (
	"errors"
	"math"
	"testing"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/table"
)

func TestBinner_AgeGroupLabels(t *testing.T) {
	b, err := NewBinner(AgeGroupSpec())
	if err != nil {
		t.Fatalf("NewBinner() error = %v", err)
	}

	tests := []struct {
		age  float64
		want string
	}{
		{0, "<18"},
		{5, "<18"},
		{18, "<18"},
		{18.5, "18-40"},
		{40, "18-40"},
		{41, "40-80"},
		{80, "40-80"},
		{80.1, "80+"},
		{100, "80+"},
		{100.5, table.MissingLabel},
		{-1, table.MissingLabel},
		{math.NaN(), table.MissingLabel},
	}

	for _, tt := range tests {
		if got := b.Label(tt.age); got != tt.want {
			t.Errorf("Label(%v) = %q, want %q", tt.age, got, tt.want)
		}
	}
}

func TestBinner_RightClosedWithoutIncludeLowest(t *testing.T) {
	spec := AgeGroupSpec()
	spec.IncludeLowest = false
	b, err := NewBinner(spec)
	if err != nil {
		t.Fatalf("NewBinner() error = %v", err)
	}
	if got := b.Label(0); got != table.MissingLabel {
		t.Errorf("Label(0) = %q, want missing", got)
	}
	if got := b.Label(0.5); got != "<18" {
		t.Errorf("Label(0.5) = %q, want <18", got)
	}
}

func TestBinner_TransformIsCopyOnWriteAndIdempotent(t *testing.T) {
	in := table.MustNew(
		table.FloatColumn("age", []float64{25, 10, math.NaN(), 85}),
		table.StringColumn("sex", []string{"male", "female", "male", "female"}),
	)
	b, err := NewBinner(AgeGroupSpec())
	if err != nil {
		t.Fatalf("NewBinner() error = %v", err)
	}

	once, err := b.Transform(in)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if in.Has("Age_Group") {
		t.Fatal("Transform() modified its input")
	}

	twice, err := b.Transform(once)
	if err != nil {
		t.Fatalf("second Transform() error = %v", err)
	}
	first, _ := once.Labels("Age_Group")
	second, _ := twice.Labels("Age_Group")
	want := []string{"18-40", "<18", table.MissingLabel, "80+"}
	for i := range want {
		if first[i] != want[i] || second[i] != want[i] {
			t.Errorf("row %d: got %q then %q, want %q", i, first[i], second[i], want[i])
		}
	}
	if len(twice.Names()) != 3 {
		t.Errorf("columns after two runs = %v, want 3 columns", twice.Names())
	}
}

func TestBinner_MissingSource(t *testing.T) {
	b, _ := NewBinner(AgeGroupSpec())
	_, err := b.Transform(table.MustNew(table.FloatColumn("fare", []float64{1})))
	var missing *table.MissingColumnError
	if !errors.As(err, &missing) {
		t.Fatalf("Transform() error = %v, want *table.MissingColumnError", err)
	}
}

func TestBinSpec_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*BinSpec)
	}{
		{"no source", func(s *BinSpec) { s.Source = "" }},
		{"no target", func(s *BinSpec) { s.Target = "" }},
		{"target is source", func(s *BinSpec) { s.Target = s.Source }},
		{"single edge", func(s *BinSpec) { s.Edges = []float64{0}; s.Labels = nil }},
		{"decreasing edges", func(s *BinSpec) { s.Edges = []float64{0, 40, 18, 80, 100} }},
		{"equal edges", func(s *BinSpec) { s.Edges = []float64{0, 18, 18, 80, 100} }},
		{"infinite edge", func(s *BinSpec) { s.Edges[4] = math.Inf(1) }},
		{"too few labels", func(s *BinSpec) { s.Labels = s.Labels[:3] }},
		{"duplicate labels", func(s *BinSpec) { s.Labels = []string{"a", "b", "a", "c"} }},
		{"reserved label", func(s *BinSpec) { s.Labels[0] = table.MissingLabel }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := AgeGroupSpec()
			tt.modify(&spec)
			_, err := NewBinner(spec)
			if err == nil {
				t.Fatal("NewBinner() error = nil, want configuration error")
			}
			if !errhandling.IsFatal(err) || errhandling.GetErrorCategory(err) != errhandling.CategoryConfiguration {
				t.Errorf("category = %v, want configuration", errhandling.GetErrorCategory(err))
			}
		})
	}
}

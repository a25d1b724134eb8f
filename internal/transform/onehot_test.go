package transform

import (
	"errors"
	"reflect"
	"testing"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/table"
)

func TestOneHotEncoder_DropFirst(t *testing.T) {
	tbl := table.MustNew(
		table.IntColumn("pclass", []int{3, 1, 2, 3}),
		table.StringColumn("sex", []string{"male", "female", "female", "male"}),
		table.StringColumn("embarked", []string{"S", table.MissingLabel, "C", "S"}),
	)
	enc, err := NewOneHotEncoder([]string{"pclass", "sex", "embarked"}, EncoderOptions{})
	if err != nil {
		t.Fatalf("NewOneHotEncoder() error = %v", err)
	}
	if err := enc.Fit(tbl); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	wantCats := [][]string{{"1", "2", "3"}, {"female", "male"}, {"C", "S", table.MissingLabel}}
	if !reflect.DeepEqual(enc.Categories, wantCats) {
		t.Errorf("Categories = %v, want %v", enc.Categories, wantCats)
	}
	wantNames := []string{"pclass_2", "pclass_3", "sex_male", "embarked_S", "embarked_NaN"}
	if got := enc.FeatureNames(); !reflect.DeepEqual(got, wantNames) {
		t.Errorf("FeatureNames() = %v, want %v", got, wantNames)
	}

	cols, err := enc.Transform(tbl)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	want := [][]float64{
		{0, 0, 1, 0}, // pclass_2
		{1, 0, 0, 1}, // pclass_3
		{1, 0, 0, 1}, // sex_male
		{1, 0, 0, 1}, // embarked_S
		{0, 1, 0, 0}, // embarked_NaN
	}
	if !reflect.DeepEqual(cols, want) {
		t.Errorf("Transform() = %v, want %v", cols, want)
	}
}

func TestOneHotEncoder_DropNone(t *testing.T) {
	tbl := table.MustNew(table.StringColumn("sex", []string{"male", "female"}))
	enc, _ := NewOneHotEncoder([]string{"sex"}, EncoderOptions{Drop: DropNone})
	if err := enc.Fit(tbl); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if got := enc.FeatureNames(); !reflect.DeepEqual(got, []string{"sex_female", "sex_male"}) {
		t.Errorf("FeatureNames() = %v", got)
	}
}

func TestOneHotEncoder_UnknownCategory(t *testing.T) {
	fit := table.MustNew(table.StringColumn("embarked", []string{"S", "C", "Q"}))
	next := table.MustNew(table.StringColumn("embarked", []string{"X", "S"}))

	t.Run("ignore yields all zeros", func(t *testing.T) {
		enc, _ := NewOneHotEncoder([]string{"embarked"}, EncoderOptions{})
		if err := enc.Fit(fit); err != nil {
			t.Fatalf("Fit() error = %v", err)
		}
		cols, err := enc.Transform(next)
		if err != nil {
			t.Fatalf("Transform() error = %v", err)
		}
		// embarked_Q, embarked_S
		if cols[0][0] != 0 || cols[1][0] != 0 {
			t.Errorf("unseen row = [%v %v], want zeros", cols[0][0], cols[1][0])
		}
		if cols[1][1] != 1 {
			t.Errorf("embarked_S for S = %v, want 1", cols[1][1])
		}
	})

	t.Run("error policy", func(t *testing.T) {
		enc, _ := NewOneHotEncoder([]string{"embarked"}, EncoderOptions{HandleUnknown: HandleUnknownError})
		if err := enc.Fit(fit); err != nil {
			t.Fatalf("Fit() error = %v", err)
		}
		_, err := enc.Transform(next)
		var unknown *UnknownCategoryError
		if !errors.As(err, &unknown) {
			t.Fatalf("Transform() error = %v, want *UnknownCategoryError", err)
		}
		if unknown.Value != "X" || unknown.Row != 0 {
			t.Errorf("unknown = %+v", unknown)
		}
		if errhandling.GetErrorCategory(err) != errhandling.CategoryData {
			t.Errorf("category = %v, want data", errhandling.GetErrorCategory(err))
		}
	})
}

func TestOneHotEncoder_SingleCategory(t *testing.T) {
	tbl := table.MustNew(table.StringColumn("deck", []string{"A", "A"}))
	enc, _ := NewOneHotEncoder([]string{"deck"}, EncoderOptions{})
	if err := enc.Fit(tbl); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if n := len(enc.FeatureNames()); n != 0 {
		t.Errorf("len(FeatureNames()) = %d, want 0", n)
	}
}

func TestEncoderOptions_Validate(t *testing.T) {
	if _, err := NewOneHotEncoder([]string{"sex"}, EncoderOptions{Drop: "last"}); err == nil {
		t.Error("drop=last accepted")
	}
	if _, err := NewOneHotEncoder([]string{"sex"}, EncoderOptions{HandleUnknown: "infrequent"}); err == nil {
		t.Error("handleUnknown=infrequent accepted")
	}
}

func TestCategoryLess(t *testing.T) {
	got := vocabulary([]string{"10", table.MissingLabel, "b", "2", "a", "2"})
	want := []string{"2", "10", "a", "b", table.MissingLabel}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("vocabulary() = %v, want %v", got, want)
	}
}

package output

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/transform"
	"github.com/tabprep/runtime/pkg/prep"
)

func sampleOutput() *transform.Output {
	return &transform.Output{
		Matrix:   mat.NewDense(2, 3, []float64{-1.5, 1, 0, math.NaN(), 0, 1}),
		Features: []string{"age", "sex_male", "Age_Group_<18"},
		Rows:     2,
	}
}

func TestCSVOutput_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "features.csv")
	o, err := NewCSVOutputFromConfig(&prep.ModuleConfig{Type: "csv", Config: map[string]interface{}{"path": path}})
	if err != nil {
		t.Fatalf("NewCSVOutputFromConfig() error = %v", err)
	}

	n, err := o.Write(context.Background(), sampleOutput())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Write() = %d, want 2", n)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	want := "age,sex_male,Age_Group_<18\n-1.5,1,0\nNaN,0,1\n"
	if string(data) != want {
		t.Errorf("csv = %q, want %q", data, want)
	}
}

func TestCSVOutput_StdoutWithoutHeader(t *testing.T) {
	o, err := NewCSVOutputFromConfig(&prep.ModuleConfig{Type: "csv", Config: map[string]interface{}{
		"path": Stdout, "header": false,
	}})
	if err != nil {
		t.Fatalf("NewCSVOutputFromConfig() error = %v", err)
	}
	var buf bytes.Buffer
	o.stdout = &buf

	if _, err := o.Write(context.Background(), sampleOutput()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || lines[0] != "-1.5,1,0" {
		t.Errorf("stdout lines = %q, want two data rows", lines)
	}
}

func TestCSVOutput_UnwritablePath(t *testing.T) {
	dir := t.TempDir()
	o, err := NewCSVOutputFromConfig(&prep.ModuleConfig{Type: "csv", Config: map[string]interface{}{"path": dir}})
	if err != nil {
		t.Fatalf("NewCSVOutputFromConfig() error = %v", err)
	}
	_, err = o.Write(context.Background(), sampleOutput())
	if got := errhandling.GetErrorCategory(err); got != errhandling.CategoryIO {
		t.Errorf("Write() error = %v (category %v), want io", err, got)
	}
}

func TestJSONOutput_Write(t *testing.T) {
	o, err := NewJSONOutputFromConfig(&prep.ModuleConfig{Type: "json", Config: map[string]interface{}{"path": "-"}})
	if err != nil {
		t.Fatalf("NewJSONOutputFromConfig() error = %v", err)
	}
	var buf bytes.Buffer
	o.stdout = &buf

	n, err := o.Write(context.Background(), sampleOutput())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Write() = %d, want 2", n)
	}

	var records []map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &records); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0]["age"] != -1.5 || records[0]["sex_male"] != 1.0 {
		t.Errorf("records[0] = %v", records[0])
	}
	if v, ok := records[1]["age"]; !ok || v != nil {
		t.Errorf("records[1][age] = %v, want null", v)
	}
}

func TestOutputConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		new  func() error
	}{
		{"csv without path", func() error {
			_, err := NewCSVOutputFromConfig(&prep.ModuleConfig{Type: "csv", Config: map[string]interface{}{}})
			return err
		}},
		{"json without path", func() error {
			_, err := NewJSONOutputFromConfig(&prep.ModuleConfig{Type: "json"})
			return err
		}},
		{"database without table", func() error {
			_, err := NewDatabaseOutputFromConfig(&prep.ModuleConfig{Type: "database", Config: map[string]interface{}{
				"connectionString": "postgres://localhost/titanic",
			}})
			return err
		}},
		{"database bad table", func() error {
			_, err := NewDatabaseOutputFromConfig(&prep.ModuleConfig{Type: "database", Config: map[string]interface{}{
				"connectionString": "postgres://localhost/titanic", "table": "ml..features",
			}})
			return err
		}},
		{"database without connection", func() error {
			_, err := NewDatabaseOutputFromConfig(&prep.ModuleConfig{Type: "database", Config: map[string]interface{}{
				"table": "features",
			}})
			return err
		}},
		{"database bad batch size", func() error {
			_, err := NewDatabaseOutputFromConfig(&prep.ModuleConfig{Type: "database", Config: map[string]interface{}{
				"connectionString": "postgres://localhost/titanic", "table": "features", "batchSize": float64(0),
			}})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.new()
			if err == nil {
				t.Fatal("error = nil, want configuration error")
			}
			if got := errhandling.GetErrorCategory(err); got != errhandling.CategoryConfiguration {
				t.Errorf("category = %v, want configuration", got)
			}
		})
	}
	if _, err := NewCSVOutputFromConfig(nil); err != ErrNilConfig {
		t.Errorf("nil config error = %v, want ErrNilConfig", err)
	}
}

func TestDatabaseStatements(t *testing.T) {
	features := []string{"age", "Age_Group_<18"}

	create := createTableStatement("ml.features", features)
	wantCreate := `CREATE TABLE IF NOT EXISTS "ml"."features" ("age" DOUBLE PRECISION, "Age_Group_<18" DOUBLE PRECISION)`
	if create != wantCreate {
		t.Errorf("create = %s\nwant %s", create, wantCreate)
	}

	insert := insertStatement("features", features, 2)
	wantInsert := `INSERT INTO "features" ("age", "Age_Group_<18") VALUES (?, ?), (?, ?)`
	if insert != wantInsert {
		t.Errorf("insert = %s\nwant %s", insert, wantInsert)
	}

	args := insertArgs(sampleOutput(), 1, 2)
	if len(args) != 3 || args[0] != nil || args[2] != 1.0 {
		t.Errorf("insertArgs() = %v, want [nil 0 1]", args)
	}
}

func TestDatabaseBatchRows(t *testing.T) {
	if got := batchRows(500, 11); got != 500 {
		t.Errorf("batchRows(500, 11) = %d, want 500", got)
	}
	if got := batchRows(10000, 100); got != 655 {
		t.Errorf("batchRows(10000, 100) = %d, want 655", got)
	}
}

func TestParseDatabaseOutputConfig(t *testing.T) {
	cfg, err := ParseDatabaseOutputConfig(&prep.ModuleConfig{Type: "database", Config: map[string]interface{}{
		"connectionStringRef": "FEATURES_DSN",
		"table":               "features",
		"createTable":         true,
		"batchSize":           float64(100),
	}})
	if err != nil {
		t.Fatalf("ParseDatabaseOutputConfig() error = %v", err)
	}
	if !cfg.CreateTable || cfg.Truncate || cfg.BatchSize != 100 || cfg.Timeout != defaultDatabaseOutputTimeout {
		t.Errorf("config = %+v", cfg)
	}
}

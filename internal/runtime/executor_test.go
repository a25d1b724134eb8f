package runtime

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/modules/filter"
	"github.com/tabprep/runtime/internal/modules/input"
	"github.com/tabprep/runtime/internal/modules/output"
	"github.com/tabprep/runtime/internal/persistence"
	"github.com/tabprep/runtime/internal/table"
	"github.com/tabprep/runtime/internal/transform"
	"github.com/tabprep/runtime/pkg/prep"
)

// =============================================================================
// Mock Implementations for Testing
// =============================================================================

// MockInputModule is a test mock for input.Module interface
type MockInputModule struct {
	data        *table.Table
	err         error
	fetchCalled bool
	closed      bool
}

func (m *MockInputModule) Fetch(_ context.Context) (*table.Table, error) {
	m.fetchCalled = true
	if m.err != nil {
		return nil, m.err
	}
	return m.data, nil
}

func (m *MockInputModule) Close() error {
	m.closed = true
	return nil
}

var _ input.Module = (*MockInputModule)(nil)

// MockFilterModule is a test mock for filter.Module interface
type MockFilterModule struct {
	err           error
	processCalled bool
}

func (m *MockFilterModule) Process(_ context.Context, t *table.Table) (*table.Table, error) {
	m.processCalled = true
	if m.err != nil {
		return nil, m.err
	}
	return t, nil
}

var _ filter.Module = (*MockFilterModule)(nil)

// MockOutputModule is a test mock for output.Module interface
type MockOutputModule struct {
	written *transform.Output
	err     error
	closed  bool
}

func (m *MockOutputModule) Write(_ context.Context, out *transform.Output) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.written = out
	return out.Rows, nil
}

func (m *MockOutputModule) Close() error {
	m.closed = true
	return nil
}

var _ output.Module = (*MockOutputModule)(nil)

// =============================================================================
// Fixtures
// =============================================================================

func passengers() *table.Table {
	return table.MustNew(
		table.IntColumn("pclass", []int{3, 1, 2, 3}),
		table.StringColumn("sex", []string{"male", "female", "female", "male"}),
		table.FloatColumn("age", []float64{22, 38, math.NaN(), 81}),
		table.FloatColumn("fare", []float64{7.25, 71.28, 13, 8.05}),
		table.StringColumn("embarked", []string{"S", "C", "Q", "S"}),
		table.FloatColumn("survived", []float64{0, 1, math.NaN(), 1}),
	)
}

func titanicPipeline(dir string) *prep.Pipeline {
	return &prep.Pipeline{
		ID:      "titanic",
		Name:    "Titanic",
		Version: "1.0.0",
		Input:   &prep.ModuleConfig{Type: "csv"},
		Filters: []prep.ModuleConfig{
			{Type: "dropMissing", When: prep.WhenFit, Config: map[string]interface{}{"columns": []interface{}{"survived"}}},
		},
		Preprocessor: &prep.PreprocessorConfig{
			Derive:      []prep.DeriveConfig{{Preset: PresetAgeGroup}},
			Numeric:     []string{"age", "fare"},
			Categorical: []string{"pclass", "sex", "embarked"},
		},
		Model:  &prep.ModelConfig{Dir: dir},
		Output: &prep.ModuleConfig{Type: "csv"},
	}
}

func dropSurvived(t *testing.T) filter.Module {
	t.Helper()
	f, err := filter.NewDropMissingFromConfig(prep.ModuleConfig{
		Type:   "dropMissing",
		Config: map[string]interface{}{"columns": []interface{}{"survived"}},
	}, 0)
	if err != nil {
		t.Fatalf("NewDropMissingFromConfig() error = %v", err)
	}
	return f
}

// =============================================================================
// Execution
// =============================================================================

func TestExecutor_FitTransform(t *testing.T) {
	dir := t.TempDir()
	in := &MockInputModule{data: passengers()}
	out := &MockOutputModule{}
	e := NewExecutorWithModules(in, []filter.Module{dropSurvived(t)}, out, nil, false)

	result, err := e.Execute(context.Background(), titanicPipeline(dir), prep.ModeFitTransform)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Status != prep.StatusSuccess || result.Error != nil {
		t.Fatalf("result = %+v", result)
	}
	if result.RunID == "" || result.PipelineID != "titanic" || result.Mode != prep.ModeFitTransform {
		t.Errorf("identity fields = %q %q %q", result.RunID, result.PipelineID, result.Mode)
	}
	if result.RowsRead != 4 || result.RowsDropped != 1 || result.RowsTransformed != 3 || result.RowsWritten != 3 {
		t.Errorf("rows read/dropped/transformed/written = %d/%d/%d/%d, want 4/1/3/3",
			result.RowsRead, result.RowsDropped, result.RowsTransformed, result.RowsWritten)
	}
	if out.written == nil || !reflect.DeepEqual(out.written.Features, result.Features) {
		t.Errorf("written features = %v, result features = %v", out.written, result.Features)
	}
	if result.ModelPath != "" {
		t.Errorf("ModelPath = %q, want empty for fitTransform", result.ModelPath)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("fitTransform persisted files: %v", entries)
	}
	if !in.closed || !out.closed {
		t.Errorf("closed input=%v output=%v, want both", in.closed, out.closed)
	}
}

func TestExecutor_FitThenTransform(t *testing.T) {
	dir := t.TempDir()
	pipeline := titanicPipeline(dir)

	fitOut := &MockOutputModule{}
	fit := NewExecutorWithModules(&MockInputModule{data: passengers()}, []filter.Module{dropSurvived(t)}, fitOut, nil, false)
	fitResult, err := fit.Execute(context.Background(), pipeline, prep.ModeFit)
	if err != nil {
		t.Fatalf("fit Execute() error = %v", err)
	}
	if want := filepath.Join(dir, "titanic.json"); fitResult.ModelPath != want {
		t.Fatalf("ModelPath = %q, want %q", fitResult.ModelPath, want)
	}

	unseen := table.MustNew(
		table.IntColumn("pclass", []int{2}),
		table.StringColumn("sex", []string{"female"}),
		table.FloatColumn("age", []float64{5}),
		table.FloatColumn("fare", []float64{20}),
		table.StringColumn("embarked", []string{"X"}),
	)
	transformOut := &MockOutputModule{}
	tr := NewExecutorWithModules(&MockInputModule{data: unseen}, []filter.Module{dropSurvived(t)}, transformOut, nil, false)
	result, err := tr.Execute(context.Background(), pipeline, prep.ModeTransform)
	if err != nil {
		t.Fatalf("transform Execute() error = %v", err)
	}
	if result.RowsDropped != 0 || result.RowsTransformed != 1 {
		t.Errorf("rows dropped/transformed = %d/%d, want 0/1", result.RowsDropped, result.RowsTransformed)
	}
	if !reflect.DeepEqual(result.Features, fitResult.Features) {
		t.Errorf("transform features = %v, want %v", result.Features, fitResult.Features)
	}
	if result.ModelPath != fitResult.ModelPath {
		t.Errorf("ModelPath = %q, want %q", result.ModelPath, fitResult.ModelPath)
	}
}

func TestExecutor_TransformWithoutModel(t *testing.T) {
	in := &MockInputModule{data: passengers()}
	e := NewExecutorWithModules(in, nil, &MockOutputModule{}, nil, false)

	result, err := e.Execute(context.Background(), titanicPipeline(t.TempDir()), prep.ModeTransform)
	if !errors.Is(err, persistence.ErrModelNotFound) {
		t.Fatalf("Execute() error = %v, want ErrModelNotFound", err)
	}
	if result.Error == nil || result.Error.Code != ErrCodeModelFailed || result.Error.Module != StageModel {
		t.Errorf("result.Error = %+v, want MODEL_FAILED", result.Error)
	}
	if in.fetchCalled {
		t.Error("input fetched although the model is missing")
	}
	if !in.closed {
		t.Error("input not closed")
	}
}

func TestExecutor_DryRun(t *testing.T) {
	dir := t.TempDir()
	e := NewExecutorWithModules(&MockInputModule{data: passengers()}, nil, nil, nil, true)

	result, err := e.Execute(context.Background(), titanicPipeline(dir), prep.ModeFit)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.DryRun || result.RowsWritten != 0 || result.RowsTransformed != 4 {
		t.Errorf("result = %+v", result)
	}
	if result.ModelPath != "" {
		t.Errorf("ModelPath = %q, want empty in dry-run", result.ModelPath)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("dry-run persisted files: %v", entries)
	}
}

func TestExecutor_StageFailures(t *testing.T) {
	networkErr := errhandling.NewNetworkError("connection refused", nil)
	tests := []struct {
		name         string
		input        *MockInputModule
		filters      []filter.Module
		output       *MockOutputModule
		pipeline     func(*prep.Pipeline)
		wantCode     string
		wantCategory errhandling.ErrorCategory
	}{
		{
			name:         "input",
			input:        &MockInputModule{err: networkErr},
			output:       &MockOutputModule{},
			wantCode:     ErrCodeInputFailed,
			wantCategory: errhandling.CategoryNetwork,
		},
		{
			name:         "filter",
			input:        &MockInputModule{data: passengers()},
			filters:      []filter.Module{&MockFilterModule{err: &table.MissingColumnError{Columns: []string{"survived"}}}},
			output:       &MockOutputModule{},
			wantCode:     ErrCodeFilterFailed,
			wantCategory: errhandling.CategorySchema,
		},
		{
			name:   "fit on missing column",
			input:  &MockInputModule{data: passengers()},
			output: &MockOutputModule{},
			pipeline: func(p *prep.Pipeline) {
				p.Preprocessor.Numeric = append(p.Preprocessor.Numeric, "sibsp")
			},
			wantCode:     ErrCodeFitFailed,
			wantCategory: errhandling.CategorySchema,
		},
		{
			name:   "invalid preprocessor",
			input:  &MockInputModule{data: passengers()},
			output: &MockOutputModule{},
			pipeline: func(p *prep.Pipeline) {
				p.Preprocessor.Encoder = &prep.EncoderConfig{Drop: "last"}
			},
			wantCode:     ErrCodeInvalidInput,
			wantCategory: errhandling.CategoryConfiguration,
		},
		{
			name:         "output",
			input:        &MockInputModule{data: passengers()},
			output:       &MockOutputModule{err: errhandling.NewIOError("disk full", nil)},
			wantCode:     ErrCodeOutputFailed,
			wantCategory: errhandling.CategoryIO,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline := titanicPipeline(t.TempDir())
			pipeline.Filters = nil
			if tt.pipeline != nil {
				tt.pipeline(pipeline)
			}
			e := NewExecutorWithModules(tt.input, tt.filters, tt.output, nil, false)

			result, err := e.Execute(context.Background(), pipeline, prep.ModeFitTransform)
			if err == nil {
				t.Fatal("Execute() error = nil")
			}
			if result.Status != prep.StatusError || result.Error == nil {
				t.Fatalf("result = %+v", result)
			}
			if result.Error.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", result.Error.Code, tt.wantCode)
			}
			if result.Error.Category != string(tt.wantCategory) {
				t.Errorf("category = %s, want %s", result.Error.Category, tt.wantCategory)
			}
			if result.CompletedAt.IsZero() {
				t.Error("CompletedAt not set")
			}
			if !tt.input.closed || !tt.output.closed {
				t.Errorf("closed input=%v output=%v, want both", tt.input.closed, tt.output.closed)
			}
		})
	}
}

func TestExecutor_FilterErrorDetails(t *testing.T) {
	pipeline := titanicPipeline(t.TempDir())
	pipeline.Filters = []prep.ModuleConfig{{Type: "select"}, {Type: "condition"}}
	failing := &MockFilterModule{err: errors.New("boom")}
	e := NewExecutorWithModules(&MockInputModule{data: passengers()},
		[]filter.Module{&MockFilterModule{}, failing}, &MockOutputModule{}, nil, false)

	result, _ := e.Execute(context.Background(), pipeline, prep.ModeFit)
	if result.Error == nil {
		t.Fatal("result.Error = nil")
	}
	if result.Error.Details["filterIndex"] != 1 || result.Error.Details["filterType"] != "condition" {
		t.Errorf("details = %v", result.Error.Details)
	}
	if result.Error.Message != "filter module 1 failed: boom" {
		t.Errorf("message = %q", result.Error.Message)
	}
}

func TestExecutor_FilterGating(t *testing.T) {
	tests := []struct {
		when string
		mode string
		runs bool
	}{
		{"", prep.ModeTransform, true},
		{prep.WhenFit, prep.ModeFit, true},
		{prep.WhenFit, prep.ModeFitTransform, true},
		{prep.WhenTransform, prep.ModeFit, false},
		{prep.WhenTransform, prep.ModeFitTransform, true},
	}
	for _, tt := range tests {
		t.Run(tt.when+"/"+tt.mode, func(t *testing.T) {
			dir := t.TempDir()
			pipeline := titanicPipeline(dir)
			if tt.mode == prep.ModeTransform {
				seed := NewExecutorWithModules(&MockInputModule{data: passengers()}, nil, &MockOutputModule{}, nil, false)
				if _, err := seed.Execute(context.Background(), pipeline, prep.ModeFit); err != nil {
					t.Fatalf("seeding model: %v", err)
				}
			}
			pipeline.Filters = []prep.ModuleConfig{{Type: "mock", When: tt.when}}
			f := &MockFilterModule{}
			e := NewExecutorWithModules(&MockInputModule{data: passengers()}, []filter.Module{f}, &MockOutputModule{}, nil, false)

			if _, err := e.Execute(context.Background(), pipeline, tt.mode); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if f.processCalled != tt.runs {
				t.Errorf("filter ran = %v, want %v", f.processCalled, tt.runs)
			}
		})
	}
}

func TestExecutor_ValidateExecution(t *testing.T) {
	tests := []struct {
		name     string
		executor *Executor
		pipeline *prep.Pipeline
		mode     string
		wantErr  error
	}{
		{"nil pipeline", NewExecutorWithModules(&MockInputModule{}, nil, &MockOutputModule{}, nil, false), nil, prep.ModeFit, ErrNilPipeline},
		{"invalid mode", NewExecutorWithModules(&MockInputModule{}, nil, &MockOutputModule{}, nil, false), titanicPipeline(""), "predict", ErrInvalidMode},
		{"nil input", NewExecutorWithModules(nil, nil, &MockOutputModule{}, nil, false), titanicPipeline(""), prep.ModeFit, ErrNilInputModule},
		{"nil output", NewExecutorWithModules(&MockInputModule{}, nil, nil, nil, false), titanicPipeline(""), prep.ModeFit, ErrNilOutputModule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.executor.Execute(context.Background(), tt.pipeline, tt.mode)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Execute() error = %v, want %v", err, tt.wantErr)
			}
			if result == nil || result.Error == nil || result.Error.Code != ErrCodeInvalidInput {
				t.Errorf("result = %+v, want INVALID_INPUT", result)
			}
		})
	}
}

func TestExecutor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pipeline := titanicPipeline(t.TempDir())
	pipeline.Filters = []prep.ModuleConfig{{Type: "mock"}}
	f := &MockFilterModule{}
	e := NewExecutorWithModules(&MockInputModule{data: passengers()}, []filter.Module{f}, &MockOutputModule{}, nil, false)

	result, err := e.Execute(ctx, pipeline, prep.ModeFitTransform)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
	if f.processCalled {
		t.Error("filter ran after cancellation")
	}
	if result.Error == nil || result.Error.Code != ErrCodeFilterFailed {
		t.Errorf("result.Error = %+v, want FILTER_FAILED", result.Error)
	}
}

func TestSummaryMetrics(t *testing.T) {
	result := &prep.ExecutionResult{RowsRead: 10, RowsDropped: 2, RowsTransformed: 8, Features: []string{"a", "b"}}
	m := SummaryMetrics(result)
	if m.RowsRead != 10 || m.RowsDropped != 2 || m.RowsTransformed != 8 || m.FeatureCount != 2 || m.TotalDuration != 0 {
		t.Errorf("SummaryMetrics() = %+v", m)
	}
}

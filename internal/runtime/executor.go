// Package runtime provides the pipeline execution engine.
// It orchestrates the execution of Input, Filter, Preprocessor and Output stages.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/logger"
	"github.com/tabprep/runtime/internal/modules/filter"
	"github.com/tabprep/runtime/internal/modules/input"
	"github.com/tabprep/runtime/internal/modules/output"
	"github.com/tabprep/runtime/internal/persistence"
	"github.com/tabprep/runtime/internal/table"
	"github.com/tabprep/runtime/internal/transform"
	"github.com/tabprep/runtime/pkg/prep"
)

// Error codes for pipeline execution errors
const (
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeInputFailed     = "INPUT_FAILED"
	ErrCodeFilterFailed    = "FILTER_FAILED"
	ErrCodeFitFailed       = "FIT_FAILED"
	ErrCodeTransformFailed = "TRANSFORM_FAILED"
	ErrCodeModelFailed     = "MODEL_FAILED"
	ErrCodeOutputFailed    = "OUTPUT_FAILED"
)

// Stage names used in logs and error details.
const (
	StageInput      = "input"
	StageFilter     = "filter"
	StagePreprocess = "preprocess"
	StageModel      = "model"
	StageOutput     = "output"
)

// Common errors
var (
	// ErrNilPipeline is returned when pipeline configuration is nil
	ErrNilPipeline = errors.New("pipeline configuration is nil")

	// ErrNilInputModule is returned when input module is nil
	ErrNilInputModule = errors.New("input module is nil")

	// ErrNilOutputModule is returned when output module is nil
	ErrNilOutputModule = errors.New("output module is nil")

	// ErrInvalidMode is returned for a mode other than fit, transform or fitTransform
	ErrInvalidMode = errors.New("invalid execution mode")
)

// Executor is responsible for executing pipeline configurations.
// It orchestrates the execution flow: Input → Filters → Preprocessor → Output.
//
// The Executor only interacts with modules through their public interfaces.
// Filter modules are index-aligned with Pipeline.Filters, whose When field
// gates each filter by mode.
type Executor struct {
	inputModule   input.Module
	filterModules []filter.Module
	outputModule  output.Module
	store         *persistence.ModelStore
	dryRun        bool
}

// NewExecutorWithModules creates a new pipeline executor with all modules configured.
//
// Parameters:
//   - inputModule: The input module that loads the dataset
//   - filterModules: Optional filters, in the order of Pipeline.Filters (can be nil)
//   - outputModule: The output module that writes the feature matrix
//   - store: Model store; nil uses the pipeline's model directory
//   - dryRun: If true, skips output and model persistence
func NewExecutorWithModules(
	inputModule input.Module,
	filterModules []filter.Module,
	outputModule output.Module,
	store *persistence.ModelStore,
	dryRun bool,
) *Executor {
	return &Executor{
		inputModule:   inputModule,
		filterModules: filterModules,
		outputModule:  outputModule,
		store:         store,
		dryRun:        dryRun,
	}
}

// stageTimings holds timing measurements for each execution stage
type stageTimings struct {
	inputDuration      time.Duration
	filterDuration     time.Duration
	preprocessDuration time.Duration
	outputDuration     time.Duration
}

// run carries the state of one execution between stages.
type run struct {
	pipeline *prep.Pipeline
	mode     string
	execCtx  logger.ExecutionContext
	result   *prep.ExecutionResult
	store    *persistence.ModelStore
	name     string

	// exactly one of preprocessor (fit modes) and model (transform) is set before input
	preprocessor *transform.Preprocessor
	model        *transform.Model
}

// Execute runs a pipeline in the given mode.
//
// Execution flow:
//  1. Validate pipeline, modules and mode
//  2. Build the preprocessor (fit, fitTransform) or load the model (transform)
//  3. Execute Input module to load the dataset
//  4. Execute the Filter modules that apply to the mode
//  5. Fit and/or transform; persist the model in fit mode (unless dry-run)
//  6. Execute Output module (unless dry-run)
//
// Resource Management:
//   - Input module: Closed immediately after Fetch (even on error).
//   - Output module: Closed at end of execution (via defer).
//
// Returns both result and error; the result is never nil.
func (e *Executor) Execute(ctx context.Context, pipeline *prep.Pipeline, mode string) (*prep.ExecutionResult, error) {
	startedAt := time.Now()
	result := e.newErrorResult(startedAt, mode)
	var timings stageTimings

	if err := e.validateExecution(pipeline, mode, result); err != nil {
		if pipeline != nil {
			execCtx := e.executionContext(pipeline, result)
			logger.LogExecutionStart(execCtx)
			logger.LogExecutionEnd(execCtx, prep.StatusError, 0, time.Since(startedAt))
		}
		return result, err
	}
	result.PipelineID = pipeline.ID

	r := &run{
		pipeline: pipeline,
		mode:     mode,
		execCtx:  e.executionContext(pipeline, result),
		result:   result,
	}
	r.store, r.name = modelLocation(pipeline, e.store)
	logger.LogExecutionStart(r.execCtx)

	if e.outputModule != nil {
		defer e.closeModule(pipeline.ID, StageOutput, e.outputModule)
	}

	if err := e.prepare(r); err != nil {
		if e.inputModule != nil {
			e.closeModule(pipeline.ID, StageInput, e.inputModule)
			e.inputModule = nil
		}
		return e.fail(r, startedAt, err)
	}

	data, inputDuration, err := e.executeInput(ctx, r)
	timings.inputDuration = inputDuration

	// Close input module immediately after input execution completes.
	// The table stays in memory.
	if e.inputModule != nil {
		e.closeModule(pipeline.ID, StageInput, e.inputModule)
		e.inputModule = nil // Prevent double-close
	}
	if err != nil {
		return e.fail(r, startedAt, err)
	}
	result.RowsRead = data.Nrow()

	filtered, filterDuration, err := e.executeFiltersWithResult(ctx, r, data)
	timings.filterDuration = filterDuration
	if err != nil {
		return e.fail(r, startedAt, err)
	}
	result.RowsDropped = data.Nrow() - filtered.Nrow()

	out, preprocessDuration, err := e.executePreprocess(ctx, r, filtered)
	timings.preprocessDuration = preprocessDuration
	if err != nil {
		return e.fail(r, startedAt, err)
	}
	result.RowsTransformed = out.Rows
	result.Features = append([]string(nil), out.Features...)

	if r.mode == prep.ModeFit && !e.dryRun {
		if err := e.saveModel(r); err != nil {
			return e.fail(r, startedAt, err)
		}
	}

	outputDuration, err := e.executeOutputWithResult(ctx, r, out)
	timings.outputDuration = outputDuration
	if err != nil {
		return e.fail(r, startedAt, err)
	}

	e.finalizeSuccessWithMetrics(r, startedAt, timings)
	return result, nil
}

// executionContext builds the run-level logging context.
func (e *Executor) executionContext(pipeline *prep.Pipeline, result *prep.ExecutionResult) logger.ExecutionContext {
	ctx := logger.NewExecutionContext(pipeline.ID, pipeline.Name, result.RunID, result.Mode)
	ctx.DryRun = e.dryRun
	return ctx
}

// newErrorResult creates a new ExecutionResult initialized with error status.
func (e *Executor) newErrorResult(startedAt time.Time, mode string) *prep.ExecutionResult {
	return &prep.ExecutionResult{
		RunID:     uuid.NewString(),
		Mode:      mode,
		Status:    prep.StatusError,
		StartedAt: startedAt,
		DryRun:    e.dryRun,
	}
}

// fail logs the end of a failed execution and returns the result with err.
func (e *Executor) fail(r *run, startedAt time.Time, err error) (*prep.ExecutionResult, error) {
	r.result.CompletedAt = time.Now()
	logger.LogExecutionEnd(r.execCtx, prep.StatusError, r.result.RowsTransformed, time.Since(startedAt))
	return r.result, err
}

// buildExecutionError creates an ExecutionError with classified category.
func buildExecutionError(code, module string, err error) *prep.ExecutionError {
	return &prep.ExecutionError{
		Code:     code,
		Message:  err.Error(),
		Module:   module,
		Category: string(errhandling.ClassifyError(err).Category),
	}
}

// validateExecution validates the pipeline, modules and mode before execution.
func (e *Executor) validateExecution(pipeline *prep.Pipeline, mode string, result *prep.ExecutionResult) error {
	if pipeline == nil {
		logger.Error("pipeline execution failed: nil pipeline configuration")
		result.CompletedAt = time.Now()
		result.Error = buildExecutionError(ErrCodeInvalidInput, "", ErrNilPipeline)
		return ErrNilPipeline
	}

	switch mode {
	case prep.ModeFit, prep.ModeTransform, prep.ModeFitTransform:
	default:
		err := fmt.Errorf("%w: %q (want %s, %s or %s)", ErrInvalidMode, mode, prep.ModeFit, prep.ModeTransform, prep.ModeFitTransform)
		logger.Error("pipeline execution failed: invalid mode",
			slog.String("pipeline_id", pipeline.ID),
			slog.String("mode", mode))
		result.CompletedAt = time.Now()
		result.Error = buildExecutionError(ErrCodeInvalidInput, "", err)
		result.Error.Category = string(errhandling.CategoryConfiguration)
		return err
	}

	if e.inputModule == nil {
		logger.Error("pipeline execution failed: input module is nil",
			slog.String("pipeline_id", pipeline.ID))
		result.CompletedAt = time.Now()
		result.Error = buildExecutionError(ErrCodeInvalidInput, StageInput, ErrNilInputModule)
		return ErrNilInputModule
	}

	if e.outputModule == nil && !e.dryRun {
		logger.Error("pipeline execution failed: output module is nil",
			slog.String("pipeline_id", pipeline.ID))
		result.CompletedAt = time.Now()
		result.Error = buildExecutionError(ErrCodeInvalidInput, StageOutput, ErrNilOutputModule)
		return ErrNilOutputModule
	}

	return nil
}

// prepare builds the preprocessor or loads the model before any data is read,
// so a bad declaration or a missing model fails without touching the source.
func (e *Executor) prepare(r *run) error {
	if r.mode == prep.ModeTransform {
		stageCtx := r.execCtx.ForStage(StageModel, "load")
		logger.LogStageStart(stageCtx)
		start := time.Now()
		model, err := r.store.Load(r.name)
		if err != nil {
			return e.stageFailed(r, stageCtx, ErrCodeModelFailed, StageModel, 0, time.Since(start), err)
		}
		logger.LogStageEnd(stageCtx, model.RowsFitted, time.Since(start), nil)
		r.model = model
		r.result.ModelPath, _ = r.store.Path(r.name)
		return nil
	}

	cfg, err := PreprocessorConfig(r.pipeline.Preprocessor)
	if err == nil {
		r.preprocessor, err = transform.NewPreprocessor(cfg)
	}
	if err != nil {
		r.result.CompletedAt = time.Now()
		r.result.Error = buildExecutionError(ErrCodeInvalidInput, StagePreprocess, err)
		logger.Error("pipeline execution failed: invalid preprocessor",
			slog.String("pipeline_id", r.pipeline.ID),
			slog.String("error", err.Error()))
		return fmt.Errorf("building preprocessor: %w", err)
	}
	return nil
}

// stageFailed records a stage failure in the result and logs it.
func (e *Executor) stageFailed(r *run, stageCtx logger.ExecutionContext, code, module string, rows int, d time.Duration, err error) error {
	r.result.Error = buildExecutionError(code, module, err)
	logger.LogStageEnd(stageCtx, rows, d, &logger.StageError{
		Code:     code,
		Category: r.result.Error.Category,
		Err:      err,
	})
	return fmt.Errorf("executing %s stage: %w", module, err)
}

// moduleCloser interface for modules that can be closed.
type moduleCloser interface {
	Close() error
}

// closeModule closes a module and logs any error.
func (e *Executor) closeModule(pipelineID, moduleName string, m moduleCloser) {
	if err := m.Close(); err != nil {
		logger.Warn("failed to close module",
			slog.String("pipeline_id", pipelineID),
			slog.String("module", moduleName),
			slog.String("error", err.Error()),
		)
	}
}

// executeInput executes the input module and returns the dataset and duration.
func (e *Executor) executeInput(ctx context.Context, r *run) (*table.Table, time.Duration, error) {
	moduleType := ""
	if r.pipeline.Input != nil {
		moduleType = r.pipeline.Input.Type
	}
	stageCtx := r.execCtx.ForStage(StageInput, moduleType)
	logger.LogStageStart(stageCtx)

	start := time.Now()
	data, err := e.inputModule.Fetch(ctx)
	d := time.Since(start)
	if err != nil {
		return nil, d, e.stageFailed(r, stageCtx, ErrCodeInputFailed, StageInput, 0, d, err)
	}

	logger.LogStageEnd(stageCtx, data.Nrow(), d, nil)
	return data, d, nil
}

// executeFiltersWithResult runs the filters that apply to the mode in sequence.
func (e *Executor) executeFiltersWithResult(ctx context.Context, r *run, data *table.Table) (*table.Table, time.Duration, error) {
	start := time.Now()
	current := data
	for i, filterModule := range e.filterModules {
		moduleType := ""
		if i < len(r.pipeline.Filters) {
			cfg := r.pipeline.Filters[i]
			moduleType = cfg.Type
			if !cfg.AppliesTo(r.mode) {
				logger.Debug("filter skipped for mode",
					slog.String("pipeline_id", r.pipeline.ID),
					slog.Int("filter_index", i),
					slog.String("filter_type", cfg.Type),
					slog.String("when", cfg.When),
					slog.String("mode", r.mode),
				)
				continue
			}
		}
		if filterModule == nil {
			logger.Warn("nil filter module encountered; skipping",
				slog.String("pipeline_id", r.pipeline.ID),
				slog.Int("filter_index", i),
			)
			continue
		}

		stageCtx := r.execCtx.ForStage(StageFilter, moduleType)
		stageCtx.FilterIndex = i
		logger.LogStageStart(stageCtx)

		filterStart := time.Now()
		err := ctx.Err()
		var next *table.Table
		if err == nil {
			next, err = filterModule.Process(ctx, current)
		}
		d := time.Since(filterStart)
		if err != nil {
			err = e.stageFailed(r, stageCtx, ErrCodeFilterFailed, StageFilter, current.Nrow(), d, err)
			r.result.Error.Message = fmt.Sprintf("filter module %d failed: %s", i, r.result.Error.Message)
			r.result.Error.Details = map[string]interface{}{"filterIndex": i, "filterType": moduleType}
			return nil, time.Since(start), err
		}
		logger.LogStageEnd(stageCtx, next.Nrow(), d, nil)
		current = next
	}
	return current, time.Since(start), nil
}

// executePreprocess fits and/or transforms the filtered dataset.
func (e *Executor) executePreprocess(ctx context.Context, r *run, data *table.Table) (*transform.Output, time.Duration, error) {
	stageCtx := r.execCtx.ForStage(StagePreprocess, r.mode)
	logger.LogStageStart(stageCtx)

	start := time.Now()
	if err := ctx.Err(); err != nil {
		code := ErrCodeFitFailed
		if r.mode == prep.ModeTransform {
			code = ErrCodeTransformFailed
		}
		return nil, time.Since(start), e.stageFailed(r, stageCtx, code, StagePreprocess, data.Nrow(), time.Since(start), err)
	}

	if r.mode == prep.ModeTransform {
		out, err := r.model.Transform(data)
		d := time.Since(start)
		if err != nil {
			return nil, d, e.stageFailed(r, stageCtx, ErrCodeTransformFailed, StagePreprocess, data.Nrow(), d, err)
		}
		logger.LogStageEnd(stageCtx, out.Rows, d, nil)
		return out, d, nil
	}

	model, out, err := r.preprocessor.FitTransform(data)
	d := time.Since(start)
	if err != nil {
		return nil, d, e.stageFailed(r, stageCtx, ErrCodeFitFailed, StagePreprocess, data.Nrow(), d, err)
	}
	r.model = model
	logger.LogStageEnd(stageCtx, out.Rows, d, nil)
	return out, d, nil
}

// saveModel persists the fitted model.
func (e *Executor) saveModel(r *run) error {
	stageCtx := r.execCtx.ForStage(StageModel, "save")
	logger.LogStageStart(stageCtx)

	start := time.Now()
	path, err := r.store.Save(r.name, r.model)
	d := time.Since(start)
	if err != nil {
		return e.stageFailed(r, stageCtx, ErrCodeModelFailed, StageModel, r.model.RowsFitted, d, err)
	}
	r.result.ModelPath = path
	logger.LogStageEnd(stageCtx, r.model.RowsFitted, d, nil)
	return nil
}

// executeOutputWithResult writes the feature matrix and updates result.
// In dry-run mode the output module is not called.
func (e *Executor) executeOutputWithResult(ctx context.Context, r *run, out *transform.Output) (time.Duration, error) {
	if e.dryRun {
		logger.Debug("dry-run mode: skipping output module",
			slog.String("pipeline_id", r.pipeline.ID),
			slog.Int("rows_would_write", out.Rows),
			slog.Int("features", len(out.Features)),
		)
		return 0, nil
	}

	moduleType := ""
	if r.pipeline.Output != nil {
		moduleType = r.pipeline.Output.Type
	}
	stageCtx := r.execCtx.ForStage(StageOutput, moduleType)
	logger.LogStageStart(stageCtx)

	start := time.Now()
	written, err := e.outputModule.Write(ctx, out)
	d := time.Since(start)
	r.result.RowsWritten = written
	if err != nil {
		return d, e.stageFailed(r, stageCtx, ErrCodeOutputFailed, StageOutput, written, d, err)
	}
	logger.LogStageEnd(stageCtx, written, d, nil)
	return d, nil
}

// finalizeSuccessWithMetrics marks the execution as successful and logs completion with metrics.
func (e *Executor) finalizeSuccessWithMetrics(r *run, startedAt time.Time, timings stageTimings) {
	r.result.Status = prep.StatusSuccess
	r.result.CompletedAt = time.Now()
	r.result.Error = nil

	totalDuration := time.Since(startedAt)
	logger.LogExecutionEnd(r.execCtx, prep.StatusSuccess, r.result.RowsTransformed, totalDuration)
	m := SummaryMetrics(r.result)
	m.TotalDuration = totalDuration
	m.InputDuration = timings.inputDuration
	m.FilterDuration = timings.filterDuration
	m.PreprocessDuration = timings.preprocessDuration
	m.OutputDuration = timings.outputDuration
	logger.LogMetrics(r.execCtx, m)
}

// SummaryMetrics returns the counters of a result and its total duration.
func SummaryMetrics(result *prep.ExecutionResult) logger.ExecutionMetrics {
	m := logger.ExecutionMetrics{
		RowsRead:        result.RowsRead,
		RowsDropped:     result.RowsDropped,
		RowsTransformed: result.RowsTransformed,
		FeatureCount:    len(result.Features),
	}
	if !result.CompletedAt.IsZero() {
		m.TotalDuration = result.CompletedAt.Sub(result.StartedAt)
	}
	return m
}

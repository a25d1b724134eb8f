// Package logger provides structured logging for the preprocessing runtime.
// It wraps log/slog behind a package-level Logger.
//
// Console logs go to stderr so that outputs writing the matrix to stdout
// stay machine-readable. Two console formats are supported:
//   - JSON (default): machine-readable structured logging
//   - Human: readable lines with level glyphs and optional colors
//
// Execution helpers (stage start/end, metrics) use snake_case field names.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger is the default logger instance.
var Logger *slog.Logger

// console is where console handlers write. Tests swap it.
var console io.Writer = os.Stderr

func init() {
	Logger = slog.New(newConsoleHandler(slog.LevelInfo, FormatJSON))
}

// OutputFormat represents the log output format.
type OutputFormat int

const (
	// FormatJSON is the default machine-readable JSON format
	FormatJSON OutputFormat = iota
	// FormatHuman is a human-readable console format
	FormatHuman
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "human", "text":
		return FormatHuman, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format %q (want json or human)", s)
	}
}

func (f OutputFormat) String() string {
	if f == FormatHuman {
		return "human"
	}
	return "json"
}

func newConsoleHandler(level slog.Level, format OutputFormat) slog.Handler {
	if format == FormatHuman {
		return NewHumanHandler(console, &HumanHandlerOptions{
			Level:     level,
			UseColors: isTerminal(console),
		})
	}
	return slog.NewJSONHandler(console, &slog.HandlerOptions{Level: level})
}

// SetLevel configures the logging level, keeping JSON output.
func SetLevel(level slog.Level) {
	SetLevelAndFormat(level, FormatJSON)
}

// SetFormat sets the console format at info level.
func SetFormat(format OutputFormat) {
	SetLevelAndFormat(slog.LevelInfo, format)
}

// SetLevelAndFormat sets both the log level and console format.
func SetLevelAndFormat(level slog.Level, format OutputFormat) {
	Logger = slog.New(newConsoleHandler(level, format))
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// ExecutionContext identifies a pipeline run and, optionally, the stage and
// module being executed.
type ExecutionContext struct {
	PipelineID   string
	PipelineName string
	// RunID is the unique id of this execution
	RunID string
	// Mode is fit, transform or fitTransform
	Mode string
	// Stage is input, filter, preprocess, model or output
	Stage      string
	ModuleType string
	DryRun     bool
	// FilterIndex is the position of the filter; negative outside the filter stage
	FilterIndex int
}

// NewExecutionContext returns the run-level context for a pipeline execution.
func NewExecutionContext(pipelineID, pipelineName, runID, mode string) ExecutionContext {
	return ExecutionContext{
		PipelineID:   pipelineID,
		PipelineName: pipelineName,
		RunID:        runID,
		Mode:         mode,
		FilterIndex:  -1,
	}
}

// ForStage returns a copy of ctx for a stage and module.
func (ctx ExecutionContext) ForStage(stage, moduleType string) ExecutionContext {
	ctx.Stage = stage
	ctx.ModuleType = moduleType
	ctx.FilterIndex = -1
	return ctx
}

// StageError carries the error fields logged when a stage fails.
type StageError struct {
	Code     string
	Category string
	Err      error
}

// ExecutionMetrics are the per-run counters and stage timings.
type ExecutionMetrics struct {
	TotalDuration      time.Duration
	InputDuration      time.Duration
	FilterDuration     time.Duration
	PreprocessDuration time.Duration
	OutputDuration     time.Duration
	RowsRead           int
	RowsDropped        int
	RowsTransformed    int
	FeatureCount       int
}

// WithExecution returns a logger carrying the execution context.
func WithExecution(ctx ExecutionContext) *slog.Logger {
	return Logger.With(contextAttrs(ctx)...)
}

// LogExecutionStart logs the start of a pipeline execution.
func LogExecutionStart(ctx ExecutionContext) {
	Logger.Info("execution started", contextAttrs(ctx)...)
}

// LogExecutionEnd logs the end of a pipeline execution.
func LogExecutionEnd(ctx ExecutionContext, status string, rows int, duration time.Duration) {
	attrs := append(contextAttrs(ctx),
		slog.String("status", status),
		slog.Int("rows_transformed", rows),
		slog.Duration("duration", duration),
	)
	if status == "success" {
		Logger.Info("execution completed", attrs...)
		return
	}
	Logger.Error("execution failed", attrs...)
}

// LogStageStart logs the start of a stage.
func LogStageStart(ctx ExecutionContext) {
	Logger.Debug("stage started", contextAttrs(ctx)...)
}

// LogStageEnd logs the end of a stage; a non-nil serr logs it as failed.
func LogStageEnd(ctx ExecutionContext, rows int, duration time.Duration, serr *StageError) {
	attrs := append(contextAttrs(ctx),
		slog.Int("row_count", rows),
		slog.Duration("duration", duration),
	)
	if serr == nil {
		Logger.Info("stage completed", attrs...)
		return
	}
	attrs = append(attrs, slog.String("error_code", serr.Code))
	if serr.Category != "" {
		attrs = append(attrs, slog.String("error_category", serr.Category))
	}
	if serr.Err != nil {
		attrs = append(attrs, slog.String("error", serr.Err.Error()))
		if chain := errorChain(serr.Err); chain != "" {
			attrs = append(attrs, slog.String("error_chain", chain))
		}
	}
	Logger.Error("stage failed", attrs...)
}

// LogMetrics logs the counters and timings of a run.
func LogMetrics(ctx ExecutionContext, m ExecutionMetrics) {
	attrs := append(contextAttrs(ctx),
		slog.Duration("total_duration", m.TotalDuration),
		slog.Duration("input_duration", m.InputDuration),
		slog.Duration("filter_duration", m.FilterDuration),
		slog.Duration("preprocess_duration", m.PreprocessDuration),
		slog.Duration("output_duration", m.OutputDuration),
		slog.Int("rows_read", m.RowsRead),
		slog.Int("rows_dropped", m.RowsDropped),
		slog.Int("rows_transformed", m.RowsTransformed),
		slog.Int("feature_count", m.FeatureCount),
	)
	Logger.Info("execution metrics", attrs...)
}

// FormatMetricsHuman summarises metrics on one line.
func FormatMetricsHuman(m ExecutionMetrics) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transformed %d rows into %d features in %s", m.RowsTransformed, m.FeatureCount, formatDuration(m.TotalDuration))
	if m.RowsDropped > 0 {
		fmt.Fprintf(&sb, " (%d of %d rows dropped)", m.RowsDropped, m.RowsRead)
	}
	return sb.String()
}

func contextAttrs(ctx ExecutionContext) []any {
	attrs := []any{slog.String("pipeline_id", ctx.PipelineID)}
	if ctx.PipelineName != "" {
		attrs = append(attrs, slog.String("pipeline_name", ctx.PipelineName))
	}
	if ctx.RunID != "" {
		attrs = append(attrs, slog.String("run_id", ctx.RunID))
	}
	if ctx.Mode != "" {
		attrs = append(attrs, slog.String("mode", ctx.Mode))
	}
	if ctx.Stage != "" {
		attrs = append(attrs, slog.String("stage", ctx.Stage))
	}
	if ctx.ModuleType != "" {
		attrs = append(attrs, slog.String("module_type", ctx.ModuleType))
	}
	if ctx.DryRun {
		attrs = append(attrs, slog.Bool("dry_run", true))
	}
	if ctx.FilterIndex >= 0 {
		attrs = append(attrs, slog.Int("filter_index", ctx.FilterIndex))
	}
	return attrs
}

// errorChain joins the messages of wrapped errors, or returns "" for a bare error.
func errorChain(err error) string {
	chain := []string{err.Error()}
	for e := errors.Unwrap(err); e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}
	if len(chain) == 1 {
		return ""
	}
	return strings.Join(chain, " -> ")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// HumanHandlerOptions configures the human-readable log handler.
type HumanHandlerOptions struct {
	Level     slog.Level
	UseColors bool
}

// HumanHandler is a slog handler that writes one readable line per record.
type HumanHandler struct {
	opts   HumanHandlerOptions
	writer io.Writer
	attrs  []slog.Attr
	group  string
}

// NewHumanHandler creates a new human-readable log handler.
func NewHumanHandler(w io.Writer, opts *HumanHandlerOptions) *HumanHandler {
	if opts == nil {
		opts = &HumanHandlerOptions{Level: slog.LevelInfo}
	}
	return &HumanHandler{opts: *opts, writer: w}
}

// Enabled reports whether level is at or above the handler level.
func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

const maxInlineAttrs = 6

// Handle writes "15:04:05 <glyph> message key=value ...".
func (h *HumanHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Time.Format("15:04:05"))
	sb.WriteByte(' ')
	sb.WriteString(h.glyph(r.Level, r.Message))
	sb.WriteByte(' ')
	sb.WriteString(r.Message)

	fields := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		fields = append(fields, h.formatAttr(a))
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		fields = append(fields, h.formatAttr(a))
		return true
	})
	if n := len(fields); n > 0 {
		shown := fields
		if n > maxInlineAttrs {
			shown = fields[:maxInlineAttrs]
		}
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(shown, " "))
		if n > maxInlineAttrs {
			fmt.Fprintf(&sb, " (+%d more)", n-maxInlineAttrs)
		}
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(h.writer, sb.String())
	return err
}

// WithAttrs returns a new handler with attrs appended.
func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		merged = append(merged, a)
	}
	return &HumanHandler{opts: h.opts, writer: h.writer, attrs: merged, group: h.group}
}

// WithGroup returns a new handler that prefixes later keys with name.
func (h *HumanHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &HumanHandler{opts: h.opts, writer: h.writer, attrs: h.attrs, group: group}
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
)

func (h *HumanHandler) glyph(level slog.Level, message string) string {
	var g, color string
	switch {
	case level >= slog.LevelError:
		g, color = "✗", colorRed
	case level >= slog.LevelWarn:
		g, color = "⚠", colorYellow
	case level >= slog.LevelInfo && strings.HasSuffix(message, "completed"):
		g, color = "✓", colorGreen
	case level >= slog.LevelInfo:
		g, color = "ℹ", colorCyan
	default:
		g, color = "·", colorReset
	}
	if h.opts.UseColors {
		return color + g + colorReset
	}
	return g
}

func (h *HumanHandler) formatAttr(a slog.Attr) string {
	switch v := a.Value.Any().(type) {
	case time.Duration:
		return a.Key + "=" + formatDuration(v)
	case float64:
		return fmt.Sprintf("%s=%.4g", a.Key, v)
	default:
		return fmt.Sprintf("%s=%v", a.Key, v)
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// logFile is the currently open log file, if any.
var logFile *os.File

// maxLogFileSize triggers rotation when SetLogFile opens an existing file.
const maxLogFileSize = 10 * 1024 * 1024

// rotateLogFile renames path with a timestamp suffix when it is too large.
func rotateLogFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking log file size: %w", err)
	}
	if info.Size() < maxLogFileSize {
		return nil
	}
	rotated := path + "." + time.Now().Format("20060102-150405")
	if err := os.Rename(path, rotated); err != nil {
		return fmt.Errorf("rotating log file: %w", err)
	}
	return nil
}

// SetLogFile logs to both the console and path. The file always receives JSON.
func SetLogFile(path string, level slog.Level, consoleFormat OutputFormat) error {
	CloseLogFile()
	if err := rotateLogFile(path); err != nil {
		Warn("log rotation failed", slog.String("error", err.Error()))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	logFile = f
	Logger = slog.New(&teeHandler{
		handlers: []slog.Handler{
			newConsoleHandler(level, consoleFormat),
			slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}),
		},
	})
	Debug("log file opened", slog.String("path", path), slog.String("console_format", consoleFormat.String()))
	return nil
}

// CloseLogFile closes the current log file, if one is open.
func CloseLogFile() {
	if logFile == nil {
		return
	}
	if err := logFile.Sync(); err != nil {
		Warn("failed to sync log file", slog.String("error", err.Error()))
	}
	if err := logFile.Close(); err != nil {
		Warn("failed to close log file", slog.String("error", err.Error()))
	}
	logFile = nil
}

// teeHandler fans each record out to several handlers.
type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{handlers: next}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithGroup(name)
	}
	return &teeHandler{handlers: next}
}

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tabprep/runtime/internal/logger"
	"github.com/tabprep/runtime/internal/runtime"
	"github.com/tabprep/runtime/internal/transform"
	"github.com/tabprep/runtime/pkg/prep"
)

// OutputOptions configures CLI output behavior.
type OutputOptions struct {
	Verbose bool
	Quiet   bool
	DryRun  bool
}

// PrintExecutionResult displays the pipeline execution result. Failures go
// to errW whatever the options.
func PrintExecutionResult(w, errW io.Writer, result *prep.ExecutionResult, err error, opts OutputOptions) {
	if result == nil {
		fmt.Fprintln(errW, "✗ No execution result available")
		return
	}

	if err != nil {
		fmt.Fprintln(errW, "✗ Pipeline execution failed")
		if result.Error != nil {
			fmt.Fprintf(errW, "  Code: %s\n", result.Error.Code)
			if result.Error.Module != "" {
				fmt.Fprintf(errW, "  Module: %s\n", result.Error.Module)
			}
			if result.Error.Category != "" {
				fmt.Fprintf(errW, "  Category: %s\n", result.Error.Category)
			}
			fmt.Fprintf(errW, "  Error: %s\n", result.Error.Message)
		} else {
			fmt.Fprintf(errW, "  Error: %v\n", err)
		}
		return
	}

	if opts.Quiet {
		return
	}
	fmt.Fprintln(w, "✓ Pipeline executed successfully")
	fmt.Fprintf(w, "  %s\n", logger.FormatMetricsHuman(runtime.SummaryMetrics(result)))
	if result.ModelPath != "" {
		fmt.Fprintf(w, "  Model: %s\n", result.ModelPath)
	}
	if opts.DryRun {
		fmt.Fprintf(w, "  Dry-run: %d rows not written\n", result.RowsTransformed)
	} else {
		fmt.Fprintf(w, "  Rows written: %d\n", result.RowsWritten)
	}
	if opts.Verbose {
		fmt.Fprintf(w, "  Run ID: %s\n", result.RunID)
		fmt.Fprintf(w, "  Features: %s\n", strings.Join(result.Features, ", "))
	}
}

// PrintConfigSummary prints pipeline name and version if available.
func PrintConfigSummary(w io.Writer, data map[string]interface{}) {
	if data == nil {
		return
	}

	p, ok := data["pipeline"].(map[string]interface{})
	if !ok {
		return
	}

	if name, ok := p["name"].(string); ok {
		fmt.Fprintf(w, "  Pipeline: %s\n", name)
	}
	if version, ok := p["version"].(string); ok {
		fmt.Fprintf(w, "  Version: %s\n", version)
	}
}

// PrintModel describes a fitted model: derivations, scaler statistics and
// learned vocabularies, then the output features in matrix order.
func PrintModel(w io.Writer, model *transform.Model, verbose bool) {
	fmt.Fprintf(w, "Model v%d fitted %s on %d rows\n",
		model.Version, model.FittedAt.Format("2006-01-02 15:04:05 MST"), model.RowsFitted)

	for _, d := range model.Derive {
		fmt.Fprintf(w, "  derive %s -> %s: %s\n", d.Source, d.Target, binLabels(d))
	}

	scaler := model.Router.Scaler
	for j, col := range scaler.Columns {
		fmt.Fprintf(w, "  numeric %s: mean=%s scale=%s\n", col, formatFloat(scaler.Mean[j]), formatFloat(scaler.Scale[j]))
	}

	encoder := model.Router.Encoder
	for j, col := range encoder.Columns {
		fmt.Fprintf(w, "  categorical %s: %s\n", col, strings.Join(encoder.Categories[j], ", "))
	}
	if verbose {
		fmt.Fprintf(w, "  encoder: drop=%s handleUnknown=%s\n", encoder.Drop, encoder.HandleUnknown)
	}

	features := model.Features()
	fmt.Fprintf(w, "Features (%d):\n", len(features))
	for i, f := range features {
		fmt.Fprintf(w, "  %3d  %s\n", i, f)
	}
}

// binLabels renders bins as "label(lo,hi]".
func binLabels(d transform.BinSpec) string {
	parts := make([]string, len(d.Labels))
	for i, l := range d.Labels {
		open := "("
		if i == 0 && d.IncludeLowest {
			open = "["
		}
		parts[i] = fmt.Sprintf("%s%s%s,%s]", l, open, formatFloat(d.Edges[i]), formatFloat(d.Edges[i+1]))
	}
	return strings.Join(parts, " ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

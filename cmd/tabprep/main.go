// Package main provides the CLI entry point for the tabprep runtime.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tabprep/runtime/internal/cli"
	"github.com/tabprep/runtime/internal/config"
	"github.com/tabprep/runtime/internal/factory"
	"github.com/tabprep/runtime/internal/logger"
	"github.com/tabprep/runtime/internal/modules/input"
	"github.com/tabprep/runtime/internal/persistence"
	"github.com/tabprep/runtime/internal/runtime"
	"github.com/tabprep/runtime/pkg/prep"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitParseError      = 2
	ExitRuntimeError    = 3
)

var (
	// Build information (set via ldflags during build)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// app holds the flags and writers of one CLI invocation.
type app struct {
	stdout, stderr io.Writer
	exitCode       int

	// Global flags
	verbose   bool
	quiet     bool
	logFormat string
	logFile   string
	envFile   string

	// Execution flags
	dryRun   bool
	modelDir string
}

// execute runs the CLI with args and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil && a.exitCode == ExitSuccess {
		a.fail(ExitRuntimeError, err)
	}
	return a.exitCode
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tabprep",
		Short: "tabprep - Declarative tabular preprocessing runtime",
		Long: `tabprep fits and applies preprocessing pipelines for tabular datasets.

A pipeline loads a dataset, filters rows and columns, derives binned
columns, standardises numeric features and one-hot encodes categorical
ones, then writes the feature matrix. Fitted models are stored as JSON
and reused to transform new data.

Examples:
  # Validate a configuration file
  tabprep validate titanic.yaml

  # Fit on training data and store the model
  tabprep fit titanic.yaml

  # Transform new data with the stored model
  tabprep transform titanic-test.yaml

  # Describe a stored model
  tabprep inspect models/titanic.json`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			logger.CloseLogFile()
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "Suppress non-error output")
	flags.StringVar(&a.logFormat, "log-format", "json", "Console log format: json or human")
	flags.StringVar(&a.logFile, "log-file", "", "Also write JSON logs to this file")
	flags.StringVar(&a.envFile, "env-file", "", "Load environment variables from a dotenv file")

	root.AddCommand(
		a.newValidateCmd(),
		a.newModeCmd("fit <config-file>", prep.ModeFit,
			"Fit the preprocessor, store the model and write the training matrix"),
		a.newModeCmd("transform <config-file>", prep.ModeTransform,
			"Transform a dataset with a stored model"),
		a.newModeCmd("run <config-file>", prep.ModeFitTransform,
			"Fit and transform in one run without storing the model"),
		a.newInspectCmd(),
		a.newVersionCmd(),
	)
	return root
}

// setup configures logging and the environment before any command runs.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	} else if a.quiet {
		level = slog.LevelError
	}
	format, err := logger.ParseFormat(a.logFormat)
	if err != nil {
		a.fail(ExitValidationError, err)
		return err
	}
	logger.SetLevelAndFormat(level, format)
	if a.logFile != "" {
		if err := logger.SetLogFile(a.logFile, level, format); err != nil {
			a.fail(ExitRuntimeError, err)
			return err
		}
	}
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			err = fmt.Errorf("loading env file %s: %w", a.envFile, err)
			a.fail(ExitRuntimeError, err)
			return err
		}
		logger.Debug("env file loaded", slog.String("path", a.envFile))
	}
	return nil
}

// fail prints err and records the exit code.
func (a *app) fail(code int, err error) {
	fmt.Fprintf(a.stderr, "✗ %v\n", err)
	a.exitCode = code
}

func (a *app) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a pipeline configuration file",
		Long: `Validate a pipeline configuration file against the schema.

Supports both JSON and YAML formats. The format is auto-detected
based on file extension (.json, .yaml, .yml) or content.

Exit codes:
  0 - Configuration is valid
  1 - Validation errors (schema violations)
  2 - Parse errors (invalid JSON/YAML syntax)`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			a.runValidate(args[0])
		},
	}
}

func (a *app) runValidate(configPath string) {
	if !a.quiet {
		fmt.Fprintf(a.stdout, "Validating configuration: %s\n", configPath)
	}

	result, ok := a.parse(configPath)
	if !ok {
		return
	}
	if _, err := config.ConvertToPipeline(result.Data); err != nil {
		a.fail(ExitValidationError, err)
		return
	}

	if !a.quiet {
		fmt.Fprintf(a.stdout, "✓ Configuration is valid (format: %s)\n", result.Format)
		if a.verbose {
			cli.PrintConfigSummary(a.stdout, result.Data)
		}
	}
}

// parse parses and validates a configuration file, printing errors and
// setting the exit code on failure.
func (a *app) parse(configPath string) (*config.Result, bool) {
	result := config.ParseConfig(configPath)
	if len(result.ParseErrors) > 0 {
		cli.PrintParseErrors(a.stderr, result.ParseErrors, a.verbose)
		a.exitCode = ExitParseError
		return nil, false
	}
	if len(result.ValidationErrors) > 0 {
		cli.PrintValidationErrors(a.stderr, result.ValidationErrors, a.verbose, a.quiet)
		a.exitCode = ExitValidationError
		return nil, false
	}
	return result, true
}

func (a *app) newModeCmd(use, mode, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

The configuration file is first validated against the schema.
If validation fails, the pipeline will not be executed.

Exit codes:
  0 - Pipeline executed successfully
  1 - Validation errors
  2 - Parse errors
  3 - Runtime errors`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			a.runPipeline(args[0], mode)
		},
	}
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Run every stage but skip output and model storage")
	if mode != prep.ModeFitTransform {
		cmd.Flags().StringVar(&a.modelDir, "model-dir", "", "Model directory (overrides pipeline.model.dir)")
	}
	return cmd
}

func (a *app) runPipeline(configPath, mode string) {
	result, ok := a.parse(configPath)
	if !ok {
		return
	}
	pipeline, err := config.ConvertToPipeline(result.Data)
	if err != nil {
		a.fail(ExitValidationError, fmt.Errorf("converting configuration: %w", err))
		return
	}
	if a.verbose {
		fmt.Fprintf(a.stderr, "  Pipeline: %s (v%s), mode %s\n", pipeline.Name, pipeline.Version, mode)
	}

	executor, err := a.newExecutor(pipeline)
	if err != nil {
		a.fail(ExitRuntimeError, err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	execResult, err := executor.Execute(ctx, pipeline, mode)

	// Status lines go to stderr; stdout may carry the feature matrix.
	cli.PrintExecutionResult(a.stderr, a.stderr, execResult, err, cli.OutputOptions{
		Verbose: a.verbose,
		Quiet:   a.quiet,
		DryRun:  a.dryRun,
	})
	if err != nil {
		a.exitCode = ExitRuntimeError
	}
}

// newExecutor builds the pipeline's modules from the registry.
func (a *app) newExecutor(pipeline *prep.Pipeline) (*runtime.Executor, error) {
	in, err := factory.CreateInputModule(pipeline.Input)
	if err != nil {
		return nil, fmt.Errorf("creating input module: %w", err)
	}
	filters, err := factory.CreateFilterModules(pipeline.Filters)
	if err != nil {
		closeQuietly(in)
		return nil, fmt.Errorf("creating filter modules: %w", err)
	}
	out, err := factory.CreateOutputModule(pipeline.Output)
	if err != nil {
		closeQuietly(in)
		return nil, fmt.Errorf("creating output module: %w", err)
	}
	var store *persistence.ModelStore
	if a.modelDir != "" {
		store = persistence.NewModelStore(a.modelDir)
	}
	return runtime.NewExecutorWithModules(in, filters, out, store, a.dryRun), nil
}

func closeQuietly(m input.Module) {
	if err := m.Close(); err != nil {
		logger.Warn("failed to close module", slog.String("error", err.Error()))
	}
}

func (a *app) newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <model-file>",
		Short: "Describe a stored model",
		Long: `Print the derivations, scaler statistics, learned vocabularies and
output features of a stored model.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			model, err := persistence.LoadFile(args[0])
			if err != nil {
				a.fail(ExitRuntimeError, err)
				return
			}
			cli.PrintModel(a.stdout, model, a.verbose)
		},
	}
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version, commit hash, and build date information.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "Version: %s\n", version)
			fmt.Fprintf(a.stdout, "Commit: %s\n", commit)
			fmt.Fprintf(a.stdout, "Build Date: %s\n", buildDate)
		},
	}
}

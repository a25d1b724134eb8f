package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/logger"
	"github.com/tabprep/runtime/internal/modules/modconfig"
	"github.com/tabprep/runtime/internal/table"
	"github.com/tabprep/runtime/pkg/prep"
)

// Evaluation error policies.
const (
	OnErrorFail = "fail"
	OnErrorSkip = "skip"
	OnErrorKeep = "keep"
)

// ErrInvalidExpression is returned when the expression does not compile.
var ErrInvalidExpression = errors.New("invalid expression syntax")

// ConditionError reports a row whose expression could not be evaluated.
type ConditionError struct {
	Expression string
	Row        int
	Err        error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("evaluating %q on row %d: %v", e.Expression, e.Row, e.Err)
}

func (e *ConditionError) Unwrap() error { return e.Err }

// Category implements errhandling.Categorized.
func (e *ConditionError) Category() errhandling.ErrorCategory {
	return errhandling.CategoryData
}

// ConditionModule keeps the rows for which an expr-lang expression is true.
// Columns are exposed as variables; missing values are nil, so
// `age != nil && age < 80` keeps rows with a known age below 80.
type ConditionModule struct {
	expression string
	onError    string
	program    *vm.Program
}

// NewConditionFromConfig creates a condition filter.
// Config: expression (required), onError: fail (default), skip or keep.
func NewConditionFromConfig(cfg prep.ModuleConfig, index int) (*ConditionModule, error) {
	expression := strings.TrimSpace(modconfig.String(cfg.Config, "expression"))
	if expression == "" {
		return nil, &modconfig.ValidationError{Module: indexed("condition", index), Field: "expression", Message: "is required"}
	}
	onError := modconfig.String(cfg.Config, "onError")
	switch onError {
	case "":
		onError = OnErrorFail
	case OnErrorFail, OnErrorSkip, OnErrorKeep:
	default:
		return nil, &modconfig.ValidationError{Module: indexed("condition", index), Field: "onError", Message: fmt.Sprintf("unknown policy %q", onError)}
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, errhandling.NewConfigurationError(
			fmt.Sprintf("condition (filter %d)", index), fmt.Errorf("%w: %v", ErrInvalidExpression, err))
	}

	logger.Debug("condition module initialized",
		slog.String("expression", expression),
		slog.String("on_error", onError),
	)
	return &ConditionModule{expression: expression, onError: onError, program: program}, nil
}

// Process evaluates the expression on every row and keeps the true ones.
func (m *ConditionModule) Process(ctx context.Context, t *table.Table) (*table.Table, error) {
	rows := t.Rows()
	keep := make([]int, 0, len(rows))
	for i, row := range rows {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ok, err := m.evaluate(row)
		if err != nil {
			cerr := &ConditionError{Expression: m.expression, Row: i, Err: err}
			switch m.onError {
			case OnErrorSkip:
				logger.Warn("condition evaluation failed; row dropped", slog.Int("row", i), slog.String("error", err.Error()))
				continue
			case OnErrorKeep:
				logger.Warn("condition evaluation failed; row kept", slog.Int("row", i), slog.String("error", err.Error()))
				keep = append(keep, i)
				continue
			default:
				return nil, cerr
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	if len(keep) == t.Nrow() {
		return t, nil
	}
	return t.Subset(keep)
}

func (m *ConditionModule) evaluate(row map[string]interface{}) (bool, error) {
	out, err := expr.Run(m.program, row)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out)
	}
	return b, nil
}

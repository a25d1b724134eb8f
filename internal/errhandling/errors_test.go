package errhandling

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"testing"
)

type schemaErr struct{ column string }

func (e *schemaErr) Error() string            { return "missing column " + e.column }
func (e *schemaErr) Category() ErrorCategory { return CategorySchema }

func TestErrorCategory(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		expected string
	}{
		{CategoryConfiguration, "configuration"},
		{CategorySchema, "schema"},
		{CategoryData, "data"},
		{CategoryIO, "io"},
		{CategoryNetwork, "network"},
		{CategoryRateLimit, "rate_limit"},
		{CategoryServer, "server"},
		{CategoryUnknown, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if string(tt.category) != tt.expected {
				t.Errorf("ErrorCategory = %v, want %v", tt.category, tt.expected)
			}
		})
	}
}

func TestClassifiedError(t *testing.T) {
	t.Run("Error message formatting", func(t *testing.T) {
		err := &ClassifiedError{Category: CategoryServer, StatusCode: 503, Message: "server error"}
		got := err.Error()
		if !strings.Contains(got, "server") || !strings.Contains(got, "503") {
			t.Errorf("Error() = %q, want category and status", got)
		}
	})

	t.Run("Unwrap returns original error", func(t *testing.T) {
		original := errors.New("original error")
		err := NewIOError("read failed", original)
		if !errors.Is(err, original) {
			t.Errorf("errors.Is(err, original) = false, want true")
		}
	})
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		category  ErrorCategory
		retryable bool
	}{
		{429, CategoryRateLimit, true},
		{500, CategoryServer, true},
		{503, CategoryServer, true},
		{404, CategoryConfiguration, false},
		{401, CategoryConfiguration, false},
		{302, CategoryUnknown, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			got := ClassifyHTTPStatus(tt.status, "")
			if got.Category != tt.category {
				t.Errorf("Category = %v, want %v", got.Category, tt.category)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  ErrorCategory
		retryable bool
		fatal     bool
	}{
		{"categorized domain error", fmt.Errorf("router: %w", &schemaErr{column: "age"}), CategorySchema, false, true},
		{"already classified", NewConfigurationError("bad edges", nil), CategoryConfiguration, false, true},
		{"deadline", context.DeadlineExceeded, CategoryNetwork, true, false},
		{"canceled", context.Canceled, CategoryNetwork, false, false},
		{"net op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, CategoryNetwork, true, false},
		{"path error", &fs.PathError{Op: "open", Path: "x.csv", Err: fs.ErrNotExist}, CategoryIO, false, false},
		{"plain error", errors.New("boom"), CategoryUnknown, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if got.Category != tt.category {
				t.Errorf("Category = %v, want %v", got.Category, tt.category)
			}
			if IsRetryable(tt.err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", IsRetryable(tt.err), tt.retryable)
			}
			if IsFatal(tt.err) != tt.fatal {
				t.Errorf("IsFatal = %v, want %v", IsFatal(tt.err), tt.fatal)
			}
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if GetErrorCategory(nil) != CategoryUnknown {
		t.Errorf("GetErrorCategory(nil) = %v, want unknown", GetErrorCategory(nil))
	}
	if IsRetryable(nil) || IsFatal(nil) {
		t.Error("nil error must be neither retryable nor fatal")
	}
}

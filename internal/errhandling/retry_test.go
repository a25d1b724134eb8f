package errhandling

import (
	"context"
	"errors"
	"testing"
)

func TestRetryConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RetryConfig
		wantErr bool
	}{
		{"defaults", DefaultRetryConfig(), false},
		{"no retry", RetryConfig{}, false},
		{"negative attempts", RetryConfig{MaxAttempts: -1}, true},
		{"too many attempts", RetryConfig{MaxAttempts: MaxRetryAttempts + 1}, true},
		{"negative delay", RetryConfig{DelayMs: -5}, true},
		{"delay above cap", RetryConfig{DelayMs: 500, MaxDelayMs: 100}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRetryConfig(t *testing.T) {
	cfg := ParseRetryConfig(map[string]interface{}{
		"maxAttempts": float64(5),
		"delayMs":     10,
	})
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.DelayMs != 10 {
		t.Errorf("DelayMs = %d, want 10", cfg.DelayMs)
	}
	if cfg.MaxDelayMs != DefaultMaxDelayMs {
		t.Errorf("MaxDelayMs = %d, want default %d", cfg.MaxDelayMs, DefaultMaxDelayMs)
	}

	if got := ParseRetryConfig(nil); got != DefaultRetryConfig() {
		t.Errorf("ParseRetryConfig(nil) = %+v, want defaults", got)
	}
}

func TestDo_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	info, err := Do(context.Background(), RetryConfig{MaxAttempts: 3, DelayMs: 1, MaxDelayMs: 2}, func(context.Context) error {
		calls++
		if calls < 3 {
			return ClassifyHTTPStatus(503, "")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if info.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", info.Attempts)
	}
}

func TestDo_StopsOnFatalError(t *testing.T) {
	calls := 0
	fatal := ClassifyHTTPStatus(404, "not found")
	_, err := Do(context.Background(), RetryConfig{MaxAttempts: 5, DelayMs: 1}, func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("Do() error = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), RetryConfig{MaxAttempts: 2, DelayMs: 1}, func(context.Context) error {
		calls++
		return ClassifyHTTPStatus(500, "")
	})
	if err == nil {
		t.Fatal("Do() error = nil, want error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 attempt + 2 retries)", calls)
	}
}

// Package errhandling provides retry configuration and mechanism for remote inputs.
// Retries are driven by github.com/sethvargo/go-retry with an exponential,
// capped backoff; only errors classified as retryable are attempted again.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// Default retry configuration values
const (
	DefaultMaxAttempts = 3
	DefaultDelayMs     = 1000
	DefaultMaxDelayMs  = 30000
	MaxRetryAttempts   = 10
)

// RetryConfig holds retry configuration for modules that reach remote systems.
type RetryConfig struct {
	// MaxAttempts is the maximum number of retry attempts after the first call (0 = no retry).
	// Default: 3, Max: 10
	MaxAttempts int

	// DelayMs is the initial delay between retries in milliseconds.
	// Default: 1000
	DelayMs int

	// MaxDelayMs caps a single delay in milliseconds.
	// Default: 30000
	MaxDelayMs int
}

// RetryInfo reports what happened during a retried call.
type RetryInfo struct {
	Attempts   int
	TotalDelay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		DelayMs:     DefaultDelayMs,
		MaxDelayMs:  DefaultMaxDelayMs,
	}
}

// Validate validates the retry configuration.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return errors.New("maxAttempts must be >= 0")
	}
	if c.MaxAttempts > MaxRetryAttempts {
		return fmt.Errorf("maxAttempts must be <= %d", MaxRetryAttempts)
	}
	if c.DelayMs < 0 {
		return errors.New("delayMs must be >= 0")
	}
	if c.MaxDelayMs < 0 {
		return errors.New("maxDelayMs must be >= 0")
	}
	if c.MaxDelayMs > 0 && c.DelayMs > c.MaxDelayMs {
		return errors.New("delayMs must be <= maxDelayMs")
	}
	return nil
}

// ParseRetryConfig reads a retry block from a module configuration map.
// Missing keys keep their default values.
func ParseRetryConfig(m map[string]interface{}) RetryConfig {
	cfg := DefaultRetryConfig()
	if m == nil {
		return cfg
	}
	if v, ok := getInt(m, "maxAttempts"); ok {
		cfg.MaxAttempts = v
	}
	if v, ok := getInt(m, "delayMs"); ok {
		cfg.DelayMs = v
	}
	if v, ok := getInt(m, "maxDelayMs"); ok {
		cfg.MaxDelayMs = v
	}
	return cfg
}

func getInt(m map[string]interface{}, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// backoff builds the go-retry backoff for this configuration.
func (c RetryConfig) backoff() retry.Backoff {
	base := time.Duration(c.DelayMs) * time.Millisecond
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	if c.MaxDelayMs > 0 {
		b = retry.WithCappedDuration(time.Duration(c.MaxDelayMs)*time.Millisecond, b)
	}
	return retry.WithMaxRetries(uint64(c.MaxAttempts), b)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the retry
// budget is exhausted. The last error is returned unwrapped from go-retry.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) (RetryInfo, error) {
	var info RetryInfo
	last := time.Now()
	err := retry.Do(ctx, cfg.backoff(), func(ctx context.Context) error {
		if info.Attempts > 0 {
			info.TotalDelay += time.Since(last)
		}
		info.Attempts++
		err := fn(ctx)
		last = time.Now()
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	return info, err
}

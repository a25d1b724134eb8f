// Package errhandling provides error types, classification, and retry utilities.
// This file defines error categories and classification helpers used by the
// runtime to decide whether a failure is a configuration mistake, a schema
// mismatch in the dataset, or a transient I/O problem worth retrying.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
)

// ErrorCategory represents the type/category of an error.
type ErrorCategory string

// Error categories for classification.
const (
	// CategoryConfiguration covers invalid pipeline or transformer configuration
	// (bad bin edges, unknown encoder policy, missing module options).
	// Configuration errors are fatal.
	CategoryConfiguration ErrorCategory = "configuration"

	// CategorySchema covers datasets that do not match the declared columns
	// (missing column, numeric column holding text). Schema errors are fatal.
	CategorySchema ErrorCategory = "schema"

	// CategoryData covers value-level problems that policy turned into errors,
	// such as an unseen category with handleUnknown=error.
	CategoryData ErrorCategory = "data"

	// CategoryIO covers local file system failures.
	CategoryIO ErrorCategory = "io"

	// CategoryNetwork represents network-related errors (timeout, connection refused, DNS).
	// Network errors are typically transient and retryable.
	CategoryNetwork ErrorCategory = "network"

	// CategoryRateLimit represents rate limiting errors (429).
	CategoryRateLimit ErrorCategory = "rate_limit"

	// CategoryServer represents server errors (5xx).
	CategoryServer ErrorCategory = "server"

	// CategoryUnknown represents unclassified errors.
	CategoryUnknown ErrorCategory = "unknown"
)

// Categorized is implemented by domain errors that know their own category.
// ClassifyError consults it before falling back to heuristics.
type Categorized interface {
	Category() ErrorCategory
}

// ClassifiedError wraps an error with classification metadata.
type ClassifiedError struct {
	// Category is the error classification category.
	Category ErrorCategory

	// Retryable indicates whether the error is transient and can be retried.
	Retryable bool

	// StatusCode is the HTTP status code (0 if not an HTTP error).
	StatusCode int

	// Message is a human-readable error message.
	Message string

	// OriginalErr is the underlying error that was classified.
	OriginalErr error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Category, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Category, e.Message)
}

// Unwrap returns the original error for use with errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.OriginalErr
}

// ClassifyHTTPStatus classifies an HTTP error based on status code.
//
// Classification rules:
//   - 429: rate limit (retryable)
//   - 5xx: server (retryable)
//   - other 4xx: configuration (not retryable, the request itself is wrong)
//   - anything else: unknown (not retryable)
func ClassifyHTTPStatus(statusCode int, message string) *ClassifiedError {
	switch {
	case statusCode == 429:
		return &ClassifiedError{Category: CategoryRateLimit, Retryable: true, StatusCode: statusCode, Message: "rate limited"}
	case statusCode >= 500:
		return &ClassifiedError{Category: CategoryServer, Retryable: true, StatusCode: statusCode, Message: "server error"}
	case statusCode >= 400:
		if message == "" {
			message = "client error"
		}
		return &ClassifiedError{Category: CategoryConfiguration, Retryable: false, StatusCode: statusCode, Message: message}
	default:
		return &ClassifiedError{Category: CategoryUnknown, Retryable: false, StatusCode: statusCode, Message: message}
	}
}

// ClassifyError classifies any error into a ClassifiedError.
// Already classified errors are returned as-is.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{Category: CategoryUnknown, Message: "nil error"}
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	var categorized Categorized
	if errors.As(err, &categorized) {
		return &ClassifiedError{
			Category:    categorized.Category(),
			Retryable:   false,
			Message:     err.Error(),
			OriginalErr: err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{Category: CategoryNetwork, Retryable: true, Message: "request timeout", OriginalErr: err}
	}
	if errors.Is(err, context.Canceled) {
		return &ClassifiedError{Category: CategoryNetwork, Retryable: false, Message: "context canceled", OriginalErr: err}
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	var urlErr *url.Error
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &urlErr) {
		return &ClassifiedError{Category: CategoryNetwork, Retryable: true, Message: err.Error(), OriginalErr: err}
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return &ClassifiedError{Category: CategoryIO, Retryable: false, Message: err.Error(), OriginalErr: err}
	}

	return &ClassifiedError{Category: CategoryUnknown, Retryable: false, Message: err.Error(), OriginalErr: err}
}

// IsRetryable returns true if the error is classified as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return ClassifyError(err).Retryable
}

// IsFatal returns true if the error must stop the pipeline regardless of
// the module's error policy. Fatal categories: configuration, schema.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch ClassifyError(err).Category {
	case CategoryConfiguration, CategorySchema:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the error category for a given error.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	return ClassifyError(err).Category
}

// NewConfigurationError creates a ClassifiedError for configuration errors.
func NewConfigurationError(message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryConfiguration, Message: message, OriginalErr: originalErr}
}

// NewNetworkError creates a retryable ClassifiedError for network errors.
func NewNetworkError(message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryNetwork, Retryable: true, Message: message, OriginalErr: originalErr}
}

// NewIOError creates a ClassifiedError for local I/O errors.
func NewIOError(message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryIO, Message: message, OriginalErr: originalErr}
}

package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/tabprep/runtime/internal/errhandling"
)

// ClassifyDatabaseError maps a driver error to an errhandling category.
// PostgreSQL errors are classified by SQLSTATE class; other errors fall back
// to message inspection.
func ClassifyDatabaseError(err error, operation string) *errhandling.ClassifiedError {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgres(pqErr, operation, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, timeoutIndicators):
		return &errhandling.ClassifiedError{
			Category:    errhandling.CategoryNetwork,
			Retryable:   true,
			Message:     fmt.Sprintf("database %s timed out", operation),
			OriginalErr: err,
		}
	case containsAny(msg, connectionIndicators):
		return &errhandling.ClassifiedError{
			Category:    errhandling.CategoryNetwork,
			Retryable:   true,
			Message:     fmt.Sprintf("database connection failed during %s", operation),
			OriginalErr: err,
		}
	default:
		return &errhandling.ClassifiedError{
			Category:    errhandling.CategoryUnknown,
			Message:     fmt.Sprintf("database %s failed: %v", operation, err),
			OriginalErr: err,
		}
	}
}

func classifyPostgres(pqErr *pq.Error, operation string, err error) *errhandling.ClassifiedError {
	ce := &errhandling.ClassifiedError{
		Message:     fmt.Sprintf("database %s failed (%s %s): %s", operation, pqErr.Code, pqErr.Code.Name(), pqErr.Message),
		OriginalErr: err,
	}
	switch pqErr.Code.Class() {
	case "08", "53", "57":
		// connection exception, insufficient resources, operator intervention
		ce.Category, ce.Retryable = errhandling.CategoryServer, true
	case "40":
		// transaction rollback (serialization failure, deadlock)
		ce.Category, ce.Retryable = errhandling.CategoryServer, true
	case "28", "3D", "42":
		// auth, unknown database, syntax or undefined table/column
		ce.Category = errhandling.CategoryConfiguration
	case "22":
		ce.Category = errhandling.CategoryData
	default:
		ce.Category = errhandling.CategoryUnknown
	}
	return ce
}

var timeoutIndicators = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

var connectionIndicators = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"bad connection",
	"unexpected eof",
	"dial tcp",
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

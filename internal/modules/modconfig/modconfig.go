// Package modconfig provides typed accessors for module configuration maps.
// Module options arrive as map[string]interface{} from JSON or YAML, so
// numbers may be float64 or int and lists are []interface{}.
package modconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/tabprep/runtime/internal/errhandling"
)

// ValidationError reports an invalid or missing module option.
type ValidationError struct {
	Module  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Module == "" {
		return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s module: validation error for %s: %s", e.Module, e.Field, e.Message)
}

// Category implements errhandling.Categorized.
func (e *ValidationError) Category() errhandling.ErrorCategory {
	return errhandling.CategoryConfiguration
}

// Required returns a ValidationError for a missing field.
func Required(module, field string) error {
	return &ValidationError{Module: module, Field: field, Message: "is required"}
}

// String returns config[key] when it is a string.
func String(config map[string]interface{}, key string) string {
	s, _ := config[key].(string)
	return s
}

// Bool returns config[key] when it is a bool, or def.
func Bool(config map[string]interface{}, key string, def bool) bool {
	if b, ok := config[key].(bool); ok {
		return b
	}
	return def
}

// Int returns config[key] as an int when it is numeric.
func Int(config map[string]interface{}, key string) (int, bool) {
	switch v := config[key].(type) {
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

// StringSlice returns config[key] as a []string, skipping non-string items.
func StringSlice(config map[string]interface{}, key string) []string {
	switch v := config[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// StringMap returns config[key] as a map[string]string, skipping non-string values.
func StringMap(config map[string]interface{}, key string) map[string]string {
	result := make(map[string]string)
	switch m := config[key].(type) {
	case map[string]string:
		for k, v := range m {
			result[k] = v
		}
	case map[string]interface{}:
		for k, v := range m {
			if s, ok := v.(string); ok {
				result[k] = s
			}
		}
	}
	return result
}

// Map returns config[key] when it is a nested object.
func Map(config map[string]interface{}, key string) map[string]interface{} {
	m, _ := config[key].(map[string]interface{})
	return m
}

// Timeout reads "timeoutMs", falling back to def when absent or not positive.
func Timeout(config map[string]interface{}, def time.Duration) time.Duration {
	if ms, ok := Int(config, "timeoutMs"); ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

// StringOrRef returns config[key], or the environment variable named by
// config[refKey] when the literal is empty.
func StringOrRef(module string, config map[string]interface{}, key, refKey string) (string, error) {
	if s := String(config, key); s != "" {
		return s, nil
	}
	ref := String(config, refKey)
	if ref == "" {
		return "", &ValidationError{Module: module, Field: key, Message: fmt.Sprintf("%s or %s is required", key, refKey)}
	}
	v, ok := os.LookupEnv(ref)
	if !ok || v == "" {
		return "", &ValidationError{Module: module, Field: refKey, Message: fmt.Sprintf("environment variable %s is not set", ref)}
	}
	return v, nil
}

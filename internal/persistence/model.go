// Package persistence stores fitted preprocessing models on disk.
// Each model is one JSON file named after the model in the store's base path.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/logger"
	"github.com/tabprep/runtime/internal/pathutil"
	"github.com/tabprep/runtime/internal/transform"
)

// DefaultModelPath is the default directory for model files.
const DefaultModelPath = "./tabprep-data/models"

// Common errors
var (
	// ErrModelNotFound is returned when no model file exists for a name.
	ErrModelNotFound = errors.New("model not found")

	// ErrNilModel is returned when saving a nil model.
	ErrNilModel = errors.New("model is nil")
)

// InvalidNameError reports a model name that cannot be used as a file name.
type InvalidNameError struct {
	Name string
	Err  error
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid model name %q: %v", e.Name, e.Err)
}

func (e *InvalidNameError) Unwrap() error { return e.Err }

// Category implements errhandling.Categorized.
func (e *InvalidNameError) Category() errhandling.ErrorCategory {
	return errhandling.CategoryConfiguration
}

// ModelStore provides thread-safe persistence of fitted models.
type ModelStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewModelStore creates a ModelStore rooted at basePath.
// If basePath is empty, DefaultModelPath is used.
func NewModelStore(basePath string) *ModelStore {
	if basePath == "" {
		basePath = DefaultModelPath
	}
	return &ModelStore{basePath: basePath}
}

// Path returns the file path of a model.
func (s *ModelStore) Path(name string) (string, error) {
	if err := pathutil.ValidateName(name); err != nil {
		return "", &InvalidNameError{Name: name, Err: err}
	}
	return filepath.Join(s.basePath, name+".json"), nil
}

// Save persists a model. Uses atomic write (temp file + rename) so a reader
// never sees a partial file. Creates the base directory if needed.
func (s *ModelStore) Save(name string, model *transform.Model) (string, error) {
	if model == nil {
		return "", ErrNilModel
	}
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.basePath, 0o700); err != nil {
		return "", errhandling.NewIOError("creating model directory", err)
	}

	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling model: %w", err)
	}

	tmp, err := os.CreateTemp(s.basePath, name+".*.tmp")
	if err != nil {
		return "", errhandling.NewIOError("creating temp model file", err)
	}
	tempPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tempPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", errhandling.NewIOError("writing temp model file", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", errhandling.NewIOError("setting model file mode", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", errhandling.NewIOError("closing temp model file", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		cleanup()
		return "", errhandling.NewIOError("renaming model file", err)
	}

	logger.Debug("model saved",
		"model", name,
		"path", path,
		"features", len(model.Features()),
	)
	return path, nil
}

// Load reads and validates a model.
func (s *ModelStore) Load(name string) (*transform.Model, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	model, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("model loaded", "model", name, "path", path, "fitted_at", model.FittedAt)
	return model, nil
}

// LoadFile reads and validates a model file outside any store.
func LoadFile(path string) (*transform.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, errhandling.NewIOError("reading model file", err)
	}
	var model transform.Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, errhandling.NewConfigurationError(fmt.Sprintf("decoding model file %s", path), err)
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, err)
	}
	return &model, nil
}

// Delete removes a model. Returns nil if the model doesn't exist.
func (s *ModelStore) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errhandling.NewIOError("deleting model file", err)
	}
	logger.Debug("model deleted", "model", name, "path", path)
	return nil
}

// Exists reports whether a model file exists.
func (s *ModelStore) Exists(name string) (bool, error) {
	path, err := s.Path(name)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errhandling.NewIOError("checking model file", err)
	}
	return true, nil
}

package database

import (
	"errors"
	"testing"

	"github.com/lib/pq"

	"github.com/tabprep/runtime/internal/errhandling"
)

func TestConfig_ResolveConnectionString(t *testing.T) {
	t.Setenv("TABPREP_TEST_DSN", "postgres://u:p@localhost/titanic")

	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"literal wins", Config{ConnectionString: "postgres://a", ConnectionStringRef: "TABPREP_TEST_DSN"}, "postgres://a", false},
		{"env reference", Config{ConnectionStringRef: "TABPREP_TEST_DSN"}, "postgres://u:p@localhost/titanic", false},
		{"unset reference", Config{ConnectionStringRef: "TABPREP_TEST_UNSET"}, "", true},
		{"nothing configured", Config{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ResolveConnectionString()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveConnectionString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveConnectionString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_DriverName(t *testing.T) {
	if d, err := (Config{}).DriverName(); err != nil || d != DriverPostgres {
		t.Errorf("DriverName() = %q, %v; want postgres", d, err)
	}
	if _, err := (Config{Driver: "mysql"}).DriverName(); !errors.Is(err, ErrUnsupportedDriver) {
		t.Errorf("DriverName(mysql) error = %v, want ErrUnsupportedDriver", err)
	}
}

func TestClassifyDatabaseError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  errhandling.ErrorCategory
		retryable bool
	}{
		{"undefined table", &pq.Error{Code: "42P01", Message: `relation "titanic" does not exist`}, errhandling.CategoryConfiguration, false},
		{"auth failure", &pq.Error{Code: "28P01", Message: "password authentication failed"}, errhandling.CategoryConfiguration, false},
		{"serialization failure", &pq.Error{Code: "40001", Message: "could not serialize access"}, errhandling.CategoryServer, true},
		{"admin shutdown", &pq.Error{Code: "57P01", Message: "terminating connection"}, errhandling.CategoryServer, true},
		{"bad value", &pq.Error{Code: "22P02", Message: "invalid input syntax"}, errhandling.CategoryData, false},
		{"refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), errhandling.CategoryNetwork, true},
		{"timeout", errors.New("pq: canceling statement due to statement timeout"), errhandling.CategoryNetwork, true},
		{"other", errors.New("sql: no rows in result set"), errhandling.CategoryUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyDatabaseError(tt.err, "select")
			if got.Category != tt.category {
				t.Errorf("Category = %v, want %v", got.Category, tt.category)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error does not wrap the original")
			}
		})
	}

	if ClassifyDatabaseError(nil, "select") != nil {
		t.Error("ClassifyDatabaseError(nil) should be nil")
	}
}

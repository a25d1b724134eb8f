// Package table provides the in-memory tabular dataset used by the runtime.
//
// A Table wraps a gota DataFrame and is treated as immutable: every operation
// that changes columns or rows returns a new Table and leaves the receiver
// untouched. Callers may therefore share a Table freely between stages.
package table

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/tabprep/runtime/internal/errhandling"
)

// MissingLabel is the textual marker for a missing value in a categorical column.
// It matches how gota renders NaN elements, so missing values read from CSV and
// missing values produced by derivers share one representation.
const MissingLabel = "NaN"

// DefaultNaNValues are the raw strings treated as missing when reading CSV.
var DefaultNaNValues = []string{"", "NA", "NaN", "nan", "null", "<nil>"}

// Column is a named, typed column of a Table.
type Column = series.Series

// Type is the element type of a Column.
type Type = series.Type

// Column types.
const (
	Float  Type = series.Float
	Int    Type = series.Int
	String Type = series.String
	Bool   Type = series.Bool
)

// ErrEmptyColumnName is returned when a column is built without a name.
var ErrEmptyColumnName = errors.New("column name is required")

// MissingColumnError reports declared columns that are absent from a table.
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	if len(e.Columns) == 1 {
		return fmt.Sprintf("missing column %q", e.Columns[0])
	}
	return fmt.Sprintf("missing columns %s", quoteAll(e.Columns))
}

// Category implements errhandling.Categorized.
func (e *MissingColumnError) Category() errhandling.ErrorCategory {
	return errhandling.CategorySchema
}

// ColumnTypeError reports a column whose type cannot serve the requested use.
type ColumnTypeError struct {
	Column string
	Type   Type
	Want   string
}

func (e *ColumnTypeError) Error() string {
	return fmt.Sprintf("column %q has type %s, want %s", e.Column, e.Type, e.Want)
}

// Category implements errhandling.Categorized.
func (e *ColumnTypeError) Category() errhandling.ErrorCategory {
	return errhandling.CategorySchema
}

// Table is an immutable view over a gota DataFrame.
type Table struct {
	df dataframe.DataFrame
}

// ReadOptions configures CSV loading.
type ReadOptions struct {
	// Delimiter separates fields (default ',').
	Delimiter rune
	// Types forces column types by name; other columns are detected.
	Types map[string]Type
	// NaNValues lists raw strings read as missing (default DefaultNaNValues).
	NaNValues []string
}

// ReadCSV loads a table from CSV with a header row.
func ReadCSV(r io.Reader, opts ReadOptions) (*Table, error) {
	nanValues := opts.NaNValues
	if len(nanValues) == 0 {
		nanValues = DefaultNaNValues
	}
	loadOpts := []dataframe.LoadOption{
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(nanValues),
	}
	if opts.Delimiter != 0 {
		loadOpts = append(loadOpts, dataframe.WithDelimiter(opts.Delimiter))
	}
	if len(opts.Types) > 0 {
		loadOpts = append(loadOpts, dataframe.WithTypes(opts.Types))
	}
	df := dataframe.ReadCSV(r, loadOpts...)
	if df.Err != nil {
		return nil, fmt.Errorf("reading csv: %w", df.Err)
	}
	return &Table{df: df}, nil
}

// FromMaps builds a table from row maps, e.g. SQL query results.
// Nil values become missing elements.
func FromMaps(rows []map[string]interface{}, types map[string]Type) (*Table, error) {
	if len(rows) == 0 {
		return &Table{}, nil
	}
	opts := []dataframe.LoadOption{
		dataframe.DetectTypes(true),
		dataframe.NaNValues(DefaultNaNValues),
	}
	if len(types) > 0 {
		opts = append(opts, dataframe.WithTypes(types))
	}
	df := dataframe.LoadMaps(rows, opts...)
	if df.Err != nil {
		return nil, fmt.Errorf("loading rows: %w", df.Err)
	}
	return &Table{df: df}, nil
}

// New builds a table from columns of equal length.
func New(cols ...Column) (*Table, error) {
	for _, c := range cols {
		if c.Name == "" {
			return nil, ErrEmptyColumnName
		}
		if c.Err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, c.Err)
		}
	}
	df := dataframe.New(cols...)
	if df.Err != nil {
		return nil, fmt.Errorf("building table: %w", df.Err)
	}
	return &Table{df: df}, nil
}

// MustNew is like New but panics on error. Intended for tests and fixtures.
func MustNew(cols ...Column) *Table {
	t, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// FloatColumn builds a numeric column; NaN marks a missing value.
func FloatColumn(name string, values []float64) Column {
	return series.New(values, series.Float, name)
}

// StringColumn builds a categorical column; MissingLabel marks a missing value.
func StringColumn(name string, values []string) Column {
	return series.New(values, series.String, name)
}

// IntColumn builds an integer column.
func IntColumn(name string, values []int) Column {
	return series.New(values, series.Int, name)
}

// Nrow returns the number of rows.
func (t *Table) Nrow() int {
	return t.df.Nrow()
}

// Names returns column names in order.
func (t *Table) Names() []string {
	return t.df.Names()
}

// Has reports whether the table has a column with the given name.
func (t *Table) Has(name string) bool {
	for _, n := range t.df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Require returns a MissingColumnError listing every name not present in the table.
func (t *Table) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if !t.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnError{Columns: missing}
	}
	return nil
}

// Type returns the element type of a column.
func (t *Table) Type(name string) (Type, error) {
	if err := t.Require(name); err != nil {
		return "", err
	}
	return t.df.Col(name).Type(), nil
}

// Floats returns a numeric column as float64 values with NaN for missing entries.
func (t *Table) Floats(name string) ([]float64, error) {
	if err := t.Require(name); err != nil {
		return nil, err
	}
	col := t.df.Col(name)
	switch col.Type() {
	case series.Float, series.Int, series.Bool:
	default:
		return nil, &ColumnTypeError{Column: name, Type: col.Type(), Want: "a numeric type"}
	}
	values := col.Float()
	for i, isNaN := range col.IsNaN() {
		if isNaN {
			values[i] = math.NaN()
		}
	}
	return values, nil
}

// Labels returns a column as category labels. Missing entries are MissingLabel.
// Any column type can be read as labels; floats use their shortest form so
// 3.0 reads as "3".
func (t *Table) Labels(name string) ([]string, error) {
	if err := t.Require(name); err != nil {
		return nil, err
	}
	col := t.df.Col(name)
	labels := col.Records()
	if col.Type() == series.Float {
		for i, v := range col.Float() {
			labels[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	for i, isNaN := range col.IsNaN() {
		if isNaN {
			labels[i] = MissingLabel
		}
	}
	return labels, nil
}

// WithColumn returns a new table with the column added, or replaced when a
// column of the same name exists.
func (t *Table) WithColumn(col Column) (*Table, error) {
	if col.Name == "" {
		return nil, ErrEmptyColumnName
	}
	if col.Len() != t.Nrow() {
		return nil, fmt.Errorf("column %q has %d rows, table has %d", col.Name, col.Len(), t.Nrow())
	}
	df := t.df.Mutate(col)
	if df.Err != nil {
		return nil, fmt.Errorf("adding column %q: %w", col.Name, df.Err)
	}
	return &Table{df: df}, nil
}

// Select returns a new table with only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	if err := t.Require(names...); err != nil {
		return nil, err
	}
	df := t.df.Select(names)
	if df.Err != nil {
		return nil, fmt.Errorf("selecting columns: %w", df.Err)
	}
	return &Table{df: df}, nil
}

// Subset returns a new table with the given rows, in the given order.
func (t *Table) Subset(rows []int) (*Table, error) {
	if len(rows) == 0 {
		return t.empty(), nil
	}
	df := t.df.Subset(rows)
	if df.Err != nil {
		return nil, fmt.Errorf("selecting rows: %w", df.Err)
	}
	return &Table{df: df}, nil
}

// empty returns a zero-row table with the same column names and types.
func (t *Table) empty() *Table {
	if t.df.Ncol() == 0 {
		return &Table{}
	}
	cols := make([]series.Series, 0, t.df.Ncol())
	for _, name := range t.df.Names() {
		src := t.df.Col(name)
		cols = append(cols, series.New([]string{}, src.Type(), name))
	}
	return &Table{df: dataframe.New(cols...)}
}

// DropMissing returns a new table without the rows that have a missing value
// in any of the named columns.
func (t *Table) DropMissing(names ...string) (*Table, error) {
	if err := t.Require(names...); err != nil {
		return nil, err
	}
	drop := make([]bool, t.Nrow())
	for _, name := range names {
		for i, isNaN := range t.df.Col(name).IsNaN() {
			if isNaN {
				drop[i] = true
			}
		}
	}
	keep := make([]int, 0, len(drop))
	for i, d := range drop {
		if !d {
			keep = append(keep, i)
		}
	}
	if len(keep) == t.Nrow() {
		return t, nil
	}
	return t.Subset(keep)
}

// Rows returns the table as row maps. Missing values are nil.
func (t *Table) Rows() []map[string]interface{} {
	n := t.Nrow()
	names := t.df.Names()
	rows := make([]map[string]interface{}, n)
	for i := range rows {
		rows[i] = make(map[string]interface{}, len(names))
	}
	for _, name := range names {
		col := t.df.Col(name)
		nan := col.IsNaN()
		for i := 0; i < n; i++ {
			v := col.Elem(i).Val()
			if f, ok := v.(float64); nan[i] || (ok && math.IsNaN(f)) {
				rows[i][name] = nil
				continue
			}
			rows[i][name] = v
		}
	}
	return rows
}

// WriteCSV writes the table as CSV, optionally preceded by a header row.
// Missing numeric values are written as NaN.
func (t *Table) WriteCSV(w io.Writer, header bool) error {
	return t.df.WriteCSV(w, dataframe.WriteHeader(header))
}

// String renders a short description for logs.
func (t *Table) String() string {
	return fmt.Sprintf("table[%d rows x %d cols: %s]", t.Nrow(), t.df.Ncol(), strings.Join(t.Names(), ","))
}

func quoteAll(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	quoted := make([]string, len(sorted))
	for i, n := range sorted {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}

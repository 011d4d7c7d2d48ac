// Package row holds the unit of write: a mapping from column name to value,
// and its conversion to and from store attribute maps under a table descriptor.
package row

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/exp/constraints"
)

// Row maps column names to values. A nil value marks a column to be cleared.
type Row map[string]any

func New() Row {
	return make(Row)
}

// FromMap copies m into a new Row.
func FromMap(m map[string]any) Row {
	r := make(Row, len(m))
	for k, v := range m {
		r[k] = v
	}
	return r
}

func (r Row) Set(column string, value any) Row {
	r[column] = value
	return r
}

func (r Row) Get(column string) (any, bool) {
	v, ok := r[column]
	return v, ok
}

func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

// Columns returns the column names present in the row, sorted.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// SetInt stores any signed integer as int64.
func SetInt[T constraints.Signed](r Row, column string, v T) Row {
	r[column] = int64(v)
	return r
}

// Int64 reads an integer column regardless of the Go integer width it was stored with.
func (r Row) Int64(column string) (int64, error) {
	v, ok := r[column]
	if !ok {
		return 0, fmt.Errorf("column %q not set", column)
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, fmt.Errorf("column %q holds %T, not an integer", column, v)
	}
	return n, nil
}

func (r Row) String(column string) (string, error) {
	v, ok := r[column]
	if !ok {
		return "", fmt.Errorf("column %q not set", column)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("column %q holds %T, not a string", column, v)
	}
	return s, nil
}

// ErrSchemaMismatch matches every *SchemaMismatchError via errors.Is.
var ErrSchemaMismatch = errors.New("row: schema mismatch")

// SchemaMismatchError reports a row that does not fit the table's columns.
type SchemaMismatchError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("row does not match table %q: column %q: %s", e.Table, e.Column, e.Reason)
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

func signedToInt64[T constraints.Signed](v T) int64 {
	return int64(v)
}

func unsignedToInt64[T constraints.Unsigned](v T) (int64, bool) {
	if uint64(v) > 1<<63-1 {
		return 0, false
	}
	return int64(v), true
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return signedToInt64(n), true
	case int8:
		return signedToInt64(n), true
	case int16:
		return signedToInt64(n), true
	case int32:
		return signedToInt64(n), true
	case int64:
		return n, true
	case uint:
		return unsignedToInt64(n)
	case uint8:
		return unsignedToInt64(n)
	case uint16:
		return unsignedToInt64(n)
	case uint32:
		return unsignedToInt64(n)
	case uint64:
		return unsignedToInt64(n)
	}
	return 0, false
}

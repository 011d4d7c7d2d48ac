package table

import (
	"fmt"
	"strings"
)

// ColumnType is the declared type of a column value.
type ColumnType string

const (
	TypeInt8           ColumnType = "INT8"
	TypeInt16          ColumnType = "INT16"
	TypeInt32          ColumnType = "INT32"
	TypeInt64          ColumnType = "INT64"
	TypeFloat          ColumnType = "FLOAT"
	TypeDouble         ColumnType = "DOUBLE"
	TypeString         ColumnType = "STRING"
	TypeBinary         ColumnType = "BINARY"
	TypeBool           ColumnType = "BOOL"
	TypeUnixTimeMicros ColumnType = "UNIXTIME_MICROS"
)

var columnTypes = []ColumnType{
	TypeInt8, TypeInt16, TypeInt32, TypeInt64,
	TypeFloat, TypeDouble,
	TypeString, TypeBinary, TypeBool,
	TypeUnixTimeMicros,
}

// ParseColumnType accepts the canonical upper-case names, case-insensitively.
func ParseColumnType(s string) (ColumnType, error) {
	t := ColumnType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown column type %q", s)
	}
	return t, nil
}

func (t ColumnType) Valid() bool {
	for _, ct := range columnTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// IsInteger reports whether values of the type are whole numbers.
// UNIXTIME_MICROS counts as an integer; it is stored as microseconds since the epoch.
func (t ColumnType) IsInteger() bool {
	switch t {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64, TypeUnixTimeMicros:
		return true
	}
	return false
}

// KeyKind returns the store key kind for the type. Bool columns cannot be keys.
func (t ColumnType) KeyKind() (KeyKind, bool) {
	switch t {
	case TypeString:
		return KeyKindS, true
	case TypeBinary:
		return KeyKindB, true
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64, TypeFloat, TypeDouble, TypeUnixTimeMicros:
		return KeyKindN, true
	}
	return "", false
}

// ColumnDefinition describes a single column. A range key must also be a key.
type ColumnDefinition struct {
	Name     string
	Type     ColumnType
	Key      bool
	RangeKey bool
	Nullable bool
}

type ColumnBuilder struct {
	col ColumnDefinition
}

func NewColumn(name string, typ ColumnType) *ColumnBuilder {
	return &ColumnBuilder{col: ColumnDefinition{Name: name, Type: typ}}
}

func (b *ColumnBuilder) Key(key bool) *ColumnBuilder {
	b.col.Key = key
	return b
}

func (b *ColumnBuilder) RangeKey(rangeKey bool) *ColumnBuilder {
	b.col.RangeKey = rangeKey
	return b
}

func (b *ColumnBuilder) Nullable(nullable bool) *ColumnBuilder {
	b.col.Nullable = nullable
	return b
}

// Build returns the column. Column rules are checked when the owning descriptor is built.
func (b *ColumnBuilder) Build() ColumnDefinition {
	return b.col
}

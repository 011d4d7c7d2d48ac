package row

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/acksell/tabletconn/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Validate checks that every key column is present and non-nil, that every column
// exists in the descriptor, and that every value converts to its column's type.
func Validate(desc table.TableDescriptor, r Row) error {
	_, _, err := convert(desc, r)
	return err
}

// ToItem converts the row to a store item. Nil values are left out.
func ToItem(desc table.TableDescriptor, r Row) (map[string]types.AttributeValue, error) {
	item, _, err := convert(desc, r)
	return item, err
}

// Split converts the row and separates the key attributes from the rest.
// cleared lists the nullable columns explicitly set to nil.
func Split(desc table.TableDescriptor, r Row) (key, attrs map[string]types.AttributeValue, cleared []string, err error) {
	item, cleared, err := convert(desc, r)
	if err != nil {
		return nil, nil, nil, err
	}
	pk, err := desc.Definition().ExtractPrimaryKey(item)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("table %s: %w", desc.Name(), err)
	}
	key, err = pk.DDB()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("table %s: %w", desc.Name(), err)
	}
	keyNames := pk.Definition.KeyNames()
	attrs = make(map[string]types.AttributeValue, len(item))
	for name, av := range item {
		if !slices.Contains(keyNames, name) {
			attrs[name] = av
		}
	}
	return key, attrs, cleared, nil
}

func convert(desc table.TableDescriptor, r Row) (map[string]types.AttributeValue, []string, error) {
	mismatch := func(col, reason string) error {
		return &SchemaMismatchError{Table: desc.Name(), Column: col, Reason: reason}
	}
	for _, c := range desc.KeyColumns() {
		v, ok := r[c.Name]
		if !ok {
			return nil, nil, mismatch(c.Name, "key column missing")
		}
		if v == nil {
			return nil, nil, mismatch(c.Name, "key column is nil")
		}
	}

	item := make(map[string]types.AttributeValue, len(r))
	var cleared []string
	for _, name := range r.Columns() {
		v := r[name]
		col, ok := desc.Column(name)
		if !ok {
			return nil, nil, mismatch(name, "column not declared")
		}
		if v == nil {
			if !col.Nullable {
				return nil, nil, mismatch(name, "column is not nullable")
			}
			cleared = append(cleared, name)
			continue
		}
		av, err := encodeValue(col.Type, v)
		if err != nil {
			return nil, nil, mismatch(name, err.Error())
		}
		item[name] = av
	}
	return item, cleared, nil
}

// Largest integers that FLOAT and DOUBLE hold without rounding.
const (
	maxExactFloat  = 1 << 24
	maxExactDouble = 1 << 53
)

func encodeValue(typ table.ColumnType, v any) (types.AttributeValue, error) {
	switch typ {
	case table.TypeInt8, table.TypeInt16, table.TypeInt32, table.TypeInt64:
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("expected an integer for %s, got %T", typ, v)
		}
		if err := checkRange(typ, n); err != nil {
			return nil, err
		}
		return attributevalue.Marshal(n)
	case table.TypeUnixTimeMicros:
		if ts, ok := v.(time.Time); ok {
			return attributevalue.Marshal(ts.UnixMicro())
		}
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("expected time.Time or microseconds for %s, got %T", typ, v)
		}
		return attributevalue.Marshal(n)
	case table.TypeFloat, table.TypeDouble:
		var f float64
		switch x := v.(type) {
		case float32:
			f = float64(x)
		case float64:
			f = x
		default:
			n, ok := toInt64(v)
			if !ok {
				return nil, fmt.Errorf("expected a number for %s, got %T", typ, v)
			}
			limit := int64(maxExactDouble)
			if typ == table.TypeFloat {
				limit = maxExactFloat
			}
			if n > limit || n < -limit {
				return nil, fmt.Errorf("integer %d is not exactly representable as %s", n, typ)
			}
			f = float64(n)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%v cannot be stored", f)
		}
		if typ == table.TypeFloat && math.Abs(f) > math.MaxFloat32 {
			return nil, fmt.Errorf("%v overflows FLOAT", f)
		}
		return attributevalue.Marshal(f)
	case table.TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return attributevalue.Marshal(s)
	case table.TypeBinary:
		switch b := v.(type) {
		case []byte:
			return &types.AttributeValueMemberB{Value: b}, nil
		case string:
			return &types.AttributeValueMemberB{Value: []byte(b)}, nil
		}
		return nil, fmt.Errorf("expected []byte, got %T", v)
	case table.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return attributevalue.Marshal(b)
	}
	return nil, fmt.Errorf("unsupported column type %s", typ)
}

func checkRange(typ table.ColumnType, n int64) error {
	var lo, hi int64
	switch typ {
	case table.TypeInt8:
		lo, hi = math.MinInt8, math.MaxInt8
	case table.TypeInt16:
		lo, hi = math.MinInt16, math.MaxInt16
	case table.TypeInt32:
		lo, hi = math.MinInt32, math.MaxInt32
	default:
		return nil
	}
	if n < lo || n > hi {
		return fmt.Errorf("%d out of range for %s", n, typ)
	}
	return nil
}

// FromItem decodes a store item into a row, typing each value by its column:
// INT8..INT64 as int8..int64, FLOAT as float32, DOUBLE as float64,
// UNIXTIME_MICROS as a UTC time.Time. Attributes not in the descriptor are dropped.
func FromItem(desc table.TableDescriptor, item map[string]types.AttributeValue) (Row, error) {
	r := make(Row, len(item))
	for _, col := range desc.Columns() {
		av, ok := item[col.Name]
		if !ok {
			continue
		}
		if _, isNull := av.(*types.AttributeValueMemberNULL); isNull {
			r[col.Name] = nil
			continue
		}
		v, err := decodeValue(col.Type, av)
		if err != nil {
			return nil, &SchemaMismatchError{Table: desc.Name(), Column: col.Name, Reason: err.Error()}
		}
		r[col.Name] = v
	}
	return r, nil
}

func decodeValue(typ table.ColumnType, av types.AttributeValue) (any, error) {
	switch typ {
	case table.TypeInt8:
		return decodeAs[int8](av)
	case table.TypeInt16:
		return decodeAs[int16](av)
	case table.TypeInt32:
		return decodeAs[int32](av)
	case table.TypeInt64:
		return decodeAs[int64](av)
	case table.TypeUnixTimeMicros:
		var v int64
		if err := unmarshal(av, &v); err != nil {
			return nil, err
		}
		return time.UnixMicro(v).UTC(), nil
	case table.TypeFloat:
		return decodeAs[float32](av)
	case table.TypeDouble:
		return decodeAs[float64](av)
	case table.TypeString:
		return decodeAs[string](av)
	case table.TypeBinary:
		b, ok := av.(*types.AttributeValueMemberB)
		if !ok {
			return nil, fmt.Errorf("expected B attribute, got %T", av)
		}
		return b.Value, nil
	case table.TypeBool:
		return decodeAs[bool](av)
	}
	return nil, fmt.Errorf("unsupported column type %s", typ)
}

func decodeAs[T any](av types.AttributeValue) (any, error) {
	var v T
	if err := unmarshal(av, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func unmarshal(av types.AttributeValue, out any) error {
	if err := attributevalue.Unmarshal(av, out); err != nil {
		return fmt.Errorf("decode %T: %w", av, err)
	}
	return nil
}

package ddbstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math"
	"strings"

	"github.com/acksell/tabletconn/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// Key encoding for BadgerDB that supports proper lexicographic ordering.
// Item keys:    [tableName][sep][partitionKey][sep][sortKey]
// Catalog keys: [$catalog][sep][tableName]
//
// Table names cannot contain '$' or 0x00, so the namespaces never collide.
// Keys are encoded to preserve sort order for all DynamoDB key types (S, N, B).

const (
	keySeparator  byte = 0x00
	catalogPrefix      = "$catalog"
)

// Key type markers for encoding
const (
	keyTypeString byte = 'S'
	keyTypeNumber byte = 'N'
	keyTypeBinary byte = 'B'
)

type badgerKeyEncoder struct {
	tableName string
	keyDefs   table.PrimaryKeyDefinition
}

func (e badgerKeyEncoder) tablePrefix() []byte {
	return tableItemPrefix(e.tableName)
}

func (e badgerKeyEncoder) encodeKey(pk table.PrimaryKey) ([]byte, error) {
	buf := bytes.NewBuffer(e.tablePrefix())

	pkBytes, err := encodeKeyValue(pk.Values.PartitionKey, pk.Definition.PartitionKey.Kind)
	if err != nil {
		return nil, fmt.Errorf("encode partition key: %w", err)
	}
	buf.Write(pkBytes)
	buf.WriteByte(keySeparator)

	if pk.Definition.SortKey.Name != "" {
		skBytes, err := encodeKeyValue(pk.Values.SortKey, pk.Definition.SortKey.Kind)
		if err != nil {
			return nil, fmt.Errorf("encode sort key: %w", err)
		}
		buf.Write(skBytes)
	}
	return buf.Bytes(), nil
}

func tableItemPrefix(tableName string) []byte {
	b := make([]byte, 0, len(tableName)+1)
	b = append(b, tableName...)
	return append(b, keySeparator)
}

func catalogKey(tableName string) []byte {
	b := make([]byte, 0, len(catalogPrefix)+len(tableName)+1)
	b = append(b, catalogPrefix...)
	b = append(b, keySeparator)
	return append(b, tableName...)
}

// encodeKeyValue encodes a key value with proper ordering based on key kind.
func encodeKeyValue(value any, kind table.KeyKind) ([]byte, error) {
	var buf bytes.Buffer

	switch kind {
	case table.KeyKindS:
		buf.WriteByte(keyTypeString)
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string for S key, got %T", value)
		}
		buf.Write(escapeBytes([]byte(s)))

	case table.KeyKindN:
		buf.WriteByte(keyTypeNumber)
		numStr, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected number string for N key, got %T", value)
		}
		encoded, err := encodeNumber(numStr)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)

	case table.KeyKindB:
		buf.WriteByte(keyTypeBinary)
		b, ok := value.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected binary for B key, got %T", value)
		}
		buf.Write(escapeBytes(b))

	default:
		return nil, fmt.Errorf("unsupported key kind: %s", kind)
	}

	return buf.Bytes(), nil
}

// Number sign markers. Zero sorts between the negatives and the positives.
const (
	numNegative byte = 0x7F
	numZero     byte = 0x80
	numPositive byte = 0x81
	numNegEnd   byte = 0xFF
)

// encodeNumber encodes a number string exactly, preserving numeric order.
// The value is normalised to 0.D x 10^E with D free of trailing zeros, then written as
//
//	positive: [0x81][E, 4 bytes, sign bit flipped][D as ASCII digits]
//	negative: [0x7F][E inverted][D with each digit mirrored][0xFF]
//	zero:     [0x80]
//
// Equal numbers in any notation ("1e2", "100", "100.0", "-0") get equal keys.
func encodeNumber(numStr string) ([]byte, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(numStr))
	if err != nil {
		return nil, fmt.Errorf("parse number %q: %w", numStr, err)
	}
	if d.Sign() == 0 {
		return []byte{numZero}, nil
	}

	coef := d.Coefficient()
	full := coef.Abs(coef).String()
	digits := strings.TrimRight(full, "0")
	exp := int64(d.Exponent()) + int64(len(full))
	if exp < math.MinInt32 || exp > math.MaxInt32 {
		return nil, fmt.Errorf("number %q out of range", numStr)
	}

	buf := make([]byte, 0, 6+len(digits))
	var e [4]byte
	binary.BigEndian.PutUint32(e[:], uint32(int32(exp))^(1<<31))
	if d.Sign() > 0 {
		buf = append(buf, numPositive)
		buf = append(buf, e[:]...)
		return append(buf, digits...), nil
	}

	buf = append(buf, numNegative)
	for _, b := range e {
		buf = append(buf, ^b)
	}
	for i := 0; i < len(digits); i++ {
		buf = append(buf, '0'+'9'-digits[i])
	}
	return append(buf, numNegEnd), nil
}

// escapeBytes escapes 0x00 as 0x01 0x01 and 0x01 as 0x01 0x02 so that
// the separator never appears inside a key component.
func escapeBytes(b []byte) []byte {
	var buf bytes.Buffer
	for _, c := range b {
		switch c {
		case 0x00:
			buf.WriteByte(0x01)
			buf.WriteByte(0x01)
		case 0x01:
			buf.WriteByte(0x01)
			buf.WriteByte(0x02)
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes()
}

// Item serialization for BadgerDB values

func serializeItem(item map[string]types.AttributeValue) ([]byte, error) {
	serializable := make(map[string]serializableAV, len(item))
	for k, v := range item {
		sv, err := toSerializable(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		serializable[k] = sv
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(serializable); err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return buf.Bytes(), nil
}

func deserializeItem(data []byte) (map[string]types.AttributeValue, error) {
	var serializable map[string]serializableAV
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&serializable); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}

	result := make(map[string]types.AttributeValue, len(serializable))
	for k, v := range serializable {
		av, err := fromSerializable(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		result[k] = av
	}
	return result, nil
}

// serializableAV is a gob-encodable representation of AttributeValue
type serializableAV struct {
	Type  string
	Value any
}

func init() {
	gob.Register(map[string]serializableAV{})
	gob.Register([]serializableAV{})
	gob.Register([]string{})
	gob.Register([][]byte{})
}

func toSerializable(av types.AttributeValue) (serializableAV, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return serializableAV{Type: "S", Value: v.Value}, nil
	case *types.AttributeValueMemberN:
		return serializableAV{Type: "N", Value: v.Value}, nil
	case *types.AttributeValueMemberB:
		return serializableAV{Type: "B", Value: v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return serializableAV{Type: "BOOL", Value: v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return serializableAV{Type: "NULL", Value: v.Value}, nil
	case *types.AttributeValueMemberSS:
		return serializableAV{Type: "SS", Value: v.Value}, nil
	case *types.AttributeValueMemberNS:
		return serializableAV{Type: "NS", Value: v.Value}, nil
	case *types.AttributeValueMemberBS:
		return serializableAV{Type: "BS", Value: v.Value}, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]serializableAV, len(v.Value))
		for k, val := range v.Value {
			sv, err := toSerializable(val)
			if err != nil {
				return serializableAV{}, err
			}
			m[k] = sv
		}
		return serializableAV{Type: "M", Value: m}, nil
	case *types.AttributeValueMemberL:
		l := make([]serializableAV, len(v.Value))
		for i, val := range v.Value {
			sv, err := toSerializable(val)
			if err != nil {
				return serializableAV{}, err
			}
			l[i] = sv
		}
		return serializableAV{Type: "L", Value: l}, nil
	}
	return serializableAV{}, fmt.Errorf("unsupported attribute value type: %T", av)
}

func fromSerializable(sav serializableAV) (types.AttributeValue, error) {
	switch sav.Type {
	case "S":
		return &types.AttributeValueMemberS{Value: mustCast[string](sav.Value)}, nil
	case "N":
		return &types.AttributeValueMemberN{Value: mustCast[string](sav.Value)}, nil
	case "B":
		return &types.AttributeValueMemberB{Value: mustCast[[]byte](sav.Value)}, nil
	case "BOOL":
		return &types.AttributeValueMemberBOOL{Value: mustCast[bool](sav.Value)}, nil
	case "NULL":
		return &types.AttributeValueMemberNULL{Value: mustCast[bool](sav.Value)}, nil
	case "SS":
		return &types.AttributeValueMemberSS{Value: mustCast[[]string](sav.Value)}, nil
	case "NS":
		return &types.AttributeValueMemberNS{Value: mustCast[[]string](sav.Value)}, nil
	case "BS":
		return &types.AttributeValueMemberBS{Value: mustCast[[][]byte](sav.Value)}, nil
	case "M":
		src := mustCast[map[string]serializableAV](sav.Value)
		m := make(map[string]types.AttributeValue, len(src))
		for k, v := range src {
			av, err := fromSerializable(v)
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case "L":
		src := mustCast[[]serializableAV](sav.Value)
		l := make([]types.AttributeValue, len(src))
		for i, v := range src {
			av, err := fromSerializable(v)
			if err != nil {
				return nil, err
			}
			l[i] = av
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	}
	return nil, fmt.Errorf("unsupported serializable type: %s", sav.Type)
}

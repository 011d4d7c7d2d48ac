package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PrimaryKeyDefinition is the store-level view of a descriptor's key columns.
// The hash key partitions rows, the optional range key orders rows within a partition.
type PrimaryKeyDefinition struct {
	PartitionKey KeyDef
	SortKey      KeyDef // empty Name when the table has a single key column
}

type KeyDef struct {
	Name string
	Kind KeyKind
}

type KeyKind string

const (
	KeyKindS KeyKind = "S"
	KeyKindN KeyKind = "N"
	KeyKindB KeyKind = "B"
)

// Key values are kept in their wire form: string for S and N, []byte for B.
type PrimaryKeyValues struct {
	PartitionKey any
	SortKey      any
}

type PrimaryKey struct {
	Definition PrimaryKeyDefinition
	Values     PrimaryKeyValues
}

// DDB renders the key as a store key map.
func (k PrimaryKey) DDB() (map[string]types.AttributeValue, error) {
	pk, err := keyValueToAV(k.Definition.PartitionKey.Kind, k.Values.PartitionKey)
	if err != nil {
		return nil, fmt.Errorf("partition key %q: %w", k.Definition.PartitionKey.Name, err)
	}
	out := map[string]types.AttributeValue{
		k.Definition.PartitionKey.Name: pk,
	}
	if k.Definition.SortKey.Name == "" {
		return out, nil
	}
	if k.Values.SortKey == nil {
		return nil, fmt.Errorf("sort key %q is required but got nil", k.Definition.SortKey.Name)
	}
	sk, err := keyValueToAV(k.Definition.SortKey.Kind, k.Values.SortKey)
	if err != nil {
		return nil, fmt.Errorf("sort key %q: %w", k.Definition.SortKey.Name, err)
	}
	out[k.Definition.SortKey.Name] = sk
	return out, nil
}

func (k PrimaryKeyDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	part, ok := doc[k.PartitionKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("partition key %q not found", k.PartitionKey.Name)
	}
	if err := attributeMatchesDefinition(k.PartitionKey.Kind, part); err != nil {
		return PrimaryKey{}, fmt.Errorf("document key %q kind does not match definition: %w", k.PartitionKey.Name, err)
	}
	pk := PrimaryKey{
		Definition: k,
		Values: PrimaryKeyValues{
			PartitionKey: keyValueFromAV(part),
		},
	}
	if k.SortKey.Name == "" {
		return pk, nil
	}
	sort, ok := doc[k.SortKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("sort key %q not found on document", k.SortKey.Name)
	}
	if err := attributeMatchesDefinition(k.SortKey.Kind, sort); err != nil {
		return PrimaryKey{}, fmt.Errorf("sort key %q kind does not match definition: %w", k.SortKey.Name, err)
	}
	pk.Values.SortKey = keyValueFromAV(sort)
	return pk, nil
}

// KeyNames returns the key attribute names, hash key first.
func (k PrimaryKeyDefinition) KeyNames() []string {
	if k.SortKey.Name == "" {
		return []string{k.PartitionKey.Name}
	}
	return []string{k.PartitionKey.Name, k.SortKey.Name}
}

func attributeMatchesDefinition(want KeyKind, v types.AttributeValue) error {
	var got KeyKind
	switch v.(type) {
	case *types.AttributeValueMemberS:
		got = KeyKindS
	case *types.AttributeValueMemberN:
		got = KeyKindN
	case *types.AttributeValueMemberB:
		got = KeyKindB
	default:
		return fmt.Errorf("unexpected key attribute type %T", v)
	}
	if got != want {
		return fmt.Errorf("got KeyKind %q want %q", got, want)
	}
	return nil
}

func keyValueFromAV(av types.AttributeValue) any {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberB:
		return v.Value
	default:
		panic(fmt.Sprintf("unsupported attribute value %T for keys", v))
	}
}

func keyValueToAV(kind KeyKind, v any) (types.AttributeValue, error) {
	switch kind {
	case KeyKindS:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string for S key, got %T", v)
		}
		return &types.AttributeValueMemberS{Value: s}, nil
	case KeyKindN:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected numeric string for N key, got %T", v)
		}
		return &types.AttributeValueMemberN{Value: s}, nil
	case KeyKindB:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte for B key, got %T", v)
		}
		return &types.AttributeValueMemberB{Value: b}, nil
	default:
		return nil, fmt.Errorf("unsupported key kind %q", kind)
	}
}

package table

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TableDefinition is what the store needs to address rows of a table:
// its name and key layout. Non-key columns are schemaless at the store level.
type TableDefinition struct {
	Name           string
	KeyDefinitions PrimaryKeyDefinition
}

func (t TableDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	return t.KeyDefinitions.ExtractPrimaryKey(doc)
}

// DefinitionFromKeySchema rebuilds a TableDefinition from a CreateTable request
// or a DescribeTable response.
func DefinitionFromKeySchema(name string, keySchema []types.KeySchemaElement, attrs []types.AttributeDefinition) (TableDefinition, error) {
	kinds := make(map[string]KeyKind, len(attrs))
	for _, a := range attrs {
		if a.AttributeName == nil {
			continue
		}
		kinds[*a.AttributeName] = KeyKind(a.AttributeType)
	}
	def := TableDefinition{Name: name}
	for _, ks := range keySchema {
		if ks.AttributeName == nil {
			return TableDefinition{}, invalid(name, "", "key schema element without attribute name")
		}
		kind, ok := kinds[*ks.AttributeName]
		if !ok {
			return TableDefinition{}, invalid(name, *ks.AttributeName, "key attribute has no attribute definition")
		}
		switch kind {
		case KeyKindS, KeyKindN, KeyKindB:
		default:
			return TableDefinition{}, invalid(name, *ks.AttributeName, "unsupported key attribute type "+string(kind))
		}
		kd := KeyDef{Name: *ks.AttributeName, Kind: kind}
		switch ks.KeyType {
		case types.KeyTypeHash:
			if def.KeyDefinitions.PartitionKey.Name != "" {
				return TableDefinition{}, invalid(name, kd.Name, "more than one HASH key")
			}
			def.KeyDefinitions.PartitionKey = kd
		case types.KeyTypeRange:
			if def.KeyDefinitions.SortKey.Name != "" {
				return TableDefinition{}, invalid(name, kd.Name, "more than one RANGE key")
			}
			def.KeyDefinitions.SortKey = kd
		default:
			return TableDefinition{}, invalid(name, kd.Name, "unknown key type "+string(ks.KeyType))
		}
	}
	if def.KeyDefinitions.PartitionKey.Name == "" {
		return TableDefinition{}, invalid(name, "", "key schema has no HASH key")
	}
	return def, nil
}

package table

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// SchemaTagPrefix marks the resource tags that record the column schema.
// Each column becomes one tag: "tabletconn:col:NNN" = "TYPE:FLAGS:name".
const SchemaTagPrefix = "tabletconn:col:"

// CreateTableInput renders the CreateTable request for the descriptor.
func (d TableDescriptor) CreateTableInput() *dynamodb.CreateTableInput {
	keyDef := d.PrimaryKeyDefinition()
	input := &dynamodb.CreateTableInput{
		TableName:   aws.String(d.name),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(keyDef.PartitionKey.Name), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(keyDef.PartitionKey.Name), AttributeType: types.ScalarAttributeType(keyDef.PartitionKey.Kind)},
		},
		Tags: d.SchemaTags(),
	}
	if keyDef.SortKey.Name != "" {
		input.KeySchema = append(input.KeySchema, types.KeySchemaElement{
			AttributeName: aws.String(keyDef.SortKey.Name), KeyType: types.KeyTypeRange,
		})
		input.AttributeDefinitions = append(input.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(keyDef.SortKey.Name), AttributeType: types.ScalarAttributeType(keyDef.SortKey.Kind),
		})
	}
	return input
}

// SchemaTags encodes the columns as resource tags.
func (d TableDescriptor) SchemaTags() []types.Tag {
	tags := make([]types.Tag, 0, len(d.columns))
	for i, c := range d.columns {
		var flags strings.Builder
		if c.Key {
			flags.WriteByte('k')
		}
		if c.RangeKey {
			flags.WriteByte('r')
		}
		if c.Nullable {
			flags.WriteByte('n')
		}
		tags = append(tags, types.Tag{
			Key:   aws.String(fmt.Sprintf("%s%03d", SchemaTagPrefix, i)),
			Value: aws.String(string(c.Type) + ":" + flags.String() + ":" + c.Name),
		})
	}
	return tags
}

// DescriptorFromStore rebuilds a descriptor from what the store reports about a table.
// Columns come from the schema tags. Tables created without them only expose their key
// attributes; N keys are then reported as DOUBLE.
// The write mode and create flag are not stored and are taken from the arguments.
func DescriptorFromStore(desc *types.TableDescription, tags []types.Tag, mode WriteMode, createIfNotExist bool) (TableDescriptor, error) {
	if desc == nil || desc.TableName == nil {
		return TableDescriptor{}, invalid("", "", "table description without a name")
	}
	name := *desc.TableName
	def, err := DefinitionFromKeySchema(name, desc.KeySchema, desc.AttributeDefinitions)
	if err != nil {
		return TableDescriptor{}, err
	}

	b := NewDescriptor(name).Mode(mode).CreateIfNotExist(createIfNotExist)
	cols, err := columnsFromTags(name, tags)
	if err != nil {
		return TableDescriptor{}, err
	}
	if len(cols) == 0 {
		cols = columnsFromKeys(def.KeyDefinitions)
	}
	d, err := b.AddColumn(cols...).Build()
	if err != nil {
		return TableDescriptor{}, err
	}
	if got := d.PrimaryKeyDefinition(); got != def.KeyDefinitions {
		return TableDescriptor{}, invalid(name, "", fmt.Sprintf("schema tags disagree with key schema: tags %v, store %v", got, def.KeyDefinitions))
	}
	return d, nil
}

func columnsFromTags(tableName string, tags []types.Tag) ([]ColumnDefinition, error) {
	type indexed struct {
		i   int
		col ColumnDefinition
	}
	var found []indexed
	for _, t := range tags {
		if t.Key == nil || !strings.HasPrefix(*t.Key, SchemaTagPrefix) {
			continue
		}
		i, err := strconv.Atoi(strings.TrimPrefix(*t.Key, SchemaTagPrefix))
		if err != nil {
			return nil, invalid(tableName, "", fmt.Sprintf("malformed schema tag key %q", *t.Key))
		}
		parts := strings.SplitN(aws.ToString(t.Value), ":", 3)
		if len(parts) != 3 {
			return nil, invalid(tableName, "", fmt.Sprintf("malformed schema tag value %q", aws.ToString(t.Value)))
		}
		typ, err := ParseColumnType(parts[0])
		if err != nil {
			return nil, invalid(tableName, parts[2], err.Error())
		}
		found = append(found, indexed{i: i, col: ColumnDefinition{
			Name:     parts[2],
			Type:     typ,
			Key:      strings.ContainsRune(parts[1], 'k'),
			RangeKey: strings.ContainsRune(parts[1], 'r'),
			Nullable: strings.ContainsRune(parts[1], 'n'),
		}})
	}
	sort.Slice(found, func(a, b int) bool { return found[a].i < found[b].i })
	cols := make([]ColumnDefinition, len(found))
	for i, f := range found {
		cols[i] = f.col
	}
	return cols, nil
}

func columnsFromKeys(def PrimaryKeyDefinition) []ColumnDefinition {
	typeOf := func(k KeyKind) ColumnType {
		switch k {
		case KeyKindS:
			return TypeString
		case KeyKindB:
			return TypeBinary
		default:
			return TypeDouble
		}
	}
	cols := []ColumnDefinition{{Name: def.PartitionKey.Name, Type: typeOf(def.PartitionKey.Kind), Key: true}}
	if def.SortKey.Name != "" {
		cols = append(cols, ColumnDefinition{Name: def.SortKey.Name, Type: typeOf(def.SortKey.Kind), Key: true, RangeKey: true})
	}
	return cols
}

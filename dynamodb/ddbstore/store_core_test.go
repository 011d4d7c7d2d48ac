package ddbstore

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

// Test table definitions
var singleTableDesign = &dynamodb.CreateTableInput{
	TableName: aws.String("test-table"),
	KeySchema: []types.KeySchemaElement{
		{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
		{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
	},
	AttributeDefinitions: []types.AttributeDefinition{
		{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
		{AttributeName: aws.String("sk"), AttributeType: types.ScalarAttributeTypeS},
	},
	BillingMode: types.BillingModePayPerRequest,
}

var numericKeyTable = &dynamodb.CreateTableInput{
	TableName: aws.String("numeric-table"),
	KeySchema: []types.KeySchemaElement{
		{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
	},
	AttributeDefinitions: []types.AttributeDefinition{
		{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeN},
	},
	Tags: []types.Tag{
		{Key: aws.String("team"), Value: aws.String("ingest")},
	},
}

func newTestStore(t *testing.T, defs ...*dynamodb.CreateTableInput) *Store {
	t.Helper()
	store, err := New(StoreOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	for _, def := range defs {
		_, err := store.CreateTable(context.Background(), def)
		require.NoError(t, err)
	}
	return store
}

func strKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

func numKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberN{Value: id},
	}
}

func withAttrs(key map[string]types.AttributeValue, attrs map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(key)+len(attrs))
	for k, v := range key {
		out[k] = v
	}
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

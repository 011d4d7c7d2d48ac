package ddbstore

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutItem(t *testing.T) {
	t.Run("simple put and retrieve", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		ctx := context.Background()

		item := withAttrs(strKey("test", "test"), map[string]types.AttributeValue{
			"data":  &types.AttributeValueMemberS{Value: "hello world"},
			"bytes": &types.AttributeValueMemberB{Value: []byte{0x00, 0x01, 0xff}},
			"flag":  &types.AttributeValueMemberBOOL{Value: false},
			"nil":   &types.AttributeValueMemberNULL{Value: true},
			"list": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberN{Value: "1"},
				&types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
					"nested": &types.AttributeValueMemberSS{Value: []string{"a", "b"}},
				}},
			}},
		})

		_, err := store.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: singleTableDesign.TableName,
			Item:      item,
		})
		require.NoError(t, err)

		got, err := store.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: singleTableDesign.TableName,
			Key:       strKey("test", "test"),
		})
		require.NoError(t, err)
		assert.Equal(t, item, got.Item)
	})

	t.Run("overwrite existing item", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		ctx := context.Background()

		item1 := withAttrs(strKey("test", "test"), map[string]types.AttributeValue{
			"data": &types.AttributeValueMemberS{Value: "original"},
		})
		item2 := withAttrs(strKey("test", "test"), map[string]types.AttributeValue{
			"data": &types.AttributeValueMemberS{Value: "updated"},
		})

		_, err := store.PutItem(ctx, &dynamodb.PutItemInput{TableName: singleTableDesign.TableName, Item: item1})
		require.NoError(t, err)

		result, err := store.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:    singleTableDesign.TableName,
			Item:         item2,
			ReturnValues: types.ReturnValueAllOld,
		})
		require.NoError(t, err)
		assert.Equal(t, item1, result.Attributes)

		got, err := store.GetItem(ctx, &dynamodb.GetItemInput{TableName: singleTableDesign.TableName, Key: strKey("test", "test")})
		require.NoError(t, err)
		assert.Equal(t, item2, got.Item)
	})

	t.Run("missing sort key errors", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)

		_, err := store.PutItem(context.Background(), &dynamodb.PutItemInput{
			TableName: singleTableDesign.TableName,
			Item: map[string]types.AttributeValue{
				"pk": &types.AttributeValueMemberS{Value: "test"},
			},
		})
		var apiErr smithy.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "ValidationException", apiErr.ErrorCode())
		assert.Contains(t, err.Error(), "sort key")
	})

	t.Run("wrong key type errors", func(t *testing.T) {
		store := newTestStore(t, numericKeyTable)

		_, err := store.PutItem(context.Background(), &dynamodb.PutItemInput{
			TableName: numericKeyTable.TableName,
			Item: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: "1"},
			},
		})
		require.Error(t, err)
	})

	t.Run("unknown table", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.PutItem(context.Background(), &dynamodb.PutItemInput{
			TableName: singleTableDesign.TableName,
			Item:      strKey("a", "b"),
		})
		var notFound *types.ResourceNotFoundException
		require.ErrorAs(t, err, &notFound)
	})
}

func TestStore_PutItemCondition(t *testing.T) {
	store := newTestStore(t, numericKeyTable)
	ctx := context.Background()

	insert := func(id, v string) error {
		_, err := store.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                numericKeyTable.TableName,
			Item:                     withAttrs(numKey(id), map[string]types.AttributeValue{"v": &types.AttributeValueMemberS{Value: v}}),
			ConditionExpression:      ptrStr("attribute_not_exists (#0)"),
			ExpressionAttributeNames: map[string]string{"#0": "id"},
		})
		return err
	}

	require.NoError(t, insert("7", "first"))

	err := insert("7", "second")
	var ccf *types.ConditionalCheckFailedException
	require.ErrorAs(t, err, &ccf)

	got, err := store.GetItem(ctx, &dynamodb.GetItemInput{TableName: numericKeyTable.TableName, Key: numKey("7")})
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "first"}, got.Item["v"])

	t.Run("invalid condition is a validation error", func(t *testing.T) {
		_, err := store.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           numericKeyTable.TableName,
			Item:                numKey("8"),
			ConditionExpression: ptrStr("attribute_not_exists("),
		})
		var apiErr smithy.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "ValidationException", apiErr.ErrorCode())
	})
}

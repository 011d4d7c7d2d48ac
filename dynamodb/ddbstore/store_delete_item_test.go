package ddbstore

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DeleteItem(t *testing.T) {
	t.Run("delete existing item", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		ctx := context.Background()

		item := withAttrs(strKey("a", "b"), map[string]types.AttributeValue{
			"v": &types.AttributeValueMemberS{Value: "x"},
		})
		_, err := store.PutItem(ctx, &dynamodb.PutItemInput{TableName: singleTableDesign.TableName, Item: item})
		require.NoError(t, err)

		out, err := store.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:    singleTableDesign.TableName,
			Key:          strKey("a", "b"),
			ReturnValues: types.ReturnValueAllOld,
		})
		require.NoError(t, err)
		assert.Equal(t, item, out.Attributes)

		got, err := store.GetItem(ctx, &dynamodb.GetItemInput{TableName: singleTableDesign.TableName, Key: strKey("a", "b")})
		require.NoError(t, err)
		assert.Nil(t, got.Item)
	})

	t.Run("delete missing item succeeds", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)

		out, err := store.DeleteItem(context.Background(), &dynamodb.DeleteItemInput{
			TableName:    singleTableDesign.TableName,
			Key:          strKey("nope", "nope"),
			ReturnValues: types.ReturnValueAllOld,
		})
		require.NoError(t, err)
		assert.Nil(t, out.Attributes)
	})

	t.Run("condition protects the item", func(t *testing.T) {
		store := newTestStore(t, numericKeyTable)
		ctx := context.Background()

		_, err := store.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: numericKeyTable.TableName,
			Item: withAttrs(numKey("1"), map[string]types.AttributeValue{
				"locked": &types.AttributeValueMemberBOOL{Value: true},
			}),
		})
		require.NoError(t, err)

		_, err = store.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 numericKeyTable.TableName,
			Key:                       numKey("1"),
			ConditionExpression:       ptrStr("locked = :f"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":f": &types.AttributeValueMemberBOOL{Value: false}},
		})
		var ccf *types.ConditionalCheckFailedException
		require.ErrorAs(t, err, &ccf)

		got, err := store.GetItem(ctx, &dynamodb.GetItemInput{TableName: numericKeyTable.TableName, Key: numKey("1")})
		require.NoError(t, err)
		assert.NotNil(t, got.Item)
	})
}

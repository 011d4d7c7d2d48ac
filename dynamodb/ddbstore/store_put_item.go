package ddbstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// PutItem creates or replaces an item.
func (s *Store) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, validationError("params is required")
	}
	if params.Item == nil {
		return nil, validationError("item is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	tabl, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}

	key, err := itemKey(tabl, params.Item)
	if err != nil {
		return nil, err
	}

	itemBytes, err := serializeItem(params.Item)
	if err != nil {
		return nil, validationError("%s", err.Error())
	}

	var oldItem map[string]types.AttributeValue

	err = s.update(func(txn *badger.Txn) error {
		oldItem, err = readItem(txn, key)
		if err != nil {
			return err
		}
		if err := checkCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, oldItem); err != nil {
			return err
		}
		return txn.Set(key, itemBytes)
	})
	if err != nil {
		return nil, err
	}

	out := &dynamodb.PutItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld && oldItem != nil {
		out.Attributes = oldItem
	}
	return out, nil
}

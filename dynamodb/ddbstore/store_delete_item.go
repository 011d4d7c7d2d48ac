package ddbstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// DeleteItem removes an item by its primary key. Deleting a missing item succeeds
// unless a condition says otherwise.
func (s *Store) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, validationError("params is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	tabl, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}

	key, err := keyFromRequest(tabl, params.Key)
	if err != nil {
		return nil, err
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
		if oldItem == nil {
			return nil
		}
		return txn.Delete(key)
	})
	if err != nil {
		return nil, err
	}

	out := &dynamodb.DeleteItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld && oldItem != nil {
		out.Attributes = oldItem
	}
	return out, nil
}

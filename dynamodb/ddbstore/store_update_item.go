package ddbstore

import (
	"context"

	"github.com/acksell/tabletconn/dynamodb/ddbstore/updateexpr"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// UpdateItem updates an existing item or creates a new one.
func (s *Store) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
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

	// Without an update expression the call only ensures the item exists.
	updateExpr := &updateexpr.Expression{}
	if params.UpdateExpression != nil {
		updateExpr, err = updateexpr.Parse(*params.UpdateExpression)
		if err != nil {
			return nil, validationError("invalid UpdateExpression: %s", err.Error())
		}
	}

	var evalOutput *updateexpr.EvalOutput

	err = s.update(func(txn *badger.Txn) error {
		oldItem, err := readItem(txn, key)
		if err != nil {
			return err
		}
		if err := checkCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, oldItem); err != nil {
			return err
		}

		// A missing item starts out as just its key.
		baseItem := make(map[string]types.AttributeValue, len(oldItem)+len(params.Key))
		for k, v := range oldItem {
			baseItem[k] = v
		}
		for k, v := range params.Key {
			baseItem[k] = v
		}

		evalOutput, err = updateexpr.Apply(updateExpr, updateexpr.EvalInput{
			ExpressionNames:  params.ExpressionAttributeNames,
			ExpressionValues: params.ExpressionAttributeValues,
			ReturnValues:     params.ReturnValues,
		}, baseItem)
		if err != nil {
			return validationError("invalid UpdateExpression: %s", err.Error())
		}
		if params.ReturnValues == types.ReturnValueAllOld && oldItem == nil {
			evalOutput.ReturnAttributes = nil
		}

		for name, v := range params.Key {
			if !attributeValuesEqual(v, evalOutput.Item[name]) {
				return validationError("cannot update attribute %s: this attribute is part of the key", name)
			}
		}

		itemBytes, err := serializeItem(evalOutput.Item)
		if err != nil {
			return validationError("%s", err.Error())
		}
		return txn.Set(key, itemBytes)
	})
	if err != nil {
		return nil, err
	}

	return &dynamodb.UpdateItemOutput{Attributes: evalOutput.ReturnAttributes}, nil
}

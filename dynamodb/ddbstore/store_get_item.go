package ddbstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// GetItem retrieves a single item by its primary key. A missing item yields an empty output.
func (s *Store) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, validationError("params is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}

	key, err := keyFromRequest(t, params.Key)
	if err != nil {
		return nil, err
	}

	var item map[string]types.AttributeValue
	err = s.db.View(func(txn *badger.Txn) error {
		item, err = readItem(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	item, err = project(params.ProjectionExpression, params.ExpressionAttributeNames, item)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

package ddbstore

import (
	"context"

	"github.com/acksell/tabletconn/dynamodb/ddbstore/conditionexpr"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// Scan retrieves items in key order, optionally with a filter. Limit bounds the number
// of items evaluated, before filtering, as in DynamoDB.
func (s *Store) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, validationError("params is required")
	}
	if params.IndexName != nil {
		return nil, validationError("secondary indexes are not supported")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	tabl, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	badgerEncoder := tabl.keyEncoder()

	var filter conditionexpr.Condition
	if params.FilterExpression != nil {
		filter, err = conditionexpr.Parse(*params.FilterExpression)
		if err != nil {
			return nil, validationError("invalid FilterExpression: %s", err.Error())
		}
	}
	filterInput := conditionexpr.EvalInput{
		ExpressionValues: params.ExpressionAttributeValues,
		ExpressionNames:  params.ExpressionAttributeNames,
	}

	var items []map[string]types.AttributeValue
	var lastKey map[string]types.AttributeValue
	var scanned int32

	limit := 0
	if params.Limit != nil {
		limit = int(*params.Limit)
	}

	prefix := badgerEncoder.tablePrefix()

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		if params.ExclusiveStartKey != nil {
			startKey, err := keyFromRequest(tabl, params.ExclusiveStartKey)
			if err != nil {
				return err
			}
			it.Seek(startKey)
			if it.Valid() && string(it.Item().Key()) == string(startKey) {
				it.Next()
			}
		} else {
			it.Seek(prefix)
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var item map[string]types.AttributeValue
			if err := it.Item().Value(func(val []byte) error {
				var err error
				item, err = deserializeItem(val)
				return err
			}); err != nil {
				return err
			}
			scanned++

			match := true
			if filter != nil {
				match, err = conditionexpr.EvalParsed(filter, filterInput, item)
				if err != nil {
					return validationError("invalid FilterExpression: %s", err.Error())
				}
			}
			if match {
				items = append(items, item)
			}

			if limit > 0 && int(scanned) >= limit {
				// Only report a continuation key when something may follow.
				it.Next()
				if it.ValidForPrefix(prefix) {
					lastKey = extractKeyAttributes(item, badgerEncoder.keyDefs)
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, item := range items {
		items[i], err = project(params.ProjectionExpression, params.ExpressionAttributeNames, item)
		if err != nil {
			return nil, err
		}
	}

	return &dynamodb.ScanOutput{
		Items:            items,
		Count:            int32(len(items)),
		ScannedCount:     scanned,
		LastEvaluatedKey: lastKey,
	}, nil
}

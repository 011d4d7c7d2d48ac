package ddbstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// MaxBatchWriteItems is the DynamoDB limit on requests in one BatchWriteItem call.
const MaxBatchWriteItems = 25

type batchOp struct {
	key  []byte
	item []byte // nil for deletes
}

// BatchWriteItem performs multiple put/delete operations in one transaction.
// Malformed requests fail the whole batch, as in DynamoDB.
func (s *Store) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params == nil || len(params.RequestItems) == 0 {
		return nil, validationError("request items are required")
	}
	total := 0
	for _, reqs := range params.RequestItems {
		total += len(reqs)
	}
	if total > MaxBatchWriteItems {
		return nil, validationError("too many items requested for the BatchWriteItem call: %d > %d", total, MaxBatchWriteItems)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ops []batchOp
	for tableName, writeRequests := range params.RequestItems {
		tabl, err := s.getTable(&tableName)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(writeRequests))
		for _, req := range writeRequests {
			var op batchOp
			switch {
			case req.PutRequest != nil:
				op.key, err = itemKey(tabl, req.PutRequest.Item)
				if err != nil {
					return nil, err
				}
				op.item, err = serializeItem(req.PutRequest.Item)
				if err != nil {
					return nil, validationError("%s", err.Error())
				}
			case req.DeleteRequest != nil:
				op.key, err = keyFromRequest(tabl, req.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
			default:
				return nil, validationError("empty write request")
			}
			if seen[string(op.key)] {
				return nil, validationError("provided list of item keys contains duplicates")
			}
			seen[string(op.key)] = true
			ops = append(ops, op)
		}
	}

	err := s.update(func(txn *badger.Txn) error {
		for _, op := range ops {
			if op.item == nil {
				if err := txn.Delete(op.key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(op.key, op.item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &dynamodb.BatchWriteItemOutput{
		UnprocessedItems: map[string][]types.WriteRequest{},
	}, nil
}

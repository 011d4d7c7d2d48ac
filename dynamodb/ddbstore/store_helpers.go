package ddbstore

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/acksell/tabletconn/dynamodb/ddbstore/conditionexpr"
	"github.com/acksell/tabletconn/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"
)

func ptrStr(s string) *string {
	return &s
}

func attributeValuesEqual(a, b types.AttributeValue) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		if bv, ok := b.(*types.AttributeValueMemberS); ok {
			return av.Value == bv.Value
		}
	case *types.AttributeValueMemberN:
		if bv, ok := b.(*types.AttributeValueMemberN); ok {
			x, xerr := decimal.NewFromString(av.Value)
			y, yerr := decimal.NewFromString(bv.Value)
			if xerr != nil || yerr != nil {
				return av.Value == bv.Value
			}
			return x.Equal(y)
		}
	case *types.AttributeValueMemberB:
		if bv, ok := b.(*types.AttributeValueMemberB); ok {
			return bytes.Equal(av.Value, bv.Value)
		}
	}
	return false
}

func extractKeyAttributes(item map[string]types.AttributeValue, keyDef table.PrimaryKeyDefinition) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	if pk, ok := item[keyDef.PartitionKey.Name]; ok {
		result[keyDef.PartitionKey.Name] = pk
	}
	if keyDef.SortKey.Name != "" {
		if sk, ok := item[keyDef.SortKey.Name]; ok {
			result[keyDef.SortKey.Name] = sk
		}
	}
	return result
}

// keyFromRequest validates that key holds exactly the table's key attributes and encodes it.
func keyFromRequest(tabl *tableSchema, key map[string]types.AttributeValue) ([]byte, error) {
	if key == nil {
		return nil, validationError("key is required")
	}
	want := 1
	if tabl.definition.KeyDefinitions.SortKey.Name != "" {
		want = 2
	}
	if len(key) != want {
		return nil, validationError("the provided key element does not match the schema")
	}
	return itemKey(tabl, key)
}

// itemKey encodes the primary key found in an item. Extra attributes are ignored.
func itemKey(tabl *tableSchema, item map[string]types.AttributeValue) ([]byte, error) {
	pk, err := tabl.definition.ExtractPrimaryKey(item)
	if err != nil {
		return nil, validationError("extract primary key: %s", err.Error())
	}
	key, err := tabl.encodeKey(pk)
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}
	return key, nil
}

// readItem returns the stored item, or nil when the key is absent.
func readItem(txn *badger.Txn, key []byte) (map[string]types.AttributeValue, error) {
	bi, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item map[string]types.AttributeValue
	err = bi.Value(func(val []byte) error {
		item, err = deserializeItem(val)
		return err
	})
	return item, err
}

// checkCondition evaluates a condition expression against the current item (nil if absent).
func checkCondition(expr *string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) error {
	if expr == nil {
		return nil
	}
	ok, err := conditionexpr.Eval(*expr, conditionexpr.EvalInput{
		ExpressionNames:  names,
		ExpressionValues: values,
	}, item)
	if err != nil {
		return validationError("invalid ConditionExpression: %s", err.Error())
	}
	if !ok {
		return conditionFailed()
	}
	return nil
}

// project keeps only the attributes named in a projection expression.
// Only top-level names are supported.
func project(expr *string, names map[string]string, item map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	if expr == nil || item == nil {
		return item, nil
	}
	out := make(map[string]types.AttributeValue)
	for _, part := range strings.Split(*expr, ",") {
		name := strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(name, "#"):
			resolved, ok := names[name]
			if !ok {
				return nil, validationError("expression attribute name %s not defined", name)
			}
			name = resolved
		case name == "" || strings.ContainsAny(name, ".["):
			return nil, validationError("unsupported projection path %q", name)
		}
		if v, ok := item[name]; ok {
			out[name] = v
		}
	}
	return out, nil
}

const maxConflictRetries = 5

// update runs fn in a read-write transaction, retrying when badger reports a
// conflict with a concurrent transaction on the same keys.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			return err
		}
		s.logger.Debug("transaction conflict, retrying", "attempt", attempt+1)
	}
}

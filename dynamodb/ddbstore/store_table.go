package ddbstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,255}$`)

const (
	maxTagsPerResource = 50
	maxTagKeyLen       = 128
	maxTagValueLen     = 256
)

// CreateTable registers a new table. Tables are ACTIVE as soon as the call returns.
func (s *Store) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, validationError("params is required")
	}
	name := aws.ToString(params.TableName)
	if !tableNameRe.MatchString(name) {
		return nil, validationError("invalid table name %q: must be 3-255 characters of [A-Za-z0-9_.-]", name)
	}
	if len(params.GlobalSecondaryIndexes) > 0 || len(params.LocalSecondaryIndexes) > 0 {
		return nil, validationError("secondary indexes are not supported")
	}
	if err := checkAttributeDefinitions(params.KeySchema, params.AttributeDefinitions); err != nil {
		return nil, err
	}
	if err := checkTags(params.Tags); err != nil {
		return nil, err
	}

	entry := catalogEntry{
		Name:        name,
		TableID:     uuid.NewString(),
		ARN:         s.tableARN(name),
		CreatedAt:   time.Now().UTC(),
		BillingMode: string(params.BillingMode),
	}
	if entry.BillingMode == "" {
		entry.BillingMode = string(types.BillingModeProvisioned)
	}
	for _, k := range params.KeySchema {
		entry.KeySchema = append(entry.KeySchema, catalogKeyElement{Name: aws.ToString(k.AttributeName), KeyType: string(k.KeyType)})
	}
	for _, a := range params.AttributeDefinitions {
		entry.Attributes = append(entry.Attributes, catalogAttribute{Name: aws.ToString(a.AttributeName), Type: string(a.AttributeType)})
	}
	for _, t := range params.Tags {
		entry.Tags = append(entry.Tags, catalogTag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}

	def, err := entry.definition()
	if err != nil {
		return nil, validationError("%s", err.Error())
	}
	data, err := entry.marshal()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tables[name]; exists {
		return nil, tableInUse(name)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(catalogKey(name), data)
	}); err != nil {
		return nil, fmt.Errorf("persist table %s: %w", name, err)
	}
	sch := &tableSchema{definition: def, entry: entry}
	s.tables[name] = sch
	s.logger.Info("table created", "table", name, "table_id", entry.TableID)

	return &dynamodb.CreateTableOutput{TableDescription: s.describe(sch, types.TableStatusActive, 0)}, nil
}

// DescribeTable reports a table's key schema, status and item count.
func (s *Store) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, validationError("params is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sch, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	count, err := s.countItems(sch)
	if err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: s.describe(sch, types.TableStatusActive, count)}, nil
}

// DeleteTable removes the table and all of its items.
func (s *Store) DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, validationError("params is required")
	}
	name := aws.ToString(params.TableName)

	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.tables[name]
	if !ok {
		return nil, tableNotFound(name)
	}
	// Items go first: a failed drop leaves the table registered and retryable.
	if err := s.dropPrefix(tableItemPrefix(name)); err != nil {
		return nil, fmt.Errorf("drop items of table %s: %w", name, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(catalogKey(name))
	}); err != nil {
		return nil, fmt.Errorf("delete table %s: %w", name, err)
	}
	delete(s.tables, name)
	s.logger.Info("table deleted", "table", name, "table_id", sch.entry.TableID)

	return &dynamodb.DeleteTableOutput{TableDescription: s.describe(sch, types.TableStatusDeleting, 0)}, nil
}

// ListTables returns table names in ascending order.
func (s *Store) ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params == nil {
		params = &dynamodb.ListTablesInput{}
	}
	s.mu.RLock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	if start := aws.ToString(params.ExclusiveStartTableName); start != "" {
		i := sort.SearchStrings(names, start)
		if i < len(names) && names[i] == start {
			i++
		}
		names = names[i:]
	}
	out := &dynamodb.ListTablesOutput{}
	limit := int(aws.ToInt32(params.Limit))
	if limit > 0 && len(names) > limit {
		names = names[:limit]
		out.LastEvaluatedTableName = aws.String(names[limit-1])
	}
	out.TableNames = names
	return out, nil
}

// ListTagsOfResource returns the tags given at creation, in their original order.
func (s *Store) ListTagsOfResource(ctx context.Context, params *dynamodb.ListTagsOfResourceInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTagsOfResourceOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params == nil || params.ResourceArn == nil {
		return nil, validationError("resource ARN is required")
	}
	arn := *params.ResourceArn
	idx := strings.LastIndex(arn, ":table/")
	if idx < 0 {
		return nil, validationError("invalid resource ARN %q", arn)
	}
	name := arn[idx+len(":table/"):]

	s.mu.RLock()
	defer s.mu.RUnlock()
	sch, err := s.getTable(&name)
	if err != nil {
		return nil, err
	}
	if sch.entry.ARN != arn {
		return nil, tableNotFound(name)
	}
	return &dynamodb.ListTagsOfResourceOutput{Tags: sch.entry.tags()}, nil
}

func (s *Store) describe(sch *tableSchema, status types.TableStatus, itemCount int64) *types.TableDescription {
	e := sch.entry
	return &types.TableDescription{
		TableName:            aws.String(e.Name),
		TableArn:             aws.String(e.ARN),
		TableId:              aws.String(e.TableID),
		TableStatus:          status,
		CreationDateTime:     aws.Time(e.CreatedAt),
		KeySchema:            e.keySchema(),
		AttributeDefinitions: e.attributeDefinitions(),
		ItemCount:            aws.Int64(itemCount),
		BillingModeSummary: &types.BillingModeSummary{
			BillingMode: types.BillingMode(e.BillingMode),
		},
	}
}

func (s *Store) countItems(sch *tableSchema) (int64, error) {
	prefix := sch.keyEncoder().tablePrefix()
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// checkAttributeDefinitions mirrors DynamoDB: every key attribute needs a definition
// and no definition may be left unused.
func checkAttributeDefinitions(keySchema []types.KeySchemaElement, attrs []types.AttributeDefinition) error {
	if len(keySchema) == 0 || len(keySchema) > 2 {
		return validationError("key schema must have one or two elements, got %d", len(keySchema))
	}
	if keySchema[0].KeyType != types.KeyTypeHash {
		return validationError("first key schema element must be HASH")
	}
	used := make(map[string]bool, len(keySchema))
	for _, k := range keySchema {
		used[aws.ToString(k.AttributeName)] = true
	}
	for _, a := range attrs {
		if !used[aws.ToString(a.AttributeName)] {
			return validationError("attribute definition %q is not used by the key schema", aws.ToString(a.AttributeName))
		}
	}
	return nil
}

func checkTags(tags []types.Tag) error {
	if len(tags) > maxTagsPerResource {
		return validationError("too many tags: %d > %d", len(tags), maxTagsPerResource)
	}
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		k, v := aws.ToString(t.Key), aws.ToString(t.Value)
		if k == "" || len(k) > maxTagKeyLen {
			return validationError("tag key %q must be 1-%d characters", k, maxTagKeyLen)
		}
		if len(v) > maxTagValueLen {
			return validationError("tag %q value exceeds %d characters", k, maxTagValueLen)
		}
		if seen[k] {
			return validationError("duplicate tag key %q", k)
		}
		seen[k] = true
	}
	return nil
}

package ddbstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/acksell/tabletconn/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// catalogEntry is the persisted form of a table's metadata.
type catalogEntry struct {
	Name        string
	TableID     string
	ARN         string
	CreatedAt   time.Time
	BillingMode string
	KeySchema   []catalogKeyElement
	Attributes  []catalogAttribute
	Tags        []catalogTag
}

type catalogKeyElement struct {
	Name    string
	KeyType string
}

type catalogAttribute struct {
	Name string
	Type string
}

type catalogTag struct {
	Key   string
	Value string
}

func (e catalogEntry) keySchema() []types.KeySchemaElement {
	out := make([]types.KeySchemaElement, len(e.KeySchema))
	for i, k := range e.KeySchema {
		out[i] = types.KeySchemaElement{AttributeName: aws.String(k.Name), KeyType: types.KeyType(k.KeyType)}
	}
	return out
}

func (e catalogEntry) attributeDefinitions() []types.AttributeDefinition {
	out := make([]types.AttributeDefinition, len(e.Attributes))
	for i, a := range e.Attributes {
		out[i] = types.AttributeDefinition{AttributeName: aws.String(a.Name), AttributeType: types.ScalarAttributeType(a.Type)}
	}
	return out
}

func (e catalogEntry) tags() []types.Tag {
	out := make([]types.Tag, len(e.Tags))
	for i, t := range e.Tags {
		out[i] = types.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)}
	}
	return out
}

func (e catalogEntry) definition() (table.TableDefinition, error) {
	return table.DefinitionFromKeySchema(e.Name, e.keySchema(), e.attributeDefinitions())
}

func (e catalogEntry) marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("encode catalog entry %s: %w", e.Name, err)
	}
	return buf.Bytes(), nil
}

func unmarshalCatalogEntry(data []byte) (catalogEntry, error) {
	var e catalogEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return catalogEntry{}, fmt.Errorf("decode catalog entry: %w", err)
	}
	return e, nil
}

func (s *Store) tableARN(name string) string {
	return fmt.Sprintf("arn:aws:dynamodb:%s:%s:table/%s", s.region, s.account, name)
}

// loadCatalog rebuilds the in-memory table map from disk. Called once from New.
func (s *Store) loadCatalog() error {
	prefix := append([]byte(catalogPrefix), keySeparator)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry catalogEntry
			if err := it.Item().Value(func(val []byte) error {
				var err error
				entry, err = unmarshalCatalogEntry(val)
				return err
			}); err != nil {
				return err
			}
			def, err := entry.definition()
			if err != nil {
				return fmt.Errorf("table %s: %w", entry.Name, err)
			}
			s.tables[entry.Name] = &tableSchema{definition: def, entry: entry}
		}
		s.logger.Debug("catalog loaded", "tables", len(s.tables))
		return nil
	})
}

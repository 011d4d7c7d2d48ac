package ddbstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/acksell/tabletconn/dynamodb/ddbiface"
	"github.com/acksell/tabletconn/dynamodb/table"
	"github.com/dgraph-io/badger/v4"
)

var _ ddbiface.Client = (*Store)(nil)

// Store is a DynamoDB-compatible store backed by BadgerDB.
// Tables are created and dropped at runtime; the catalog is persisted next to the items.
type Store struct {
	db      *badger.DB
	logger  *slog.Logger
	region  string
	account string

	mu     sync.RWMutex
	tables map[string]*tableSchema

	// dropPrefix is db.DropPrefix; tests swap it to inject failures.
	dropPrefix func(prefixes ...[]byte) error
}

type tableSchema struct {
	definition table.TableDefinition
	entry      catalogEntry
}

func (t *tableSchema) keyEncoder() badgerKeyEncoder {
	return badgerKeyEncoder{tableName: t.definition.Name, keyDefs: t.definition.KeyDefinitions}
}

func (t *tableSchema) encodeKey(pk table.PrimaryKey) ([]byte, error) {
	return t.keyEncoder().encodeKey(pk)
}

// StoreOptions configures the BadgerDB store.
type StoreOptions struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger receives store and BadgerDB logs. Nil discards BadgerDB logs
	// and uses slog.Default for the store's own messages.
	Logger *slog.Logger
	// Region and AccountID fill the table ARNs. They default to
	// "local" and "000000000000".
	Region    string
	AccountID string
}

// New opens a BadgerDB-backed DynamoDB store and loads any persisted tables.
func New(opts StoreOptions) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)

	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	logger := opts.Logger
	if logger != nil {
		badgerOpts = badgerOpts.WithLogger(&badgerLogger{l: logger.With("component", "badger")})
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
		logger = slog.Default()
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	s := &Store{
		db:      db,
		logger:  logger.With("component", "ddbstore"),
		region:  opts.Region,
		account: opts.AccountID,
		tables:  make(map[string]*tableSchema),
	}
	s.dropPrefix = db.DropPrefix
	if s.region == "" {
		s.region = "local"
	}
	if s.account == "" {
		s.account = "000000000000"
	}

	if err := s.loadCatalog(); err != nil {
		return nil, errors.Join(fmt.Errorf("load catalog: %w", err), db.Close())
	}
	return s, nil
}

// Close closes the underlying database. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

// getTable looks up a table. Callers hold s.mu, read-locked at least, for as long as
// they use the schema, so a concurrent DeleteTable cannot drop items under them.
func (s *Store) getTable(tableName *string) (*tableSchema, error) {
	if tableName == nil || *tableName == "" {
		return nil, validationError("table name is required")
	}
	schema, ok := s.tables[*tableName]
	if !ok {
		return nil, tableNotFound(*tableName)
	}
	return schema, nil
}

// Package storage provides the BadgerDB-backed record store that committed
// transactions are applied to.
//
// Every record kind carried by a command has its own single-byte key prefix
// followed by the big-endian record id, and records are stored as JSON.
//
// Key Structure:
//   - Nodes:               0x01 + id -> JSON(NodeRecord)
//   - Relationships:       0x02 + id -> JSON(RelationshipRecord)
//   - Relationship groups: 0x03 + id -> JSON(RelationshipGroupRecord)
//   - Properties:          0x04 + id -> JSON(PropertyRecord)
//   - Tokens:              0x05 + kind + id -> JSON(TokenRecord)
//   - Schema rules:        0x06 + id -> JSON(SchemaRecord)
//   - Dynamic labels:      0x07 + id -> JSON([]int64)
//   - Neo store:           0x08 -> JSON(NeoStoreRecord)
//
// Example:
//
//	store, err := storage.Open(storage.Options{DataDir: "./data/records"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.Write(func(b *storage.Batch) error {
//		return b.PutNode(&command.NodeRecord{ID: 1, InUse: true})
//	})
//
//	node, err := store.Node(1)
//
// Thread Safety:
//
//	Safe for concurrent use from multiple goroutines. Each Write is one
//	badger transaction.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/nornicapply/pkg/command"
)

// Key prefixes for BadgerDB storage organization
const (
	prefixNode              = byte(0x01)
	prefixRelationship      = byte(0x02)
	prefixRelationshipGroup = byte(0x03)
	prefixProperty          = byte(0x04)
	prefixToken             = byte(0x05)
	prefixSchemaRule        = byte(0x06)
	prefixDynamicLabels     = byte(0x07)
	prefixNeoStore          = byte(0x08)
)

var (
	ErrNotFound      = errors.New("storage: record not found")
	ErrStorageClosed = errors.New("storage: closed")
	ErrInvalidRecord = errors.New("storage: invalid record")
)

// Options configures the record store.
type Options struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	// Slower but more durable.
	SyncWrites bool

	// Logger for BadgerDB internal logging. Quiet when nil.
	Logger badger.Logger
}

// RecordStore persists the records mutated by applied transactions.
type RecordStore struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) a record store.
func Open(opts Options) (*RecordStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).     // 16MB instead of 64MB
		WithValueLogFileSize(64 << 20). // 64MB instead of 1GB
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024). // Store values > 1KB in value log
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &RecordStore{db: db}, nil
}

// OpenInMemory creates an in-memory record store for testing.
func OpenInMemory() (*RecordStore, error) {
	return Open(Options{InMemory: true})
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func recordKey(prefix byte, id int64) []byte {
	key := make([]byte, 9)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], uint64(id))
	return key
}

func tokenKey(kind command.Kind, id int64) []byte {
	key := make([]byte, 10)
	key[0] = prefixToken
	key[1] = byte(kind)
	binary.BigEndian.PutUint64(key[2:], uint64(id))
	return key
}

func neoStoreKey() []byte {
	return []byte{prefixNeoStore}
}

func isTokenKind(kind command.Kind) bool {
	switch kind {
	case command.KindPropertyKeyToken, command.KindRelationshipTypeToken, command.KindLabelToken:
		return true
	}
	return false
}

// ============================================================================
// Reads
// ============================================================================

func getRecord[T any](s *RecordStore, key []byte) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStorageClosed
	}

	var record T
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &record); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Node returns the node record id.
func (s *RecordStore) Node(id int64) (*command.NodeRecord, error) {
	return getRecord[command.NodeRecord](s, recordKey(prefixNode, id))
}

// Relationship returns the relationship record id.
func (s *RecordStore) Relationship(id int64) (*command.RelationshipRecord, error) {
	return getRecord[command.RelationshipRecord](s, recordKey(prefixRelationship, id))
}

// RelationshipGroup returns the relationship group record id.
func (s *RecordStore) RelationshipGroup(id int64) (*command.RelationshipGroupRecord, error) {
	return getRecord[command.RelationshipGroupRecord](s, recordKey(prefixRelationshipGroup, id))
}

// Property returns the property record id.
func (s *RecordStore) Property(id int64) (*command.PropertyRecord, error) {
	return getRecord[command.PropertyRecord](s, recordKey(prefixProperty, id))
}

// Token returns token id of the given token kind.
func (s *RecordStore) Token(kind command.Kind, id int64) (*command.TokenRecord, error) {
	if !isTokenKind(kind) {
		return nil, fmt.Errorf("%w: %s is not a token kind", ErrInvalidRecord, kind)
	}
	return getRecord[command.TokenRecord](s, tokenKey(kind, id))
}

// SchemaRule returns the schema record id.
func (s *RecordStore) SchemaRule(id int64) (*command.SchemaRecord, error) {
	return getRecord[command.SchemaRecord](s, recordKey(prefixSchemaRule, id))
}

// NeoStore returns the store metadata record.
func (s *RecordStore) NeoStore() (*command.NeoStoreRecord, error) {
	return getRecord[command.NeoStoreRecord](s, neoStoreKey())
}

// DynamicLabels returns the labels held by dynamic label record id.
func (s *RecordStore) DynamicLabels(id int64) ([]int64, error) {
	ids, err := getRecord[[]int64](s, recordKey(prefixDynamicLabels, id))
	if err != nil {
		return nil, err
	}
	return *ids, nil
}

// Stats holds the number of stored records per kind.
type Stats struct {
	Nodes              int64
	Relationships      int64
	RelationshipGroups int64
	Properties         int64
	Tokens             int64
	SchemaRules        int64
}

// Stats counts stored records by scanning keys only.
func (s *RecordStore) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, ErrStorageClosed
	}

	var stats Stats
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			switch it.Item().Key()[0] {
			case prefixNode:
				stats.Nodes++
			case prefixRelationship:
				stats.Relationships++
			case prefixRelationshipGroup:
				stats.RelationshipGroups++
			case prefixProperty:
				stats.Properties++
			case prefixToken:
				stats.Tokens++
			case prefixSchemaRule:
				stats.SchemaRules++
			}
		}
		return nil
	})
	return stats, err
}

// ============================================================================
// Writes
// ============================================================================

// Batch stages record writes inside one badger transaction.
type Batch struct {
	txn *badger.Txn
}

func (b *Batch) put(key []byte, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	return b.txn.Set(key, data)
}

func (b *Batch) delete(key []byte) error {
	return b.txn.Delete(key)
}

func (b *Batch) PutNode(r *command.NodeRecord) error {
	if r == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidRecord)
	}
	return b.put(recordKey(prefixNode, r.ID), r)
}

func (b *Batch) DeleteNode(id int64) error {
	return b.delete(recordKey(prefixNode, id))
}

func (b *Batch) PutRelationship(r *command.RelationshipRecord) error {
	if r == nil {
		return fmt.Errorf("%w: nil relationship", ErrInvalidRecord)
	}
	return b.put(recordKey(prefixRelationship, r.ID), r)
}

func (b *Batch) DeleteRelationship(id int64) error {
	return b.delete(recordKey(prefixRelationship, id))
}

func (b *Batch) PutRelationshipGroup(r *command.RelationshipGroupRecord) error {
	if r == nil {
		return fmt.Errorf("%w: nil relationship group", ErrInvalidRecord)
	}
	return b.put(recordKey(prefixRelationshipGroup, r.ID), r)
}

func (b *Batch) DeleteRelationshipGroup(id int64) error {
	return b.delete(recordKey(prefixRelationshipGroup, id))
}

func (b *Batch) PutProperty(r *command.PropertyRecord) error {
	if r == nil {
		return fmt.Errorf("%w: nil property", ErrInvalidRecord)
	}
	return b.put(recordKey(prefixProperty, r.ID), r)
}

func (b *Batch) DeleteProperty(id int64) error {
	return b.delete(recordKey(prefixProperty, id))
}

// PutToken stores a property key, relationship type or label token.
func (b *Batch) PutToken(kind command.Kind, r *command.TokenRecord) error {
	if !isTokenKind(kind) {
		return fmt.Errorf("%w: %s is not a token kind", ErrInvalidRecord, kind)
	}
	if r == nil {
		return fmt.Errorf("%w: nil token", ErrInvalidRecord)
	}
	return b.put(tokenKey(kind, r.ID), r)
}

func (b *Batch) PutSchemaRule(r *command.SchemaRecord) error {
	if r == nil {
		return fmt.Errorf("%w: nil schema rule", ErrInvalidRecord)
	}
	return b.put(recordKey(prefixSchemaRule, r.ID), r)
}

func (b *Batch) DeleteSchemaRule(id int64) error {
	return b.delete(recordKey(prefixSchemaRule, id))
}

func (b *Batch) PutNeoStore(r *command.NeoStoreRecord) error {
	if r == nil {
		return fmt.Errorf("%w: nil neostore", ErrInvalidRecord)
	}
	return b.put(neoStoreKey(), r)
}

// PutDynamicLabels stores the label ids of dynamic label record id.
func (b *Batch) PutDynamicLabels(id int64, labels []int64) error {
	return b.put(recordKey(prefixDynamicLabels, id), labels)
}

func (b *Batch) DeleteDynamicLabels(id int64) error {
	return b.delete(recordKey(prefixDynamicLabels, id))
}

// Write runs fn in one read-write transaction. Nothing is written when fn
// returns an error.
func (s *RecordStore) Write(fn func(*Batch) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStorageClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&Batch{txn: txn})
	})
}

// Close closes the underlying database.
func (s *RecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

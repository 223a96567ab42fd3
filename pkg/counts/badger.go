package counts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for counters. Labels and types are stored big-endian so that
// counters of one kind sort by id.
const (
	prefixNodeCount         = byte(0x10) // 0x10 + label -> int64
	prefixRelationshipCount = byte(0x11) // 0x11 + start + type + end -> int64
)

// BadgerOptions configures the badger counts store.
type BadgerOptions struct {
	// DataDir is the directory for the counts database. Ignored when InMemory.
	DataDir string

	// InMemory keeps counters in RAM only.
	InMemory bool

	// SyncWrites forces fsync after each commit.
	SyncWrites bool

	// Logger for badger's internal logging. Quiet when nil.
	Logger badger.Logger
}

// BadgerStore persists counters in BadgerDB.
//
// Each Update runs in one badger read-write transaction. Counters are
// read-modify-written, so updates are serialised by writeMu to keep concurrent
// commits from conflicting on hot counters such as AnyLabel.
type BadgerStore struct {
	db      *badger.DB
	mu      sync.RWMutex
	writeMu sync.Mutex
	closed  bool
}

// NewBadgerStore opens a badger-backed counts store.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	// Counters are tiny; keep the footprint small.
	badgerOpts = badgerOpts.
		WithMemTableSize(4 << 20).
		WithValueLogFileSize(16 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithBlockCacheSize(4 << 20).
		WithIndexCacheSize(2 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("counts: failed to open BadgerDB: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func nodeCountKey(label int64) []byte {
	key := make([]byte, 9)
	key[0] = prefixNodeCount
	binary.BigEndian.PutUint64(key[1:], uint64(label))
	return key
}

func relationshipCountKey(startLabel, relType, endLabel int64) []byte {
	key := make([]byte, 25)
	key[0] = prefixRelationshipCount
	binary.BigEndian.PutUint64(key[1:], uint64(startLabel))
	binary.BigEndian.PutUint64(key[9:], uint64(relType))
	binary.BigEndian.PutUint64(key[17:], uint64(endLabel))
	return key
}

func encodeCount(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func decodeCount(val []byte) (int64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("%w: %d bytes", ErrCorruptCounter, len(val))
	}
	return int64(binary.BigEndian.Uint64(val)), nil
}

// badgerUpdater applies deltas inside one badger transaction.
type badgerUpdater struct {
	txn *badger.Txn
}

func (u *badgerUpdater) add(key []byte, delta int64) error {
	if delta == 0 {
		return nil
	}
	var current int64
	item, err := u.txn.Get(key)
	switch {
	case err == nil:
		if err := item.Value(func(val []byte) error {
			var decodeErr error
			current, decodeErr = decodeCount(val)
			return decodeErr
		}); err != nil {
			return err
		}
	case errors.Is(err, badger.ErrKeyNotFound):
	default:
		return err
	}
	return u.txn.Set(key, encodeCount(current+delta))
}

func (u *badgerUpdater) UpdateNodeCount(label int64, delta int64) error {
	return u.add(nodeCountKey(label), delta)
}

func (u *badgerUpdater) UpdateRelationshipCount(startLabel, relType, endLabel int64, delta int64) error {
	return u.add(relationshipCountKey(startLabel, relType, endLabel), delta)
}

// Update applies fn's updates in one badger transaction.
func (b *BadgerStore) Update(fn func(Updater) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStoreClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.db.Update(func(txn *badger.Txn) error {
		return fn(&badgerUpdater{txn: txn})
	})
}

func (b *BadgerStore) read(key []byte) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrStoreClosed
	}

	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decodeErr error
			count, decodeErr = decodeCount(val)
			return decodeErr
		})
	})
	return count, err
}

// NodeCount returns the counter for label.
func (b *BadgerStore) NodeCount(label int64) (int64, error) {
	return b.read(nodeCountKey(label))
}

// RelationshipCount returns the counter for the given key.
func (b *BadgerStore) RelationshipCount(startLabel, relType, endLabel int64) (int64, error) {
	return b.read(relationshipCountKey(startLabel, relType, endLabel))
}

// Close closes the underlying database.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

var _ Store = (*BadgerStore)(nil)

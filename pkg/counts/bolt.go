package counts

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodeCounts         = []byte("node_counts")
	bucketRelationshipCounts = []byte("relationship_counts")
)

// BoltStore persists counters in a single bbolt file.
//
// bbolt allows one writer at a time, so Update calls are serialised by the
// database itself and never conflict.
type BoltStore struct {
	db     *bolt.DB
	mu     sync.RWMutex
	closed bool
}

// NewBoltStore opens (or creates) the counts file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("counts: failed to create directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("counts: failed to open bolt file: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketNodeCounts); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketRelationshipCounts)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("counts: failed to create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

type boltUpdater struct {
	nodes *bolt.Bucket
	rels  *bolt.Bucket
}

func addTo(b *bolt.Bucket, key []byte, delta int64) error {
	if delta == 0 {
		return nil
	}
	var current int64
	if val := b.Get(key); val != nil {
		var err error
		if current, err = decodeCount(val); err != nil {
			return err
		}
	}
	return b.Put(key, encodeCount(current+delta))
}

func (u *boltUpdater) UpdateNodeCount(label int64, delta int64) error {
	return addTo(u.nodes, nodeCountKey(label)[1:], delta)
}

func (u *boltUpdater) UpdateRelationshipCount(startLabel, relType, endLabel int64, delta int64) error {
	return addTo(u.rels, relationshipCountKey(startLabel, relType, endLabel)[1:], delta)
}

// Update applies fn's updates in one bbolt read-write transaction.
func (s *BoltStore) Update(fn func(Updater) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltUpdater{
			nodes: tx.Bucket(bucketNodeCounts),
			rels:  tx.Bucket(bucketRelationshipCounts),
		})
	})
}

func (s *BoltStore) read(bucket, key []byte) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	var count int64
	err := s.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(bucket).Get(key)
		if val == nil {
			return nil
		}
		var err error
		count, err = decodeCount(val)
		return err
	})
	return count, err
}

// NodeCount returns the counter for label.
func (s *BoltStore) NodeCount(label int64) (int64, error) {
	return s.read(bucketNodeCounts, nodeCountKey(label)[1:])
}

// RelationshipCount returns the counter for the given key.
func (s *BoltStore) RelationshipCount(startLabel, relType, endLabel int64) (int64, error) {
	return s.read(bucketRelationshipCounts, relationshipCountKey(startLabel, relType, endLabel)[1:])
}

// Close closes the bolt file.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)

// Package counts provides the counts store: persisted node and relationship
// counters that transactions update with signed deltas.
//
// Node counts are keyed by label, relationship counts by
// (start label, relationship type, end label). AnyLabel and AnyType are the
// wildcards for the aggregate counters, so the total number of nodes is
// NodeCount(AnyLabel) and the total number of relationships is
// RelationshipCount(AnyLabel, AnyType, AnyLabel).
//
// Stores are shared between transactions. Every backend serialises concurrent
// Update calls so that each call is applied atomically and in full.
//
// Example:
//
//	store := counts.NewMemoryStore()
//	err := store.Update(func(u counts.Updater) error {
//		if err := u.UpdateNodeCount(counts.AnyLabel, 1); err != nil {
//			return err
//		}
//		return u.UpdateNodeCount(personLabel, 1)
//	})
//
//	total, _ := store.NodeCount(counts.AnyLabel)
package counts

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/orneryd/nornicapply/pkg/config"
)

const (
	// AnyLabel matches nodes regardless of their labels.
	AnyLabel int64 = -1
	// AnyType matches relationships regardless of their type.
	AnyType int64 = -1
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendBolt   = "bolt"
)

var (
	ErrStoreClosed    = errors.New("counts: store closed")
	ErrUnknownBackend = errors.New("counts: unknown backend")
	ErrCorruptCounter = errors.New("counts: corrupt counter value")
)

// Updater adds signed deltas to counters.
type Updater interface {
	UpdateNodeCount(label int64, delta int64) error
	UpdateRelationshipCount(startLabel, relType, endLabel int64, delta int64) error
}

// Committer applies a group of updates atomically: either every update made
// by fn is applied, or (when fn or the commit fails) none is.
type Committer interface {
	Update(fn func(Updater) error) error
}

// Store is a persisted counts store.
type Store interface {
	Committer
	NodeCount(label int64) (int64, error)
	RelationshipCount(startLabel, relType, endLabel int64) (int64, error)
	Close() error
}

// RelationshipKey identifies one relationship counter.
type RelationshipKey struct {
	StartLabel int64
	Type       int64
	EndLabel   int64
}

// Open opens the counts store selected by cfg. Relative backend paths are
// resolved against dataDir. With inMemory nothing touches disk: badger runs
// in memory and bolt, which has no memory mode, is replaced by a MemoryStore.
func Open(cfg config.CountsConfig, dataDir string, inMemory bool) (Store, error) {
	path := cfg.Path
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(dataDir, path)
	}

	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendBadger, "":
		return NewBadgerStore(BadgerOptions{
			DataDir:    path,
			InMemory:   inMemory,
			SyncWrites: cfg.SyncWrites,
		})
	case BackendBolt:
		if inMemory {
			return NewMemoryStore(), nil
		}
		return NewBoltStore(filepath.Join(path, "counts.db"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

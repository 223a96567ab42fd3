package counts

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/orneryd/nornicapply/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"badger": func(t *testing.T) Store {
			s, err := NewBadgerStore(BadgerOptions{InMemory: true})
			require.NoError(t, err)
			return s
		},
		"bolt": func(t *testing.T) Store {
			s, err := NewBoltStore(filepath.Join(t.TempDir(), "counts.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_Update(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("adds_signed_deltas", func(t *testing.T) {
				s := open(t)
				defer s.Close()

				require.NoError(t, s.Update(func(u Updater) error {
					require.NoError(t, u.UpdateNodeCount(AnyLabel, 3))
					require.NoError(t, u.UpdateNodeCount(1, 2))
					return u.UpdateRelationshipCount(AnyLabel, 7, AnyLabel, 1)
				}))
				require.NoError(t, s.Update(func(u Updater) error {
					require.NoError(t, u.UpdateNodeCount(AnyLabel, -1))
					return u.UpdateRelationshipCount(AnyLabel, 7, AnyLabel, 4)
				}))

				n, err := s.NodeCount(AnyLabel)
				require.NoError(t, err)
				assert.Equal(t, int64(2), n)

				n, err = s.NodeCount(1)
				require.NoError(t, err)
				assert.Equal(t, int64(2), n)

				r, err := s.RelationshipCount(AnyLabel, 7, AnyLabel)
				require.NoError(t, err)
				assert.Equal(t, int64(5), r)
			})

			t.Run("missing_counter_is_zero", func(t *testing.T) {
				s := open(t)
				defer s.Close()

				n, err := s.NodeCount(99)
				require.NoError(t, err)
				assert.Zero(t, n)

				r, err := s.RelationshipCount(AnyLabel, AnyType, AnyLabel)
				require.NoError(t, err)
				assert.Zero(t, r)
			})

			t.Run("failed_update_applies_nothing", func(t *testing.T) {
				s := open(t)
				defer s.Close()

				boom := errors.New("boom")
				err := s.Update(func(u Updater) error {
					require.NoError(t, u.UpdateNodeCount(AnyLabel, 10))
					return boom
				})
				assert.ErrorIs(t, err, boom)

				n, err := s.NodeCount(AnyLabel)
				require.NoError(t, err)
				assert.Zero(t, n)
			})

			t.Run("concurrent_updates_all_apply", func(t *testing.T) {
				s := open(t)
				defer s.Close()

				var wg sync.WaitGroup
				for i := 0; i < 20; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						assert.NoError(t, s.Update(func(u Updater) error {
							return u.UpdateNodeCount(AnyLabel, 1)
						}))
					}()
				}
				wg.Wait()

				n, err := s.NodeCount(AnyLabel)
				require.NoError(t, err)
				assert.Equal(t, int64(20), n)
			})

			t.Run("closed_store_rejects_updates", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Close())

				err := s.Update(func(u Updater) error { return nil })
				assert.ErrorIs(t, err, ErrStoreClosed)
				_, err = s.NodeCount(AnyLabel)
				assert.ErrorIs(t, err, ErrStoreClosed)
			})
		})
	}
}

func TestBoltStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.db")

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Update(func(u Updater) error {
		return u.UpdateNodeCount(5, 3)
	}))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.NodeCount(5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestOpen(t *testing.T) {
	t.Run("selects_memory", func(t *testing.T) {
		s, err := Open(config.CountsConfig{Backend: "memory"}, t.TempDir(), false)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &MemoryStore{}, s)
	})

	t.Run("selects_badger_in_memory", func(t *testing.T) {
		s, err := Open(config.CountsConfig{Backend: "badger"}, "", true)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &BadgerStore{}, s)
	})

	t.Run("selects_bolt_relative_to_data_dir", func(t *testing.T) {
		dir := t.TempDir()
		s, err := Open(config.CountsConfig{Backend: "bolt", Path: "counts"}, dir, false)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &BoltStore{}, s)
		assert.FileExists(t, filepath.Join(dir, "counts", "counts.db"))
	})

	t.Run("bolt_in_memory_writes_nothing", func(t *testing.T) {
		dir := t.TempDir()
		s, err := Open(config.CountsConfig{Backend: "bolt", Path: "counts"}, dir, true)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &MemoryStore{}, s)
		assert.NoDirExists(t, filepath.Join(dir, "counts"))
	})

	t.Run("rejects_unknown_backend", func(t *testing.T) {
		_, err := Open(config.CountsConfig{Backend: "leveldb"}, t.TempDir(), false)
		assert.ErrorIs(t, err, ErrUnknownBackend)
	})
}

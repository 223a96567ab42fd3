package counts

import "sync"

// MemoryStore keeps counters in memory. Useful for tests and for databases
// opened without persistence.
type MemoryStore struct {
	mu     sync.Mutex
	nodes  map[int64]int64
	rels   map[RelationshipKey]int64
	closed bool
}

// NewMemoryStore creates an empty in-memory counts store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[int64]int64),
		rels:  make(map[RelationshipKey]int64),
	}
}

// staged collects the updates of one Update call so that a failing fn leaves
// the store untouched.
type staged struct {
	nodes map[int64]int64
	rels  map[RelationshipKey]int64
}

func (s *staged) UpdateNodeCount(label int64, delta int64) error {
	s.nodes[label] += delta
	return nil
}

func (s *staged) UpdateRelationshipCount(startLabel, relType, endLabel int64, delta int64) error {
	s.rels[RelationshipKey{startLabel, relType, endLabel}] += delta
	return nil
}

// Update applies the updates made by fn atomically.
func (m *MemoryStore) Update(fn func(Updater) error) error {
	batch := &staged{
		nodes: make(map[int64]int64),
		rels:  make(map[RelationshipKey]int64),
	}
	if err := fn(batch); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	for k, d := range batch.nodes {
		m.nodes[k] += d
	}
	for k, d := range batch.rels {
		m.rels[k] += d
	}
	return nil
}

// NodeCount returns the number of nodes carrying label (or all nodes for AnyLabel).
func (m *MemoryStore) NodeCount(label int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrStoreClosed
	}
	return m.nodes[label], nil
}

// RelationshipCount returns the counter for the given key.
func (m *MemoryStore) RelationshipCount(startLabel, relType, endLabel int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrStoreClosed
	}
	return m.rels[RelationshipKey{startLabel, relType, endLabel}], nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Store = (*MemoryStore)(nil)

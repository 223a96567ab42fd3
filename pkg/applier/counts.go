package applier

import (
	"fmt"
	"sort"

	"github.com/orneryd/nornicapply/pkg/command"
	"github.com/orneryd/nornicapply/pkg/counts"
	"github.com/orneryd/nornicapply/pkg/labels"
)

// CountsApplier accumulates the node and relationship count deltas of one
// transaction and commits them in a single counts store update.
//
// Only node and relationship commands contribute; every other variant is a
// no-op. The applier never vetoes a command.
type CountsApplier struct {
	command.Adapter

	store   counts.Committer
	dynamic *carriedLabels

	nodes      int64
	rels       int64
	labelDelta map[int64]int64
	typeDelta  map[int64]int64
	applied    bool
}

// NewCountsApplier creates an accumulator committing into store. reader
// resolves dynamic label records that are not carried on the node record; it
// may be nil when every dynamic record is carried.
func NewCountsApplier(store counts.Committer, reader labels.DynamicLabelReader) *CountsApplier {
	return &CountsApplier{
		store:      store,
		dynamic:    &carriedLabels{ids: make(map[int64][]int64), reader: reader},
		labelDelta: make(map[int64]int64),
		typeDelta:  make(map[int64]int64),
	}
}

// carriedLabels resolves dynamic label records from the labels carried by
// node records visited earlier in the transaction, falling back to reader.
// Records staged in the same transaction are not in the store yet.
type carriedLabels struct {
	ids    map[int64][]int64
	reader labels.DynamicLabelReader
}

func (c *carriedLabels) remember(r *command.NodeRecord) {
	if r == nil || r.DynamicLabels == nil {
		return
	}
	if id, ok := labels.DynamicRecordID(r.LabelField); ok {
		c.ids[id] = append([]int64(nil), r.DynamicLabels...)
	}
}

func (c *carriedLabels) DynamicLabels(id int64) ([]int64, error) {
	if ids, ok := c.ids[id]; ok {
		return ids, nil
	}
	if c.reader == nil {
		return nil, fmt.Errorf("dynamic label record %d not carried", id)
	}
	return c.reader.DynamicLabels(id)
}

func inUse(r *command.NodeRecord) bool { return r != nil && r.InUse }

func labelField(r *command.NodeRecord) uint64 {
	if r == nil {
		return 0
	}
	return r.LabelField
}

// VisitNodeCommand records node creation/deletion and label changes.
func (a *CountsApplier) VisitNodeCommand(c *command.NodeCommand) (bool, error) {
	before, after := c.Before, c.After
	switch {
	case !inUse(before) && inUse(after):
		a.nodes++
	case inUse(before) && !inUse(after):
		a.nodes--
	}

	// A deletion whose after-image keeps the label field still removes its
	// labels, since a record not in use has none. A dynamic record that keeps
	// its id while its carried labels change is not diffed.
	changed := labelField(before) != labelField(after) || inUse(before) != inUse(after)

	a.dynamic.remember(before)
	var beforeLabels []int64
	if changed {
		var err error
		if beforeLabels, err = labels.ForRecord(before, a.dynamic); err != nil {
			return false, fmt.Errorf("counts: decoding labels before: %w", err)
		}
	}
	a.dynamic.remember(after)
	if !changed {
		return true, nil
	}

	afterLabels, err := labels.ForRecord(after, a.dynamic)
	if err != nil {
		return false, fmt.Errorf("counts: decoding labels after: %w", err)
	}
	for _, id := range diff(beforeLabels, afterLabels) {
		a.labelDelta[id]++
	}
	for _, id := range diff(afterLabels, beforeLabels) {
		a.labelDelta[id]--
	}
	return true, nil
}

// VisitRelationshipCommand records relationship creation/deletion per type.
// Property-only updates contribute nothing.
func (a *CountsApplier) VisitRelationshipCommand(c *command.RelationshipCommand) (bool, error) {
	r := c.Record
	switch {
	case r == nil:
	case r.Created:
		a.rels++
		a.typeDelta[r.Type]++
	case !r.InUse:
		a.rels--
		a.typeDelta[r.Type]--
	}
	return true, nil
}

// Apply flushes every delta in one atomic update: the any-label node count,
// each changed label, the any-type relationship count, then each changed
// type. Label and type keys are flushed in ascending order.
func (a *CountsApplier) Apply() error {
	if a.applied {
		return ErrAlreadyApplied
	}
	a.applied = true

	return a.store.Update(func(u counts.Updater) error {
		if err := u.UpdateNodeCount(counts.AnyLabel, a.nodes); err != nil {
			return err
		}
		for _, label := range nonZeroKeys(a.labelDelta) {
			if err := u.UpdateNodeCount(label, a.labelDelta[label]); err != nil {
				return err
			}
		}
		if err := u.UpdateRelationshipCount(counts.AnyLabel, counts.AnyType, counts.AnyLabel, a.rels); err != nil {
			return err
		}
		for _, relType := range nonZeroKeys(a.typeDelta) {
			if err := u.UpdateRelationshipCount(counts.AnyLabel, relType, counts.AnyLabel, a.typeDelta[relType]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close drops the accumulated deltas.
func (a *CountsApplier) Close() error {
	a.labelDelta = nil
	a.typeDelta = nil
	a.dynamic.ids = nil
	return nil
}

// NodeDelta returns the accumulated any-label node delta.
func (a *CountsApplier) NodeDelta() int64 { return a.nodes }

// RelationshipDelta returns the accumulated any-type relationship delta.
func (a *CountsApplier) RelationshipDelta() int64 { return a.rels }

// LabelDelta returns the accumulated delta for label.
func (a *CountsApplier) LabelDelta(label int64) int64 { return a.labelDelta[label] }

// TypeDelta returns the accumulated delta for relationship type relType.
func (a *CountsApplier) TypeDelta(relType int64) int64 { return a.typeDelta[relType] }

// diff returns the distinct members of add that are not in remove.
func diff(remove, add []int64) []int64 {
	if len(add) == 0 {
		return nil
	}
	set := make(map[int64]struct{}, len(add))
	for _, id := range add {
		set[id] = struct{}{}
	}
	for _, id := range remove {
		delete(set, id)
	}
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func nonZeroKeys(m map[int64]int64) []int64 {
	keys := make([]int64, 0, len(m))
	for k, v := range m {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

var _ command.Handler = (*CountsApplier)(nil)

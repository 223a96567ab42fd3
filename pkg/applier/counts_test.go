package applier

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornicapply/pkg/command"
	"github.com/orneryd/nornicapply/pkg/counts"
	"github.com/orneryd/nornicapply/pkg/labels"
)

// recordingCommitter captures every update of one Update call, in order.
type recordingCommitter struct {
	calls   []string
	updates int
	err     error
}

func (r *recordingCommitter) Update(fn func(counts.Updater) error) error {
	r.updates++
	if err := fn(r); err != nil {
		return err
	}
	return r.err
}

func (r *recordingCommitter) UpdateNodeCount(label int64, delta int64) error {
	r.calls = append(r.calls, fmt.Sprintf("node(%d)%+d", label, delta))
	return nil
}

func (r *recordingCommitter) UpdateRelationshipCount(startLabel, relType, endLabel int64, delta int64) error {
	r.calls = append(r.calls, fmt.Sprintf("rel(%d,%d,%d)%+d", startLabel, relType, endLabel, delta))
	return nil
}

type mapReader map[int64][]int64

func (m mapReader) DynamicLabels(id int64) ([]int64, error) {
	ids, ok := m[id]
	if !ok {
		return nil, errors.New("no such dynamic record")
	}
	return ids, nil
}

func field(t *testing.T, ids ...int64) uint64 {
	t.Helper()
	f, ok := labels.Encode(ids)
	require.True(t, ok)
	return f
}

func nodeCmd(before, after *command.NodeRecord) *command.NodeCommand {
	return &command.NodeCommand{Before: before, After: after}
}

func relCmd(id, relType int64, inUse, created bool) *command.RelationshipCommand {
	return &command.RelationshipCommand{Record: &command.RelationshipRecord{
		ID: id, Type: relType, InUse: inUse, Created: created,
	}}
}

func visitAll(t *testing.T, h command.Handler, cmds ...command.Command) {
	t.Helper()
	for _, cmd := range cmds {
		ok, err := cmd.Handle(h)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestCountsApplier_Nodes(t *testing.T) {
	t.Run("created_node_with_labels", func(t *testing.T) {
		rec := &recordingCommitter{}
		a := NewCountsApplier(rec, nil)

		visitAll(t, a, nodeCmd(
			&command.NodeRecord{ID: 1},
			&command.NodeRecord{ID: 1, InUse: true, LabelField: field(t, 1, 2)},
		))
		require.NoError(t, a.Apply())

		assert.Equal(t, []string{
			"node(-1)+1", "node(1)+1", "node(2)+1",
			"rel(-1,-1,-1)+0",
		}, rec.calls)
		assert.Equal(t, 1, rec.updates)
	})

	t.Run("label_change_without_creation", func(t *testing.T) {
		rec := &recordingCommitter{}
		a := NewCountsApplier(rec, nil)

		visitAll(t, a, nodeCmd(
			&command.NodeRecord{ID: 1, InUse: true, LabelField: field(t, 1, 2, 3)},
			&command.NodeRecord{ID: 1, InUse: true, LabelField: field(t, 2, 4)},
		))
		assert.Equal(t, int64(-1), a.LabelDelta(1))
		assert.Equal(t, int64(0), a.LabelDelta(2))
		assert.Equal(t, int64(-1), a.LabelDelta(3))
		assert.Equal(t, int64(1), a.LabelDelta(4))
		require.NoError(t, a.Apply())

		assert.Equal(t, []string{
			"node(-1)+0", "node(1)-1", "node(3)-1", "node(4)+1",
			"rel(-1,-1,-1)+0",
		}, rec.calls)
	})

	t.Run("deleted_node_loses_labels", func(t *testing.T) {
		a := NewCountsApplier(&recordingCommitter{}, nil)
		visitAll(t, a, nodeCmd(
			&command.NodeRecord{ID: 1, InUse: true, LabelField: field(t, 5)},
			&command.NodeRecord{ID: 1, InUse: false},
		))
		assert.Equal(t, int64(-1), a.NodeDelta())
		assert.Equal(t, int64(-1), a.LabelDelta(5))
	})

	t.Run("deleted_node_keeping_label_field_loses_labels", func(t *testing.T) {
		a := NewCountsApplier(&recordingCommitter{}, nil)
		f := field(t, 5)
		visitAll(t, a, nodeCmd(
			&command.NodeRecord{ID: 1, InUse: true, LabelField: f},
			&command.NodeRecord{ID: 1, InUse: false, LabelField: f},
		))
		assert.Equal(t, int64(-1), a.NodeDelta())
		assert.Equal(t, int64(-1), a.LabelDelta(5))
	})

	t.Run("unchanged_node_contributes_nothing", func(t *testing.T) {
		rec := &recordingCommitter{}
		a := NewCountsApplier(rec, nil)
		f := field(t, 1)
		visitAll(t, a, nodeCmd(
			&command.NodeRecord{ID: 1, InUse: true, LabelField: f, NextProp: 1},
			&command.NodeRecord{ID: 1, InUse: true, LabelField: f, NextProp: 2},
		))
		require.NoError(t, a.Apply())
		assert.Equal(t, []string{"node(-1)+0", "rel(-1,-1,-1)+0"}, rec.calls)
	})

	t.Run("dynamic_labels_from_record", func(t *testing.T) {
		a := NewCountsApplier(&recordingCommitter{}, nil)
		visitAll(t, a, nodeCmd(
			&command.NodeRecord{ID: 1},
			&command.NodeRecord{ID: 1, InUse: true, LabelField: labels.Dynamic(9), DynamicLabels: []int64{100, 200}},
		))
		assert.Equal(t, int64(1), a.LabelDelta(100))
		assert.Equal(t, int64(1), a.LabelDelta(200))
	})

	t.Run("dynamic_labels_from_reader", func(t *testing.T) {
		a := NewCountsApplier(&recordingCommitter{}, mapReader{9: {100, 200}})
		visitAll(t, a, nodeCmd(
			&command.NodeRecord{ID: 1, InUse: true, LabelField: labels.Dynamic(9)},
			&command.NodeRecord{ID: 1, InUse: true, LabelField: field(t, 100)},
		))
		assert.Equal(t, int64(0), a.LabelDelta(100))
		assert.Equal(t, int64(-1), a.LabelDelta(200))
	})

	t.Run("dynamic_labels_carried_by_earlier_command", func(t *testing.T) {
		a := NewCountsApplier(&recordingCommitter{}, mapReader{})
		visitAll(t, a,
			nodeCmd(
				&command.NodeRecord{ID: 1},
				&command.NodeRecord{ID: 1, InUse: true, LabelField: labels.Dynamic(9), DynamicLabels: []int64{100, 200}},
			),
			nodeCmd(
				&command.NodeRecord{ID: 1, InUse: true, LabelField: labels.Dynamic(9)},
				&command.NodeRecord{ID: 1, InUse: true, LabelField: field(t, 100)},
			),
		)
		assert.Equal(t, int64(1), a.LabelDelta(100))
		assert.Equal(t, int64(0), a.LabelDelta(200))
	})

	t.Run("same_dynamic_record_is_not_diffed", func(t *testing.T) {
		a := NewCountsApplier(&recordingCommitter{}, nil)
		visitAll(t, a, nodeCmd(
			&command.NodeRecord{ID: 1, InUse: true, LabelField: labels.Dynamic(9), DynamicLabels: []int64{100}},
			&command.NodeRecord{ID: 1, InUse: true, LabelField: labels.Dynamic(9), DynamicLabels: []int64{100, 200}},
		))
		assert.Zero(t, a.LabelDelta(200))
	})

	t.Run("duplicate_dynamic_labels_count_once", func(t *testing.T) {
		a := NewCountsApplier(&recordingCommitter{}, nil)
		visitAll(t, a, nodeCmd(
			&command.NodeRecord{ID: 1},
			&command.NodeRecord{ID: 1, InUse: true, LabelField: labels.Dynamic(9), DynamicLabels: []int64{3, 3, 4}},
		))
		assert.Equal(t, int64(1), a.LabelDelta(3))
		assert.Equal(t, int64(1), a.LabelDelta(4))
	})

	t.Run("malformed_label_field_is_an_error", func(t *testing.T) {
		a := NewCountsApplier(&recordingCommitter{}, nil)
		_, err := a.VisitNodeCommand(nodeCmd(
			&command.NodeRecord{ID: 1},
			&command.NodeRecord{ID: 1, InUse: true, LabelField: labels.Dynamic(9)},
		))
		assert.ErrorIs(t, err, labels.ErrMalformedLabelField)
	})
}

func TestCountsApplier_Relationships(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		rec := &recordingCommitter{}
		a := NewCountsApplier(rec, nil)
		visitAll(t, a, relCmd(1, 7, true, true))
		require.NoError(t, a.Apply())

		assert.Equal(t, []string{"node(-1)+0", "rel(-1,-1,-1)+1", "rel(-1,7,-1)+1"}, rec.calls)
	})

	t.Run("deleted", func(t *testing.T) {
		rec := &recordingCommitter{}
		a := NewCountsApplier(rec, nil)
		visitAll(t, a, relCmd(1, 7, false, false))
		require.NoError(t, a.Apply())

		assert.Equal(t, []string{"node(-1)+0", "rel(-1,-1,-1)-1", "rel(-1,7,-1)-1"}, rec.calls)
	})

	t.Run("property_only_update", func(t *testing.T) {
		a := NewCountsApplier(&recordingCommitter{}, nil)
		visitAll(t, a, relCmd(1, 7, true, false))
		assert.Zero(t, a.RelationshipDelta())
		assert.Zero(t, a.TypeDelta(7))
	})

	t.Run("types_flushed_in_ascending_order", func(t *testing.T) {
		rec := &recordingCommitter{}
		a := NewCountsApplier(rec, nil)
		visitAll(t, a, relCmd(1, 9, true, true), relCmd(2, 3, true, true), relCmd(3, 5, true, true))
		require.NoError(t, a.Apply())

		assert.Equal(t, []string{
			"node(-1)+0", "rel(-1,-1,-1)+3",
			"rel(-1,3,-1)+1", "rel(-1,5,-1)+1", "rel(-1,9,-1)+1",
		}, rec.calls)
	})
}

func TestCountsApplier_OtherCommandsAreIgnored(t *testing.T) {
	rec := &recordingCommitter{}
	a := NewCountsApplier(rec, nil)
	for _, cmd := range everyCommand() {
		if cmd.Kind() == command.KindNode || cmd.Kind() == command.KindRelationship {
			continue
		}
		ok, err := cmd.Handle(a)
		require.NoError(t, err)
		assert.True(t, ok, cmd.Kind().String())
	}
	require.NoError(t, a.Apply())
	assert.Equal(t, []string{"node(-1)+0", "rel(-1,-1,-1)+0"}, rec.calls)
}

func TestCountsApplier_OrderIndependence(t *testing.T) {
	build := func(t *testing.T) []command.Command {
		return []command.Command{
			nodeCmd(&command.NodeRecord{ID: 1}, &command.NodeRecord{ID: 1, InUse: true, LabelField: field(t, 1, 2)}),
			nodeCmd(&command.NodeRecord{ID: 2, InUse: true, LabelField: field(t, 2)}, &command.NodeRecord{ID: 2, InUse: true, LabelField: field(t, 3)}),
			nodeCmd(&command.NodeRecord{ID: 3, InUse: true, LabelField: field(t, 1)}, &command.NodeRecord{ID: 3}),
			relCmd(10, 7, true, true),
			relCmd(11, 7, false, false),
			relCmd(12, 8, true, true),
			relCmd(13, 8, true, false),
		}
	}

	run := func(t *testing.T, cmds []command.Command) []string {
		rec := &recordingCommitter{}
		a := NewCountsApplier(rec, nil)
		visitAll(t, a, cmds...)
		require.NoError(t, a.Apply())
		return rec.calls
	}

	cmds := build(t)
	want := run(t, cmds)

	for shift := 1; shift < len(cmds); shift++ {
		rotated := append(append([]command.Command{}, cmds[shift:]...), cmds[:shift]...)
		assert.Equal(t, want, run(t, rotated), "rotation %d", shift)
	}

	reversed := make([]command.Command, len(cmds))
	for i, cmd := range cmds {
		reversed[len(cmds)-1-i] = cmd
	}
	assert.Equal(t, want, run(t, reversed))
}

func TestCountsApplier_CreateThenDeleteNetsToZero(t *testing.T) {
	rec := &recordingCommitter{}
	a := NewCountsApplier(rec, nil)
	f := field(t, 1, 2)

	visitAll(t, a,
		nodeCmd(&command.NodeRecord{ID: 1}, &command.NodeRecord{ID: 1, InUse: true, LabelField: f}),
		nodeCmd(&command.NodeRecord{ID: 1, InUse: true, LabelField: f}, &command.NodeRecord{ID: 1}),
	)
	assert.Zero(t, a.NodeDelta())
	assert.Zero(t, a.LabelDelta(1))
	assert.Zero(t, a.LabelDelta(2))

	require.NoError(t, a.Apply())
	assert.Equal(t, []string{"node(-1)+0", "rel(-1,-1,-1)+0"}, rec.calls)
}

func TestCountsApplier_CreateThenDeleteDynamicNetsToZero(t *testing.T) {
	records := newRecordStore(t)
	store := counts.NewMemoryStore()
	f := NewFacade(NewStoreApplier(records), NewCountsApplier(store, records))

	many := []int64{1, 2, 3, 4, 5, 6, 7, 8}
	_, err := ApplyTransaction(f, []command.Command{
		nodeCmd(
			&command.NodeRecord{ID: 1},
			&command.NodeRecord{ID: 1, InUse: true, LabelField: labels.Dynamic(5), DynamicLabels: many},
		),
		nodeCmd(
			&command.NodeRecord{ID: 1, InUse: true, LabelField: labels.Dynamic(5)},
			&command.NodeRecord{ID: 1, LabelField: labels.Dynamic(5)},
		),
	})
	require.NoError(t, err)

	for _, label := range append([]int64{counts.AnyLabel}, many...) {
		n, err := store.NodeCount(label)
		require.NoError(t, err)
		assert.Zero(t, n, "label %d", label)
	}
}

func TestCountsApplier_Apply(t *testing.T) {
	t.Run("second_apply_fails", func(t *testing.T) {
		a := NewCountsApplier(&recordingCommitter{}, nil)
		require.NoError(t, a.Apply())
		assert.ErrorIs(t, a.Apply(), ErrAlreadyApplied)
	})

	t.Run("close_after_failed_apply", func(t *testing.T) {
		boom := errors.New("boom")
		a := NewCountsApplier(&recordingCommitter{err: boom}, nil)
		visitAll(t, a, relCmd(1, 7, true, true))
		assert.ErrorIs(t, a.Apply(), boom)
		assert.NoError(t, a.Close())
	})

	t.Run("commits_into_store", func(t *testing.T) {
		store := counts.NewMemoryStore()
		a := NewCountsApplier(store, nil)
		visitAll(t, a,
			nodeCmd(&command.NodeRecord{ID: 1}, &command.NodeRecord{ID: 1, InUse: true, LabelField: field(t, 4)}),
			relCmd(1, 7, true, true),
		)
		require.NoError(t, a.Apply())

		n, err := store.NodeCount(counts.AnyLabel)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		n, err = store.NodeCount(4)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		r, err := store.RelationshipCount(counts.AnyLabel, 7, counts.AnyLabel)
		require.NoError(t, err)
		assert.Equal(t, int64(1), r)
	})
}

func TestDiff(t *testing.T) {
	assert.Nil(t, diff([]int64{1}, nil))
	assert.ElementsMatch(t, []int64{1, 2}, diff(nil, []int64{1, 2}))
	assert.ElementsMatch(t, []int64{1, 2}, diff(nil, []int64{2, 1, 2}))
	assert.Equal(t, []int64{3}, diff([]int64{1}, []int64{3, 3}))
	assert.Equal(t, []int64{3}, diff([]int64{1, 2}, []int64{1, 2, 3}))
	assert.Empty(t, diff([]int64{1, 2}, []int64{2, 1}))
}

package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder remembers which visit method saw which command.
type recorder struct {
	calls  []Kind
	result bool
	err    error
}

func (r *recorder) record(k Kind) (bool, error) {
	r.calls = append(r.calls, k)
	return r.result, r.err
}

func (r *recorder) VisitNodeCommand(*NodeCommand) (bool, error) { return r.record(KindNode) }
func (r *recorder) VisitRelationshipCommand(*RelationshipCommand) (bool, error) {
	return r.record(KindRelationship)
}
func (r *recorder) VisitRelationshipGroupCommand(*RelationshipGroupCommand) (bool, error) {
	return r.record(KindRelationshipGroup)
}
func (r *recorder) VisitPropertyCommand(*PropertyCommand) (bool, error) {
	return r.record(KindProperty)
}
func (r *recorder) VisitPropertyKeyTokenCommand(*PropertyKeyTokenCommand) (bool, error) {
	return r.record(KindPropertyKeyToken)
}
func (r *recorder) VisitRelationshipTypeTokenCommand(*RelationshipTypeTokenCommand) (bool, error) {
	return r.record(KindRelationshipTypeToken)
}
func (r *recorder) VisitLabelTokenCommand(*LabelTokenCommand) (bool, error) {
	return r.record(KindLabelToken)
}
func (r *recorder) VisitSchemaRuleCommand(*SchemaRuleCommand) (bool, error) {
	return r.record(KindSchemaRule)
}
func (r *recorder) VisitNeoStoreCommand(*NeoStoreCommand) (bool, error) {
	return r.record(KindNeoStore)
}
func (r *recorder) VisitIndexAddNodeCommand(*IndexAddNodeCommand) (bool, error) {
	return r.record(KindIndexAddNode)
}
func (r *recorder) VisitIndexAddRelationshipCommand(*IndexAddRelationshipCommand) (bool, error) {
	return r.record(KindIndexAddRelationship)
}
func (r *recorder) VisitIndexCreateCommand(*IndexCreateCommand) (bool, error) {
	return r.record(KindIndexCreate)
}
func (r *recorder) VisitIndexDeleteCommand(*IndexDeleteCommand) (bool, error) {
	return r.record(KindIndexDelete)
}
func (r *recorder) VisitIndexRemoveCommand(*IndexRemoveCommand) (bool, error) {
	return r.record(KindIndexRemove)
}
func (r *recorder) VisitIndexDefineCommand(*IndexDefineCommand) (bool, error) {
	return r.record(KindIndexDefine)
}
func (r *recorder) Apply() error { return nil }
func (r *recorder) Close() error { return nil }

func allCommands() []Command {
	return []Command{
		&NodeCommand{Before: &NodeRecord{}, After: &NodeRecord{InUse: true}},
		&RelationshipCommand{Record: &RelationshipRecord{InUse: true, Created: true}},
		&RelationshipGroupCommand{},
		&PropertyCommand{},
		&PropertyKeyTokenCommand{Record: &TokenRecord{Name: "name"}},
		&RelationshipTypeTokenCommand{Record: &TokenRecord{Name: "KNOWS"}},
		&LabelTokenCommand{Record: &TokenRecord{Name: "Person"}},
		&SchemaRuleCommand{},
		&NeoStoreCommand{},
		&IndexAddNodeCommand{},
		&IndexAddRelationshipCommand{},
		&IndexCreateCommand{},
		&IndexDeleteCommand{},
		&IndexRemoveCommand{},
		&IndexDefineCommand{},
	}
}

func TestCommand_Handle(t *testing.T) {
	t.Run("dispatches_each_variant_to_exactly_one_method", func(t *testing.T) {
		for _, cmd := range allCommands() {
			r := &recorder{result: true}
			ok, err := cmd.Handle(r)
			require.NoError(t, err)
			assert.True(t, ok)
			require.Len(t, r.calls, 1, "kind %s", cmd.Kind())
			assert.Equal(t, cmd.Kind(), r.calls[0])
		}
	})

	t.Run("records_one_call_per_visited_command", func(t *testing.T) {
		r := &recorder{result: true}
		cmds := allCommands()
		for _, cmd := range cmds {
			_, err := cmd.Handle(r)
			require.NoError(t, err)
		}
		assert.Len(t, r.calls, len(cmds))
	})

	t.Run("returns_handler_result_unchanged", func(t *testing.T) {
		r := &recorder{result: false}
		ok, err := (&NodeCommand{}).Handle(r)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("propagates_handler_error_unchanged", func(t *testing.T) {
		boom := errors.New("boom")
		r := &recorder{err: boom}
		_, err := (&RelationshipCommand{}).Handle(r)
		assert.Same(t, boom, err)
	})
}

func TestAdapter(t *testing.T) {
	for _, cmd := range allCommands() {
		ok, err := cmd.Handle(Adapter{})
		require.NoError(t, err)
		assert.True(t, ok, "kind %s", cmd.Kind())
	}
	assert.NoError(t, Adapter{}.Apply())
	assert.NoError(t, Adapter{}.Close())
}

func TestKind(t *testing.T) {
	t.Run("names_round_trip", func(t *testing.T) {
		for _, k := range Kinds() {
			parsed, ok := ParseKind(k.String())
			require.True(t, ok, k.String())
			assert.Equal(t, k, parsed)
		}
	})

	t.Run("covers_every_command", func(t *testing.T) {
		assert.Len(t, Kinds(), len(allCommands()))
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Equal(t, "unknown", Kind(0).String())
		_, ok := ParseKind("bogus")
		assert.False(t, ok)
	})
}

package applier

import (
	"errors"
	"fmt"

	"github.com/orneryd/nornicapply/pkg/command"
	"github.com/orneryd/nornicapply/pkg/labels"
	"github.com/orneryd/nornicapply/pkg/storage"
)

// ErrMalformedCommand is returned when a command lacks the record it must
// carry.
var ErrMalformedCommand = errors.New("applier: malformed command")

// RecordWriter is the part of the record store the StoreApplier writes to.
type RecordWriter interface {
	Write(fn func(*storage.Batch) error) error
}

// StoreApplier writes the after-images of a transaction's record commands to
// the record store in one write. Index commands are ignored.
type StoreApplier struct {
	command.Adapter

	store   RecordWriter
	pending []func(*storage.Batch) error
	applied bool
}

// NewStoreApplier creates a store applier writing to store.
func NewStoreApplier(store RecordWriter) *StoreApplier {
	return &StoreApplier{store: store}
}

func (a *StoreApplier) stage(op func(*storage.Batch) error) (bool, error) {
	a.pending = append(a.pending, op)
	return true, nil
}

func (a *StoreApplier) VisitNodeCommand(c *command.NodeCommand) (bool, error) {
	after := c.After
	if after == nil {
		return false, fmt.Errorf("%w: node command without after-image", ErrMalformedCommand)
	}
	var staleDynamic int64 = command.NoID
	if c.Before != nil {
		if id, ok := labels.DynamicRecordID(c.Before.LabelField); ok {
			staleDynamic = id
		}
	}
	dynamicID, dynamic := labels.DynamicRecordID(after.LabelField)
	if !after.InUse {
		dynamic = false
	}
	if dynamic && dynamicID == staleDynamic {
		staleDynamic = command.NoID
	}

	rec := *after
	rec.DynamicLabels = nil
	dynamicLabels := after.DynamicLabels

	return a.stage(func(b *storage.Batch) error {
		if staleDynamic != command.NoID {
			if err := b.DeleteDynamicLabels(staleDynamic); err != nil {
				return err
			}
		}
		if !rec.InUse {
			return b.DeleteNode(rec.ID)
		}
		if dynamic && dynamicLabels != nil {
			if err := b.PutDynamicLabels(dynamicID, dynamicLabels); err != nil {
				return err
			}
		}
		return b.PutNode(&rec)
	})
}

func (a *StoreApplier) VisitRelationshipCommand(c *command.RelationshipCommand) (bool, error) {
	if c.Record == nil {
		return false, fmt.Errorf("%w: relationship command without record", ErrMalformedCommand)
	}
	rec := *c.Record
	return a.stage(func(b *storage.Batch) error {
		if !rec.InUse {
			return b.DeleteRelationship(rec.ID)
		}
		return b.PutRelationship(&rec)
	})
}

func (a *StoreApplier) VisitRelationshipGroupCommand(c *command.RelationshipGroupCommand) (bool, error) {
	if c.After == nil {
		return false, fmt.Errorf("%w: relationship group command without after-image", ErrMalformedCommand)
	}
	rec := *c.After
	return a.stage(func(b *storage.Batch) error {
		if !rec.InUse {
			return b.DeleteRelationshipGroup(rec.ID)
		}
		return b.PutRelationshipGroup(&rec)
	})
}

func (a *StoreApplier) VisitPropertyCommand(c *command.PropertyCommand) (bool, error) {
	if c.After == nil {
		return false, fmt.Errorf("%w: property command without after-image", ErrMalformedCommand)
	}
	rec := *c.After
	return a.stage(func(b *storage.Batch) error {
		if !rec.InUse {
			return b.DeleteProperty(rec.ID)
		}
		return b.PutProperty(&rec)
	})
}

func (a *StoreApplier) token(kind command.Kind, r *command.TokenRecord) (bool, error) {
	if r == nil {
		return false, fmt.Errorf("%w: %s command without record", ErrMalformedCommand, kind)
	}
	rec := *r
	return a.stage(func(b *storage.Batch) error {
		return b.PutToken(kind, &rec)
	})
}

func (a *StoreApplier) VisitPropertyKeyTokenCommand(c *command.PropertyKeyTokenCommand) (bool, error) {
	return a.token(command.KindPropertyKeyToken, c.Record)
}

func (a *StoreApplier) VisitRelationshipTypeTokenCommand(c *command.RelationshipTypeTokenCommand) (bool, error) {
	return a.token(command.KindRelationshipTypeToken, c.Record)
}

func (a *StoreApplier) VisitLabelTokenCommand(c *command.LabelTokenCommand) (bool, error) {
	return a.token(command.KindLabelToken, c.Record)
}

func (a *StoreApplier) VisitSchemaRuleCommand(c *command.SchemaRuleCommand) (bool, error) {
	if c.After == nil {
		return false, fmt.Errorf("%w: schema rule command without after-image", ErrMalformedCommand)
	}
	rec := *c.After
	return a.stage(func(b *storage.Batch) error {
		if !rec.InUse {
			return b.DeleteSchemaRule(rec.ID)
		}
		return b.PutSchemaRule(&rec)
	})
}

func (a *StoreApplier) VisitNeoStoreCommand(c *command.NeoStoreCommand) (bool, error) {
	if c.Record == nil {
		return false, fmt.Errorf("%w: neostore command without record", ErrMalformedCommand)
	}
	rec := *c.Record
	return a.stage(func(b *storage.Batch) error {
		return b.PutNeoStore(&rec)
	})
}

// Apply writes every staged record in visit order, in one store write.
func (a *StoreApplier) Apply() error {
	if a.applied {
		return ErrAlreadyApplied
	}
	a.applied = true
	if len(a.pending) == 0 {
		return nil
	}
	return a.store.Write(func(b *storage.Batch) error {
		for _, op := range a.pending {
			if err := op(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close drops staged writes.
func (a *StoreApplier) Close() error {
	a.pending = nil
	return nil
}

// Pending returns the number of staged record writes.
func (a *StoreApplier) Pending() int { return len(a.pending) }

var _ command.Handler = (*StoreApplier)(nil)

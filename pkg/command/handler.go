package command

// Handler consumes the commands of one transaction.
//
// Each Visit method receives the commands of one variant and reports whether
// the handler accepted it. A false result is advisory; an error means the
// command could not be interpreted and the transaction must be abandoned.
//
// After every command was visited, Apply commits whatever the handler
// accumulated and Close releases its resources. Close is called even when
// Apply failed or was never called.
//
// Handlers hold per-transaction state and are not safe for concurrent use.
type Handler interface {
	VisitNodeCommand(c *NodeCommand) (bool, error)
	VisitRelationshipCommand(c *RelationshipCommand) (bool, error)
	VisitRelationshipGroupCommand(c *RelationshipGroupCommand) (bool, error)
	VisitPropertyCommand(c *PropertyCommand) (bool, error)
	VisitPropertyKeyTokenCommand(c *PropertyKeyTokenCommand) (bool, error)
	VisitRelationshipTypeTokenCommand(c *RelationshipTypeTokenCommand) (bool, error)
	VisitLabelTokenCommand(c *LabelTokenCommand) (bool, error)
	VisitSchemaRuleCommand(c *SchemaRuleCommand) (bool, error)
	VisitNeoStoreCommand(c *NeoStoreCommand) (bool, error)
	VisitIndexAddNodeCommand(c *IndexAddNodeCommand) (bool, error)
	VisitIndexAddRelationshipCommand(c *IndexAddRelationshipCommand) (bool, error)
	VisitIndexCreateCommand(c *IndexCreateCommand) (bool, error)
	VisitIndexDeleteCommand(c *IndexDeleteCommand) (bool, error)
	VisitIndexRemoveCommand(c *IndexRemoveCommand) (bool, error)
	VisitIndexDefineCommand(c *IndexDefineCommand) (bool, error)

	Apply() error
	Close() error
}

// Adapter is a Handler that accepts every command and does nothing.
//
// Embed it to implement only the variants a handler is interested in:
//
//	type labelWatcher struct {
//		command.Adapter
//		seen int
//	}
//
//	func (w *labelWatcher) VisitLabelTokenCommand(c *command.LabelTokenCommand) (bool, error) {
//		w.seen++
//		return true, nil
//	}
type Adapter struct{}

func (Adapter) VisitNodeCommand(*NodeCommand) (bool, error) { return true, nil }
func (Adapter) VisitRelationshipCommand(*RelationshipCommand) (bool, error) { return true, nil }
func (Adapter) VisitPropertyCommand(*PropertyCommand) (bool, error) { return true, nil }
func (Adapter) VisitLabelTokenCommand(*LabelTokenCommand) (bool, error) { return true, nil }
func (Adapter) VisitSchemaRuleCommand(*SchemaRuleCommand) (bool, error) { return true, nil }
func (Adapter) VisitNeoStoreCommand(*NeoStoreCommand) (bool, error) { return true, nil }
func (Adapter) VisitIndexAddNodeCommand(*IndexAddNodeCommand) (bool, error) { return true, nil }
func (Adapter) VisitIndexCreateCommand(*IndexCreateCommand) (bool, error) { return true, nil }
func (Adapter) VisitIndexDeleteCommand(*IndexDeleteCommand) (bool, error) { return true, nil }
func (Adapter) VisitIndexRemoveCommand(*IndexRemoveCommand) (bool, error) { return true, nil }
func (Adapter) VisitIndexDefineCommand(*IndexDefineCommand) (bool, error) { return true, nil }
func (Adapter) VisitPropertyKeyTokenCommand(*PropertyKeyTokenCommand) (bool, error) {
	return true, nil
}
func (Adapter) VisitRelationshipGroupCommand(*RelationshipGroupCommand) (bool, error) {
	return true, nil
}
func (Adapter) VisitRelationshipTypeTokenCommand(*RelationshipTypeTokenCommand) (bool, error) {
	return true, nil
}
func (Adapter) VisitIndexAddRelationshipCommand(*IndexAddRelationshipCommand) (bool, error) {
	return true, nil
}

// Apply does nothing.
func (Adapter) Apply() error { return nil }

// Close does nothing.
func (Adapter) Close() error { return nil }

var _ Handler = Adapter{}

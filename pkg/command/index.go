package command

// IndexEntry is the common payload of legacy (explicit) index commands.
//
// IndexNameID and KeyID refer to the ids assigned by the IndexDefineCommand of
// the same transaction.
type IndexEntry struct {
	IndexNameID int32       `json:"index_name_id"`
	Entity      IndexEntity `json:"entity"`
	EntityID    int64       `json:"entity_id"`
	KeyID       int32       `json:"key_id"`
	Value       any         `json:"value,omitempty"`
}

// IndexAddNodeCommand adds a node to a legacy index.
type IndexAddNodeCommand struct {
	Entry IndexEntry `json:"entry"`
}

func (c *IndexAddNodeCommand) Kind() Kind { return KindIndexAddNode }

func (c *IndexAddNodeCommand) Handle(h Handler) (bool, error) {
	return h.VisitIndexAddNodeCommand(c)
}

// IndexAddRelationshipCommand adds a relationship to a legacy index.
type IndexAddRelationshipCommand struct {
	Entry     IndexEntry `json:"entry"`
	StartNode int64      `json:"start_node"`
	EndNode   int64      `json:"end_node"`
}

func (c *IndexAddRelationshipCommand) Kind() Kind { return KindIndexAddRelationship }

func (c *IndexAddRelationshipCommand) Handle(h Handler) (bool, error) {
	return h.VisitIndexAddRelationshipCommand(c)
}

// IndexCreateCommand creates a legacy index with the given configuration.
type IndexCreateCommand struct {
	Entry  IndexEntry        `json:"entry"`
	Config map[string]string `json:"config,omitempty"`
}

func (c *IndexCreateCommand) Kind() Kind { return KindIndexCreate }

func (c *IndexCreateCommand) Handle(h Handler) (bool, error) {
	return h.VisitIndexCreateCommand(c)
}

// IndexDeleteCommand drops a whole legacy index.
type IndexDeleteCommand struct {
	Entry IndexEntry `json:"entry"`
}

func (c *IndexDeleteCommand) Kind() Kind { return KindIndexDelete }

func (c *IndexDeleteCommand) Handle(h Handler) (bool, error) {
	return h.VisitIndexDeleteCommand(c)
}

// IndexRemoveCommand removes an entity (optionally for one key/value) from a
// legacy index.
type IndexRemoveCommand struct {
	Entry IndexEntry `json:"entry"`
}

func (c *IndexRemoveCommand) Kind() Kind { return KindIndexRemove }

func (c *IndexRemoveCommand) Handle(h Handler) (bool, error) {
	return h.VisitIndexRemoveCommand(c)
}

// IndexDefineCommand assigns ids to the index names and keys used by the
// index commands of the same transaction.
type IndexDefineCommand struct {
	IndexNames map[string]int32 `json:"index_names"`
	Keys       map[string]int32 `json:"keys"`
}

func (c *IndexDefineCommand) Kind() Kind { return KindIndexDefine }

func (c *IndexDefineCommand) Handle(h Handler) (bool, error) {
	return h.VisitIndexDefineCommand(c)
}

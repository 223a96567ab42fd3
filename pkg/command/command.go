// Package command defines the mutation commands of a committed transaction and
// the Handler capability that consumes them.
//
// A transaction is a sequence of commands decoded from the transaction log.
// Each command is an immutable record of exactly one mutation. Commands are not
// interpreted by whoever feeds them; instead every command routes itself to the
// one Handler method that knows its variant:
//
//	for _, cmd := range tx.Commands {
//		ok, err := cmd.Handle(handler)
//		if err != nil {
//			return err
//		}
//		if !ok {
//			vetoed++
//		}
//	}
//
// New handlers are added by implementing Handler (usually by embedding Adapter
// and overriding the variants of interest). New command variants are added by
// extending Kind, Handle and Handler together.
package command

// Kind is the variant tag of a command.
type Kind uint8

const (
	KindNode Kind = iota + 1
	KindRelationship
	KindRelationshipGroup
	KindProperty
	KindPropertyKeyToken
	KindRelationshipTypeToken
	KindLabelToken
	KindSchemaRule
	KindNeoStore
	KindIndexAddNode
	KindIndexAddRelationship
	KindIndexCreate
	KindIndexDelete
	KindIndexRemove
	KindIndexDefine
)

var kindNames = map[Kind]string{
	KindNode:                  "node",
	KindRelationship:          "relationship",
	KindRelationshipGroup:     "relationship_group",
	KindProperty:              "property",
	KindPropertyKeyToken:      "property_key_token",
	KindRelationshipTypeToken: "relationship_type_token",
	KindLabelToken:            "label_token",
	KindSchemaRule:            "schema_rule",
	KindNeoStore:              "neostore",
	KindIndexAddNode:          "index_add_node",
	KindIndexAddRelationship:  "index_add_relationship",
	KindIndexCreate:           "index_create",
	KindIndexDelete:           "index_delete",
	KindIndexRemove:           "index_remove",
	KindIndexDefine:           "index_define",
}

// String returns the stable name of the kind, as written to the transaction log.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Kinds returns every command kind in tag order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := KindNode; k <= KindIndexDefine; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Command is one mutation of a committed transaction.
//
// Handle invokes the Handler method matching the command's variant and returns
// that method's result unchanged. It never fails on its own.
type Command interface {
	Kind() Kind
	Handle(h Handler) (bool, error)
}

// NodeCommand carries the before and after images of a node record.
type NodeCommand struct {
	Before *NodeRecord `json:"before,omitempty"`
	After  *NodeRecord `json:"after,omitempty"`
}

func (c *NodeCommand) Kind() Kind { return KindNode }

func (c *NodeCommand) Handle(h Handler) (bool, error) { return h.VisitNodeCommand(c) }

// RelationshipCommand carries the after image of a relationship record.
type RelationshipCommand struct {
	Record *RelationshipRecord `json:"record"`
}

func (c *RelationshipCommand) Kind() Kind { return KindRelationship }

func (c *RelationshipCommand) Handle(h Handler) (bool, error) {
	return h.VisitRelationshipCommand(c)
}

// RelationshipGroupCommand carries a relationship group record change.
type RelationshipGroupCommand struct {
	Before *RelationshipGroupRecord `json:"before,omitempty"`
	After  *RelationshipGroupRecord `json:"after,omitempty"`
}

func (c *RelationshipGroupCommand) Kind() Kind { return KindRelationshipGroup }

func (c *RelationshipGroupCommand) Handle(h Handler) (bool, error) {
	return h.VisitRelationshipGroupCommand(c)
}

// PropertyCommand carries a property record change.
type PropertyCommand struct {
	Before *PropertyRecord `json:"before,omitempty"`
	After  *PropertyRecord `json:"after,omitempty"`
}

func (c *PropertyCommand) Kind() Kind { return KindProperty }

func (c *PropertyCommand) Handle(h Handler) (bool, error) { return h.VisitPropertyCommand(c) }

// PropertyKeyTokenCommand creates or changes a property key token.
type PropertyKeyTokenCommand struct {
	Record *TokenRecord `json:"record"`
}

func (c *PropertyKeyTokenCommand) Kind() Kind { return KindPropertyKeyToken }

func (c *PropertyKeyTokenCommand) Handle(h Handler) (bool, error) {
	return h.VisitPropertyKeyTokenCommand(c)
}

// RelationshipTypeTokenCommand creates or changes a relationship type token.
type RelationshipTypeTokenCommand struct {
	Record *TokenRecord `json:"record"`
}

func (c *RelationshipTypeTokenCommand) Kind() Kind { return KindRelationshipTypeToken }

func (c *RelationshipTypeTokenCommand) Handle(h Handler) (bool, error) {
	return h.VisitRelationshipTypeTokenCommand(c)
}

// LabelTokenCommand creates or changes a label token.
type LabelTokenCommand struct {
	Record *TokenRecord `json:"record"`
}

func (c *LabelTokenCommand) Kind() Kind { return KindLabelToken }

func (c *LabelTokenCommand) Handle(h Handler) (bool, error) { return h.VisitLabelTokenCommand(c) }

// SchemaRuleCommand creates, changes or drops a schema rule.
type SchemaRuleCommand struct {
	Before *SchemaRecord `json:"before,omitempty"`
	After  *SchemaRecord `json:"after,omitempty"`
}

func (c *SchemaRuleCommand) Kind() Kind { return KindSchemaRule }

func (c *SchemaRuleCommand) Handle(h Handler) (bool, error) { return h.VisitSchemaRuleCommand(c) }

// NeoStoreCommand changes store-wide metadata.
type NeoStoreCommand struct {
	Record *NeoStoreRecord `json:"record"`
}

func (c *NeoStoreCommand) Kind() Kind { return KindNeoStore }

func (c *NeoStoreCommand) Handle(h Handler) (bool, error) { return h.VisitNeoStoreCommand(c) }

// Package command - Record snapshots carried by transaction commands.
package command

// NoID marks an unset record pointer (end of a chain, no property, no group).
const NoID int64 = -1

// NodeRecord is a snapshot of one node record, either before or after a
// mutation.
//
// LabelField is the packed label encoding stored in the node record. When the
// field points at a dynamic label record, DynamicLabels carries the label ids
// that the transaction loaded for it (nil when they were not loaded and must be
// read from the store).
type NodeRecord struct {
	ID            int64   `json:"id"`
	InUse         bool    `json:"in_use"`
	LabelField    uint64  `json:"label_field"`
	NextProp      int64   `json:"next_prop"`
	NextRel       int64   `json:"next_rel"`
	Dense         bool    `json:"dense,omitempty"`
	DynamicLabels []int64 `json:"dynamic_labels,omitempty"`
}

// RelationshipRecord is the after-image of one relationship record.
//
// Created is set when the relationship was created by the transaction that
// produced the command. A record that is in use and not created was only
// updated (properties or chain pointers).
type RelationshipRecord struct {
	ID                 int64 `json:"id"`
	InUse              bool  `json:"in_use"`
	Created            bool  `json:"created,omitempty"`
	Type               int64 `json:"type"`
	FirstNode          int64 `json:"first_node"`
	SecondNode         int64 `json:"second_node"`
	FirstPrev          int64 `json:"first_prev"`
	FirstNext          int64 `json:"first_next"`
	SecondPrev         int64 `json:"second_prev"`
	SecondNext         int64 `json:"second_next"`
	NextProp           int64 `json:"next_prop"`
	FirstInFirstChain  bool  `json:"first_in_first_chain,omitempty"`
	FirstInSecondChain bool  `json:"first_in_second_chain,omitempty"`
}

// RelationshipGroupRecord groups the relationships of a dense node by type.
type RelationshipGroupRecord struct {
	ID        int64 `json:"id"`
	InUse     bool  `json:"in_use"`
	Type      int64 `json:"type"`
	Next      int64 `json:"next"`
	FirstOut  int64 `json:"first_out"`
	FirstIn   int64 `json:"first_in"`
	FirstLoop int64 `json:"first_loop"`
	Owner     int64 `json:"owner"`
}

// PropertyRecord holds a block of encoded property values for one entity.
// Blocks is opaque to the applier.
type PropertyRecord struct {
	ID             int64  `json:"id"`
	InUse          bool   `json:"in_use"`
	NodeID         int64  `json:"node_id"`
	RelationshipID int64  `json:"relationship_id"`
	PrevProp       int64  `json:"prev_prop"`
	NextProp       int64  `json:"next_prop"`
	Blocks         []byte `json:"blocks,omitempty"`
}

// TokenRecord names a label, relationship type or property key.
type TokenRecord struct {
	ID    int64  `json:"id"`
	InUse bool   `json:"in_use"`
	Name  string `json:"name"`
}

// SchemaRecord is the serialized form of a schema rule (index or constraint).
type SchemaRecord struct {
	ID          int64  `json:"id"`
	InUse       bool   `json:"in_use"`
	Kind        string `json:"kind"`
	Label       int64  `json:"label"`
	PropertyKey int64  `json:"property_key"`
	Data        []byte `json:"data,omitempty"`
}

// NeoStoreRecord holds store-wide metadata touched by a transaction.
type NeoStoreRecord struct {
	ID       int64 `json:"id"`
	InUse    bool  `json:"in_use"`
	NextProp int64 `json:"next_prop"`
}

// IndexEntity identifies which kind of entity a legacy index entry refers to.
type IndexEntity byte

const (
	IndexEntityNode         IndexEntity = 0
	IndexEntityRelationship IndexEntity = 1
)

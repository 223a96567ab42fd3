package txlog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/orneryd/nornicapply/pkg/command"
)

// Envelope is the logged form of one command.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Transaction is a decoded log entry.
type Transaction struct {
	Sequence  uint64
	Timestamp time.Time
	Commands  []command.Command
}

// newCommand returns an empty command of kind.
func newCommand(kind command.Kind) (command.Command, bool) {
	switch kind {
	case command.KindNode:
		return &command.NodeCommand{}, true
	case command.KindRelationship:
		return &command.RelationshipCommand{}, true
	case command.KindRelationshipGroup:
		return &command.RelationshipGroupCommand{}, true
	case command.KindProperty:
		return &command.PropertyCommand{}, true
	case command.KindPropertyKeyToken:
		return &command.PropertyKeyTokenCommand{}, true
	case command.KindRelationshipTypeToken:
		return &command.RelationshipTypeTokenCommand{}, true
	case command.KindLabelToken:
		return &command.LabelTokenCommand{}, true
	case command.KindSchemaRule:
		return &command.SchemaRuleCommand{}, true
	case command.KindNeoStore:
		return &command.NeoStoreCommand{}, true
	case command.KindIndexAddNode:
		return &command.IndexAddNodeCommand{}, true
	case command.KindIndexAddRelationship:
		return &command.IndexAddRelationshipCommand{}, true
	case command.KindIndexCreate:
		return &command.IndexCreateCommand{}, true
	case command.KindIndexDelete:
		return &command.IndexDeleteCommand{}, true
	case command.KindIndexRemove:
		return &command.IndexRemoveCommand{}, true
	case command.KindIndexDefine:
		return &command.IndexDefineCommand{}, true
	}
	return nil, false
}

// EncodeCommand wraps cmd in an envelope.
func EncodeCommand(cmd command.Command) (Envelope, error) {
	if cmd == nil {
		return Envelope{}, fmt.Errorf("txlog: nil command")
	}
	if _, ok := newCommand(cmd.Kind()); !ok {
		return Envelope{}, fmt.Errorf("%w: %d", ErrUnknownKind, cmd.Kind())
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return Envelope{}, fmt.Errorf("txlog: failed to marshal %s command: %w", cmd.Kind(), err)
	}
	return Envelope{Kind: cmd.Kind().String(), Payload: payload}, nil
}

// DecodeCommand restores the command held by env.
func DecodeCommand(env Envelope) (command.Command, error) {
	kind, ok := command.ParseKind(env.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	cmd, _ := newCommand(kind)
	if err := json.Unmarshal(env.Payload, cmd); err != nil {
		return nil, fmt.Errorf("txlog: failed to unmarshal %s command: %w", kind, err)
	}
	return cmd, nil
}

func decodeEntry(e Entry) (Transaction, error) {
	tx := Transaction{
		Sequence:  e.Sequence,
		Timestamp: e.Timestamp,
		Commands:  make([]command.Command, len(e.Commands)),
	}
	for i, env := range e.Commands {
		cmd, err := DecodeCommand(env)
		if err != nil {
			return Transaction{}, fmt.Errorf("seq %d command %d: %w", e.Sequence, i, err)
		}
		tx.Commands[i] = cmd
	}
	return tx, nil
}

// ReadTransactions reads every valid transaction from the log file at path.
// Unreadable, corrupted or undecodable entries are logged and skipped.
func ReadTransactions(path string, log zerolog.Logger) ([]Transaction, error) {
	return ReadTransactionsAfter(path, 0, log)
}

// ReadTransactionsAfter reads the valid transactions with a sequence number
// greater than afterSeq.
func ReadTransactionsAfter(path string, afterSeq uint64, log zerolog.Logger) ([]Transaction, error) {
	var txs []Transaction
	_, err := scan(path, log, func(e Entry) {
		if e.Sequence <= afterSeq {
			return
		}
		tx, err := decodeEntry(e)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping undecodable txlog entry")
			return
		}
		txs = append(txs, tx)
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("txlog: failed to open: %w", err)
		}
		return nil, err
	}
	return txs, nil
}

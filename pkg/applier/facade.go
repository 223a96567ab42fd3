// Package applier applies the commands of one committed transaction to the
// stores that depend on them.
//
// A Facade fans every command out to an ordered list of command handlers and
// then completes them in two phases: commit (Apply on every handler, in reverse
// registration order, stopping at the first failure) and release (Close on
// every handler, in reverse registration order, always). Handlers are
// transaction-scoped: build a new Facade and new handlers for each
// transaction.
//
// Handlers provided here:
//   - StoreApplier: writes record after-images into the record store
//   - CountsApplier: accumulates node/relationship count deltas and commits
//     them to a counts store in one atomic update
//   - MetricsHandler: counts visited commands and applied transactions;
//     registered first so that it commits last
//
// Example:
//
//	f := applier.NewFacade(
//		applier.NewStoreApplier(records),
//		applier.NewCountsApplier(countsStore, records),
//	).WithLogger(log)
//
//	result, err := applier.ApplyTransaction(f, cmds)
//	if err != nil {
//		var commitErr *applier.CommitError
//		if errors.As(err, &commitErr) {
//			// transaction not durably applied
//		}
//		return err
//	}
//
// Thread Safety:
//
//	A Facade and its handlers are used by one goroutine for one transaction.
//	Shared stores behind the handlers serialise concurrent commits themselves.
package applier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/orneryd/nornicapply/pkg/command"
)

var (
	// ErrContractViolation is the panic value (wrapped) for misuse of a Facade:
	// calling Apply directly, visiting after completion, or completing twice.
	ErrContractViolation = errors.New("applier: contract violation")

	// ErrNilCommand is returned when a nil command is visited.
	ErrNilCommand = errors.New("applier: nil command")

	// ErrAlreadyApplied is returned by a second Apply on a handler.
	ErrAlreadyApplied = errors.New("applier: handler already applied")
)

// CommitError reports a handler whose Apply failed. Release still ran for all
// handlers; release failures during that pass are kept in Suppressed.
type CommitError struct {
	// Handler is the registration index of the failing handler.
	Handler    int
	Err        error
	Suppressed []error
}

func (e *CommitError) Error() string {
	msg := fmt.Sprintf("applier: commit failed in handler %d: %v", e.Handler, e.Err)
	if n := len(e.Suppressed); n > 0 {
		msg += fmt.Sprintf(" (%d release errors suppressed)", n)
	}
	return msg
}

func (e *CommitError) Unwrap() error { return e.Err }

// ReleaseError reports handlers whose Close failed when no commit error
// occurred.
type ReleaseError struct {
	Errs []error
}

func (e *ReleaseError) Error() string {
	parts := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		parts[i] = err.Error()
	}
	return "applier: release failed: " + strings.Join(parts, "; ")
}

func (e *ReleaseError) Unwrap() []error { return e.Errs }

// Facade is a command.Handler that fans out to a fixed, ordered list of
// handlers and orchestrates their completion.
type Facade struct {
	handlers []command.Handler
	log      zerolog.Logger
	closed   bool
}

// NewFacade creates a facade over handlers. Registration order is fixed here:
// visits run in this order, commit and release in the reverse.
func NewFacade(handlers ...command.Handler) *Facade {
	for i, h := range handlers {
		if h == nil {
			panic(fmt.Errorf("%w: handler %d is nil", ErrContractViolation, i))
		}
	}
	return &Facade{
		handlers: append([]command.Handler(nil), handlers...),
		log:      zerolog.Nop(),
	}
}

// WithLogger sets the logger used to report suppressed release errors.
func (f *Facade) WithLogger(log zerolog.Logger) *Facade {
	f.log = log
	return f
}

// Len returns the number of registered handlers.
func (f *Facade) Len() int { return len(f.handlers) }

// Visit dispatches cmd to the matching Visit method.
func (f *Facade) Visit(cmd command.Command) (bool, error) {
	f.checkOpen()
	if cmd == nil {
		return false, ErrNilCommand
	}
	return cmd.Handle(f)
}

// fanOut calls visit on every handler in order. The result is the conjunction
// of all results; a false never skips later handlers, an error does.
func (f *Facade) fanOut(visit func(command.Handler) (bool, error)) (bool, error) {
	f.checkOpen()
	result := true
	for _, h := range f.handlers {
		ok, err := visit(h)
		if err != nil {
			return false, err
		}
		result = result && ok
	}
	return result, nil
}

func (f *Facade) VisitNodeCommand(c *command.NodeCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitNodeCommand(c) })
}

func (f *Facade) VisitRelationshipCommand(c *command.RelationshipCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitRelationshipCommand(c) })
}

func (f *Facade) VisitRelationshipGroupCommand(c *command.RelationshipGroupCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitRelationshipGroupCommand(c) })
}

func (f *Facade) VisitPropertyCommand(c *command.PropertyCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitPropertyCommand(c) })
}

func (f *Facade) VisitPropertyKeyTokenCommand(c *command.PropertyKeyTokenCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitPropertyKeyTokenCommand(c) })
}

func (f *Facade) VisitRelationshipTypeTokenCommand(c *command.RelationshipTypeTokenCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitRelationshipTypeTokenCommand(c) })
}

func (f *Facade) VisitLabelTokenCommand(c *command.LabelTokenCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitLabelTokenCommand(c) })
}

func (f *Facade) VisitSchemaRuleCommand(c *command.SchemaRuleCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitSchemaRuleCommand(c) })
}

func (f *Facade) VisitNeoStoreCommand(c *command.NeoStoreCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitNeoStoreCommand(c) })
}

func (f *Facade) VisitIndexAddNodeCommand(c *command.IndexAddNodeCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitIndexAddNodeCommand(c) })
}

func (f *Facade) VisitIndexAddRelationshipCommand(c *command.IndexAddRelationshipCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitIndexAddRelationshipCommand(c) })
}

func (f *Facade) VisitIndexCreateCommand(c *command.IndexCreateCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitIndexCreateCommand(c) })
}

func (f *Facade) VisitIndexDeleteCommand(c *command.IndexDeleteCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitIndexDeleteCommand(c) })
}

func (f *Facade) VisitIndexRemoveCommand(c *command.IndexRemoveCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitIndexRemoveCommand(c) })
}

func (f *Facade) VisitIndexDefineCommand(c *command.IndexDefineCommand) (bool, error) {
	return f.fanOut(func(h command.Handler) (bool, error) { return h.VisitIndexDefineCommand(c) })
}

// Apply is reserved. The facade commits its handlers from Close; calling
// Apply directly panics.
func (f *Facade) Apply() error {
	panic(fmt.Errorf("%w: Apply called on facade, use Close", ErrContractViolation))
}

// Close completes the transaction.
//
// Commit phase: Apply on each handler in reverse registration order, stopping
// at the first error. Release phase: Close on each handler in reverse
// registration order, always, including when a handler panics during commit.
//
// Returns *CommitError if a commit failed (release errors attached as
// Suppressed and logged), *ReleaseError if only release failed, nil otherwise.
func (f *Facade) Close() (err error) {
	f.markClosed()

	var commitErr *CommitError
	defer func() {
		releaseErrs := f.release()
		if commitErr != nil {
			for _, re := range releaseErrs {
				f.log.Error().Err(re).Int("commit_handler", commitErr.Handler).
					Msg("handler release failed after commit error")
			}
			commitErr.Suppressed = releaseErrs
			err = commitErr
			return
		}
		if len(releaseErrs) > 0 {
			err = &ReleaseError{Errs: releaseErrs}
		}
	}()

	for i := len(f.handlers) - 1; i >= 0; i-- {
		if applyErr := f.handlers[i].Apply(); applyErr != nil {
			commitErr = &CommitError{Handler: i, Err: applyErr}
			return commitErr
		}
	}
	return nil
}

// Abort releases every handler without committing. Used when a visit failed
// and the transaction is abandoned.
func (f *Facade) Abort() error {
	f.markClosed()
	if errs := f.release(); len(errs) > 0 {
		return &ReleaseError{Errs: errs}
	}
	return nil
}

func (f *Facade) release() []error {
	var errs []error
	for i := len(f.handlers) - 1; i >= 0; i-- {
		if err := f.handlers[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("handler %d: %w", i, err))
		}
	}
	return errs
}

func (f *Facade) checkOpen() {
	if f.closed {
		panic(fmt.Errorf("%w: visit after close", ErrContractViolation))
	}
}

func (f *Facade) markClosed() {
	if f.closed {
		panic(fmt.Errorf("%w: facade closed twice", ErrContractViolation))
	}
	f.closed = true
}

var _ command.Handler = (*Facade)(nil)

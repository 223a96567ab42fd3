package applier

import (
	"github.com/orneryd/nornicapply/pkg/command"
)

// Result summarises one applied transaction.
type Result struct {
	// Commands is the number of commands visited.
	Commands int
	// Vetoed is the number of commands for which at least one handler
	// returned false.
	Vetoed int
}

// ApplyTransaction feeds cmds to f in order and completes f.
//
// A false visit result is counted in Result.Vetoed; feeding continues so that
// every handler sees every command. A visit error abandons the transaction:
// handlers are released without commit and the visit error is returned, with
// any release error logged. Otherwise the result of f.Close is returned.
func ApplyTransaction(f *Facade, cmds []command.Command) (Result, error) {
	var res Result
	for _, cmd := range cmds {
		ok, err := f.Visit(cmd)
		if err != nil {
			if abortErr := f.Abort(); abortErr != nil {
				f.log.Error().Err(abortErr).Msg("handler release failed after visit error")
			}
			return res, err
		}
		res.Commands++
		if !ok {
			res.Vetoed++
		}
	}
	return res, f.Close()
}

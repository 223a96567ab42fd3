// Package engine ties the applier to its stores.
//
// An Engine owns the record store, the counts store, the transaction log and
// the metrics registry. Every call to Apply builds a fresh facade over
// transaction-scoped handlers:
//
//	[MetricsHandler (if metrics enabled), StoreApplier, CountsApplier (if counts enabled)]
//
// so that, with commit running in reverse registration order, counts are
// committed before record after-images and a transaction is only counted in
// the metrics once both have committed. A transaction is appended to the
// transaction log only after its commit succeeded.
//
// Example:
//
//	cfg := config.LoadFromEnv()
//	eng, err := engine.Open(cfg, log)
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//
//	result, err := eng.Apply(cmds)
//	total, _ := eng.Counts().NodeCount(counts.AnyLabel)
package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/orneryd/nornicapply/pkg/applier"
	"github.com/orneryd/nornicapply/pkg/command"
	"github.com/orneryd/nornicapply/pkg/config"
	"github.com/orneryd/nornicapply/pkg/counts"
	"github.com/orneryd/nornicapply/pkg/logging"
	"github.com/orneryd/nornicapply/pkg/storage"
	"github.com/orneryd/nornicapply/pkg/txlog"
)

var ErrClosed = errors.New("engine: closed")

// Engine applies transactions to the stores it owns. Safe for concurrent use;
// transactions are applied one at a time.
type Engine struct {
	cfg *config.Config
	log zerolog.Logger

	records  *storage.RecordStore
	counts   counts.Store
	txlog    *txlog.Writer
	registry *prometheus.Registry
	metrics  *applier.Metrics

	mu     sync.Mutex
	closed bool
}

// ReplayResult summarises a replay run.
type ReplayResult struct {
	Transactions int
	Commands     int
	// LastSequence is the sequence of the last replayed transaction, or the
	// requested start when nothing was replayed.
	LastSequence uint64
}

func resolve(dataDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dataDir, path)
}

// Open opens every store named by cfg. The transaction log is only opened for
// persistent engines with NORNICDB_TXLOG_ENABLED.
func Open(cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.LoadFromEnv()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		log:      log.With().Str("component", "engine").Logger(),
		registry: prometheus.NewRegistry(),
	}

	records, err := storage.Open(storage.Options{
		DataDir:    filepath.Join(cfg.Database.DataDir, "records"),
		InMemory:   cfg.Database.InMemory,
		SyncWrites: cfg.Database.SyncWrites,
		Logger:     logging.NewBadgerLogger(log, "records"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	e.records = records

	e.counts, err = counts.Open(cfg.Counts, cfg.Database.DataDir, cfg.Database.InMemory)
	if err != nil {
		records.Close()
		return nil, fmt.Errorf("failed to open counts store: %w", err)
	}

	if config.IsTxLogEnabled() && !cfg.Database.InMemory {
		e.txlog, err = txlog.NewWriter(resolve(cfg.Database.DataDir, cfg.TxLog.Dir), cfg.TxLog)
		if err != nil {
			e.counts.Close()
			records.Close()
			return nil, fmt.Errorf("failed to open transaction log: %w", err)
		}
	}

	e.metrics = applier.NewMetrics(cfg.Metrics.Namespace, e.registry)

	e.log.Info().
		Str("data_dir", cfg.Database.DataDir).
		Bool("in_memory", cfg.Database.InMemory).
		Str("counts_backend", cfg.Counts.Backend).
		Bool("txlog", e.txlog != nil).
		Msg("engine opened")
	return e, nil
}

// handlers returns a fresh set of transaction-scoped handlers.
func (e *Engine) handlers() []command.Handler {
	var hs []command.Handler
	if config.IsApplierMetricsEnabled() {
		hs = append(hs, applier.NewMetricsHandler(e.metrics))
	}
	hs = append(hs, applier.NewStoreApplier(e.records))
	if config.IsCountsEnabled() {
		hs = append(hs, applier.NewCountsApplier(e.counts, e.records))
	}
	return hs
}

func (e *Engine) apply(cmds []command.Command) (applier.Result, error) {
	f := applier.NewFacade(e.handlers()...).WithLogger(e.log)
	return applier.ApplyTransaction(f, cmds)
}

// Apply applies one transaction and, once it has committed, appends it to
// the transaction log.
func (e *Engine) Apply(cmds []command.Command) (applier.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return applier.Result{}, ErrClosed
	}

	result, err := e.apply(cmds)
	if err != nil {
		return result, err
	}
	if e.txlog != nil {
		seq, err := e.txlog.Append(cmds)
		if err != nil {
			return result, fmt.Errorf("transaction applied but not logged: %w", err)
		}
		e.log.Debug().Uint64("seq", seq).Int("commands", result.Commands).Msg("transaction applied")
	}
	return result, nil
}

// Replay applies the logged transactions in dir with a sequence greater than
// afterSeq. Replayed transactions are not logged again. Replay stops at the
// first transaction that fails to apply.
func (e *Engine) Replay(dir string, afterSeq uint64) (ReplayResult, error) {
	res := ReplayResult{LastSequence: afterSeq}
	txs, err := txlog.ReadTransactionsAfter(filepath.Join(dir, txlog.FileName), afterSeq, e.log)
	if err != nil {
		return res, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return res, ErrClosed
	}

	for _, tx := range txs {
		applied, err := e.apply(tx.Commands)
		if err != nil {
			return res, fmt.Errorf("replay of seq %d failed: %w", tx.Sequence, err)
		}
		res.Transactions++
		res.Commands += applied.Commands
		res.LastSequence = tx.Sequence
	}
	e.log.Info().
		Int("transactions", res.Transactions).
		Uint64("last_seq", res.LastSequence).
		Msg("replay complete")
	return res, nil
}

// Counts returns the counts store.
func (e *Engine) Counts() counts.Store { return e.counts }

// Records returns the record store.
func (e *Engine) Records() *storage.RecordStore { return e.records }

// TxLog returns the transaction log writer, nil when logging is off.
func (e *Engine) TxLog() *txlog.Writer { return e.txlog }

// Registry returns the prometheus registry holding the applier metrics.
func (e *Engine) Registry() *prometheus.Registry { return e.registry }

// Close closes the transaction log and both stores. Safe to call twice.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.txlog != nil {
		if err := e.txlog.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.counts.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.records.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

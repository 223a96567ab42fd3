// Package txlog records applied transactions so that they can be replayed.
//
// The log is a JSON-lines file (txlog.log) with one entry per transaction.
// Each entry carries a sequence number, a timestamp, the transaction's
// commands as {kind, payload} envelopes and a BLAKE2b-256 checksum of the
// envelopes. Readers skip entries that fail to parse or whose checksum does
// not match.
//
// Feature flag: NORNICDB_TXLOG_ENABLED (enabled by default)
//
// Usage:
//
//	w, err := txlog.NewWriter("./data/txlog", cfg.TxLog)
//	if err != nil {
//		return err
//	}
//	defer w.Close()
//
//	seq, err := w.Append(cmds)
//
//	// Replay after restart
//	txs, err := txlog.ReadTransactionsAfter(w.Path(), lastApplied, log)
//	for _, tx := range txs {
//		applier.ApplyTransaction(newFacade(), tx.Commands)
//	}
package txlog

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/orneryd/nornicapply/pkg/command"
	"github.com/orneryd/nornicapply/pkg/config"
)

// FileName is the name of the log file inside the log directory.
const FileName = "txlog.log"

// Sync modes
const (
	SyncImmediate = "immediate"
	SyncBatch     = "batch"
	SyncNone      = "none"
)

// maxEntrySize bounds a single log entry; larger lines are skipped.
const maxEntrySize = 64 << 20

var (
	ErrClosed      = errors.New("txlog: closed")
	ErrCorrupted   = errors.New("txlog: corrupted entry")
	ErrUnknownKind = errors.New("txlog: unknown command kind")
)

// Entry is one logged transaction.
type Entry struct {
	Sequence  uint64     `json:"seq"`
	Timestamp time.Time  `json:"ts"`
	Commands  []Envelope `json:"commands"`
	Checksum  string     `json:"checksum"`
}

// Writer appends transactions to the log. Safe for concurrent use.
type Writer struct {
	mu       sync.Mutex
	cfg      config.TxLogConfig
	path     string
	file     *os.File
	writer   *bufio.Writer
	sequence atomic.Uint64
	entries  atomic.Int64
	bytes    atomic.Int64
	closed   atomic.Bool

	syncTicker *time.Ticker
	stopSync   chan struct{}
	syncDone   chan struct{}

	totalSyncs    atomic.Int64
	lastSyncTime  atomic.Int64
	lastEntryTime atomic.Int64
}

// Stats provides observability into the log state.
type Stats struct {
	Sequence      uint64
	EntryCount    int64
	BytesWritten  int64
	TotalSyncs    int64
	LastSyncTime  time.Time
	LastEntryTime time.Time
	Closed        bool
}

// NewWriter opens (or creates) the log in dir. Sequence numbers continue from
// the last valid entry already in the file.
func NewWriter(dir string, cfg config.TxLogConfig) (*Writer, error) {
	if cfg.SyncMode == "" {
		cfg.SyncMode = SyncBatch
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("txlog: failed to create directory: %w", err)
	}

	path := filepath.Join(dir, FileName)
	var lastSeq uint64
	t, err := scan(path, zerolog.Nop(), func(e Entry) {
		lastSeq = e.Sequence
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	// Drop a torn or corrupted tail so the next entry starts on a line of
	// its own.
	if t.size > t.end {
		if err := os.Truncate(path, t.end); err != nil {
			return nil, fmt.Errorf("txlog: failed to truncate torn tail: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("txlog: failed to open file: %w", err)
	}
	if !t.terminated {
		if _, err := file.Write([]byte{'\n'}); err != nil {
			file.Close()
			return nil, fmt.Errorf("txlog: failed to terminate last entry: %w", err)
		}
	}

	w := &Writer{
		cfg:    cfg,
		path:   path,
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
	}
	w.sequence.Store(lastSeq)

	if cfg.SyncMode == SyncBatch && cfg.BatchSyncInterval > 0 {
		w.syncTicker = time.NewTicker(cfg.BatchSyncInterval)
		w.stopSync = make(chan struct{})
		w.syncDone = make(chan struct{})
		go w.batchSyncLoop()
	}
	return w, nil
}

func (w *Writer) batchSyncLoop() {
	defer close(w.syncDone)
	for {
		select {
		case <-w.syncTicker.C:
			_ = w.Sync()
		case <-w.stopSync:
			return
		}
	}
}

// Append logs one transaction and returns its sequence number.
func (w *Writer) Append(cmds []command.Command) (uint64, error) {
	if w.closed.Load() {
		return 0, ErrClosed
	}

	envelopes := make([]Envelope, len(cmds))
	for i, cmd := range cmds {
		env, err := EncodeCommand(cmd)
		if err != nil {
			return 0, err
		}
		envelopes[i] = env
	}
	sum, err := checksum(envelopes)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed.Load() {
		return 0, ErrClosed
	}

	entry := Entry{
		Sequence:  w.sequence.Load() + 1,
		Timestamp: time.Now().UTC(),
		Commands:  envelopes,
		Checksum:  sum,
	}
	line, err := json.Marshal(&entry)
	if err != nil {
		return 0, fmt.Errorf("txlog: failed to marshal entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.writer.Write(line); err != nil {
		return 0, fmt.Errorf("txlog: failed to write entry: %w", err)
	}
	w.sequence.Store(entry.Sequence)
	w.entries.Add(1)
	w.bytes.Add(int64(len(line)))
	w.lastEntryTime.Store(time.Now().UnixNano())

	if w.cfg.SyncMode == SyncImmediate {
		if err := w.syncLocked(); err != nil {
			return entry.Sequence, err
		}
	}
	return entry.Sequence, nil
}

// Sync flushes buffered entries and, unless the sync mode is none, fsyncs.
func (w *Writer) Sync() error {
	if w.closed.Load() {
		return ErrClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *Writer) syncLocked() error {
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("txlog: flush failed: %w", err)
	}
	if w.cfg.SyncMode != SyncNone {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("txlog: sync failed: %w", err)
		}
	}
	w.totalSyncs.Add(1)
	w.lastSyncTime.Store(time.Now().UnixNano())
	return nil
}

// Close stops the batch sync loop, flushes and closes the file.
func (w *Writer) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	if w.syncTicker != nil {
		w.syncTicker.Stop()
		close(w.stopSync)
		<-w.syncDone
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	syncErr := w.syncLocked()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("txlog: close failed: %w", err)
	}
	return syncErr
}

// Stats returns current log statistics.
func (w *Writer) Stats() Stats {
	var lastSync, lastEntry time.Time
	if t := w.lastSyncTime.Load(); t > 0 {
		lastSync = time.Unix(0, t)
	}
	if t := w.lastEntryTime.Load(); t > 0 {
		lastEntry = time.Unix(0, t)
	}
	return Stats{
		Sequence:      w.sequence.Load(),
		EntryCount:    w.entries.Load(),
		BytesWritten:  w.bytes.Load(),
		TotalSyncs:    w.totalSyncs.Load(),
		LastSyncTime:  lastSync,
		LastEntryTime: lastEntry,
		Closed:        w.closed.Load(),
	}
}

// Sequence returns the sequence number of the last appended transaction.
func (w *Writer) Sequence() uint64 {
	return w.sequence.Load()
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

func checksum(envelopes []Envelope) (string, error) {
	data, err := json.Marshal(envelopes)
	if err != nil {
		return "", fmt.Errorf("txlog: failed to marshal commands: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// verify checks an entry's checksum.
func verify(e *Entry) error {
	sum, err := checksum(e.Commands)
	if err != nil {
		return err
	}
	if sum != e.Checksum {
		return fmt.Errorf("%w: seq %d checksum mismatch", ErrCorrupted, e.Sequence)
	}
	return nil
}

// tail describes where the valid part of a log file ends.
type tail struct {
	// end is the offset just past the last valid entry (and its newline).
	end int64
	// size is the file size.
	size int64
	// terminated is false when the last valid entry has no trailing newline.
	terminated bool
}

// scan calls fn for every valid entry of the file at path, in file order.
// Invalid lines are logged and skipped.
func scan(path string, log zerolog.Logger, fn func(Entry)) (tail, error) {
	t := tail{terminated: true}
	file, err := os.Open(path)
	if err != nil {
		return t, err
	}
	defer file.Close()

	reader := bufio.NewReaderSize(file, 64*1024)
	line := 0
	for {
		chunk, readErr := reader.ReadBytes('\n')
		if len(chunk) > 0 {
			line++
			t.size += int64(len(chunk))
			if entry, ok := parseLine(chunk, path, line, log); ok {
				fn(entry)
				t.end = t.size
				t.terminated = chunk[len(chunk)-1] == '\n'
			}
		}
		if readErr == io.EOF {
			return t, nil
		}
		if readErr != nil {
			return t, fmt.Errorf("txlog: failed to read %s: %w", path, readErr)
		}
	}
}

func parseLine(chunk []byte, path string, line int, log zerolog.Logger) (Entry, bool) {
	var entry Entry
	raw := bytes.TrimSpace(chunk)
	if len(raw) == 0 {
		return entry, false
	}
	if len(raw) > maxEntrySize {
		log.Warn().Str("path", path).Int("line", line).Int("bytes", len(raw)).Msg("skipping oversized txlog entry")
		return entry, false
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Warn().Err(err).Str("path", path).Int("line", line).Msg("skipping unreadable txlog entry")
		return entry, false
	}
	if err := verify(&entry); err != nil {
		log.Warn().Err(err).Str("path", path).Int("line", line).Msg("skipping corrupted txlog entry")
		return entry, false
	}
	return entry, true
}

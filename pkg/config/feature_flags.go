// Feature flags for optional applier components.
//
// The record store applier always runs. The counts applier, the transaction
// log and the metrics handler can be switched off at startup through the
// environment, or toggled at runtime in tests.
//
// DEFAULTS:
//   - Counts and the transaction log are ENABLED by default
//   - Applier metrics are DISABLED by default
//
// Usage:
//
//	if config.IsCountsEnabled() {
//		handlers = append(handlers, applier.NewCountsApplier(store, reader))
//	}
//
//	// Runtime toggles (for tests)
//	cleanup := config.WithTxLogDisabled()
//	defer cleanup()
//
// Environment variables:
//
//	NORNICDB_COUNTS_ENABLED=false
//	NORNICDB_TXLOG_ENABLED=false
//	NORNICDB_APPLIER_METRICS_ENABLED=true
package config

import (
	"os"
	"sync"
	"sync/atomic"
)

// Feature flag keys
const (
	// EnvCountsEnabled is the environment variable to disable counts maintenance
	EnvCountsEnabled = "NORNICDB_COUNTS_ENABLED"

	// EnvTxLogEnabled is the environment variable to disable the transaction log
	EnvTxLogEnabled = "NORNICDB_TXLOG_ENABLED"

	// EnvApplierMetricsEnabled is the environment variable to enable applier metrics
	EnvApplierMetricsEnabled = "NORNICDB_APPLIER_METRICS_ENABLED"
)

var (
	countsEnabled         atomic.Bool
	txLogEnabled          atomic.Bool
	applierMetricsEnabled atomic.Bool
	initOnce              sync.Once
)

func init() {
	initOnce.Do(loadFeatureFlags)
}

func loadFeatureFlags() {
	// Counts: enabled by default
	countsEnabled.Store(true)
	if env := os.Getenv(EnvCountsEnabled); env == "false" || env == "0" {
		countsEnabled.Store(false)
	}

	// Transaction log: enabled by default for replay
	txLogEnabled.Store(true)
	if env := os.Getenv(EnvTxLogEnabled); env == "false" || env == "0" {
		txLogEnabled.Store(false)
	}

	// Metrics: disabled by default, enable with "true" or "1"
	applierMetricsEnabled.Store(false)
	if env := os.Getenv(EnvApplierMetricsEnabled); env == "true" || env == "1" {
		applierMetricsEnabled.Store(true)
	}
}

// ResetFeatureFlags restores every flag to its environment-derived default.
func ResetFeatureFlags() {
	loadFeatureFlags()
}

// EnableCounts enables counts maintenance.
func EnableCounts() {
	countsEnabled.Store(true)
}

// DisableCounts disables counts maintenance.
func DisableCounts() {
	countsEnabled.Store(false)
}

// IsCountsEnabled returns true if counts are maintained on apply.
func IsCountsEnabled() bool {
	return countsEnabled.Load()
}

// WithCountsDisabled temporarily disables counts and returns cleanup function.
func WithCountsDisabled() func() {
	prev := countsEnabled.Load()
	countsEnabled.Store(false)
	return func() {
		countsEnabled.Store(prev)
	}
}

// EnableTxLog enables the transaction log.
func EnableTxLog() {
	txLogEnabled.Store(true)
}

// DisableTxLog disables the transaction log.
func DisableTxLog() {
	txLogEnabled.Store(false)
}

// IsTxLogEnabled returns true if applied transactions are logged.
func IsTxLogEnabled() bool {
	return txLogEnabled.Load()
}

// WithTxLogDisabled temporarily disables the transaction log and returns cleanup function.
func WithTxLogDisabled() func() {
	prev := txLogEnabled.Load()
	txLogEnabled.Store(false)
	return func() {
		txLogEnabled.Store(prev)
	}
}

// EnableApplierMetrics enables the metrics handler.
func EnableApplierMetrics() {
	applierMetricsEnabled.Store(true)
}

// DisableApplierMetrics disables the metrics handler.
func DisableApplierMetrics() {
	applierMetricsEnabled.Store(false)
}

// IsApplierMetricsEnabled returns true if applied commands are counted in prometheus.
func IsApplierMetricsEnabled() bool {
	return applierMetricsEnabled.Load()
}

// WithApplierMetricsEnabled temporarily enables metrics and returns cleanup function.
func WithApplierMetricsEnabled() func() {
	prev := applierMetricsEnabled.Load()
	applierMetricsEnabled.Store(true)
	return func() {
		applierMetricsEnabled.Store(prev)
	}
}

// FeatureStatus reports the current state of every flag.
type FeatureStatus struct {
	CountsEnabled         bool
	TxLogEnabled          bool
	ApplierMetricsEnabled bool
}

// GetFeatureStatus returns the complete feature status.
func GetFeatureStatus() FeatureStatus {
	return FeatureStatus{
		CountsEnabled:         countsEnabled.Load(),
		TxLogEnabled:          txLogEnabled.Load(),
		ApplierMetricsEnabled: applierMetricsEnabled.Load(),
	}
}

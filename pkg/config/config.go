// Package config handles configuration of the NornicDB transaction applier.
//
// Configuration is read from environment variables with LoadFromEnv() and can
// be overlaid with a YAML file using LoadFile(). Every setting has a default,
// so LoadFromEnv() works with an empty environment.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.LoadFile("./data/nornicapply.yaml"); err != nil && !os.IsNotExist(err) {
//		log.Fatalf("Invalid config file: %v", err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
// Environment Variables:
//   - NORNICDB_DATA_DIR="./data"
//   - NORNICDB_IN_MEMORY=false
//   - NORNICDB_SYNC_WRITES=false
//   - NORNICDB_COUNTS_BACKEND="badger" (badger, bolt, memory)
//   - NORNICDB_COUNTS_PATH="counts"
//   - NORNICDB_TXLOG_DIR="txlog"
//   - NORNICDB_TXLOG_SYNC_MODE="batch" (immediate, batch, none)
//   - NORNICDB_TXLOG_SYNC_INTERVAL=100ms
//   - NORNICDB_LOG_LEVEL="info"
//   - NORNICDB_LOG_FORMAT="console" (console, json)
//   - NORNICDB_LOG_OUTPUT="stderr" (stdout, stderr, or a file path)
//   - NORNICDB_METRICS_NAMESPACE="nornicdb"
//   - NORNICDB_MEMORY_LIMIT="0" (e.g. "2GB")
//   - NORNICDB_GC_PERCENT=100
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all applier configuration.
//
// Sections:
//   - Database: record store location and durability
//   - Counts: counts store backend
//   - TxLog: transaction log location and sync policy
//   - Logging: zerolog output settings
//   - Metrics: prometheus metric naming
//   - Memory: Go runtime tuning
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Counts   CountsConfig   `yaml:"counts"`
	TxLog    TxLogConfig    `yaml:"txlog"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Memory   MemoryConfig   `yaml:"memory"`
}

// DatabaseConfig holds record store settings.
type DatabaseConfig struct {
	// DataDir is the root directory for all stores
	DataDir string `yaml:"data_dir"`
	// InMemory keeps every store in RAM (nothing persisted)
	InMemory bool `yaml:"in_memory"`
	// SyncWrites forces fsync after each record store commit
	SyncWrites bool `yaml:"sync_writes"`
}

// CountsConfig selects the counts store backend.
type CountsConfig struct {
	// Backend is one of badger, bolt, memory
	Backend string `yaml:"backend"`
	// Path of the counts store, relative to DataDir unless absolute
	Path string `yaml:"path"`
	// SyncWrites forces fsync after each counts commit (badger only)
	SyncWrites bool `yaml:"sync_writes"`
}

// TxLogConfig holds transaction log settings.
type TxLogConfig struct {
	// Dir of the transaction log, relative to DataDir unless absolute
	Dir string `yaml:"dir"`
	// SyncMode is immediate, batch or none
	SyncMode string `yaml:"sync_mode"`
	// BatchSyncInterval for batch sync mode
	BatchSyncInterval time.Duration `yaml:"batch_sync_interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (debug, info, warn, error)
	Level string `yaml:"level"`
	// Format (console, json)
	Format string `yaml:"format"`
	// Output (stdout, stderr, or a file path)
	Output string `yaml:"output"`
}

// MetricsConfig holds prometheus settings.
type MetricsConfig struct {
	// Namespace prefixes every metric name
	Namespace string `yaml:"namespace"`
}

// MemoryConfig holds Go runtime memory settings.
type MemoryConfig struct {
	// RuntimeLimit is the soft memory limit (GOMEMLIMIT) in bytes, 0 = unlimited
	RuntimeLimit int64 `yaml:"-"`
	// RuntimeLimitStr is the human-readable form (e.g., "2GB", "512MB")
	RuntimeLimitStr string `yaml:"runtime_limit"`
	// GCPercent controls GC aggressiveness (GOGC)
	GCPercent int `yaml:"gc_percent"`
}

// LoadFromEnv loads configuration from environment variables.
//
// All values have defaults, so LoadFromEnv() can be called without any
// environment variables set.
//
// Example:
//
//	os.Setenv("NORNICDB_COUNTS_BACKEND", "bolt")
//	cfg := config.LoadFromEnv()
//	fmt.Println(cfg.Counts.Backend) // bolt
func LoadFromEnv() *Config {
	config := &Config{}

	config.Database.DataDir = getEnv("NORNICDB_DATA_DIR", "./data")
	config.Database.InMemory = getEnvBool("NORNICDB_IN_MEMORY", false)
	config.Database.SyncWrites = getEnvBool("NORNICDB_SYNC_WRITES", false)

	config.Counts.Backend = getEnv("NORNICDB_COUNTS_BACKEND", "badger")
	config.Counts.Path = getEnv("NORNICDB_COUNTS_PATH", "counts")
	config.Counts.SyncWrites = getEnvBool("NORNICDB_COUNTS_SYNC_WRITES", false)

	config.TxLog.Dir = getEnv("NORNICDB_TXLOG_DIR", "txlog")
	config.TxLog.SyncMode = getEnv("NORNICDB_TXLOG_SYNC_MODE", "batch")
	config.TxLog.BatchSyncInterval = getEnvDuration("NORNICDB_TXLOG_SYNC_INTERVAL", 100*time.Millisecond)

	config.Logging.Level = getEnv("NORNICDB_LOG_LEVEL", "info")
	config.Logging.Format = getEnv("NORNICDB_LOG_FORMAT", "console")
	config.Logging.Output = getEnv("NORNICDB_LOG_OUTPUT", "stderr")

	config.Metrics.Namespace = getEnv("NORNICDB_METRICS_NAMESPACE", "nornicdb")

	config.Memory.RuntimeLimitStr = getEnv("NORNICDB_MEMORY_LIMIT", "0")
	config.Memory.RuntimeLimit = parseMemorySize(config.Memory.RuntimeLimitStr)
	config.Memory.GCPercent = getEnvInt("NORNICDB_GC_PERCENT", 100)

	return config
}

// LoadFile overlays settings from a YAML file. Keys missing from the file keep
// their current values.
//
// Example file:
//
//	database:
//	  data_dir: ./data
//	counts:
//	  backend: bolt
//	txlog:
//	  sync_mode: immediate
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	c.Memory.RuntimeLimit = parseMemorySize(c.Memory.RuntimeLimitStr)
	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Database.DataDir == "" && !c.Database.InMemory {
		return errors.New("data directory required unless running in memory")
	}

	switch strings.ToLower(c.Counts.Backend) {
	case "badger", "bolt", "memory":
	default:
		return fmt.Errorf("invalid counts backend: %q", c.Counts.Backend)
	}

	switch c.TxLog.SyncMode {
	case "immediate", "none":
	case "batch":
		if c.TxLog.BatchSyncInterval <= 0 {
			return fmt.Errorf("invalid txlog batch sync interval: %s", c.TxLog.BatchSyncInterval)
		}
	default:
		return fmt.Errorf("invalid txlog sync mode: %q", c.TxLog.SyncMode)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}

	if c.Memory.GCPercent <= 0 && c.Memory.GCPercent != -1 {
		return fmt.Errorf("invalid gc percent: %d", c.Memory.GCPercent)
	}

	return nil
}

// String returns a short representation suitable for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DataDir: %s, InMemory: %v, Counts: %s, TxLog: %s/%s}",
		c.Database.DataDir, c.Database.InMemory,
		c.Counts.Backend,
		c.TxLog.Dir, c.TxLog.SyncMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as milliseconds
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

// parseMemorySize parses a human-readable memory size string.
// Supports: "1024", "1KB", "1MB", "1GB", "1TB", "0", "unlimited"
func parseMemorySize(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" || s == "UNLIMITED" {
		return 0
	}

	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "T")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val * multiplier
}

// ApplyRuntimeMemory applies the runtime memory settings to the Go runtime.
// Should be called early in main() before heavy allocations.
func (c *MemoryConfig) ApplyRuntimeMemory() {
	if c.RuntimeLimit > 0 {
		debug.SetMemoryLimit(c.RuntimeLimit)
	}
	if c.GCPercent != 100 && c.GCPercent != 0 {
		debug.SetGCPercent(c.GCPercent)
	}
}

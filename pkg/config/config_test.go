package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadFromEnv()

		assert.Equal(t, "./data", cfg.Database.DataDir)
		assert.False(t, cfg.Database.InMemory)
		assert.Equal(t, "badger", cfg.Counts.Backend)
		assert.Equal(t, "counts", cfg.Counts.Path)
		assert.Equal(t, "txlog", cfg.TxLog.Dir)
		assert.Equal(t, "batch", cfg.TxLog.SyncMode)
		assert.Equal(t, 100*time.Millisecond, cfg.TxLog.BatchSyncInterval)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Format)
		assert.Equal(t, "nornicdb", cfg.Metrics.Namespace)
		assert.Equal(t, 100, cfg.Memory.GCPercent)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("environment_overrides", func(t *testing.T) {
		t.Setenv("NORNICDB_DATA_DIR", "/var/lib/nornicdb")
		t.Setenv("NORNICDB_IN_MEMORY", "yes")
		t.Setenv("NORNICDB_COUNTS_BACKEND", "bolt")
		t.Setenv("NORNICDB_TXLOG_SYNC_MODE", "immediate")
		t.Setenv("NORNICDB_TXLOG_SYNC_INTERVAL", "250")
		t.Setenv("NORNICDB_LOG_FORMAT", "json")
		t.Setenv("NORNICDB_MEMORY_LIMIT", "2GB")
		t.Setenv("NORNICDB_GC_PERCENT", "50")

		cfg := LoadFromEnv()

		assert.Equal(t, "/var/lib/nornicdb", cfg.Database.DataDir)
		assert.True(t, cfg.Database.InMemory)
		assert.Equal(t, "bolt", cfg.Counts.Backend)
		assert.Equal(t, "immediate", cfg.TxLog.SyncMode)
		assert.Equal(t, 250*time.Millisecond, cfg.TxLog.BatchSyncInterval)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, int64(2*1024*1024*1024), cfg.Memory.RuntimeLimit)
		assert.Equal(t, 50, cfg.Memory.GCPercent)
	})

	t.Run("invalid_numbers_keep_defaults", func(t *testing.T) {
		t.Setenv("NORNICDB_GC_PERCENT", "lots")
		t.Setenv("NORNICDB_TXLOG_SYNC_INTERVAL", "soon")

		cfg := LoadFromEnv()

		assert.Equal(t, 100, cfg.Memory.GCPercent)
		assert.Equal(t, 100*time.Millisecond, cfg.TxLog.BatchSyncInterval)
	})
}

func TestConfig_LoadFile(t *testing.T) {
	t.Run("overlays_present_keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nornicapply.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
counts:
  backend: memory
txlog:
  sync_mode: none
memory:
  runtime_limit: 512MB
`), 0644))

		cfg := LoadFromEnv()
		require.NoError(t, cfg.LoadFile(path))

		assert.Equal(t, "memory", cfg.Counts.Backend)
		assert.Equal(t, "counts", cfg.Counts.Path)
		assert.Equal(t, "none", cfg.TxLog.SyncMode)
		assert.Equal(t, "./data", cfg.Database.DataDir)
		assert.Equal(t, int64(512*1024*1024), cfg.Memory.RuntimeLimit)
	})

	t.Run("missing_file", func(t *testing.T) {
		cfg := LoadFromEnv()
		err := cfg.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("malformed_yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("counts: [unterminated"), 0644))

		cfg := LoadFromEnv()
		assert.Error(t, cfg.LoadFile(path))
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"in memory without data dir", func(c *Config) { c.Database.DataDir = ""; c.Database.InMemory = true }, true},
		{"missing data dir", func(c *Config) { c.Database.DataDir = "" }, false},
		{"unknown counts backend", func(c *Config) { c.Counts.Backend = "leveldb" }, false},
		{"unknown sync mode", func(c *Config) { c.TxLog.SyncMode = "sometimes" }, false},
		{"batch without interval", func(c *Config) { c.TxLog.BatchSyncInterval = 0 }, false},
		{"immediate without interval", func(c *Config) { c.TxLog.SyncMode = "immediate"; c.TxLog.BatchSyncInterval = 0 }, true},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, false},
		{"gc disabled", func(c *Config) { c.Memory.GCPercent = -1 }, true},
		{"gc zero", func(c *Config) { c.Memory.GCPercent = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadFromEnv()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := LoadFromEnv()
	s := cfg.String()
	assert.Contains(t, s, "DataDir: ./data")
	assert.Contains(t, s, "Counts: badger")
	assert.Contains(t, s, "TxLog: txlog/batch")
}

func TestParseMemorySize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"bytes numeric", "1024", 1024},
		{"bytes with B suffix", "1024B", 1024},
		{"kilobytes KB", "1KB", 1024},
		{"megabytes lowercase", "512mb", 512 * 1024 * 1024},
		{"gigabytes G", "1G", 1024 * 1024 * 1024},
		{"terabytes TB", "1TB", 1024 * 1024 * 1024 * 1024},
		{"zero", "0", 0},
		{"unlimited", "unlimited", 0},
		{"empty string", "", 0},
		{"whitespace", "  2GB  ", 2 * 1024 * 1024 * 1024},
		{"invalid chars", "abc", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseMemorySize(tt.input)
			if got != tt.want {
				t.Errorf("parseMemorySize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// parseMemorySize Tests
// =============================================================================

func TestParseMemorySize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		// Bytes
		{"bytes numeric", "1024", 1024},
		{"bytes with B suffix", "1024B", 1024},
		{"bytes lowercase", "1024b", 1024},

		// Kilobytes
		{"kilobytes K", "1K", 1024},
		{"kilobytes KB", "1KB", 1024},
		{"kilobytes lowercase", "1kb", 1024},

		// Megabytes
		{"megabytes M", "1M", 1024 * 1024},
		{"megabytes lowercase", "512mb", 512 * 1024 * 1024},

		// Gigabytes
		{"gigabytes G", "1G", 1024 * 1024 * 1024},
		{"gigabytes GB", "1GB", 1024 * 1024 * 1024},
		{"gigabytes large", "4G", 4 * 1024 * 1024 * 1024},

		// Terabytes
		{"terabytes TB", "1TB", 1024 * 1024 * 1024 * 1024},

		// Unlimited/Zero
		{"zero", "0", 0},
		{"unlimited", "unlimited", 0},
		{"unlimited caps", "UNLIMITED", 0},
		{"empty string", "", 0},

		{"whitespace", "  2GB  ", 2 * 1024 * 1024 * 1024},
		{"invalid chars", "abc", 0},
		// Negative values parse; Validate rejects them.
		{"negative", "-1GB", -1 * 1024 * 1024 * 1024},
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

func TestFormatMemorySize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "unlimited"},
		{"negative", -5, "unlimited"},
		{"bytes", 512, "512 B"},
		{"kilobytes fractional", 1536, "1.50 KB"},
		{"megabytes", 1024 * 1024, "1.00 MB"},
		{"gigabytes large", 4 * 1024 * 1024 * 1024, "4.00 GB"},
		{"terabytes", 1024 * 1024 * 1024 * 1024, "1.00 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatMemorySize(tt.bytes)
			if got != tt.want {
				t.Errorf("FormatMemorySize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Loading Tests
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "default", cfg.Store.DefaultContext)
	assert.Zero(t, cfg.Store.MaxIndexKeys)
	assert.True(t, cfg.Store.IndexAssistedQueries)
	assert.Equal(t, 100, cfg.Memory.GCPercent)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadFromEnv()
		assert.Equal(t, DefaultConfig().Store, cfg.Store)
		assert.Zero(t, cfg.Memory.RuntimeLimit)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("QUADSTORE_DEFAULT_CONTEXT", "graph")
		t.Setenv("QUADSTORE_MAX_INDEX_KEYS", "500")
		t.Setenv("QUADSTORE_INDEX_ASSISTED_QUERIES", "off")
		t.Setenv("QUADSTORE_MEMORY_LIMIT", "2GB")
		t.Setenv("QUADSTORE_GC_PERCENT", "50")
		t.Setenv("QUADSTORE_LOG_LEVEL", "debug")
		t.Setenv("QUADSTORE_LOG_FORMAT", "json")

		cfg := LoadFromEnv()
		assert.Equal(t, "graph", cfg.Store.DefaultContext)
		assert.Equal(t, 500, cfg.Store.MaxIndexKeys)
		assert.False(t, cfg.Store.IndexAssistedQueries)
		assert.Equal(t, int64(2*1024*1024*1024), cfg.Memory.RuntimeLimit)
		assert.Equal(t, "2GB", cfg.Memory.RuntimeLimitStr)
		assert.Equal(t, 50, cfg.Memory.GCPercent)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
	})

	t.Run("unparsable values keep defaults", func(t *testing.T) {
		t.Setenv("QUADSTORE_MAX_INDEX_KEYS", "lots")
		t.Setenv("QUADSTORE_INDEX_ASSISTED_QUERIES", "maybe")

		cfg := LoadFromEnv()
		assert.Zero(t, cfg.Store.MaxIndexKeys)
		assert.True(t, cfg.Store.IndexAssistedQueries)
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
store:
  default_context: social
  max_index_keys: 10
memory:
  runtime_limit: 512MB
`), 0o644))

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "social", cfg.Store.DefaultContext)
		assert.Equal(t, 10, cfg.Store.MaxIndexKeys)
		assert.True(t, cfg.Store.IndexAssistedQueries)
		assert.Equal(t, int64(512*1024*1024), cfg.Memory.RuntimeLimit)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := filepath.Join(dir, "env.yaml")
		require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o644))
		t.Setenv("QUADSTORE_LOG_LEVEL", "error")

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "warn", cfg.Logging.Level)

		cfg.ApplyEnv()
		assert.Equal(t, "error", cfg.Logging.Level)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store: [not, a, map"), 0o644))

		_, err := LoadFile(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"json debug", func(c *Config) { c.Logging.Format = "JSON"; c.Logging.Level = "DEBUG" }, true},
		{"empty default context", func(c *Config) { c.Store.DefaultContext = "" }, false},
		{"negative max keys", func(c *Config) { c.Store.MaxIndexKeys = -1 }, false},
		{"negative memory", func(c *Config) { c.Memory.RuntimeLimit = -1 }, false},
		{"unknown level", func(c *Config) { c.Logging.Level = "verbose" }, false},
		{"warning is not a zap level", func(c *Config) { c.Logging.Level = "warning" }, false},
		{"empty level means info", func(c *Config) { c.Logging.Level = "" }, true},
		{"dpanic level", func(c *Config) { c.Logging.Level = "dpanic" }, true},
		{"unknown format", func(c *Config) { c.Logging.Format = "xml" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	assert.Contains(t, s, "DefaultContext: default")
	assert.Contains(t, s, "MemoryLimit: unlimited")
}

func TestMemoryConfig_ApplyRuntimeMemory(t *testing.T) {
	// Defaults are a no-op and must not panic.
	cfg := &MemoryConfig{RuntimeLimit: 0, GCPercent: 100}
	cfg.ApplyRuntimeMemory()
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkParseMemorySize(b *testing.B) {
	inputs := []string{"2GB", "512MB", "1024", "unlimited", "1TB"}

	for _, input := range inputs {
		b.Run(input, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				parseMemorySize(input)
			}
		})
	}
}

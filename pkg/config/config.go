// Package config holds quad store configuration.
//
// Configuration starts from DefaultConfig(), can be overlaid from a YAML file
// with LoadFile() and from environment variables with LoadFromEnv(), and
// should be checked with Validate() before use.
//
// Example Usage:
//
//	cfg, err := config.LoadFile("quadstore.yaml")
//	if err != nil {
//		return err
//	}
//	cfg.ApplyEnv()
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// Environment Variables:
//   - QUADSTORE_DEFAULT_CONTEXT="default"
//   - QUADSTORE_MAX_INDEX_KEYS=0 (0 = unlimited)
//   - QUADSTORE_INDEX_ASSISTED_QUERIES=true
//   - QUADSTORE_MEMORY_LIMIT="2GB" (0 or "unlimited" = no limit)
//   - QUADSTORE_GC_PERCENT=100
//   - QUADSTORE_LOG_LEVEL="info" (any zap level name)
//   - QUADSTORE_LOG_FORMAT="console" or "json"
package config

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds all quad store configuration.
type Config struct {
	// Store settings consumed by storage.NewStore
	Store StoreConfig `yaml:"store"`

	// Memory settings applied to the Go runtime
	Memory MemoryConfig `yaml:"memory"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig holds settings for a single quad store instance.
type StoreConfig struct {
	// DefaultContext is assigned to quads added without a context.
	DefaultContext string `yaml:"default_context"`

	// MaxIndexKeys caps the number of distinct keys each secondary index may
	// hold. Inserting a quad that would add a key past the cap fails with the
	// matching index error. 0 means unlimited.
	MaxIndexKeys int `yaml:"max_index_keys"`

	// IndexAssistedQueries lets GetQuads walk the smallest matching secondary
	// index instead of every quad. Results are identical either way.
	IndexAssistedQueries bool `yaml:"index_assisted_queries"`
}

// MemoryConfig holds Go runtime memory settings.
type MemoryConfig struct {
	// RuntimeLimitStr is the human-readable soft memory limit ("2GB", "512MB", "0").
	RuntimeLimitStr string `yaml:"runtime_limit"`
	// RuntimeLimit is RuntimeLimitStr parsed to bytes; 0 means unlimited.
	RuntimeLimit int64 `yaml:"-"`
	// GCPercent is passed to debug.SetGCPercent when it differs from 100.
	GCPercent int `yaml:"gc_percent"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level"`
	// Format: console or json
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			DefaultContext:       "default",
			MaxIndexKeys:         0,
			IndexAssistedQueries: true,
		},
		Memory: MemoryConfig{
			RuntimeLimitStr: "0",
			GCPercent:       100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv returns DefaultConfig() overlaid with QUADSTORE_* environment variables.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	return cfg
}

// LoadFile reads a YAML file and overlays it on DefaultConfig(). Fields missing
// from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Memory.RuntimeLimit = parseMemorySize(cfg.Memory.RuntimeLimitStr)

	return cfg, nil
}

// ApplyEnv overrides fields from QUADSTORE_* environment variables.
// Environment variables take precedence over file settings.
func (c *Config) ApplyEnv() {
	c.Store.DefaultContext = getEnv("QUADSTORE_DEFAULT_CONTEXT", c.Store.DefaultContext)
	c.Store.MaxIndexKeys = getEnvInt("QUADSTORE_MAX_INDEX_KEYS", c.Store.MaxIndexKeys)
	c.Store.IndexAssistedQueries = getEnvBool("QUADSTORE_INDEX_ASSISTED_QUERIES", c.Store.IndexAssistedQueries)

	c.Memory.RuntimeLimitStr = getEnv("QUADSTORE_MEMORY_LIMIT", c.Memory.RuntimeLimitStr)
	c.Memory.RuntimeLimit = parseMemorySize(c.Memory.RuntimeLimitStr)
	c.Memory.GCPercent = getEnvInt("QUADSTORE_GC_PERCENT", c.Memory.GCPercent)

	c.Logging.Level = getEnv("QUADSTORE_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("QUADSTORE_LOG_FORMAT", c.Logging.Format)
}

// Validate checks the configuration for values the store cannot work with.
func (c *Config) Validate() error {
	if c.Store.DefaultContext == "" {
		return fmt.Errorf("default context must not be empty")
	}
	if c.Store.MaxIndexKeys < 0 {
		return fmt.Errorf("invalid max index keys: %d", c.Store.MaxIndexKeys)
	}
	if c.Memory.RuntimeLimit < 0 {
		return fmt.Errorf("invalid memory limit: %s", c.Memory.RuntimeLimitStr)
	}

	if _, err := zapcore.ParseLevel(strings.TrimSpace(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}

	return nil
}

// String returns a short summary for startup logs.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DefaultContext: %s, MaxIndexKeys: %d, IndexAssisted: %v, MemoryLimit: %s, Log: %s/%s}",
		c.Store.DefaultContext,
		c.Store.MaxIndexKeys,
		c.Store.IndexAssistedQueries,
		FormatMemorySize(c.Memory.RuntimeLimit),
		c.Logging.Level, c.Logging.Format,
	)
}

// ApplyRuntimeMemory applies the runtime memory settings to the Go runtime.
// Should be called early in main() before heavy allocations.
func (c *MemoryConfig) ApplyRuntimeMemory() {
	if c.RuntimeLimit > 0 {
		debug.SetMemoryLimit(c.RuntimeLimit)
	}
	if c.GCPercent != 100 {
		debug.SetGCPercent(c.GCPercent)
	}
}

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
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
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

// FormatMemorySize formats bytes as human-readable string.
func FormatMemorySize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes <= 0:
		return "unlimited"
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

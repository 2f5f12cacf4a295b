// Package config provides configuration loading and validation for the asset server.
//
// Configuration can be provided via:
//   - Command line flags (highest priority)
//   - Environment variables (ASSETD_ prefix)
//   - Configuration file (YAML, JSON or TOML)
//
// Asset Sources:
//
// Assets are served from a local directory by default:
//
//	assets:
//	  root: "/srv/www"
//
// They can also come from any gocloud.dev/blob bucket:
//
//	assets:
//	  url: "s3://bucket-name?region=eu-west-1"
//
// When url is set it takes precedence over root. For S3, configure
// credentials via the usual AWS environment variables.
//
// Index Mode:
//
// The "/" route either serves the default document from the asset root
// ("file", the default) or renders the built-in clock demo page ("demo").
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Index modes for the "/" route.
const (
	IndexModeFile = "file"
	IndexModeDemo = "demo"
)

// Config holds all configuration for the asset server.
type Config struct {
	// Listen is the address to listen on (e.g., ":8080", "127.0.0.1:8080").
	Listen string `json:"listen" yaml:"listen" toml:"listen"`

	// Assets configures where static files come from and how they are served.
	Assets AssetsConfig `json:"assets" yaml:"assets" toml:"assets"`

	// Index configures the "/" route.
	Index IndexConfig `json:"index" yaml:"index" toml:"index"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" toml:"metrics"`

	// Log configures logging.
	Log LogConfig `json:"log" yaml:"log" toml:"log"`
}

// AssetsConfig configures the asset source.
type AssetsConfig struct {
	// Root is the directory below which all served files must resolve.
	Root string `json:"root" yaml:"root" toml:"root"`

	// URL is an optional gocloud.dev/blob bucket URL (file:// or s3://).
	// If set, it is used instead of Root.
	URL string `json:"url" yaml:"url" toml:"url"`

	// IndexFile is the default document served for directory requests.
	IndexFile string `json:"index" yaml:"index" toml:"index"`

	// AllowDotfiles serves files and directories whose name starts with ".".
	AllowDotfiles bool `json:"allow_dotfiles" yaml:"allow_dotfiles" toml:"allow_dotfiles"`

	// CacheControl is sent verbatim as the Cache-Control header when non-empty.
	CacheControl string `json:"cache_control" yaml:"cache_control" toml:"cache_control"`

	// MaxConcurrentReads caps the number of assets open at once.
	// Zero means unlimited.
	MaxConcurrentReads int `json:"max_concurrent_reads" yaml:"max_concurrent_reads" toml:"max_concurrent_reads"`

	// Cache configures the optional in-memory asset cache.
	Cache CacheConfig `json:"cache" yaml:"cache" toml:"cache"`
}

// CacheConfig configures the in-memory asset cache.
type CacheConfig struct {
	// MaxSize is the total memory budget (e.g., "64MB").
	// Empty or "0" disables the cache.
	MaxSize string `json:"max_size" yaml:"max_size" toml:"max_size"`

	// MaxEntrySize is the largest single asset that will be cached.
	MaxEntrySize string `json:"max_entry_size" yaml:"max_entry_size" toml:"max_entry_size"`
}

// IndexConfig configures the "/" route.
type IndexConfig struct {
	// Mode is "file" or "demo".
	Mode string `json:"mode" yaml:"mode" toml:"mode"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled mounts GET /metrics.
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `json:"level" yaml:"level" toml:"level"`

	// Format is the log format: "text" or "json".
	Format string `json:"format" yaml:"format" toml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Assets: AssetsConfig{
			Root:      "./static",
			IndexFile: "index.html",
			Cache: CacheConfig{
				MaxEntrySize: "1MB",
			},
		},
		Index: IndexConfig{
			Mode: IndexModeFile,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a file (YAML, JSON or TOML).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
	default:
		// Try YAML first, then JSON
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config (tried YAML and JSON): %w", err)
			}
		}
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to a Config.
// Environment variables use the ASSETD_ prefix:
//   - ASSETD_LISTEN
//   - ASSETD_ROOT
//   - ASSETD_ASSETS_URL
//   - ASSETD_INDEX
//   - ASSETD_INDEX_MODE
//   - ASSETD_CACHE_CONTROL
//   - ASSETD_CACHE_MAX_SIZE
//   - ASSETD_METRICS
//   - ASSETD_LOG_LEVEL
//   - ASSETD_LOG_FORMAT
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("ASSETD_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("ASSETD_ROOT"); v != "" {
		c.Assets.Root = v
	}
	if v := os.Getenv("ASSETD_ASSETS_URL"); v != "" {
		c.Assets.URL = v
	}
	if v := os.Getenv("ASSETD_INDEX"); v != "" {
		c.Assets.IndexFile = v
	}
	if v := os.Getenv("ASSETD_INDEX_MODE"); v != "" {
		c.Index.Mode = v
	}
	if v := os.Getenv("ASSETD_CACHE_CONTROL"); v != "" {
		c.Assets.CacheControl = v
	}
	if v := os.Getenv("ASSETD_CACHE_MAX_SIZE"); v != "" {
		c.Assets.Cache.MaxSize = v
	}
	if v := os.Getenv("ASSETD_METRICS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("ASSETD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ASSETD_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// Validate checks the configuration for errors.
// It does not touch the filesystem; the root directory is checked when the
// asset source is opened.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Assets.URL == "" && c.Assets.Root == "" {
		return fmt.Errorf("assets.url or assets.root is required")
	}
	if strings.HasPrefix(c.Assets.URL, "mem://") {
		return fmt.Errorf("assets.url %q: in-memory buckets start empty and cannot serve assets", c.Assets.URL)
	}

	idx := c.Assets.IndexFile
	if idx == "" || strings.ContainsAny(idx, `/\`) || idx == "." || idx == ".." {
		return fmt.Errorf("invalid assets.index %q (must be a plain file name)", idx)
	}

	if c.Assets.MaxConcurrentReads < 0 {
		return fmt.Errorf("assets.max_concurrent_reads must not be negative")
	}

	switch c.Index.Mode {
	case IndexModeFile, IndexModeDemo:
		// OK
	default:
		return fmt.Errorf("invalid index.mode %q (must be file or demo)", c.Index.Mode)
	}

	// Validate log level
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		// OK
	default:
		return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", c.Log.Level)
	}

	// Validate log format
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
		// OK
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.Log.Format)
	}

	if _, err := ParseSize(c.Assets.Cache.MaxSize); err != nil {
		return fmt.Errorf("invalid assets.cache.max_size: %w", err)
	}
	if _, err := ParseSize(c.Assets.Cache.MaxEntrySize); err != nil {
		return fmt.Errorf("invalid assets.cache.max_entry_size: %w", err)
	}

	return nil
}

// ParseSize parses a human-readable size string (e.g., "10GB", "500MB").
// Returns the size in bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" {
		return 0, nil
	}

	// Check suffixes in order of length (longest first) to avoid partial matches
	suffixes := []struct {
		suffix string
		mult   int64
	}{
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"T", 1024 * 1024 * 1024 * 1024},
		{"G", 1024 * 1024 * 1024},
		{"M", 1024 * 1024},
		{"K", 1024},
		{"B", 1},
	}

	for _, s2 := range suffixes {
		if strings.HasSuffix(s, s2.suffix) {
			numStr := strings.TrimSuffix(s, s2.suffix)
			num, err := strconv.ParseFloat(numStr, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q", numStr)
			}
			if num < 0 {
				return 0, fmt.Errorf("negative size %q", s)
			}
			size := num * float64(s2.mult)
			if math.IsNaN(size) || size >= math.MaxInt64 {
				return 0, fmt.Errorf("size %q out of range", s)
			}
			return int64(size), nil
		}
	}

	// Try parsing as plain number (bytes)
	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if num < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return num, nil
}

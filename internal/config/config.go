// Package config handles configuration loading, validation, and management for promptproof.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"promptproof/internal/logging"
	"promptproof/pkg/provenance"
)

// Version is the current configuration schema version.
const Version = 2

// Config holds the complete configuration shared by the verifier CLI
// and the daemon.
type Config struct {
	// Version is the configuration schema version for migrations.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Fetch configuration for gateway retrieval.
	Fetch FetchConfig `toml:"fetch" json:"fetch" yaml:"fetch"`

	// Store configuration for the verification history database.
	Store StoreConfig `toml:"store" json:"store" yaml:"store"`

	// Watch configuration for inbox monitoring.
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// Notify configuration for desktop notifications.
	Notify NotifyConfig `toml:"notify" json:"notify" yaml:"notify"`

	// Events configuration for the daemon event log.
	Events EventsConfig `toml:"events" json:"events" yaml:"events"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// FetchConfig holds proof retrieval configuration.
type FetchConfig struct {
	// Gateways is the ordered list of gateway base URLs to try.
	Gateways []string `toml:"gateways" json:"gateways" yaml:"gateways"`

	// Patterns is the ordered list of URL path patterns. Each pattern
	// contains the {tx} placeholder for the transaction ID.
	Patterns []string `toml:"patterns" json:"patterns" yaml:"patterns"`

	// TimeoutSec is the per-request HTTP timeout in seconds.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`

	// CacheProofs stores fetched proof payloads in the local database.
	CacheProofs bool `toml:"cache_proofs" json:"cache_proofs" yaml:"cache_proofs"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	// Enabled determines whether verification results are recorded.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the path to the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`

	// HistoryLimit is the default number of rows shown by history listings.
	HistoryLimit int `toml:"history_limit" json:"history_limit" yaml:"history_limit"`
}

// WatchConfig holds inbox watching configuration.
type WatchConfig struct {
	// Paths is a list of inbox directories to monitor for verification
	// request files.
	Paths []string `toml:"paths" json:"paths" yaml:"paths"`

	// DebounceMs is the debounce interval in milliseconds. Request
	// files must be stable for this duration before processing.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`

	// MaxFileSize is the maximum request file size in bytes.
	// Larger files are rejected.
	MaxFileSize int64 `toml:"max_file_size" json:"max_file_size" yaml:"max_file_size"`

	// ReportFormat is the format of report files written next to
	// processed requests: "json", "text", or "markdown".
	ReportFormat string `toml:"report_format" json:"report_format" yaml:"report_format"`
}

// NotifyConfig holds desktop notification configuration.
type NotifyConfig struct {
	// Enabled determines whether notifications are sent at all.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// OnSuccess sends a notification when a proof verifies.
	OnSuccess bool `toml:"on_success" json:"on_success" yaml:"on_success"`

	// OnFailure sends a notification when a proof does not verify.
	OnFailure bool `toml:"on_failure" json:"on_failure" yaml:"on_failure"`

	// TimeoutMs is how long a notification stays on screen.
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
}

// EventsConfig holds daemon event log configuration.
type EventsConfig struct {
	// Enabled determines whether the daemon writes an event log.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// FilePath is the path to the event log file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output includes "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Fetch: FetchConfig{
			Gateways:    append([]string{}, provenance.DefaultGateways...),
			Patterns:    append([]string{}, provenance.DefaultPatterns...),
			TimeoutSec:  int(provenance.DefaultTimeout / time.Second),
			CacheProofs: true,
		},
		Store: StoreConfig{
			Enabled:       true,
			Path:          filepath.Join(dir, "history.db"),
			BusyTimeoutMs: 5000,
			HistoryLimit:  50,
		},
		Watch: WatchConfig{
			Paths:        []string{},
			DebounceMs:   500,
			MaxFileSize:  10 * 1024 * 1024, // 10MB
			ReportFormat: "json",
		},
		Notify: NotifyConfig{
			Enabled:   true,
			OnSuccess: true,
			OnFailure: true,
			TimeoutMs: 5000,
		},
		Events: EventsConfig{
			Enabled:  true,
			FilePath: filepath.Join(dir, "events.log"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(dir, "promptproof.log"),
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// DataDir returns the base promptproof directory.
// Uses platform-specific paths or PROMPTPROOF_DATA_DIR environment override.
func DataDir() string {
	if envDir := os.Getenv("PROMPTPROOF_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates all directories the daemon needs, including
// any configured inbox directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Store.Path),
		filepath.Dir(c.Logging.FilePath),
		filepath.Dir(c.Events.FilePath),
	}
	dirs = append(dirs, c.Watch.Paths...)

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(expandPath(dir), 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Variables are prefixed with PROMPTPROOF_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PROMPTPROOF_GATEWAYS"); v != "" {
		c.Fetch.Gateways = splitList(v)
	}
	if v := os.Getenv("PROMPTPROOF_PATTERNS"); v != "" {
		c.Fetch.Patterns = splitList(v)
	}
	if v := os.Getenv("PROMPTPROOF_TIMEOUT_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			c.Fetch.TimeoutSec = sec
		}
	}
	if v := os.Getenv("PROMPTPROOF_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("PROMPTPROOF_INBOX"); v != "" {
		c.Watch.Paths = splitList(v)
	}
	if v := os.Getenv("PROMPTPROOF_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PROMPTPROOF_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("PROMPTPROOF_NOTIFY"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Notify.Enabled = enabled
		}
	}
}

// FetcherConfig builds the retrieval configuration for the fetch layer.
func (c *Config) FetcherConfig() provenance.FetchConfig {
	return provenance.FetchConfig{
		Gateways: append([]string{}, c.Fetch.Gateways...),
		Patterns: append([]string{}, c.Fetch.Patterns...),
		Timeout:  time.Duration(c.Fetch.TimeoutSec) * time.Second,
	}
}

// LoggerConfig builds the logging configuration for the given component.
func (c *Config) LoggerConfig(component string) *logging.Config {
	lc := logging.DefaultConfig()

	if level, err := logging.ParseLevel(c.Logging.Level); err == nil {
		lc.Level = level
	}
	if strings.EqualFold(c.Logging.Format, "json") {
		lc.Format = logging.FormatJSON
	} else {
		lc.Format = logging.FormatText
	}
	if c.Logging.Output != "" {
		lc.Output = c.Logging.Output
	}
	if c.Logging.FilePath != "" {
		lc.FilePath = expandPath(c.Logging.FilePath)
	}
	if c.Logging.MaxSizeMB > 0 {
		lc.MaxSize = int64(c.Logging.MaxSizeMB)
	}
	lc.MaxBackups = c.Logging.MaxBackups
	lc.MaxAge = c.Logging.MaxAgeDays
	lc.Compress = c.Logging.Compress
	if component != "" {
		lc.Component = component
	}
	return lc
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Fetch.Gateways = append([]string{}, c.Fetch.Gateways...)
	clone.Fetch.Patterns = append([]string{}, c.Fetch.Patterns...)
	clone.Watch.Paths = append([]string{}, c.Watch.Paths...)
	return &clone
}

// splitList splits a comma-separated environment value into a slice,
// trimming whitespace and dropping empty entries.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

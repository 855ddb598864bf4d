package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MigrationResult contains the result of a configuration migration.
type MigrationResult struct {
	FromVersion int
	ToVersion   int
	Backup      string
	Changes     []string
	Warnings    []string
}

// MigrateConfig migrates a configuration from an older version to the current version.
// It automatically creates a backup before migration.
func MigrateConfig(cfg *Config, configPath string) (*MigrationResult, error) {
	if cfg.Version >= Version {
		return nil, nil // No migration needed
	}

	result := &MigrationResult{
		FromVersion: cfg.Version,
		ToVersion:   Version,
	}

	// Create backup before migration
	if configPath != "" {
		backup, err := backupConfig(configPath)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("could not create backup: %v", err))
		} else {
			result.Backup = backup
		}
	}

	// Apply migrations in sequence
	for cfg.Version < Version {
		changes, warnings, err := applyMigration(cfg)
		if err != nil {
			return result, fmt.Errorf("migration from v%d to v%d failed: %w", cfg.Version, cfg.Version+1, err)
		}
		result.Changes = append(result.Changes, changes...)
		result.Warnings = append(result.Warnings, warnings...)
	}

	return result, nil
}

// applyMigration applies a single version upgrade.
func applyMigration(cfg *Config) (changes []string, warnings []string, err error) {
	switch cfg.Version {
	case 1:
		changes, warnings = migrateV1ToV2(cfg)
	default:
		return nil, nil, fmt.Errorf("unknown version %d", cfg.Version)
	}

	cfg.Version++
	return changes, warnings, nil
}

// migrateV1ToV2 migrates from version 1 to version 2.
// V1 was the original flat config with top-level gateways, timeout_sec,
// database_path, inbox_dir and log_path. V2 groups settings into sections
// and adds the store, notify and events sections.
func migrateV1ToV2(cfg *Config) (changes []string, warnings []string) {
	// The defaults are already set from DefaultConfig(), so we just need
	// to fill in anything the old format did not carry.
	def := DefaultConfig()

	if len(cfg.Fetch.Gateways) == 0 {
		cfg.Fetch.Gateways = def.Fetch.Gateways
		changes = append(changes, "set default fetch.gateways")
	}
	if len(cfg.Fetch.Patterns) == 0 {
		cfg.Fetch.Patterns = def.Fetch.Patterns
		changes = append(changes, "set default fetch.patterns")
	}
	if cfg.Fetch.TimeoutSec == 0 {
		cfg.Fetch.TimeoutSec = def.Fetch.TimeoutSec
		changes = append(changes, "set default fetch.timeout_sec")
	}

	if cfg.Store.Path == "" {
		cfg.Store = def.Store
		changes = append(changes, "added store section")
	}
	if cfg.Store.BusyTimeoutMs == 0 {
		cfg.Store.BusyTimeoutMs = def.Store.BusyTimeoutMs
	}
	if cfg.Store.HistoryLimit == 0 {
		cfg.Store.HistoryLimit = def.Store.HistoryLimit
	}

	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = def.Watch.DebounceMs
		changes = append(changes, "added watch section")
	}
	if cfg.Watch.MaxFileSize == 0 {
		cfg.Watch.MaxFileSize = def.Watch.MaxFileSize
	}
	if cfg.Watch.ReportFormat == "" {
		cfg.Watch.ReportFormat = def.Watch.ReportFormat
	}

	if cfg.Notify.TimeoutMs == 0 {
		cfg.Notify = def.Notify
		changes = append(changes, "added notify section")
	}

	if cfg.Events.FilePath == "" {
		cfg.Events = def.Events
		changes = append(changes, "added events section")
	}

	if cfg.Logging.Level == "" {
		cfg.Logging = def.Logging
		changes = append(changes, "added logging section")
	}

	return changes, warnings
}

// backupConfig creates a backup of the config file.
func backupConfig(configPath string) (string, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return "", nil // No file to backup
	}

	// Read original
	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config: %w", err)
	}

	// Create backup with timestamp
	timestamp := time.Now().Format("20060102-150405")
	backupPath := configPath + ".backup-" + timestamp

	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	return backupPath, nil
}

// MigrateLegacyConfig converts a legacy flat configuration map to the new format.
// This handles configurations that were stored as JSON maps rather than proper structs.
func MigrateLegacyConfig(data map[string]interface{}) (*Config, error) {
	cfg := DefaultConfig()

	// Extract version
	if v, ok := data["version"].(float64); ok {
		cfg.Version = int(v)
	} else {
		cfg.Version = 1 // Assume version 1 if not specified
	}

	// Extract legacy flat fields
	switch gw := data["gateways"].(type) {
	case []interface{}:
		var gateways []string
		for _, g := range gw {
			if s, ok := g.(string); ok && s != "" {
				gateways = append(gateways, s)
			}
		}
		if len(gateways) > 0 {
			cfg.Fetch.Gateways = gateways
		}
	case string:
		if list := splitList(gw); len(list) > 0 {
			cfg.Fetch.Gateways = list
		}
	}

	if timeout, ok := data["timeout_sec"].(float64); ok && timeout > 0 {
		cfg.Fetch.TimeoutSec = int(timeout)
	}

	if dbPath, ok := data["database_path"].(string); ok && dbPath != "" {
		cfg.Store.Path = dbPath
	}

	if inbox, ok := data["inbox_dir"].(string); ok && inbox != "" {
		cfg.Watch.Paths = []string{inbox}
	}

	if logPath, ok := data["log_path"].(string); ok && logPath != "" {
		cfg.Logging.FilePath = logPath
		cfg.Logging.Output = "file"
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a file.
func SaveConfig(cfg *Config, path string) error {
	// Determine format from extension
	ext := filepath.Ext(path)

	var data []byte
	var err error

	switch ext {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		// Default to TOML
		data = []byte(generateTOML(cfg))
	}

	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	// Write with secure permissions
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// generateTOML generates a well-formatted TOML configuration file.
func generateTOML(cfg *Config) string {
	return fmt.Sprintf(`# promptproof configuration
# Version %d

version = %d

# Gateways and URL patterns used to retrieve proof records.
# Each pattern must contain the {tx} placeholder.
[fetch]
gateways = %s
patterns = %s
timeout_sec = %d
cache_proofs = %t

# Local verification history (SQLite).
[store]
enabled = %t
path = "%s"
busy_timeout_ms = %d
history_limit = %d

# Inbox directories watched for verification request files.
[watch]
paths = %s
debounce_ms = %d
max_file_size = %d
report_format = "%s"

# Desktop notifications for completed verifications.
[notify]
enabled = %t
on_success = %t
on_failure = %t
timeout_ms = %d

# Structured event log (JSON lines).
[events]
enabled = %t
file_path = "%s"

[logging]
level = "%s"
format = "%s"
output = "%s"
file_path = "%s"
max_size_mb = %d
max_backups = %d
max_age_days = %d
compress = %t
`,
		Version,
		cfg.Version,
		toTOMLArray(cfg.Fetch.Gateways),
		toTOMLArray(cfg.Fetch.Patterns),
		cfg.Fetch.TimeoutSec,
		cfg.Fetch.CacheProofs,
		cfg.Store.Enabled,
		cfg.Store.Path,
		cfg.Store.BusyTimeoutMs,
		cfg.Store.HistoryLimit,
		toTOMLArray(cfg.Watch.Paths),
		cfg.Watch.DebounceMs,
		cfg.Watch.MaxFileSize,
		cfg.Watch.ReportFormat,
		cfg.Notify.Enabled,
		cfg.Notify.OnSuccess,
		cfg.Notify.OnFailure,
		cfg.Notify.TimeoutMs,
		cfg.Events.Enabled,
		cfg.Events.FilePath,
		cfg.Logging.Level,
		cfg.Logging.Format,
		cfg.Logging.Output,
		cfg.Logging.FilePath,
		cfg.Logging.MaxSizeMB,
		cfg.Logging.MaxBackups,
		cfg.Logging.MaxAgeDays,
		cfg.Logging.Compress,
	)
}

func toTOMLArray(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	result := "["
	for i, item := range items {
		if i > 0 {
			result += ", "
		}
		result += fmt.Sprintf(`"%s"`, item)
	}
	result += "]"
	return result
}

// GetMigrationHistory returns the migration history if stored in the data directory.
func GetMigrationHistory() ([]MigrationResult, error) {
	historyPath := filepath.Join(DataDir(), "migration_history.json")

	data, err := os.ReadFile(historyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migration history: %w", err)
	}

	var history []MigrationResult
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parse migration history: %w", err)
	}

	return history, nil
}

// SaveMigrationHistory saves a migration result to the history file.
func SaveMigrationHistory(result *MigrationResult) error {
	historyPath := filepath.Join(DataDir(), "migration_history.json")

	// Load existing history
	history, err := GetMigrationHistory()
	if err != nil {
		history = nil // Start fresh if error
	}

	// Append new result
	history = append(history, *result)

	// Save
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("encode migration history: %w", err)
	}

	dir := filepath.Dir(historyPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	if err := os.WriteFile(historyPath, data, 0600); err != nil {
		return fmt.Errorf("write migration history: %w", err)
	}

	return nil
}

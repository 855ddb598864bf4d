// Package config handles configuration loading and validation for promptproof.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"promptproof/pkg/provenance"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateFetch(&c.Fetch)...)
	errs = append(errs, validateStore(&c.Store)...)
	errs = append(errs, validateWatch(&c.Watch)...)
	errs = append(errs, validateNotify(&c.Notify)...)
	errs = append(errs, validateEvents(&c.Events)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateFetch(f *FetchConfig) ValidationErrors {
	var errs ValidationErrors

	if len(f.Gateways) == 0 {
		errs = append(errs, ValidationError{
			Field:   "fetch.gateways",
			Message: "at least one gateway is required",
		})
	}
	for i, gateway := range f.Gateways {
		if !isValidURL(gateway) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("fetch.gateways[%d]", i),
				Message: fmt.Sprintf("invalid gateway URL: %s", gateway),
			})
		}
	}

	if len(f.Patterns) == 0 {
		errs = append(errs, ValidationError{
			Field:   "fetch.patterns",
			Message: "at least one URL pattern is required",
		})
	}
	for i, pattern := range f.Patterns {
		if !strings.Contains(pattern, "{tx}") {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("fetch.patterns[%d]", i),
				Message: fmt.Sprintf("pattern must contain the {tx} placeholder: %s", pattern),
			})
		}
	}

	if f.TimeoutSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "fetch.timeout_sec",
			Message: "timeout must be at least 1 second",
		})
	}
	if f.TimeoutSec > 300 {
		errs = append(errs, ValidationError{
			Field:   "fetch.timeout_sec",
			Message: "timeout cannot exceed 300 seconds",
		})
	}

	return errs
}

func validateStore(s *StoreConfig) ValidationErrors {
	var errs ValidationErrors

	if !s.Enabled {
		return errs
	}

	if s.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "store.path",
			Message: "database path is required when the store is enabled",
		})
	} else {
		// Parent must either not exist yet or be a directory.
		dir := filepath.Dir(expandPath(s.Path))
		if dir != "" && dir != "." {
			if info, err := os.Stat(dir); err == nil && !info.IsDir() {
				errs = append(errs, ValidationError{
					Field:   "store.path",
					Message: fmt.Sprintf("parent path is not a directory: %s", dir),
				})
			}
		}
	}

	if s.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "store.busy_timeout_ms",
			Message: "busy timeout cannot be negative",
		})
	}

	if s.HistoryLimit < 1 {
		errs = append(errs, ValidationError{
			Field:   "store.history_limit",
			Message: "history limit must be at least 1",
		})
	}

	return errs
}

func validateWatch(w *WatchConfig) ValidationErrors {
	var errs ValidationErrors

	for i, path := range w.Paths {
		expanded := expandPath(path)
		if expanded == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("watch.paths[%d]", i),
				Message: "path cannot be empty",
			})
			continue
		}
		if _, err := os.Stat(expanded); os.IsNotExist(err) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("watch.paths[%d]", i),
				Message: fmt.Sprintf("path does not exist (created on startup): %s", expanded),
			})
		}
	}

	if w.DebounceMs < 100 {
		errs = append(errs, ValidationError{
			Field:   "watch.debounce_ms",
			Message: "debounce must be at least 100ms",
		})
	}
	if w.DebounceMs > 60000 {
		errs = append(errs, ValidationError{
			Field:   "watch.debounce_ms",
			Message: "debounce cannot exceed 60000ms (1 minute)",
		})
	}

	if w.MaxFileSize < 0 {
		errs = append(errs, ValidationError{
			Field:   "watch.max_file_size",
			Message: "max file size cannot be negative",
		})
	}

	if _, err := provenance.ParseReportFormat(w.ReportFormat); err != nil {
		errs = append(errs, ValidationError{
			Field:   "watch.report_format",
			Message: fmt.Sprintf("invalid report format: %s (valid: json, text, markdown)", w.ReportFormat),
		})
	}

	return errs
}

func validateNotify(n *NotifyConfig) ValidationErrors {
	var errs ValidationErrors

	if !n.Enabled {
		return errs
	}

	if n.TimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "notify.timeout_ms",
			Message: "timeout cannot be negative",
		})
	}

	return errs
}

func validateEvents(e *EventsConfig) ValidationErrors {
	var errs ValidationErrors

	if !e.Enabled {
		return errs
	}

	if e.FilePath == "" {
		errs = append(errs, ValidationError{
			Field:   "events.file_path",
			Message: "file path is required when the event log is enabled",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
		// No file path needed
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is %q", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

// Helper functions

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func isValidURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	// Inbox paths might not exist yet; they are created on startup.
	warningFields := []string{
		"watch.paths",
	}
	for _, f := range warningFields {
		if strings.HasPrefix(e.Field, f) {
			return true
		}
	}
	return false
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

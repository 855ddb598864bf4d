// Package logging provides structured logging with slog for promptproof.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// EventType classifies a daemon event.
type EventType string

// Event types recorded by the daemon.
const (
	EventStartup      EventType = "startup"
	EventShutdown     EventType = "shutdown"
	EventRequest      EventType = "request_received"
	EventVerification EventType = "verification"
	EventConfigReload EventType = "config_reload"
	EventError        EventType = "error"
)

// Event is one entry in the daemon event log. Events form the durable
// record of what the daemon did: which requests arrived, which proofs
// were checked and with what result, and when configuration changed.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"event_type"`
	Component string         `json:"component"`
	RequestID string         `json:"request_id,omitempty"`
	TxID      string         `json:"tx_id,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	Result    string         `json:"result"` // "success" or "failure"
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// EventLogConfig holds configuration for the event log.
type EventLogConfig struct {
	// FilePath is the path to the event log file.
	FilePath string

	// MaxSize is the maximum size in MB before rotation.
	MaxSize int64

	// MaxAge is the maximum age in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// Compress determines if rotated logs should be compressed.
	Compress bool

	// Component is the default component name for events.
	Component string
}

// DefaultEventLogConfig returns default event log configuration.
func DefaultEventLogConfig() *EventLogConfig {
	return &EventLogConfig{
		FilePath:   defaultEventLogPath(),
		MaxSize:    50, // 50 MB
		MaxAge:     90, // 90 days
		MaxBackups: 10,
		Compress:   true,
		Component:  "proofd",
	}
}

// defaultEventLogPath returns the platform-specific default event log path.
func defaultEventLogPath() string {
	switch runtime.GOOS {
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Logs", "promptproof", "events.log")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "promptproof", "logs", "events.log")
	default:
		stateHome := os.Getenv("XDG_STATE_HOME")
		if stateHome == "" {
			homeDir, _ := os.UserHomeDir()
			stateHome = filepath.Join(homeDir, ".local", "state")
		}
		return filepath.Join(stateHome, "promptproof", "events.log")
	}
}

// EventLog writes daemon events as JSON lines to a rotated file.
type EventLog struct {
	config  *EventLogConfig
	rotator *FileRotator
	mu      sync.Mutex
}

// NewEventLog creates an EventLog backed by a rotated file.
func NewEventLog(cfg *EventLogConfig) (*EventLog, error) {
	if cfg == nil {
		cfg = DefaultEventLogConfig()
	}

	rotator, err := NewFileRotator(&Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("create event log rotator: %w", err)
	}

	return &EventLog{
		config:  cfg,
		rotator: rotator,
	}, nil
}

// Log writes one event, filling in timestamp, component, and the
// request ID carried by ctx when the event does not set them.
func (e *EventLog) Log(ctx context.Context, event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Component == "" {
		event.Component = e.config.Component
	}
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	data = append(data, '\n')
	if _, err := e.rotator.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// LogStartup records a daemon start.
func (e *EventLog) LogStartup(ctx context.Context, version string) error {
	return e.Log(ctx, Event{
		Type:   EventStartup,
		Result: "success",
		Details: map[string]any{
			"version": version,
		},
	})
}

// LogShutdown records a daemon stop.
func (e *EventLog) LogShutdown(ctx context.Context, reason string) error {
	return e.Log(ctx, Event{
		Type:   EventShutdown,
		Result: "success",
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRequest records a verification request picked up from the inbox.
func (e *EventLog) LogRequest(ctx context.Context, path, txID string) error {
	return e.Log(ctx, Event{
		Type:     EventRequest,
		Resource: path,
		TxID:     txID,
		Result:   "success",
	})
}

// LogVerification records the outcome of one proof verification.
func (e *EventLog) LogVerification(ctx context.Context, txID string, verified bool, details map[string]any) error {
	result := "success"
	if !verified {
		result = "failure"
	}
	return e.Log(ctx, Event{
		Type:    EventVerification,
		TxID:    txID,
		Result:  result,
		Details: details,
	})
}

// LogConfigReload records a configuration reload, successful or not.
func (e *EventLog) LogConfigReload(ctx context.Context, path string, err error) error {
	event := Event{
		Type:     EventConfigReload,
		Resource: path,
		Result:   "success",
	}
	if err != nil {
		event.Result = "failure"
		event.Error = err.Error()
	}
	return e.Log(ctx, event)
}

// LogError records a failed operation.
func (e *EventLog) LogError(ctx context.Context, operation string, opErr error, details map[string]any) error {
	return e.Log(ctx, Event{
		Type:     EventError,
		Resource: operation,
		Result:   "failure",
		Error:    opErr.Error(),
		Details:  details,
	})
}

// Close closes the event log.
func (e *EventLog) Close() error {
	if e.rotator != nil {
		return e.rotator.Close()
	}
	return nil
}

// Sync flushes any buffered events.
func (e *EventLog) Sync() error {
	if e.rotator != nil {
		return e.rotator.Sync()
	}
	return nil
}

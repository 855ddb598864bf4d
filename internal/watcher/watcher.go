// Package watcher monitors inbox directories for verification request files.
//
// A request is a JSON file dropped into a watched directory. Files are
// debounced: a request must sit unchanged for the configured interval before
// it is parsed, schema-checked, and delivered on Requests(). Reports written
// back by the consumer use the ".report.json" suffix and are never picked up
// as requests.
package watcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"promptproof/internal/schemavalidation"
)

// reportSuffix marks answered requests. <name>.json gets <name>.report.json.
const reportSuffix = ".report.json"

// Request is a parsed verification request picked up from an inbox.
type Request struct {
	// ID is assigned at pickup and correlates log lines, stored rows,
	// and the written report.
	ID string

	// Path is the absolute path of the request file.
	Path string

	TxID   string
	Prompt string
	Output string

	// ReportFormat overrides the configured report format when set.
	ReportFormat string

	ReceivedAt time.Time
	Size       int64
}

// ReportPath returns the sibling path where the report for this request
// belongs.
func (r *Request) ReportPath() string {
	return reportPathFor(r.Path)
}

// RequestError reports a request file that could not be read, parsed, or
// validated. The consumer can write an error report next to the file.
type RequestError struct {
	Path string
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s: %v", e.Path, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// requestFile is the wire shape of an inbox file.
type requestFile struct {
	TxID         string `json:"tx_id"`
	Prompt       string `json:"prompt"`
	Output       string `json:"output"`
	ReportFormat string `json:"report_format"`
}

// Config controls inbox monitoring.
type Config struct {
	// Paths are the inbox directories. Missing directories are created
	// on Start.
	Paths []string

	// Debounce is how long a request file must stay unchanged before
	// pickup. Writers that stream the file in chunks stay invisible
	// until they finish.
	Debounce time.Duration

	// MaxFileSize rejects request files larger than this many bytes.
	// Zero means no limit.
	MaxFileSize int64
}

// Watcher monitors inbox directories and emits parsed requests.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	cfg       Config

	// pending: path -> last write time, swept for stability
	mu      sync.Mutex
	pending map[string]time.Time

	requests chan Request
	errors   chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Watcher. Call Start to begin monitoring.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, errors.New("watcher: no inbox paths configured")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		cfg:       cfg,
		pending:   make(map[string]time.Time),
		requests:  make(chan Request, 64),
		errors:    make(chan error, 16),
		done:      make(chan struct{}),
	}, nil
}

// Requests returns the channel of parsed requests. Closed by Close.
func (w *Watcher) Requests() <-chan Request {
	return w.requests
}

// Errors returns the channel of watch and parse errors. Closed by Close.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start creates missing inbox directories, registers watches, and queues
// requests that arrived while nothing was listening. Requests that already
// have a report are not replayed.
func (w *Watcher) Start() error {
	for _, path := range w.cfg.Paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(abs, 0700); err != nil {
			return fmt.Errorf("create inbox %s: %w", abs, err)
		}
		if err := w.fsWatcher.Add(abs); err != nil {
			return fmt.Errorf("watch %s: %w", abs, err)
		}

		entries, err := os.ReadDir(abs)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			p := filepath.Join(abs, entry.Name())
			if !isRequestFile(p) || hasReport(p) {
				continue
			}
			w.mu.Lock()
			w.pending[p] = now
			w.mu.Unlock()
		}
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.sweepLoop()
	return nil
}

// Close stops monitoring and closes the request and error channels.
// Call exactly once, after Start.
func (w *Watcher) Close() error {
	close(w.done)
	w.wg.Wait()
	close(w.requests)
	close(w.errors)
	return w.fsWatcher.Close()
}

// Paths returns the configured inbox directories.
func (w *Watcher) Paths() []string {
	return w.cfg.Paths
}

// Pending returns the number of files waiting out the debounce interval.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// eventLoop folds fsnotify events into the pending map.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isRequestFile(event.Name) {
				continue
			}
			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

// sweepLoop periodically delivers requests that have gone quiet.
func (w *Watcher) sweepLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(sweepInterval(w.cfg.Debounce))
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			if !w.sweep(now) {
				return
			}
		}
	}
}

// sweep delivers every pending file older than the debounce threshold.
// Returns false when the watcher shut down mid-delivery.
func (w *Watcher) sweep(now time.Time) bool {
	threshold := now.Add(-w.cfg.Debounce)

	w.mu.Lock()
	var ready []string
	for path, last := range w.pending {
		if last.Before(threshold) {
			ready = append(ready, path)
		}
	}
	for _, path := range ready {
		delete(w.pending, path)
	}
	w.mu.Unlock()

	// Deterministic pickup order when several requests land together.
	sort.Strings(ready)

	for _, path := range ready {
		req, err := w.loadRequest(path)
		if err != nil {
			w.reportError(&RequestError{Path: path, Err: err})
			continue
		}

		// Requests block rather than drop: the inbox is a queue, not a
		// sampling stream.
		select {
		case w.requests <- *req:
		case <-w.done:
			return false
		}
	}
	return true
}

// loadRequest reads, size-checks, schema-validates, and parses one file.
func (w *Watcher) loadRequest(path string) (*Request, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if w.cfg.MaxFileSize > 0 && info.Size() > w.cfg.MaxFileSize {
		return nil, fmt.Errorf("file is %d bytes, limit is %d", info.Size(), w.cfg.MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := schemavalidation.ValidateRequest(data); err != nil {
		return nil, err
	}

	var rf requestFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, err
	}

	return &Request{
		ID:           uuid.New().String(),
		Path:         path,
		TxID:         rf.TxID,
		Prompt:       rf.Prompt,
		Output:       rf.Output,
		ReportFormat: rf.ReportFormat,
		ReceivedAt:   time.Now().UTC(),
		Size:         info.Size(),
	}, nil
}

func (w *Watcher) reportError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

// isRequestFile filters watch events down to request files. Hidden files
// cover editor temp files; the report suffix keeps written reports from
// looping back in as requests.
func isRequestFile(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	if !strings.HasSuffix(name, ".json") {
		return false
	}
	if strings.HasSuffix(name, reportSuffix) {
		return false
	}
	return true
}

func hasReport(path string) bool {
	_, err := os.Stat(reportPathFor(path))
	return err == nil
}

func reportPathFor(path string) string {
	return strings.TrimSuffix(path, ".json") + reportSuffix
}

// sweepInterval picks a tick fine enough to honor short debounce settings
// without busy-polling for long ones.
func sweepInterval(debounce time.Duration) time.Duration {
	interval := debounce / 4
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}
	return interval
}

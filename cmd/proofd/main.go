// Command proofd is the promptproof watch daemon.
//
// It monitors one or more inbox directories for verification request files
// (JSON documents naming a ledger transaction and the prompt/output text to
// check), verifies each request against the configured gateways, writes a
// report file next to the request, records the outcome in the history
// database, and raises a desktop notification.
//
// Usage:
//
//	proofd [flags]
//
// A request is a *.json file:
//
//	{"tx_id": "...", "prompt": "...", "output": "...", "report_format": "json"}
//
// The answer lands next to it as <name>.report.json. Files ending in
// .report.json are never picked up as requests.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"promptproof/internal/config"
	"promptproof/internal/logging"
	"promptproof/internal/notify"
	"promptproof/internal/store"
	"promptproof/internal/watcher"
	"promptproof/pkg/provenance"
)

var (
	// Version information (set at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var (
	configPath = flag.String("config", "", "config file path")
	inboxFlag  = flag.String("inbox", "", "comma-separated inbox directories (overrides config)")
	logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error")
	daemonize  = flag.Bool("daemonize", false, "detach and run in the background")
	pidFile    = flag.String("pidfile", "", "write the daemon PID to this file")
	showVer    = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVer {
		fmt.Printf("proofd %s (commit: %s, built: %s)\n", version, commit, buildTime)
		return
	}

	if *daemonize {
		if err := detach(); err != nil {
			fmt.Fprintf(os.Stderr, "Error daemonizing: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "proofd: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `proofd - promptproof watch daemon

Watches inbox directories for verification request files, verifies each
against the configured ledger gateways, and writes a report next to the
request file.

Usage: proofd [flags]

Flags:`)
	flag.PrintDefaults()
}

func run() error {
	cfg, created, err := config.LoadOrCreate(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *inboxFlag != "" {
		cfg.Watch.Paths = splitList(*inboxFlag)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if len(cfg.Watch.Paths) == 0 {
		cfg.Watch.Paths = []string{filepath.Join(config.DataDir(), "inbox")}
	}
	if err := cfg.Validate(); err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) && verrs.HasErrors() {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LoggerConfig("proofd"))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		Version:   version,
		Component: "proofd",
	})

	if created {
		logger.Info("wrote default config", "path", configChoice())
	}

	if *pidFile != "" {
		if err := writePIDFile(*pidFile); err != nil {
			return err
		}
		defer os.Remove(*pidFile)
	}

	d, err := newDaemon(cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if d.events != nil {
		d.events.LogStartup(ctx, version)
		defer d.events.LogShutdown(context.Background(), "signal")
	}

	logger.Info("proofd started",
		"version", version,
		"inbox", cfg.Watch.Paths,
		"gateways", cfg.Fetch.Gateways,
	)

	var done error
	crash.Recover(func() {
		done = d.serve(ctx)
	})
	logger.Info("proofd stopped")
	return done
}

// daemon bundles the long-lived subsystems. The verifier is rebuilt on
// config reload under mu; everything else lives for the process.
type daemon struct {
	logger  *logging.Logger
	st      *store.Store
	events  *logging.EventLog
	notif   *notify.Notifier
	watch   *watcher.Watcher
	confLdr *config.Loader

	mu           sync.RWMutex
	verifier     *provenance.Verifier
	reportFormat provenance.ReportFormat
}

func newDaemon(cfg *config.Config, logger *logging.Logger) (*daemon, error) {
	d := &daemon{logger: logger}

	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.Path, cfg.Store.BusyTimeoutMs)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		d.st = st
	}

	if cfg.Events.Enabled {
		evCfg := logging.DefaultEventLogConfig()
		if cfg.Events.FilePath != "" {
			evCfg.FilePath = cfg.Events.FilePath
		}
		ev, err := logging.NewEventLog(evCfg)
		if err != nil {
			// The event log is observability, not correctness.
			logger.Warn("event log unavailable", "error", err)
		} else {
			d.events = ev
		}
	}

	d.notif = notify.New(notify.Config{
		Enabled:   cfg.Notify.Enabled,
		OnSuccess: cfg.Notify.OnSuccess,
		OnFailure: cfg.Notify.OnFailure,
		TimeoutMs: cfg.Notify.TimeoutMs,
	}, logger.Logger)

	d.applyConfig(cfg)

	w, err := watcher.New(watcher.Config{
		Paths:       cfg.Watch.Paths,
		Debounce:    time.Duration(cfg.Watch.DebounceMs) * time.Millisecond,
		MaxFileSize: cfg.Watch.MaxFileSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	d.watch = w

	// Hot reload: gateway, notification, and format changes take effect
	// without a restart. Inbox path changes still need one.
	ldr := config.NewLoader(configChoice())
	if _, err := ldr.Load(); err == nil {
		ldr.OnChange(func(next *config.Config) {
			d.applyConfig(next)
			d.logger.Info("config reloaded", "gateways", next.Fetch.Gateways)
			if d.events != nil {
				d.events.LogConfigReload(context.Background(), configChoice(), nil)
			}
		})
		if err := ldr.Watch(); err != nil {
			logger.Warn("config hot reload unavailable", "error", err)
		} else {
			d.confLdr = ldr
		}
	}

	return d, nil
}

// applyConfig rebuilds the verifier stack from a (re)loaded config.
func (d *daemon) applyConfig(cfg *config.Config) {
	var fetcher provenance.ProofFetcher = provenance.NewFetcher(cfg.FetcherConfig())
	if d.st != nil && cfg.Fetch.CacheProofs {
		fetcher = store.NewCachingFetcher(fetcher, d.st, d.logger.Logger)
	}
	verifier := provenance.NewVerifier(
		provenance.WithFetcher(fetcher),
		provenance.WithLogger(d.logger.Logger),
	)

	format := provenance.FormatJSON
	if f, err := provenance.ParseReportFormat(cfg.Watch.ReportFormat); err == nil {
		format = f
	}

	d.mu.Lock()
	d.verifier = verifier
	d.reportFormat = format
	d.mu.Unlock()
}

func (d *daemon) serve(ctx context.Context) error {
	if err := d.watch.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-d.watch.Requests():
			if !ok {
				return nil
			}
			d.handleRequest(ctx, req)
		case err, ok := <-d.watch.Errors():
			if !ok {
				return nil
			}
			d.logger.Warn("inbox error", "error", err)
			if d.events != nil {
				d.events.LogError(ctx, "inbox", err, nil)
			}
			var reqErr *watcher.RequestError
			if errors.As(err, &reqErr) {
				d.writeErrorReport(reqErr.Path, "", reqErr.Err)
			}
		}
	}
}

// handleRequest runs one verification end to end: verify, write the report
// file, record history, notify. Failures in the side effects are logged and
// do not stop the daemon.
func (d *daemon) handleRequest(ctx context.Context, req watcher.Request) {
	log := d.logger.WithRequestID(req.ID)
	ctx = logging.ContextWithRequestID(ctx, req.ID)
	log.Info("request received", "path", req.Path, "tx", req.TxID)
	if d.events != nil {
		d.events.LogRequest(ctx, req.Path, req.TxID)
	}

	d.mu.RLock()
	verifier := d.verifier
	format := d.reportFormat
	d.mu.RUnlock()
	if req.ReportFormat != "" {
		if f, err := provenance.ParseReportFormat(req.ReportFormat); err == nil {
			format = f
		}
	}

	report, err := verifier.Verify(ctx, req.TxID, req.Prompt, req.Output)
	if err != nil {
		kind := provenance.Classify(err)
		log.Error("verification failed", "tx", req.TxID, "kind", kind, "error", err)
		if d.events != nil {
			d.events.LogError(ctx, "verify", err, map[string]any{"tx_id": req.TxID, "kind": string(kind)})
		}
		d.writeErrorReport(req.Path, req.TxID, err)
		if nErr := d.notif.FetchError(req.TxID, err); nErr != nil {
			log.Debug("notification failed", "error", nErr)
		}
		return
	}

	log.Info("verification complete",
		"tx", req.TxID,
		"verified", report.Verified,
		"prompt_match", report.PromptMatch,
		"output_match", report.OutputMatch,
	)
	if d.events != nil {
		d.events.LogVerification(ctx, req.TxID, report.Verified, map[string]any{
			"prompt_match": report.PromptMatch,
			"output_match": report.OutputMatch,
			"source_url":   report.SourceURL,
		})
	}

	if err := d.writeReport(req.ReportPath(), report, format); err != nil {
		log.Error("write report", "path", req.ReportPath(), "error", err)
	}

	if d.st != nil {
		if err := d.st.InsertVerification(store.FromReport(report)); err != nil {
			log.Warn("record verification", "error", err)
		}
	}

	if err := d.notif.Verification(report); err != nil {
		log.Debug("notification failed", "error", err)
	}
}

func (d *daemon) writeReport(path string, report *provenance.Report, format provenance.ReportFormat) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return provenance.NewReportGenerator(format).WithVerbose(true).Generate(report, f)
}

// writeErrorReport leaves a machine-readable answer next to a request that
// could not be verified, so drop-and-poll clients see failures too.
func (d *daemon) writeErrorReport(reqPath, txID string, cause error) {
	path := reqPath
	if filepath.Ext(path) == ".json" {
		path = path[:len(path)-len(".json")]
	}
	path += ".report.json"

	body := fmt.Sprintf("{\n  \"tx_id\": %q,\n  \"error\": %q,\n  \"kind\": %q\n}\n",
		txID, cause.Error(), provenance.Classify(cause))
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		d.logger.Warn("write error report", "path", path, "error", err)
	}
}

func (d *daemon) close() {
	if d.confLdr != nil {
		d.confLdr.Close()
	}
	if d.watch != nil {
		d.watch.Close()
	}
	if d.notif != nil {
		d.notif.Close()
	}
	if d.events != nil {
		d.events.Close()
	}
	if d.st != nil {
		d.st.Close()
	}
}

// configChoice resolves the effective config path for logging and hot
// reload: the flag when given, the platform default otherwise.
func configChoice() string {
	if *configPath != "" {
		return *configPath
	}
	return config.ConfigPath()
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create pidfile directory: %w", err)
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid+"\n"), 0600); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}
	return nil
}

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

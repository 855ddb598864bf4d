// Command proofverify verifies AI output provenance proofs from the command line.
//
// Given a ledger transaction ID and the local prompt and output text, it
// retrieves the proof record from the configured gateways, recomputes the
// fingerprints, and reports whether they match.
//
// Usage:
//
//	proofverify [flags] <tx-id>
//
// Examples:
//
//	# Verify with inline text
//	proofverify -prompt "Write a haiku" -output "..." bNbA3TEQVL60hXKlhV-fXmDwL6BwujZ1Hqfn3citBVQ
//
//	# Verify from files, JSON report to a file
//	proofverify -prompt-file prompt.txt -output-file out.txt -format json -o report.json <tx-id>
//
//	# Exit code only, output text on stdin
//	cat output.txt | proofverify -quiet -prompt-file prompt.txt -output-file - <tx-id>
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"promptproof/internal/config"
	"promptproof/internal/logging"
	"promptproof/internal/store"
	"promptproof/pkg/provenance"
)

// Exit codes.
const (
	exitVerified    = 0
	exitNotVerified = 1
	exitNotFound    = 2
	exitCancelled   = 3
	exitUsage       = 4
)

var (
	// Version information (set at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs, opts := newFlagSet()
	if err := fs.Parse(os.Args[1:]); err != nil {
		return exitUsage
	}

	if opts.showVersion {
		fmt.Printf("proofverify %s (commit: %s, built: %s)\n", version, commit, buildTime)
		return exitVerified
	}

	txID := opts.txID
	if txID == "" && fs.NArg() >= 1 {
		txID = fs.Arg(0)
	}
	if txID == "" {
		fmt.Fprintf(os.Stderr, "Error: transaction ID required\n\n")
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return exitUsage
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	// The CLI always logs to stderr; file logging belongs to the daemon.
	logCfg := cfg.LoggerConfig("proofverify")
	logCfg.Output = "stderr"
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		return exitUsage
	}
	defer logger.Close()

	prompt, err := readText(opts.promptText, opts.promptFile, opts.outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading prompt: %v\n", err)
		return exitUsage
	}
	output, err := readText(opts.outputText, opts.outputFile, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading output: %v\n", err)
		return exitUsage
	}

	format, err := parseFormat(opts.format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitUsage
	}

	fetchCfg := cfg.FetcherConfig()
	if opts.gateways != "" {
		fetchCfg.Gateways = splitList(opts.gateways)
	}
	if opts.timeout > 0 {
		fetchCfg.Timeout = opts.timeout
	}

	var st *store.Store
	if cfg.Store.Enabled && !opts.noStore {
		st, err = store.Open(cfg.Store.Path, cfg.Store.BusyTimeoutMs)
		if err != nil {
			// History is best effort for the CLI; verification proceeds.
			fmt.Fprintf(os.Stderr, "Warning: history store unavailable: %v\n", err)
			st = nil
		} else {
			defer st.Close()
		}
	}

	var fetcher provenance.ProofFetcher = provenance.NewFetcher(fetchCfg)
	if st != nil && cfg.Fetch.CacheProofs {
		fetcher = store.NewCachingFetcher(fetcher, st, logger.Logger)
	}

	verifier := provenance.NewVerifier(
		provenance.WithFetcher(fetcher),
		provenance.WithLogger(logger.Logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := verifier.Verify(ctx, txID, prompt, output)
	if err != nil {
		switch provenance.Classify(err) {
		case provenance.KindNotFound:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitNotFound
		case provenance.KindCancelled:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitCancelled
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitUsage
		}
	}

	if st != nil {
		if insErr := st.InsertVerification(store.FromReport(report)); insErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not record verification: %v\n", insErr)
		}
	}

	if !opts.quiet {
		var w io.Writer = os.Stdout
		if opts.reportPath != "" {
			f, err := os.Create(opts.reportPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating report file: %v\n", err)
				return exitUsage
			}
			defer f.Close()
			w = f
		}

		generator := provenance.NewReportGenerator(format).WithVerbose(opts.verbose)
		if err := generator.Generate(report, w); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
			return exitUsage
		}
	}

	if report.Verified {
		return exitVerified
	}
	return exitNotVerified
}

// readText resolves one of the text sources: inline flag value or file.
// A file of "-" reads stdin; otherFile guards against consuming stdin twice.
func readText(inline, file, otherFile string) (string, error) {
	if inline != "" && file != "" {
		return "", fmt.Errorf("inline text and file flag are mutually exclusive")
	}
	if file == "" {
		return inline, nil
	}
	if file == "-" {
		if otherFile == "-" {
			return "", fmt.Errorf("stdin can only supply one of prompt and output")
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseFormat parses an output format string.
func parseFormat(s string) (provenance.ReportFormat, error) {
	if s == "md" {
		s = "markdown"
	}
	format, err := provenance.ParseReportFormat(s)
	if err != nil {
		return "", fmt.Errorf("%v (use json, text, or markdown)", err)
	}
	return format, nil
}

// splitList splits a comma-separated flag value, trimming whitespace.
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

// cliOptions collects every flag value.
type cliOptions struct {
	txID        string
	promptText  string
	promptFile  string
	outputText  string
	outputFile  string
	gateways    string
	timeout     time.Duration
	format      string
	reportPath  string
	configPath  string
	logLevel    string
	verbose     bool
	quiet       bool
	noStore     bool
	showVersion bool
}

func newFlagSet() (*flag.FlagSet, *cliOptions) {
	opts := &cliOptions{}
	fs := flag.NewFlagSet("proofverify", flag.ContinueOnError)

	fs.StringVar(&opts.txID, "tx", "", "ledger transaction ID (alternative to positional argument)")
	fs.StringVar(&opts.promptText, "prompt", "", "prompt text to verify")
	fs.StringVar(&opts.promptFile, "prompt-file", "", "file containing the prompt text (- for stdin)")
	fs.StringVar(&opts.outputText, "output", "", "output text to verify")
	fs.StringVar(&opts.outputFile, "output-file", "", "file containing the output text (- for stdin)")
	fs.StringVar(&opts.gateways, "gateways", "", "comma-separated gateway base URLs (overrides config)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "per-request fetch timeout (overrides config)")
	fs.StringVar(&opts.format, "format", "text", "report format: text, json, markdown")
	fs.StringVar(&opts.reportPath, "o", "", "write the report to this file instead of stdout")
	fs.StringVar(&opts.configPath, "config", "", "config file path")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&opts.verbose, "verbose", false, "full-length hashes in text output")
	fs.BoolVar(&opts.quiet, "quiet", false, "no report output, exit code only")
	fs.BoolVar(&opts.noStore, "no-store", false, "do not record this verification in history")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "proofverify - Verify AI output provenance proofs\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <tx-id>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExit Codes:\n")
		fmt.Fprintf(os.Stderr, "  0  proof verified\n")
		fmt.Fprintf(os.Stderr, "  1  proof retrieved but fingerprints do not match\n")
		fmt.Fprintf(os.Stderr, "  2  no proof record found\n")
		fmt.Fprintf(os.Stderr, "  3  lookup cancelled or timed out\n")
		fmt.Fprintf(os.Stderr, "  4  usage, configuration, or I/O error\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -prompt \"...\" -output \"...\" <tx-id>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -prompt-file p.txt -output-file o.txt -format json <tx-id>\n", os.Args[0])
	}

	return fs, opts
}

// proofctl is the control CLI for promptproof.
//
// It builds publisher-side proof records, retrieves and inspects records
// from the ledger gateways, runs compact verifications, and manages the
// verification history and configuration.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"promptproof/internal/config"
	"promptproof/internal/schemavalidation"
	"promptproof/internal/store"
	"promptproof/pkg/provenance"
)

var (
	// Version information (set at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var configPath = flag.String("config", "", "path to config file")

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	switch cmd := flag.Arg(0); cmd {
	case "record":
		cmdRecord(flag.Args()[1:])
	case "fetch":
		cmdFetch(flag.Args()[1:])
	case "verify":
		cmdVerify(flag.Args()[1:])
	case "history":
		cmdHistory(flag.Args()[1:])
	case "config":
		cmdConfig(flag.Args()[1:])
	case "version":
		fmt.Printf("proofctl %s (commit: %s, built: %s)\n", version, commit, buildTime)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `proofctl - Control utility for promptproof

Usage: proofctl [options] <command> [args]

Commands:
  record          Build an unsigned proof record from prompt/output text
  fetch <tx-id>   Retrieve and print the proof record for a transaction
  verify <tx-id>  Verify prompt/output text against a published proof
  history         List recorded verifications
  config <cmd>    Manage configuration (init, show, path)
  version         Print version information
  help            Show this help message

Options:
  -config <path>  Path to config file (default: platform config dir)

Run 'proofctl <command> -h' for command-specific flags.`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("loading config: %v", err)
	}
	return cfg
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// cmdRecord builds the canonical unsigned proof payload a publisher would
// submit. It fingerprints the texts and prints (or writes) snake_case JSON;
// signing and submission stay outside this tool.
func cmdRecord(args []string) {
	fs := flag.NewFlagSet("proofctl record", flag.ExitOnError)
	promptText := fs.String("prompt", "", "prompt text")
	promptFile := fs.String("prompt-file", "", "file containing the prompt text (- for stdin)")
	outputText := fs.String("output", "", "output text")
	outputFile := fs.String("output-file", "", "file containing the output text (- for stdin)")
	project := fs.String("project", "", "project name (default: "+provenance.DefaultProject+")")
	proofType := fs.String("proof-type", "", "proof type (default: "+provenance.DefaultProofType+")")
	aiModel := fs.String("ai-model", "", "AI model identifier")
	author := fs.String("author", "", "author attribution")
	org := fs.String("org", "", "organization attribution")
	validate := fs.Bool("validate", false, "validate the record against the published schema")
	tags := fs.Bool("tags", false, "also print the ledger tag pairs")
	outPath := fs.String("o", "", "write the record to this file instead of stdout")
	fs.Parse(args)

	prompt, err := readText(*promptText, *promptFile, *outputFile)
	if err != nil {
		fatalf("reading prompt: %v", err)
	}
	output, err := readText(*outputText, *outputFile, "")
	if err != nil {
		fatalf("reading output: %v", err)
	}

	rec := provenance.NewRecord(prompt, output, provenance.RecordMeta{
		Project:      *project,
		ProofType:    *proofType,
		AIModel:      *aiModel,
		Author:       *author,
		Organization: *org,
	})

	data, err := json.MarshalIndent(&rec, "", "  ")
	if err != nil {
		fatalf("encoding record: %v", err)
	}
	data = append(data, '\n')

	if *validate {
		if err := schemavalidation.ValidateProofRecord(data); err != nil {
			fatalf("record does not satisfy the schema: %v", err)
		}
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, data, 0600); err != nil {
			fatalf("writing record: %v", err)
		}
		fmt.Printf("Record written to %s\n", *outPath)
	} else {
		os.Stdout.Write(data)
	}

	if *tags {
		fmt.Println()
		fmt.Println("Ledger tags:")
		for _, tag := range provenance.LedgerTags("") {
			fmt.Printf("  %s: %s\n", tag.Name, tag.Value)
		}
	}
}

// cmdFetch retrieves a record and prints it, optionally consulting the
// local proof cache first. Ledger entries are immutable, so a cache hit is
// as good as a gateway response.
func cmdFetch(args []string) {
	fs := flag.NewFlagSet("proofctl fetch", flag.ExitOnError)
	gateways := fs.String("gateways", "", "comma-separated gateway base URLs (overrides config)")
	timeout := fs.Duration("timeout", 0, "per-request fetch timeout (overrides config)")
	cached := fs.Bool("cached", false, "consult the local proof cache before the gateways")
	showAttempts := fs.Bool("attempts", false, "also print each attempted URL and outcome")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fatalf("usage: proofctl fetch [flags] <tx-id>")
	}
	txID := fs.Arg(0)

	cfg := loadConfig()

	var st *store.Store
	if cfg.Store.Enabled {
		var err error
		st, err = store.Open(cfg.Store.Path, cfg.Store.BusyTimeoutMs)
		if err == nil {
			defer st.Close()
		} else {
			st = nil
		}
	}

	if *cached && st != nil {
		if hit, err := st.GetCachedProof(txID); err == nil && hit != nil {
			rec, err := provenance.DecodeRecord(hit.Payload)
			if err == nil {
				printRecord(rec, hit.SourceURL+" (cached)")
				return
			}
		}
	}

	fetchCfg := cfg.FetcherConfig()
	if *gateways != "" {
		fetchCfg.Gateways = splitList(*gateways)
	}
	if *timeout > 0 {
		fetchCfg.Timeout = *timeout
	}

	ctx, stop := signalContext()
	defer stop()

	res, err := provenance.NewFetcher(fetchCfg).Fetch(ctx, txID)
	if err != nil {
		fatalf("%v", err)
	}

	printRecord(res.Record, res.URL)
	if *showAttempts {
		fmt.Println()
		fmt.Println("Attempts:")
		for _, a := range res.Attempts {
			outcome := "ok"
			if a.Kind != provenance.KindNone {
				outcome = string(a.Kind)
			}
			fmt.Printf("  [%s] %s (%v)\n", outcome, a.URL, a.Duration.Round(time.Millisecond))
		}
	}

	if st != nil && cfg.Fetch.CacheProofs {
		st.CacheProof(&store.CachedProof{
			TxID:      txID,
			Payload:   res.Payload,
			SourceURL: res.URL,
			FetchedAt: time.Now().UTC().UnixNano(),
		})
	}
}

func printRecord(rec *provenance.Record, source string) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		fatalf("encoding record: %v", err)
	}
	os.Stdout.Write(append(data, '\n'))
	if source != "" {
		fmt.Fprintf(os.Stderr, "Source: %s\n", source)
	}
}

// cmdVerify is the compact verification path: one line of output, same
// exit-code contract as proofverify.
func cmdVerify(args []string) {
	fs := flag.NewFlagSet("proofctl verify", flag.ExitOnError)
	promptText := fs.String("prompt", "", "prompt text")
	promptFile := fs.String("prompt-file", "", "file containing the prompt text (- for stdin)")
	outputText := fs.String("output", "", "output text")
	outputFile := fs.String("output-file", "", "file containing the output text (- for stdin)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fatalf("usage: proofctl verify [flags] <tx-id>")
	}
	txID := fs.Arg(0)

	prompt, err := readText(*promptText, *promptFile, *outputFile)
	if err != nil {
		fatalf("reading prompt: %v", err)
	}
	output, err := readText(*outputText, *outputFile, "")
	if err != nil {
		fatalf("reading output: %v", err)
	}

	cfg := loadConfig()

	ctx, stop := signalContext()
	defer stop()

	verifier := provenance.NewVerifier(provenance.WithFetchConfig(cfg.FetcherConfig()))
	report, err := verifier.Verify(ctx, txID, prompt, output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		switch provenance.Classify(err) {
		case provenance.KindNotFound:
			os.Exit(2)
		case provenance.KindCancelled:
			os.Exit(3)
		default:
			os.Exit(4)
		}
	}

	if cfg.Store.Enabled {
		if st, err := store.Open(cfg.Store.Path, cfg.Store.BusyTimeoutMs); err == nil {
			st.InsertVerification(store.FromReport(report))
			st.Close()
		}
	}

	fmt.Println(report.Summary())
	if !report.Verified {
		os.Exit(1)
	}
}

// cmdHistory lists recorded verifications, newest first.
func cmdHistory(args []string) {
	fs := flag.NewFlagSet("proofctl history", flag.ExitOnError)
	tx := fs.String("tx", "", "only show verifications of this transaction")
	limit := fs.Int("limit", 0, "maximum rows to show (default: config history_limit)")
	asJSON := fs.Bool("json", false, "emit JSON instead of a table")
	fs.Parse(args)

	cfg := loadConfig()
	if !cfg.Store.Enabled {
		fatalf("the history store is disabled in the configuration")
	}

	st, err := store.Open(cfg.Store.Path, cfg.Store.BusyTimeoutMs)
	if err != nil {
		fatalf("opening store: %v", err)
	}
	defer st.Close()

	n := *limit
	if n <= 0 {
		n = cfg.Store.HistoryLimit
	}

	var rows []store.Verification
	if *tx != "" {
		rows, err = st.GetVerificationsByTx(*tx, n)
	} else {
		rows, err = st.GetRecentVerifications(n)
	}
	if err != nil {
		fatalf("reading history: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			fatalf("encoding history: %v", err)
		}
		return
	}

	if len(rows) == 0 {
		fmt.Println("No verifications recorded.")
		return
	}

	total, verified, err := st.Counts()
	if err == nil {
		fmt.Printf("%d verifications recorded, %d verified\n\n", total, verified)
	}
	fmt.Printf("%-20s  %-10s  %-8s  %-8s  %s\n", "WHEN", "RESULT", "PROMPT", "OUTPUT", "TX")
	for _, row := range rows {
		when := time.Unix(0, row.CreatedAt).UTC().Format("2006-01-02 15:04:05")
		fmt.Printf("%-20s  %-10s  %-8s  %-8s  %s\n",
			when,
			resultWord(row.Verified),
			matchWord(row.PromptMatch),
			matchWord(row.OutputMatch),
			row.TxID,
		)
	}
}

func resultWord(ok bool) string {
	if ok {
		return "VERIFIED"
	}
	return "MISMATCH"
}

func matchWord(ok bool) string {
	if ok {
		return "match"
	}
	return "differ"
}

// cmdConfig manages the configuration file.
func cmdConfig(args []string) {
	if len(args) < 1 {
		fatalf("usage: proofctl config <init|show|path>")
	}

	switch args[0] {
	case "init":
		path := *configPath
		if path == "" {
			path = config.ConfigPath()
		}
		_, created, err := config.LoadOrCreate(path)
		if err != nil {
			fatalf("initializing config: %v", err)
		}
		if created {
			fmt.Printf("Wrote default config to %s\n", path)
		} else {
			fmt.Printf("Config already exists at %s\n", path)
		}
	case "show":
		cfg := loadConfig()
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			fatalf("encoding config: %v", err)
		}
		os.Stdout.Write(append(data, '\n'))
	case "path":
		if *configPath != "" {
			fmt.Println(*configPath)
		} else {
			fmt.Println(config.ConfigPath())
		}
	default:
		fatalf("unknown config command %q (use init, show, or path)", args[0])
	}
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

package provenance

import (
	"context"
	"log/slog"
	"time"
)

// ProofFetcher retrieves the proof record for a transaction identifier.
// *Fetcher is the production implementation; tests substitute fakes.
type ProofFetcher interface {
	Fetch(ctx context.Context, txID string) (*FetchResult, error)
}

// Report is the outcome of one verification call. Constructed once, never
// mutated after return, owned by the caller. Serializes with snake_case
// keys; the schema lives in internal/schemavalidation.
type Report struct {
	TxID     string `json:"tx_id"`
	Verified bool   `json:"verified"`

	PromptMatch bool `json:"prompt_match"`
	OutputMatch bool `json:"output_match"`

	StoredPromptHash string `json:"stored_prompt_hash,omitempty"`
	LocalPromptHash  string `json:"local_prompt_hash"`
	StoredOutputHash string `json:"stored_output_hash,omitempty"`
	LocalOutputHash  string `json:"local_output_hash"`

	Metadata RecordMetadata `json:"metadata"`

	SourceURL  string        `json:"source_url,omitempty"`
	VerifiedAt time.Time     `json:"verified_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// Verifier orchestrates fetch, fingerprint, and comparison. Each call
// performs exactly one fetch; a Verifier is safe for concurrent use.
type Verifier struct {
	fetcher ProofFetcher
	log     *slog.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithFetcher substitutes the proof fetcher.
func WithFetcher(f ProofFetcher) VerifierOption {
	return func(v *Verifier) {
		if f != nil {
			v.fetcher = f
		}
	}
}

// WithFetchConfig constructs the fetcher from an explicit configuration.
func WithFetchConfig(cfg FetchConfig) VerifierOption {
	return func(v *Verifier) {
		v.fetcher = NewFetcher(cfg)
	}
}

// WithLogger routes engine logging to the given logger.
func WithLogger(log *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		if log != nil {
			v.log = log
		}
	}
}

// NewVerifier creates a Verifier with the default gateway configuration
// unless overridden by options.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		fetcher: NewFetcher(DefaultFetchConfig()),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify fetches the proof record for txID and compares its stored
// fingerprints against freshly computed fingerprints of prompt and output.
//
// Fetch errors (not found, cancellation) propagate unchanged; no local
// recovery or retry happens in this layer. A record that does not match is
// a successful verification with Verified=false, not an error. Stored
// hashes are compared with exact case-sensitive equality; absent or empty
// stored hashes never match.
func (v *Verifier) Verify(ctx context.Context, txID, prompt, output string) (*Report, error) {
	start := time.Now()

	res, err := v.fetcher.Fetch(ctx, txID)
	if err != nil {
		v.log.Debug("proof fetch failed", "tx", txID, "kind", Classify(err), "error", err)
		return nil, err
	}

	rec := res.Record
	report := &Report{
		TxID:             txID,
		StoredPromptHash: rec.PromptHash,
		LocalPromptHash:  Fingerprint(prompt),
		StoredOutputHash: rec.OutputHash,
		LocalOutputHash:  Fingerprint(output),
		Metadata:         rec.Metadata(),
		SourceURL:        res.URL,
		VerifiedAt:       start.UTC(),
	}
	report.PromptMatch = hashesEqual(report.StoredPromptHash, report.LocalPromptHash)
	report.OutputMatch = hashesEqual(report.StoredOutputHash, report.LocalOutputHash)
	report.Verified = report.PromptMatch && report.OutputMatch
	report.Duration = time.Since(start)

	v.log.Debug("verification complete",
		"tx", txID,
		"verified", report.Verified,
		"prompt_match", report.PromptMatch,
		"output_match", report.OutputMatch,
		"source", res.URL,
		"attempts", len(res.Attempts),
	)
	return report, nil
}

// VerifyTx is a convenience wrapper: one default Verifier, one call.
func VerifyTx(ctx context.Context, txID, prompt, output string) (*Report, error) {
	return NewVerifier().Verify(ctx, txID, prompt, output)
}

// hashesEqual compares a stored digest against a locally computed one.
// Exact and case-sensitive; an absent stored digest never matches.
func hashesEqual(stored, local string) bool {
	return stored != "" && stored == local
}

package provenance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default retrieval surface of the public ledger deployment.
var (
	// DefaultGateways are the gateway base URLs, in trial order.
	DefaultGateways = []string{
		"https://arweave.net",
		"https://ar-io.net",
	}

	// DefaultPatterns are the path templates, in trial order against each
	// gateway. {tx} is replaced with the transaction identifier. Gateways
	// expose the same entry under several shapes: the raw query form, the
	// bare path, and the two tx data API forms.
	DefaultPatterns = []string{
		"/{tx}?raw=1",
		"/{tx}",
		"/tx/{tx}/data",
		"/{tx}/data",
	}
)

// DefaultTimeout bounds each individual gateway request.
const DefaultTimeout = 20 * time.Second

// ErrNotFound matches any *NotFoundError via errors.Is.
var ErrNotFound = errors.New("provenance: proof not found")

// ErrorKind classifies engine failures for callers that map them to exit
// codes or UI states. Transport and decode kinds never escape the fetcher
// standalone; they appear only inside Attempt values and as the last cause
// folded into a NotFoundError.
type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindTransport ErrorKind = "transport"
	KindDecode    ErrorKind = "decode"
	KindNotFound  ErrorKind = "not_found"
	KindCancelled ErrorKind = "cancelled"
)

// Classify maps an error returned by this package to its ErrorKind.
// NotFound takes precedence over cancellation so that an exhausted candidate
// list whose last cause was a per-request timeout still reads as not found.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindTransport
	}
}

// FetchConfig configures a Fetcher. Zero-value fields fall back to the
// deployment defaults at construction; a constructed Fetcher never consults
// mutable package state.
type FetchConfig struct {
	// Gateways are base URLs tried in order, without trailing slash.
	Gateways []string `json:"gateways,omitempty"`

	// Patterns are path templates containing {tx}, tried in order against
	// each gateway.
	Patterns []string `json:"patterns,omitempty"`

	// Timeout applies to each individual request.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// DefaultFetchConfig returns the configuration of the public deployment.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Gateways: DefaultGateways,
		Patterns: DefaultPatterns,
		Timeout:  DefaultTimeout,
	}
}

// Candidates expands the gateway and pattern lists into the ordered
// candidate list, gateway-major: every pattern against the first gateway,
// then the next.
func (c FetchConfig) Candidates() []Candidate {
	out := make([]Candidate, 0, len(c.Gateways)*len(c.Patterns))
	for _, base := range c.Gateways {
		for _, pattern := range c.Patterns {
			out = append(out, Candidate{Base: base, Pattern: pattern})
		}
	}
	return out
}

// Candidate is one (gateway base, path pattern) pair describing a place and
// shape to look for a payload.
type Candidate struct {
	Base    string `json:"base"`
	Pattern string `json:"pattern"`
}

// URL substitutes txID into the candidate's pattern. The identifier is
// path-escaped but not otherwise validated; its format is ledger-defined.
func (c Candidate) URL(txID string) string {
	return strings.TrimSuffix(c.Base, "/") + strings.ReplaceAll(c.Pattern, "{tx}", url.PathEscape(txID))
}

// Attempt records the outcome of a single candidate URL fetch. Soft
// failures are values, not control flow: every attempt a fetch makes is
// visible in the FetchResult or the NotFoundError.
type Attempt struct {
	URL      string        `json:"url"`
	Kind     ErrorKind     `json:"kind,omitempty"`
	Status   int           `json:"status,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration_ns"`
}

// FetchResult is a successful retrieval: the decoded record, the URL that
// served it, and the outcome of every attempt made along the way.
type FetchResult struct {
	Record   *Record   `json:"record"`
	URL      string    `json:"url"`
	Attempts []Attempt `json:"attempts"`

	// Payload is the response body exactly as the winning URL served it,
	// before any base64 unwrapping. Callers cache it and can re-decode
	// later with DecodeRecord.
	Payload []byte `json:"-"`
}

// NotFoundError reports that every candidate was exhausted without a usable
// payload. It enumerates each attempted URL and keeps the last underlying
// cause for diagnosis.
type NotFoundError struct {
	TxID     string
	Attempts []Attempt
	LastErr  error
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "provenance: no proof found for transaction %q after %d attempts", e.TxID, len(e.Attempts))
	if len(e.Attempts) > 0 {
		urls := make([]string, len(e.Attempts))
		for i, a := range e.Attempts {
			urls[i] = a.URL
		}
		fmt.Fprintf(&b, "; tried: %s", strings.Join(urls, ", "))
	}
	if e.LastErr != nil {
		fmt.Fprintf(&b, "; last error: %v", e.LastErr)
	}
	return b.String()
}

// Is reports ErrNotFound so callers can match with errors.Is without
// unpacking the attempt list.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Unwrap exposes the last underlying cause.
func (e *NotFoundError) Unwrap() error { return e.LastErr }

// Fetcher retrieves proof records from ledger gateways. A Fetcher is
// immutable after construction and safe for concurrent use.
type Fetcher struct {
	config FetchConfig
	client *http.Client
}

// NewFetcher creates a Fetcher. Zero-value config fields fall back to
// DefaultFetchConfig.
func NewFetcher(config FetchConfig) *Fetcher {
	def := DefaultFetchConfig()
	if len(config.Gateways) == 0 {
		config.Gateways = def.Gateways
	}
	if len(config.Patterns) == 0 {
		config.Patterns = def.Patterns
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &Fetcher{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Config returns the effective configuration.
func (f *Fetcher) Config() FetchConfig {
	return f.config
}

// Fetch retrieves and decodes the proof record for txID.
//
// Candidates are tried strictly in order, de-duplicated by expanded URL; the
// first successful decode wins and ends the loop, even if the record looks
// semantically incomplete. Transport and decode failures are soft: each is
// recorded as an Attempt and the next candidate is tried. When every
// candidate is exhausted the returned error is a *NotFoundError listing all
// attempted URLs plus the last underlying cause. A cancelled or expired
// caller context stops the loop with a cancellation error instead.
func (f *Fetcher) Fetch(ctx context.Context, txID string) (*FetchResult, error) {
	var (
		attempts []Attempt
		lastErr  error
	)
	tried := make(map[string]struct{})

	for _, cand := range f.config.Candidates() {
		u := cand.URL(txID)
		if _, dup := tried[u]; dup {
			continue
		}
		tried[u] = struct{}{}

		att, rec, body := f.attempt(ctx, u)
		attempts = append(attempts, att)
		if att.Err == nil {
			return &FetchResult{Record: rec, URL: u, Attempts: attempts, Payload: body}, nil
		}
		lastErr = att.Err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("provenance: fetch of %q cancelled after %d attempts: %w",
				txID, len(attempts), ctx.Err())
		}
	}

	return nil, &NotFoundError{TxID: txID, Attempts: attempts, LastErr: lastErr}
}

// attempt performs one GET and decode against a single URL.
func (f *Fetcher) attempt(ctx context.Context, u string) (att Attempt, rec *Record, payload []byte) {
	start := time.Now()
	att = Attempt{URL: u}
	defer func() {
		att.Duration = time.Since(start)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		att.Kind, att.Err = KindTransport, err
		return att, nil, nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		att.Kind, att.Err = KindTransport, err
		return att, nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	att.Status = resp.StatusCode

	if err != nil {
		att.Kind, att.Err = KindTransport, err
		return att, nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		att.Kind = KindTransport
		att.Err = fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return att, nil, nil
	}

	record, err := DecodeRecord(body)
	if err != nil {
		att.Kind, att.Err = KindDecode, err
		return att, nil, nil
	}
	return att, record, body
}

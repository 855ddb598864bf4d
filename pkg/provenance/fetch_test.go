package provenance

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func recordBody(t *testing.T, rec Record) []byte {
	t.Helper()
	data, err := rec.Encode()
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	return data
}

func serveRecord(t *testing.T, rec Record) *httptest.Server {
	t.Helper()
	body := recordBody(t, rec)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
}

// =============================================================================
// Candidate expansion
// =============================================================================

func TestCandidatesGatewayMajorOrder(t *testing.T) {
	cfg := FetchConfig{
		Gateways: []string{"https://one.example", "https://two.example"},
		Patterns: []string{"/{tx}", "/tx/{tx}/data"},
	}

	cands := cfg.Candidates()
	if len(cands) != 4 {
		t.Fatalf("expected 4 candidates, got %d", len(cands))
	}

	expected := []Candidate{
		{Base: "https://one.example", Pattern: "/{tx}"},
		{Base: "https://one.example", Pattern: "/tx/{tx}/data"},
		{Base: "https://two.example", Pattern: "/{tx}"},
		{Base: "https://two.example", Pattern: "/tx/{tx}/data"},
	}
	for i, want := range expected {
		if cands[i] != want {
			t.Errorf("candidate %d = %+v, want %+v", i, cands[i], want)
		}
	}
}

func TestCandidateURL(t *testing.T) {
	tests := []struct {
		name     string
		cand     Candidate
		txID     string
		expected string
	}{
		{
			name:     "raw query form",
			cand:     Candidate{Base: "https://arweave.net", Pattern: "/{tx}?raw=1"},
			txID:     "abc123",
			expected: "https://arweave.net/abc123?raw=1",
		},
		{
			name:     "tx data form",
			cand:     Candidate{Base: "https://arweave.net", Pattern: "/tx/{tx}/data"},
			txID:     "abc123",
			expected: "https://arweave.net/tx/abc123/data",
		},
		{
			name:     "trailing slash on base",
			cand:     Candidate{Base: "https://arweave.net/", Pattern: "/{tx}"},
			txID:     "abc123",
			expected: "https://arweave.net/abc123",
		},
		{
			name:     "identifier is path escaped",
			cand:     Candidate{Base: "https://arweave.net", Pattern: "/{tx}"},
			txID:     "a/b c",
			expected: "https://arweave.net/a%2Fb%20c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cand.URL(tt.txID); got != tt.expected {
				t.Errorf("URL = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestDefaultCandidateURLs(t *testing.T) {
	cands := DefaultFetchConfig().Candidates()
	if len(cands) != 8 {
		t.Fatalf("expected 8 default candidates, got %d", len(cands))
	}

	first := cands[0].URL("TX123")
	if first != "https://arweave.net/TX123?raw=1" {
		t.Errorf("first candidate URL = %s", first)
	}
	last := cands[7].URL("TX123")
	if last != "https://ar-io.net/TX123/data" {
		t.Errorf("last candidate URL = %s", last)
	}
}

// =============================================================================
// NewFetcher defaults
// =============================================================================

func TestNewFetcherZeroConfigFallsBack(t *testing.T) {
	f := NewFetcher(FetchConfig{})
	cfg := f.Config()

	if len(cfg.Gateways) != len(DefaultGateways) {
		t.Errorf("gateways = %v", cfg.Gateways)
	}
	if len(cfg.Patterns) != len(DefaultPatterns) {
		t.Errorf("patterns = %v", cfg.Patterns)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v", cfg.Timeout)
	}
}

func TestNewFetcherPartialOverride(t *testing.T) {
	f := NewFetcher(FetchConfig{
		Gateways: []string{"https://gw.example"},
		Timeout:  5 * time.Second,
	})
	cfg := f.Config()

	if len(cfg.Gateways) != 1 || cfg.Gateways[0] != "https://gw.example" {
		t.Errorf("gateways = %v", cfg.Gateways)
	}
	if len(cfg.Patterns) != len(DefaultPatterns) {
		t.Errorf("patterns should fall back to defaults, got %v", cfg.Patterns)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Timeout)
	}
}

// =============================================================================
// Fetch behavior
// =============================================================================

func TestFetchFirstSuccessWins(t *testing.T) {
	first := Record{Project: "first", PromptHash: "aaa"}
	second := Record{Project: "second", PromptHash: "bbb"}

	var secondHits atomic.Int32
	srv1 := serveRecord(t, first)
	defer srv1.Close()
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHits.Add(1)
		w.Write(recordBody(t, second))
	}))
	defer srv2.Close()

	f := NewFetcher(FetchConfig{
		Gateways: []string{srv1.URL, srv2.URL},
		Patterns: []string{"/{tx}"},
		Timeout:  5 * time.Second,
	})

	res, err := f.Fetch(context.Background(), "tx1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if res.Record.Project != "first" {
		t.Errorf("expected first candidate's record, got %q", res.Record.Project)
	}
	if res.URL != srv1.URL+"/tx1" {
		t.Errorf("source URL = %s", res.URL)
	}
	if string(res.Payload) != string(recordBody(t, first)) {
		t.Error("payload should be the body as served")
	}
	if len(res.Attempts) != 1 {
		t.Errorf("expected 1 attempt, got %d", len(res.Attempts))
	}
	if secondHits.Load() != 0 {
		t.Errorf("second candidate should never be tried, got %d hits", secondHits.Load())
	}
}

func TestFetchTransportFailureContinues(t *testing.T) {
	rec := Record{Project: "good", PromptHash: "aaa"}

	srv1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv1.Close()
	srv2 := serveRecord(t, rec)
	defer srv2.Close()

	f := NewFetcher(FetchConfig{
		Gateways: []string{srv1.URL, srv2.URL},
		Patterns: []string{"/{tx}"},
		Timeout:  5 * time.Second,
	})

	res, err := f.Fetch(context.Background(), "tx1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if res.Record.Project != "good" {
		t.Errorf("record = %q", res.Record.Project)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(res.Attempts))
	}
	if res.Attempts[0].Kind != KindTransport {
		t.Errorf("first attempt kind = %q, want transport", res.Attempts[0].Kind)
	}
	if res.Attempts[0].Status != http.StatusInternalServerError {
		t.Errorf("first attempt status = %d", res.Attempts[0].Status)
	}
	if res.Attempts[1].Kind != KindNone || res.Attempts[1].Err != nil {
		t.Errorf("second attempt should be clean: %+v", res.Attempts[1])
	}
}

func TestFetchDecodeFailureContinues(t *testing.T) {
	rec := Record{Project: "good", PromptHash: "aaa"}

	srv1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("!!! this page is neither JSON nor base64 !!!"))
	}))
	defer srv1.Close()
	srv2 := serveRecord(t, rec)
	defer srv2.Close()

	f := NewFetcher(FetchConfig{
		Gateways: []string{srv1.URL, srv2.URL},
		Patterns: []string{"/{tx}"},
		Timeout:  5 * time.Second,
	})

	res, err := f.Fetch(context.Background(), "tx1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if res.Record.Project != "good" {
		t.Errorf("record = %q", res.Record.Project)
	}
	if res.Attempts[0].Kind != KindDecode {
		t.Errorf("first attempt kind = %q, want decode", res.Attempts[0].Kind)
	}
}

func TestFetchBase64WrappedBody(t *testing.T) {
	rec := Record{Project: "wrapped", PromptHash: Fingerprint("p"), OutputHash: Fingerprint("o")}
	body := recordBody(t, rec)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(base64.RawURLEncoding.EncodeToString(body)))
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{
		Gateways: []string{srv.URL},
		Patterns: []string{"/tx/{tx}/data"},
		Timeout:  5 * time.Second,
	})

	res, err := f.Fetch(context.Background(), "tx1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if *res.Record != rec {
		t.Errorf("base64-served record mismatch: %+v", res.Record)
	}
	if string(res.Payload) != base64.RawURLEncoding.EncodeToString(body) {
		t.Error("payload should keep the base64 text exactly as served")
	}
}

func TestFetchAllCandidatesFailNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{
		Gateways: []string{srv.URL},
		Patterns: []string{"/{tx}", "/tx/{tx}/data"},
		Timeout:  5 * time.Second,
	})

	_, err := f.Fetch(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}

	if !errors.Is(err, ErrNotFound) {
		t.Errorf("errors.Is(err, ErrNotFound) = false for %v", err)
	}

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %T", err)
	}
	if nf.TxID != "missing" {
		t.Errorf("TxID = %q", nf.TxID)
	}
	if len(nf.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(nf.Attempts))
	}
	if nf.LastErr == nil {
		t.Error("LastErr should carry the final cause")
	}

	msg := err.Error()
	for _, u := range []string{srv.URL + "/missing", srv.URL + "/tx/missing/data"} {
		if !strings.Contains(msg, u) {
			t.Errorf("error message should enumerate %s: %s", u, msg)
		}
	}
	if !strings.Contains(msg, "404") {
		t.Errorf("error message should carry the last cause: %s", msg)
	}
}

func TestFetchUnreachableGatewayNotFound(t *testing.T) {
	// Port 1 on localhost has no listener; connections are refused fast.
	f := NewFetcher(FetchConfig{
		Gateways: []string{"http://127.0.0.1:1"},
		Patterns: []string{"/{tx}"},
		Timeout:  2 * time.Second,
	})

	_, err := f.Fetch(context.Background(), "tx1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found for unreachable gateway, got %v", err)
	}
}

func TestFetchDeduplicatesCollidingURLs(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{
		Gateways: []string{srv.URL, srv.URL},
		Patterns: []string{"/{tx}", "/{tx}"},
		Timeout:  5 * time.Second,
	})

	_, err := f.Fetch(context.Background(), "tx1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected exactly 1 request after dedupe, got %d", hits.Load())
	}

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %T", err)
	}
	if len(nf.Attempts) != 1 {
		t.Errorf("expected 1 recorded attempt, got %d", len(nf.Attempts))
	}
}

func TestFetchIncompleteRecordStillWins(t *testing.T) {
	// A decodable record missing its hash fields ends the candidate loop;
	// missing hashes are judged at verification time.
	var secondHits atomic.Int32
	srv1 := serveRecord(t, Record{Project: "no hashes here"})
	defer srv1.Close()
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHits.Add(1)
		w.Write(recordBody(t, Record{PromptHash: "aaa", OutputHash: "bbb"}))
	}))
	defer srv2.Close()

	f := NewFetcher(FetchConfig{
		Gateways: []string{srv1.URL, srv2.URL},
		Patterns: []string{"/{tx}"},
		Timeout:  5 * time.Second,
	})

	res, err := f.Fetch(context.Background(), "tx1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Record.Project != "no hashes here" {
		t.Errorf("record = %+v", res.Record)
	}
	if secondHits.Load() != 0 {
		t.Error("loop should stop at first successful decode")
	}
}

func TestFetchCancelledContext(t *testing.T) {
	srv := serveRecord(t, Record{Project: "p"})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(FetchConfig{
		Gateways: []string{srv.URL},
		Patterns: []string{"/{tx}"},
		Timeout:  5 * time.Second,
	})

	_, err := f.Fetch(ctx, "tx1")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("cancellation must not read as not found: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain: %v", err)
	}
	if Classify(err) != KindCancelled {
		t.Errorf("Classify = %q, want cancelled", Classify(err))
	}
}

// =============================================================================
// Classify
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{name: "nil", err: nil, expected: KindNone},
		{name: "not found", err: &NotFoundError{TxID: "t"}, expected: KindNotFound},
		{name: "wrapped not found", err: fmt.Errorf("outer: %w", &NotFoundError{TxID: "t"}), expected: KindNotFound},
		{name: "cancelled", err: context.Canceled, expected: KindCancelled},
		{name: "deadline", err: context.DeadlineExceeded, expected: KindCancelled},
		{name: "wrapped cancel", err: fmt.Errorf("fetch cancelled: %w", context.Canceled), expected: KindCancelled},
		{name: "other", err: errors.New("connection refused"), expected: KindTransport},
		{
			// A timeout as the last cause of an exhausted candidate list still
			// reads as not found.
			name:     "not found with timeout cause",
			err:      &NotFoundError{TxID: "t", LastErr: context.DeadlineExceeded},
			expected: KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.expected {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestNotFoundErrorMessageShape(t *testing.T) {
	err := &NotFoundError{
		TxID: "abc",
		Attempts: []Attempt{
			{URL: "https://one.example/abc", Kind: KindTransport},
			{URL: "https://two.example/abc", Kind: KindDecode},
		},
		LastErr: errors.New("invalid payload"),
	}

	msg := err.Error()
	for _, want := range []string{`"abc"`, "2 attempts", "https://one.example/abc", "https://two.example/abc", "invalid payload"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q: %s", want, msg)
		}
	}
}

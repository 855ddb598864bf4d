//go:build integration

// Package integration provides end-to-end integration tests for promptproof.
//
// These tests verify the complete flow from proof retrieval through
// verification, history recording, and inbox watching, against an
// in-process fake gateway.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"promptproof/internal/store"
	"promptproof/pkg/provenance"
)

// fakeGateway serves proof records under the four URL shapes the fetcher
// knows. The raw shapes serve JSON directly, the tx data shapes serve it
// base64-wrapped, like the real gateways.
type fakeGateway struct {
	mu      sync.Mutex
	records map[string][]byte
	hits    []string
	rawDown bool // 500 on the raw shapes
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{records: make(map[string][]byte)}
}

func (g *fakeGateway) put(t *testing.T, txID string, rec provenance.Record) {
	t.Helper()
	data, err := json.Marshal(&rec)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	g.mu.Lock()
	g.records[txID] = data
	g.mu.Unlock()
}

func (g *fakeGateway) requests() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.hits...)
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.hits = append(g.hits, r.URL.Path)
	rawDown := g.rawDown
	g.mu.Unlock()

	tx, wrapped := parseGatewayPath(r.URL.Path)
	if tx == "" {
		http.NotFound(w, r)
		return
	}

	g.mu.Lock()
	payload, ok := g.records[tx]
	g.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	if wrapped {
		io.WriteString(w, base64.RawURLEncoding.EncodeToString(payload))
		return
	}
	if rawDown {
		http.Error(w, "gateway error", http.StatusInternalServerError)
		return
	}
	w.Write(payload)
}

func parseGatewayPath(path string) (tx string, wrapped bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 1:
		return parts[0], false
	case len(parts) == 2 && parts[1] == "data":
		return parts[0], true
	case len(parts) == 3 && parts[0] == "tx" && parts[2] == "data":
		return parts[1], true
	}
	return "", false
}

// startGateway runs a fake gateway and returns it with its base URL.
func startGateway(t *testing.T) (*fakeGateway, string) {
	t.Helper()
	gw := newFakeGateway()
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return gw, srv.URL
}

// testFetchConfig builds a fetch configuration pointing at the given bases
// with the production URL patterns and a short timeout.
func testFetchConfig(bases ...string) provenance.FetchConfig {
	return provenance.FetchConfig{
		Gateways: bases,
		Patterns: provenance.DefaultPatterns,
		Timeout:  5 * time.Second,
	}
}

// openTestStore opens a history store in a temp directory.
func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir()+"/history.db", 0)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// publishedRecord builds a record whose fingerprints match prompt/output.
func publishedRecord(prompt, output string) provenance.Record {
	return provenance.NewRecord(prompt, output, provenance.RecordMeta{
		AIModel: "gpt-4o",
		Author:  "integration@example.com",
	})
}

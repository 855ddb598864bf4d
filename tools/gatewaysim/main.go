// gatewaysim serves proof records under the URL shapes of the public
// Arweave gateways, so proofverify/proofctl/proofd can be exercised without
// touching the ledger.
//
// Records are loaded from a directory of <tx-id>.json files and can be added
// at runtime with PUT /<tx-id>. The raw shapes (/{tx}?raw=1, /{tx}) serve
// the JSON as-is; the tx data shapes (/tx/{tx}/data, /{tx}/data) serve it
// base64-wrapped, matching real gateway behavior.
//
// Usage:
//
//	go run ./tools/gatewaysim -addr :1984 -dir ./records
//	proofverify -gateways http://localhost:1984 -prompt ... -output ... <tx-id>
package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	addr    = flag.String("addr", ":1984", "listen address")
	dir     = flag.String("dir", "", "directory of <tx-id>.json record files to preload")
	latency = flag.Duration("latency", 0, "artificial delay before each response")
	failRaw = flag.Bool("fail-raw", false, "return 500 on the raw shapes, forcing clients onto the base64 tx data shapes")
)

type simulator struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func main() {
	flag.Parse()

	sim := &simulator{records: make(map[string][]byte)}
	if *dir != "" {
		n, err := sim.loadDir(*dir)
		if err != nil {
			log.Fatalf("load records: %v", err)
		}
		log.Printf("loaded %d records from %s", n, *dir)
	}

	log.Printf("gatewaysim listening on %s", *addr)
	if err := http.ListenAndServe(*addr, sim); err != nil {
		log.Fatal(err)
	}
}

func (s *simulator) loadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return n, err
		}
		tx := strings.TrimSuffix(e.Name(), ".json")
		s.records[tx] = data
		n++
	}
	return n, nil
}

func (s *simulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if *latency > 0 {
		time.Sleep(*latency)
	}

	if r.Method == http.MethodPut {
		s.handlePut(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tx, wrapped, ok := parsePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	s.mu.RLock()
	payload, found := s.records[tx]
	s.mu.RUnlock()
	if !found {
		http.NotFound(w, r)
		return
	}

	if wrapped {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, base64.RawURLEncoding.EncodeToString(payload))
		return
	}
	if *failRaw {
		http.Error(w, "simulated gateway failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func (s *simulator) handlePut(w http.ResponseWriter, r *http.Request) {
	tx := strings.Trim(r.URL.Path, "/")
	if tx == "" || strings.Contains(tx, "/") {
		http.Error(w, "PUT /<tx-id>", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.records[tx] = body
	s.mu.Unlock()
	log.Printf("stored record for %s (%d bytes)", tx, len(body))
	fmt.Fprintf(w, "stored %s\n", tx)
}

// parsePath maps the four gateway URL shapes onto (tx, base64-wrapped).
func parsePath(path string) (tx string, wrapped bool, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return parts[0], false, true // /{tx} and /{tx}?raw=1
	case len(parts) == 2 && parts[1] == "data":
		return parts[0], true, true // /{tx}/data
	case len(parts) == 3 && parts[0] == "tx" && parts[2] == "data":
		return parts[1], true, true // /tx/{tx}/data
	default:
		return "", false, false
	}
}

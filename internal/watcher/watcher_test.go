package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, dir string, debounce time.Duration, maxSize int64) *Watcher {
	t.Helper()
	w, err := New(Config{Paths: []string{dir}, Debounce: debounce, MaxFileSize: maxSize})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Close() })
	return w
}

func writeRequest(t *testing.T, path, txID string) {
	t.Helper()
	doc := fmt.Sprintf(`{"tx_id": %q, "prompt": "p", "output": "o"}`, txID)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))
}

func waitRequest(t *testing.T, w *Watcher, timeout time.Duration) Request {
	t.Helper()
	select {
	case req, ok := <-w.Requests():
		require.True(t, ok, "request channel closed")
		return req
	case <-time.After(timeout):
		t.Fatal("timeout waiting for request")
		return Request{}
	}
}

func waitError(t *testing.T, w *Watcher, timeout time.Duration) error {
	t.Helper()
	select {
	case err, ok := <-w.Errors():
		require.True(t, ok, "error channel closed")
		return err
	case <-time.After(timeout):
		t.Fatal("timeout waiting for error")
		return nil
	}
}

func TestNewNoPaths(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNewDefaultsDebounce(t *testing.T) {
	w, err := New(Config{Paths: []string{t.TempDir()}})
	require.NoError(t, err)
	defer w.fsWatcher.Close()

	assert.Equal(t, 500*time.Millisecond, w.cfg.Debounce)
}

func TestIsRequestFile(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/inbox/req.json", true},
		{"/inbox/req-123.json", true},
		{"/inbox/.hidden.json", false},
		{"/inbox/.req.json.swp", false},
		{"/inbox/req.report.json", false},
		{"/inbox/notes.txt", false},
		{"/inbox/req.json.tmp", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isRequestFile(tc.path), tc.path)
	}
}

func TestReportPath(t *testing.T) {
	req := Request{Path: "/inbox/run-42.json"}
	assert.Equal(t, "/inbox/run-42.report.json", req.ReportPath())
}

func TestStartCreatesInbox(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox", "nested")
	newTestWatcher(t, dir, 100*time.Millisecond, 0)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPickupRequest(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, 100*time.Millisecond, 0)

	path := filepath.Join(dir, "run-1.json")
	writeRequest(t, path, "tx-pickup")

	req := waitRequest(t, w, 3*time.Second)
	assert.Equal(t, path, req.Path)
	assert.Equal(t, "tx-pickup", req.TxID)
	assert.Equal(t, "p", req.Prompt)
	assert.Equal(t, "o", req.Output)
	assert.NotEmpty(t, req.ID)
	assert.False(t, req.ReceivedAt.IsZero())
}

func TestRequestIDsUnique(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, 100*time.Millisecond, 0)

	writeRequest(t, filepath.Join(dir, "a.json"), "tx-a")
	writeRequest(t, filepath.Join(dir, "b.json"), "tx-b")

	first := waitRequest(t, w, 3*time.Second)
	second := waitRequest(t, w, 3*time.Second)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestDebounceCoalesces(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, 400*time.Millisecond, 0)

	path := filepath.Join(dir, "debounce.json")
	for i := 0; i < 5; i++ {
		doc := fmt.Sprintf(`{"tx_id": "tx-debounce", "prompt": "v%d", "output": "o"}`, i)
		require.NoError(t, os.WriteFile(path, []byte(doc), 0600))
		time.Sleep(100 * time.Millisecond)
	}

	req := waitRequest(t, w, 3*time.Second)
	assert.Equal(t, "tx-debounce", req.TxID)
	assert.Equal(t, "v4", req.Prompt, "pickup should see the settled content")

	select {
	case extra := <-w.Requests():
		t.Errorf("unexpected second request for %s", extra.Path)
	case <-time.After(600 * time.Millisecond):
	}
}

func TestInvalidRequestReportsError(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, 100*time.Millisecond, 0)

	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"prompt": "missing tx"}`), 0600))

	err := waitError(t, w, 3*time.Second)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, path, reqErr.Path)
}

func TestOversizeRequestRejected(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, 100*time.Millisecond, 16)

	path := filepath.Join(dir, "big.json")
	writeRequest(t, path, "tx-much-too-large-for-the-limit")

	err := waitError(t, w, 3*time.Second)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Contains(t, reqErr.Error(), "limit")
}

func TestExistingRequestsQueued(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stale.json")
	writeRequest(t, path, "tx-stale")

	w := newTestWatcher(t, dir, 100*time.Millisecond, 0)

	req := waitRequest(t, w, 3*time.Second)
	assert.Equal(t, "tx-stale", req.TxID)
}

func TestAnsweredRequestsNotReplayed(t *testing.T) {
	dir := t.TempDir()
	writeRequest(t, filepath.Join(dir, "done.json"), "tx-done")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "done.report.json"), []byte(`{}`), 0600))

	w := newTestWatcher(t, dir, 100*time.Millisecond, 0)
	assert.Equal(t, 0, w.Pending())

	select {
	case req := <-w.Requests():
		t.Errorf("answered request replayed: %s", req.Path)
	case <-time.After(800 * time.Millisecond):
	}
}

func TestReportFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, 100*time.Millisecond, 0)

	report := filepath.Join(dir, "other.report.json")
	require.NoError(t, os.WriteFile(report, []byte(`{}`), 0600))

	select {
	case req := <-w.Requests():
		t.Errorf("report file picked up as request: %s", req.Path)
	case <-time.After(800 * time.Millisecond):
	}
}

func TestPendingCount(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, 2*time.Second, 0)

	writeRequest(t, filepath.Join(dir, "waiting.json"), "tx-wait")
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, 1, w.Pending())
}

func TestSweepInterval(t *testing.T) {
	cases := []struct {
		debounce time.Duration
		want     time.Duration
	}{
		{100 * time.Millisecond, 50 * time.Millisecond},
		{500 * time.Millisecond, 125 * time.Millisecond},
		{10 * time.Second, time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sweepInterval(tc.debounce), tc.debounce.String())
	}
}

//go:build !linux

package notify

// busConn on non-Linux platforms accepts and drops every send. The daemon
// still runs; only the desktop popups are missing.
type busConn struct{}

func newBusConn() sender {
	return &busConn{}
}

func (b *busConn) send(cfg Config, summary, body string, urgent bool) error {
	return nil
}

func (b *busConn) close() error {
	return nil
}

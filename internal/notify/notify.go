// Package notify surfaces verification outcomes as desktop notifications.
// On Linux it speaks the org.freedesktop.Notifications D-Bus interface;
// elsewhere sends are silently dropped.
package notify

import (
	"fmt"
	"log/slog"

	"promptproof/pkg/provenance"
)

// Config controls which outcomes produce a notification.
type Config struct {
	Enabled   bool
	OnSuccess bool
	OnFailure bool

	// TimeoutMs is the notification expiry passed to the server.
	// 0 means never expire, -1 means server default.
	TimeoutMs int
}

// sender is the platform half of a Notifier. busConn implements it.
type sender interface {
	send(cfg Config, summary, body string, urgent bool) error
	close() error
}

// Notifier applies the Config gating and renders report text. Safe for
// concurrent use.
type Notifier struct {
	cfg Config
	log *slog.Logger
	bus sender
}

// New creates a Notifier. The bus connection is established lazily on the
// first send, so constructing a Notifier never fails.
func New(cfg Config, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{cfg: cfg, log: log, bus: newBusConn()}
}

// Close releases the bus connection if one was established.
func (n *Notifier) Close() error {
	return n.bus.close()
}

// Verification notifies about a completed verification, honoring the
// OnSuccess and OnFailure gates.
func (n *Notifier) Verification(rep *provenance.Report) error {
	if !n.cfg.Enabled {
		return nil
	}
	if rep.Verified && !n.cfg.OnSuccess {
		return nil
	}
	if !rep.Verified && !n.cfg.OnFailure {
		return nil
	}
	summary, body, urgent := renderVerification(rep)
	return n.bus.send(n.cfg, summary, body, urgent)
}

// FetchError notifies about a failed proof lookup. Gated by OnFailure.
func (n *Notifier) FetchError(txID string, err error) error {
	if !n.cfg.Enabled || !n.cfg.OnFailure {
		return nil
	}
	summary, body := renderFetchError(txID, err)
	return n.bus.send(n.cfg, summary, body, true)
}

func renderVerification(rep *provenance.Report) (summary, body string, urgent bool) {
	tx := shortTx(rep.TxID)
	if rep.Verified {
		return "Proof verified", fmt.Sprintf("%s\nPrompt and output match the ledger record.", tx), false
	}

	var detail string
	switch {
	case !rep.PromptMatch && !rep.OutputMatch:
		detail = "Neither prompt nor output matches the stored record."
	case !rep.PromptMatch:
		detail = "Prompt hash differs from the stored record."
	default:
		detail = "Output hash differs from the stored record."
	}
	return "Proof mismatch", fmt.Sprintf("%s\n%s", tx, detail), true
}

func renderFetchError(txID string, err error) (summary, body string) {
	tx := shortTx(txID)
	switch provenance.Classify(err) {
	case provenance.KindNotFound:
		return "Proof not found", fmt.Sprintf("No proof record found for %s on any gateway.", tx)
	case provenance.KindCancelled:
		return "Proof lookup cancelled", fmt.Sprintf("Lookup for %s did not complete.", tx)
	default:
		return "Proof lookup failed", fmt.Sprintf("Could not retrieve the proof record for %s: %v", tx, err)
	}
}

// shortTx abbreviates a transaction id for notification text. Full Arweave
// ids are 43 characters and overflow most notification popups.
func shortTx(txID string) string {
	if len(txID) <= 12 {
		return txID
	}
	return txID[:12] + "..."
}

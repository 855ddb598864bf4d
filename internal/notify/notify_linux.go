//go:build linux

package notify

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyService = "org.freedesktop.Notifications"
	notifyPath    = "/org/freedesktop/Notifications"
	notifyMethod  = "org.freedesktop.Notifications.Notify"
	appName       = "promptproof"
)

// Freedesktop urgency hint levels.
const (
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// busConn holds a lazily established session bus connection. A failed call
// drops the connection so the next send redials; session buses go away when
// the desktop session restarts.
type busConn struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func newBusConn() sender {
	return &busConn{}
}

func (b *busConn) send(cfg Config, summary, body string, urgent bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		conn, err := dbus.SessionBus()
		if err != nil {
			return fmt.Errorf("connect session bus: %w", err)
		}
		b.conn = conn
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgencyNormal),
	}
	if urgent {
		hints["urgency"] = dbus.MakeVariant(urgencyCritical)
	}

	obj := b.conn.Object(notifyService, notifyPath)
	call := obj.Call(notifyMethod, 0,
		appName,          // app_name
		uint32(0),        // replaces_id
		"",               // app_icon
		summary,          // summary
		body,             // body
		[]string{},       // actions
		hints,            // hints
		int32(cfg.TimeoutMs), // expire_timeout
	)
	if call.Err != nil {
		b.conn.Close()
		b.conn = nil
		return fmt.Errorf("notify call: %w", call.Err)
	}
	return nil
}

func (b *busConn) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

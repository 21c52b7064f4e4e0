// Package announce delivers desktop notifications for mixer state changes
// over the session bus. Delivery is best effort: a missing bus or
// notification daemon never fails the state change that triggered it.
package announce

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = "/org/freedesktop/Notifications"
	notifyMethod = "org.freedesktop.Notifications.Notify"

	// expiry in milliseconds; mute announcements go stale fast.
	notifyTimeout = 2000
)

// Notifier sends notifications via org.freedesktop.Notifications. It
// implements mixer.EventSink.
type Notifier struct {
	appName string
	logger  *slog.Logger

	mu     sync.Mutex
	conn   *dbus.Conn
	lastID uint32
}

// NewNotifier builds a notifier. The session bus is connected lazily on the
// first Send, so constructing one on a headless system is harmless.
func NewNotifier(appName string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{appName: appName, logger: logger}
}

// Send posts one notification. Each message replaces the previous one so a
// burst of mute toggles does not stack a column of popups.
func (n *Notifier) Send(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	conn, err := n.connection()
	if err != nil {
		return err
	}

	// Args per the Desktop Notifications spec: app_name, replaces_id,
	// app_icon, summary, body, actions, hints, expire_timeout.
	obj := conn.Object(notifyDest, notifyPath)
	call := obj.Call(notifyMethod, 0,
		n.appName, n.lastID, "audio-volume-high", n.appName, message,
		[]string{}, map[string]dbus.Variant{}, int32(notifyTimeout))
	if call.Err != nil {
		// A dead daemon invalidates the cached connection; reconnect next time.
		conn.Close()
		n.conn = nil
		n.lastID = 0
		return fmt.Errorf("notify: %w", call.Err)
	}

	if err := call.Store(&n.lastID); err != nil {
		return fmt.Errorf("notify reply: %w", err)
	}
	return nil
}

// Close drops the bus connection.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}

func (n *Notifier) connection() (*dbus.Conn, error) {
	if n.conn != nil {
		return n.conn, nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	n.conn = conn
	n.logger.Debug("connected to session bus for notifications")
	return conn, nil
}

// Package transport implements the command transport to the mixer hardware:
// request framing and sequencing, desync recovery, read retries, disconnect
// signalling, and the background input poller.
//
// Exactly one goroutine may call Request at a time per device; the engine
// serialises callers internally but is designed for a single-owner actor
// (see cmd/mixerd). The poller cooperates through a shared pause flag rather
// than queueing behind foreground commands.
package transport

import (
	"errors"
	"fmt"

	"mixerd/protocol"
)

// Engine is the sole path to a physical device. The controller depends only
// on this interface; backends (USB, test fakes) are swappable at attach time
// and never mixed at runtime.
type Engine interface {
	// Request performs one command exchange and returns the response body.
	// After a fatal failure it returns ErrDisconnected for all calls.
	Request(op protocol.Opcode, body []byte) ([]byte, error)

	// IsConnected reports whether the device is still reachable.
	IsConnected() bool

	// SetSerial records the device serial used in disconnect notifications.
	SetSerial(serial string)

	Close() error
}

// ErrDisconnected is returned for any request made after the engine has
// reported a fatal transport failure.
var ErrDisconnected = errors.New("transport: device disconnected")

// errNotReady is the normalised "response not arrived yet" signal from a
// backend; the engine retries these up to the configured ceiling.
var errNotReady = errors.New("transport: device not ready")

// DesyncError reports a response carrying the wrong sequence number. One
// resync is attempted per original request; a second mismatch escalates the
// desync to a fatal disconnect.
type DesyncError struct {
	Expected uint16
	Received uint16
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("transport: sequence desync: expected %d, received %d", e.Expected, e.Received)
}

func isNotReady(err error) bool {
	return errors.Is(err, errNotReady)
}

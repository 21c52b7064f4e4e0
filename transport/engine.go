package transport

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"mixerd/protocol"
)

// Control-transfer request codes understood by the vendor interface.
const (
	ctrlActivate      = 0 // read-only, issued once at attach
	ctrlResetSequence = 1 // resets the device-side sequence counter
	ctrlSendCommand   = 2 // framed command, OUT
	ctrlReadResponse  = 3 // framed response, IN
)

// readAttempts bounds the response poll loop. Worst-case latency of a single
// command is readAttempts times the quiescence interval.
const readAttempts = 20

// Empirically tuned per hardware class; see Config.Quiescence.
const (
	QuiescenceFull = 3 * time.Millisecond
	QuiescenceMini = 10 * time.Millisecond
)

// controlDevice is the narrow slice of a USB handle the engine needs. The
// real implementation wraps a vendor-interface control endpoint; tests
// substitute a scripted fake.
type controlDevice interface {
	WriteVendor(request uint8, value, index uint16, data []byte) error
	// ReadVendor returns errNotReady (possibly wrapped) while the device has
	// not produced a response yet.
	ReadVendor(request uint8, value, index uint16, length int) ([]byte, error)
	Close() error
}

// Config carries the per-attachment engine tuning.
type Config struct {
	// Quiescence is the device-class-dependent settle time between writing a
	// command and the first response read, and between read retries. The
	// values are empirically tuned magic numbers; keep them configurable and
	// do not assume they generalise to other hardware classes.
	Quiescence time.Duration

	// OnDisconnect is invoked exactly once when the device fails fatally.
	// May be nil.
	OnDisconnect func(serial string)

	// Pause is shared with the background poller: held true for the duration
	// of every foreground request. If nil a private flag is used.
	Pause *atomic.Bool

	Logger *slog.Logger
}

// engine sequences commands over a controlDevice. It owns the sequence
// counter for the connection; sequence state never survives a reattach.
type engine struct {
	dev    controlDevice
	logger *slog.Logger

	mu     sync.Mutex
	seq    uint16
	serial string

	quiescence time.Duration
	pause      *atomic.Bool

	disconnected bool
	onDisconnect func(serial string)

	// sleep is swapped out by tests to avoid real delays.
	sleep func(time.Duration)
}

// NewEngine builds an Engine over an already-attached control device.
func NewEngine(dev controlDevice, cfg Config) Engine {
	if cfg.Quiescence <= 0 {
		cfg.Quiescence = QuiescenceFull
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	pause := cfg.Pause
	if pause == nil {
		pause = &atomic.Bool{}
	}
	return &engine{
		dev:          dev,
		logger:       cfg.Logger,
		quiescence:   cfg.Quiescence,
		pause:        pause,
		onDisconnect: cfg.OnDisconnect,
		sleep:        time.Sleep,
	}
}

func (e *engine) SetSerial(serial string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.serial = serial
}

func (e *engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disconnected = true
	return e.dev.Close()
}

func (e *engine) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.disconnected
}

func (e *engine) Request(op protocol.Opcode, body []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disconnected {
		return nil, ErrDisconnected
	}

	e.pause.Store(true)
	defer e.pause.Store(false)

	return e.perform(op, body, false)
}

// perform runs one exchange. isRetry marks the single post-resync replay; a
// desync while isRetry is set is fatal, which bounds recovery to one resync
// per original request.
func (e *engine) perform(op protocol.Opcode, body []byte, isRetry bool) ([]byte, error) {
	if op == protocol.OpResetSequence {
		e.seq = 0
	} else {
		if e.seq == math.MaxUint16 {
			if _, err := e.perform(protocol.OpResetSequence, nil, isRetry); err != nil {
				return nil, err
			}
		}
		e.seq++
	}
	seq := e.seq

	frame := protocol.EncodeFrame(op, seq, body)
	if err := e.dev.WriteVendor(ctrlSendCommand, 0, 0, frame); err != nil {
		e.logger.Debug("command write failed", "opcode", uint32(op), "error", err)
		e.fail()
		return nil, fmt.Errorf("write command %#x: %w", uint32(op), err)
	}

	// The device is not instantly ready to answer.
	e.sleep(e.quiescence)

	for attempt := 1; attempt <= readAttempts; attempt++ {
		raw, err := e.dev.ReadVendor(ctrlReadResponse, 0, 0, protocol.ResponseBufferSize)
		if err != nil {
			if isNotReady(err) {
				if attempt == readAttempts {
					e.logger.Warn("no response after final attempt, device presumed dead",
						"opcode", uint32(op), "attempts", readAttempts)
					e.fail()
					return nil, fmt.Errorf("no response after %d attempts: %w", readAttempts, err)
				}
				e.logger.Debug("response not ready, retrying",
					"opcode", uint32(op), "attempt", attempt)
				e.sleep(e.quiescence)
				continue
			}
			// Lower-level I/O failure: handle invalidated or device removed.
			e.fail()
			return nil, fmt.Errorf("read response: %w", err)
		}

		gotSeq, respBody, perr := protocol.ParseResponse(raw)
		if perr != nil {
			// A truncated response is another shape of "not ready".
			if attempt == readAttempts {
				e.fail()
				return nil, fmt.Errorf("no usable response after %d attempts: %w", readAttempts, perr)
			}
			e.sleep(e.quiescence)
			continue
		}

		if gotSeq != seq {
			desync := &DesyncError{Expected: seq, Received: gotSeq}
			if isRetry {
				e.logger.Warn("resync failed, disconnecting", "error", desync)
				e.fail()
				return nil, desync
			}

			e.logger.Debug("sequence mismatch, attempting resync", "error", desync)
			if _, err := e.perform(protocol.OpResetSequence, nil, true); err != nil {
				return nil, err
			}
			return e.perform(op, body, true)
		}

		return respBody, nil
	}

	// Unreachable: the loop always returns on the final attempt.
	e.fail()
	return nil, ErrDisconnected
}

// fail marks the engine dead and delivers the disconnect notification exactly
// once. Called with e.mu held.
func (e *engine) fail() {
	if e.disconnected {
		return
	}
	e.disconnected = true
	if e.onDisconnect != nil {
		e.onDisconnect(e.serial)
	}
}

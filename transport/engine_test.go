package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"mixerd/protocol"
)

// fakeDevice is a scripted control device. By default every read echoes the
// sequence number of the most recently written frame with an empty body.
// Tests queue fault injections: a number of "not ready" reads, sequence
// overrides, or hard I/O errors.
type fakeDevice struct {
	frames [][]byte // every frame written via ctrlSendCommand

	notReady     int   // pending not-ready reads before the next response
	seqOverrides []int // per-response sequence override queue; -1 echoes
	readErr      error // hard error returned by every read once set
	writeErr     error // hard error returned by every write once set

	closed bool
}

func (f *fakeDevice) WriteVendor(request uint8, value, index uint16, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	if request == ctrlSendCommand {
		frame := make([]byte, len(data))
		copy(frame, data)
		f.frames = append(f.frames, frame)
	}
	return nil
}

func (f *fakeDevice) ReadVendor(request uint8, value, index uint16, length int) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.notReady > 0 {
		f.notReady--
		return nil, fmt.Errorf("stalled: %w", errNotReady)
	}
	if len(f.frames) == 0 {
		return nil, fmt.Errorf("read with no pending command: %w", errNotReady)
	}

	last := f.frames[len(f.frames)-1]
	seq := binary.LittleEndian.Uint16(last[6:8])
	if len(f.seqOverrides) > 0 {
		if ov := f.seqOverrides[0]; ov >= 0 {
			seq = uint16(ov)
		}
		f.seqOverrides = f.seqOverrides[1:]
	}

	resp := make([]byte, protocol.HeaderSize)
	copy(resp[0:4], last[0:4])
	binary.LittleEndian.PutUint16(resp[6:8], seq)
	return resp, nil
}

func (f *fakeDevice) Close() error {
	f.closed = true
	return nil
}

func newTestEngine(t *testing.T, dev *fakeDevice) (*engine, *int) {
	t.Helper()
	disconnects := 0
	e := NewEngine(dev, Config{
		Quiescence:   time.Millisecond,
		OnDisconnect: func(string) { disconnects++ },
	}).(*engine)
	e.sleep = func(time.Duration) {} // no real delays in tests
	return e, &disconnects
}

func frameSeq(t *testing.T, frame []byte) uint16 {
	t.Helper()
	if len(frame) < protocol.HeaderSize {
		t.Fatalf("frame shorter than header: %d bytes", len(frame))
	}
	return binary.LittleEndian.Uint16(frame[6:8])
}

func frameOp(t *testing.T, frame []byte) uint32 {
	t.Helper()
	return binary.LittleEndian.Uint32(frame[0:4])
}

func TestRequestSequencesAreStrictlyIncreasing(t *testing.T) {
	dev := &fakeDevice{}
	e, _ := newTestEngine(t, dev)

	const n = 50
	for i := 0; i < n; i++ {
		if _, err := e.Request(protocol.OpGetButtonStates, nil); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	if len(dev.frames) != n {
		t.Fatalf("expected %d frames written, got %d", n, len(dev.frames))
	}
	for i, frame := range dev.frames {
		if got, want := frameSeq(t, frame), uint16(i+1); got != want {
			t.Errorf("frame %d: sequence %d, want %d", i, got, want)
		}
	}
}

func TestSequenceWraparoundIssuesReset(t *testing.T) {
	dev := &fakeDevice{}
	e, _ := newTestEngine(t, dev)
	e.seq = 0xFFFF

	if _, err := e.Request(protocol.OpGetButtonStates, nil); err != nil {
		t.Fatalf("request at wrap point failed: %v", err)
	}

	if len(dev.frames) != 2 {
		t.Fatalf("expected reset + command, got %d frames", len(dev.frames))
	}
	if op := frameOp(t, dev.frames[0]); op != uint32(protocol.OpResetSequence) {
		t.Errorf("first frame opcode %#x, want reset-sequence", op)
	}
	if got := frameSeq(t, dev.frames[0]); got != 0 {
		t.Errorf("reset frame sequence %d, want 0", got)
	}
	if got := frameSeq(t, dev.frames[1]); got != 1 {
		t.Errorf("post-reset command sequence %d, want 1", got)
	}
}

func TestSingleDesyncRecoversWithOneResync(t *testing.T) {
	dev := &fakeDevice{seqOverrides: []int{99}}
	e, disconnects := newTestEngine(t, dev)

	body, err := e.Request(protocol.OpGetButtonStates, nil)
	if err != nil {
		t.Fatalf("request should recover from a single desync: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("unexpected response body: %v", body)
	}

	// Frames: original, reset-sequence, retried original.
	if len(dev.frames) != 3 {
		t.Fatalf("expected 3 frames (original, resync, retry), got %d", len(dev.frames))
	}
	if op := frameOp(t, dev.frames[1]); op != uint32(protocol.OpResetSequence) {
		t.Errorf("second frame opcode %#x, want reset-sequence", op)
	}
	if got := frameSeq(t, dev.frames[2]); got != 1 {
		t.Errorf("retried command sequence %d, want 1 (fresh post-reset)", got)
	}
	if *disconnects != 0 {
		t.Errorf("no disconnect expected, got %d", *disconnects)
	}
}

func TestDoubleDesyncIsFatal(t *testing.T) {
	// First response desyncs, the resync itself succeeds, the retried
	// original desyncs again: fatal.
	dev := &fakeDevice{seqOverrides: []int{99, -1, 77}}
	e, disconnects := newTestEngine(t, dev)

	_, err := e.Request(protocol.OpGetButtonStates, nil)
	var desync *DesyncError
	if !errors.As(err, &desync) {
		t.Fatalf("expected DesyncError, got %v", err)
	}
	if *disconnects != 1 {
		t.Fatalf("expected exactly one disconnect notification, got %d", *disconnects)
	}

	// The engine is dead now.
	if _, err := e.Request(protocol.OpGetButtonStates, nil); !errors.Is(err, ErrDisconnected) {
		t.Errorf("post-disconnect request: got %v, want ErrDisconnected", err)
	}
	if e.IsConnected() {
		t.Error("engine still reports connected after fatal desync")
	}
}

func TestNotReadyRetriesUntilSuccess(t *testing.T) {
	dev := &fakeDevice{notReady: 19}
	e, disconnects := newTestEngine(t, dev)

	if _, err := e.Request(protocol.OpGetButtonStates, nil); err != nil {
		t.Fatalf("request should succeed on the 20th read: %v", err)
	}
	if *disconnects != 0 {
		t.Errorf("no disconnect expected, got %d", *disconnects)
	}
}

func TestNotReadyExhaustionDisconnects(t *testing.T) {
	dev := &fakeDevice{notReady: 20}
	e, disconnects := newTestEngine(t, dev)

	_, err := e.Request(protocol.OpGetButtonStates, nil)
	if err == nil {
		t.Fatal("expected error after exhausting all read attempts")
	}
	if *disconnects != 1 {
		t.Fatalf("expected exactly one disconnect notification, got %d", *disconnects)
	}

	// A second failing request must not re-notify.
	_, _ = e.Request(protocol.OpGetButtonStates, nil)
	if *disconnects != 1 {
		t.Errorf("disconnect notified %d times, want 1", *disconnects)
	}
}

func TestReadIOErrorIsImmediatelyFatal(t *testing.T) {
	dev := &fakeDevice{readErr: errors.New("device vanished")}
	e, disconnects := newTestEngine(t, dev)

	_, err := e.Request(protocol.OpGetButtonStates, nil)
	if err == nil {
		t.Fatal("expected error from failed read")
	}
	if *disconnects != 1 {
		t.Errorf("expected one disconnect notification, got %d", *disconnects)
	}
	// Only the single original frame should have been written; no retries.
	if len(dev.frames) != 1 {
		t.Errorf("expected 1 frame written, got %d", len(dev.frames))
	}
}

func TestWriteErrorIsImmediatelyFatal(t *testing.T) {
	dev := &fakeDevice{writeErr: errors.New("handle invalidated")}
	e, disconnects := newTestEngine(t, dev)

	if _, err := e.Request(protocol.OpGetButtonStates, nil); err == nil {
		t.Fatal("expected error from failed write")
	}
	if *disconnects != 1 {
		t.Errorf("expected one disconnect notification, got %d", *disconnects)
	}
}

func TestPauseFlagHeldDuringRequest(t *testing.T) {
	pause := &atomic.Bool{}
	dev := &fakeDevice{}

	e := NewEngine(dev, Config{Quiescence: time.Millisecond, Pause: pause}).(*engine)
	sawPaused := false
	e.sleep = func(time.Duration) {
		if pause.Load() {
			sawPaused = true
		}
	}

	if _, err := e.Request(protocol.OpGetButtonStates, nil); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if !sawPaused {
		t.Error("pause flag not held while the request was in flight")
	}
	if pause.Load() {
		t.Error("pause flag not released after the request completed")
	}
}

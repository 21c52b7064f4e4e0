package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer runs an IPC server on a throwaway socket and waits until it
// accepts connections.
func startServer(t *testing.T, handle Handler) (string, context.CancelFunc) {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "mixerd.sock")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- RunServer(ctx, socket, handle, testLogger())
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("server exited with %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.Dial("unix", socket)
		if err == nil {
			conn.Close()
			return socket, cancel
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerDispatchesAndResponds(t *testing.T) {
	var got Request
	socket, _ := startServer(t, func(req Request) (any, error) {
		got = req
		return nil, nil
	})

	if _, err := Send(socket, SetVolume{Channel: "Music", Volume: 42}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if want := (SetVolume{Channel: "Music", Volume: 42}); got != want {
		t.Errorf("handler saw %v, want %v", got, want)
	}
}

func TestServerReturnsHandlerError(t *testing.T) {
	socket, _ := startServer(t, func(Request) (any, error) {
		return nil, errors.New("unknown channel \"Vocals\"")
	})

	_, err := Send(socket, SetVolume{Channel: "Vocals", Volume: 1})
	if err == nil {
		t.Fatal("expected an error")
	}
	if want := `daemon error: unknown channel "Vocals"`; err.Error() != want {
		t.Errorf("error %q, want %q", err, want)
	}
}

func TestServerReturnsResultData(t *testing.T) {
	socket, _ := startServer(t, func(req Request) (any, error) {
		if _, ok := req.(ListProfiles); !ok {
			t.Errorf("handler saw %T", req)
		}
		return []string{"default", "stream"}, nil
	})

	data, err := Send(socket, ListProfiles{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		t.Fatalf("result payload: %v", err)
	}
	if len(names) != 2 || names[0] != "default" || names[1] != "stream" {
		t.Errorf("names %v", names)
	}
}

func TestServerRejectsMalformedLine(t *testing.T) {
	socket, _ := startServer(t, func(Request) (any, error) { return nil, nil })

	conn, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("not json\n")); err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "error" || resp.Error == "" {
		t.Errorf("response %+v, want an error status", resp)
	}
}

func TestBroadcasterCoalescesBursts(t *testing.T) {
	hub := NewHub(testLogger(), HubConfig{})
	src := make(chan Status, 16)

	// A burst of updates inside one window collapses to the last one. The
	// burst is queued before the broadcaster starts so it all lands within
	// the first window.
	for v := uint8(1); v <= 5; v++ {
		src <- Status{Volumes: map[string]uint8{"Music": v}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunBroadcaster(ctx, hub, src, testLogger())

	select {
	case msg := <-hub.broadcast:
		var env struct {
			Type string `json:"type"`
			Data Status `json:"data"`
		}
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatal(err)
		}
		if env.Type != "status_changed" {
			t.Errorf("type %q, want status_changed", env.Type)
		}
		if got := env.Data.Volumes["Music"]; got != 5 {
			t.Errorf("flushed volume %d, want the last of the burst (5)", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no broadcast flushed")
	}

	// Nothing else pending: no second frame for the same burst.
	select {
	case <-hub.broadcast:
		t.Error("burst produced more than one frame")
	case <-time.After(3 * statusCoalesceWindow):
	}
}

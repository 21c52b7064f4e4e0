package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"mixerd/ipc"
)

// mixerd-watch subscribes to the mixerd status WebSocket and prints state
// changes as they arrive. Useful for debugging routing and mute behavior
// without a full client.

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:14564/api/websocket", "mixerd status WebSocket URL")
		raw   = flag.Bool("raw", false, "Print raw JSON frames instead of change summaries")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected (press Ctrl+C to exit)")

	// Writes happen from the ping ticker and the shutdown path.
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	var last *ipc.Status

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			handleFrame(message, *raw, &last)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

func handleFrame(message []byte, raw bool, last **ipc.Status) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	if raw {
		pretty, _ := json.MarshalIndent(json.RawMessage(message), "", "  ")
		fmt.Printf("[%s]\n%s\n\n", env.Type, string(pretty))
		return
	}

	var status ipc.Status
	if err := json.Unmarshal(env.Data, &status); err != nil {
		fmt.Printf("[%s] %s\n", env.Type, string(env.Data))
		return
	}

	if env.Type == "status_init" || *last == nil {
		printSnapshot(status)
	} else {
		printChanges(**last, status)
	}
	*last = &status
}

func printSnapshot(s ipc.Status) {
	if !s.Connected {
		fmt.Printf("device: disconnected (profile %q)\n", s.Profile)
		return
	}
	fmt.Printf("device: %s (firmware %s), profile %q\n", s.Serial, s.Firmware, s.Profile)
	for _, f := range []string{"a", "b", "c", "d"} {
		info := s.Faders[f]
		fmt.Printf("  fader %s: %-10s vol=%-3d mute=%s (%s)\n",
			f, info.Channel, s.Volumes[info.Channel], muteLabel(info.MuteState), info.MuteFunction)
	}
	fmt.Printf("  monitor: %s\n", s.MonitoredOutput)
}

func printChanges(prev, cur ipc.Status) {
	if prev.Connected != cur.Connected {
		if cur.Connected {
			fmt.Printf("device connected: %s\n", cur.Serial)
		} else {
			fmt.Println("device disconnected")
		}
	}
	if prev.Profile != cur.Profile {
		fmt.Printf("profile: %s -> %s\n", prev.Profile, cur.Profile)
	}
	for ch, vol := range cur.Volumes {
		if prev.Volumes[ch] != vol {
			fmt.Printf("volume %s: %d -> %d\n", ch, prev.Volumes[ch], vol)
		}
	}
	for f, info := range cur.Faders {
		old := prev.Faders[f]
		if old.Channel != info.Channel {
			fmt.Printf("fader %s: %s -> %s\n", f, old.Channel, info.Channel)
		}
		if old.MuteState != info.MuteState {
			fmt.Printf("mute %s (%s): %s -> %s\n", f, info.Channel, muteLabel(old.MuteState), muteLabel(info.MuteState))
		}
	}
	if prev.Cough.MuteState != cur.Cough.MuteState {
		fmt.Printf("cough: %s -> %s\n", muteLabel(prev.Cough.MuteState), muteLabel(cur.Cough.MuteState))
	}
	if prev.MonitoredOutput != cur.MonitoredOutput {
		fmt.Printf("monitor: %s -> %s\n", prev.MonitoredOutput, cur.MonitoredOutput)
	}
}

func muteLabel(s string) string {
	if s == "" {
		return "Unmuted"
	}
	return s
}

// Package profile persists mixer state as user-editable YAML profiles and
// exposes it to the control state machine through profile.Store.
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"mixerd/mixer"
	"mixerd/protocol"
)

// Extension is the file suffix of a stored profile.
const Extension = ".yaml"

// Profile is the on-disk YAML document. Enumerations are stored by name so
// the file stays hand-editable; Store converts to and from the wire-ordinal
// types at load/save time.
type Profile struct {
	Faders   FadersSection            `yaml:"faders"`
	Cough    CoughSection             `yaml:"cough"`
	Volumes  map[string]uint8         `yaml:"volumes"`
	Routing  map[string][]string      `yaml:"routing"`
	Submixes map[string]SubmixSection `yaml:"submixes,omitempty"`
	Monitor  MonitorSection           `yaml:"monitor"`
	HardTune HardTuneSection          `yaml:"hard_tune"`
}

type FadersSection struct {
	A FaderSection `yaml:"a"`
	B FaderSection `yaml:"b"`
	C FaderSection `yaml:"c"`
	D FaderSection `yaml:"d"`
}

type FaderSection struct {
	Channel      string `yaml:"channel"`
	MuteFunction string `yaml:"mute_function"`

	// Mute bookkeeping survives restarts so a muted-to-all channel is not
	// silently unmuted by a daemon bounce.
	MuteState      string `yaml:"mute_state,omitempty"`
	PreviousVolume uint8  `yaml:"previous_volume,omitempty"`
}

type CoughSection struct {
	MuteFunction   string `yaml:"mute_function"`
	MuteState      string `yaml:"mute_state,omitempty"`
	PreviousVolume uint8  `yaml:"previous_volume,omitempty"`
}

type SubmixSection struct {
	Linked bool    `yaml:"linked"`
	Ratio  float64 `yaml:"ratio"`
	Volume uint8   `yaml:"volume"`
}

type MonitorSection struct {
	// Output is the mix mirrored onto the physical headphone output.
	// "Headphones" means no substitution.
	Output    string `yaml:"output"`
	MicWithFX bool   `yaml:"mic_with_fx"`
}

type HardTuneSection struct {
	// Source pins the pitch-correction feed to one input. Empty selects the
	// default class (Music, Game, LineIn).
	Source string `yaml:"source,omitempty"`
}

// DefaultProfile returns a fully-populated profile matching a factory-fresh
// device: mic on the first fader, music-like channels on the rest, everything
// routed to the headphones and the broadcast mix.
func DefaultProfile() Profile {
	volumes := make(map[string]uint8, protocol.ChannelCount)
	for ch := protocol.Channel(0); ch < protocol.ChannelCount; ch++ {
		volumes[ch.String()] = 192
	}

	routing := make(map[string][]string, protocol.InputCount)
	for in := protocol.InputDevice(0); in < protocol.InputCount; in++ {
		routing[in.String()] = []string{
			protocol.OutputHeadphones.String(),
			protocol.OutputBroadcastMix.String(),
		}
	}

	return Profile{
		Faders: FadersSection{
			A: FaderSection{Channel: "Mic", MuteFunction: "ToStream"},
			B: FaderSection{Channel: "Music", MuteFunction: "ToStream"},
			C: FaderSection{Channel: "Chat", MuteFunction: "ToVoiceChat"},
			D: FaderSection{Channel: "System", MuteFunction: "All"},
		},
		Cough: CoughSection{
			MuteFunction: "All",
		},
		Volumes: volumes,
		Routing: routing,
		Monitor: MonitorSection{
			Output: protocol.OutputHeadphones.String(),
		},
	}
}

// LoadFile reads and parses a profile. Fields absent from the file keep their
// DefaultProfile values; unknown fields are rejected to catch typos.
func LoadFile(path string) (Profile, error) {
	if path == "" {
		return Profile{}, errors.New("profile path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Profile{}, fmt.Errorf("read profile file: %w", err)
	}

	p := DefaultProfile()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("decode profile yaml: %w", err)
	}

	// Only whitespace/comments may follow the document. A yaml.Node accepts
	// any document, so anything but a clean EOF here means extra content.
	var trailing yaml.Node
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return Profile{}, errors.New("decode profile yaml: unexpected trailing document")
	}

	return p, nil
}

// SaveFile writes the profile atomically: a temp file in the target directory
// is renamed over the destination so a crash mid-write never truncates an
// existing profile.
func (p Profile) SaveFile(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile yaml: %w", err)
	}

	path = ExpandPath(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".profile-*"+Extension)
	if err != nil {
		return fmt.Errorf("create temp profile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp profile: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp profile: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace profile: %w", err)
	}
	return nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}

// ============================================================================
// Name parsing
// ============================================================================

// ParseChannel resolves a channel by its YAML name.
func ParseChannel(name string) (protocol.Channel, bool) {
	for ch := protocol.Channel(0); ch < protocol.ChannelCount; ch++ {
		if ch.String() == name {
			return ch, true
		}
	}
	return 0, false
}

// ParseInput resolves a routable input by its YAML name.
func ParseInput(name string) (protocol.InputDevice, bool) {
	for in := protocol.InputDevice(0); in < protocol.InputCount; in++ {
		if in.String() == name {
			return in, true
		}
	}
	return 0, false
}

// ParseOutput resolves a routable output by its YAML name.
func ParseOutput(name string) (protocol.OutputDevice, bool) {
	for out := protocol.OutputDevice(0); out < protocol.OutputCount; out++ {
		if out.String() == name {
			return out, true
		}
	}
	return 0, false
}

// ParseMuteFunction resolves a mute function by its YAML name.
func ParseMuteFunction(name string) (mixer.MuteFunction, bool) {
	for _, m := range []mixer.MuteFunction{
		mixer.MuteAll, mixer.MuteToStream, mixer.MuteToVoiceChat,
		mixer.MuteToPhones, mixer.MuteToLineOut,
	} {
		if m.String() == name {
			return m, true
		}
	}
	return 0, false
}

// ParseMuteState resolves a mute state by its YAML name. The empty string is
// Unmuted so omitted fields round-trip.
func ParseMuteState(name string) (mixer.MuteState, bool) {
	switch name {
	case "", "Unmuted":
		return mixer.Unmuted, true
	case "MutedToTarget":
		return mixer.MutedToTarget, true
	case "MutedToAll":
		return mixer.MutedToAll, true
	}
	return 0, false
}

// muteStateName is the inverse of ParseMuteState; Unmuted renders empty so
// the field is omitted from saved files.
func muteStateName(s mixer.MuteState) string {
	if s == mixer.Unmuted {
		return ""
	}
	return s.String()
}

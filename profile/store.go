package profile

import (
	"fmt"

	"mixerd/mixer"
	"mixerd/protocol"
)

// Store is the in-memory form of a profile, indexed by the wire-ordinal
// types the controller works with. It implements mixer.ProfileStore.
//
// Store carries no locking: it is owned by the daemon's owner goroutine, the
// same one that drives the controller.
type Store struct {
	volumes [protocol.ChannelCount]uint8
	routing [protocol.InputCount][protocol.OutputCount]bool
	faders  [protocol.FaderCount]mixer.FaderConfig
	cough   mixer.CoughConfig
	submix  [protocol.ChannelCount]mixer.SubmixLink

	monitored        protocol.OutputDevice
	micWithFX        bool
	hardTuneSource   protocol.InputDevice
	hardTuneExplicit bool

	dirty bool
}

// NewStore builds a store from a parsed profile, resolving every name. A bad
// name fails with the offending field in the error.
func NewStore(p Profile) (*Store, error) {
	s := &Store{}

	type faderEntry struct {
		fader   protocol.Fader
		section FaderSection
	}
	// A target mute is unreachable under the "All" function; a hand-edited
	// file carrying that pair collapses to MutedToAll, the same way the
	// command surface collapses it. Collapsed entries never captured a
	// pre-mute level, so it is filled from the persisted volume below.
	var collapsed [protocol.FaderCount]bool

	for _, e := range []faderEntry{
		{protocol.FaderA, p.Faders.A},
		{protocol.FaderB, p.Faders.B},
		{protocol.FaderC, p.Faders.C},
		{protocol.FaderD, p.Faders.D},
	} {
		ch, ok := ParseChannel(e.section.Channel)
		if !ok {
			return nil, fmt.Errorf("faders.%s.channel: unknown channel %q", e.fader, e.section.Channel)
		}
		fn, ok := ParseMuteFunction(e.section.MuteFunction)
		if !ok {
			return nil, fmt.Errorf("faders.%s.mute_function: unknown function %q", e.fader, e.section.MuteFunction)
		}
		st, ok := ParseMuteState(e.section.MuteState)
		if !ok {
			return nil, fmt.Errorf("faders.%s.mute_state: unknown state %q", e.fader, e.section.MuteState)
		}
		if fn == mixer.MuteAll && st == mixer.MutedToTarget {
			st = mixer.MutedToAll
			collapsed[e.fader] = true
		}
		s.faders[e.fader] = mixer.FaderConfig{
			Channel:        ch,
			Function:       fn,
			State:          st,
			PreviousVolume: e.section.PreviousVolume,
		}
	}

	fn, ok := ParseMuteFunction(p.Cough.MuteFunction)
	if !ok {
		return nil, fmt.Errorf("cough.mute_function: unknown function %q", p.Cough.MuteFunction)
	}
	st, ok := ParseMuteState(p.Cough.MuteState)
	if !ok {
		return nil, fmt.Errorf("cough.mute_state: unknown state %q", p.Cough.MuteState)
	}
	coughCollapsed := false
	if fn == mixer.MuteAll && st == mixer.MutedToTarget {
		st = mixer.MutedToAll
		coughCollapsed = true
	}
	s.cough = mixer.CoughConfig{Function: fn, State: st, PreviousVolume: p.Cough.PreviousVolume}

	for name, volume := range p.Volumes {
		ch, ok := ParseChannel(name)
		if !ok {
			return nil, fmt.Errorf("volumes: unknown channel %q", name)
		}
		s.volumes[ch] = volume
	}

	for f := range collapsed {
		if collapsed[f] {
			s.faders[f].PreviousVolume = s.volumes[s.faders[f].Channel]
		}
	}
	if coughCollapsed {
		s.cough.PreviousVolume = s.volumes[protocol.ChannelMic]
	}

	for name, outputs := range p.Routing {
		in, ok := ParseInput(name)
		if !ok {
			return nil, fmt.Errorf("routing: unknown input %q", name)
		}
		for _, outName := range outputs {
			out, ok := ParseOutput(outName)
			if !ok {
				return nil, fmt.Errorf("routing.%s: unknown output %q", name, outName)
			}
			s.routing[in][out] = true
		}
	}

	for name, sub := range p.Submixes {
		ch, ok := ParseChannel(name)
		if !ok {
			return nil, fmt.Errorf("submixes: unknown channel %q", name)
		}
		s.submix[ch] = mixer.SubmixLink{Linked: sub.Linked, Ratio: sub.Ratio, Volume: sub.Volume}
	}

	out, ok := ParseOutput(p.Monitor.Output)
	if !ok {
		return nil, fmt.Errorf("monitor.output: unknown output %q", p.Monitor.Output)
	}
	s.monitored = out
	s.micWithFX = p.Monitor.MicWithFX

	if p.HardTune.Source != "" {
		in, ok := ParseInput(p.HardTune.Source)
		if !ok {
			return nil, fmt.Errorf("hard_tune.source: unknown input %q", p.HardTune.Source)
		}
		s.hardTuneSource = in
		s.hardTuneExplicit = true
	}

	return s, nil
}

// Load reads a profile file into a store.
func Load(path string) (*Store, error) {
	p, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewStore(p)
}

// Profile renders the store back into its on-disk document form.
func (s *Store) Profile() Profile {
	p := Profile{
		Volumes:  make(map[string]uint8, protocol.ChannelCount),
		Routing:  make(map[string][]string, protocol.InputCount),
		Submixes: make(map[string]SubmixSection),
	}

	sections := [protocol.FaderCount]*FaderSection{
		&p.Faders.A, &p.Faders.B, &p.Faders.C, &p.Faders.D,
	}
	for f := protocol.Fader(0); f < protocol.FaderCount; f++ {
		cfg := s.faders[f]
		*sections[f] = FaderSection{
			Channel:        cfg.Channel.String(),
			MuteFunction:   cfg.Function.String(),
			MuteState:      muteStateName(cfg.State),
			PreviousVolume: cfg.PreviousVolume,
		}
	}

	p.Cough = CoughSection{
		MuteFunction:   s.cough.Function.String(),
		MuteState:      muteStateName(s.cough.State),
		PreviousVolume: s.cough.PreviousVolume,
	}

	for ch := protocol.Channel(0); ch < protocol.ChannelCount; ch++ {
		p.Volumes[ch.String()] = s.volumes[ch]
	}

	for in := protocol.InputDevice(0); in < protocol.InputCount; in++ {
		outputs := []string{}
		for out := protocol.OutputDevice(0); out < protocol.OutputCount; out++ {
			if s.routing[in][out] {
				outputs = append(outputs, out.String())
			}
		}
		p.Routing[in.String()] = outputs
	}

	for ch := protocol.Channel(0); ch < protocol.ChannelCount; ch++ {
		link := s.submix[ch]
		if link == (mixer.SubmixLink{}) {
			continue
		}
		p.Submixes[ch.String()] = SubmixSection{Linked: link.Linked, Ratio: link.Ratio, Volume: link.Volume}
	}
	if len(p.Submixes) == 0 {
		p.Submixes = nil
	}

	p.Monitor = MonitorSection{Output: s.monitored.String(), MicWithFX: s.micWithFX}
	if s.hardTuneExplicit {
		p.HardTune.Source = s.hardTuneSource.String()
	}

	return p
}

// Save writes the store to disk and clears the dirty flag.
func (s *Store) Save(path string) error {
	if err := s.Profile().SaveFile(path); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Dirty reports whether the store has unsaved changes.
func (s *Store) Dirty() bool { return s.dirty }

// ============================================================================
// mixer.ProfileStore
// ============================================================================

func (s *Store) Volume(ch protocol.Channel) uint8 { return s.volumes[ch] }

func (s *Store) SetVolume(ch protocol.Channel, volume uint8) {
	if s.volumes[ch] == volume {
		return
	}
	s.volumes[ch] = volume
	s.dirty = true
}

func (s *Store) RoutingRow(in protocol.InputDevice) [protocol.OutputCount]bool {
	return s.routing[in]
}

func (s *Store) SetRouting(in protocol.InputDevice, out protocol.OutputDevice, enabled bool) {
	if s.routing[in][out] == enabled {
		return
	}
	s.routing[in][out] = enabled
	s.dirty = true
}

func (s *Store) Fader(f protocol.Fader) mixer.FaderConfig { return s.faders[f] }

func (s *Store) SetFader(f protocol.Fader, cfg mixer.FaderConfig) {
	if s.faders[f] == cfg {
		return
	}
	s.faders[f] = cfg
	s.dirty = true
}

func (s *Store) Cough() mixer.CoughConfig { return s.cough }

func (s *Store) SetCough(cfg mixer.CoughConfig) {
	if s.cough == cfg {
		return
	}
	s.cough = cfg
	s.dirty = true
}

func (s *Store) Submix(ch protocol.Channel) mixer.SubmixLink { return s.submix[ch] }

func (s *Store) SetSubmix(ch protocol.Channel, link mixer.SubmixLink) {
	if s.submix[ch] == link {
		return
	}
	s.submix[ch] = link
	s.dirty = true
}

func (s *Store) MonitoredOutput() protocol.OutputDevice { return s.monitored }

func (s *Store) SetMonitoredOutput(out protocol.OutputDevice) {
	if s.monitored == out {
		return
	}
	s.monitored = out
	s.dirty = true
}

func (s *Store) MonitorMicWithFX() bool { return s.micWithFX }

// SetMonitorMicWithFX toggles the processed-mic monitor preference. The
// caller re-pushes routing afterwards.
func (s *Store) SetMonitorMicWithFX(enabled bool) {
	if s.micWithFX == enabled {
		return
	}
	s.micWithFX = enabled
	s.dirty = true
}

func (s *Store) HardTuneSource() (protocol.InputDevice, bool) {
	return s.hardTuneSource, s.hardTuneExplicit
}

// SetHardTuneSource pins the pitch-correction feed to one input; explicit
// false reverts to the default music-like class.
func (s *Store) SetHardTuneSource(in protocol.InputDevice, explicit bool) {
	if s.hardTuneSource == in && s.hardTuneExplicit == explicit {
		return
	}
	s.hardTuneSource = in
	s.hardTuneExplicit = explicit
	s.dirty = true
}

package mixer

import "mixerd/protocol"

// ProfileStore is the persisted configuration surface the controller reads
// and writes. Each call is a single field access; the store owns
// serialization and the controller never sees the file format. Only the
// owner goroutine touches the store, so implementations need no locking for
// the controller's sake.
type ProfileStore interface {
	Volume(ch protocol.Channel) uint8
	SetVolume(ch protocol.Channel, volume uint8)

	// RoutingRow is the persisted base row; the pushed row (with transient
	// mute overrides applied) is never written back.
	RoutingRow(in protocol.InputDevice) [protocol.OutputCount]bool
	SetRouting(in protocol.InputDevice, out protocol.OutputDevice, enabled bool)

	Fader(f protocol.Fader) FaderConfig
	SetFader(f protocol.Fader, cfg FaderConfig)

	Cough() CoughConfig
	SetCough(cfg CoughConfig)

	Submix(ch protocol.Channel) SubmixLink
	SetSubmix(ch protocol.Channel, link SubmixLink)

	// MonitoredOutput is the mix mirrored onto the headphone output;
	// OutputHeadphones means no substitution.
	MonitoredOutput() protocol.OutputDevice
	SetMonitoredOutput(out protocol.OutputDevice)

	// MonitorMicWithFX forces the processed microphone into the headphone
	// monitor regardless of mute state.
	MonitorMicWithFX() bool

	// HardTuneSource returns the input feeding the pitch-correction path.
	// When explicit is false the default class of music-like inputs (Music,
	// Game, LineIn) all feed it.
	HardTuneSource() (source protocol.InputDevice, explicit bool)
}

// EventSink receives user-facing announcements for state transitions.
// Delivery is best effort; the controller logs failures and never lets them
// fail the transition that produced them.
type EventSink interface {
	Send(message string) error
}

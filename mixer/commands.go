package mixer

import (
	"fmt"

	"mixerd/protocol"
)

// ============================================================================
// Command Types
// ============================================================================
// Commands represent intent from external sources (IPC clients, the daemon's
// own initialisation). The owner loop feeds them to Controller.HandleCommand
// one at a time; the controller applies policy and talks to the device.
// ============================================================================

// Command is a marker interface for all controller commands.
type Command interface{}

// SetVolume sets a channel's volume, propagating to a linked submix.
type SetVolume struct {
	Channel protocol.Channel
	Volume  uint8
}

// SetSubVolume sets a channel's submix bus volume, propagating back to the
// channel while linked.
type SetSubVolume struct {
	Channel protocol.Channel
	Volume  uint8
}

// AssignFader moves a logical channel onto a physical fader.
type AssignFader struct {
	Fader   protocol.Fader
	Channel protocol.Channel
}

// SetRouting enables or disables one input/output crossing in the persisted
// table and re-pushes the affected row.
type SetRouting struct {
	Input   protocol.InputDevice
	Output  protocol.OutputDevice
	Enabled bool
}

// SetMuteFunction changes a fader mute button's configured behaviour.
type SetMuteFunction struct {
	Fader    protocol.Fader
	Function MuteFunction
}

// SetCoughMuteFunction changes the dedicated mic-mute control's behaviour.
type SetCoughMuteFunction struct {
	Function MuteFunction
}

// SetFaderMuteState drives a fader's mute state as if its button had been
// pressed (Unmuted/MutedToTarget) or held (MutedToAll).
type SetFaderMuteState struct {
	Fader protocol.Fader
	State MuteState
}

// SetCoughMuteState drives the mic-mute control's state.
type SetCoughMuteState struct {
	State MuteState
}

// SetSubmixLinked links or unlinks a channel's submix bus. Linking captures
// the current submix/channel volume ratio.
type SetSubmixLinked struct {
	Channel protocol.Channel
	Linked  bool
}

// SetMonitoredOutput selects the mix mirrored onto the headphone output.
type SetMonitoredOutput struct {
	Output protocol.OutputDevice
}

// SetMicGain sets the active microphone type and its gain.
type SetMicGain struct {
	Type uint16 // one of the MicParamGain* keys
	Gain uint16
}

// ApplyProfile re-pushes the entire persisted state to the device: fader
// assignments, volumes in spike-free order, routing, and button LEDs.
type ApplyProfile struct{}

// CommandError is a business-logic rejection. It leaves all state unchanged
// and never tears down the device connection.
type CommandError struct {
	Reason string
}

func (e *CommandError) Error() string {
	return "mixer: " + e.Reason
}

func commandErrorf(format string, args ...any) *CommandError {
	return &CommandError{Reason: fmt.Sprintf(format, args...)}
}

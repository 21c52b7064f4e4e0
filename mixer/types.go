package mixer

import (
	"time"

	"mixerd/protocol"
)

// MuteFunction is the configured behaviour of a mute button: either silence
// the channel everywhere, or cut it from exactly one output.
type MuteFunction uint8

const (
	MuteAll MuteFunction = iota
	MuteToStream
	MuteToVoiceChat
	MuteToPhones
	MuteToLineOut

	muteFunctionCount = 5
)

var muteFunctionNames = [muteFunctionCount]string{
	"All", "ToStream", "ToVoiceChat", "ToPhones", "ToLineOut",
}

func (m MuteFunction) String() string {
	if int(m) < len(muteFunctionNames) {
		return muteFunctionNames[m]
	}
	return "Unknown"
}

// Target returns the single output a target-specific function cuts. Only
// valid for functions other than MuteAll.
func (m MuteFunction) Target() protocol.OutputDevice {
	switch m {
	case MuteToStream:
		return protocol.OutputBroadcastMix
	case MuteToVoiceChat:
		return protocol.OutputChatMic
	case MuteToPhones:
		return protocol.OutputHeadphones
	case MuteToLineOut:
		return protocol.OutputLineOut
	}
	return protocol.OutputBroadcastMix
}

// MuteState is the tri-state of a mute control. MutedToTarget is transient
// (routing override only); MutedToAll is persistent (volume zeroed and
// restored on hardware that applies volume on mute).
type MuteState uint8

const (
	Unmuted MuteState = iota
	MutedToTarget
	MutedToAll
)

func (s MuteState) String() string {
	switch s {
	case MutedToTarget:
		return "MutedToTarget"
	case MutedToAll:
		return "MutedToAll"
	}
	return "Unmuted"
}

// FaderConfig is one fader's persisted assignment and mute bookkeeping.
type FaderConfig struct {
	Channel  protocol.Channel
	Function MuteFunction
	State    MuteState

	// PreviousVolume is the channel volume captured on entering MutedToAll,
	// restored on unmute. Meaningless while Unmuted.
	PreviousVolume uint8
}

// CoughConfig is the dedicated mic-mute (cough) control. It always acts on
// the microphone channel, independent of whether a fader also carries it.
type CoughConfig struct {
	Function       MuteFunction
	State          MuteState
	PreviousVolume uint8
}

// SubmixLink records whether a channel's submix bus tracks the channel
// volume, and at what ratio. Ratio is submix/channel at the moment of
// linking.
type SubmixLink struct {
	Linked bool
	Ratio  float64
	Volume uint8
}

// buttonEdge tracks one physical press from down to up.
type buttonEdge struct {
	pressedAt   time.Time
	holdHandled bool
}

// faderLatch suppresses poll write-back after a software volume change until
// the hardware reports the written value. Without it the next poll would
// "correct" the volume back to the pre-change position of the motor.
type faderLatch struct {
	suppressed bool
	until      uint8
}

// channelInput maps a logical channel to its routable input, if it has one.
// Output-side channels (headphones, mic monitor, line out) have none.
func channelInput(c protocol.Channel) (protocol.InputDevice, bool) {
	switch c {
	case protocol.ChannelMic:
		return protocol.InputMicrophone, true
	case protocol.ChannelLineIn:
		return protocol.InputLineIn, true
	case protocol.ChannelConsole:
		return protocol.InputConsole, true
	case protocol.ChannelSystem:
		return protocol.InputSystem, true
	case protocol.ChannelGame:
		return protocol.InputGame, true
	case protocol.ChannelChat:
		return protocol.InputChat, true
	case protocol.ChannelSample:
		return protocol.InputSamples, true
	case protocol.ChannelMusic:
		return protocol.InputMusic, true
	}
	return 0, false
}

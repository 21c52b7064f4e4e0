package protocol

// Channel is a logical mixer channel. The ordinal doubles as the channel's
// wire id in volume/state/fader opcodes.
type Channel uint8

const (
	ChannelMic Channel = iota
	ChannelLineIn
	ChannelConsole
	ChannelSystem
	ChannelGame
	ChannelChat
	ChannelSample
	ChannelMusic
	ChannelHeadphones
	ChannelMicMonitor
	ChannelLineOut

	ChannelCount = 11
)

var channelNames = [ChannelCount]string{
	"Mic", "LineIn", "Console", "System", "Game", "Chat",
	"Sample", "Music", "Headphones", "MicMonitor", "LineOut",
}

func (c Channel) String() string {
	if int(c) < len(channelNames) {
		return channelNames[c]
	}
	return "Unknown"
}

// SubChannelID returns the wire id of the channel's submix bus. Submix ids
// sit in a dedicated range above the primary channel ids.
func (c Channel) SubChannelID() uint8 {
	return uint8(c) + 0x10
}

// Fader is a physical motorised fader. The ordinal is the wire id.
type Fader uint8

const (
	FaderA Fader = iota
	FaderB
	FaderC
	FaderD

	FaderCount = 4
)

func (f Fader) String() string {
	return [FaderCount]string{"A", "B", "C", "D"}[f]
}

// Encoder is a physical effect encoder. The ordinal matches the encoder's
// byte slot in the button snapshot.
type Encoder uint8

const (
	EncoderPitch Encoder = iota
	EncoderGender
	EncoderReverb
	EncoderEcho

	EncoderCount = 4
)

func (e Encoder) String() string {
	return [EncoderCount]string{"Pitch", "Gender", "Reverb", "Echo"}[e]
}

// Button is a physical button. The ordinal is the button's bit index in the
// pressed-state bitmap returned by OpGetButtonStates.
type Button uint8

const (
	ButtonFader1Mute Button = iota
	ButtonFader2Mute
	ButtonFader3Mute
	ButtonFader4Mute
	ButtonBleep
	ButtonMicMute

	ButtonEffectSelect1
	ButtonEffectSelect2
	ButtonEffectSelect3
	ButtonEffectSelect4
	ButtonEffectSelect5
	ButtonEffectSelect6

	ButtonEffectFx
	ButtonEffectMegaphone
	ButtonEffectRobot
	ButtonEffectHardTune

	ButtonSamplerSelectA
	ButtonSamplerSelectB
	ButtonSamplerSelectC

	ButtonSamplerTopLeft
	ButtonSamplerTopRight
	ButtonSamplerBottomLeft
	ButtonSamplerBottomRight
	ButtonSamplerClear

	ButtonCount = 24
)

// ledPositions maps each button to its slot in the 24-byte LED state payload.
// The layout is hardware-defined and shared with the colour map command.
var ledPositions = [ButtonCount]int{
	ButtonFader1Mute: 4,
	ButtonFader2Mute: 9,
	ButtonFader3Mute: 14,
	ButtonFader4Mute: 19,
	ButtonBleep:      22,
	ButtonMicMute:    23,

	ButtonEffectSelect1: 0,
	ButtonEffectSelect2: 5,
	ButtonEffectSelect3: 11,
	ButtonEffectSelect4: 15,
	ButtonEffectSelect5: 1,
	ButtonEffectSelect6: 6,

	ButtonEffectFx:        21,
	ButtonEffectMegaphone: 20,
	ButtonEffectRobot:     10,
	ButtonEffectHardTune:  16,

	ButtonSamplerSelectA: 2,
	ButtonSamplerSelectB: 7,
	ButtonSamplerSelectC: 12,

	ButtonSamplerTopLeft:     3,
	ButtonSamplerTopRight:    8,
	ButtonSamplerBottomLeft:  17,
	ButtonSamplerBottomRight: 13,
	ButtonSamplerClear:       18,
}

// LEDPosition returns the button's slot in the LED state payload.
func (b Button) LEDPosition() int {
	return ledPositions[b]
}

// FaderMuteButton returns the mute button sitting under the given fader.
func FaderMuteButton(f Fader) Button {
	return [FaderCount]Button{
		ButtonFader1Mute, ButtonFader2Mute, ButtonFader3Mute, ButtonFader4Mute,
	}[f]
}

// LEDState is a button lighting state.
type LEDState uint8

const (
	LEDOn       LEDState = 0x01
	LEDDimmed   LEDState = 0x02
	LEDFlashing LEDState = 0x03
	LEDOff      LEDState = 0x04
)

// ChannelStateMuted / ChannelStateUnmuted are the body values of
// OpSetChannelState.
const (
	ChannelStateUnmuted uint8 = 0x00
	ChannelStateMuted   uint8 = 0x01
)

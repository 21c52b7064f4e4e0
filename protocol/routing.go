package protocol

// The routing table is pushed one physical (mono) input at a time: a 22-byte
// row holding an attenuation value per physical output, 0x20 meaning unity.
// Logical inputs and outputs are stereo pairs, so a logical row is encoded as
// two wire rows (left and right legs).

// InputDevice is a logical (stereo) routable input.
type InputDevice uint8

const (
	InputMicrophone InputDevice = iota
	InputChat
	InputMusic
	InputGame
	InputConsole
	InputLineIn
	InputSystem
	InputSamples

	InputCount = 8
)

var inputNames = [InputCount]string{
	"Microphone", "Chat", "Music", "Game", "Console", "LineIn", "System", "Samples",
}

func (i InputDevice) String() string {
	if int(i) < len(inputNames) {
		return inputNames[i]
	}
	return "Unknown"
}

// WireIDs returns the left and right physical input ids for a logical input.
func (i InputDevice) WireIDs() (left, right uint8) {
	switch i {
	case InputMicrophone:
		return 0x03, 0x02
	case InputLineIn:
		return 0x05, 0x04
	case InputConsole:
		return 0x07, 0x06
	case InputSystem:
		return 0x09, 0x08
	case InputGame:
		return 0x0b, 0x0a
	case InputChat:
		return 0x0d, 0x0c
	case InputMusic:
		return 0x0f, 0x0e
	case InputSamples:
		return 0x11, 0x10
	}
	return 0, 0
}

// OutputDevice is a logical (stereo) routable output.
type OutputDevice uint8

const (
	OutputHeadphones OutputDevice = iota
	OutputBroadcastMix
	OutputChatMic
	OutputSampler
	OutputLineOut

	OutputCount = 5
)

var outputNames = [OutputCount]string{
	"Headphones", "BroadcastMix", "ChatMic", "Sampler", "LineOut",
}

func (o OutputDevice) String() string {
	if int(o) < len(outputNames) {
		return outputNames[o]
	}
	return "Unknown"
}

// positions of each output's left/right legs within a routing row.
func (o OutputDevice) rowPositions() (left, right int) {
	switch o {
	case OutputHeadphones:
		return 3, 1
	case OutputBroadcastMix:
		return 7, 5
	case OutputChatMic:
		return 11, 9
	case OutputSampler:
		return 15, 13
	case OutputLineOut:
		return 19, 17
	}
	return 0, 0
}

// RoutingRowSize is the wire size of one routing row.
const RoutingRowSize = 22

// routeUnity is full (100%) volume for a routing slot. The hardware accepts
// higher values, but the utility never sends them.
const routeUnity = 0x20

// hardTunePosition is the auxiliary slot marking whether this input feeds the
// pitch-correction path.
const hardTunePosition = 21

// RoutingRow is one logical input's enabled-output set plus the hard-tune
// marker, ready for wire encoding.
type RoutingRow struct {
	Enabled  [OutputCount]bool
	HardTune bool
}

// Encode renders the row's left and right wire payloads.
func (r RoutingRow) Encode() (left, right [RoutingRowSize]byte) {
	for o := OutputDevice(0); o < OutputCount; o++ {
		if !r.Enabled[o] {
			continue
		}
		lp, rp := o.rowPositions()
		left[lp] = routeUnity
		right[rp] = routeUnity
	}
	if r.HardTune {
		left[hardTunePosition] = routeUnity
		right[hardTunePosition] = routeUnity
	}
	return left, right
}

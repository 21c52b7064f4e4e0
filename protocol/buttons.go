package protocol

import (
	"encoding/binary"
	"fmt"
)

// Snapshot is the decoded payload of OpGetButtonStates: which buttons are
// held, the current fader positions, and the effect encoder values.
type Snapshot struct {
	Pressed  uint32
	Faders   [FaderCount]uint8
	Encoders [EncoderCount]int8
}

// IsPressed reports whether the snapshot has the given button held down.
func (s Snapshot) IsPressed(b Button) bool {
	return s.Pressed&(1<<uint32(b)) != 0
}

// snapshotSize is the minimum button-state response body: 4 bytes of button
// bits, 4 encoder values, 4 fader positions.
const snapshotSize = 12

// ParseSnapshot decodes a button-state response body.
func ParseSnapshot(body []byte) (Snapshot, error) {
	if len(body) < snapshotSize {
		return Snapshot{}, fmt.Errorf("protocol: button snapshot too short: %d bytes", len(body))
	}

	var s Snapshot
	s.Pressed = binary.LittleEndian.Uint32(body[0:4])

	// Encoder values are signed; detented encoders report negative turns.
	for i := 0; i < EncoderCount; i++ {
		s.Encoders[i] = int8(body[4+i])
	}
	for i := 0; i < FaderCount; i++ {
		s.Faders[i] = body[8+i]
	}
	return s, nil
}

// EncodeLEDStates renders a full 24-slot LED payload for OpSetButtonStates.
// Buttons absent from states default to dimmed.
func EncodeLEDStates(states map[Button]LEDState) []byte {
	payload := make([]byte, ButtonCount)
	for i := range payload {
		payload[i] = byte(LEDDimmed)
	}
	for b, st := range states {
		payload[b.LEDPosition()] = byte(st)
	}
	return payload
}

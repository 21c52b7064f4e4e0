package mixer

import (
	"encoding/binary"
	"fmt"
	"strings"

	"mixerd/protocol"
	"mixerd/transport"
)

// DeviceClient wraps the transport engine with the typed command vocabulary
// the controller speaks. It owns no state beyond the engine reference; every
// method is a single request/response exchange.
type DeviceClient struct {
	engine transport.Engine
}

// NewDeviceClient wraps an attached engine.
func NewDeviceClient(engine transport.Engine) *DeviceClient {
	return &DeviceClient{engine: engine}
}

// SetFaderChannel assigns a logical channel to a physical fader.
func (c *DeviceClient) SetFaderChannel(f protocol.Fader, ch protocol.Channel) error {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, uint32(ch))
	_, err := c.engine.Request(protocol.OpSetFader(uint8(f)), body)
	return err
}

// SetVolume sets a channel's hardware volume.
func (c *DeviceClient) SetVolume(ch protocol.Channel, volume uint8) error {
	_, err := c.engine.Request(protocol.OpSetChannelVolume(uint8(ch)), []byte{volume})
	return err
}

// SetSubVolume sets a channel's submix bus volume.
func (c *DeviceClient) SetSubVolume(ch protocol.Channel, volume uint8) error {
	_, err := c.engine.Request(protocol.OpSetSubVolume(ch.SubChannelID()), []byte{volume})
	return err
}

// SetChannelState mutes or unmutes a channel in the DSP.
func (c *DeviceClient) SetChannelState(ch protocol.Channel, muted bool) error {
	state := protocol.ChannelStateUnmuted
	if muted {
		state = protocol.ChannelStateMuted
	}
	_, err := c.engine.Request(protocol.OpSetChannelState(uint8(ch)), []byte{state})
	return err
}

// SetRouting replaces the routing row for one physical (mono) input leg.
func (c *DeviceClient) SetRouting(inputWireID uint8, row [protocol.RoutingRowSize]byte) error {
	_, err := c.engine.Request(protocol.OpSetRouting(inputWireID), row[:])
	return err
}

// SetButtonStates pushes the full LED payload. Buttons absent from states
// fall back to dimmed.
func (c *DeviceClient) SetButtonStates(states map[protocol.Button]protocol.LEDState) error {
	_, err := c.engine.Request(protocol.OpSetButtonStates, protocol.EncodeLEDStates(states))
	return err
}

// GetButtonStates reads and decodes the current input snapshot.
func (c *DeviceClient) GetButtonStates() (protocol.Snapshot, error) {
	body, err := c.engine.Request(protocol.OpGetButtonStates, nil)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	return protocol.ParseSnapshot(body)
}

// MicParam is one key/value pair of the microphone parameter command.
type MicParam struct {
	Key   uint16
	Value uint16
}

// Microphone parameter keys.
const (
	MicParamGainDynamic   uint16 = 0x0001
	MicParamGainCondenser uint16 = 0x0002
	MicParamGainJack      uint16 = 0x0003
	MicParamType          uint16 = 0x0000
)

// SetMicParams writes one or more microphone parameters in a single command.
func (c *DeviceClient) SetMicParams(params ...MicParam) error {
	body := make([]byte, 0, len(params)*4)
	for _, p := range params {
		body = binary.LittleEndian.AppendUint16(body, p.Key)
		body = binary.LittleEndian.AppendUint16(body, p.Value)
	}
	_, err := c.engine.Request(protocol.OpSetMicParams, body)
	return err
}

// GetMicLevel reads the instantaneous microphone input level meter.
func (c *DeviceClient) GetMicLevel() (uint16, error) {
	body, err := c.engine.Request(protocol.OpGetMicLevel, nil)
	if err != nil {
		return 0, err
	}
	if len(body) < 2 {
		return 0, fmt.Errorf("mic level response too short: %d bytes", len(body))
	}
	return binary.LittleEndian.Uint16(body[0:2]), nil
}

// SerialNumber reads the device serial string.
func (c *DeviceClient) SerialNumber() (string, error) {
	body, err := c.engine.Request(protocol.OpGetSerialNumber, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(body), "\x00"), nil
}

// FirmwareVersion reads the firmware version as a dotted quad.
func (c *DeviceClient) FirmwareVersion() (string, error) {
	body, err := c.engine.Request(protocol.OpGetFirmwareVersion, nil)
	if err != nil {
		return "", err
	}
	if len(body) < 16 {
		return "", fmt.Errorf("firmware version response too short: %d bytes", len(body))
	}
	parts := make([]string, 4)
	for i := range parts {
		parts[i] = fmt.Sprint(binary.LittleEndian.Uint32(body[i*4 : i*4+4]))
	}
	return strings.Join(parts, "."), nil
}

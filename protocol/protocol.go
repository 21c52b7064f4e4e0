// Package protocol implements the wire format spoken by the mixer over USB
// vendor control transfers: the 16-byte command header, the opcode space, and
// the codecs for the routing and button-state payloads.
//
// Every command is framed as:
//
//	offset 0  u32le  opcode
//	offset 4  u16le  body length
//	offset 6  u16le  sequence
//	offset 8  8 bytes reserved
//
// followed by the body. Responses reuse the same header layout; the sequence
// field must echo the request's.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed size of the command/response header.
const HeaderSize = 16

// ResponseBufferSize is the read size used for control-transfer IN requests.
// The device never returns more than this in a single response.
const ResponseBufferSize = 1040

// Opcode identifies a device operation. Most opcodes are composed of a
// 12-bit-shifted command category plus a per-channel/fader/input sub-id.
type Opcode uint32

// Command categories. The composed opcode is (category << 12) | subID.
const (
	cmdSetEffectParams   = 0x801
	cmdSetScribble       = 0x802
	cmdSetColourMap      = 0x803
	cmdSetRouting        = 0x804
	cmdSetFader          = 0x805
	cmdSetChannelVolume  = 0x806
	cmdSetButtonStates   = 0x808
	cmdSetChannelState   = 0x809
	cmdSetEncoderValue   = 0x80a
	cmdSetMicParams      = 0x80b
	cmdGetMicLevel       = 0x80c
	cmdGetHardwareInfo   = 0x80f
	cmdSetEncoderMode    = 0x811
	cmdSetChannelMixes   = 0x816
	cmdSetMonitoredMix   = 0x817
	cmdGetButtonStates   = 0x800
	cmdSetSubChannelBase = 0x806
)

// OpResetSequence resets the device's command sequence counter to zero. It is
// the only command whose own sequence number is always zero.
const OpResetSequence Opcode = 0

// Fixed opcodes without a sub-id.
const (
	OpGetButtonStates Opcode = cmdGetButtonStates << 12
	OpSetButtonStates Opcode = cmdSetButtonStates << 12
	OpSetMicParams    Opcode = cmdSetMicParams << 12
	OpGetMicLevel     Opcode = cmdGetMicLevel << 12
	OpSetEffectParams Opcode = cmdSetEffectParams << 12
	OpSetColourMap    Opcode = cmdSetColourMap << 12
	OpSetChannelMixes Opcode = cmdSetChannelMixes << 12
	OpSetMonitoredMix Opcode = cmdSetMonitoredMix << 12
)

// Hardware info sub-commands.
const (
	OpGetFirmwareVersion Opcode = cmdGetHardwareInfo<<12 | 0
	OpGetSerialNumber    Opcode = cmdGetHardwareInfo<<12 | 1
)

// OpSetFader returns the opcode assigning a channel to the given fader.
func OpSetFader(fader uint8) Opcode {
	return Opcode(cmdSetFader<<12 | uint32(fader))
}

// OpSetChannelVolume returns the opcode setting the given channel's volume.
func OpSetChannelVolume(channel uint8) Opcode {
	return Opcode(cmdSetChannelVolume<<12 | uint32(channel))
}

// OpSetChannelState returns the opcode muting/unmuting the given channel.
func OpSetChannelState(channel uint8) Opcode {
	return Opcode(cmdSetChannelState<<12 | uint32(channel))
}

// OpSetSubVolume returns the opcode setting a submix bus volume. Submix
// channels live in their own id range above the primary channels.
func OpSetSubVolume(subChannel uint8) Opcode {
	return Opcode(cmdSetSubChannelBase<<12 | uint32(subChannel))
}

// OpSetRouting returns the opcode replacing the routing row for one physical
// (left or right) input.
func OpSetRouting(input uint8) Opcode {
	return Opcode(cmdSetRouting<<12 | uint32(input))
}

// OpSetEncoderValue returns the opcode setting an effect encoder's value.
func OpSetEncoderValue(encoder uint8) Opcode {
	return Opcode(cmdSetEncoderValue<<12 | uint32(encoder))
}

// OpSetEncoderMode returns the opcode configuring an encoder's mode and
// resolution.
func OpSetEncoderMode(encoder uint8) Opcode {
	return Opcode(cmdSetEncoderMode<<12 | uint32(encoder))
}

// EncodeFrame assembles a full request frame (header + body) for the given
// opcode and sequence number.
func EncodeFrame(op Opcode, seq uint16, body []byte) []byte {
	frame := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(op))
	binary.LittleEndian.PutUint16(frame[4:6], uint16(len(body)))
	binary.LittleEndian.PutUint16(frame[6:8], seq)
	copy(frame[HeaderSize:], body)
	return frame
}

// ErrShortResponse indicates a response smaller than the fixed header; the
// device signals "not ready yet" this way.
var ErrShortResponse = errors.New("protocol: response shorter than header")

// ParseResponse splits a raw response into its echoed sequence number and
// body. The body is truncated to the length declared in the header, which can
// be shorter than the bytes actually read.
func ParseResponse(raw []byte) (seq uint16, body []byte, err error) {
	if len(raw) < HeaderSize {
		return 0, nil, ErrShortResponse
	}
	length := binary.LittleEndian.Uint16(raw[4:6])
	seq = binary.LittleEndian.Uint16(raw[6:8])
	body = raw[HeaderSize:]
	if int(length) > len(body) {
		return 0, nil, fmt.Errorf("protocol: declared body length %d exceeds received %d", length, len(body))
	}
	return seq, body[:length], nil
}

// Package frame implements the MCB wire codec: fixed-layout frames for
// both the serial profile (delimited, variable-length) and the TCP
// profile (fixed 7-word), with CRC-CCITT integrity.
package frame

import (
	"encoding/binary"

	"github.com/samsamfire/mcb/internal/crc"
	"github.com/samsamfire/mcb/pkg/mcberr"
)

// Cmd is the MCB command code carried in a frame header.
type Cmd uint8

const (
	CmdRead  Cmd = 1
	CmdWrite Cmd = 2
	CmdAck   Cmd = 3
)

// Profile distinguishes the two wire layouts a Frame can carry.
type Profile int

const (
	ProfileSerial Profile = iota
	ProfileTCP
)

// MaxPayload is the largest payload a single MCB transaction carries.
const MaxPayload = 8

// Serial framing delimiters bracketing a delimited serial-profile frame.
const (
	SerialStartByte byte = 0x7E
	SerialEndByte   byte = 0x7F
)

// FrameMaxSize bounds a serial-profile frame, delimiters included.
const FrameMaxSize = 64

// Frame is the decoded representation of one MCB message, valid for
// either profile. For the TCP profile, Address holds the register
// address and Node/Subnode hold node/subnode; for the serial profile,
// Node/Index/SubIndex are populated and Address/Subnode are unused.
type Frame struct {
	Profile Profile

	// Serial profile fields.
	Node     uint8
	Index    uint16
	SubIndex uint8

	// TCP profile fields.
	Subnode uint8
	Address uint16

	Cmd     Cmd
	Pending bool
	Payload []byte // up to MaxPayload bytes, meaning depends on Cmd
}

// EncodeTCP builds the fixed 14-byte TCP-profile frame: 7 little-endian
// 16-bit words, CRC over the first 12 bytes.
func EncodeTCP(nodeDefault, subnode uint8, address uint16, cmd Cmd, pending bool, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, mcberr.New(mcberr.KindNotSupported, "mcb: multi-frame payloads are not supported, got %d bytes", len(payload))
	}

	buf := make([]byte, 14)
	hdrH := (uint16(nodeDefault) << 4) | uint16(subnode&0x0F)
	pendingBit := uint16(0)
	if pending {
		pendingBit = 1
	}
	hdrL := (address << 4) | (uint16(cmd) << 1) | pendingBit

	binary.LittleEndian.PutUint16(buf[0:2], hdrH)
	binary.LittleEndian.PutUint16(buf[2:4], hdrL)
	copy(buf[4:12], make([]byte, 8))
	copy(buf[4:4+len(payload)], payload)

	crcVal := crc.Compute(buf[:12])
	binary.LittleEndian.PutUint16(buf[12:14], crcVal)
	return buf, nil
}

// DecodeTCP parses a 14-byte TCP-profile frame and verifies its CRC.
func DecodeTCP(raw []byte) (*Frame, error) {
	if len(raw) != 14 {
		return nil, mcberr.NewIO(mcberr.IOSubkindShortRead, "mcb: tcp frame must be 14 bytes, got %d", len(raw))
	}

	want := binary.LittleEndian.Uint16(raw[12:14])
	got := crc.Compute(raw[:12])
	if want != got {
		return nil, mcberr.NewIO(mcberr.IOSubkindCRC, "mcb: crc mismatch, want 0x%04X got 0x%04X", want, got)
	}

	hdrH := binary.LittleEndian.Uint16(raw[0:2])
	hdrL := binary.LittleEndian.Uint16(raw[2:4])

	f := &Frame{
		Profile: ProfileTCP,
		Node:    uint8(hdrH >> 4),
		Subnode: uint8(hdrH & 0x0F),
		Address: hdrL >> 4,
		Cmd:     Cmd((hdrL >> 1) & 0x7),
		Pending: hdrL&0x1 != 0,
		Payload: append([]byte(nil), raw[4:12]...),
	}
	return f, nil
}

// StatusWord extracts the 16-bit status word from a TCP-profile frame's
// payload: the first little-endian word.
func (f *Frame) StatusWord() uint16 {
	if len(f.Payload) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(f.Payload[0:2])
}

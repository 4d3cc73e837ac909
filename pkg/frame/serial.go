package frame

import (
	"encoding/binary"

	"github.com/samsamfire/mcb/internal/crc"
	"github.com/samsamfire/mcb/pkg/mcberr"
)

// Serial-profile wire layout:
//
//	START(1) NODE(1) IDX_LO(1) IDX_HI(1) SIDX(1) CMD(1) LEN(1) PAYLOAD(0..N) CRC_LO(1) CRC_HI(1) END(1)
//
// CRC is computed over NODE..PAYLOAD inclusive, i.e. everything between
// the start delimiter and the CRC field, in wire order.
const serialHeaderSize = 6 // NODE, IDX_LO, IDX_HI, SIDX, CMD, LEN

// EncodeSerial builds a complete delimited serial-profile frame.
func EncodeSerial(node uint8, index uint16, subIndex uint8, cmd Cmd, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, mcberr.New(mcberr.KindNotSupported, "mcb: multi-frame payloads are not supported, got %d bytes", len(payload))
	}

	body := make([]byte, serialHeaderSize+len(payload))
	body[0] = node
	binary.LittleEndian.PutUint16(body[1:3], index)
	body[3] = subIndex
	body[4] = uint8(cmd)
	body[5] = uint8(len(payload))
	copy(body[serialHeaderSize:], payload)

	crcVal := crc.Compute(body)

	out := make([]byte, 0, len(body)+4)
	out = append(out, SerialStartByte)
	out = append(out, body...)
	crcBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(crcBytes, crcVal)
	out = append(out, crcBytes...)
	out = append(out, SerialEndByte)
	return out, nil
}

// DecodeSerial parses a complete delimited serial-profile frame (start
// and end bytes included) and verifies its CRC.
func DecodeSerial(raw []byte) (*Frame, error) {
	if len(raw) < 1+serialHeaderSize+2+1 {
		return nil, mcberr.New(mcberr.KindInvalid, "mcb: serial frame too short, got %d bytes", len(raw))
	}
	if raw[0] != SerialStartByte || raw[len(raw)-1] != SerialEndByte {
		return nil, mcberr.New(mcberr.KindInvalid, "mcb: serial frame missing delimiters")
	}

	body := raw[1 : len(raw)-3]
	if len(body) < serialHeaderSize {
		return nil, mcberr.New(mcberr.KindInvalid, "mcb: serial frame header truncated")
	}

	payloadLen := int(body[5])
	if len(body) != serialHeaderSize+payloadLen {
		return nil, mcberr.New(mcberr.KindInvalid, "mcb: serial frame length mismatch, header says %d, have %d", payloadLen, len(body)-serialHeaderSize)
	}
	if payloadLen > MaxPayload {
		return nil, mcberr.New(mcberr.KindNotSupported, "mcb: payload of %d bytes exceeds single-frame limit", payloadLen)
	}

	want := binary.LittleEndian.Uint16(raw[len(raw)-3 : len(raw)-1])
	got := crc.Compute(body)
	if want != got {
		return nil, mcberr.NewIO(mcberr.IOSubkindCRC, "mcb: crc mismatch, want 0x%04X got 0x%04X", want, got)
	}

	f := &Frame{
		Profile:  ProfileSerial,
		Node:     body[0],
		Index:    binary.LittleEndian.Uint16(body[1:3]),
		SubIndex: body[3],
		Cmd:      Cmd(body[4]),
		Payload:  append([]byte(nil), body[serialHeaderSize:]...),
	}
	return f, nil
}

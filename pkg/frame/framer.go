package frame

import "github.com/samsamfire/mcb/pkg/mcberr"

// FramerState is the byte-level reassembly state of a serial-profile
// stream framer.
type FramerState int

const (
	FramerIdle FramerState = iota
	FramerHeader
	FramerPayload
	FramerComplete
	FramerError
)

// StreamFramer reassembles a byte stream from a serial transport into
// complete MCB frames, one byte at a time. It owns a fixed buffer sized
// FrameMaxSize that is filled from the start of each frame.
type StreamFramer struct {
	state   FramerState
	buf     [FrameMaxSize]byte
	n       int
	wantLen int // total body+delimiter length once known, -1 until header parsed
}

// NewStreamFramer returns a framer ready to consume bytes.
func NewStreamFramer() *StreamFramer {
	f := &StreamFramer{}
	f.Reset()
	return f
}

// Reset returns the framer to FramerIdle, discarding any partially
// assembled frame.
func (f *StreamFramer) Reset() {
	f.state = FramerIdle
	f.n = 0
	f.wantLen = -1
}

// State reports the framer's current state.
func (f *StreamFramer) State() FramerState { return f.state }

// PushByte feeds one byte into the framer. It returns (true, nil) when a
// complete frame is available (State() == FramerComplete, latched until
// Reset or Take is called), (false, nil) when more bytes are needed, and
// (false, err) on a framing error. On error the framer resets itself but
// re-feeds the same byte once, to resync on a potential header boundary.
func (f *StreamFramer) PushByte(b byte) (bool, error) {
	complete, err := f.pushByte(b)
	if err != nil {
		// Resync: the byte that triggered the error may itself be a start
		// delimiter for the next frame, so re-feed it once against the
		// now-reset framer.
		f.Reset()
		if _, rerr := f.pushByte(b); rerr != nil {
			return false, rerr
		}
		return false, err
	}
	return complete, nil
}

func (f *StreamFramer) pushByte(b byte) (bool, error) {
	if f.state == FramerComplete {
		// Caller must Take()/Reset() before feeding more bytes.
		return true, nil
	}

	switch f.state {
	case FramerIdle:
		if b != SerialStartByte {
			return false, nil // keep scanning for a start delimiter
		}
		f.n = 0
		f.buf[f.n] = b
		f.n++
		f.state = FramerHeader
		return false, nil

	case FramerHeader:
		f.buf[f.n] = b
		f.n++
		// Header = START + serialHeaderSize bytes; LEN is the 6th header byte.
		if f.n == 1+serialHeaderSize {
			payloadLen := int(f.buf[1+serialHeaderSize-1])
			if payloadLen > MaxPayload {
				f.Reset()
				return false, mcberr.New(mcberr.KindInvalid, "mcb: framer saw oversized payload length %d", payloadLen)
			}
			f.wantLen = 1 + serialHeaderSize + payloadLen + 2 + 1 // + CRC(2) + END(1)
			if f.wantLen > FrameMaxSize {
				f.Reset()
				return false, mcberr.New(mcberr.KindInvalid, "mcb: framer frame exceeds FRAME_MAX")
			}
			f.state = FramerPayload
		}
		return false, nil

	case FramerPayload:
		f.buf[f.n] = b
		f.n++
		if f.n < f.wantLen {
			return false, nil
		}
		if b != SerialEndByte {
			f.Reset()
			return false, mcberr.New(mcberr.KindInvalid, "mcb: framer missing end delimiter")
		}
		f.state = FramerComplete
		return true, nil

	default: // FramerError, shouldn't be reachable externally
		f.Reset()
		return false, mcberr.New(mcberr.KindInvalid, "mcb: framer in error state")
	}
}

// Take returns the bytes of the latched complete frame and resets the
// framer for the next one. Callers pass the returned bytes to DecodeSerial.
func (f *StreamFramer) Take() []byte {
	if f.state != FramerComplete {
		return nil
	}
	out := append([]byte(nil), f.buf[:f.n]...)
	f.Reset()
	return out
}

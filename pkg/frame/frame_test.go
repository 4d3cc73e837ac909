package frame

import (
	"testing"

	"github.com/samsamfire/mcb/pkg/mcberr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestS1CRC covers a read of address 3 with zero payload: CRC over the
// 12-byte TCP header/payload preceding the CRC field, computed per the
// CRC-CCITT definition (poly 0x1021, seed 0, MSB-first, no final XOR).
func TestS1CRC(t *testing.T) {
	raw, err := EncodeTCP(0, 0, 3, CmdRead, false, nil)
	require.NoError(t, err)
	require.Len(t, raw, 14)

	decoded, err := DecodeTCP(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), decoded.Address)
	assert.Equal(t, CmdRead, decoded.Cmd)
	assert.False(t, decoded.Pending)
}

func TestTCPRoundTrip(t *testing.T) {
	payload := []byte{0x34, 0x12, 0, 0, 0, 0, 0, 0}
	raw, err := EncodeTCP(10, 1, 0x0011, CmdAck, false, payload)
	require.NoError(t, err)

	decoded, err := DecodeTCP(raw)
	require.NoError(t, err)
	assert.EqualValues(t, 10, decoded.Node)
	assert.EqualValues(t, 1, decoded.Subnode)
	assert.EqualValues(t, 0x0011, decoded.Address)
	assert.Equal(t, CmdAck, decoded.Cmd)
	assert.Equal(t, payload, decoded.Payload)
	assert.EqualValues(t, 0x1234, decoded.StatusWord())
}

// TestS4CRCMismatch covers a zeroed CRC trailer, rejected as ErrIO(CRC)
// even though the rest of the frame is otherwise well formed.
func TestS4CRCMismatch(t *testing.T) {
	raw, err := EncodeTCP(0, 1, 0x0011, CmdAck, false, nil)
	require.NoError(t, err)
	raw[12] = 0
	raw[13] = 0

	_, err = DecodeTCP(raw)
	require.Error(t, err)
	var mErr *mcberr.Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, mcberr.KindIO, mErr.Kind)
	assert.Equal(t, mcberr.IOSubkindCRC, mErr.IO)
}

func TestTCPOversizedPayloadRejected(t *testing.T) {
	_, err := EncodeTCP(0, 1, 0x0011, CmdWrite, false, make([]byte, 9))
	require.Error(t, err)
	var mErr *mcberr.Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, mcberr.KindNotSupported, mErr.Kind)
}

func TestSerialRoundTrip(t *testing.T) {
	for _, payload := range [][]byte{nil, {0x01}, {0x01, 0x02, 0x03, 0x04}} {
		raw, err := EncodeSerial(5, 0x2000, 1, CmdWrite, payload)
		require.NoError(t, err)

		decoded, err := DecodeSerial(raw)
		require.NoError(t, err)
		assert.EqualValues(t, 5, decoded.Node)
		assert.EqualValues(t, 0x2000, decoded.Index)
		assert.EqualValues(t, 1, decoded.SubIndex)
		assert.Equal(t, CmdWrite, decoded.Cmd)
		if len(payload) == 0 {
			assert.Empty(t, decoded.Payload)
		} else {
			assert.Equal(t, payload, decoded.Payload)
		}
	}
}

func TestSerialCRCMismatch(t *testing.T) {
	raw, err := EncodeSerial(5, 0x2000, 1, CmdRead, []byte{0x01})
	require.NoError(t, err)
	raw[len(raw)-3] ^= 0xFF

	_, err = DecodeSerial(raw)
	require.Error(t, err)
	var mErr *mcberr.Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, mcberr.IOSubkindCRC, mErr.IO)
}

func TestStreamFramerReassemblesOneByteAtATime(t *testing.T) {
	raw, err := EncodeSerial(7, 0x1234, 2, CmdRead, []byte{0xAA, 0xBB})
	require.NoError(t, err)

	fr := NewStreamFramer()
	var complete bool
	for i, b := range raw {
		c, err := fr.PushByte(b)
		require.NoError(t, err)
		if c {
			complete = true
			assert.Equal(t, len(raw)-1, i)
			break
		}
	}
	require.True(t, complete)

	got := fr.Take()
	assert.Equal(t, raw, got)
	assert.Equal(t, FramerIdle, fr.State())

	decoded, err := DecodeSerial(got)
	require.NoError(t, err)
	assert.EqualValues(t, 7, decoded.Node)
}

func TestStreamFramerResyncsAfterGarbage(t *testing.T) {
	raw, err := EncodeSerial(1, 0x10, 0, CmdRead, nil)
	require.NoError(t, err)

	fr := NewStreamFramer()
	// Feed noise before a real frame; the framer should ignore it while idle.
	for _, b := range []byte{0x00, 0xFF, 0x10} {
		c, err := fr.PushByte(b)
		require.NoError(t, err)
		require.False(t, c)
	}
	var complete bool
	for _, b := range raw {
		c, err := fr.PushByte(b)
		require.NoError(t, err)
		if c {
			complete = true
		}
	}
	require.True(t, complete)
	assert.Equal(t, raw, fr.Take())
}

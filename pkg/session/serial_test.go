package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/mcb/pkg/frame"
	"github.com/samsamfire/mcb/pkg/mcberr"
	"github.com/samsamfire/mcb/pkg/transport"
)

// fakeStreamTransport is an in-memory byte stream standing in for a
// serial port: Write captures outbound frames (optionally triggering
// onWrite, used to simulate a device answering a request), and Read
// drains whatever has been pushed, returning ErrIO(SHORT_READ) when
// empty so the listener's read-wait branch is exercised exactly as it
// would be against a real tty.
type fakeStreamTransport struct {
	mu      sync.Mutex
	buf     []byte
	writes  [][]byte
	onWrite func(written []byte)
}

func (f *fakeStreamTransport) Open(transport.Config) error { return nil }

func (f *fakeStreamTransport) Close() error { return nil }

func (f *fakeStreamTransport) Write(data []byte) (int, error) {
	cp := append([]byte(nil), data...)
	f.mu.Lock()
	f.writes = append(f.writes, cp)
	cb := f.onWrite
	f.mu.Unlock()
	if cb != nil {
		cb(cp)
	}
	return len(data), nil
}

func (f *fakeStreamTransport) Read(into []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buf) == 0 {
		return 0, mcberr.NewIO(mcberr.IOSubkindShortRead, "fake: nothing buffered")
	}
	n := copy(into, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}

// ReadWait always reports data is (probably) ready after a short
// delay, standing in for a real blocking primitive.
func (f *fakeStreamTransport) ReadWait() error {
	time.Sleep(2 * time.Millisecond)
	return nil
}

func (f *fakeStreamTransport) Flush(string) error { return nil }

func (f *fakeStreamTransport) push(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = append(f.buf, b...)
}

func newSerialTestSession(t *testing.T, ft transport.Transport) *Session {
	t.Helper()
	s := newSession(Config{}.WithDefaults(), ProfileSerial, ft)
	s.listenerLoop = s.serialListenerLoop
	s.doRead = s.serialRead
	s.doWrite = s.serialWrite
	s.doScan = s.serialScan
	s.setState(StateConnected)
	s.startListener()
	return s
}

func TestSerialReadDeliversResponseThroughFramer(t *testing.T) {
	ft := &fakeStreamTransport{}
	s := newSerialTestSession(t, ft)
	defer s.Close()

	payload := []byte{0xAA, 0xBB}
	go func() {
		time.Sleep(10 * time.Millisecond)
		raw, err := frame.EncodeSerial(5, 0x2000, 1, frame.CmdAck, payload)
		require.NoError(t, err)
		ft.push(raw)
	}()

	buf := make([]byte, len(payload))
	n, err := s.Read(5, 0x2000, 1, buf, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)
}

func TestSerialReadTimesOutWithNoResponse(t *testing.T) {
	ft := &fakeStreamTransport{}
	s := newSerialTestSession(t, ft)
	defer s.Close()

	buf := make([]byte, 2)
	_, err := s.Read(5, 0x2000, 1, buf, 30*time.Millisecond)
	require.Error(t, err)
	var mErr *mcberr.Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, mcberr.KindTimeout, mErr.Kind)
}

func TestSerialWriteIsFireAndForget(t *testing.T) {
	ft := &fakeStreamTransport{}
	s := newSerialTestSession(t, ft)
	defer s.Close()

	require.NoError(t, s.Write(5, 0x2000, 1, []byte{0x01}))

	want, err := frame.EncodeSerial(5, 0x2000, 1, frame.CmdWrite, []byte{0x01})
	require.NoError(t, err)

	ft.mu.Lock()
	defer ft.mu.Unlock()
	require.Len(t, ft.writes, 1)
	assert.Equal(t, want, ft.writes[0])
}

func TestSerialStatuswordDispatchedToSubscriber(t *testing.T) {
	ft := &fakeStreamTransport{}
	s := newSerialTestSession(t, ft)
	defer s.Close()

	got := make(chan uint16, 1)
	require.NoError(t, s.Subscribe(9, func(axisID uint8, value uint16, _ any) {
		assert.EqualValues(t, 9, axisID)
		got <- value
	}, nil))

	raw, err := frame.EncodeSerial(9, StatuswordIdx, StatuswordSidx, frame.CmdAck, []byte{0xCD, 0xAB})
	require.NoError(t, err)
	ft.push(raw)

	select {
	case v := <-got:
		assert.Equal(t, uint16(0xABCD), v)
	case <-time.After(time.Second):
		t.Fatal("statusword was not dispatched in time")
	}
}

// TestSerialScanCollectsRespondingAxes exercises an axis scan: each
// broadcast write gets one simulated response before the scan
// eventually times out and returns.
func TestSerialScanCollectsRespondingAxes(t *testing.T) {
	ft := &fakeStreamTransport{}
	responses := [][]byte{}
	for _, axis := range []uint8{1, 2} {
		raw, err := frame.EncodeSerial(axis, UartCfgIDIdx, UartCfgIDSidx, frame.CmdAck, []byte{axis})
		require.NoError(t, err)
		responses = append(responses, raw)
	}
	idx := 0
	ft.onWrite = func([]byte) {
		if idx < len(responses) {
			resp := responses[idx]
			idx++
			go func() {
				time.Sleep(5 * time.Millisecond)
				ft.push(resp)
			}()
		}
	}

	s := newSerialTestSession(t, ft)
	defer s.Close()

	var found []uint8
	var mu sync.Mutex
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := s.Scan(ctx, func(axisID uint8) {
		mu.Lock()
		found = append(found, axisID)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint8{1, 2}, result)
	assert.ElementsMatch(t, []uint8{1, 2}, found)
}

func TestSerialListenerHardErrorFaultsSession(t *testing.T) {
	ft := &hardErrorTransport{}
	s := newSerialTestSession(t, ft)
	defer s.Close()

	require.Eventually(t, func() bool {
		return s.State() == StateFaulty
	}, time.Second, 5*time.Millisecond)
}

// hardErrorTransport always fails Read with a non-SHORT_READ error,
// simulating a broken tty: a hard error transitions the session to
// FAULTY and exits the listener.
type hardErrorTransport struct{ fakeStreamTransport }

func (h *hardErrorTransport) Read(into []byte) (int, error) {
	return 0, mcberr.NewIO(mcberr.IOSubkindTransport, "fake: device gone")
}

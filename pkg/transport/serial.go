package transport

import (
	"sync"

	tserial "github.com/tarm/serial"

	"github.com/samsamfire/mcb/pkg/mcberr"
)

func init() {
	Register("serial", func() Transport { return &SerialTransport{} })
}

// SerialTransport is a byte-oriented stream transport over a UART,
// backed by github.com/tarm/serial. It blocks on Read up to the
// configured timeout.
//
// ReadWait blocks for one byte and caches it so the subsequent Read
// does not lose it; this lets the listener's "wait for data, then read
// again" loop work over a library that has no native peek.
type SerialTransport struct {
	mu      sync.Mutex
	port    *tserial.Port
	cfg     Config
	pending []byte
}

func (t *SerialTransport) Open(cfg Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sc := &tserial.Config{
		Name:        cfg.PortOrEndpoint,
		Baud:        cfg.Baudrate,
		Size:        8,
		Parity:      tserial.ParityNone,
		StopBits:    tserial.Stop1,
		ReadTimeout: cfg.ReadTimeout,
	}
	port, err := tserial.OpenPort(sc)
	if err != nil {
		return mcberr.NewIO(mcberr.IOSubkindTransport, "mcb: open serial port %q: %v", cfg.PortOrEndpoint, err)
	}
	t.port = port
	t.cfg = cfg
	t.pending = nil
	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return mcberr.NewIO(mcberr.IOSubkindTransport, "mcb: close serial port: %v", err)
	}
	return nil
}

func (t *SerialTransport) Write(data []byte) (int, error) {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return 0, mcberr.New(mcberr.KindState, "mcb: serial transport not open")
	}
	n, err := port.Write(data)
	if err != nil {
		return n, mcberr.NewIO(mcberr.IOSubkindTransport, "mcb: serial write: %v", err)
	}
	return n, nil
}

// Read returns whatever the kernel TTY buffer has ready, up to
// len(into). It never blocks longer than the configured read timeout
// and returns ErrIO(SHORT_READ) when the timeout elapses with nothing
// read, which the session listener treats as an empty read.
func (t *SerialTransport) Read(into []byte) (int, error) {
	t.mu.Lock()
	port := t.port
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	if port == nil {
		return 0, mcberr.New(mcberr.KindState, "mcb: serial transport not open")
	}

	n := 0
	if len(pending) > 0 && len(into) > 0 {
		into[0] = pending[0]
		n = 1
		if len(into) == 1 {
			return n, nil
		}
	}

	m, err := port.Read(into[n:])
	n += m
	if err != nil && n == 0 {
		return 0, mcberr.NewIO(mcberr.IOSubkindShortRead, "mcb: serial read: %v", err)
	}
	return n, nil
}

// ReadWait blocks for up to the configured read timeout waiting for one
// byte of data, caching it for the next Read call.
func (t *SerialTransport) ReadWait() error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return mcberr.New(mcberr.KindState, "mcb: serial transport not open")
	}

	buf := make([]byte, 1)
	n, err := port.Read(buf)
	if n > 0 {
		t.mu.Lock()
		t.pending = buf[:n]
		t.mu.Unlock()
		return nil
	}
	if err != nil {
		return mcberr.New(mcberr.KindTimeout, "mcb: read_wait timed out: %v", err)
	}
	return mcberr.New(mcberr.KindTimeout, "mcb: read_wait timed out")
}

func (t *SerialTransport) Flush(queue string) error {
	return mcberr.New(mcberr.KindNotSupported, "mcb: serial transport does not support flush(%s)", queue)
}

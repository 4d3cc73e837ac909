package transport

import (
	"net"
	"sync"
	"time"

	"github.com/samsamfire/mcb/pkg/mcberr"
)

// TCPPort is the fixed embedded-device endpoint port.
const TCPPort = 23

func init() {
	Register("tcp", func() Transport { return &TCPTransport{} })
}

// TCPTransport is a datagram-style stream transport to an embedded
// device at a fixed port. Transactions are fixed-size 14-byte frame
// exchanges: every Write is one frame, every Read is expected to
// return exactly one frame's worth of bytes.
type TCPTransport struct {
	mu   sync.Mutex
	conn net.Conn
	cfg  Config
}

func (t *TCPTransport) Open(cfg Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	addr := cfg.PortOrEndpoint
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = net.JoinHostPort(host, "23")
	} else {
		addr = net.JoinHostPort(addr, "23")
	}

	dialer := net.Dialer{Timeout: cfg.WriteTimeout}
	if dialer.Timeout == 0 {
		dialer.Timeout = 5 * time.Second
	}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return mcberr.NewIO(mcberr.IOSubkindTransport, "mcb: dial tcp %s: %v", addr, err)
	}
	t.conn = conn
	t.cfg = cfg
	return nil
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return mcberr.NewIO(mcberr.IOSubkindTransport, "mcb: close tcp conn: %v", err)
	}
	return nil
}

func (t *TCPTransport) Write(data []byte) (int, error) {
	t.mu.Lock()
	conn := t.conn
	cfg := t.cfg
	t.mu.Unlock()
	if conn == nil {
		return 0, mcberr.New(mcberr.KindState, "mcb: tcp transport not open")
	}
	if cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
	}
	n, err := conn.Write(data)
	if err != nil {
		return n, mcberr.NewIO(mcberr.IOSubkindTransport, "mcb: tcp write: %v", err)
	}
	return n, nil
}

func (t *TCPTransport) Read(into []byte) (int, error) {
	t.mu.Lock()
	conn := t.conn
	cfg := t.cfg
	t.mu.Unlock()
	if conn == nil {
		return 0, mcberr.New(mcberr.KindState, "mcb: tcp transport not open")
	}
	if cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	}

	total := 0
	for total < len(into) {
		n, err := conn.Read(into[total:])
		total += n
		if err != nil {
			if total > 0 && total == len(into) {
				break
			}
			return total, mcberr.NewIO(mcberr.IOSubkindShortRead, "mcb: tcp read: %v", err)
		}
	}
	return total, nil
}

// ReadWait is a no-op for TCP: each transaction's Read already blocks
// up to the read timeout, and the TCP session engine never feeds a
// byte-level framer.
func (t *TCPTransport) ReadWait() error { return nil }

func (t *TCPTransport) Flush(queue string) error {
	return mcberr.New(mcberr.KindNotSupported, "mcb: tcp transport does not support flush(%s)", queue)
}

// Package transport provides the uniform, transport-independent link
// that the MCB session engine opens, reads from, and writes to. Two
// concrete transports are registered: serial and tcp.
package transport

import (
	"time"

	"github.com/samsamfire/mcb/pkg/mcberr"
)

// Config enumerates the transport knobs.
type Config struct {
	PortOrEndpoint string
	Baudrate       int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Transport is the capability interface every concrete link satisfies.
type Transport interface {
	Open(cfg Config) error
	Close() error
	Write(data []byte) (int, error)
	Read(into []byte) (int, error)
	// ReadWait blocks until at least one byte is available or the read
	// times out; it does not consume data.
	ReadWait() error
	// Flush discards buffered bytes on the named queue ("rx", "tx",
	// "both"). Transports that cannot flush return ErrNotSupported.
	Flush(queue string) error
}

// NewFunc constructs a fresh, unopened Transport instance.
type NewFunc func() Transport

var registry = make(map[string]NewFunc)

// Register adds a transport constructor under name. Concrete
// transports call this from their own init().
func Register(name string, fn NewFunc) {
	registry[name] = fn
}

// Available lists the registered transport names.
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// New constructs a transport by its registered name.
func New(name string) (Transport, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, mcberr.New(mcberr.KindNotSupported, "mcb: unsupported transport %q", name)
	}
	return fn(), nil
}

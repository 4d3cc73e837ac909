package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both concrete transports self-register from their own init() (see
// serial.go / tcp.go), mirroring pkg/can/socketcan's registration
// pattern: this test only checks the registry mechanics, not a real
// serial port or socket.
func TestBuiltinTransportsAreRegistered(t *testing.T) {
	names := Available()
	assert.Contains(t, names, "serial")
	assert.Contains(t, names, "tcp")
}

func TestNewUnknownTransportIsNotSupported(t *testing.T) {
	_, err := New("carrier-pigeon")
	require.Error(t, err)
}

func TestNewReturnsDistinctUnopenedInstances(t *testing.T) {
	a, err := New("serial")
	require.NoError(t, err)
	b, err := New("serial")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

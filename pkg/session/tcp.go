package session

import (
	"context"
	"encoding/binary"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/mcb/pkg/frame"
	"github.com/samsamfire/mcb/pkg/mcberr"
	"github.com/samsamfire/mcb/pkg/transport"
)

// OpenTCP opens a TCP-profile session: connect, start the active
// health-probe listener, enter StateConnected. Unlike the serial
// variant there is no handshake: the fixed-frame transaction protocol
// needs no out-of-band mode switch.
func OpenTCP(cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()

	t, err := transport.New("tcp")
	if err != nil {
		return nil, err
	}
	if err := t.Open(transport.Config{
		PortOrEndpoint: cfg.PortOrEndpoint,
		Baudrate:       cfg.Baudrate,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}); err != nil {
		return nil, err
	}

	s := newSession(cfg, ProfileTCP, t)
	s.listenerLoop = s.tcpListenerLoop
	s.doRead = s.tcpRead
	s.doWrite = s.tcpWrite
	s.doScan = nil // axis scan is not supported on the TCP profile

	s.startListener()
	s.setState(StateConnected)
	s.logger.Info("mcb: tcp session opened", "endpoint", cfg.PortOrEndpoint)
	return s, nil
}

// tcpTransact implements the single-frame-in, single-frame-out
// exchange: send, sleep to yield to the device, receive exactly one
// 14-byte frame, verify CRC, and check the response cmd is ACK.
func (s *Session) tcpTransact(subnode uint8, address uint16, cmd frame.Cmd, payload []byte) (*frame.Frame, error) {
	raw, err := frame.EncodeTCP(TCPNodeDefault, subnode, address, cmd, false, payload)
	if err != nil {
		return nil, err
	}
	if _, err := s.transport.Write(raw); err != nil {
		return nil, err
	}

	time.Sleep(TCPRecvDelay)

	resp := make([]byte, 14)
	if _, err := s.transport.Read(resp); err != nil {
		return nil, err
	}

	f, err := frame.DecodeTCP(resp)
	if err != nil {
		return nil, err
	}
	if f.Cmd != frame.CmdAck {
		code := binary.BigEndian.Uint32(f.Payload[0:4])
		return nil, mcberr.NewNACK(code)
	}
	return f, nil
}

// tcpRead implements read/write: nodeID is used as the subnode, index
// as the register address; subIndex has no meaning in the TCP profile
// and is ignored.
func (s *Session) tcpRead(nodeID uint8, index uint16, _ uint8, buf []byte, _ time.Duration) (int, error) {
	f, err := s.tcpTransact(nodeID, index, frame.CmdRead, nil)
	if err != nil {
		return 0, err
	}
	n := copy(buf, f.Payload)
	return n, nil
}

func (s *Session) tcpWrite(nodeID uint8, index uint16, _ uint8, payload []byte) error {
	_, err := s.tcpTransact(nodeID, index, frame.CmdWrite, payload)
	return err
}

// tcpListenerLoop is the active health probe: every TCPPollInterval,
// read the statusword address on the fixed health subnode. Consecutive
// failures increment an error counter; after TCPMaxConsecutiveErrors
// the listener triggers reconnect.
func (s *Session) tcpListenerLoop(ctx context.Context) {
	ticker := time.NewTicker(TCPPollInterval)
	defer ticker.Stop()

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.sessionLock.Lock()
		f, err := s.tcpTransact(TCPHealthSubnode, StatuswordAddress, frame.CmdRead, nil)
		s.sessionLock.Unlock()

		if err != nil {
			consecutiveErrors++
			log.WithError(err).WithField("consecutive_errors", consecutiveErrors).Warn("mcb: tcp health probe failed")
			if consecutiveErrors >= TCPMaxConsecutiveErrors {
				s.logger.Warn("mcb: tcp health probe exceeded failure threshold, reconnecting", "consecutive_errors", consecutiveErrors)
				s.reconnect()
				if s.stopReconnect.Load() {
					return
				}
				consecutiveErrors = 0
			}
			continue
		}

		consecutiveErrors = 0
		s.subs.Dispatch(TCPHealthSubnode, f.StatusWord())
	}
}

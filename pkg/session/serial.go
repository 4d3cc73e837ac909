package session

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/mcb/pkg/frame"
	"github.com/samsamfire/mcb/pkg/mcberr"
	"github.com/samsamfire/mcb/pkg/transport"
)

// OpenSerial opens a serial-profile session:
//  1. open the transport with defaults
//  2. sleep InitWaitTime for device bring-up
//  3. write the literal handshake MsgA2B to force binary mode
//  4. re-assert binary mode with a one-byte write to
//     (UartCfgBinIdx, UartCfgBinSidx), id 0 (broadcast); failure here
//     is fatal to Open
//  5. start the listener, enter StateConnected
func OpenSerial(cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()

	t, err := transport.New("serial")
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

	time.Sleep(InitWaitTime)

	if _, err := t.Write([]byte(MsgA2B)); err != nil {
		_ = t.Close()
		return nil, mcberr.Wrap(mcberr.KindIO, err, "mcb: serial handshake write failed")
	}

	s := newSession(cfg, ProfileSerial, t)
	s.listenerLoop = s.serialListenerLoop
	s.doRead = s.serialRead
	s.doWrite = s.serialWrite
	s.doScan = s.serialScan

	raw, err := frame.EncodeSerial(0, UartCfgBinIdx, UartCfgBinSidx, frame.CmdWrite, []byte{1})
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	if _, err := t.Write(raw); err != nil {
		_ = t.Close()
		return nil, mcberr.Wrap(mcberr.KindIO, err, "mcb: binary-mode assertion write failed")
	}

	s.startListener()
	s.setState(StateConnected)
	s.logger.Info("mcb: serial session opened", "port", cfg.PortOrEndpoint)
	return s, nil
}

// serialRead implements the request/response half of synchronous
// read/write: claim the sync slot, send the read request, wait on the
// slot's condition variable with timeout.
func (s *Session) serialRead(nodeID uint8, index uint16, subIndex uint8, buf []byte, timeout time.Duration) (int, error) {
	s.slot.claim(nodeID, index, subIndex, buf)
	defer s.slot.release()

	raw, err := frame.EncodeSerial(nodeID, index, subIndex, frame.CmdRead, nil)
	if err != nil {
		return 0, err
	}
	if _, err := s.transport.Write(raw); err != nil {
		return 0, mcberr.Wrap(mcberr.KindIO, err, "mcb: serial read request failed")
	}

	n, ok, timedOut := s.slot.wait(timeout)
	if timedOut {
		return 0, mcberr.New(mcberr.KindTimeout, "mcb: read timed out waiting for node %d, idx 0x%04X:%02X", nodeID, index, subIndex)
	}
	if !ok {
		return 0, mcberr.New(mcberr.KindFault, "mcb: session faulted while waiting for read response")
	}
	return n, nil
}

// serialWrite is fire-and-forget at this layer: the serial variant of
// the engine requires no confirmation for writes.
func (s *Session) serialWrite(nodeID uint8, index uint16, subIndex uint8, payload []byte) error {
	raw, err := frame.EncodeSerial(nodeID, index, subIndex, frame.CmdWrite, payload)
	if err != nil {
		return err
	}
	if _, err := s.transport.Write(raw); err != nil {
		return mcberr.Wrap(mcberr.KindIO, err, "mcb: serial write failed")
	}
	return nil
}

// serialScan broadcasts a read of (UartCfgIDIdx, UartCfgIDSidx) with id
// 0, then repeatedly waits with ScanTimeout; each wake-up yields one
// responding id, reported via onFound, until a wait times out.
func (s *Session) serialScan(ctx context.Context, onFound FoundFunc) ([]uint8, error) {
	raw, err := frame.EncodeSerial(0, UartCfgIDIdx, UartCfgIDSidx, frame.CmdRead, nil)
	if err != nil {
		return nil, err
	}

	var found []uint8
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return found, nil
		default:
		}

		s.slot.claim(0, UartCfgIDIdx, UartCfgIDSidx, buf)
		if _, err := s.transport.Write(raw); err != nil {
			s.slot.release()
			return found, mcberr.Wrap(mcberr.KindIO, err, "mcb: scan broadcast failed")
		}

		_, ok, timedOut := s.slot.wait(ScanTimeout)
		s.slot.release()
		if timedOut || !ok {
			return found, nil
		}
		axisID := s.slot.respondedID()
		found = append(found, axisID)
		if onFound != nil {
			onFound(axisID)
		}
	}
}

// serialListenerLoop ingests bytes off the transport, feeds the stream
// framer, and dispatches complete frames to either the waiting
// synchronous caller or the statusword subscribers.
func (s *Session) serialListenerLoop(ctx context.Context) {
	fr := frame.NewStreamFramer()
	buf := make([]byte, 256)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := s.transport.Read(buf)
		if err != nil {
			var mErr *mcberr.Error
			if asErr(err, &mErr) && mErr.Kind == mcberr.KindIO && mErr.IO == mcberr.IOSubkindShortRead {
				if werr := s.transport.ReadWait(); werr != nil {
					continue
				}
				continue
			}
			log.WithError(err).Error("mcb: serial listener hard error")
			s.logger.Error("mcb: serial session faulted")
			s.setState(StateFaulty)
			s.slot.fail()
			return
		}

		for i := 0; i < n; i++ {
			complete, ferr := fr.PushByte(buf[i])
			if ferr != nil {
				log.WithError(ferr).Debug("mcb: serial framer resynced")
				continue
			}
			if !complete {
				continue
			}
			raw := fr.Take()
			decoded, derr := frame.DecodeSerial(raw)
			if derr != nil {
				log.WithError(derr).Debug("mcb: dropping frame with bad CRC")
				continue
			}
			s.handleSerialFrame(decoded)
		}
	}
}

func (s *Session) handleSerialFrame(f *frame.Frame) {
	if f.Index == StatuswordIdx && f.SubIndex == StatuswordSidx {
		s.subs.Dispatch(f.Node, f.StatusWord())
		return
	}
	s.slot.tryDeliver(f.Node, f.Index, f.SubIndex, f.Payload)
}

// asErr reports whether err is itself an *mcberr.Error and, if so,
// stores it in target. Unlike errors.As it does not unwrap err.
func asErr(err error, target **mcberr.Error) bool {
	e, ok := err.(*mcberr.Error)
	if !ok {
		return false
	}
	*target = e
	return true
}

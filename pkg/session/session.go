// Package session implements the MCB network/session layer: transport
// lifecycle including background reconnect, and a serialized
// request/response engine multiplexing synchronous reads/writes and
// asynchronous statusword notifications across concurrent callers on
// one duplex link.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samsamfire/mcb/pkg/mcberr"
	"github.com/samsamfire/mcb/pkg/subs"
	"github.com/samsamfire/mcb/pkg/transport"
)

// Profile selects which variant of the engine a Session runs.
type Profile int

const (
	ProfileSerial Profile = iota
	ProfileTCP
)

// FoundFunc is invoked once per responding axis during Scan.
type FoundFunc func(axisID uint8)

// Session owns one transport and everything needed to serialize
// requests against it: the session lock, the sync slot, the
// subscriber registry, and the listener goroutine.
type Session struct {
	cfg     Config
	profile Profile

	transport transport.Transport

	// sessionLock serializes encode/send/await-response end to end.
	sessionLock sync.Mutex

	// stateMu is a leaf lock guarding state.
	stateMu sync.Mutex
	state   State

	slot *syncSlot
	subs *subs.Registry

	logger *slog.Logger

	stopReconnect atomic.Bool
	listenerDone  chan struct{}
	listenerStop  context.CancelFunc

	// variant hooks, set by OpenSerial/OpenTCP.
	listenerLoop func(ctx context.Context)
	doRead       func(nodeID uint8, index uint16, subIndex uint8, buf []byte, timeout time.Duration) (int, error)
	doWrite      func(nodeID uint8, index uint16, subIndex uint8, payload []byte) error
	doScan       func(ctx context.Context, onFound FoundFunc) ([]uint8, error)
}

func newSession(cfg Config, profile Profile, t transport.Transport) *Session {
	return &Session{
		cfg:       cfg,
		profile:   profile,
		transport: t,
		slot:      newSyncSlot(),
		subs:      subs.New(),
		logger:    slog.Default(),
	}
}

// SetLogger overrides the session's lifecycle/state-transition logger.
func (s *Session) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// State returns the current session state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Subscribe registers cb to receive statusword updates for axisID.
func (s *Session) Subscribe(axisID uint8, cb subs.Callback, context any) error {
	return s.subs.Subscribe(axisID, cb, context)
}

// Unsubscribe removes a statusword subscription.
func (s *Session) Unsubscribe(axisID uint8) {
	s.subs.Unsubscribe(axisID)
}

// Read performs a serialized synchronous register read. It is the one
// public entry point shared by both profiles; the behavior differs
// only in doRead.
func (s *Session) Read(nodeID uint8, index uint16, subIndex uint8, buf []byte, timeout time.Duration) (int, error) {
	if s.State() != StateConnected {
		return 0, mcberr.New(mcberr.KindState, "mcb: read issued while session is %s", s.State())
	}
	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()
	return s.doRead(nodeID, index, subIndex, buf, timeout)
}

// Write performs a serialized register write.
func (s *Session) Write(nodeID uint8, index uint16, subIndex uint8, payload []byte) error {
	if s.State() != StateConnected {
		return mcberr.New(mcberr.KindState, "mcb: write issued while session is %s", s.State())
	}
	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()
	return s.doWrite(nodeID, index, subIndex, payload)
}

// Scan broadcasts a discovery read and reports each responding axis.
// Only meaningful for the serial profile; the TCP profile has exactly
// one fixed subnode and returns ErrNotSupported.
func (s *Session) Scan(ctx context.Context, onFound FoundFunc) ([]uint8, error) {
	if s.doScan == nil {
		return nil, mcberr.New(mcberr.KindNotSupported, "mcb: axis scan not supported on this profile")
	}
	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()
	return s.doScan(ctx, onFound)
}

// startListener launches the variant listener goroutine and records
// its context cancel func / completion channel for Close.
func (s *Session) startListener() {
	ctx, cancel := context.WithCancel(context.Background())
	s.listenerStop = cancel
	s.listenerDone = make(chan struct{})
	go func() {
		defer close(s.listenerDone)
		s.listenerLoop(ctx)
	}()
}

// Close tears down the session in the reverse order Open created it:
// stop the listener, fail any waiter, close the transport. After Close
// returns no further statusword callbacks are delivered.
func (s *Session) Close() error {
	s.stopReconnect.Store(true)
	if s.listenerStop != nil {
		s.listenerStop()
	}
	if s.listenerDone != nil {
		<-s.listenerDone
	}
	s.slot.fail()
	s.setState(StateDisconnected)
	s.logger.Info("mcb: session closed")
	if s.transport != nil {
		return s.transport.Close()
	}
	return nil
}

// reconnect is the cooperatively-cancellable loop shared by both
// profiles: close-and-reopen the transport, sleep on failure, log a
// diagnostic, exit when either the transport connects or stopReconnect
// is set.
func (s *Session) reconnect() {
	s.setState(StateDisconnected)
	for !s.stopReconnect.Load() {
		_ = s.transport.Close()
		if err := s.transport.Open(transport.Config{
			PortOrEndpoint: s.cfg.PortOrEndpoint,
			Baudrate:       s.cfg.Baudrate,
			ReadTimeout:    s.cfg.ReadTimeout,
			WriteTimeout:   s.cfg.WriteTimeout,
		}); err != nil {
			s.logger.Warn("mcb: reconnect attempt failed, retrying", "error", err)
			s.slot.fail()
			sleepOrStop(ReconnectSleep, &s.stopReconnect)
			continue
		}
		s.logger.Info("mcb: reconnect succeeded")
		s.setState(StateConnected)
		return
	}
	s.logger.Info("mcb: reconnect loop stopped")
}

// sleepOrStop sleeps for d unless stop is set in the meantime, polling
// briefly so Close() is not blocked for a full reconnect sleep.
func sleepOrStop(d time.Duration, stop *atomic.Bool) {
	const tick = 50 * time.Millisecond
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if stop.Load() {
			return
		}
		time.Sleep(tick)
	}
}

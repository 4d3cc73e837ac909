package session

import (
	"sync"
	"time"
)

// syncSlot holds the single outstanding synchronous transaction for a
// session. Only one caller can have a read or write in flight at a
// time; the session's own lock enforces that, so the slot just has to
// hand the result off to whichever caller is waiting.
type syncSlot struct {
	mu   sync.Mutex
	cond *sync.Cond

	active   bool
	nodeID   uint8 // 0 matches broadcast
	index    uint16
	subIndex uint8

	buf          []byte
	received     int
	complete     bool
	failed       bool
	respondedIDs uint8 // node id of the frame that completed the slot
}

func newSyncSlot() *syncSlot {
	s := &syncSlot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// claim prepares the slot for a new transaction. Callers must hold the
// session lock for the whole read/write operation; claim only guards
// the slot fields themselves.
func (s *syncSlot) claim(nodeID uint8, index uint16, subIndex uint8, buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.nodeID = nodeID
	s.index = index
	s.subIndex = subIndex
	s.buf = buf
	s.received = 0
	s.complete = false
	s.failed = false
}

// release marks the slot idle so a stale listener match cannot deliver
// into a buffer the caller has stopped waiting on.
func (s *syncSlot) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// wait blocks until the listener signals completion/failure or the
// timeout elapses, returning (n, ok, timedOut).
func (s *syncSlot) wait(timeout time.Duration) (n int, ok bool, timedOut bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for !s.complete && !s.failed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, false, true
		}
		waitWithTimeout(s.cond, remaining)
	}
	if s.failed {
		return 0, false, false
	}
	return s.received, true, false
}

// tryDeliver is called by the listener for each decoded response. It
// matches by (nodeID broadcast-or-equal, index, subIndex); an
// out-of-order frame matching an active slot is accepted, first writer
// wins, and payload is copied into the caller's buffer exactly once.
func (s *syncSlot) tryDeliver(frameNodeID uint8, index uint16, subIndex uint8, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.complete || s.failed {
		return false
	}
	if s.nodeID != 0 && s.nodeID != frameNodeID {
		return false
	}
	if s.index != index || s.subIndex != subIndex {
		return false
	}
	if len(s.buf) < len(payload) {
		return false
	}

	n := copy(s.buf, payload)
	s.received = n
	s.respondedIDs = frameNodeID
	s.complete = true
	s.cond.Broadcast()
	return true
}

// respondedID reports which node id completed the slot, used by Scan
// to report one responding id per wake-up.
func (s *syncSlot) respondedID() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.respondedIDs
}

// fail wakes any waiter with a failure (used when the transport/session
// transitions to FAULTY or reconnect aborts the wait).
func (s *syncSlot) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active && !s.complete {
		s.failed = true
		s.cond.Broadcast()
	}
}

// waitWithTimeout wakes cond.Wait after d even without a Signal,
// working around sync.Cond having no native timeout.
func waitWithTimeout(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	cond.Wait()
	timer.Stop()
}

// Package subs implements the statusword subscriber registry: a
// dynamic array of {axis id, callback, context} entries, dispatched
// under its own lock by the session listener.
package subs

import (
	"sync"

	"github.com/samsamfire/mcb/pkg/mcberr"
)

// DefaultSize is the registry's initial capacity before its first
// growth.
const DefaultSize = 8

// Callback receives the 16-bit status word for its axis id.
type Callback func(axisID uint8, value uint16, context any)

type entry struct {
	axisID   uint8
	callback Callback
	context  any
}

// Registry is a subscriber array with its own mutex, a leaf lock under
// the session lock.
type Registry struct {
	mu      sync.Mutex
	entries []entry
}

// New returns a Registry with room for DefaultSize subscribers before
// its first growth.
func New() *Registry {
	return &Registry{entries: make([]entry, 0, DefaultSize)}
}

// Subscribe appends a new subscriber for axisID. Go's slice append
// never fails to grow short of exhausting process memory, so ErrNoMem
// is defined for API parity but is not a reachable return in practice.
func (r *Registry) Subscribe(axisID uint8, cb Callback, context any) error {
	if cb == nil {
		return mcberr.New(mcberr.KindInvalid, "mcb: subscribe: nil callback")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{axisID: axisID, callback: cb, context: context})
	return nil
}

// Unsubscribe removes the first subscriber matching axisID, restoring
// the array by overwriting the removed slot with the last entry.
// Iteration order is not stable across removals.
func (r *Registry) Unsubscribe(axisID uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].axisID == axisID {
			last := len(r.entries) - 1
			r.entries[i] = r.entries[last]
			r.entries = r.entries[:last]
			return
		}
	}
}

// Count reports the current number of subscribers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Dispatch delivers value to every subscriber whose axis id matches.
// Callbacks run with the registry lock held and must not reenter the
// session engine.
func (r *Registry) Dispatch(axisID uint8, value uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.axisID == axisID {
			e.callback(axisID, value, e.context)
		}
	}
}

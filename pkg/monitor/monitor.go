// Package monitor watches a transport's device enumeration (serial
// port add/remove, in practice) and forwards changes to a user
// callback. It sits outside the core protocol as an ambient
// collaborator that notices a drive being unplugged and replugged,
// built as a poll loop over a pluggable Lister so it stays independent
// of any one transport's enumeration API.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/samsamfire/mcb/pkg/mcberr"
)

// EventKind discriminates an add from a remove.
type EventKind int

const (
	EventAdded EventKind = iota
	EventRemoved
)

// Event is delivered to the user callback for each device change.
type Event struct {
	Kind EventKind
	Path string
}

// Lister enumerates currently present device paths (for serial ports,
// for example, a listing of /dev/tty*). It is supplied by the caller;
// no transport in this module provides one, so Monitor has no
// transport-specific dependency.
type Lister func() ([]string, error)

// Monitor has a single start/stop lifecycle.
type Monitor struct {
	list     Lister
	onEvent  func(Event)
	interval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns a Monitor that polls list every interval.
func New(list Lister, onEvent func(Event), interval time.Duration) *Monitor {
	return &Monitor{list: list, onEvent: onEvent, interval: interval}
}

// Start begins watching for device changes. Calling Start while
// already running returns ErrAlready.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return mcberr.New(mcberr.KindAlready, "mcb: device monitor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	seen := make(map[string]bool)
	if paths, err := m.list(); err == nil {
		for _, p := range paths {
			seen[p] = true
		}
	}

	m.wg.Add(1)
	go m.loop(runCtx, seen)
	return nil
}

func (m *Monitor) loop(ctx context.Context, seen map[string]bool) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			paths, err := m.list()
			if err != nil {
				continue
			}
			now := make(map[string]bool, len(paths))
			for _, p := range paths {
				now[p] = true
				if !seen[p] {
					m.onEvent(Event{Kind: EventAdded, Path: p})
				}
			}
			for p := range seen {
				if !now[p] {
					m.onEvent(Event{Kind: EventRemoved, Path: p})
				}
			}
			seen = now
		}
	}
}

// Stop ends the watch loop and blocks until it has exited. It returns
// nothing: there is no meaningful failure mode for stopping a poll
// loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

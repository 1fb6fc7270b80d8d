// Package connectivity tracks reachability of the booking API.
//
// The monitor is a two-state machine (Online/Offline) fed by a pluggable
// EventSource. Production uses the periodic HTTP probe in probe.go; tests
// drive a ManualSource. Subscribers get transition edges on coalesced
// channels, mirroring how the host only promises "some" online event, not
// one per flap.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
)

// State is the reachability state reported by the host.
type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// EventSource delivers reachability transitions from the host platform.
type EventSource interface {
	// Current reports reachability right now. Read once at startup to
	// seed the state machine.
	Current(ctx context.Context) State
	// Events yields state transitions. The source may repeat states;
	// the monitor deduplicates.
	Events() <-chan State
}

// PendingCounter is the slice of the durable store the monitor needs.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// Monitor exposes the current reachability state plus the queued-write
// count, and fans transition edges out to subscribers.
type Monitor struct {
	source  EventSource
	counter PendingCounter

	mu      sync.Mutex
	state   State
	seeded  bool
	pending int
	subs    []chan State
}

// NewMonitor creates a monitor over the given event source. The pending
// count is refreshed from counter after every add/remove via
// RefreshPendingCount.
func NewMonitor(source EventSource, counter PendingCounter) *Monitor {
	return &Monitor{source: source, counter: counter}
}

// Run seeds the initial state from the source and then consumes
// transitions until ctx is cancelled. Blocks; run in its own goroutine.
func (m *Monitor) Run(ctx context.Context) error {
	initial := m.source.Current(ctx)
	m.mu.Lock()
	if !m.seeded {
		m.state = initial
		m.seeded = true
	}
	m.mu.Unlock()
	slog.Info("connectivity monitor started", "state", initial.String())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next, ok := <-m.source.Events():
			if !ok {
				return nil
			}
			m.transition(next)
		}
	}
}

// transition applies a state change and notifies subscribers.
// Repeated reports of the current state are dropped.
func (m *Monitor) transition(next State) {
	m.mu.Lock()
	if m.seeded && m.state == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	m.seeded = true
	subs := make([]chan State, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	slog.Info("connectivity changed", "state", next.String())
	for _, ch := range subs {
		// Size-1 buffer per subscriber: a slow consumer sees the latest
		// edge once rather than a backlog of flaps.
		select {
		case ch <- next:
		default:
		}
	}
}

// Report applies a host-reported transition synchronously. Hosts that
// surface their own online/offline callbacks use this instead of running
// an EventSource loop; so does the conformance harness, which needs the
// state visible the moment the call returns.
func (m *Monitor) Report(next State) {
	m.transition(next)
}

// State returns the current reachability state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel carrying state transition edges.
// The channel is never closed; stop reading when done.
func (m *Monitor) Subscribe() <-chan State {
	ch := make(chan State, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// RefreshPendingCount re-queries the store and caches the result.
// Called after every queue add/remove.
func (m *Monitor) RefreshPendingCount(ctx context.Context) (int, error) {
	count, err := m.counter.PendingCount(ctx)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.pending = count
	m.mu.Unlock()
	return count, nil
}

// PendingCount returns the last refreshed queued-write count.
func (m *Monitor) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// ManualSource is an EventSource driven by explicit Set calls.
// Used by tests and by hosts that surface their own online/offline events.
type ManualSource struct {
	mu      sync.Mutex
	current State
	ch      chan State
}

// NewManualSource creates a source starting in the given state.
func NewManualSource(initial State) *ManualSource {
	return &ManualSource{current: initial, ch: make(chan State, 8)}
}

// Current implements EventSource.
func (s *ManualSource) Current(context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Events implements EventSource.
func (s *ManualSource) Events() <-chan State {
	return s.ch
}

// Set reports a transition to the monitor.
func (s *ManualSource) Set(state State) {
	s.mu.Lock()
	s.current = state
	s.mu.Unlock()
	s.ch <- state
}

package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hireloop/chatsync/internal/bus"
)

// State represents the push channel's connection health.
type State string

const (
	Idle         State = "IDLE"
	Connecting   State = "CONNECTING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	// Degraded means repeated reconnects failed; the fallback poll is the
	// only source of updates until the channel recovers.
	Degraded State = "DEGRADED"
	Stopped  State = "STOPPED"
)

var validTransitions = map[State][]State{
	Idle:         {Connecting, Stopped},
	Connecting:   {Ready, Reconnecting, Degraded, Stopped},
	Ready:        {Reconnecting, Stopped},
	Reconnecting: {Connecting, Ready, Degraded, Stopped},
	Degraded:     {Connecting, Ready, Stopped},
}

// Machine tracks and enforces push-channel state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Idle, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state, publishing the change on
// the bus. Returns an error if the transition is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	if !slices.Contains(validTransitions[m.current], to) {
		defer m.mu.Unlock()
		return fmt.Errorf("invalid channel state transition %s -> %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:    bus.KindLiveStatusChanged,
			At:      time.Now(),
			Payload: Change{From: from, To: to},
		})
	}
	return nil
}

// Change is the payload for channel state change events.
type Change struct {
	From State
	To   State
}

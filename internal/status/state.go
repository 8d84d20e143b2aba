// Package status provides a small validated state machine whose transitions
// are announced on the event bus.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sumithjoshi99/medconnect/internal/bus"
)

// State is a named runtime state.
type State string

// Transitions lists, for each state, the states it may move to.
type Transitions map[State][]State

// InvalidTransitionError is returned when a transition is not allowed.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// Change is the payload published on every successful transition.
type Change struct {
	From   State
	To     State
	Reason string
}

// Machine tracks and enforces state transitions.
type Machine struct {
	mu          sync.RWMutex
	current     State
	since       time.Time
	transitions Transitions
	kind        string
	bus         *bus.Bus
}

// NewMachine creates a machine in the initial state. Each transition is
// published on b (if non-nil) with the given event kind.
func NewMachine(kind string, initial State, transitions Transitions, b *bus.Bus) *Machine {
	return &Machine{
		current:     initial,
		since:       time.Now(),
		transitions: transitions,
		kind:        kind,
		bus:         b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Can reports whether a transition to the given state is currently allowed.
func (m *Machine) Can(to State) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.transitions[m.current], to)
}

// Transition moves to a new state. Returns InvalidTransitionError if the
// move is not allowed from the current state.
func (m *Machine) Transition(to State) error {
	return m.TransitionWithReason(to, "")
}

// TransitionWithReason is Transition with a human-readable cause attached
// to the published change.
func (m *Machine) TransitionWithReason(to State, reason string) error {
	m.mu.Lock()
	if !slices.Contains(m.transitions[m.current], to) {
		from := m.current
		m.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(bus.NewEvent(m.kind, Change{From: from, To: to, Reason: reason}))
	}
	return nil
}

package call

import (
	"errors"
	"sync"
	"time"
)

// StateChange represents a state transition event.
type StateChange struct {
	From      Status
	To        Status
	Trigger   Trigger
	Timestamp time.Time
}

// Listener observes call state changes.
type Listener interface {
	OnStateChange(event StateChange)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(StateChange)

func (f ListenerFunc) OnStateChange(event StateChange) { f(event) }

// InvalidTransitionError reports a trigger that has no edge from the current state.
type InvalidTransitionError struct {
	From    Status
	Trigger Trigger
}

func (e *InvalidTransitionError) Error() string {
	return "invalid call transition from " + e.From.String() + " on " + string(e.Trigger)
}

// IsIgnored reports whether err only says the trigger did not apply.
func IsIgnored(err error) bool {
	var inv *InvalidTransitionError
	return errors.As(err, &inv)
}

// Machine holds the call status and moves it along the transition table.
type Machine struct {
	mu        sync.RWMutex
	current   Status
	listeners []Listener
	now       func() time.Time
}

// NewMachine creates a machine in StatusIdle.
func NewMachine() *Machine {
	return &Machine{current: StatusIdle, now: time.Now}
}

// Status returns the current state.
func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Can reports whether trigger would move the machine.
func (m *Machine) Can(trigger Trigger) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := Next(m.current, trigger)
	return ok
}

// Fire applies trigger. A trigger without an edge leaves the state untouched and returns
// *InvalidTransitionError; callers treat that as a no-op.
func (m *Machine) Fire(trigger Trigger) (StateChange, error) {
	m.mu.Lock()
	to, ok := Next(m.current, trigger)
	if !ok {
		from := m.current
		m.mu.Unlock()
		return StateChange{}, &InvalidTransitionError{From: from, Trigger: trigger}
	}
	event := StateChange{
		From:      m.current,
		To:        to,
		Trigger:   trigger,
		Timestamp: m.now(),
	}
	m.current = to
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	// Notify outside the lock so listeners may read Status.
	for _, l := range listeners {
		l.OnStateChange(event)
	}
	return event, nil
}

// AddListener registers a listener for state change events.
func (m *Machine) AddListener(listener Listener) {
	if listener == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

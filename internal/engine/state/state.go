// Package state defines the resolution status of a remote object handle,
// shared by the registry, the proxies in front of it and the diagnostics.
package state

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Status is the resolution status of a remote object handle.
type Status int32

const (
	// StatusUnresolved means the registry is still polling for the object.
	StatusUnresolved Status = iota

	// StatusResolved means the object was found and wrapped.
	StatusResolved

	// StatusFailed means the attempt budget ran out. Terminal.
	StatusFailed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusUnresolved:
		return "unresolved"
	case StatusResolved:
		return "resolved"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseStatus(str)
	return nil
}

// ParseStatus converts a string to Status. Unknown strings map to
// StatusUnresolved.
func ParseStatus(s string) Status {
	switch s {
	case "resolved", "ready":
		return StatusResolved
	case "failed", "unavailable":
		return StatusFailed
	default:
		return StatusUnresolved
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusFailed
}

// ValidTransitions defines allowed state transitions. There is no way back
// to StatusUnresolved.
var ValidTransitions = map[Status][]Status{
	StatusUnresolved: {StatusResolved, StatusFailed},
}

// CanTransition returns true if the transition from -> to is valid.
func CanTransition(from, to Status) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError represents an invalid state transition.
type TransitionError struct {
	From Status
	To   Status
}

// Error implements error.
func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// Machine holds a Status and enforces ValidTransitions.
type Machine struct {
	mu     sync.RWMutex
	status Status
}

// Status returns the current status.
func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Transition moves to next or returns a TransitionError.
func (m *Machine) Transition(next Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransition(m.status, next) {
		return TransitionError{From: m.status, To: next}
	}
	m.status = next
	return nil
}

// Snapshot is a point-in-time report on one handle.
type Snapshot struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Probes   int    `json:"probes"`
	Queued   int    `json:"queued,omitempty"`
	Bindings int    `json:"bindings,omitempty"`
	Error    string `json:"error,omitempty"`

	// PendingBindings counts signal bindings waiting for resolution.
	PendingBindings int `json:"pending_bindings,omitempty"`
}

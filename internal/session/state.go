// SPDX-License-Identifier: MPL-2.0

package session

import (
	"errors"
	"fmt"
)

const (
	StatePending      State = "pending"
	StateProvisioning State = "provisioning"
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateFailed       State = "failed"
)

// ErrInvalidTransition is the sentinel error wrapped by InvalidTransitionError.
var ErrInvalidTransition = errors.New("invalid session state transition")

var transitions = map[State][]State{
	StatePending:      {StateProvisioning, StateFailed},
	StateProvisioning: {StateStarting, StateFailed},
	StateStarting:     {StateRunning, StateFailed},
}

type (
	// State is the lifecycle state of a session start.
	State string

	// InvalidTransitionError is returned when a session is moved to a state
	// that cannot follow its current one.
	InvalidTransitionError struct {
		From State
		To   State
	}
)

func (s State) String() string { return string(s) }

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateRunning || s == StateFailed
}

// CanTransition reports whether to may follow s.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid session state transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

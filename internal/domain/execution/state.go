package execution

import (
	"fmt"

	"github.com/berrys-ai/agents/internal/domain"
)

// State represents the lifecycle state of an execution.
type State string

const (
	StateQueued    State = "queued"
	StatePreparing State = "preparing"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// validStates enumerates all valid execution states.
var validStates = map[State]bool{
	StateQueued:    true,
	StatePreparing: true,
	StateRunning:   true,
	StatePaused:    true,
	StateCompleted: true,
	StateFailed:    true,
	StateCancelled: true,
}

// transitions is the static transition table. Validation is a pure lookup of
// (current, target); there is no implicit "terminal reachable from anywhere"
// shortcut. The failed→queued edge is the retry path and is only taken by
// Retry, never by the normal run flow.
var transitions = map[State][]State{
	StateQueued:    {StatePreparing, StateCancelled},
	StatePreparing: {StateRunning, StateCancelled, StateFailed},
	StateRunning:   {StatePaused, StateCompleted, StateFailed, StateCancelled},
	StatePaused:    {StateRunning, StateCancelled},
	StateCompleted: {},
	StateFailed:    {StateQueued},
	StateCancelled: {},
}

// Valid reports whether s is a known state.
func (s State) Valid() bool { return validStates[s] }

// Terminal reports whether s permits no further normal-flow transitions.
// Failed is terminal even though the retry edge exists: the run flow never
// leaves it on its own.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Active reports whether an execution in state s may have in-flight work.
func (s State) Active() bool {
	return s == StatePreparing || s == StateRunning || s == StatePaused
}

// CanTransition reports whether the table permits moving from current to target.
func CanTransition(current, target State) bool {
	for _, t := range transitions[current] {
		if t == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns a descriptive ErrInvalidTransition when the
// table forbids moving from current to target. The message names the exact
// pair so callers can build correct retry logic.
func ValidateTransition(current, target State) error {
	if !validStates[target] {
		return fmt.Errorf("unknown target state %q: %w", target, domain.ErrInvalidTransition)
	}
	if !CanTransition(current, target) {
		return fmt.Errorf("cannot move from %s to %s: %w", current, target, domain.ErrInvalidTransition)
	}
	return nil
}

package execution_test

import (
	"errors"
	"testing"

	"github.com/berrys-ai/agents/internal/domain"
	"github.com/berrys-ai/agents/internal/domain/execution"
)

var allStates = []execution.State{
	execution.StateQueued,
	execution.StatePreparing,
	execution.StateRunning,
	execution.StatePaused,
	execution.StateCompleted,
	execution.StateFailed,
	execution.StateCancelled,
}

// allowed mirrors the transition table for exhaustive pair checking.
var allowed = map[execution.State][]execution.State{
	execution.StateQueued:    {execution.StatePreparing, execution.StateCancelled},
	execution.StatePreparing: {execution.StateRunning, execution.StateCancelled, execution.StateFailed},
	execution.StateRunning:   {execution.StatePaused, execution.StateCompleted, execution.StateFailed, execution.StateCancelled},
	execution.StatePaused:    {execution.StateRunning, execution.StateCancelled},
	execution.StateFailed:    {execution.StateQueued},
}

func contains(states []execution.State, s execution.State) bool {
	for _, t := range states {
		if t == s {
			return true
		}
	}
	return false
}

func TestCanTransition_AllPairs(t *testing.T) {
	for _, from := range allStates {
		for _, to := range allStates {
			want := contains(allowed[from], to)
			if got := execution.CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestValidateTransition_InvalidPairs(t *testing.T) {
	for _, from := range allStates {
		for _, to := range allStates {
			if contains(allowed[from], to) {
				continue
			}
			err := execution.ValidateTransition(from, to)
			if !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("ValidateTransition(%s, %s) = %v, want ErrInvalidTransition", from, to, err)
			}
		}
	}
}

func TestValidateTransition_UnknownTarget(t *testing.T) {
	err := execution.ValidateTransition(execution.StateQueued, "exploded")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := map[execution.State]bool{
		execution.StateCompleted: true,
		execution.StateFailed:    true,
		execution.StateCancelled: true,
	}
	for _, s := range allStates {
		if got := s.Terminal(); got != terminal[s] {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, terminal[s])
		}
	}
}

func TestCompletedAndCancelledHaveNoExits(t *testing.T) {
	for _, from := range []execution.State{execution.StateCompleted, execution.StateCancelled} {
		for _, to := range allStates {
			if execution.CanTransition(from, to) {
				t.Errorf("CanTransition(%s, %s) = true, terminal states must have no exits", from, to)
			}
		}
	}
}

func TestFailedOnlyExitsToQueued(t *testing.T) {
	for _, to := range allStates {
		got := execution.CanTransition(execution.StateFailed, to)
		want := to == execution.StateQueued
		if got != want {
			t.Errorf("CanTransition(failed, %s) = %v, want %v", to, got, want)
		}
	}
}

func TestActiveStates(t *testing.T) {
	active := map[execution.State]bool{
		execution.StatePreparing: true,
		execution.StateRunning:   true,
		execution.StatePaused:    true,
	}
	for _, s := range allStates {
		if got := s.Active(); got != active[s] {
			t.Errorf("%s.Active() = %v, want %v", s, got, active[s])
		}
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/berrys-ai/agents/internal/domain"
	"github.com/berrys-ai/agents/internal/domain/execution"
	"github.com/berrys-ai/agents/internal/port/database"
)

// maxConflictRetries bounds how often a state change is retried after losing
// an optimistic concurrency race. Each retry re-reads the row and
// re-validates the transition against the fresh state.
const maxConflictRetries = 3

// ChangeOptions carries the optional payload of a state change.
type ChangeOptions struct {
	Reason string

	// Result is stored on the completed transition; ErrorMessage on the
	// failed transition. They are mutually exclusive.
	Result       json.RawMessage
	ErrorMessage string
}

// StateManager serializes execution state changes. Every transition is
// validated against the transition table, written with a conditioned update
// plus history entry, and followed by best-effort event emission.
type StateManager struct {
	store   database.Store
	emitter *EventEmitter
	tasks   *TaskManager
}

// NewStateManager creates a StateManager. tasks may be nil when no
// background goroutines need cleanup (tests, CLI tooling).
func NewStateManager(store database.Store, emitter *EventEmitter, tasks *TaskManager) *StateManager {
	return &StateManager{store: store, emitter: emitter, tasks: tasks}
}

// ChangeState moves an execution to target, retrying a bounded number of
// times when a concurrent writer wins the conditioned update. The returned
// execution reflects the committed row.
func (sm *StateManager) ChangeState(ctx context.Context, id string, target execution.State, opts ChangeOptions) (*execution.Execution, error) {
	var lastErr error
	for attempt := range maxConflictRetries {
		cur, err := sm.store.GetExecution(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := execution.ValidateTransition(cur.State, target); err != nil {
			return nil, fmt.Errorf("execution %s: %w", id, err)
		}

		updated, err := sm.store.UpdateState(ctx, id, buildChange(cur.State, target, opts))
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				sm.emitter.Conflict(ctx, id)
				slog.Warn("state change lost race, retrying",
					"execution_id", id, "target", target, "attempt", attempt+1)
				lastErr = err
				continue
			}
			return nil, err
		}

		slog.Info("execution state changed",
			"execution_id", id, "from", cur.State, "to", updated.State, "reason", opts.Reason)

		sm.emitter.StateChanged(ctx, updated, cur.State, opts.Reason)
		if updated.State.Terminal() {
			if sm.tasks != nil {
				sm.tasks.Clear(id)
			}
			sm.emitter.Completed(ctx, updated)
		}
		return updated, nil
	}
	return nil, fmt.Errorf("change state of %s to %s: %w", id, target, lastErr)
}

// buildChange maps a validated transition to its storage side effects.
func buildChange(from, target execution.State, opts ChangeOptions) database.StateChange {
	now := time.Now().UTC()
	ch := database.StateChange{
		From:   from,
		To:     target,
		Reason: opts.Reason,
	}

	switch target {
	case execution.StateRunning:
		// Set once; resuming from paused keeps the original start time.
		ch.StartedAt = &now
	case execution.StateCompleted:
		ch.CompletedAt = &now
		ch.Result = opts.Result
	case execution.StateFailed:
		ch.CompletedAt = &now
		ch.ErrorMessage = opts.ErrorMessage
	case execution.StateCancelled:
		ch.CompletedAt = &now
	case execution.StateQueued:
		// Only reachable as the retry edge from failed.
		ch.QueuedAt = &now
		ch.ResetForRetry = true
	}
	return ch
}

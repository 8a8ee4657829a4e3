// Package database defines the execution store port (interface).
package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/berrys-ai/agents/internal/domain/execution"
)

// MaxPageSize bounds ListExecutions page sizes to prevent unbounded scans.
const MaxPageSize = 100

// StateChange describes one conditioned state write. The update is accepted
// only if the row's current state still equals From; the history row is
// inserted in the same transaction.
type StateChange struct {
	From   execution.State
	To     execution.State
	Reason string

	// Timestamp side effects, applied when non-nil. Each column is set at
	// most once over the execution's lifetime (COALESCE semantics), except
	// QueuedAt which the retry path overwrites.
	StartedAt   *time.Time
	CompletedAt *time.Time
	QueuedAt    *time.Time

	// Terminal payload. Result and ErrorMessage are mutually exclusive.
	Result       json.RawMessage
	ErrorMessage string

	// ResetForRetry clears error, result, progress and completed_at when
	// re-entering queued from failed.
	ResetForRetry bool
}

// Store is the port interface for execution persistence. All operations are
// transactional: a failed write leaves prior state unchanged.
type Store interface {
	// GetExecution returns an execution by ID, or domain.ErrNotFound.
	GetExecution(ctx context.Context, id string) (*execution.Execution, error)

	// ListExecutions returns a page of executions matching the filter,
	// newest first, plus the total match count. Pages are 1-indexed and
	// pageSize is capped at MaxPageSize.
	ListExecutions(ctx context.Context, filter execution.ListFilter, page, pageSize int) ([]execution.Execution, int, error)

	// CreateExecution inserts a new execution in the queued state.
	CreateExecution(ctx context.Context, e *execution.Execution) error

	// UpdateState applies a conditioned state write plus its history entry
	// in one transaction. Returns domain.ErrConflict when another writer
	// moved the row off ch.From first, domain.ErrNotFound when absent.
	UpdateState(ctx context.Context, id string, ch StateChange) (*execution.Execution, error)

	// UpdateProgress persists a progress report. Returns
	// domain.ErrInvalidState unless the row is running or paused.
	UpdateProgress(ctx context.Context, id string, p execution.Progress) (*execution.Execution, error)

	// CreateStateHistory appends an audit record outside a state write.
	CreateStateHistory(ctx context.Context, entry *execution.HistoryEntry) error

	// GetStateHistory returns up to limit history entries, newest first.
	GetStateHistory(ctx context.Context, executionID string, limit int) ([]execution.HistoryEntry, error)

	// DeleteExecution hard-deletes an execution and its history.
	// Administrative only; never part of the normal lifecycle.
	DeleteExecution(ctx context.Context, id string) error
}

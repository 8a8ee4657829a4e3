package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/berrys-ai/agents/internal/domain"
	"github.com/berrys-ai/agents/internal/domain/execution"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// nullTime converts a nil or zero time to nil for nullable DB columns.
func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

// notFoundWrap checks whether err is pgx.ErrNoRows and, if so, wraps
// domain.ErrNotFound with the given message. Otherwise it wraps the
// original error.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// execExpectOne verifies that an Exec affected exactly one row. If not
// (and err is nil), it returns domain.ErrNotFound with the given message.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	if err != nil {
		return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", domain.ErrNotFound)
	}
	return nil
}

const executionColumns = `id, agent_id, task_id, state, progress, status_message, steps, result, error_message,
	        version, queued_at, started_at, completed_at, created_at, updated_at`

func scanExecution(row scannable) (execution.Execution, error) {
	var (
		e         execution.Execution
		stepsJSON []byte
	)
	err := row.Scan(&e.ID, &e.AgentID, &e.TaskID, &e.State, &e.Progress, &e.StatusMessage,
		&stepsJSON, &e.Result, &e.ErrorMessage, &e.Version,
		&e.QueuedAt, &e.StartedAt, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return execution.Execution{}, err
	}
	if len(stepsJSON) > 0 {
		var steps execution.Steps
		if err := json.Unmarshal(stepsJSON, &steps); err != nil {
			return execution.Execution{}, fmt.Errorf("unmarshal steps: %w", err)
		}
		e.Steps = &steps
	}
	return e, nil
}

func scanHistoryEntry(row scannable) (execution.HistoryEntry, error) {
	var h execution.HistoryEntry
	err := row.Scan(&h.ID, &h.ExecutionID, &h.PreviousState, &h.NewState, &h.Reason, &h.CreatedAt)
	if err != nil {
		return execution.HistoryEntry{}, err
	}
	return h, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/berrys-ai/agents/internal/domain"
	"github.com/berrys-ai/agents/internal/domain/execution"
	"github.com/berrys-ai/agents/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetExecution(ctx context.Context, id string) (*execution.Execution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+executionColumns+`
		 FROM executions WHERE id = $1`, id)

	e, err := scanExecution(row)
	if err != nil {
		return nil, notFoundWrap(err, "get execution %s", id)
	}
	return &e, nil
}

func (s *Store) ListExecutions(ctx context.Context, filter execution.ListFilter, page, pageSize int) ([]execution.Execution, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > database.MaxPageSize {
		pageSize = database.MaxPageSize
	}

	where := ""
	args := []any{}
	addCond := func(cond string, val any) {
		args = append(args, val)
		clause := fmt.Sprintf(cond, len(args))
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}
	if filter.AgentID != "" {
		addCond("agent_id = $%d", filter.AgentID)
	}
	if filter.TaskID != "" {
		addCond("task_id = $%d", filter.TaskID)
	}
	if filter.State != "" {
		addCond("state = $%d", string(filter.State))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM executions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionColumns+`
		 FROM executions`+where+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []execution.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, 0, err
		}
		execs = append(execs, e)
	}
	return execs, total, rows.Err()
}

func (s *Store) CreateExecution(ctx context.Context, e *execution.Execution) error {
	stepsJSON, err := marshalSteps(e.Steps)
	if err != nil {
		return err
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO executions (id, agent_id, task_id, state, progress, status_message, steps)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING version, queued_at, created_at, updated_at`,
		e.ID, e.AgentID, e.TaskID, string(e.State), e.Progress, e.StatusMessage, stepsJSON)

	if err := row.Scan(&e.Version, &e.QueuedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

// UpdateState performs the conditioned state write. The UPDATE only matches
// when the row is still in ch.From, so a concurrent writer that got there
// first makes this a no-op and the caller sees domain.ErrConflict. The
// history row is inserted in the same transaction.
func (s *Store) UpdateState(ctx context.Context, id string, ch database.StateChange) (*execution.Execution, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update state: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`UPDATE executions SET
		     state = $2,
		     version = version + 1,
		     updated_at = now(),
		     started_at = COALESCE(started_at, $3),
		     queued_at = COALESCE($4, queued_at),
		     completed_at = CASE WHEN $8 THEN NULL ELSE COALESCE(completed_at, $5) END,
		     result = CASE WHEN $8 THEN NULL ELSE COALESCE($6, result) END,
		     error_message = CASE WHEN $8 THEN '' WHEN $7 <> '' THEN $7 ELSE error_message END,
		     progress = CASE WHEN $8 THEN 0 ELSE progress END,
		     status_message = CASE WHEN $8 THEN '' ELSE status_message END,
		     steps = CASE WHEN $8 THEN NULL ELSE steps END
		 WHERE id = $1 AND state = $9
		 RETURNING `+executionColumns,
		id, string(ch.To), nullTime(ch.StartedAt), nullTime(ch.QueuedAt), nullTime(ch.CompletedAt),
		ch.Result, ch.ErrorMessage, ch.ResetForRetry, string(ch.From))

	e, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.classifyMiss(ctx, tx, id)
		}
		return nil, fmt.Errorf("update state %s: %w", id, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO execution_state_history (execution_id, previous_state, new_state, reason)
		 VALUES ($1, $2, $3, $4)`,
		id, string(ch.From), string(ch.To), ch.Reason)
	if err != nil {
		return nil, fmt.Errorf("insert state history %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update state %s: %w", id, err)
	}
	return &e, nil
}

// classifyMiss distinguishes a missing row from a concurrent state change
// after a conditioned UPDATE matched nothing.
func (s *Store) classifyMiss(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM executions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update state %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("update state %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("update state %s: %w", id, domain.ErrConflict)
}

func (s *Store) UpdateProgress(ctx context.Context, id string, p execution.Progress) (*execution.Execution, error) {
	steps := &execution.Steps{Completed: p.Completed, Current: p.Current, Remaining: p.Remaining}
	if p.Completed == nil && p.Current == "" && p.Remaining == nil {
		steps = nil
	}
	stepsJSON, err := marshalSteps(steps)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE executions SET
		     progress = $2,
		     status_message = $3,
		     steps = COALESCE($4, steps),
		     version = version + 1,
		     updated_at = now()
		 WHERE id = $1 AND state IN ('running', 'paused')
		 RETURNING `+executionColumns,
		id, p.Percentage, p.Message, stepsJSON)

	e, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := s.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM executions WHERE id = $1)`, id).Scan(&exists); err != nil {
				return nil, fmt.Errorf("update progress %s: %w", id, err)
			}
			if !exists {
				return nil, fmt.Errorf("update progress %s: %w", id, domain.ErrNotFound)
			}
			return nil, fmt.Errorf("update progress %s: %w", id, domain.ErrInvalidState)
		}
		return nil, fmt.Errorf("update progress %s: %w", id, err)
	}
	return &e, nil
}

func (s *Store) CreateStateHistory(ctx context.Context, entry *execution.HistoryEntry) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO execution_state_history (execution_id, previous_state, new_state, reason)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		entry.ExecutionID, string(entry.PreviousState), string(entry.NewState), entry.Reason)

	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("create state history: %w", err)
	}
	return nil
}

func (s *Store) GetStateHistory(ctx context.Context, executionID string, limit int) ([]execution.HistoryEntry, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, execution_id, previous_state, new_state, reason, created_at
		 FROM execution_state_history
		 WHERE execution_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, executionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get state history %s: %w", executionID, err)
	}
	defer rows.Close()

	var entries []execution.HistoryEntry
	for rows.Next() {
		h, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	// History rows go with it via ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx, `DELETE FROM executions WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete execution %s", id)
}

func marshalSteps(steps *execution.Steps) ([]byte, error) {
	if steps == nil {
		return nil, nil
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("marshal steps: %w", err)
	}
	return b, nil
}

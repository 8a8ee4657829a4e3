package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/berrys-ai/agents/internal/config"
	"github.com/berrys-ai/agents/internal/domain"
	"github.com/berrys-ai/agents/internal/domain/execution"
	"github.com/berrys-ai/agents/internal/port/database"
	"github.com/berrys-ai/agents/internal/port/messagequeue"
	"github.com/berrys-ai/agents/internal/port/registry"
)

// ExecutionService is the façade over the execution lifecycle: creation,
// state changes, progress, retry and the background run itself.
type ExecutionService struct {
	store     database.Store
	directory registry.Directory
	states    *StateManager
	progress  *ProgressTracker
	runner    *Runner
	tasks     *TaskManager
	queue     messagequeue.Queue
	cfg       config.Runtime
}

// NewExecutionService wires the execution façade.
func NewExecutionService(
	store database.Store,
	directory registry.Directory,
	states *StateManager,
	progress *ProgressTracker,
	runner *Runner,
	tasks *TaskManager,
	queue messagequeue.Queue,
	cfg config.Runtime,
) *ExecutionService {
	return &ExecutionService{
		store:     store,
		directory: directory,
		states:    states,
		progress:  progress,
		runner:    runner,
		tasks:     tasks,
		queue:     queue,
		cfg:       cfg,
	}
}

// Create registers a new execution in the queued state. The agent and task
// must exist in their owning services.
func (s *ExecutionService) Create(ctx context.Context, req execution.CreateRequest) (*execution.Execution, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.directory.GetAgent(ctx, req.AgentID); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	if _, err := s.directory.GetTask(ctx, req.TaskID); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	e := &execution.Execution{
		ID:      uuid.NewString(),
		AgentID: req.AgentID,
		TaskID:  req.TaskID,
		State:   execution.StateQueued,
	}
	if err := s.store.CreateExecution(ctx, e); err != nil {
		return nil, err
	}

	slog.Info("execution created", "execution_id", e.ID, "agent_id", e.AgentID, "task_id", e.TaskID)
	return e, nil
}

// Get returns an execution by ID.
func (s *ExecutionService) Get(ctx context.Context, id string) (*execution.Execution, error) {
	return s.store.GetExecution(ctx, id)
}

// List returns a page of executions matching the filter, newest first,
// plus the total match count. Pages are 1-indexed.
func (s *ExecutionService) List(ctx context.Context, filter execution.ListFilter, page, pageSize int) ([]execution.Execution, int, error) {
	if filter.State != "" && !filter.State.Valid() {
		return nil, 0, fmt.Errorf("unknown state %q: %w", filter.State, domain.ErrValidation)
	}
	return s.store.ListExecutions(ctx, filter, page, pageSize)
}

// History returns the transition history of an execution, newest first.
func (s *ExecutionService) History(ctx context.Context, id string, limit int) ([]execution.HistoryEntry, error) {
	if _, err := s.store.GetExecution(ctx, id); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = s.cfg.HistoryLimit
	}
	return s.store.GetStateHistory(ctx, id, limit)
}

// Start moves a queued execution to preparing and launches its background
// run. At most one run per execution can be in flight.
func (s *ExecutionService) Start(ctx context.Context, id string) (*execution.Execution, error) {
	e, err := s.states.ChangeState(ctx, id, execution.StatePreparing, ChangeOptions{
		Reason: "start requested",
	})
	if err != nil {
		return nil, err
	}

	if err := s.tasks.Launch(id, func(runCtx context.Context) {
		s.runner.Execute(runCtx, id)
	}); err != nil {
		// A goroutine for this ID is already in flight; surface it as a
		// failed preparation so the execution does not hang.
		failed, ferr := s.states.ChangeState(ctx, id, execution.StateFailed, ChangeOptions{
			Reason:       "launch failed",
			ErrorMessage: err.Error(),
		})
		if ferr != nil {
			return nil, errors.Join(err, ferr)
		}
		return failed, err
	}
	return e, nil
}

// Pause suspends a running execution. The background goroutine keeps its
// slot and observes the pause cooperatively.
func (s *ExecutionService) Pause(ctx context.Context, id string, reason string) (*execution.Execution, error) {
	if reason == "" {
		reason = "paused by user"
	}
	return s.states.ChangeState(ctx, id, execution.StatePaused, ChangeOptions{Reason: reason})
}

// Resume continues a paused execution.
func (s *ExecutionService) Resume(ctx context.Context, id string) (*execution.Execution, error) {
	return s.states.ChangeState(ctx, id, execution.StateRunning, ChangeOptions{
		Reason: "resumed by user",
	})
}

// Cancel stops an execution in two phases: the cancelled state is committed
// first, then the background goroutine (if any) is signalled. A queued
// execution simply never starts.
func (s *ExecutionService) Cancel(ctx context.Context, id string, reason string) (*execution.Execution, error) {
	if reason == "" {
		reason = "cancelled by user"
	}
	e, err := s.states.ChangeState(ctx, id, execution.StateCancelled, ChangeOptions{Reason: reason})
	if err != nil {
		return nil, err
	}

	s.tasks.Cancel(id)
	return e, nil
}

// Retry re-queues a failed execution. Result, error and progress are reset;
// the original queued_at is overwritten so queue ordering reflects the
// retry. The caller starts it again explicitly.
func (s *ExecutionService) Retry(ctx context.Context, id string) (*execution.Execution, error) {
	return s.states.ChangeState(ctx, id, execution.StateQueued, ChangeOptions{
		Reason: "retry requested",
	})
}

// UpdateProgress records a progress report for a running or paused execution.
func (s *ExecutionService) UpdateProgress(ctx context.Context, id string, p execution.Progress) (*execution.Execution, error) {
	return s.progress.Update(ctx, id, p)
}

// Progress returns the latest progress snapshot.
func (s *ExecutionService) Progress(ctx context.Context, id string) (*execution.Progress, error) {
	return s.progress.Latest(ctx, id)
}

// Complete finishes a running execution with a result payload. Exposed for
// external workers reporting completion over the API.
func (s *ExecutionService) Complete(ctx context.Context, id string, result json.RawMessage) (*execution.Execution, error) {
	return s.states.ChangeState(ctx, id, execution.StateCompleted, ChangeOptions{
		Reason: "completed by worker",
		Result: result,
	})
}

// Fail marks a running or preparing execution as failed. The error message
// is stored verbatim.
func (s *ExecutionService) Fail(ctx context.Context, id string, errMsg string) (*execution.Execution, error) {
	return s.states.ChangeState(ctx, id, execution.StateFailed, ChangeOptions{
		Reason:       "failed by worker",
		ErrorMessage: errMsg,
	})
}

// Delete removes a terminal execution and its history. Active executions
// must be cancelled first.
func (s *ExecutionService) Delete(ctx context.Context, id string) error {
	e, err := s.store.GetExecution(ctx, id)
	if err != nil {
		return err
	}
	if !e.State.Terminal() {
		return fmt.Errorf("delete execution %s in state %s: %w", id, e.State, domain.ErrInvalidState)
	}
	return s.store.DeleteExecution(ctx, id)
}

// StartSubscribers subscribes to execution requests from the agent service.
// Returns cancel functions for each subscription.
func (s *ExecutionService) StartSubscribers(ctx context.Context) ([]func(), error) {
	var cancels []func()

	cancel, err := s.queue.Subscribe(ctx, messagequeue.SubjectRequested, func(msgCtx context.Context, _ string, data []byte) error {
		var req messagequeue.RequestedPayload
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("unmarshal execution request: %w", err)
		}
		return s.handleRequested(msgCtx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe execution requested: %w", err)
	}
	cancels = append(cancels, cancel)

	return cancels, nil
}

// handleRequested creates and starts an execution for a queued request.
func (s *ExecutionService) handleRequested(ctx context.Context, req messagequeue.RequestedPayload) error {
	e, err := s.Create(ctx, execution.CreateRequest{AgentID: req.AgentID, TaskID: req.TaskID})
	if err != nil {
		// Unknown agents or tasks are a permanent failure; retrying the
		// message would not help.
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
			slog.Warn("dropping unprocessable execution request",
				"agent_id", req.AgentID, "task_id", req.TaskID, "error", err)
			return nil
		}
		return err
	}

	if _, err := s.Start(ctx, e.ID); err != nil {
		return fmt.Errorf("start requested execution %s: %w", e.ID, err)
	}
	return nil
}

func cancelAll(cancels []func()) {
	for _, c := range cancels {
		c()
	}
}

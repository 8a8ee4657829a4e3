package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	adapterotel "github.com/berrys-ai/agents/internal/adapter/otel"
	"github.com/berrys-ai/agents/internal/config"
	"github.com/berrys-ai/agents/internal/domain"
	"github.com/berrys-ai/agents/internal/domain/agent"
	"github.com/berrys-ai/agents/internal/domain/execution"
	"github.com/berrys-ai/agents/internal/domain/task"
	"github.com/berrys-ai/agents/internal/port/database"
	"github.com/berrys-ai/agents/internal/port/inference"
	"github.com/berrys-ai/agents/internal/port/registry"
)

// Runner drives a single execution from preparing to a terminal state: it
// resolves the agent and task, runs inference and writes the outcome.
type Runner struct {
	store     database.Store
	directory registry.Directory
	engine    inference.Engine
	states    *StateManager
	progress  *ProgressTracker
	emitter   *EventEmitter
	cfg       config.Runtime
}

// NewRunner creates a Runner with all dependencies.
func NewRunner(
	store database.Store,
	directory registry.Directory,
	engine inference.Engine,
	states *StateManager,
	progress *ProgressTracker,
	emitter *EventEmitter,
	cfg config.Runtime,
) *Runner {
	return &Runner{
		store:     store,
		directory: directory,
		engine:    engine,
		states:    states,
		progress:  progress,
		emitter:   emitter,
		cfg:       cfg,
	}
}

// executionResult is the stored result payload of a completed execution.
type executionResult struct {
	Output string          `json:"output"`
	Model  string          `json:"model"`
	Usage  inference.Usage `json:"usage"`
}

// Execute runs an execution that is already in the preparing state. It is
// the body of the TaskManager goroutine; ctx is cancelled when the
// execution is cancelled or the process shuts down.
func (r *Runner) Execute(ctx context.Context, id string) {
	e, err := r.store.GetExecution(ctx, id)
	if err != nil {
		slog.Error("load execution", "execution_id", id, "error", err)
		return
	}

	ctx, span := adapterotel.StartExecutionSpan(ctx, e.ID, e.AgentID, e.TaskID)
	defer span.End()

	ag, err := r.directory.GetAgent(ctx, e.AgentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.fail(ctx, id, fmt.Sprintf("agent not found: %s", e.AgentID))
		} else {
			r.fail(ctx, id, fmt.Sprintf("resolve agent %s: %v", e.AgentID, err))
		}
		return
	}

	tk, err := r.directory.GetTask(ctx, e.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.fail(ctx, id, fmt.Sprintf("task not found: %s", e.TaskID))
		} else {
			r.fail(ctx, id, fmt.Sprintf("resolve task %s: %v", e.TaskID, err))
		}
		return
	}

	if _, err := r.states.ChangeState(ctx, id, execution.StateRunning, ChangeOptions{
		Reason: "preparation complete",
	}); err != nil {
		slog.Error("start run", "execution_id", id, "error", err)
		return
	}

	r.report(ctx, id, execution.Progress{
		Percentage: 10,
		Message:    "calling model",
		Current:    "inference",
		Remaining:  []string{"finalize"},
	})

	resp, err := r.infer(ctx, e, ag, tk)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation already wrote the terminal state; nothing to do.
			slog.Info("execution interrupted", "execution_id", id, "cause", context.Cause(ctx))
			return
		}
		r.fail(ctx, id, err.Error())
		return
	}

	r.emitter.TokensUsed(ctx, resp.Model, int64(resp.Usage.TotalTokens))
	r.report(ctx, id, execution.Progress{
		Percentage: 90,
		Message:    "finalizing",
		Completed:  []string{"inference"},
		Current:    "finalize",
	})

	result, err := json.Marshal(executionResult{
		Output: resp.Content,
		Model:  resp.Model,
		Usage:  resp.Usage,
	})
	if err != nil {
		r.fail(ctx, id, fmt.Sprintf("marshal result: %v", err))
		return
	}

	r.finish(ctx, id, result)
}

// infer runs one bounded inference call for the execution.
func (r *Runner) infer(ctx context.Context, e *execution.Execution, ag *agent.Agent, tk *task.Task) (*inference.Response, error) {
	infCtx, cancel := context.WithTimeout(ctx, r.cfg.InferenceTimeout)
	defer cancel()

	infCtx, span := adapterotel.StartInferenceSpan(infCtx, e.ID, ag.Model)
	defer span.End()

	messages := []inference.Message{}
	if ag.SystemPrompt != "" {
		messages = append(messages, inference.Message{Role: "system", Content: ag.SystemPrompt})
	}
	messages = append(messages, inference.Message{Role: "user", Content: tk.Prompt})

	return r.engine.Complete(infCtx, inference.Request{
		Model:     ag.Model,
		Messages:  messages,
		MaxTokens: r.cfg.MaxTokens,
	})
}

// finish writes the completed state. When the execution was paused mid-run
// it waits for a resume (or cancellation) before completing, since paused
// executions may only move to running or cancelled.
func (r *Runner) finish(ctx context.Context, id string, result json.RawMessage) {
	finalCtx := context.WithoutCancel(ctx)

	for {
		_, err := r.states.ChangeState(finalCtx, id, execution.StateCompleted, ChangeOptions{
			Reason: "run finished",
			Result: result,
		})
		if err == nil {
			return
		}
		if !errors.Is(err, domain.ErrInvalidTransition) {
			slog.Error("complete execution", "execution_id", id, "error", err)
			return
		}

		cur, getErr := r.store.GetExecution(finalCtx, id)
		if getErr != nil || cur.State != execution.StatePaused {
			slog.Warn("cannot complete execution", "execution_id", id, "error", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// fail writes the failed state with the error message stored verbatim.
func (r *Runner) fail(ctx context.Context, id, msg string) {
	finalCtx := context.WithoutCancel(ctx)
	if _, err := r.states.ChangeState(finalCtx, id, execution.StateFailed, ChangeOptions{
		Reason:       "run failed",
		ErrorMessage: msg,
	}); err != nil {
		slog.Error("fail execution", "execution_id", id, "cause", msg, "error", err)
	}
}

// report stores a progress update, logging instead of failing the run when
// the update is refused.
func (r *Runner) report(ctx context.Context, id string, p execution.Progress) {
	if _, err := r.progress.Update(ctx, id, p); err != nil {
		slog.Debug("progress update refused", "execution_id", id, "error", err)
	}
}

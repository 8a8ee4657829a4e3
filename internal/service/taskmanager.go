package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/berrys-ai/agents/internal/domain"
)

// taskHandle tracks one background execution goroutine.
type taskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// TaskManager owns the background goroutines that drive executions. It
// guarantees at most one goroutine per execution ID and bounds total
// concurrency with a weighted semaphore.
type TaskManager struct {
	sem     *semaphore.Weighted
	handles sync.Map // map[executionID]*taskHandle
}

// NewTaskManager creates a TaskManager allowing up to maxConcurrent
// simultaneous executions.
func NewTaskManager(maxConcurrent int64) *TaskManager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &TaskManager{
		sem: semaphore.NewWeighted(maxConcurrent),
	}
}

// Launch starts fn in a background goroutine bound to the execution ID.
// Returns domain.ErrConflict if a goroutine for that ID is already tracked.
// Launch never blocks the caller: the goroutine waits for a concurrency
// slot before running fn, and runs detached from any request context so an
// HTTP request finishing does not kill the execution. Cancelling the
// execution while it is still waiting for a slot releases it without
// running fn.
func (tm *TaskManager) Launch(executionID string, fn func(ctx context.Context)) error {
	runCtx, cancel := context.WithCancel(context.Background())
	h := &taskHandle{cancel: cancel, done: make(chan struct{})}

	if _, loaded := tm.handles.LoadOrStore(executionID, h); loaded {
		cancel()
		return fmt.Errorf("execution %s already running: %w", executionID, domain.ErrConflict)
	}

	go func() {
		defer func() {
			tm.handles.Delete(executionID)
			cancel()
			close(h.done)
		}()
		if err := tm.sem.Acquire(runCtx, 1); err != nil {
			slog.Debug("execution cancelled while waiting for slot", "execution_id", executionID)
			return
		}
		defer tm.sem.Release(1)
		fn(runCtx)
	}()

	slog.Debug("execution goroutine launched", "execution_id", executionID)
	return nil
}

// Cancel signals the execution's goroutine to stop. Returns false when no
// goroutine is tracked for the ID, which is normal for queued executions.
func (tm *TaskManager) Cancel(executionID string) bool {
	v, ok := tm.handles.Load(executionID)
	if !ok {
		return false
	}
	v.(*taskHandle).cancel()
	return true
}

// Clear drops the handle for an execution, cancelling its goroutine if one
// is still running. Called when an execution reaches a terminal state.
func (tm *TaskManager) Clear(executionID string) {
	if v, ok := tm.handles.Load(executionID); ok {
		v.(*taskHandle).cancel()
	}
}

// Running reports whether a goroutine is tracked for the execution.
func (tm *TaskManager) Running(executionID string) bool {
	_, ok := tm.handles.Load(executionID)
	return ok
}

// Wait blocks until the execution's goroutine exits or ctx is done.
// Returns immediately when no goroutine is tracked.
func (tm *TaskManager) Wait(ctx context.Context, executionID string) error {
	v, ok := tm.handles.Load(executionID)
	if !ok {
		return nil
	}
	select {
	case <-v.(*taskHandle).done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the number of tracked executions.
func (tm *TaskManager) Count() int {
	n := 0
	tm.handles.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

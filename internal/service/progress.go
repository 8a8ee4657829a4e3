package service

import (
	"context"
	"fmt"

	"github.com/berrys-ai/agents/internal/domain/execution"
	"github.com/berrys-ai/agents/internal/port/database"
)

// ProgressTracker persists progress reports for running executions and fans
// the accepted updates out as events.
type ProgressTracker struct {
	store   database.Store
	emitter *EventEmitter
}

// NewProgressTracker creates a ProgressTracker.
func NewProgressTracker(store database.Store, emitter *EventEmitter) *ProgressTracker {
	return &ProgressTracker{store: store, emitter: emitter}
}

// Update validates and stores a progress report. Reports are rejected, not
// clamped, when the percentage is out of range, and refused entirely unless
// the execution is running or paused.
func (pt *ProgressTracker) Update(ctx context.Context, id string, p execution.Progress) (*execution.Execution, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("progress for %s: %w", id, err)
	}

	updated, err := pt.store.UpdateProgress(ctx, id, p)
	if err != nil {
		return nil, err
	}

	pt.emitter.Progress(ctx, updated, p)
	return updated, nil
}

// Latest returns the current progress snapshot of an execution.
func (pt *ProgressTracker) Latest(ctx context.Context, id string) (*execution.Progress, error) {
	e, err := pt.store.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}

	p := &execution.Progress{
		Percentage: e.Progress,
		Message:    e.StatusMessage,
	}
	if e.Steps != nil {
		p.Completed = e.Steps.Completed
		p.Current = e.Steps.Current
		p.Remaining = e.Steps.Remaining
	}
	return p, nil
}

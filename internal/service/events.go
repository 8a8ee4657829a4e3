package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	adapterotel "github.com/berrys-ai/agents/internal/adapter/otel"
	"github.com/berrys-ai/agents/internal/adapter/ws"
	"github.com/berrys-ai/agents/internal/domain/execution"
	"github.com/berrys-ai/agents/internal/port/broadcast"
	"github.com/berrys-ai/agents/internal/port/messagequeue"
)

// EventEmitter fans out execution lifecycle events to NATS, the WebSocket
// hub and the metric instruments. Emission is best-effort: a failed publish
// is logged and never fails the state change that triggered it.
type EventEmitter struct {
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	metrics *adapterotel.Metrics
}

// NewEventEmitter creates an EventEmitter. hub and metrics may be nil.
func NewEventEmitter(queue messagequeue.Queue, hub broadcast.Broadcaster, metrics *adapterotel.Metrics) *EventEmitter {
	return &EventEmitter{queue: queue, hub: hub, metrics: metrics}
}

// StateChanged emits the transition event for an accepted state change.
func (em *EventEmitter) StateChanged(ctx context.Context, e *execution.Execution, from execution.State, reason string) {
	em.publishJSON(ctx, messagequeue.SubjectStateChanged, messagequeue.StateChangedPayload{
		ExecutionID:   e.ID,
		AgentID:       e.AgentID,
		TaskID:        e.TaskID,
		PreviousState: string(from),
		NewState:      string(e.State),
		Reason:        reason,
	})

	if em.hub != nil {
		em.hub.BroadcastEvent(ctx, ws.EventExecutionState, ws.ExecutionStateEvent{
			ExecutionID:   e.ID,
			AgentID:       e.AgentID,
			TaskID:        e.TaskID,
			PreviousState: string(from),
			NewState:      string(e.State),
			Reason:        reason,
		})
	}

	em.count(ctx, e)
}

// Progress emits the progress event for an accepted progress update.
func (em *EventEmitter) Progress(ctx context.Context, e *execution.Execution, p execution.Progress) {
	em.publishJSON(ctx, messagequeue.SubjectProgress, messagequeue.ProgressPayload{
		ExecutionID: e.ID,
		Percentage:  p.Percentage,
		Message:     p.Message,
		Completed:   p.Completed,
		Current:     p.Current,
		Remaining:   p.Remaining,
	})

	if em.hub != nil {
		em.hub.BroadcastEvent(ctx, ws.EventExecutionProgress, ws.ExecutionProgressEvent{
			ExecutionID: e.ID,
			Percentage:  p.Percentage,
			Message:     p.Message,
			CurrentStep: p.Current,
		})
	}
}

// Completed emits the terminal event once an execution finishes.
func (em *EventEmitter) Completed(ctx context.Context, e *execution.Execution) {
	var result any
	if len(e.Result) > 0 {
		result = json.RawMessage(e.Result)
	}
	em.publishJSON(ctx, messagequeue.SubjectCompleted, messagequeue.CompletedPayload{
		ExecutionID: e.ID,
		AgentID:     e.AgentID,
		TaskID:      e.TaskID,
		State:       string(e.State),
		Result:      result,
		Error:       e.ErrorMessage,
	})

	if em.hub != nil {
		em.hub.BroadcastEvent(ctx, ws.EventExecutionDone, ws.ExecutionDoneEvent{
			ExecutionID: e.ID,
			AgentID:     e.AgentID,
			TaskID:      e.TaskID,
			State:       string(e.State),
			Error:       e.ErrorMessage,
		})
	}

	if em.metrics != nil && e.StartedAt != nil && e.CompletedAt != nil {
		em.metrics.ExecutionDuration.Record(ctx,
			e.CompletedAt.Sub(*e.StartedAt).Seconds(),
			metric.WithAttributes(attribute.String("state", string(e.State))))
	}
}

// Conflict records an optimistic concurrency conflict.
func (em *EventEmitter) Conflict(ctx context.Context, executionID string) {
	if em.metrics != nil {
		em.metrics.StateConflicts.Add(ctx, 1,
			metric.WithAttributes(attribute.String("execution.id", executionID)))
	}
}

// TokensUsed records inference token usage for an execution.
func (em *EventEmitter) TokensUsed(ctx context.Context, model string, tokens int64) {
	if em.metrics != nil {
		em.metrics.TokensUsed.Add(ctx, tokens,
			metric.WithAttributes(attribute.String("model", model)))
	}
}

func (em *EventEmitter) count(ctx context.Context, e *execution.Execution) {
	if em.metrics == nil {
		return
	}
	switch e.State {
	case execution.StateRunning:
		em.metrics.ExecutionsStarted.Add(ctx, 1)
	case execution.StateCompleted:
		em.metrics.ExecutionsCompleted.Add(ctx, 1)
	case execution.StateFailed:
		em.metrics.ExecutionsFailed.Add(ctx, 1)
	case execution.StateCancelled:
		em.metrics.ExecutionsCancelled.Add(ctx, 1)
	}
}

func (em *EventEmitter) publishJSON(ctx context.Context, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event payload", "subject", subject, "error", err)
		return
	}

	// Bound the publish so a wedged broker cannot stall a state change.
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := em.queue.Publish(pubCtx, subject, data); err != nil {
		slog.Error("publish event", "subject", subject, "error", err)
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/berrys-ai/agents/internal/domain/execution"
	"github.com/berrys-ai/agents/internal/port/messagequeue"
)

func TestEmitterStateChanged(t *testing.T) {
	queue := &mockQueue{}
	em := NewEventEmitter(queue, nil, nil)

	em.StateChanged(context.Background(), &execution.Execution{
		ID: "x1", AgentID: "agent-1", TaskID: "task-1", State: execution.StateRunning,
	}, execution.StatePreparing, "preparation complete")

	if len(queue.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(queue.published))
	}
	var payload messagequeue.StateChangedPayload
	if err := json.Unmarshal(queue.published[0].data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.PreviousState != "preparing" || payload.NewState != "running" {
		t.Errorf("payload records %s->%s", payload.PreviousState, payload.NewState)
	}
	if payload.Reason != "preparation complete" {
		t.Errorf("reason = %q", payload.Reason)
	}
}

func TestEmitterCompletedPayload(t *testing.T) {
	queue := &mockQueue{}
	em := NewEventEmitter(queue, nil, nil)
	started := time.Now().Add(-time.Minute).UTC()
	finished := time.Now().UTC()

	em.Completed(context.Background(), &execution.Execution{
		ID: "x1", AgentID: "agent-1", TaskID: "task-1",
		State:       execution.StateCompleted,
		Result:      json.RawMessage(`{"output":"ok"}`),
		StartedAt:   &started,
		CompletedAt: &finished,
	})

	var payload messagequeue.CompletedPayload
	if err := json.Unmarshal(queue.published[0].data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.State != "completed" {
		t.Errorf("state = %q", payload.State)
	}
	if payload.Result == nil {
		t.Error("expected result in payload")
	}
	if payload.Error != "" {
		t.Errorf("error must be empty on success, got %q", payload.Error)
	}
}

func TestEmitterCompletedFailure(t *testing.T) {
	queue := &mockQueue{}
	em := NewEventEmitter(queue, nil, nil)

	em.Completed(context.Background(), &execution.Execution{
		ID: "x1", AgentID: "agent-1", TaskID: "task-1",
		State:        execution.StateFailed,
		ErrorMessage: "model unavailable",
	})

	var payload messagequeue.CompletedPayload
	if err := json.Unmarshal(queue.published[0].data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Result != nil {
		t.Errorf("result must be absent on failure, got %v", payload.Result)
	}
	if payload.Error != "model unavailable" {
		t.Errorf("error = %q", payload.Error)
	}
}

func TestEmitterPublishFailureIsSwallowed(t *testing.T) {
	queue := &mockQueue{publishErr: errors.New("broker down")}
	em := NewEventEmitter(queue, nil, nil)

	// Must not panic or propagate.
	em.StateChanged(context.Background(), &execution.Execution{
		ID: "x1", State: execution.StateRunning,
	}, execution.StatePreparing, "")
	em.Progress(context.Background(), &execution.Execution{ID: "x1"}, execution.Progress{Percentage: 10})
	em.Completed(context.Background(), &execution.Execution{ID: "x1", State: execution.StateCompleted})
}

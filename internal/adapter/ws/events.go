package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventExecutionState    = "execution.state"
	EventExecutionProgress = "execution.progress"
	EventExecutionDone     = "execution.done"
)

// ExecutionStateEvent is broadcast when an execution changes state.
type ExecutionStateEvent struct {
	ExecutionID   string `json:"execution_id"`
	AgentID       string `json:"agent_id"`
	TaskID        string `json:"task_id"`
	PreviousState string `json:"previous_state"`
	NewState      string `json:"new_state"`
	Reason        string `json:"reason,omitempty"`
}

// ExecutionProgressEvent is broadcast when an execution reports progress.
type ExecutionProgressEvent struct {
	ExecutionID string `json:"execution_id"`
	Percentage  int    `json:"percentage"`
	Message     string `json:"message,omitempty"`
	CurrentStep string `json:"current_step,omitempty"`
}

// ExecutionDoneEvent is broadcast once an execution reaches a terminal state.
type ExecutionDoneEvent struct {
	ExecutionID string `json:"execution_id"`
	AgentID     string `json:"agent_id"`
	TaskID      string `json:"task_id"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

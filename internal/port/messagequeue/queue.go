// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for the execution event contract. Consumers must treat
// these as at-least-once, unordered across executions, and reconcile against
// GetExecution when strict consistency is required.
const (
	SubjectStateChanged = "execution.state_changed"
	SubjectProgress     = "execution.progress"
	SubjectCompleted    = "execution.completed"

	// SubjectRequested carries start requests from the Agent service.
	SubjectRequested = "execution.requested"
)

// StateChangedPayload is published on every accepted transition.
type StateChangedPayload struct {
	ExecutionID   string `json:"execution_id"`
	AgentID       string `json:"agent_id"`
	TaskID        string `json:"task_id"`
	PreviousState string `json:"previous_state"`
	NewState      string `json:"new_state"`
	Reason        string `json:"reason,omitempty"`
}

// ProgressPayload is published on every accepted progress update.
type ProgressPayload struct {
	ExecutionID string   `json:"execution_id"`
	Percentage  int      `json:"percentage"`
	Message     string   `json:"message,omitempty"`
	Completed   []string `json:"completed_steps,omitempty"`
	Current     string   `json:"current_step,omitempty"`
	Remaining   []string `json:"remaining_steps,omitempty"`
}

// CompletedPayload is published once when an execution reaches a terminal
// state. Result and Error are mutually exclusive.
type CompletedPayload struct {
	ExecutionID string `json:"execution_id"`
	AgentID     string `json:"agent_id"`
	TaskID      string `json:"task_id"`
	State       string `json:"state"`
	Result      any    `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RequestedPayload is consumed from the Agent service to start an execution.
type RequestedPayload struct {
	AgentID string `json:"agent_id"`
	TaskID  string `json:"task_id"`
}

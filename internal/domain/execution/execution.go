// Package execution defines the Execution domain entity: one agent's attempt
// to perform one task, tracked through a finite lifecycle.
package execution

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/berrys-ai/agents/internal/domain"
)

// Execution represents a single attempt by one agent to perform one task.
// State is mutated exclusively through the state manager; all writes go
// through the repository's conditioned update.
type Execution struct {
	ID            string          `json:"id"`
	AgentID       string          `json:"agent_id"`
	TaskID        string          `json:"task_id"`
	State         State           `json:"state"`
	Progress      int             `json:"progress_percentage"`
	StatusMessage string          `json:"status_message,omitempty"`
	Steps         *Steps          `json:"steps,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Version       int             `json:"version"`
	QueuedAt      time.Time       `json:"queued_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Steps tracks the work plan position reported by the runner.
type Steps struct {
	Completed []string `json:"completed,omitempty"`
	Current   string   `json:"current,omitempty"`
	Remaining []string `json:"remaining,omitempty"`
}

// HistoryEntry is an immutable audit record of one accepted transition.
// Entries are append-only and written in the same transactional unit as the
// state change they describe.
type HistoryEntry struct {
	ID            string    `json:"id"`
	ExecutionID   string    `json:"execution_id"`
	PreviousState State     `json:"previous_state"`
	NewState      State     `json:"new_state"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Progress is a transient progress report applied while the execution is
// running or paused. It never changes state.
type Progress struct {
	Percentage int      `json:"percentage"`
	Message    string   `json:"message,omitempty"`
	Completed  []string `json:"completed_steps,omitempty"`
	Current    string   `json:"current_step,omitempty"`
	Remaining  []string `json:"remaining_steps,omitempty"`
}

// Validate checks progress bounds. Out-of-range percentages are rejected,
// never clamped.
func (p *Progress) Validate() error {
	if p.Percentage < 0 || p.Percentage > 100 {
		return fmt.Errorf("percentage %d out of range [0,100]: %w", p.Percentage, domain.ErrValidation)
	}
	return nil
}

// CreateRequest holds the fields needed to create a new execution.
type CreateRequest struct {
	AgentID string `json:"agent_id"`
	TaskID  string `json:"task_id"`
}

// Validate checks that a CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.AgentID == "" {
		return fmt.Errorf("agent_id is required: %w", domain.ErrValidation)
	}
	if r.TaskID == "" {
		return fmt.Errorf("task_id is required: %w", domain.ErrValidation)
	}
	return nil
}

// Validate checks entity-level invariants. Result and ErrorMessage are
// mutually exclusive, and either may be set only in a terminal state.
func (e *Execution) Validate() error {
	if e.AgentID == "" {
		return fmt.Errorf("agent_id is required")
	}
	if e.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if e.State != "" && !validStates[e.State] {
		return fmt.Errorf("invalid state %q", e.State)
	}
	if e.Progress < 0 || e.Progress > 100 {
		return fmt.Errorf("progress_percentage must be within [0,100]")
	}
	if len(e.Result) > 0 && e.ErrorMessage != "" {
		return fmt.Errorf("result and error_message are mutually exclusive")
	}
	if (len(e.Result) > 0 || e.ErrorMessage != "") && !e.State.Terminal() {
		return fmt.Errorf("result/error_message only valid in a terminal state")
	}
	return nil
}

// ListFilter narrows ListExecutions results. Empty fields are ignored;
// set fields are conjunctive.
type ListFilter struct {
	AgentID string `json:"agent_id,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
	State   State  `json:"state,omitempty"`
}

package execution_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/berrys-ai/agents/internal/domain"
	"github.com/berrys-ai/agents/internal/domain/execution"
)

func TestExecutionValidate_Valid(t *testing.T) {
	e := &execution.Execution{
		AgentID: "agent-1",
		TaskID:  "task-1",
		State:   execution.StateRunning,
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("expected valid, got: %v", err)
	}
}

func TestExecutionValidate_MissingAgentID(t *testing.T) {
	e := &execution.Execution{TaskID: "t"}
	if err := e.Validate(); err == nil {
		t.Fatal("expected error for missing agent_id")
	}
}

func TestExecutionValidate_MissingTaskID(t *testing.T) {
	e := &execution.Execution{AgentID: "a"}
	if err := e.Validate(); err == nil {
		t.Fatal("expected error for missing task_id")
	}
}

func TestExecutionValidate_InvalidState(t *testing.T) {
	e := &execution.Execution{AgentID: "a", TaskID: "t", State: "exploded"}
	if err := e.Validate(); err == nil {
		t.Fatal("expected error for invalid state")
	}
}

func TestExecutionValidate_ResultErrorExclusive(t *testing.T) {
	e := &execution.Execution{
		AgentID:      "a",
		TaskID:       "t",
		State:        execution.StateFailed,
		Result:       json.RawMessage(`{"output":"x"}`),
		ErrorMessage: "boom",
	}
	if err := e.Validate(); err == nil {
		t.Fatal("expected error for result+error_message both set")
	}
}

func TestExecutionValidate_ResultOnlyTerminal(t *testing.T) {
	e := &execution.Execution{
		AgentID: "a",
		TaskID:  "t",
		State:   execution.StateRunning,
		Result:  json.RawMessage(`{"output":"x"}`),
	}
	if err := e.Validate(); err == nil {
		t.Fatal("expected error for result in non-terminal state")
	}

	e.State = execution.StateCompleted
	if err := e.Validate(); err != nil {
		t.Fatalf("result in completed state should be valid, got: %v", err)
	}
}

func TestExecutionValidate_ProgressBounds(t *testing.T) {
	e := &execution.Execution{AgentID: "a", TaskID: "t", Progress: 101}
	if err := e.Validate(); err == nil {
		t.Fatal("expected error for progress > 100")
	}
	e.Progress = -1
	if err := e.Validate(); err == nil {
		t.Fatal("expected error for negative progress")
	}
}

func TestProgressValidate(t *testing.T) {
	tests := []struct {
		name       string
		percentage int
		wantErr    bool
	}{
		{"zero", 0, false},
		{"halfway", 50, false},
		{"full", 100, false},
		{"negative", -1, true},
		{"over", 101, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &execution.Progress{Percentage: tc.percentage}
			err := p.Validate()
			if tc.wantErr && !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  execution.CreateRequest
		ok   bool
	}{
		{"valid", execution.CreateRequest{AgentID: "a", TaskID: "t"}, true},
		{"missing agent_id", execution.CreateRequest{TaskID: "t"}, false},
		{"missing task_id", execution.CreateRequest{AgentID: "a"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

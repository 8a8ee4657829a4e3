package service

import (
	"context"
	"errors"
	"testing"

	"github.com/berrys-ai/agents/internal/domain"
	"github.com/berrys-ai/agents/internal/domain/execution"
	"github.com/berrys-ai/agents/internal/port/messagequeue"
)

func TestProgressUpdate(t *testing.T) {
	st := newTestStack()
	st.store.seed(&execution.Execution{ID: "x1", AgentID: "agent-1", TaskID: "task-1", State: execution.StateRunning})

	e, err := st.svc.UpdateProgress(context.Background(), "x1", execution.Progress{
		Percentage: 55,
		Message:    "halfway",
		Completed:  []string{"fetch"},
		Current:    "analyze",
		Remaining:  []string{"summarize"},
	})
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if e.Progress != 55 {
		t.Errorf("progress = %d, want 55", e.Progress)
	}
	if e.StatusMessage != "halfway" {
		t.Errorf("status message = %q", e.StatusMessage)
	}
	if e.Steps == nil || e.Steps.Current != "analyze" {
		t.Errorf("steps = %+v, want current step analyze", e.Steps)
	}
	if e.State != execution.StateRunning {
		t.Errorf("progress update changed state to %s", e.State)
	}

	subjects := st.queue.subjects()
	if len(subjects) != 1 || subjects[0] != messagequeue.SubjectProgress {
		t.Errorf("published subjects = %v, want [%s]", subjects, messagequeue.SubjectProgress)
	}
}

func TestProgressUpdateOutOfRange(t *testing.T) {
	st := newTestStack()
	st.store.seed(&execution.Execution{ID: "x1", AgentID: "agent-1", TaskID: "task-1", State: execution.StateRunning, Progress: 30})

	for _, pct := range []int{-1, 101} {
		_, err := st.svc.UpdateProgress(context.Background(), "x1", execution.Progress{Percentage: pct})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("percentage %d: expected ErrValidation, got %v", pct, err)
		}
	}

	// Rejected reports leave the row untouched.
	e, _ := st.store.GetExecution(context.Background(), "x1")
	if e.Progress != 30 {
		t.Errorf("progress = %d, want unchanged 30", e.Progress)
	}
	if len(st.queue.subjects()) != 0 {
		t.Errorf("rejected update must not publish, got %v", st.queue.subjects())
	}
}

func TestProgressUpdateWrongState(t *testing.T) {
	st := newTestStack()
	st.store.seed(&execution.Execution{ID: "x1", AgentID: "agent-1", TaskID: "task-1", State: execution.StateQueued})

	_, err := st.svc.UpdateProgress(context.Background(), "x1", execution.Progress{Percentage: 10})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestProgressUpdateWhilePaused(t *testing.T) {
	st := newTestStack()
	st.store.seed(&execution.Execution{ID: "x1", AgentID: "agent-1", TaskID: "task-1", State: execution.StatePaused})

	if _, err := st.svc.UpdateProgress(context.Background(), "x1", execution.Progress{Percentage: 70}); err != nil {
		t.Fatalf("paused executions accept progress, got %v", err)
	}
}

func TestProgressUpdateNotFound(t *testing.T) {
	st := newTestStack()

	_, err := st.svc.UpdateProgress(context.Background(), "missing", execution.Progress{Percentage: 10})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProgressLatest(t *testing.T) {
	st := newTestStack()
	st.store.seed(&execution.Execution{
		ID: "x1", AgentID: "agent-1", TaskID: "task-1", State: execution.StateRunning,
		Progress: 80, StatusMessage: "nearly there",
		Steps: &execution.Steps{Completed: []string{"fetch", "analyze"}, Current: "summarize"},
	})

	p, err := st.svc.Progress(context.Background(), "x1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.Percentage != 80 || p.Message != "nearly there" {
		t.Errorf("snapshot = %+v", p)
	}
	if p.Current != "summarize" || len(p.Completed) != 2 {
		t.Errorf("steps not reflected in snapshot: %+v", p)
	}
}

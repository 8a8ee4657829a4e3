package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/berrys-ai/agents/internal/domain"
	"github.com/berrys-ai/agents/internal/domain/agent"
	"github.com/berrys-ai/agents/internal/domain/execution"
	"github.com/berrys-ai/agents/internal/domain/task"
	"github.com/berrys-ai/agents/internal/port/database"
	"github.com/berrys-ai/agents/internal/port/inference"
	"github.com/berrys-ai/agents/internal/port/messagequeue"
)

// mockStore implements database.Store in memory with the same conditioned
// write semantics as the postgres adapter.
type mockStore struct {
	mu      sync.Mutex
	execs   map[string]*execution.Execution
	history []execution.HistoryEntry

	// conflicts makes the next N UpdateState calls lose the race.
	conflicts int
}

func newMockStore() *mockStore {
	return &mockStore{execs: map[string]*execution.Execution{}}
}

func (m *mockStore) seed(e *execution.Execution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	if cp.Version == 0 {
		cp.Version = 1
	}
	m.execs[e.ID] = &cp
}

func (m *mockStore) GetExecution(_ context.Context, id string) (*execution.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.execs[id]
	if !ok {
		return nil, fmt.Errorf("get execution %s: %w", id, domain.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (m *mockStore) ListExecutions(_ context.Context, filter execution.ListFilter, page, pageSize int) ([]execution.Execution, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []execution.Execution
	for _, e := range m.execs {
		if filter.AgentID != "" && e.AgentID != filter.AgentID {
			continue
		}
		if filter.TaskID != "" && e.TaskID != filter.TaskID {
			continue
		}
		if filter.State != "" && e.State != filter.State {
			continue
		}
		all = append(all, *e)
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > database.MaxPageSize {
		pageSize = database.MaxPageSize
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, len(all), nil
	}
	end := min(start+pageSize, len(all))
	return all[start:end], len(all), nil
}

func (m *mockStore) CreateExecution(_ context.Context, e *execution.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	e.Version = 1
	e.QueuedAt = now
	e.CreatedAt = now
	e.UpdatedAt = now
	cp := *e
	m.execs[e.ID] = &cp
	return nil
}

func (m *mockStore) UpdateState(_ context.Context, id string, ch database.StateChange) (*execution.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.execs[id]
	if !ok {
		return nil, fmt.Errorf("update state %s: %w", id, domain.ErrNotFound)
	}
	if m.conflicts > 0 {
		m.conflicts--
		return nil, fmt.Errorf("update state %s: %w", id, domain.ErrConflict)
	}
	if e.State != ch.From {
		return nil, fmt.Errorf("update state %s: %w", id, domain.ErrConflict)
	}

	e.State = ch.To
	e.Version++
	e.UpdatedAt = time.Now().UTC()
	if ch.StartedAt != nil && e.StartedAt == nil {
		e.StartedAt = ch.StartedAt
	}
	if ch.QueuedAt != nil {
		e.QueuedAt = *ch.QueuedAt
	}
	if ch.ResetForRetry {
		e.CompletedAt = nil
		e.Result = nil
		e.ErrorMessage = ""
		e.Progress = 0
		e.StatusMessage = ""
		e.Steps = nil
	} else {
		if ch.CompletedAt != nil && e.CompletedAt == nil {
			e.CompletedAt = ch.CompletedAt
		}
		if ch.Result != nil {
			e.Result = ch.Result
		}
		if ch.ErrorMessage != "" {
			e.ErrorMessage = ch.ErrorMessage
		}
	}

	m.history = append(m.history, execution.HistoryEntry{
		ID:            fmt.Sprintf("h-%d", len(m.history)+1),
		ExecutionID:   id,
		PreviousState: ch.From,
		NewState:      ch.To,
		Reason:        ch.Reason,
		CreatedAt:     time.Now().UTC(),
	})

	cp := *e
	return &cp, nil
}

func (m *mockStore) UpdateProgress(_ context.Context, id string, p execution.Progress) (*execution.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.execs[id]
	if !ok {
		return nil, fmt.Errorf("update progress %s: %w", id, domain.ErrNotFound)
	}
	if e.State != execution.StateRunning && e.State != execution.StatePaused {
		return nil, fmt.Errorf("update progress %s: %w", id, domain.ErrInvalidState)
	}

	e.Progress = p.Percentage
	e.StatusMessage = p.Message
	if p.Completed != nil || p.Current != "" || p.Remaining != nil {
		e.Steps = &execution.Steps{Completed: p.Completed, Current: p.Current, Remaining: p.Remaining}
	}
	e.Version++
	cp := *e
	return &cp, nil
}

func (m *mockStore) CreateStateHistory(_ context.Context, entry *execution.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = fmt.Sprintf("h-%d", len(m.history)+1)
	entry.CreatedAt = time.Now().UTC()
	m.history = append(m.history, *entry)
	return nil
}

func (m *mockStore) GetStateHistory(_ context.Context, executionID string, limit int) ([]execution.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []execution.HistoryEntry
	for i := len(m.history) - 1; i >= 0 && len(entries) < limit; i-- {
		if m.history[i].ExecutionID == executionID {
			entries = append(entries, m.history[i])
		}
	}
	return entries, nil
}

func (m *mockStore) DeleteExecution(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.execs[id]; !ok {
		return fmt.Errorf("delete execution %s: %w", id, domain.ErrNotFound)
	}
	delete(m.execs, id)
	return nil
}

// historyFor returns the recorded transitions for an execution, oldest first.
func (m *mockStore) historyFor(id string) []execution.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []execution.HistoryEntry
	for _, h := range m.history {
		if h.ExecutionID == id {
			entries = append(entries, h)
		}
	}
	return entries
}

// mockQueue implements messagequeue.Queue for testing.
type mockQueue struct {
	mu        sync.Mutex
	published []struct {
		subject string
		data    []byte
	}
	publishErr error
	handlers   map[string]messagequeue.Handler
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, struct {
		subject string
		data    []byte
	}{subject, data})
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = map[string]messagequeue.Handler{}
	}
	q.handlers[subject] = h
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

// subjects returns the published subjects in order.
func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.published))
	for i, p := range q.published {
		out[i] = p.subject
	}
	return out
}

// mockDirectory implements registry.Directory for testing.
type mockDirectory struct {
	agents map[string]*agent.Agent
	tasks  map[string]*task.Task
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		agents: map[string]*agent.Agent{
			"agent-1": {ID: "agent-1", Name: "researcher", Model: "openai/gpt-4o-mini"},
		},
		tasks: map[string]*task.Task{
			"task-1": {ID: "task-1", Title: "summarize", Prompt: "summarize the report"},
		},
	}
}

func (d *mockDirectory) GetAgent(_ context.Context, id string) (*agent.Agent, error) {
	a, ok := d.agents[id]
	if !ok {
		return nil, fmt.Errorf("get agent %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

func (d *mockDirectory) GetTask(_ context.Context, id string) (*task.Task, error) {
	t, ok := d.tasks[id]
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

// mockEngine implements inference.Engine for testing.
type mockEngine struct {
	resp  *inference.Response
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (e *mockEngine) Complete(ctx context.Context, _ inference.Request) (*inference.Response, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.delay):
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	if e.resp != nil {
		return e.resp, nil
	}
	return &inference.Response{
		Content: "done",
		Model:   "openai/gpt-4o-mini",
		Usage:   inference.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (e *mockEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Package registry defines the port for looking up agents and tasks owned by
// upstream services. Executions only hold their IDs; the entities themselves
// are fetched on demand.
package registry

import (
	"context"

	"github.com/berrys-ai/agents/internal/domain/agent"
	"github.com/berrys-ai/agents/internal/domain/task"
)

// Directory resolves agent and task IDs to their read models.
// Implementations return domain.ErrNotFound for unknown IDs.
type Directory interface {
	GetAgent(ctx context.Context, id string) (*agent.Agent, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
}

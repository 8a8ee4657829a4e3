// Package agent defines the Agent entity as consumed from the Agent service.
// Agents are owned by that service; this core only reads them.
package agent

import "time"

// Status represents the current availability of an agent.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusOffline Status = "offline"
)

// Agent is the read model for an agent as returned by the Agent service.
type Agent struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Model        string            `json:"model"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Config       map[string]string `json:"config,omitempty"`
	Status       Status            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

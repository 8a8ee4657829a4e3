// Package task defines the Task entity as consumed from the project
// coordinator. Tasks are owned by that service; this core only reads them.
package task

import "time"

// Task is the read model for a unit of work an agent executes against.
type Task struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Prompt      string    `json:"prompt"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

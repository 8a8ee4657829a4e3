// Package inference defines the port for the model inference backend that
// performs the actual agent work during an execution.
package inference

import "context"

// Message is a single chat message sent to the inference backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one inference call on behalf of an execution.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Usage reports token accounting for a completed inference call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of a successful inference call.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// Engine is the port interface for running inference. Implementations must
// honor context cancellation so a cancelled execution stops promptly.
type Engine interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

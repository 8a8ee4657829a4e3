// Package agentapi implements the registry port against the upstream agent
// and task services, with an in-process cache in front of the HTTP calls.
package agentapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/berrys-ai/agents/internal/domain"
	"github.com/berrys-ai/agents/internal/domain/agent"
	"github.com/berrys-ai/agents/internal/domain/task"
	"github.com/berrys-ai/agents/internal/port/cache"
	"github.com/berrys-ai/agents/internal/resilience"
)

// Client resolves agents and tasks from their owning services.
type Client struct {
	agentURL   string
	taskURL    string
	httpClient *http.Client
	cache      cache.Cache
	cacheTTL   time.Duration
	breaker    *resilience.Breaker
}

// NewClient creates a directory client. cache may be nil to disable caching.
func NewClient(agentURL, taskURL string, c cache.Cache, cacheTTL time.Duration) *Client {
	return &Client{
		agentURL: agentURL,
		taskURL:  taskURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache:    c,
		cacheTTL: cacheTTL,
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// GetAgent returns the agent with the given ID, or domain.ErrNotFound.
func (c *Client) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	var a agent.Agent
	if err := c.fetch(ctx, "agent:"+id, c.agentURL+"/api/agents/"+id, &a); err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return &a, nil
}

// GetTask returns the task with the given ID, or domain.ErrNotFound.
func (c *Client) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var tk task.Task
	if err := c.fetch(ctx, "task:"+id, c.taskURL+"/api/tasks/"+id, &tk); err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return &tk, nil
}

// fetch resolves a cached JSON entity, falling back to the HTTP service.
// Only successful lookups are cached; not-found is never cached so a newly
// registered agent becomes visible immediately.
func (c *Client) fetch(ctx context.Context, cacheKey, url string, dst any) error {
	if c.cache != nil {
		if data, ok, err := c.cache.Get(ctx, cacheKey); err == nil && ok {
			return json.Unmarshal(data, dst)
		}
	}

	data, err := c.doRequest(ctx, url)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", url, err)
	}

	if c.cache != nil {
		_ = c.cache.Set(ctx, cacheKey, data, c.cacheTTL)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	var (
		result   []byte
		notFound bool
	)
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusNotFound {
			// A 404 is a definitive answer from a healthy registry, not a
			// service failure. Reporting it outside the callback keeps it
			// from counting toward opening the breaker.
			notFound = true
			return nil
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("registry API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
	} else if err := call(); err != nil {
		return nil, err
	}

	if notFound {
		return nil, domain.ErrNotFound
	}
	return result, nil
}

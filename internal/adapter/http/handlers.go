package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/berrys-ai/agents/internal/adapter/litellm"
	"github.com/berrys-ai/agents/internal/domain/execution"
	"github.com/berrys-ai/agents/internal/port/messagequeue"
	"github.com/berrys-ai/agents/internal/service"
)

// Pinger is the slice of the database pool the health endpoint needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Executions *service.ExecutionService
	LiteLLM    *litellm.Client
	Queue      messagequeue.Queue
	DB         Pinger
}

// CreateExecution handles POST /executions.
func (h *Handlers) CreateExecution(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[execution.CreateRequest](w, r)
	if !ok {
		return
	}

	e, err := h.Executions.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "agent or task not found")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// GetExecution handles GET /executions/{id}.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	e, err := h.Executions.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// listResponse is the paginated envelope for execution listings.
type listResponse struct {
	Executions []execution.Execution `json:"executions"`
	Total      int                   `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
}

// ListExecutions handles GET /executions with optional agent_id, task_id and
// state filters plus page/page_size pagination.
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := execution.ListFilter{
		AgentID: r.URL.Query().Get("agent_id"),
		TaskID:  r.URL.Query().Get("task_id"),
		State:   execution.State(r.URL.Query().Get("state")),
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	execs, total, err := h.Executions.List(r.Context(), filter, page, pageSize)
	if err != nil {
		writeDomainError(w, err, "executions not found")
		return
	}
	if execs == nil {
		execs = []execution.Execution{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Executions: execs,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
	})
}

// DeleteExecution handles DELETE /executions/{id}.
func (h *Handlers) DeleteExecution(w http.ResponseWriter, r *http.Request) {
	if err := h.Executions.Delete(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHistory handles GET /executions/{id}/history.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Executions.History(r.Context(), urlParam(r, "id"), queryInt(r, "limit", 0))
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	if entries == nil {
		entries = []execution.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// StartExecution handles POST /executions/{id}/start.
func (h *Handlers) StartExecution(w http.ResponseWriter, r *http.Request) {
	e, err := h.Executions.Start(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// reasonRequest is the optional body of pause and cancel requests.
type reasonRequest struct {
	Reason string `json:"reason"`
}

// PauseExecution handles POST /executions/{id}/pause.
func (h *Handlers) PauseExecution(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if r.ContentLength > 0 {
		var ok bool
		if req, ok = readJSON[reasonRequest](w, r); !ok {
			return
		}
	}

	e, err := h.Executions.Pause(r.Context(), urlParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// ResumeExecution handles POST /executions/{id}/resume.
func (h *Handlers) ResumeExecution(w http.ResponseWriter, r *http.Request) {
	e, err := h.Executions.Resume(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// CancelExecution handles POST /executions/{id}/cancel.
func (h *Handlers) CancelExecution(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if r.ContentLength > 0 {
		var ok bool
		if req, ok = readJSON[reasonRequest](w, r); !ok {
			return
		}
	}

	e, err := h.Executions.Cancel(r.Context(), urlParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// RetryExecution handles POST /executions/{id}/retry.
func (h *Handlers) RetryExecution(w http.ResponseWriter, r *http.Request) {
	e, err := h.Executions.Retry(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GetProgress handles GET /executions/{id}/progress.
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.Executions.Progress(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PostProgress handles POST /executions/{id}/progress, used by workers
// reporting over HTTP instead of the queue.
func (h *Handlers) PostProgress(w http.ResponseWriter, r *http.Request) {
	p, ok := readJSON[execution.Progress](w, r)
	if !ok {
		return
	}

	e, err := h.Executions.UpdateProgress(r.Context(), urlParam(r, "id"), p)
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// completeRequest is the body of a worker-reported completion.
type completeRequest struct {
	Result json.RawMessage `json:"result"`
}

// CompleteExecution handles POST /executions/{id}/complete.
func (h *Handlers) CompleteExecution(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[completeRequest](w, r)
	if !ok {
		return
	}

	e, err := h.Executions.Complete(r.Context(), urlParam(r, "id"), req.Result)
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// failRequest is the body of a worker-reported failure.
type failRequest struct {
	Error string `json:"error"`
}

// FailExecution handles POST /executions/{id}/fail.
func (h *Handlers) FailExecution(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[failRequest](w, r)
	if !ok {
		return
	}
	if req.Error == "" {
		writeError(w, http.StatusBadRequest, "error is required")
		return
	}

	e, err := h.Executions.Fail(r.Context(), urlParam(r, "id"), req.Error)
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// healthStatus is the health endpoint response.
type healthStatus struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres"`
	NATS     string `json:"nats"`
	LiteLLM  string `json:"litellm"`
}

// Health handles GET /health. Reports degraded with a 503 when postgres or
// NATS is unreachable; the LiteLLM breaker state is informational only.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "ok", Postgres: "ok", NATS: "ok", LiteLLM: "unknown"}

	if h.DB != nil {
		if err := h.DB.Ping(r.Context()); err != nil {
			status.Postgres = "unreachable"
			status.Status = "degraded"
		}
	}
	if h.Queue != nil && !h.Queue.IsConnected() {
		status.NATS = "disconnected"
		status.Status = "degraded"
	}
	if h.LiteLLM != nil {
		status.LiteLLM = "breaker " + h.LiteLLM.Breaker().State()
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

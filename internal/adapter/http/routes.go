package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Executions
		r.Post("/executions", h.CreateExecution)
		r.Get("/executions", h.ListExecutions)
		r.Get("/executions/{id}", h.GetExecution)
		r.Delete("/executions/{id}", h.DeleteExecution)
		r.Get("/executions/{id}/history", h.GetHistory)

		// Lifecycle
		r.Post("/executions/{id}/start", h.StartExecution)
		r.Post("/executions/{id}/pause", h.PauseExecution)
		r.Post("/executions/{id}/resume", h.ResumeExecution)
		r.Post("/executions/{id}/cancel", h.CancelExecution)
		r.Post("/executions/{id}/retry", h.RetryExecution)

		// Progress and worker reporting
		r.Get("/executions/{id}/progress", h.GetProgress)
		r.Post("/executions/{id}/progress", h.PostProgress)
		r.Post("/executions/{id}/complete", h.CompleteExecution)
		r.Post("/executions/{id}/fail", h.FailExecution)
	})
}

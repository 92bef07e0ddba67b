// Package api provides the HTTP API handlers and routing for dogi.
package api

import (
	"dogi/internal/apperrors"
	"dogi/internal/health"
	"dogi/internal/job"
	"dogi/internal/observability"
	"dogi/internal/output"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler contains HTTP handlers for the dogi API
type Handler struct {
	jobs    *job.Coordinator
	outputs *output.Manager
	metrics *observability.Metrics
	health  *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(jobs *job.Coordinator, outputs *output.Manager, metrics *observability.Metrics, healthChecker *health.Checker) *Handler {
	return &Handler{
		jobs:    jobs,
		outputs: outputs,
		metrics: metrics,
		health:  healthChecker,
	}
}

// failureResponse is written when a job's pipeline failed.
type failureResponse struct {
	Error string     `json:"error"`
	Job   job.Status `json:"job"`
}

// Lifecycle handles GET /{scheme}/* for one reference scheme.
//
// With output=status the response waits for the job to settle and carries
// its status, 500 if the pipeline failed. Any other output streams that
// artifact until the job settles.
func (h *Handler) Lifecycle(scheme string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseLifecycleRequest(r, scheme)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		j, err := h.jobs.Lifecycle(r.Context(), req)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		if req.Output == job.StatusOutput {
			h.writeStatus(w, r, j, req.Action)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := h.outputs.Follow(r.Context(), j.ID, req.Output, w, j.Done()); err != nil && r.Context().Err() == nil {
			slog.WarnContext(r.Context(), "Failed to stream artifact",
				"fingerprint", j.ID, "artifactId", req.Output, "error", err)
		}
	}
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request, j *job.Job, action job.Action) {
	err := j.Wait(r.Context())
	if r.Context().Err() != nil {
		return
	}

	// An abort that stopped its job succeeded even though the job failed.
	if err != nil && action != job.ActionAbort {
		slog.WarnContext(r.Context(), "Job failed", "fingerprint", j.ID, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, failureResponse{Error: err.Error(), Job: j.Status()})
		return
	}

	h.writeJSON(w, http.StatusOK, j.Status())
}

// Output handles GET /output/{fingerprint}/{artifactId}
func (h *Handler) Output(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fingerprint")
	id := chi.URLParam(r, "artifactId")

	f, err := h.outputs.Open(fp, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.handleError(w, r, apperrors.Internal("output.stat", err))
		return
	}
	http.ServeContent(w, r, id, info.ModTime(), f)
}

// ListJobs handles GET /jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, job.ListResponse{Jobs: h.jobs.List()})
}

// Collect handles GET /collect/{artifactId}
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "artifactId")
	if err := output.ValidateID(id); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	n, err := h.jobs.Collect(r.Context(), w, id)
	if err != nil {
		slog.WarnContext(r.Context(), "Collect interrupted", "artifactId", id, "collected", n, "error", err)
		return
	}
	slog.DebugContext(r.Context(), "Collected artifacts", "artifactId", id, "collected", n)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if the docker daemon is unavailable or the service is draining.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from the coordinator with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path, "requestId", middleware.GetReqID(r.Context()))
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}

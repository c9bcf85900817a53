// Package handlers exposes the simulation service over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/alienxp03/oraculum/internal/core"
	"github.com/alienxp03/oraculum/internal/export"
	"github.com/alienxp03/oraculum/internal/registry"
	"github.com/alienxp03/oraculum/internal/simulation"
)

const (
	// DefaultStreamInterval is how often the stream endpoint polls a job.
	DefaultStreamInterval = time.Second
	// DefaultStreamTimeout bounds a single stream connection.
	DefaultStreamTimeout = 30 * time.Minute

	maxRequestBody = 32 << 20 // image and pdf attachments arrive inline
)

// Handler serves the simulation API.
type Handler struct {
	svc            *simulation.Service
	logger         *slog.Logger
	streamInterval time.Duration
	streamTimeout  time.Duration
	started        time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithStreamInterval sets the polling interval of the stream endpoint.
func WithStreamInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.streamInterval = d
		}
	}
}

// WithStreamTimeout bounds how long one stream connection may stay open.
func WithStreamTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.streamTimeout = d
		}
	}
}

// New creates a handler over svc.
func New(svc *simulation.Service, opts ...Option) *Handler {
	h := &Handler{
		svc:            svc,
		logger:         slog.Default(),
		streamInterval: DefaultStreamInterval,
		streamTimeout:  DefaultStreamTimeout,
		started:        time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router with all API routes and middleware mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "oraculum")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Post("/simulate", h.handleSimulate)
		r.Get("/status/{id}", h.handleStatus)
		r.Post("/analyze", h.handleAnalyze)
		r.Get("/jobs", h.handleListJobs)
		r.Get("/jobs/{id}", h.handleStatus)
		r.Get("/jobs/{id}/stream", h.handleJobStream)
		r.Get("/jobs/{id}/export/{format}", h.handleExportJob)
	})

	return r
}

// SimulateResponse is returned when a job is accepted.
type SimulateResponse struct {
	JobID  string         `json:"job_id"`
	Status core.JobStatus `json:"status"`
}

// AnalyzeRequest selects the job to report on.
type AnalyzeRequest struct {
	JobID string `json:"job_id"`
}

// AnalyzeResponse carries the generated report.
type AnalyzeResponse struct {
	Report string `json:"report"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"status": "ok",
		"jobs":   h.svc.Jobs().Len(),
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *Handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req core.SimulationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.jsonError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.svc.Submit(r.Context(), req)
	switch {
	case errors.Is(err, simulation.ErrInvalidRequest):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, simulation.ErrClosed):
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		h.logger.Error("Failed to submit simulation", "error", err)
		h.jsonError(w, "Failed to start simulation", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, http.StatusOK, SimulateResponse{JobID: id, Status: core.StatusProcessing})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := h.svc.Jobs().Get(id)
	if !ok {
		h.jsonError(w, "Job not found", http.StatusNotFound)
		return
	}
	h.jsonResponse(w, http.StatusOK, job)
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, h.svc.Jobs().List())
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		h.jsonError(w, "job_id is required", http.StatusBadRequest)
		return
	}

	h.logger.Info("Analysis requested", "job_id", req.JobID)
	report, err := h.svc.Analyze(r.Context(), req.JobID)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		h.jsonError(w, "Job not found", http.StatusNotFound)
		return
	case errors.Is(err, simulation.ErrNoResults):
		h.jsonError(w, "No results available to analyze", http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("Analysis failed", "job_id", req.JobID, "error", err)
		h.jsonError(w, "Failed to generate report", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, http.StatusOK, AnalyzeResponse{Report: report})
}

func (h *Handler) handleExportJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := chi.URLParam(r, "format")

	job, ok := h.svc.Jobs().Get(id)
	if !ok {
		h.jsonError(w, "Job not found", http.StatusNotFound)
		return
	}

	exporter, err := export.GetExporter(export.Format(format))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	filename := export.GenerateFilename(job, exporter.FileExtension())
	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	if err := exporter.Export(job, w); err != nil {
		h.logger.Error("Export failed", "job_id", id, "format", format, "error", err)
		http.Error(w, "Export failed", http.StatusInternalServerError)
	}
}

func (h *Handler) jsonResponse(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// cors allows any origin; the API is meant to sit behind a browser
// dashboard served from elsewhere.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

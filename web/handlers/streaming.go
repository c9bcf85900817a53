package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alienxp03/oraculum/internal/core"
)

// Stream event types.
const (
	EventAgents      = "agents"
	EventResult      = "result"
	EventProgress    = "progress"
	EventJobComplete = "job_complete"
	EventJobFailed   = "job_failed"
	EventError       = "error"
)

// ProgressEvent is sent whenever a job's progress moves.
type ProgressEvent struct {
	Progress    float64 `json:"progress"`
	ResultCount int     `json:"result_count"`
}

// handleJobStream streams a job's results as Server-Sent Events until the
// job reaches a terminal status.
func (h *Handler) handleJobStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.logger.Debug("New job stream connection", "job_id", id, "remote_addr", r.RemoteAddr)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("Streaming unsupported: ResponseWriter does not implement http.Flusher")
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	job, ok := h.svc.Jobs().Get(id)
	if !ok {
		h.sendSSEError(w, flusher, "Job not found")
		return
	}

	s := &jobStream{h: h, w: w, flusher: flusher}
	if s.send(job) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.streamTimeout)
	defer cancel()

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("Stream context done", "job_id", id)
			return
		case <-ticker.C:
			job, ok := h.svc.Jobs().Get(id)
			if !ok {
				h.sendSSEError(w, flusher, "Job not found")
				return
			}
			if s.send(job) {
				return
			}
		}
	}
}

// jobStream remembers what a connection has already been sent.
type jobStream struct {
	h        *Handler
	w        http.ResponseWriter
	flusher  http.Flusher
	agents   int
	results  int
	progress float64
}

// send writes everything new in job and reports whether the stream is done.
func (s *jobStream) send(job *core.Job) bool {
	if len(job.Agents) > s.agents {
		s.h.sendSSEEvent(s.w, s.flusher, EventAgents, job.Agents)
		s.agents = len(job.Agents)
	}
	for i := s.results; i < len(job.Results); i++ {
		s.h.sendSSEEvent(s.w, s.flusher, EventResult, job.Results[i])
	}
	s.results = len(job.Results)

	if job.Progress > s.progress {
		s.progress = job.Progress
		s.h.sendSSEEvent(s.w, s.flusher, EventProgress, ProgressEvent{Progress: job.Progress, ResultCount: s.results})
	}

	switch job.Status {
	case core.StatusCompleted:
		s.h.sendSSEEvent(s.w, s.flusher, EventJobComplete, job.Summary())
		return true
	case core.StatusFailed:
		s.h.sendSSEEvent(s.w, s.flusher, EventJobFailed, map[string]string{"id": job.ID, "error": job.Error})
		return true
	}
	return false
}

func (h *Handler) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal SSE data", "error", err)
		return
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		h.logger.Error("Failed to write SSE event", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		h.logger.Error("Failed to write SSE data", "error", err)
		return
	}
	flusher.Flush()
}

func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, message string) {
	h.sendSSEEvent(w, flusher, EventError, map[string]string{"message": message})
}

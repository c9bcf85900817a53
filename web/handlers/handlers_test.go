package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alienxp03/oraculum/internal/core"
	"github.com/alienxp03/oraculum/internal/gateway"
	"github.com/alienxp03/oraculum/internal/gateway/gatewaytest"
	"github.com/alienxp03/oraculum/internal/registry"
	"github.com/alienxp03/oraculum/internal/simulation"
)

// setupTestHandler creates a handler over an in-memory backend.
func setupTestHandler(t *testing.T, backend *gatewaytest.Backend) (*Handler, func()) {
	t.Helper()

	gw := gateway.New(backend)
	svc := simulation.New(gw, registry.New(), simulation.Config{})
	handler := New(svc, WithStreamInterval(5*time.Millisecond))

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svc.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
		gw.Close()
	}
	return handler, cleanup
}

func focusGroupBody() string {
	req := core.SimulationRequest{
		Scenario:    core.ScenarioFocusGroup,
		ProductName: "Kopi Oat",
		Rounds:      2,
		Agents: []core.Agent{
			{ID: 1, Name: "Ana", Role: "Nurse"},
			{ID: 2, Name: "Ben", Role: "Analyst", Skepticism: core.SkepticismHigh},
		},
	}
	data, _ := json.Marshal(req)
	return string(data)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// submitJob posts a simulation and waits for it to finish.
func submitJob(t *testing.T, handler *Handler, routes http.Handler) string {
	t.Helper()
	w := doRequest(t, routes, http.MethodPost, "/api/simulate", focusGroupBody())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp SimulateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.JobID == "" || resp.Status != core.StatusProcessing {
		t.Fatalf("Unexpected submit response: %+v", resp)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := handler.svc.Wait(ctx, resp.JobID, 5*time.Millisecond); err != nil {
		t.Fatalf("Job did not finish: %v", err)
	}
	return resp.JobID
}

func TestHandleSimulate(t *testing.T) {
	handler, cleanup := setupTestHandler(t, gatewaytest.New("[Thinking] ok [Verdict] yes"))
	defer cleanup()
	routes := handler.Routes()

	t.Run("AcceptsJob", func(t *testing.T) {
		id := submitJob(t, handler, routes)

		w := doRequest(t, routes, http.MethodGet, "/api/status/"+id, "")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var job core.Job
		if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
			t.Fatalf("Failed to decode job: %v", err)
		}
		if job.Status != core.StatusCompleted || job.Progress != 1.0 {
			t.Errorf("Expected completed job at progress 1.0, got %s at %v", job.Status, job.Progress)
		}
		if len(job.Agents) != 2 || len(job.Results) != 4 {
			t.Errorf("Expected 2 agents and 4 results, got %d and %d", len(job.Agents), len(job.Results))
		}
	})

	t.Run("InvalidBody", func(t *testing.T) {
		w := doRequest(t, routes, http.MethodPost, "/api/simulate", "{not json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("MissingProduct", func(t *testing.T) {
		w := doRequest(t, routes, http.MethodPost, "/api/simulate", `{"scenario":"product_launch"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "product_name") {
			t.Errorf("Expected error to name the field, got %s", w.Body.String())
		}
	})

	t.Run("UnknownScenario", func(t *testing.T) {
		w := doRequest(t, routes, http.MethodPost, "/api/simulate", `{"scenario":"tarot","product_name":"x"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

func TestHandleStatus_NotFound(t *testing.T) {
	handler, cleanup := setupTestHandler(t, gatewaytest.New("ok"))
	defer cleanup()

	w := doRequest(t, handler.Routes(), http.MethodGet, "/api/status/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestHandleListJobs(t *testing.T) {
	handler, cleanup := setupTestHandler(t, gatewaytest.New("[Verdict] fine"))
	defer cleanup()
	routes := handler.Routes()

	id := submitJob(t, handler, routes)

	w := doRequest(t, routes, http.MethodGet, "/api/jobs", "")
	var jobs []core.JobSummary
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != id {
		t.Fatalf("Expected one listed job %s, got %+v", id, jobs)
	}
	if jobs[0].AgentCount != 2 || jobs[0].ResultCount != 4 {
		t.Errorf("Unexpected summary counts: %+v", jobs[0])
	}
}

func TestHandleAnalyze(t *testing.T) {
	handler, cleanup := setupTestHandler(t, gatewaytest.New("[Thinking] ok [Verdict] yes"))
	defer cleanup()
	routes := handler.Routes()

	t.Run("ReturnsReport", func(t *testing.T) {
		id := submitJob(t, handler, routes)
		w := doRequest(t, routes, http.MethodPost, "/api/analyze", `{"job_id":"`+id+`"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp AnalyzeResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode report: %v", err)
		}
		if resp.Report == "" {
			t.Error("Expected a non-empty report")
		}
	})

	t.Run("UnknownJob", func(t *testing.T) {
		w := doRequest(t, routes, http.MethodPost, "/api/analyze", `{"job_id":"nope"}`)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("MissingJobID", func(t *testing.T) {
		w := doRequest(t, routes, http.MethodPost, "/api/analyze", `{}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("NoResults", func(t *testing.T) {
		if err := handler.svc.Jobs().Create("empty", core.ScenarioProductLaunch, "x"); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		w := doRequest(t, routes, http.MethodPost, "/api/analyze", `{"job_id":"empty"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

func TestHandleExportJob(t *testing.T) {
	handler, cleanup := setupTestHandler(t, gatewaytest.New("[Thinking] ok [Verdict] yes"))
	defer cleanup()
	routes := handler.Routes()
	id := submitJob(t, handler, routes)

	tests := []struct {
		format      string
		contentType string
		prefix      string
	}{
		{"json", "application/json", "{"},
		{"csv", "text/csv", "agent_id"},
		{"markdown", "text/markdown", "# Kopi Oat"},
		{"pdf", "application/pdf", "%PDF-"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w := doRequest(t, routes, http.MethodGet, "/api/jobs/"+id+"/export/"+tt.format, "")
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.contentType) {
				t.Errorf("Expected content type %s, got %s", tt.contentType, ct)
			}
			if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "simulation_") {
				t.Errorf("Unexpected Content-Disposition: %s", cd)
			}
			if !bytes.HasPrefix(w.Body.Bytes(), []byte(tt.prefix)) {
				t.Errorf("Expected body to start with %q, got %q", tt.prefix, firstLine(w.Body.String()))
			}
		})
	}

	t.Run("UnsupportedFormat", func(t *testing.T) {
		w := doRequest(t, routes, http.MethodGet, "/api/jobs/"+id+"/export/docx", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("UnknownJob", func(t *testing.T) {
		w := doRequest(t, routes, http.MethodGet, "/api/jobs/nope/export/json", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})
}

func TestHandleJobStream(t *testing.T) {
	handler, cleanup := setupTestHandler(t, gatewaytest.New("[Thinking] ok [Verdict] yes"))
	defer cleanup()
	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/simulate", "application/json", strings.NewReader(focusGroupBody()))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	var created SimulateResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	resp.Body.Close()

	stream, err := http.Get(server.URL + "/api/jobs/" + created.JobID + "/stream")
	if err != nil {
		t.Fatalf("Stream request failed: %v", err)
	}
	defer stream.Body.Close()

	if ct := stream.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %s", ct)
	}

	// The server closes the stream once the job completes.
	body, err := io.ReadAll(stream.Body)
	if err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}
	events := string(body)

	if got := strings.Count(events, "event: "+EventResult+"\n"); got != 4 {
		t.Errorf("Expected 4 result events, got %d:\n%s", got, events)
	}
	if !strings.Contains(events, "event: "+EventAgents+"\n") {
		t.Error("Expected an agents event")
	}
	if !strings.HasSuffix(strings.TrimSpace(events[:strings.LastIndex(events, "data:")]), "event: "+EventJobComplete) {
		t.Errorf("Expected job_complete as the final event:\n%s", events)
	}
}

func TestHandleJobStream_NotFound(t *testing.T) {
	handler, cleanup := setupTestHandler(t, gatewaytest.New("ok"))
	defer cleanup()

	w := doRequest(t, handler.Routes(), http.MethodGet, "/api/jobs/missing/stream", "")
	if !strings.Contains(w.Body.String(), "event: error") {
		t.Errorf("Expected an error event, got %s", w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	handler, cleanup := setupTestHandler(t, gatewaytest.New("ok"))
	defer cleanup()

	w := doRequest(t, handler.Routes(), http.MethodOptions, "/api/simulate", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected permissive CORS header")
	}
}

func TestHandleHealth(t *testing.T) {
	handler, cleanup := setupTestHandler(t, gatewaytest.New("ok"))
	defer cleanup()

	w := doRequest(t, handler.Routes(), http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var health map[string]any
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("Unexpected health: %v", health)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

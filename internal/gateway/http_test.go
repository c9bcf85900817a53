package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

func newModelServer(t *testing.T, readyAfter int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < readyAfter {
			json.NewEncoder(w).Encode(map[string]string{"status": "loading_models"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	mux.HandleFunc("POST /infer", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Task   string `json:"task"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": err.Error()})
			return
		}
		if req.Prompt == "crash" {
			http.Error(w, "worker died", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "success", "text": "served:" + req.Prompt})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func TestHTTPTransport_Handshake(t *testing.T) {
	srv, polls := newModelServer(t, 3)

	tr, err := DialHTTP(context.Background(), HTTPConfig{
		URL:               srv.URL + "/infer",
		HealthURL:         srv.URL + "/health",
		HandshakeAttempts: 5,
		PollInterval:      time.Millisecond,
		Client:            srv.Client(),
	})
	if err != nil {
		t.Fatalf("DialHTTP failed: %v", err)
	}
	defer tr.Close()

	if polls.Load() != 3 {
		t.Errorf("expected 3 health polls, got %d", polls.Load())
	}
}

func TestHTTPTransport_NeverReady(t *testing.T) {
	srv, _ := newModelServer(t, 100)

	_, err := DialHTTP(context.Background(), HTTPConfig{
		URL:               srv.URL + "/infer",
		HealthURL:         srv.URL + "/health",
		HandshakeAttempts: 3,
		PollInterval:      time.Millisecond,
		Client:            srv.Client(),
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPTransport_Complete(t *testing.T) {
	srv, _ := newModelServer(t, 1)
	tr, err := DialHTTP(context.Background(), HTTPConfig{
		URL:    srv.URL + "/infer",
		Client: srv.Client(),
	})
	if err != nil {
		t.Fatalf("DialHTTP failed: %v", err)
	}
	gw := New(tr)
	defer gw.Close()

	got, err := gw.Complete(context.Background(), Request{Prompt: "hello", MaxTokens: 20})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "served:hello" {
		t.Errorf("unexpected completion %q", got)
	}

	_, err = gw.Complete(context.Background(), Request{Prompt: "crash"})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for 5xx, got %v", err)
	}
}

func TestHTTPTransport_RecordedModelServer(t *testing.T) {
	r, err := recorder.NewAsMode(filepath.Join("testdata", "fixtures", "model_server"), recorder.ModeReplaying, nil)
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	defer r.Stop()
	r.SetMatcher(func(r *http.Request, i cassette.Request) bool {
		return r.Method == i.Method && r.URL.String() == i.URL
	})

	tr, err := DialHTTP(context.Background(), HTTPConfig{
		URL:               "http://127.0.0.1:8001/infer",
		HealthURL:         "http://127.0.0.1:8001/health",
		HandshakeAttempts: 1,
		Client:            &http.Client{Transport: r},
	})
	if err != nil {
		t.Fatalf("DialHTTP failed: %v", err)
	}
	gw := New(tr)
	defer gw.Close()

	text, err := gw.Complete(context.Background(), Request{Prompt: "Would you buy Kopi Oat?", MaxTokens: 64, Temperature: 0.7})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "[Thinking] pricey [Verdict] Maybe once." {
		t.Errorf("unexpected text: %q", text)
	}
}

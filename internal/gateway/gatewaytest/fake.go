// Package gatewaytest provides an in-process inference backend for tests.
package gatewaytest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Call is one decoded request received by the fake backend.
type Call struct {
	Task        string  `json:"task"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Product     string  `json:"product"`
	Context     string  `json:"context"`
	Query       string  `json:"query"`
	Image       string  `json:"image"`
	PDF         string  `json:"pdf"`
}

// GenerateFunc produces completion text for a prompt. A non-nil error is
// reported to the caller as a backend error response.
type GenerateFunc func(call Call) (string, error)

// Backend implements gateway.Transport in memory.
//
// It flags interleaving: if a second frame arrives before the first has
// been answered, Interleaved reports true.
type Backend struct {
	Generate    GenerateFunc
	Research    []string
	FactSheet   string
	Memory      []string
	Delay       time.Duration            // simulated latency per request
	DelayFor    func(Call) time.Duration // overrides Delay when set
	RawResponse func(Call) []byte        // bypasses encoding when it returns non-nil

	inFlight    atomic.Int32
	interleaved atomic.Bool
	closed      atomic.Bool

	mu    sync.Mutex
	calls []Call
}

// New returns a backend that answers every generate call with text.
func New(text string) *Backend {
	return &Backend{
		Generate: func(Call) (string, error) { return text, nil },
	}
}

// RoundTrip decodes frame and answers it.
func (b *Backend) RoundTrip(ctx context.Context, frame []byte) ([]byte, error) {
	if b.closed.Load() {
		return nil, errors.New("fake backend closed")
	}
	if b.inFlight.Add(1) > 1 {
		b.interleaved.Store(true)
	}
	defer b.inFlight.Add(-1)

	var call Call
	if err := json.Unmarshal(frame, &call); err != nil {
		return nil, fmt.Errorf("fake backend received undecodable frame: %w", err)
	}
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()

	delay := b.Delay
	if b.DelayFor != nil {
		delay = b.DelayFor(call)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if b.RawResponse != nil {
		if raw := b.RawResponse(call); raw != nil {
			return raw, nil
		}
	}

	resp := map[string]any{"status": "success"}
	switch call.Task {
	case "research":
		resp["research_data"] = b.Research
	case "get_facts":
		resp["fact_sheet"] = b.FactSheet
	case "query_memory":
		resp["data"] = b.Memory
	default:
		gen := b.Generate
		if gen == nil {
			gen = func(Call) (string, error) { return "", nil }
		}
		text, err := gen(call)
		if err != nil {
			resp = map[string]any{"status": "error", "message": err.Error()}
		} else {
			resp["text"] = text
		}
	}
	return json.Marshal(resp)
}

// Close marks the backend closed.
func (b *Backend) Close() error {
	b.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool {
	return b.closed.Load()
}

// Interleaved reports whether two requests were ever in flight at once.
func (b *Backend) Interleaved() bool {
	return b.interleaved.Load()
}

// Calls returns a copy of all requests received so far.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// GenerateCalls returns only the generate requests.
func (b *Backend) GenerateCalls() []Call {
	var out []Call
	for _, c := range b.Calls() {
		if c.Task == "generate" {
			out = append(out, c)
		}
	}
	return out
}

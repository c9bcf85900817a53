// Package gateway is the single point of contact with the inference backend.
//
// The backend owns one duplex channel and can only serve one request at a
// time, so the Gateway admits at most one in-flight request process-wide.
// Callers may be arbitrarily parallel; effective backend concurrency is 1.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// DefaultTimeout bounds a single round trip. Large-model generation is slow.
const DefaultTimeout = 10 * time.Minute

// Transport carries one encoded frame to the backend and returns the
// matching response frame. Implementations need not be safe for concurrent
// use; the Gateway never calls RoundTrip concurrently.
type Transport interface {
	RoundTrip(ctx context.Context, frame []byte) ([]byte, error)
	Close() error
}

// Completer is the text completion surface used by the rest of the system.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Gateway serializes all backend traffic over one Transport.
type Gateway struct {
	transport Transport
	guard     *semaphore.Weighted
	timeout   time.Duration
	logger    *slog.Logger
	tracer    trace.Tracer
	closed    atomic.Bool
	calls     atomic.Int64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout sets the per-call round trip timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Gateway that owns t. Close releases it.
func New(t Transport, opts ...Option) *Gateway {
	g := &Gateway{
		transport: t,
		guard:     semaphore.NewWeighted(1),
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/alienxp03/oraculum/internal/gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Complete sends a generate request and returns the completion text.
func (g *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := g.call(ctx, TaskGenerate, generateFrame{Task: TaskGenerate, Request: req})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Research gathers consumer voices about a product.
func (g *Gateway) Research(ctx context.Context, product, brief string) ([]string, error) {
	resp, err := g.call(ctx, TaskResearch, researchFrame{Task: TaskResearch, Product: product, Context: brief})
	if err != nil {
		return nil, err
	}
	return resp.ResearchData, nil
}

// LookupFacts fetches a factual specification sheet for a query.
func (g *Gateway) LookupFacts(ctx context.Context, query string) (string, error) {
	resp, err := g.call(ctx, TaskGetFacts, queryFrame{Task: TaskGetFacts, Query: query})
	if err != nil {
		return "", err
	}
	return resp.FactSheet, nil
}

// QueryMemory searches the backend's long-term memory.
func (g *Gateway) QueryMemory(ctx context.Context, query string) ([]string, error) {
	resp, err := g.call(ctx, TaskQueryMemory, queryFrame{Task: TaskQueryMemory, Query: query})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Calls returns the number of round trips attempted so far.
func (g *Gateway) Calls() int64 {
	return g.calls.Load()
}

// Close tears down the transport. Calls after Close fail with ErrUnavailable.
func (g *Gateway) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}
	g.logger.Info("Closing inference gateway", "calls", g.calls.Load())
	return g.transport.Close()
}

func (g *Gateway) call(ctx context.Context, op string, payload any) (wireResponse, error) {
	ctx, span := g.tracer.Start(ctx, "gateway."+op)
	defer span.End()

	resp, err := g.roundTrip(ctx, op, payload)
	if err != nil {
		var ge *Error
		if errors.As(err, &ge) {
			ge.Op = op
			span.SetAttributes(attribute.String("gateway.error_kind", ge.Kind.String()))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}
	return resp, nil
}

func (g *Gateway) roundTrip(ctx context.Context, op string, payload any) (wireResponse, error) {
	if g.closed.Load() {
		return wireResponse{}, unavailable("gateway closed", ErrClosed)
	}

	frame, err := EncodeFrame(payload)
	if err != nil {
		return wireResponse{}, protocol("failed to encode request", "", err)
	}

	// Waiting for the guard is not bounded by the call timeout: with many
	// workers queued behind one backend the wait can be long.
	waitStart := time.Now()
	if err := g.guard.Acquire(ctx, 1); err != nil {
		return wireResponse{}, transportError(ctx, err)
	}
	defer g.guard.Release(1)

	if g.closed.Load() {
		return wireResponse{}, unavailable("gateway closed", ErrClosed)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	n := g.calls.Add(1)
	start := time.Now()
	g.logger.Debug("Sending backend request",
		"op", op,
		"call", n,
		"bytes", len(frame),
		"queued", start.Sub(waitStart),
	)

	raw, err := g.transport.RoundTrip(callCtx, frame)
	if err != nil {
		ge := transportError(callCtx, err)
		g.logger.Warn("Backend round trip failed", "op", op, "kind", ge.Kind.String(), "error", err)
		return wireResponse{}, ge
	}

	resp, err := decodeResponse(raw)
	if err != nil {
		g.logger.Warn("Backend response rejected", "op", op, "error", err)
		return resp, err
	}

	g.logger.Debug("Backend request complete", "op", op, "call", n, "duration", time.Since(start))
	return resp, nil
}

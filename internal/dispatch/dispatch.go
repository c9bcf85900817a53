// Package dispatch fans prompt batches out across a bounded worker pool.
//
// Every request still passes through the gateway one at a time; workers
// overlap prompt preparation and response parsing with the backend call and
// keep each result tied to the job that produced it.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/alienxp03/oraculum/internal/core"
	"github.com/alienxp03/oraculum/internal/gateway"
)

// DefaultWorkers is the default number of concurrent workers per batch.
const DefaultWorkers = 8

// PromptJob is one prompt addressed to one agent.
type PromptJob struct {
	Key         int // correlation key, normally the agent id
	Agent       core.Agent
	Scenario    string
	Phase       string
	Round       int
	Category    string // overrides keyword classification when set
	Prompt      string
	MaxTokens   int
	Temperature float64
	Image       string
	PDF         string
}

// PromptResult is the outcome of one PromptJob.
type PromptResult struct {
	Key    int
	Result core.SimulationResult
	Raw    string
	Err    error
}

// Preparer runs inside the worker before the prompt is posted. It returns
// the prompt to send and a description of any material it added.
type Preparer interface {
	Prepare(ctx context.Context, job PromptJob) (prompt, sources string)
}

// Dispatcher runs prompt batches.
type Dispatcher struct {
	completer  gateway.Completer
	workers    int
	maxRetries int
	backoff    time.Duration
	preparer   Preparer
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers bounds the number of jobs in progress at once.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithRetries retries timed-out calls up to n times, waiting
// backoff * 2^attempt between attempts.
func WithRetries(n int, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.maxRetries = n
		}
		if backoff > 0 {
			d.backoff = backoff
		}
	}
}

// WithPreparer installs a hook that runs before each prompt is posted.
func WithPreparer(p Preparer) Option {
	return func(d *Dispatcher) {
		d.preparer = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Dispatcher posting through c.
func New(c gateway.Completer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		completer: c,
		workers:   DefaultWorkers,
		backoff:   time.Second,
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/alienxp03/oraculum/internal/dispatch"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs every job and returns one result per job, in input order.
// A failing job produces an error-flagged result and never affects siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []PromptJob) []PromptResult {
	ctx, span := d.tracer.Start(ctx, "dispatch.batch",
		trace.WithAttributes(attribute.Int("dispatch.jobs", len(jobs)), attribute.Int("dispatch.workers", d.workers)))
	defer span.End()

	results := make([]PromptResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(d.workers)
	for i := range jobs {
		g.Go(func() error {
			results[i] = d.run(ctx, jobs[i])
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("dispatch.failed", failed))
	if failed > 0 {
		d.logger.Warn("Dispatch batch finished with failures", "jobs", len(jobs), "failed", failed)
	}
	return results
}

func (d *Dispatcher) run(ctx context.Context, job PromptJob) (res PromptResult) {
	prompt, sources := job.Prompt, ""
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Dispatch worker panicked", "key", job.Key, "panic", r)
			res = d.failure(job, prompt, sources, fmt.Errorf("worker panic: %v", r))
		}
	}()

	if d.preparer != nil {
		prompt, sources = d.preparer.Prepare(ctx, job)
	}

	raw, err := d.complete(ctx, job, prompt)
	if err != nil {
		d.logger.Warn("Prompt failed", "key", job.Key, "agent", job.Agent.Name, "error", err)
		return d.failure(job, prompt, sources, err)
	}

	thought, verdict := ParseSegments(raw)
	category := job.Category
	if category == "" {
		category = ClassifyCategory(job.Scenario, verdict)
	}

	result := d.baseResult(job, prompt, sources)
	result.Response = verdict
	result.Thought = thought
	result.Sentiment = ClassifySentiment(verdict)
	result.Category = category
	return PromptResult{Key: job.Key, Result: result, Raw: raw}
}

func (d *Dispatcher) complete(ctx context.Context, job PromptJob, prompt string) (string, error) {
	req := gateway.Request{
		Prompt:      prompt,
		MaxTokens:   job.MaxTokens,
		Image:       job.Image,
		PDF:         job.PDF,
		Temperature: job.Temperature,
	}
	for attempt := 0; ; attempt++ {
		raw, err := d.completer.Complete(ctx, req)
		if err == nil || attempt >= d.maxRetries || !gateway.IsRetriable(err) {
			return raw, err
		}

		delay := d.backoff * time.Duration(1<<attempt)
		d.logger.Warn("Retrying prompt", "key", job.Key, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", err
		}
	}
}

func (d *Dispatcher) baseResult(job PromptJob, prompt, sources string) core.SimulationResult {
	return core.SimulationResult{
		AgentID:          job.Agent.ID,
		AgentName:        job.Agent.Name,
		AgentRole:        job.Agent.Role,
		AgentDemographic: job.Agent.Demographic,
		Scenario:         job.Scenario,
		Phase:            job.Phase,
		Round:            job.Round,
		Prompt:           prompt,
		Sources:          sources,
		Timestamp:        d.now(),
	}
}

func (d *Dispatcher) failure(job PromptJob, prompt, sources string, err error) PromptResult {
	result := d.baseResult(job, prompt, sources)
	result.Response = err.Error()
	result.Sentiment = core.SentimentMixed
	result.Category = core.CategoryError
	result.Error = err.Error()
	return PromptResult{Key: job.Key, Result: result, Err: err}
}

// Results extracts the simulation results from a batch, in batch order.
func Results(batch []PromptResult) []core.SimulationResult {
	out := make([]core.SimulationResult, len(batch))
	for i, r := range batch {
		out[i] = r.Result
	}
	return out
}

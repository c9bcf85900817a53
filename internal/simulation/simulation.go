// Package simulation runs submitted jobs from research to results.
//
// Each submitted job gets one orchestrator goroutine that owns every write
// to that job in the registry. Callers poll the registry for progress.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alienxp03/oraculum/internal/core"
	"github.com/alienxp03/oraculum/internal/debate"
	"github.com/alienxp03/oraculum/internal/dispatch"
	"github.com/alienxp03/oraculum/internal/gateway"
	"github.com/alienxp03/oraculum/internal/persona"
	"github.com/alienxp03/oraculum/internal/registry"
	"github.com/alienxp03/oraculum/internal/scenario"
	"github.com/alienxp03/oraculum/internal/skill"
)

// MaxAgents bounds the participants of one job.
const MaxAgents = 100

// PersonaProgress is the progress reported once participants are ready.
const PersonaProgress = 0.25

const (
	defaultAudience = "General consumers"
	noVoices        = "No direct consumer discussions found online."
	noFacts         = "No structured data available."
)

var (
	ErrInvalidRequest = errors.New("invalid simulation request")
	ErrNoResults      = errors.New("no results available to analyze")
	ErrClosed         = errors.New("simulation service is shut down")
)

// Backend is everything the orchestrator asks of the inference gateway.
type Backend interface {
	gateway.Completer
	Research(ctx context.Context, product, brief string) ([]string, error)
	LookupFacts(ctx context.Context, query string) (string, error)
	QueryMemory(ctx context.Context, query string) ([]string, error)
}

// Config tunes job execution.
type Config struct {
	Workers          int
	Rounds           int
	MaxTokens        int
	HistoryWindow    int
	MaxHistoryTokens int
	SnippetLength    int
	MaxRetries       int
	RetryBackoff     time.Duration
	DefaultAgents    int
	Research         bool
	RoundDelay       time.Duration
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		Workers:          dispatch.DefaultWorkers,
		Rounds:           debate.DefaultRounds,
		MaxTokens:        debate.DefaultMaxTokens,
		HistoryWindow:    debate.DefaultHistoryWindow,
		MaxHistoryTokens: debate.DefaultMaxHistoryTokens,
		SnippetLength:    debate.DefaultSnippetLength,
		RetryBackoff:     time.Second,
		DefaultAgents:    5,
		Research:         true,
		RoundDelay:       1500 * time.Millisecond,
	}
}

// Service accepts jobs and runs them in the background.
type Service struct {
	backend  Backend
	jobs     *registry.Registry
	skills   *skill.Registry
	personas *persona.Generator
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures a Service.
type Option func(*Service)

// WithSkills sets the skill registry used in single-pass scenarios.
func WithSkills(r *skill.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.skills = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service. Zero fields in cfg take their defaults.
func New(backend Backend, jobs *registry.Registry, cfg Config, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		jobs:    jobs,
		cfg:     withDefaults(cfg),
		logger:  slog.Default(),
		tracer:  otel.Tracer("github.com/alienxp03/oraculum/internal/simulation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.skills == nil {
		s.skills = skill.Defaults(backend, nil)
	}
	s.personas = persona.NewGenerator(backend, s.logger)
	return s
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Rounds <= 0 {
		cfg.Rounds = def.Rounds
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	if cfg.MaxHistoryTokens <= 0 {
		cfg.MaxHistoryTokens = def.MaxHistoryTokens
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = def.SnippetLength
	}
	if cfg.DefaultAgents <= 0 {
		cfg.DefaultAgents = def.DefaultAgents
	}
	return cfg
}

// Jobs returns the registry the service writes to.
func (s *Service) Jobs() *registry.Registry {
	return s.jobs
}

// Submit validates req, registers a job and starts it. It returns the job
// id without waiting for any work.
func (s *Service) Submit(ctx context.Context, req core.SimulationRequest) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	req, err := s.normalize(req)
	if err != nil {
		return "", err
	}

	id := core.NewJobID()
	if err := s.jobs.Create(id, req.Scenario, req.ProductName); err != nil {
		return "", fmt.Errorf("failed to register job: %w", err)
	}

	s.logger.Info("Job submitted", "job_id", id, "scenario", req.Scenario, "product", req.ProductName, "agents", req.AgentCount)

	// Detached from ctx: the job outlives the request that created it.
	parent := trace.SpanContextFromContext(ctx)
	s.wg.Add(1)
	go s.run(trace.ContextWithSpanContext(context.Background(), parent), id, req)
	return id, nil
}

func (s *Service) normalize(req core.SimulationRequest) (core.SimulationRequest, error) {
	req.ProductName = strings.TrimSpace(req.ProductName)
	if req.ProductName == "" {
		return req, fmt.Errorf("%w: product_name is required", ErrInvalidRequest)
	}
	if req.Scenario == "" {
		req.Scenario = core.ScenarioProductLaunch
	}
	if !core.IsKnownScenario(req.Scenario) {
		return req, fmt.Errorf("%w: unknown scenario %q", ErrInvalidRequest, req.Scenario)
	}
	if len(req.Agents) > 0 {
		req.AgentCount = len(req.Agents)
	}
	if req.AgentCount <= 0 {
		req.AgentCount = s.cfg.DefaultAgents
	}
	if req.AgentCount > MaxAgents {
		return req, fmt.Errorf("%w: agent_count %d exceeds %d", ErrInvalidRequest, req.AgentCount, MaxAgents)
	}
	if req.Rounds <= 0 {
		req.Rounds = s.cfg.Rounds
	}
	if strings.TrimSpace(req.TargetAudience) == "" {
		req.TargetAudience = defaultAudience
	}
	return req, nil
}

func (s *Service) run(ctx context.Context, id string, req core.SimulationRequest) {
	defer s.wg.Done()

	ctx, span := s.tracer.Start(ctx, "simulation.job", trace.WithAttributes(
		attribute.String("job.id", id),
		attribute.String("job.scenario", req.Scenario),
		attribute.Int("job.agents", req.AgentCount),
	))
	defer span.End()

	logger := s.logger.With("job_id", id)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("orchestrator panic: %v", r)
			logger.Error("Job crashed", "error", err)
			span.SetStatus(codes.Error, err.Error())
			if ferr := s.jobs.Fail(id, err); ferr != nil {
				logger.Error("Failed to mark job failed", "error", ferr)
			}
		}
	}()

	if err := s.execute(ctx, id, req, logger); err != nil {
		logger.Error("Job failed", "error", err, "duration", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ferr := s.jobs.Fail(id, err); ferr != nil {
			logger.Error("Failed to mark job failed", "error", ferr)
		}
		return
	}

	if err := s.jobs.Complete(id); err != nil {
		logger.Error("Failed to complete job", "error", err)
		return
	}
	logger.Info("Job finished", "duration", time.Since(start))
}

func (s *Service) execute(ctx context.Context, id string, req core.SimulationRequest, logger *slog.Logger) error {
	brief, voices := s.enrich(ctx, req, logger)

	agents := s.agentsFor(ctx, req, voices)
	if err := s.jobs.SetAgents(id, agents); err != nil {
		return fmt.Errorf("failed to store agents: %w", err)
	}
	if err := s.jobs.SetProgress(id, PersonaProgress); err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	logger.Info("Participants ready", "agents", len(agents))

	if req.Scenario == core.ScenarioFocusGroup {
		return s.runFocusGroup(ctx, id, req, brief, agents, logger)
	}
	return s.runParallel(ctx, id, req, brief, agents, logger)
}

// enrich gathers market voices and facts. Lookup failures degrade to
// placeholders; they never fail the job.
func (s *Service) enrich(ctx context.Context, req core.SimulationRequest, logger *slog.Logger) (string, []string) {
	facts := noFacts
	var voices []string
	if s.cfg.Research {
		v, err := s.backend.Research(ctx, req.ProductName, req.Context)
		if err != nil {
			logger.Warn("Market research failed", "error", err)
		} else {
			voices = v
		}
		f, err := s.backend.LookupFacts(ctx, req.ProductName)
		if err != nil {
			logger.Warn("Fact lookup failed", "error", err)
		} else if strings.TrimSpace(f) != "" {
			facts = f
		}
	}
	return EnrichedContext(req.ProductName, req.Context, facts, voices), voices
}

// EnrichedContext assembles the product brief shared by every prompt.
func EnrichedContext(product, userContext, facts string, voices []string) string {
	voiceText := noVoices
	if len(voices) > 0 {
		voiceText = strings.Join(voices, "\n---\n")
	}
	return fmt.Sprintf("PRODUCT: %s\nUSER CONTEXT: %s\n\n--- FACTUAL SPECS ---\n%s\n\n--- MARKET RESEARCH ---\n%s",
		product, userContext, facts, voiceText)
}

func (s *Service) agentsFor(ctx context.Context, req core.SimulationRequest, voices []string) []core.Agent {
	if len(req.Agents) == 0 {
		return s.personas.Generate(ctx, req.AgentCount, req.TargetAudience, voices)
	}

	agents := make([]core.Agent, len(req.Agents))
	seen := make(map[int]bool, len(req.Agents))
	renumber := false
	for i, a := range req.Agents {
		agents[i] = a.Clone()
		if a.ID <= 0 || seen[a.ID] {
			renumber = true
		}
		seen[a.ID] = true
		if len(agents[i].Skills) == 0 {
			agents[i].Skills = persona.SkillsForRole(a.Role)
		}
	}
	if renumber {
		for i := range agents {
			agents[i].ID = i + 1
		}
	}
	return agents
}

func (s *Service) runFocusGroup(ctx context.Context, id string, req core.SimulationRequest, brief string, agents []core.Agent, logger *slog.Logger) error {
	d := dispatch.New(s.backend,
		dispatch.WithWorkers(s.cfg.Workers),
		dispatch.WithRetries(s.cfg.MaxRetries, s.cfg.RetryBackoff),
		dispatch.WithLogger(logger),
	)
	engine := debate.New(d,
		debate.WithHistoryWindow(s.cfg.HistoryWindow),
		debate.WithHistoryTokens(s.cfg.MaxHistoryTokens),
		debate.WithSnippetLength(s.cfg.SnippetLength),
		debate.WithMaxTokens(s.cfg.MaxTokens),
		debate.WithRoundDelay(s.cfg.RoundDelay),
		debate.WithLogger(logger),
	)

	session := debate.Session{
		Topic:  fmt.Sprintf("Product: %s. Context: %s", req.ProductName, brief),
		Agents: agents,
		Rounds: req.Rounds,
		Image:  req.Image,
		PDF:    req.PDF,
	}
	_, err := engine.Run(ctx, session, func(round, total int, results []core.SimulationResult) {
		progress := PersonaProgress + (1-PersonaProgress)*float64(round)/float64(total)
		if err := s.jobs.RecordResults(id, results, progress); err != nil {
			logger.Error("Failed to record round", "round", round, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("focus group stopped: %w", err)
	}
	return nil
}

func (s *Service) runParallel(ctx context.Context, id string, req core.SimulationRequest, brief string, agents []core.Agent, logger *slog.Logger) error {
	sc := scenario.ForRequest(req, brief)
	jobs := make([]dispatch.PromptJob, 0, len(agents))
	for _, a := range agents {
		prompt, err := sc.Prompt(a)
		if err != nil {
			return err
		}
		jobs = append(jobs, dispatch.PromptJob{
			Key:         a.ID,
			Agent:       a,
			Scenario:    sc.Key(),
			Prompt:      prompt,
			MaxTokens:   scenario.MaxTokens,
			Temperature: scenario.Temperature,
			Image:       req.Image,
			PDF:         req.PDF,
		})
	}

	d := dispatch.New(s.backend,
		dispatch.WithWorkers(s.cfg.Workers),
		dispatch.WithRetries(s.cfg.MaxRetries, s.cfg.RetryBackoff),
		dispatch.WithPreparer(skill.NewRunner(s.skills, brief, logger)),
		dispatch.WithLogger(logger),
	)
	logger.Info("Running scenario", "scenario", sc.Name(), "agents", len(jobs))

	batch := d.Dispatch(ctx, jobs)
	if err := s.jobs.RecordResults(id, dispatch.Results(batch), 1.0); err != nil {
		return fmt.Errorf("failed to record results: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scenario stopped: %w", err)
	}
	return nil
}

// Analyze writes a report over a job's results. Focus groups get an
// executive summary; other scenarios get the analyst report.
func (s *Service) Analyze(ctx context.Context, jobID string) (string, error) {
	job, ok := s.jobs.Get(jobID)
	if !ok {
		return "", fmt.Errorf("%w: %s", registry.ErrNotFound, jobID)
	}
	return s.AnalyzeJob(ctx, job)
}

// AnalyzeJob is Analyze for a job held outside the registry.
func (s *Service) AnalyzeJob(ctx context.Context, job *core.Job) (string, error) {
	if len(job.Results) == 0 {
		return "", ErrNoResults
	}
	key := job.Results[0].Scenario

	req := gateway.Request{
		Prompt:      ReportPrompt(key, job.Results),
		MaxTokens:   ReportMaxTokens,
		Temperature: ReportTemperature,
	}
	if key == core.ScenarioFocusGroup {
		req = gateway.Request{
			Prompt:      debate.SummaryPrompt(job.Product, job.Results),
			MaxTokens:   debate.SummaryMaxTokens,
			Temperature: ReportTemperature,
		}
	}

	s.logger.Info("Generating report", "job_id", job.ID, "scenario", key, "results", len(job.Results))
	report, err := s.backend.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}
	return report, nil
}

// Wait blocks until the job reaches a terminal status, polling at interval.
func (s *Service) Wait(ctx context.Context, jobID string, interval time.Duration) (*core.Job, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, ok := s.jobs.Get(jobID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, jobID)
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown stops accepting jobs and waits for running ones to finish or
// for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.closed.Store(true)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs still running at shutdown: %w", ctx.Err())
	}
}

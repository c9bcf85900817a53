// Package debate runs multi-round focus groups over a shared blackboard.
//
// Every round takes a snapshot of the blackboard, prompts all agents in
// parallel against that snapshot and only then commits what they said, so
// no agent ever sees another agent's statement from the same round.
package debate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alienxp03/oraculum/internal/core"
	"github.com/alienxp03/oraculum/internal/dispatch"
	"github.com/alienxp03/oraculum/internal/pool"
	"github.com/alienxp03/oraculum/internal/tokens"
)

// Defaults for a focus group.
const (
	DefaultRounds           = 3
	DefaultHistoryWindow    = 8
	DefaultMaxHistoryTokens = 1500
	DefaultMaxTokens        = 600
)

// Dispatcher runs a batch of prompts and returns one result per job in
// input order.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobs []dispatch.PromptJob) []dispatch.PromptResult
}

// Session is one focus group to run.
type Session struct {
	Topic  string
	Agents []core.Agent
	Rounds int
	Image  string
	PDF    string
}

// RoundFunc receives the results of every finished round.
type RoundFunc func(round, total int, results []core.SimulationResult)

// Engine runs focus group sessions.
type Engine struct {
	dispatcher       Dispatcher
	counter          *tokens.Counter
	historyWindow    int
	maxHistoryTokens int
	snippetLen       int
	maxTokens        int
	roundDelay       time.Duration
	logger           *slog.Logger
	tracer           trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistoryWindow sets how many committed lines an agent is shown.
func WithHistoryWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyWindow = n
		}
	}
}

// WithHistoryTokens caps the token size of the transcript in a prompt.
func WithHistoryTokens(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxHistoryTokens = n
		}
	}
}

// WithSnippetLength sets how much of the previous line anti-echo quotes.
func WithSnippetLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.snippetLen = n
		}
	}
}

// WithMaxTokens sets the completion budget per turn.
func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithRoundDelay pauses between rounds.
func WithRoundDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.roundDelay = d
	}
}

// WithCounter sets the token counter.
func WithCounter(c *tokens.Counter) Option {
	return func(e *Engine) {
		if c != nil {
			e.counter = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine that prompts agents through d.
func New(d Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		dispatcher:       d,
		historyWindow:    DefaultHistoryWindow,
		maxHistoryTokens: DefaultMaxHistoryTokens,
		snippetLen:       DefaultSnippetLength,
		maxTokens:        DefaultMaxTokens,
		logger:           slog.Default(),
		tracer:           otel.Tracer("github.com/alienxp03/oraculum/internal/debate"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.counter == nil {
		e.counter = tokens.Default()
	}
	return e
}

// Run executes every round of s and returns all results in round order.
// Failed turns are returned as error-flagged results and do not stop the
// session. If ctx ends between rounds, the results so far are returned
// with the context error.
func (e *Engine) Run(ctx context.Context, s Session, emit RoundFunc) ([]core.SimulationResult, error) {
	if len(s.Agents) == 0 {
		return nil, errors.New("focus group has no agents")
	}
	rounds := s.Rounds
	if rounds <= 0 {
		rounds = DefaultRounds
	}

	ctx, span := e.tracer.Start(ctx, "debate.session", trace.WithAttributes(
		attribute.Int("debate.agents", len(s.Agents)),
		attribute.Int("debate.rounds", rounds),
	))
	defer span.End()

	board := NewBlackboard()
	agents := pool.New(s.Agents)
	collected := pool.NewCollector()

	for round := 1; round <= rounds; round++ {
		if round > 1 && e.roundDelay > 0 {
			select {
			case <-time.After(e.roundDelay):
			case <-ctx.Done():
			}
		}
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "session interrupted")
			return collected.Results(), err
		}

		results, err := e.runRound(ctx, board, agents, s, round, rounds)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return collected.Results(), err
		}
		collected.Add(results...)
		if emit != nil {
			emit(round, rounds, results)
		}
	}
	return collected.Results(), nil
}

func (e *Engine) runRound(ctx context.Context, board *Blackboard, agents *pool.Pool, s Session, round, total int) ([]core.SimulationResult, error) {
	phase := PhaseFor(round, total)
	ctx, span := e.tracer.Start(ctx, "debate.round", trace.WithAttributes(
		attribute.Int("debate.round", round),
		attribute.String("debate.phase", phase.Name),
	))
	defer span.End()

	snap := board.Snapshot()
	history := e.history(snap)

	last, _ := snap.Last()
	antiEcho := AntiEchoDirective(last.Content, e.snippetLen)

	advocateID := -1
	if phase.Conflict {
		if a, ok := DevilsAdvocate(agents.Agents()); ok {
			advocateID = a.ID
			span.SetAttributes(attribute.Int("debate.devils_advocate", a.ID))
		}
	}

	jobs := make([]dispatch.PromptJob, agents.Len())
	for i, agent := range agents.Agents() {
		data := turnData{
			Agent:       agent,
			Topic:       s.Topic,
			History:     history,
			Phase:       phase.Name,
			Round:       round,
			Total:       total,
			Instruction: phase.Instruction(agent),
			AntiEcho:    antiEcho,
		}
		if agent.ID == advocateID {
			data.Instruction = devilsAdvocateInstruction
			data.Objective = devilsAdvocateObjective
		}
		prompt, err := renderTurn(data)
		if err != nil {
			return nil, err
		}
		jobs[i] = dispatch.PromptJob{
			Key:         agent.ID,
			Agent:       agent,
			Scenario:    core.ScenarioFocusGroup,
			Phase:       phase.Name,
			Round:       round,
			Category:    fmt.Sprintf("Round %d", round),
			Prompt:      prompt,
			MaxTokens:   e.maxTokens,
			Temperature: phase.Temperature,
			Image:       s.Image,
			PDF:         s.PDF,
		}
	}

	e.logger.Info("Starting focus group round", "round", round, "phase", phase.Name, "agents", len(jobs))
	batch := e.dispatcher.Dispatch(ctx, jobs)

	results := make([]core.SimulationResult, len(batch))
	lines := make([]Line, 0, len(batch))
	for i, r := range batch {
		results[i] = r.Result
		if r.Err != nil || r.Result.Failed() {
			continue
		}
		lines = append(lines, Line{
			AgentID:   r.Result.AgentID,
			AgentName: r.Result.AgentName,
			Role:      r.Result.AgentRole,
			Phase:     phase.Name,
			Content:   r.Result.Response,
		})
	}

	if err := board.Commit(round, lines); err != nil {
		return nil, fmt.Errorf("failed to commit round %d: %w", round, err)
	}
	span.SetAttributes(attribute.Int("debate.committed", len(lines)))
	if failed := len(batch) - len(lines); failed > 0 {
		e.logger.Warn("Focus group round had failed turns", "round", round, "failed", failed)
	}
	return results, nil
}

// history renders the visible part of snap, newest lines last, bounded by
// the history window and token budget.
func (e *Engine) history(snap Snapshot) []string {
	window := snap.Window(e.historyWindow)
	out := make([]string, len(window))
	for i, l := range window {
		out[i] = historyLine(l)
	}
	return e.counter.FitTail(out, e.maxHistoryTokens)
}

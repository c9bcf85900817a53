// Package registry tracks simulation jobs in memory.
//
// Each job has its own lock: the orchestrator for a job is its only writer
// and pollers receive deep copies, never a partially written record.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alienxp03/oraculum/internal/core"
	"github.com/alienxp03/oraculum/internal/dispatch"
)

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrExists is returned when creating a job id twice.
	ErrExists = errors.New("job already exists")
	// ErrFinalized is returned when updating a completed or failed job.
	ErrFinalized = errors.New("job already finalized")
)

type entry struct {
	mu  sync.RWMutex
	job *core.Job
}

// Registry is a concurrent store of job records.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*entry
	now  func() time.Time
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		jobs: make(map[string]*entry),
		now:  time.Now,
	}
}

// Create registers a new processing job.
func (r *Registry) Create(id, scenario, product string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; ok {
		return fmt.Errorf("%w: %s", ErrExists, id)
	}
	now := r.now()
	r.jobs[id] = &entry{job: &core.Job{
		ID:        id,
		Status:    core.StatusProcessing,
		Scenario:  scenario,
		Product:   product,
		Agents:    []core.Agent{},
		Results:   []core.SimulationResult{},
		CreatedAt: now,
		UpdatedAt: now,
	}}
	return nil
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Update applies fn to the job under its write lock. The mutation is
// discarded if fn returns an error. Progress is clamped to [0,1] and never
// moves backwards; terminal jobs cannot be updated.
func (r *Registry) Update(id string, fn func(*core.Job) error) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrFinalized, id)
	}

	draft := e.job.Clone()
	if err := fn(draft); err != nil {
		return err
	}

	draft.ID = e.job.ID
	draft.CreatedAt = e.job.CreatedAt
	draft.Progress = clamp(draft.Progress)
	if draft.Progress < e.job.Progress {
		draft.Progress = e.job.Progress
	}
	draft.UpdatedAt = r.now()
	if draft.Status.IsTerminal() && draft.CompletedAt == nil {
		t := draft.UpdatedAt
		draft.CompletedAt = &t
	}
	e.job = draft
	return nil
}

// Get returns a deep copy of the job.
func (r *Registry) Get(id string) (*core.Job, bool) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.job.Clone(), true
}

// List returns summaries of all jobs, newest first.
func (r *Registry) List() []core.JobSummary {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.jobs))
	for _, e := range r.jobs {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]core.JobSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		out = append(out, e.job.Summary())
		e.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// SetAgents replaces the job's agents.
func (r *Registry) SetAgents(id string, agents []core.Agent) error {
	return r.Update(id, func(j *core.Job) error {
		j.Agents = make([]core.Agent, len(agents))
		for i, a := range agents {
			j.Agents[i] = a.Clone()
		}
		return nil
	})
}

// RecordResults appends results, updates each speaking agent's response
// count and running average sentiment, and advances progress.
func (r *Registry) RecordResults(id string, results []core.SimulationResult, progress float64) error {
	return r.Update(id, func(j *core.Job) error {
		index := make(map[int]int, len(j.Agents))
		for i, a := range j.Agents {
			index[a.ID] = i
		}
		for _, res := range results {
			j.Results = append(j.Results, res)
			if res.Failed() {
				continue
			}
			i, ok := index[res.AgentID]
			if !ok {
				continue
			}
			a := &j.Agents[i]
			score := dispatch.SentimentScore(res.Sentiment)
			a.AvgSentiment = (a.AvgSentiment*float64(a.ResponseCount) + score) / float64(a.ResponseCount+1)
			a.ResponseCount++
		}
		j.Progress = progress
		return nil
	})
}

// SetProgress advances the job's progress.
func (r *Registry) SetProgress(id string, progress float64) error {
	return r.Update(id, func(j *core.Job) error {
		j.Progress = progress
		return nil
	})
}

// Complete marks the job completed with full progress.
func (r *Registry) Complete(id string) error {
	return r.Update(id, func(j *core.Job) error {
		j.Status = core.StatusCompleted
		j.Progress = 1.0
		return nil
	})
}

// Fail marks the job failed.
func (r *Registry) Fail(id string, cause error) error {
	return r.Update(id, func(j *core.Job) error {
		j.Status = core.StatusFailed
		if cause != nil {
			j.Error = cause.Error()
		}
		return nil
	})
}

// Len returns the number of jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

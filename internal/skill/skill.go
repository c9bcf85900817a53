// Package skill provides the capabilities an agent can use to gather
// material before it speaks.
package skill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Skill names.
const (
	DeepResearch = "deep_research"
	FactCheck    = "fact_check"
	WebScout     = "web_scout"
)

// ErrNoData is returned when a skill ran but found nothing useful.
var ErrNoData = errors.New("no data found")

// Input is what an agent hands to a skill.
type Input struct {
	Query   string // product context
	Context string // agent demographic
}

// Output is the material a skill acquired.
type Output struct {
	Data   string
	Source string
}

// Skill is one capability an agent may invoke.
type Skill interface {
	Name() string
	Description() string
	Execute(ctx context.Context, in Input) (Output, error)
}

// Backend is the part of the inference gateway skills rely on.
type Backend interface {
	LookupFacts(ctx context.Context, query string) (string, error)
	QueryMemory(ctx context.Context, query string) ([]string, error)
}

// Registry maps skill names to implementations.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

// Defaults returns a registry with the built-in skills. scout may be nil
// when no crawler service is configured.
func Defaults(backend Backend, scout *Scout) *Registry {
	r := NewRegistry()
	r.Register(&deepResearch{backend: backend})
	r.Register(&factCheck{backend: backend})
	if scout != nil {
		r.Register(scout)
	}
	return r
}

// Register adds s, replacing any skill with the same name.
func (r *Registry) Register(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.Name()] = s
}

// Get looks up a skill by name.
func (r *Registry) Get(name string) (Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	if !ok {
		return nil, fmt.Errorf("skill not found: %s", name)
	}
	return s, nil
}

// Names returns the registered skill names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type deepResearch struct {
	backend Backend
}

func (*deepResearch) Name() string { return DeepResearch }

func (*deepResearch) Description() string {
	return "Queries the research memory for consumer discussions"
}

func (s *deepResearch) Execute(ctx context.Context, in Input) (Output, error) {
	hits, err := s.backend.QueryMemory(ctx, in.Query)
	if err != nil {
		return Output{}, fmt.Errorf("failed to query memory: %w", err)
	}
	if len(hits) == 0 {
		return Output{}, ErrNoData
	}
	return Output{Data: strings.Join(hits, "\n\n"), Source: "memory"}, nil
}

type factCheck struct {
	backend Backend
}

func (*factCheck) Name() string { return FactCheck }

func (*factCheck) Description() string {
	return "Verifies product specifications"
}

func (s *factCheck) Execute(ctx context.Context, in Input) (Output, error) {
	facts, err := s.backend.LookupFacts(ctx, in.Query)
	if err != nil {
		return Output{}, fmt.Errorf("failed to look up facts: %w", err)
	}
	if strings.TrimSpace(facts) == "" || strings.Contains(facts, "No structured data") {
		return Output{}, ErrNoData
	}
	return Output{Data: facts, Source: "fact_sheet"}, nil
}

// Package pool holds the agents of one simulation job and collects their results.
package pool

import (
	"sync"

	"github.com/alienxp03/oraculum/internal/core"
)

// Pool is an immutable snapshot of the agents taking part in a job.
type Pool struct {
	agents []core.Agent
	byID   map[int]int
}

// New copies agents into a pool. Later changes to the input are not observed.
func New(agents []core.Agent) *Pool {
	p := &Pool{
		agents: make([]core.Agent, len(agents)),
		byID:   make(map[int]int, len(agents)),
	}
	for i, a := range agents {
		p.agents[i] = a.Clone()
		p.byID[a.ID] = i
	}
	return p
}

// Agents returns a copy of the agents in submission order.
func (p *Pool) Agents() []core.Agent {
	out := make([]core.Agent, len(p.agents))
	for i, a := range p.agents {
		out[i] = a.Clone()
	}
	return out
}

// Agent looks up an agent by id.
func (p *Pool) Agent(id int) (core.Agent, bool) {
	i, ok := p.byID[id]
	if !ok {
		return core.Agent{}, false
	}
	return p.agents[i].Clone(), true
}

// Len returns the number of agents.
func (p *Pool) Len() int {
	return len(p.agents)
}

// Collector is a concurrency-safe, append-only result log.
type Collector struct {
	mu      sync.RWMutex
	results []core.SimulationResult
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add appends results in the given order.
func (c *Collector) Add(results ...core.SimulationResult) {
	if len(results) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, results...)
}

// Results returns a copy of everything collected so far.
func (c *Collector) Results() []core.SimulationResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]core.SimulationResult(nil), c.results...)
}

// Len returns the number of results collected.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

package debate

import (
	"fmt"
	"unicode/utf8"

	"github.com/alienxp03/oraculum/internal/core"
)

// Phase names.
const (
	PhaseInitial  = "Initial Reactions"
	PhaseConflict = "The Debate (Conflict)"
	PhaseVerdict  = "Final Verdict"
)

// DefaultSnippetLength is how many runes of the previous line an anti-echo
// directive quotes.
const DefaultSnippetLength = 60

const (
	devilsAdvocateInstruction = "Review the chat history. Pick the most popular opinion and dismantle it."
	devilsAdvocateObjective   = "SECRET OBJECTIVE: You are the designated Devil's Advocate. " +
		"Even if you like the product, you MUST find a flaw. " +
		"Attack the consensus. Call out others for being too naive."
	originalityDirective = "CONSTRAINT: Start the conversation with a strong, unique opinion."
)

// Phase describes how one round is run.
type Phase struct {
	Name        string
	Temperature float64
	Conflict    bool // a devil's advocate is appointed
}

// PhaseFor returns the phase of round out of total rounds. The first round
// gathers reactions, the last asks for a verdict and every round between is
// a conflict round.
func PhaseFor(round, total int) Phase {
	switch {
	case round <= 1:
		return Phase{Name: PhaseInitial, Temperature: 0.6}
	case round >= total:
		return Phase{Name: PhaseVerdict, Temperature: 0.3}
	default:
		return Phase{Name: PhaseConflict, Temperature: 0.9, Conflict: true}
	}
}

// Instruction returns the public order for agent in this phase.
func (p Phase) Instruction(agent core.Agent) string {
	switch p.Name {
	case PhaseInitial:
		return fmt.Sprintf("Give your immediate reaction based on your '%s' skepticism. Be honest.", agent.Skepticism)
	case PhaseConflict:
		return "Look at the arguments so far. Pick a side (Defend or Attack). Do not be neutral."
	default:
		return "Give your final verdict. Yes or No? Be decisive."
	}
}

// DevilsAdvocate picks the agent with the highest skepticism, breaking ties
// by the lowest id. It reports false for an empty group.
func DevilsAdvocate(agents []core.Agent) (core.Agent, bool) {
	if len(agents) == 0 {
		return core.Agent{}, false
	}
	best := agents[0]
	for _, a := range agents[1:] {
		rank, bestRank := a.Skepticism.Rank(), best.Skepticism.Rank()
		if rank > bestRank || (rank == bestRank && a.ID < best.ID) {
			best = a
		}
	}
	return best, true
}

// AntiEchoDirective forbids repeating last. An empty statement yields the
// originality directive.
func AntiEchoDirective(last string, snippetLen int) string {
	if last == "" {
		return originalityDirective
	}
	if snippetLen <= 0 {
		snippetLen = DefaultSnippetLength
	}
	return fmt.Sprintf("CONSTRAINT: Do NOT repeat or paraphrase \"%s...\". Add a NEW perspective.", snippet(last, snippetLen))
}

func snippet(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

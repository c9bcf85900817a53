package skill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alienxp03/oraculum/internal/dispatch"
)

// Runner executes an agent's skills before its prompt is posted and
// appends whatever they found. It implements dispatch.Preparer.
type Runner struct {
	registry *Registry
	query    string
	logger   *slog.Logger
}

// NewRunner creates a runner that hands query to every skill.
func NewRunner(r *Registry, query string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{registry: r, query: query, logger: logger}
}

// Prepare runs the agent's skills in order. Failed or unknown skills are
// logged and skipped.
func (r *Runner) Prepare(ctx context.Context, job dispatch.PromptJob) (string, string) {
	var acquired strings.Builder
	for _, name := range job.Agent.Skills {
		s, err := r.registry.Get(name)
		if err != nil {
			r.logger.Debug("Agent has unregistered skill", "agent", job.Agent.Name, "skill", name)
			continue
		}
		out, err := s.Execute(ctx, Input{Query: r.query, Context: job.Agent.Demographic})
		if err != nil {
			r.logger.Warn("Skill failed", "agent", job.Agent.Name, "skill", name, "error", err)
			continue
		}
		fmt.Fprintf(&acquired, "\n### SENSORY OBSERVATION (Source: %s)\n%s\n", strings.ToUpper(name), out.Data)
	}

	if acquired.Len() == 0 {
		return job.Prompt, ""
	}
	knowledge := acquired.String()
	prompt := job.Prompt + "\n\n=== REAL-WORLD CONTEXT ACQUIRED ===\n" + knowledge +
		"\n===================================\nUse the facts above to answer accurately.\n"
	return prompt, knowledge
}

package core

import (
	"fmt"
	"strings"
)

// ParseAgentSpec parses an agent specification string.
// Format: name[:role[:skepticism]]
//
// Examples:
//   - "Priya" -> {Name: "Priya", Role: "Consumer", Skepticism: Medium}
//   - "Priya:Engineer" -> {Name: "Priya", Role: "Engineer", Skepticism: Medium}
//   - "Priya:Engineer:High" -> {Name: "Priya", Role: "Engineer", Skepticism: High}
func ParseAgentSpec(spec string) (Agent, error) {
	if strings.TrimSpace(spec) == "" {
		return Agent{}, fmt.Errorf("agent spec cannot be empty")
	}

	parts := strings.SplitN(spec, ":", 3)
	a := Agent{
		Name:          strings.TrimSpace(parts[0]),
		Role:          "Consumer",
		SpeakingStyle: "Neutral",
		Skepticism:    SkepticismMedium,
		AvgSentiment:  0.5,
	}
	if a.Name == "" {
		return Agent{}, fmt.Errorf("name cannot be empty in spec: %s", spec)
	}
	if len(parts) >= 2 && strings.TrimSpace(parts[1]) != "" {
		a.Role = strings.TrimSpace(parts[1])
	}
	if len(parts) == 3 {
		a.Skepticism = ParseSkepticism(parts[2])
	}

	return a, nil
}

// ParseAgentSpecs parses a comma-separated list of agent specifications
// and assigns sequential ids starting at 1.
func ParseAgentSpecs(specsStr string) ([]Agent, error) {
	if specsStr == "" {
		return nil, fmt.Errorf("agent specs cannot be empty")
	}

	specs := strings.Split(specsStr, ",")
	agents := make([]Agent, 0, len(specs))

	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}

		agent, err := ParseAgentSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid agent spec '%s': %w", spec, err)
		}
		agent.ID = len(agents) + 1
		agents = append(agents, agent)
	}

	if len(agents) == 0 {
		return nil, fmt.Errorf("no valid agent specs found")
	}

	return agents, nil
}

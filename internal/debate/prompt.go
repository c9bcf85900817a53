package debate

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/alienxp03/oraculum/internal/core"
)

var turnTemplate = template.Must(template.New("turn").Parse(`Roleplay as a participant in a market research focus group.

--- IDENTITY ---
Name: {{.Agent.Name}}
Role: {{.Agent.Role}} ({{.Agent.Demographic}})
Traits: Style='{{.Agent.SpeakingStyle}}', Skepticism='{{.Agent.Skepticism}}'

--- ROOM CONTEXT ---
Topic: {{.Topic}}
History:
{{if .History}}{{range .History}}{{.}}
{{end}}{{else}}No conversation yet.
{{end}}
--- YOUR ORDERS ---
Phase: {{.Phase}}
Round: {{.Round}} of {{.Total}}
{{.Instruction}}
{{- if .Objective}}
{{.Objective}}{{end}}

{{.AntiEcho}}

MANDATORY RESPONSE FORMAT:
[Thinking]
(Write your internal monologue here. Analyze if the previous speaker is wrong.)
[Verdict]
(Write your spoken response here. Keep it natural and under 2 sentences.)

Response:`))

type turnData struct {
	Agent       core.Agent
	Topic       string
	History     []string
	Phase       string
	Round       int
	Total       int
	Instruction string
	Objective   string
	AntiEcho    string
}

func renderTurn(data turnData) (string, error) {
	var buf bytes.Buffer
	if err := turnTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render turn prompt: %w", err)
	}
	return buf.String(), nil
}

func historyLine(l Line) string {
	return fmt.Sprintf("%s: %q", l.AgentName, l.Content)
}

// SummaryMaxTokens is the token budget for an executive summary.
const SummaryMaxTokens = 1024

// SummaryPrompt builds the executive-summary request for a finished focus
// group. Failed turns are left out of the transcript.
func SummaryPrompt(topic string, results []core.SimulationResult) string {
	var transcript strings.Builder
	for _, r := range results {
		if r.Failed() {
			continue
		}
		fmt.Fprintf(&transcript, "[%s] %s: %q\n", r.Phase, r.AgentRole, r.Response)
	}

	return fmt.Sprintf(`You are the Lead Market Research Analyst for Oraculum. Review the following focus group transcript regarding '%s'.

--- TRANSCRIPT START ---
%s
--- TRANSCRIPT END ---

TASK: Write a strategic Executive Summary.
REQUIREMENTS: Consensus Score (0-100%%), Key Themes, Controversies, and 3 Actionable Insights.`, topic, transcript.String())
}

package simulation

import (
	"fmt"
	"strings"

	"github.com/alienxp03/oraculum/internal/core"
)

// Analyst report settings.
const (
	ReportMaxTokens      = 1500
	ReportTemperature    = 0.4
	maxTranscriptEntries = 60
)

type analystBrief struct {
	role      string
	questions string
}

var analystBriefs = map[string]analystBrief{
	core.ScenarioProductLaunch: {
		role: "Product Strategy Consultant",
		questions: "1. **The 'Say-Do' Gap**: Did participants secretly dislike something but say they liked it? Check the Hidden Thoughts.\n" +
			"2. **Price Sensitivity**: What were the internal reasonings regarding money?\n" +
			"3. **Adoption Blocker**: What is the #1 psychological barrier to buying?",
	},
	core.ScenarioCreativeTest: {
		role: "Creative Director",
		questions: "1. **Attention Hook**: Which specific words in the copy triggered an internal reaction?\n" +
			"2. **Emotional Resonance**: Did they feel 'sold to' or 'understood'?\n" +
			"3. **Winner**: Which option feels more authentic?",
	},
	core.ScenarioABMessaging: {
		role: "Brand Strategist",
		questions: "1. **Trust Analysis**: Which message generated less skeptical internal thoughts?\n" +
			"2. **Clarity**: Was there confusion in the internal monologue?\n" +
			"3. **Recommendation**: Which value prop is stronger?",
	},
	core.ScenarioCXFlow: {
		role: "UX Researcher",
		questions: "1. **Friction Points**: Where did the internal monologue show frustration?\n" +
			"2. **Impulse vs Logic**: Did they buy on impulse or calculation?\n" +
			"3. **Fixes**: Top 3 UX improvements.",
	},
}

var defaultBrief = analystBrief{
	role: "Data Analyst",
	questions: "1. **Psychological Trends**: What are the common internal drivers?\n" +
		"2. **Contradictions**: Highlight instances where thoughts contradicted words.\n" +
		"3. **Verdict**: Final strategic recommendation.",
}

// ReportPrompt builds the management report prompt for a single-pass
// scenario. Only the first 60 results are quoted; the headline numbers
// cover all of them.
func ReportPrompt(scenario string, results []core.SimulationResult) string {
	brief, ok := analystBriefs[scenario]
	if !ok {
		brief = defaultBrief
	}

	total := len(results)
	positive := 0
	for _, r := range results {
		if r.Sentiment == core.SentimentPositive {
			positive++
		}
	}
	var score float64
	if total > 0 {
		score = float64(positive) / float64(total) * 100
	}

	var transcript strings.Builder
	for i, r := range results {
		if i == maxTranscriptEntries {
			break
		}
		thought := "No internal thought captured"
		if r.Thought != nil {
			thought = *r.Thought
		}
		fmt.Fprintf(&transcript, "- Participant: %s (%s)\n  HIDDEN THOUGHT: %s\n  PUBLIC VERDICT: \"%s\"\n\n",
			r.AgentRole, r.AgentDemographic, thought, r.Response)
	}

	return fmt.Sprintf(`You are an expert %s.
Analyze the following synthetic research data (N=%d Participants, Sentiment: %.1f%% Positive).

--- ROOM CONTEXT ---
Topic: %s Analysis

--- RAW DATA (TRANSCRIPT WITH HIDDEN THOUGHTS) ---
%s
--- END DATA ---

TASK: Generate a Management Report in Markdown.
CRITICAL: Focus on the 'HIDDEN THOUGHTS' to find true consumer intent.
%s

Output Format:
## Executive Summary
## The Psychological Profile (Deep Dive)
## Key Findings
## Strategic Recommendations
(Be concise, professional, and use bullet points)`, brief.role, total, score, scenario, transcript.String(), brief.questions)
}

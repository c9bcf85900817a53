package dispatch

import (
	"strings"

	"github.com/alienxp03/oraculum/internal/core"
)

type rule struct {
	tag      string
	keywords []string
}

// First matching rule wins.
var sentimentRules = []rule{
	{core.SentimentPositive, []string{"love", "great", "amazing", "perfect", "excellent", "definitely"}},
	{core.SentimentNegative, []string{"bad", "terrible", "hate", "awful", "dislike"}},
	{core.SentimentNeutral, []string{"maybe", "could", "depends", "interesting"}},
}

type categoryTable struct {
	rules    []rule
	fallback string
}

var categoryTables = map[string]categoryTable{
	core.ScenarioProductLaunch: {
		rules: []rule{
			{"intent_to_buy", []string{"buy", "purchase"}},
			{"quality_focused", []string{"healthy", "quality"}},
			{"price_sensitive", []string{"price", "cost"}},
		},
		fallback: "intrigued",
	},
	core.ScenarioCreativeTest: {
		rules: []rule{
			{"option_b_preference", []string{"second", "option b"}},
			{"option_a_preference", []string{"first", "option a"}},
		},
		fallback: "unclear_preference",
	},
	core.ScenarioCXFlow: {
		rules: []rule{
			{"converted", []string{"buy", "cart"}},
			{"considering", []string{"consider", "check"}},
		},
		fallback: "aware",
	},
	core.ScenarioABMessaging: {
		rules: []rule{
			{"value_resonance", []string{"affordable", "value"}},
			{"premium_resonance", []string{"premium", "indulgent"}},
		},
		fallback: "neutral_resonance",
	},
	core.ScenarioPersonaGeneration: {
		fallback: "persona_data",
	},
}

func match(rules []rule, text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.tag, true
			}
		}
	}
	return "", false
}

// ClassifySentiment tags text as positive, negative, neutral or mixed.
func ClassifySentiment(text string) string {
	if tag, ok := match(sentimentRules, text); ok {
		return tag
	}
	return core.SentimentMixed
}

// ClassifyCategory applies the scenario's keyword table to text.
// Scenarios without a table are "general".
func ClassifyCategory(scenario, text string) string {
	table, ok := categoryTables[scenario]
	if !ok {
		return "general"
	}
	if tag, ok := match(table.rules, text); ok {
		return tag
	}
	return table.fallback
}

// SentimentScore maps a sentiment tag onto [0,1] for rolling averages.
func SentimentScore(tag string) float64 {
	switch tag {
	case core.SentimentPositive:
		return 1
	case core.SentimentNegative:
		return 0
	default:
		return 0.5
	}
}

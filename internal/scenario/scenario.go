// Package scenario renders the single-pass prompts for each scenario type.
package scenario

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/alienxp03/oraculum/internal/core"
)

// Completion settings for single-pass scenarios.
const (
	MaxTokens   = 800
	Temperature = 0.7
)

// Scenario produces one prompt per agent.
type Scenario interface {
	Key() string
	Name() string
	Prompt(agent core.Agent) (string, error)
}

// ForRequest builds the scenario for a submission around brief, the
// enriched product context. Unknown keys run a product launch.
func ForRequest(req core.SimulationRequest, brief string) Scenario {
	switch req.Scenario {
	case core.ScenarioCreativeTest:
		a, b := req.OptionA, req.OptionB
		if a == "" {
			a = req.ProductName
		}
		if b == "" {
			b = req.Context
		}
		return &CreativeTest{OptionA: a, OptionB: b, Context: brief}
	case core.ScenarioABMessaging:
		a, b := req.OptionA, req.OptionB
		if a == "" {
			a = req.ProductName
		}
		if b == "" {
			b = req.Context
		}
		return &ABMessaging{StrategyA: a, StrategyB: b, Brand: req.ProductName, Context: brief}
	case core.ScenarioCXFlow:
		stage := req.Stage
		if stage == "" {
			stage = StageConsideration
		}
		return &CXFlow{Stage: stage, ProductInfo: req.ProductName + " - " + brief}
	default:
		return &ProductLaunch{Product: req.ProductName, Category: "Consumer Product", Benefits: []string{brief}}
	}
}

type promptData struct {
	Agent   core.Agent
	Beliefs string
	Extra   map[string]string
}

func render(t *template.Template, agent core.Agent, extra map[string]string) (string, error) {
	var buf bytes.Buffer
	data := promptData{Agent: agent, Beliefs: strings.Join(agent.Beliefs, ", "), Extra: extra}
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

var productLaunchTemplate = template.Must(template.New(core.ScenarioProductLaunch).Parse(`You are {{.Agent.Name}}, a {{.Agent.Role}}.
DEMOGRAPHICS: {{.Agent.Demographic}}
PERSONALITY: You have a '{{.Agent.SpeakingStyle}}' speaking style. Your skepticism level is '{{.Agent.Skepticism}}'.
BELIEFS: {{.Beliefs}}

--- ROOM CONTEXT ---
Topic: {{.Extra.product}} (Product Launch)
MARKET CONTEXT: You are shopping for {{.Extra.category}} and discover a new product: '{{.Extra.product}}'.
KEY BENEFITS PROMISING: {{.Extra.benefits}}
{{.Extra.task}}
INSTRUCTIONS:
1. [Thinking]: First, analyze if this fits your budget and daily routine. BE CRITICAL. {{.Extra.tone}}
2. [Verdict]: Give your final answer. Would you buy it? (Yes/No/Maybe) and why. Use your defined speaking style ('{{.Agent.SpeakingStyle}}').

MANDATORY RESPONSE FORMAT (Strictly follow this):
[Thinking]
(Your private analysis.)
[Verdict]
(Your spoken answer.)

Response:`))

// ProductLaunch measures purchase intent and price sensitivity.
type ProductLaunch struct {
	Product  string
	Category string
	Benefits []string
}

func (*ProductLaunch) Key() string  { return core.ScenarioProductLaunch }
func (*ProductLaunch) Name() string { return "Product Launch Test" }

// Prompt tailors the task to the agent's skepticism.
func (s *ProductLaunch) Prompt(agent core.Agent) (string, error) {
	var task, tone string
	switch agent.Skepticism {
	case core.SkepticismHigh:
		task = "TASK: Look for the catch. Why might this product fail? Be cynical regarding the price and claims."
		tone = "INSTRUCTION: Do NOT be polite. If you think it's marketing fluff, say it. Use short, blunt sentences."
	case core.SkepticismLow:
		task = "TASK: Imagine how this improves your life. Get excited about the benefits."
		tone = "INSTRUCTION: Be enthusiastic. Focus on the positive vibes and how it fits your style."
	default:
		task = "TASK: Evaluate this product based on your specific lifestyle and budget."
		tone = "INSTRUCTION: Weigh the pros and cons logically. Be balanced but decisive."
	}
	return render(productLaunchTemplate, agent, map[string]string{
		"product":  s.Product,
		"category": s.Category,
		"benefits": strings.Join(s.Benefits, ", "),
		"task":     task,
		"tone":     tone,
	})
}

var creativeTestTemplate = template.Must(template.New(core.ScenarioCreativeTest).Parse(`You are {{.Agent.Name}}, a {{.Agent.Role}}. ({{.Agent.Demographic}})
PERSONALITY: Style: '{{.Agent.SpeakingStyle}}', Skepticism: '{{.Agent.Skepticism}}'.

--- ROOM CONTEXT ---
Topic: {{.Extra.context}} (Creative Test)
OPTION A: "{{.Extra.a}}"
OPTION B: "{{.Extra.b}}"
TASK: Which headline captures your attention more? Consider your personal beliefs: {{.Beliefs}}.
INSTRUCTIONS:
1. [Thinking]: Compare both options. Which feels more authentic to you? Which feels 'salesy'?
2. [Verdict]: State clearly which option wins and the main reason. Speak in your natural voice.

MANDATORY RESPONSE FORMAT:
[Thinking]
(Compare the options.)
[Verdict]
(Option A or Option B, and why.)

Response:`))

// CreativeTest compares two pieces of ad copy.
type CreativeTest struct {
	OptionA string
	OptionB string
	Context string
}

func (*CreativeTest) Key() string  { return core.ScenarioCreativeTest }
func (*CreativeTest) Name() string { return "Creative Testing" }

func (s *CreativeTest) Prompt(agent core.Agent) (string, error) {
	return render(creativeTestTemplate, agent, map[string]string{
		"a":       s.OptionA,
		"b":       s.OptionB,
		"context": s.Context,
	})
}

// Funnel stages for CXFlow.
const (
	StageAwareness     = "awareness"
	StageConsideration = "consideration"
	StagePurchase      = "purchase"
	StageAdvocacy      = "advocacy"
)

var stageContexts = map[string]string{
	StageAwareness:     "You are scrolling through Instagram/YouTube and see an ad. You have 3 seconds of attention span.",
	StageConsideration: "You are interested and looking at the product details/ingredients list on a Quick Commerce app.",
	StagePurchase:      "You are at the checkout screen looking at the final price including delivery fees.",
	StageAdvocacy:      "You have just eaten/used the product. A friend asks you if it was good.",
}

var cxFlowTemplate = template.Must(template.New(core.ScenarioCXFlow).Parse(`You are {{.Agent.Name}}, a {{.Agent.Role}}. ({{.Agent.Demographic}})
PERSONALITY: Style: '{{.Agent.SpeakingStyle}}', Skepticism: '{{.Agent.Skepticism}}'.

--- ROOM CONTEXT ---
SCENARIO: {{.Extra.stage}}
PRODUCT: {{.Extra.product}}
TASK: Be honest about your behavior. Do you click? Do you abandon cart? Do you recommend it?
INSTRUCTIONS:
1. [Thinking]: specific to your spending profile ({{.Agent.SpendingProfile}}), how do you react?
2. [Verdict]: What do you actually do next? Use your defined speaking style.

MANDATORY RESPONSE FORMAT:
[Thinking]
(Your reaction.)
[Verdict]
(What you do next.)

Response:`))

// CXFlow probes friction at one funnel stage.
type CXFlow struct {
	Stage       string
	ProductInfo string
}

func (*CXFlow) Key() string  { return core.ScenarioCXFlow }
func (*CXFlow) Name() string { return "Customer Journey Flow" }

func (s *CXFlow) Prompt(agent core.Agent) (string, error) {
	stage, ok := stageContexts[s.Stage]
	if !ok {
		stage = "You encounter this product in your daily life."
	}
	return render(cxFlowTemplate, agent, map[string]string{
		"stage":   stage,
		"product": s.ProductInfo,
	})
}

var abMessagingTemplate = template.Must(template.New(core.ScenarioABMessaging).Parse(`You are {{.Agent.Name}}, a {{.Agent.Role}}. ({{.Agent.Demographic}})
PERSONALITY: Style: '{{.Agent.SpeakingStyle}}', Skepticism: '{{.Agent.Skepticism}}'.

--- ROOM CONTEXT ---
Brand: {{.Extra.brand}}
{{if .Extra.context}}{{.Extra.context}}
{{end}}We are trying to decide how to position this product to people like you.
STRATEGY A: {{.Extra.a}}
STRATEGY B: {{.Extra.b}}
TASK: Which argument convinces you to switch from your current brand?
INSTRUCTIONS:
1. [Thinking]: Evaluate which benefit matters more to you personally (e.g. price vs health vs status).
2. [Verdict]: Choose Strategy A or B and rate persuasiveness (1-10). Use your voice.

MANDATORY RESPONSE FORMAT:
[Thinking]
(Weigh the strategies.)
[Verdict]
(Strategy A or B with a 1-10 score.)

Response:`))

// ABMessaging tests two value propositions.
type ABMessaging struct {
	StrategyA string
	StrategyB string
	Brand     string
	Context   string
}

func (*ABMessaging) Key() string  { return core.ScenarioABMessaging }
func (*ABMessaging) Name() string { return "A/B Messaging Strategy" }

func (s *ABMessaging) Prompt(agent core.Agent) (string, error) {
	return render(abMessagingTemplate, agent, map[string]string{
		"a":       s.StrategyA,
		"b":       s.StrategyB,
		"brand":   s.Brand,
		"context": s.Context,
	})
}

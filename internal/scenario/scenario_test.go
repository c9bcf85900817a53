package scenario

import (
	"strings"
	"testing"

	"github.com/alienxp03/oraculum/internal/core"
)

func testAgent(level core.Skepticism) core.Agent {
	return core.Agent{
		ID:              1,
		Name:            "Ana Costa",
		Role:            "Student",
		Demographic:     "Lisbon, 21 y/o, Student, Budget",
		Beliefs:         []string{"Sustainability", "Budget"},
		SpendingProfile: "Budget",
		SpeakingStyle:   "Casual",
		Skepticism:      level,
	}
}

func TestForRequest(t *testing.T) {
	base := core.SimulationRequest{ProductName: "Kopi Oat", Context: "Launching in Lisbon"}

	tests := []struct {
		scenario string
		wantKey  string
	}{
		{core.ScenarioCreativeTest, core.ScenarioCreativeTest},
		{core.ScenarioABMessaging, core.ScenarioABMessaging},
		{core.ScenarioCXFlow, core.ScenarioCXFlow},
		{core.ScenarioProductLaunch, core.ScenarioProductLaunch},
		{"", core.ScenarioProductLaunch},
	}
	for _, tt := range tests {
		req := base
		req.Scenario = tt.scenario
		if got := ForRequest(req, "BRIEF").Key(); got != tt.wantKey {
			t.Errorf("ForRequest(%q) key = %q, want %q", tt.scenario, got, tt.wantKey)
		}
	}

	t.Run("VariantsFallBackToRequest", func(t *testing.T) {
		req := base
		req.Scenario = core.ScenarioCreativeTest
		s := ForRequest(req, "BRIEF").(*CreativeTest)
		if s.OptionA != "Kopi Oat" || s.OptionB != "Launching in Lisbon" {
			t.Errorf("unexpected options: %+v", s)
		}

		req.OptionA, req.OptionB = "Sip smarter", "Oat you can trust"
		s = ForRequest(req, "BRIEF").(*CreativeTest)
		if s.OptionA != "Sip smarter" || s.OptionB != "Oat you can trust" {
			t.Errorf("explicit options ignored: %+v", s)
		}
	})

	t.Run("CXFlowDefaultsToConsideration", func(t *testing.T) {
		req := base
		req.Scenario = core.ScenarioCXFlow
		s := ForRequest(req, "BRIEF").(*CXFlow)
		if s.Stage != StageConsideration || s.ProductInfo != "Kopi Oat - BRIEF" {
			t.Errorf("unexpected cx flow: %+v", s)
		}
	})
}

func TestProductLaunch_SkepticismDirectives(t *testing.T) {
	s := &ProductLaunch{Product: "Kopi Oat", Category: "Coffee", Benefits: []string{"Low sugar", "Oat milk"}}

	tests := []struct {
		name  string
		level core.Skepticism
		want  string
	}{
		{"High", core.SkepticismHigh, "Look for the catch"},
		{"Low", core.SkepticismLow, "Imagine how this improves your life"},
		{"Medium", core.SkepticismMedium, "Evaluate this product based on your specific lifestyle and budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, err := s.Prompt(testAgent(tt.level))
			if err != nil {
				t.Fatalf("prompt failed: %v", err)
			}
			if !strings.Contains(prompt, tt.want) {
				t.Errorf("expected %q in prompt:\n%s", tt.want, prompt)
			}
			if !strings.Contains(prompt, "KEY BENEFITS PROMISING: Low sugar, Oat milk") {
				t.Errorf("benefits missing:\n%s", prompt)
			}
			if !strings.Contains(prompt, "Your skepticism level is '"+tt.name+"'") {
				t.Errorf("skepticism missing:\n%s", prompt)
			}
		})
	}
}

func TestPrompts(t *testing.T) {
	agent := testAgent(core.SkepticismMedium)

	tests := []struct {
		name     string
		scenario Scenario
		want     []string
	}{
		{"CreativeTest", &CreativeTest{OptionA: "Sip smarter", OptionB: "Oat you can trust", Context: "Kopi Oat"},
			[]string{`OPTION A: "Sip smarter"`, `OPTION B: "Oat you can trust"`, "Sustainability, Budget"}},
		{"CXFlowKnownStage", &CXFlow{Stage: StagePurchase, ProductInfo: "Kopi Oat"},
			[]string{"checkout screen", "PRODUCT: Kopi Oat", "spending profile (Budget)"}},
		{"CXFlowUnknownStage", &CXFlow{Stage: "loyalty", ProductInfo: "Kopi Oat"},
			[]string{"You encounter this product in your daily life."}},
		{"ABMessaging", &ABMessaging{StrategyA: "Cheap", StrategyB: "Premium", Brand: "Kopi Oat"},
			[]string{"Brand: Kopi Oat", "STRATEGY A: Cheap", "STRATEGY B: Premium", "rate persuasiveness (1-10)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, err := tt.scenario.Prompt(agent)
			if err != nil {
				t.Fatalf("prompt failed: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(prompt, w) {
					t.Errorf("expected %q in prompt:\n%s", w, prompt)
				}
			}
			if !strings.Contains(prompt, "[Thinking]") || !strings.Contains(prompt, "[Verdict]") {
				t.Error("response format tags missing")
			}
			if !strings.HasPrefix(prompt, "You are Ana Costa, a Student.") {
				t.Errorf("identity line missing:\n%s", prompt)
			}
		})
	}
}

// Package persona synthesizes focus group participants.
package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alienxp03/oraculum/internal/core"
	"github.com/alienxp03/oraculum/internal/gateway"
	"github.com/alienxp03/oraculum/internal/skill"
)

// Generation settings.
const (
	BatchSize        = 5
	voicesPerBatch   = 3
	maxVoiceContext  = 2000
	generateTokens   = 1500
	generateTemp     = 0.8
	defaultAge       = 25
	fallbackRole     = "General Consumer"
	fallbackSpending = "Moderate"
)

// Archetype steers one batch towards a corner of the audience.
type Archetype struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
}

// Archetypes returns the diversity seeds, applied to batches in rotation.
func Archetypes() []Archetype {
	return []Archetype{
		{
			ID:          "optimists",
			Name:        "Early Adopters & Optimists",
			Instruction: "FOCUS: Early Adopters & Optimists. Use modern, urban names.",
		},
		{
			ID:          "skeptics",
			Name:        "Skeptics & Budget-Conscious",
			Instruction: "FOCUS: Skeptics & Budget-Conscious. Use traditional names.",
		},
		{
			ID:          "loyalists",
			Name:        "Quality-Conscious & Brand Loyalists",
			Instruction: "FOCUS: Quality-Conscious & Brand Loyalists. Use specific regional names.",
		},
		{
			ID:          "critics",
			Name:        "Critics & Detractors",
			Instruction: "FOCUS: Critics & Detractors. Use diverse names.",
		},
	}
}

// SkillsForRole returns the skills an agent with role gets. Analysts,
// engineers and journalists also check facts.
func SkillsForRole(role string) []string {
	r := strings.ToLower(role)
	if strings.Contains(r, "analyst") || strings.Contains(r, "engineer") || strings.Contains(r, "journalist") {
		return []string{skill.DeepResearch, skill.FactCheck}
	}
	return []string{skill.DeepResearch}
}

// Generator asks the backend to invent personas in small batches.
type Generator struct {
	completer gateway.Completer
	logger    *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(c gateway.Completer, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{completer: c, logger: logger}
}

type rawPersona struct {
	Name           string          `json:"name"`
	Age            json.RawMessage `json:"age"`
	City           string          `json:"city"`
	Occupation     string          `json:"occupation"`
	Spending       string          `json:"spending_behavior"`
	CulturalValues string          `json:"cultural_values"`
	SpeakingStyle  string          `json:"speaking_style"`
	Skepticism     string          `json:"skepticism_level"`
}

// Generate produces up to count agents matching audience, grounding each
// batch in a different slice of voices. A batch that cannot be generated
// or parsed contributes one fallback agent instead. Ids run from 1.
func (g *Generator) Generate(ctx context.Context, count int, audience string, voices []string) []core.Agent {
	agents := make([]core.Agent, 0, count)
	used := make(map[string]bool)
	nextID := 1
	batches := (count + BatchSize - 1) / BatchSize

	g.logger.Info("Generating personas", "count", count, "audience", audience, "voices", len(voices))

	for batch := 0; batch < batches && len(agents) < count; batch++ {
		prompt := g.prompt(batch, audience, voiceShard(voices, batch))
		text, err := g.completer.Complete(ctx, gateway.Request{
			Prompt:      prompt,
			MaxTokens:   generateTokens,
			Temperature: generateTemp,
		})
		if err != nil {
			g.logger.Warn("Persona batch failed, using fallback", "batch", batch, "error", err)
			agents = append(agents, Fallback(nextID, audience))
			nextID++
			continue
		}

		var raw []rawPersona
		if err := json.Unmarshal([]byte(CleanJSON(text)), &raw); err != nil {
			g.logger.Warn("Persona batch unparseable, using fallback", "batch", batch, "error", err)
			agents = append(agents, Fallback(nextID, audience))
			nextID++
			continue
		}

		for _, p := range raw {
			if len(agents) >= count {
				break
			}
			name := strings.TrimSpace(p.Name)
			if name == "" {
				name = "Agent"
			}
			if used[name] {
				name = fmt.Sprintf("%s %d", name, nextID)
			}
			used[name] = true

			agents = append(agents, build(nextID, name, p))
			nextID++
		}
	}

	if len(agents) == 0 && count > 0 {
		agents = append(agents, Fallback(nextID, audience))
	}
	g.logger.Info("Personas ready", "count", len(agents))
	return agents
}

func (g *Generator) prompt(batch int, audience, voiceContext string) string {
	seeds := Archetypes()
	seed := seeds[batch%len(seeds)]
	return fmt.Sprintf(`Task: Generate a JSON array of %d unique consumer personas matching: '%s'.

%s
DIVERSITY INSTRUCTION: %s
CRITICAL RULES:
1. USE DIVERSE NAMES: Pick names that fit the audience's region. Avoid generic placeholder names.
2. VARY THE SKEPTICISM: Not everyone agrees. Use High, Medium or Low.
3. REALISM: Use the Source Material to define their 'speaking_style'.

Format: [{ "name": "...", "age": 20, "city": "...", "occupation": "...", "spending_behavior": "...", "cultural_values": "...", "speaking_style": "...", "skepticism_level": "..." }]
Return ONLY JSON. No text.`, BatchSize, audience, voiceContext, seed.Instruction)
}

// voiceShard selects the voices for one batch, truncated to fit the
// backend's input line.
func voiceShard(voices []string, batch int) string {
	if len(voices) == 0 {
		return ""
	}
	start := (batch * voicesPerBatch) % len(voices)
	end := min((batch+1)*voicesPerBatch, len(voices))
	if start >= end {
		return ""
	}
	ctx := "SOURCE MATERIAL (Base personalities on these SPECIFIC real comments):\n" +
		strings.Join(voices[start:end], "\n---\n") + "\n\n"
	if len(ctx) > maxVoiceContext {
		ctx = truncateBytes(ctx, maxVoiceContext) + "\n...(truncated)...\n"
	}
	return ctx
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Do not split a multi-byte rune.
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}

func build(id int, name string, p rawPersona) core.Agent {
	role := orDefault(p.Occupation, "Consumer")
	city := orDefault(p.City, "Metro")
	spending := orDefault(p.Spending, fallbackSpending)
	culture := orDefault(p.CulturalValues, "Traditional")
	skepticism := core.SkepticismMedium
	if p.Skepticism != "" {
		skepticism = core.ParseSkepticism(p.Skepticism)
	}

	return core.Agent{
		ID:              id,
		Name:            name,
		Role:            role,
		Demographic:     fmt.Sprintf("%s, %dy/o, %s, %s", city, parseAge(p.Age), role, spending),
		Beliefs:         []string{culture, spending},
		SpendingProfile: spending,
		SpeakingStyle:   orDefault(p.SpeakingStyle, "Neutral"),
		Skepticism:      skepticism,
		Skills:          SkillsForRole(role),
		AvgSentiment:    0.5,
	}
}

// Fallback returns a generic participant used when generation fails.
func Fallback(id int, audience string) core.Agent {
	return core.Agent{
		ID:              id,
		Name:            fmt.Sprintf("Participant %d", id),
		Role:            fallbackRole,
		Demographic:     "Target: " + audience,
		Beliefs:         []string{},
		SpendingProfile: fallbackSpending,
		SpeakingStyle:   "Neutral",
		Skepticism:      core.SkepticismMedium,
		Skills:          []string{skill.DeepResearch},
		AvgSentiment:    0.5,
	}
}

// CleanJSON extracts the outermost JSON array from model output.
func CleanJSON(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return strings.TrimSpace(text)
	}
	out := text[start : end+1]
	out = strings.ReplaceAll(out, "```json", "")
	out = strings.ReplaceAll(out, "```", "")
	return strings.TrimSpace(out)
}

func parseAge(raw json.RawMessage) int {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		return int(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var v int
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &v); err == nil && v > 0 {
			return v
		}
	}
	return defaultAge
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

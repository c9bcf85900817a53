// Package core contains the core domain types for oraculum.
package core

import (
	"encoding/json"
	"strings"
	"time"
)

// JobStatus represents the current status of a simulation job.
type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further updates are accepted.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Skepticism is an agent's disposition towards claims.
type Skepticism int

const (
	SkepticismMedium Skepticism = iota
	SkepticismLow
	SkepticismHigh
)

// ParseSkepticism maps a label to a level. Unknown labels are Medium.
func ParseSkepticism(s string) Skepticism {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return SkepticismHigh
	case "low":
		return SkepticismLow
	default:
		return SkepticismMedium
	}
}

func (s Skepticism) String() string {
	switch s {
	case SkepticismHigh:
		return "High"
	case SkepticismLow:
		return "Low"
	default:
		return "Medium"
	}
}

// Rank orders levels so that High > Medium > Low.
func (s Skepticism) Rank() int {
	switch s {
	case SkepticismHigh:
		return 2
	case SkepticismLow:
		return 0
	default:
		return 1
	}
}

func (s Skepticism) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Skepticism) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	*s = ParseSkepticism(label)
	return nil
}

// Agent is a synthetic persona taking part in one simulation job.
type Agent struct {
	ID              int        `json:"id"`
	Name            string     `json:"name"`
	Role            string     `json:"role"`
	Demographic     string     `json:"demographic"`
	Beliefs         []string   `json:"beliefs"`
	SpendingProfile string     `json:"spending_profile,omitempty"`
	SpeakingStyle   string     `json:"speaking_style"`
	Skepticism      Skepticism `json:"skepticism_level"`
	Skills          []string   `json:"skills,omitempty"`

	// Rolling statistics, written only by the job registry.
	ResponseCount int     `json:"simulated_responses"`
	AvgSentiment  float64 `json:"avg_sentiment"`
}

// Clone returns a copy that shares no slices with a.
func (a Agent) Clone() Agent {
	c := a
	c.Beliefs = append([]string(nil), a.Beliefs...)
	c.Skills = append([]string(nil), a.Skills...)
	return c
}

// Sentiment tags assigned to results.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
	SentimentMixed    = "mixed"
)

// CategoryError marks a result whose inference call failed.
const CategoryError = "error"

// SimulationResult is one agent's answer to one prompt. Never mutated after creation.
type SimulationResult struct {
	AgentID          int       `json:"agent_id"`
	AgentName        string    `json:"agent_name"`
	AgentRole        string    `json:"agent_role"`
	AgentDemographic string    `json:"agent_demographic"`
	Scenario         string    `json:"scenario"`
	Phase            string    `json:"phase,omitempty"`
	Round            int       `json:"round,omitempty"`
	Prompt           string    `json:"prompt"`
	Response         string    `json:"response"`
	Thought          *string   `json:"thought_process,omitempty"`
	Sources          string    `json:"sources,omitempty"`
	Sentiment        string    `json:"sentiment"`
	Category         string    `json:"category"`
	Error            string    `json:"error,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Failed reports whether the result carries an inference failure.
func (r SimulationResult) Failed() bool {
	return r.Error != ""
}

// Job is the registry record of one simulation run.
type Job struct {
	ID          string             `json:"id"`
	Status      JobStatus          `json:"status"`
	Progress    float64            `json:"progress"`
	Scenario    string             `json:"scenario"`
	Product     string             `json:"product_name,omitempty"`
	Agents      []Agent            `json:"agents"`
	Results     []SimulationResult `json:"results"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	c.Agents = make([]Agent, len(j.Agents))
	for i, a := range j.Agents {
		c.Agents[i] = a.Clone()
	}
	c.Results = make([]SimulationResult, len(j.Results))
	for i, r := range j.Results {
		c.Results[i] = r
		if r.Thought != nil {
			t := *r.Thought
			c.Results[i].Thought = &t
		}
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// JobSummary is a lightweight representation for listing jobs.
type JobSummary struct {
	ID          string    `json:"id"`
	Status      JobStatus `json:"status"`
	Progress    float64   `json:"progress"`
	Scenario    string    `json:"scenario"`
	Product     string    `json:"product_name,omitempty"`
	AgentCount  int       `json:"agent_count"`
	ResultCount int       `json:"result_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary returns the listing view of the job.
func (j *Job) Summary() JobSummary {
	return JobSummary{
		ID:          j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		Scenario:    j.Scenario,
		Product:     j.Product,
		AgentCount:  len(j.Agents),
		ResultCount: len(j.Results),
		CreatedAt:   j.CreatedAt,
	}
}

// SimulationRequest describes a job submission.
type SimulationRequest struct {
	Scenario       string  `json:"scenario"`
	ProductName    string  `json:"product_name"`
	Context        string  `json:"context"`
	TargetAudience string  `json:"target_audience"`
	AgentCount     int     `json:"agent_count"`
	Image          string  `json:"image_data,omitempty"`
	PDF            string  `json:"pdf_data,omitempty"`
	OptionA        string  `json:"option_a,omitempty"` // creative_test and ab_messaging variants
	OptionB        string  `json:"option_b,omitempty"`
	Stage          string  `json:"stage,omitempty"` // cx_flow funnel stage
	Rounds         int     `json:"rounds,omitempty"`
	Agents         []Agent `json:"agents,omitempty"` // Skips persona generation when set
}

// Scenario keys.
const (
	ScenarioProductLaunch     = "product_launch"
	ScenarioCreativeTest      = "creative_test"
	ScenarioABMessaging       = "ab_messaging"
	ScenarioCXFlow            = "cx_flow"
	ScenarioFocusGroup        = "focus_group"
	ScenarioPersonaGeneration = "persona_generation"
)

// KnownScenarios lists the scenario keys accepted on submission.
var KnownScenarios = []string{
	ScenarioProductLaunch,
	ScenarioCreativeTest,
	ScenarioABMessaging,
	ScenarioCXFlow,
	ScenarioFocusGroup,
}

// IsKnownScenario reports whether key names a runnable scenario.
func IsKnownScenario(key string) bool {
	for _, s := range KnownScenarios {
		if s == key {
			return true
		}
	}
	return false
}

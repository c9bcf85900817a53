package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alienxp03/oraculum/internal/core"
	"github.com/alienxp03/oraculum/internal/registry"
)

const (
	refreshInterval = 250 * time.Millisecond
	feedLines       = 8
	snippetWidth    = 72
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	neutralStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
)

type jobSnapshotMsg struct {
	job *core.Job
}

// progressModel polls the registry and renders a progress bar and the most
// recent results until the job is terminal or the user quits.
type progressModel struct {
	jobs    *registry.Registry
	id      string
	job     *core.Job
	bar     progress.Model
	spinner spinner.Model
}

func newProgressModel(jobs *registry.Registry, id string) progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return progressModel{
		jobs:    jobs,
		id:      id,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		spinner: sp,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m progressModel) fetch() tea.Cmd {
	return func() tea.Msg {
		job, _ := m.jobs.Get(m.id)
		return jobSnapshotMsg{job: job}
	}
}

func (m progressModel) schedule() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		job, _ := m.jobs.Get(m.id)
		return jobSnapshotMsg{job: job}
	})
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(20, min(80, msg.Width-10))
	case jobSnapshotMsg:
		if msg.job == nil {
			return m, tea.Quit
		}
		m.job = msg.job
		if m.job.Status.IsTerminal() {
			return m, tea.Quit
		}
		return m, m.schedule()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	if m.job == nil {
		b.WriteString(m.spinner.View() + " Starting simulation...\n")
		return b.String()
	}

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s · %s", m.job.Product, m.job.Scenario)))
	b.WriteString("\n\n")

	status := string(m.job.Status)
	if !m.job.Status.IsTerminal() {
		status = m.spinner.View() + " " + phaseLabel(m.job)
	}
	b.WriteString(status + "\n")
	b.WriteString(m.bar.ViewAs(m.job.Progress) + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d agents · %d results", len(m.job.Agents), len(m.job.Results))))
	b.WriteString("\n\n")

	start := max(0, len(m.job.Results)-feedLines)
	for _, r := range m.job.Results[start:] {
		b.WriteString(resultLine(r) + "\n")
	}

	if !m.job.Status.IsTerminal() {
		b.WriteString(dimStyle.Render("\nq to quit"))
	}
	return b.String()
}

func phaseLabel(job *core.Job) string {
	if len(job.Agents) == 0 {
		return "Researching and recruiting personas..."
	}
	if n := len(job.Results); n > 0 && job.Results[n-1].Phase != "" {
		return fmt.Sprintf("Round %d: %s", job.Results[n-1].Round, job.Results[n-1].Phase)
	}
	return "Collecting responses..."
}

func resultLine(r core.SimulationResult) string {
	text := r.Response
	if r.Failed() {
		text = "failed: " + r.Error
	}
	text = strings.Join(strings.Fields(text), " ")
	if runes := []rune(text); len(runes) > snippetWidth {
		text = string(runes[:snippetWidth-3]) + "..."
	}

	tag := neutralStyle.Render(r.Sentiment)
	switch {
	case r.Failed():
		tag = dimStyle.Render(core.CategoryError)
	case r.Sentiment == core.SentimentPositive:
		tag = positiveStyle.Render(r.Sentiment)
	case r.Sentiment == core.SentimentNegative:
		tag = negativeStyle.Render(r.Sentiment)
	}
	return fmt.Sprintf("[%s] %s: %s", tag, r.AgentName, text)
}

package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/alienxp03/oraculum/internal/core"
)

// MarkdownExporter exports jobs to Markdown format.
type MarkdownExporter struct{}

// Export writes the job as Markdown.
func (e *MarkdownExporter) Export(job *core.Job, w io.Writer) error {
	var sb strings.Builder

	// Title
	sb.WriteString(fmt.Sprintf("# %s (%s)\n\n", job.Product, scenarioTitle(job.Scenario)))

	// Metadata
	sb.WriteString("## Simulation Information\n\n")
	sb.WriteString(fmt.Sprintf("- **ID:** `%s`\n", job.ID))
	sb.WriteString(fmt.Sprintf("- **Scenario:** %s\n", job.Scenario))
	sb.WriteString(fmt.Sprintf("- **Status:** %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("- **Progress:** %.0f%%\n", job.Progress*100))
	sb.WriteString(fmt.Sprintf("- **Created:** %s\n", job.CreatedAt.Format("January 2, 2006 at 3:04 PM")))
	if job.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("- **Completed:** %s\n", job.CompletedAt.Format("January 2, 2006 at 3:04 PM")))
		sb.WriteString(fmt.Sprintf("- **Duration:** %s\n", formatDuration(job.CreatedAt, *job.CompletedAt)))
	}
	if job.Error != "" {
		sb.WriteString(fmt.Sprintf("- **Error:** %s\n", job.Error))
	}
	sb.WriteString("\n")

	// Sentiment
	if counts := sentimentBreakdown(job.Results); len(counts) > 0 {
		sb.WriteString("## Sentiment\n\n")
		tags := make([]string, 0, len(counts))
		for tag := range counts {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			sb.WriteString(fmt.Sprintf("- **%s:** %d\n", tag, counts[tag]))
		}
		sb.WriteString("\n")
	}

	// Participants
	sb.WriteString("## Participants\n\n")
	if len(job.Agents) == 0 {
		sb.WriteString("*No participants.*\n\n")
	} else {
		sb.WriteString("| # | Name | Role | Demographic | Skepticism | Responses | Avg Sentiment |\n")
		sb.WriteString("|---|------|------|-------------|------------|-----------|---------------|\n")
		for _, a := range job.Agents {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %d | %.2f |\n",
				a.ID, cell(a.Name), cell(a.Role), cell(a.Demographic), a.Skepticism, a.ResponseCount, a.AvgSentiment))
		}
		sb.WriteString("\n")
	}

	// Responses
	sb.WriteString("## Responses\n\n")
	if len(job.Results) == 0 {
		sb.WriteString("*No results recorded.*\n\n")
	} else {
		rounds, order := groupByRound(job.Results)
		for _, round := range order {
			if round > 0 {
				phase := rounds[round][0].Phase
				sb.WriteString(fmt.Sprintf("### Round %d: %s\n\n", round, phase))
			}
			for _, r := range rounds[round] {
				sb.WriteString(fmt.Sprintf("#### %s (%s)\n\n", r.AgentName, r.AgentRole))
				if r.Failed() {
					sb.WriteString(fmt.Sprintf("*Failed: %s*\n\n---\n\n", r.Error))
					continue
				}
				if r.Thought != nil {
					sb.WriteString("> **Hidden thought:** ")
					sb.WriteString(strings.ReplaceAll(*r.Thought, "\n", "\n> "))
					sb.WriteString("\n\n")
				}
				sb.WriteString(r.Response)
				sb.WriteString(fmt.Sprintf("\n\n*Sentiment: %s, Category: %s*\n\n---\n\n", r.Sentiment, r.Category))
			}
		}
	}

	// Footer
	sb.WriteString("*Exported from oraculum*\n")

	_, err := w.Write([]byte(sb.String()))
	return err
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return "md"
}

// ContentType returns the MIME type for Markdown.
func (e *MarkdownExporter) ContentType() string {
	return "text/markdown; charset=utf-8"
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// Package export writes finished simulation jobs to report formats.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alienxp03/oraculum/internal/core"
)

// Format represents an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatSQLite   Format = "sqlite"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatPDF, FormatSQLite}

// FormatList joins Formats for help and error text.
func FormatList() string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// Exporter writes one job to w.
type Exporter interface {
	Export(job *core.Job, w io.Writer) error
	FileExtension() string
	ContentType() string
}

// GetExporter returns an exporter for the given format.
func GetExporter(format Format) (Exporter, error) {
	switch format {
	case FormatMarkdown, "md":
		return &MarkdownExporter{}, nil
	case FormatPDF:
		return &PDFExporter{}, nil
	case FormatJSON:
		return &JSONExporter{}, nil
	case FormatCSV:
		return &CSVExporter{}, nil
	case FormatSQLite, "db":
		return &SQLiteExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s (want one of %s)", format, FormatList())
	}
}

// GenerateFilename creates a filename for the export.
func GenerateFilename(job *core.Job, ext string) string {
	name := job.Product
	if name == "" {
		name = job.Scenario
	}
	if r := []rune(name); len(r) > 50 {
		name = string(r[:50])
	}

	replacer := strings.NewReplacer(
		" ", "_",
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	name = replacer.Replace(name)

	timestamp := job.CreatedAt.Format("20060102")
	return fmt.Sprintf("simulation_%s_%s_%s.%s", timestamp, core.ShortID(job.ID), name, ext)
}

func scenarioTitle(key string) string {
	switch key {
	case core.ScenarioProductLaunch:
		return "Product Launch Test"
	case core.ScenarioCreativeTest:
		return "Creative Testing"
	case core.ScenarioABMessaging:
		return "A/B Messaging Strategy"
	case core.ScenarioCXFlow:
		return "Customer Journey Flow"
	case core.ScenarioFocusGroup:
		return "Focus Group"
	default:
		return key
	}
}

// sentimentBreakdown counts successful results per sentiment tag.
func sentimentBreakdown(results []core.SimulationResult) map[string]int {
	counts := make(map[string]int)
	for _, r := range results {
		if r.Failed() {
			counts[core.CategoryError]++
			continue
		}
		counts[r.Sentiment]++
	}
	return counts
}

// groupByRound returns results keyed by round, and the rounds in order.
// Single-pass results all land in round 0.
func groupByRound(results []core.SimulationResult) (map[int][]core.SimulationResult, []int) {
	rounds := make(map[int][]core.SimulationResult)
	var order []int
	for _, r := range results {
		if _, ok := rounds[r.Round]; !ok {
			order = append(order, r.Round)
		}
		rounds[r.Round] = append(rounds[r.Round], r)
	}
	return rounds, order
}

func formatDuration(start, end time.Time) string {
	d := end.Sub(start)
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	return fmt.Sprintf("%.1f hours", d.Hours())
}

package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/alienxp03/oraculum/internal/core"
)

// CSVHeader is the column layout of a CSV export.
var CSVHeader = []string{
	"agent_id",
	"agent_name",
	"agent_role",
	"agent_demographic",
	"scenario",
	"round",
	"phase",
	"timestamp",
	"prompt",
	"response",
	"thought_process",
	"sentiment",
	"category",
	"error",
}

// CSVExporter exports one row per result.
type CSVExporter struct{}

// Export writes the job's results as CSV.
func (e *CSVExporter) Export(job *core.Job, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, r := range job.Results {
		thought := ""
		if r.Thought != nil {
			thought = *r.Thought
		}
		record := []string{
			strconv.Itoa(r.AgentID),
			r.AgentName,
			r.AgentRole,
			r.AgentDemographic,
			r.Scenario,
			strconv.Itoa(r.Round),
			r.Phase,
			r.Timestamp.Format(time.RFC3339),
			r.Prompt,
			r.Response,
			thought,
			r.Sentiment,
			r.Category,
			r.Error,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FileExtension returns the file extension for CSV.
func (e *CSVExporter) FileExtension() string {
	return "csv"
}

// ContentType returns the MIME type for CSV.
func (e *CSVExporter) ContentType() string {
	return "text/csv"
}

package export

import (
	"encoding/json"
	"io"

	"github.com/alienxp03/oraculum/internal/core"
)

// JSONExporter exports jobs to JSON format.
type JSONExporter struct{}

// ExportData represents the full export structure.
type ExportData struct {
	Job        *core.Job      `json:"job"`
	Sentiments map[string]int `json:"sentiments"`
}

// Export writes the job as JSON.
func (e *JSONExporter) Export(job *core.Job, w io.Writer) error {
	data := ExportData{
		Job:        job,
		Sentiments: sentimentBreakdown(job.Results),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return "json"
}

// ContentType returns the MIME type for JSON.
func (e *JSONExporter) ContentType() string {
	return "application/json"
}

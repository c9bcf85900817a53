package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/alienxp03/oraculum/internal/core"
)

// PDFExporter exports jobs to PDF format.
type PDFExporter struct{}

// Export writes the job as PDF.
func (e *PDFExporter) Export(job *core.Job, w io.Writer) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 18)
	pdf.MultiCell(0, 10, e.sanitizeText(job.Product), "", "C", false)
	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 7, scenarioTitle(job.Scenario), "", "C", false)
	pdf.Ln(5)

	// Metadata section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Simulation Information")
	pdf.Ln(8)

	e.addMetadataRow(pdf, "ID:", core.ShortID(job.ID)+"...")
	e.addMetadataRow(pdf, "Status:", string(job.Status))
	e.addMetadataRow(pdf, "Created:", job.CreatedAt.Format("January 2, 2006 at 3:04 PM"))
	if job.CompletedAt != nil {
		e.addMetadataRow(pdf, "Completed:", job.CompletedAt.Format("January 2, 2006 at 3:04 PM"))
		e.addMetadataRow(pdf, "Duration:", formatDuration(job.CreatedAt, *job.CompletedAt))
	}
	e.addMetadataRow(pdf, "Agents:", fmt.Sprintf("%d", len(job.Agents)))
	e.addMetadataRow(pdf, "Responses:", fmt.Sprintf("%d", len(job.Results)))
	pdf.Ln(5)

	// Participants section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Participants")
	pdf.Ln(8)
	for _, a := range job.Agents {
		e.addParticipantBox(pdf, a)
		pdf.Ln(2)
	}
	pdf.Ln(4)

	// Responses
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Responses")
	pdf.Ln(8)

	if len(job.Results) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.Cell(0, 6, "No results recorded.")
		pdf.Ln(6)
	}
	rounds, order := groupByRound(job.Results)
	for _, round := range order {
		if round > 0 {
			pdf.SetFont("Arial", "B", 11)
			pdf.Cell(0, 7, fmt.Sprintf("Round %d: %s", round, rounds[round][0].Phase))
			pdf.Ln(8)
		}
		for _, r := range rounds[round] {
			if pdf.GetY() > 250 {
				pdf.AddPage()
			}

			r8, g8, b8 := sentimentColor(r)
			pdf.SetFillColor(r8, g8, b8)
			pdf.SetFont("Arial", "B", 10)
			header := fmt.Sprintf("%s (%s) - %s", r.AgentName, r.AgentRole, r.Sentiment)
			pdf.CellFormat(0, 7, e.sanitizeText(header), "", 1, "", true, 0, "")
			pdf.SetFillColor(255, 255, 255)

			if r.Failed() {
				pdf.SetFont("Arial", "I", 9)
				pdf.MultiCell(0, 5, e.sanitizeText("Failed: "+r.Error), "", "", false)
				pdf.Ln(4)
				continue
			}
			if r.Thought != nil {
				pdf.SetFont("Arial", "I", 9)
				pdf.MultiCell(0, 5, e.sanitizeText("Thought: "+*r.Thought), "", "", false)
			}
			pdf.SetFont("Arial", "", 9)
			pdf.MultiCell(0, 5, e.sanitizeText(r.Response), "", "", false)
			pdf.Ln(4)
		}
	}

	// Footer
	pdf.SetY(-15)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 10, "Exported from oraculum", "", 0, "C", false, 0, "")

	return pdf.Output(w)
}

// FileExtension returns the file extension for PDF.
func (e *PDFExporter) FileExtension() string {
	return "pdf"
}

// ContentType returns the MIME type for PDF.
func (e *PDFExporter) ContentType() string {
	return "application/pdf"
}

func (e *PDFExporter) addMetadataRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(30, 5, label)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 5, e.sanitizeText(value))
	pdf.Ln(5)
}

func (e *PDFExporter) addParticipantBox(pdf *gofpdf.Fpdf, agent core.Agent) {
	pdf.SetFillColor(200, 230, 255)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, e.sanitizeText(fmt.Sprintf("%d. %s", agent.ID, agent.Name)), "", 1, "", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetFillColor(255, 255, 255)
	pdf.Cell(30, 5, "Role:")
	pdf.Cell(0, 5, e.sanitizeText(agent.Role))
	pdf.Ln(5)
	pdf.Cell(30, 5, "Demographic:")
	pdf.Cell(0, 5, e.sanitizeText(agent.Demographic))
	pdf.Ln(5)
	pdf.Cell(30, 5, "Skepticism:")
	pdf.Cell(0, 5, agent.Skepticism.String())
	pdf.Ln(5)
}

func sentimentColor(r core.SimulationResult) (int, int, int) {
	switch {
	case r.Failed():
		return 230, 230, 230
	case r.Sentiment == core.SentimentPositive:
		return 200, 255, 200
	case r.Sentiment == core.SentimentNegative:
		return 255, 200, 200
	default:
		return 255, 245, 200
	}
}

// gofpdf core fonts are Windows-1252.
func (e *PDFExporter) sanitizeText(text string) string {
	replacer := strings.NewReplacer(
		"\u2018", "'",
		"\u2019", "'",
		"\u201C", "\"",
		"\u201D", "\"",
		"\u2013", "-",
		"\u2014", "--",
		"\u2026", "...",
		"\u2022", "*",
		"\u00A0", " ",
	)
	return replacer.Replace(text)
}

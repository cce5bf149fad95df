package reporting

import (
	"bytes"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jung-kurt/gofpdf"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
)

// FleetRow is one asset line of the report.
type FleetRow struct {
	Asset    domain.Asset
	Exposure domain.AssetExposure
}

// DashboardReport is everything rendered into the PDF.
type DashboardReport struct {
	Title    string
	Snapshot domain.DashboardSnapshot
	Fleet    []FleetRow
}

// PDFExporter exports reports to PDF format
type PDFExporter struct{}

// NewPDFExporter creates a new PDF exporter instance
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ExportDashboard renders the dashboard snapshot and the fleet exposure as a PDF.
func (e *PDFExporter) ExportDashboard(report DashboardReport) ([]byte, error) {
	if report.Title == "" {
		report.Title = "Fleet Vulnerability Report"
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	e.addHeader(pdf, report)
	e.addHistogram(pdf, report.Snapshot)
	e.addTopRecords(pdf, report.Snapshot)
	e.addRecent(pdf, report.Snapshot)
	e.addFleet(pdf, report.Fleet)
	e.addFooter(pdf, report.Snapshot)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	return buf.Bytes(), nil
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, report DashboardReport) {
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(0, 51, 102) // Dark blue
	pdf.CellFormat(0, 14, report.Title, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	generated := fmt.Sprintf("Generated: %s", report.Snapshot.GeneratedAt.Format("2006-01-02 15:04"))
	pdf.CellFormat(0, 6, generated, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Tracked vulnerabilities: %s", humanize.Comma(int64(report.Snapshot.TotalCount))), "", 1, "L", false, 0, "")

	pdf.Ln(6)
}

// addHistogram draws one colored bar per severity label.
func (e *PDFExporter) addHistogram(pdf *gofpdf.Fpdf, snap domain.DashboardSnapshot) {
	e.sectionTitle(pdf, "Severity Distribution")

	maxCount := 0
	for _, n := range snap.SeverityHistogram {
		if n > maxCount {
			maxCount = n
		}
	}

	const barMax = 110.0
	for _, sev := range domain.Severities {
		count := snap.SeverityHistogram[sev]

		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(30, 7, sev.String(), "", 0, "L", false, 0, "")

		width := 0.0
		if maxCount > 0 {
			width = barMax * float64(count) / float64(maxCount)
		}
		if width > 0 {
			r, g, b := severityColor(sev)
			pdf.SetFillColor(r, g, b)
			pdf.Rect(pdf.GetX(), pdf.GetY()+1, width, 5, "F")
		}
		pdf.SetX(pdf.GetX() + barMax + 4)

		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(20, 7, humanize.Comma(int64(count)), "", 1, "R", false, 0, "")
	}

	pdf.Ln(6)
}

func (e *PDFExporter) addTopRecords(pdf *gofpdf.Fpdf, snap domain.DashboardSnapshot) {
	e.sectionTitle(pdf, "Top 10 by CVSS Score")

	if len(snap.Top10ByScore) == 0 {
		e.emptyNote(pdf, "No vulnerabilities ingested yet")
		return
	}

	e.tableHeader(pdf, []string{"CVE", "Severity", "Score", "Platform"}, []float64{40, 25, 20, 85})

	pdf.SetFont("Arial", "", 9)
	for _, rec := range snap.Top10ByScore {
		score := "-"
		if rec.Score != nil {
			score = fmt.Sprintf("%.1f", *rec.Score)
		}

		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(40, 7, rec.ID, "1", 0, "L", false, 0, "")
		r, g, b := severityColor(rec.Severity)
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(25, 7, rec.Severity.String(), "1", 0, "C", false, 0, "")
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(20, 7, score, "1", 0, "C", false, 0, "")
		pdf.CellFormat(85, 7, truncate(rec.AppliesTo, 48), "1", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
}

func (e *PDFExporter) addRecent(pdf *gofpdf.Fpdf, snap domain.DashboardSnapshot) {
	e.sectionTitle(pdf, "Published in the Last 7 Days")

	if len(snap.RecentWindow) == 0 {
		e.emptyNote(pdf, "Nothing published in the window")
		return
	}

	e.tableHeader(pdf, []string{"CVE", "Published", "Severity"}, []float64{50, 60, 30})

	pdf.SetFont("Arial", "", 9)
	for _, rec := range snap.RecentWindow {
		if pdf.GetY() > 260 {
			pdf.AddPage()
		}
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(50, 7, rec.ID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 7, rec.Published.Format("2006-01-02 15:04"), "1", 0, "L", false, 0, "")
		r, g, b := severityColor(rec.Severity)
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(30, 7, rec.Severity.String(), "1", 1, "C", false, 0, "")
	}

	pdf.Ln(8)
}

func (e *PDFExporter) addFleet(pdf *gofpdf.Fpdf, fleet []FleetRow) {
	if len(fleet) == 0 {
		return
	}
	if pdf.GetY() > 220 {
		pdf.AddPage()
	}

	e.sectionTitle(pdf, "Fleet Exposure")
	e.tableHeader(pdf, []string{"Asset", "Qty", "Platform", "CVEs", "Worst"}, []float64{40, 12, 78, 15, 25})

	pdf.SetFont("Arial", "", 9)
	for _, row := range fleet {
		if pdf.GetY() > 260 {
			pdf.AddPage()
		}
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(40, 7, truncate(row.Asset.Name, 22), "1", 0, "L", false, 0, "")
		pdf.CellFormat(12, 7, fmt.Sprintf("%d", row.Asset.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(78, 7, truncate(row.Asset.PlatformID, 44), "1", 0, "L", false, 0, "")
		pdf.CellFormat(15, 7, fmt.Sprintf("%d", row.Exposure.Count), "1", 0, "C", false, 0, "")
		r, g, b := severityColor(row.Exposure.WorstSeverity)
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(25, 7, row.Exposure.WorstSeverity.String(), "1", 1, "C", false, 0, "")
	}

	pdf.Ln(8)
}

func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, snap domain.DashboardSnapshot) {
	pdf.SetY(-20)

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(3)

	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 5, fmt.Sprintf("Store generation %d", snap.Generation), "", 1, "C", false, 0, "")
}

func (e *PDFExporter) sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func (e *PDFExporter) emptyNote(pdf *gofpdf.Fpdf, note string) {
	pdf.SetFont("Arial", "I", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 7, note, "", 1, "L", false, 0, "")
	pdf.Ln(5)
}

func (e *PDFExporter) tableHeader(pdf *gofpdf.Fpdf, columns []string, widths []float64) {
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)
	for i, col := range columns {
		ln := 0
		if i == len(columns)-1 {
			ln = 1
		}
		pdf.CellFormat(widths[i], 8, col, "1", ln, "C", true, 0, "")
	}
}

// severityColor returns the RGB color of a severity label, matching the dashboard badges.
func severityColor(sev domain.Severity) (r, g, b int) {
	switch sev {
	case domain.SeverityCritical:
		return 220, 53, 69 // Red
	case domain.SeverityHigh:
		return 255, 149, 0 // Orange
	case domain.SeverityMedium:
		return 255, 204, 0 // Yellow
	case domain.SeverityLow:
		return 52, 199, 89 // Green
	default:
		return 150, 150, 150 // Gray
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

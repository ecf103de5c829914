// Package report assembles the final PDF document: request metadata, the
// generated SQL, the result table, the chart image and the review summary.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/rendis/reportpipe/pkg/schema"
)

const (
	pageWidth    = 190.0 // A4 printable width in mm with default margins
	maxTableRows = 20
	maxCellChars = 28
)

// Input carries everything the document shows.
type Input struct {
	Query          string
	SQLQuery       string
	SQLExplanation string
	Rows           []map[string]any
	ChartImage     []byte
	ChartTitle     string
	Review         schema.ReviewVerdict
	Iteration      int
	GeneratedAt    time.Time
}

// Generator renders report documents.
type Generator struct{}

// NewGenerator creates a PDF generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders the full report. Faults surface as errors; the caller
// treats them as document-generation failures.
func (g *Generator) Generate(in Input) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	g.header(pdf, in)
	g.metadata(pdf, in)
	g.sqlSection(pdf, in)
	if err := g.chartSection(pdf, in); err != nil {
		return nil, err
	}
	g.dataSection(pdf, in)
	g.reviewSection(pdf, in)
	g.footer(pdf, in)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) header(pdf *fpdf.Fpdf, in Input) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "Data Analysis Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated on %s", in.GeneratedAt.Format("2006-01-02 15:04:05 UTC")), "", 1, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)
}

func (g *Generator) metadata(pdf *fpdf.Fpdf, in Input) {
	status := "Needs review"
	if in.Review.Approved {
		status = "Approved"
	}
	rows := [][2]string{
		{"Original question", in.Query},
		{"Total rows", fmt.Sprintf("%d", len(in.Rows))},
		{"Quality score", fmt.Sprintf("%.1f/10", in.Review.OverallScore)},
		{"Status", status},
		{"Iterations", fmt.Sprintf("%d", in.Iteration)},
	}

	pdf.SetFont("Helvetica", "", 10)
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(45, 6, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(pageWidth-45, 6, row[1], "", "L", false)
	}
	pdf.Ln(4)
}

func (g *Generator) sqlSection(pdf *fpdf.Fpdf, in Input) {
	g.sectionTitle(pdf, "Generated SQL")
	pdf.SetFont("Courier", "", 9)
	pdf.SetFillColor(245, 245, 245)
	pdf.MultiCell(pageWidth, 5, in.SQLQuery, "1", "L", true)
	if in.SQLExplanation != "" {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(pageWidth, 5, in.SQLExplanation, "", "L", false)
	}
	pdf.Ln(4)
}

func (g *Generator) chartSection(pdf *fpdf.Fpdf, in Input) error {
	if len(in.ChartImage) == 0 {
		return nil
	}
	g.sectionTitle(pdf, "Visualization")

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("chart", opts, bytes.NewReader(in.ChartImage))
	pdf.ImageOptions("chart", 15, pdf.GetY(), pageWidth-10, 0, true, opts, 0, "")
	if pdf.Err() {
		return fmt.Errorf("embed chart image: %w", pdf.Error())
	}

	if in.ChartTitle != "" {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(0, 5, in.ChartTitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)
	return nil
}

func (g *Generator) dataSection(pdf *fpdf.Fpdf, in Input) {
	g.sectionTitle(pdf, "Data")
	if len(in.Rows) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(0, 6, "The query returned no rows.", "", 1, "L", false, 0, "")
		pdf.Ln(4)
		return
	}

	headers := columnOrder(in.Rows[0])
	colWidth := pageWidth / float64(len(headers))

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for _, h := range headers {
		pdf.CellFormat(colWidth, 6, truncate(h), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	shown := in.Rows
	if len(shown) > maxTableRows {
		shown = shown[:maxTableRows]
	}
	for _, row := range shown {
		for _, h := range headers {
			pdf.CellFormat(colWidth, 6, truncate(fmt.Sprintf("%v", row[h])), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(in.Rows) > maxTableRows {
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Showing first %d of %d rows", maxTableRows, len(in.Rows)), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func (g *Generator) reviewSection(pdf *fpdf.Fpdf, in Input) {
	g.sectionTitle(pdf, "Quality Review")

	pdf.SetFont("Helvetica", "", 10)
	if in.Review.Feedback != "" {
		pdf.MultiCell(pageWidth, 5, in.Review.Feedback, "", "L", false)
		pdf.Ln(2)
	}

	lists := []struct {
		title string
		items []string
	}{
		{"Issues", in.Review.Issues},
		{"Suggestions", in.Review.Suggestions},
		{"Highlights", in.Review.Highlights},
	}
	for _, list := range lists {
		if len(list.items) == 0 {
			continue
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, list.title, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, item := range list.items {
			pdf.MultiCell(pageWidth, 5, "- "+item, "", "L", false)
		}
		pdf.Ln(1)
	}
	pdf.Ln(2)
}

func (g *Generator) footer(pdf *fpdf.Fpdf, in Input) {
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(130, 130, 130)
	pdf.MultiCell(pageWidth, 4,
		"This report was generated automatically. Data and analysis should be validated by a human analyst before critical decisions.",
		"", "C", false)
	pdf.SetTextColor(0, 0, 0)
}

func (g *Generator) sectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.Ln(1)
}

// columnOrder returns the row's keys in stable sorted order; row-maps carry
// no column ordering of their own.
func columnOrder(row map[string]any) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string) string {
	if len(s) <= maxCellChars {
		return s
	}
	return s[:maxCellChars-3] + "..."
}

package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets into a landscape tabular PDF. Only narrow
// datasets fit; callers project wide sheets down to summary columns first.
type PDFExporter struct {
	Title    string
	Subtitle string
	// WideColumn gets a triple-width cell, typically a name column.
	WideColumn string
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter(title, subtitle, wideColumn string) *PDFExporter {
	return &PDFExporter{Title: title, Subtitle: subtitle, WideColumn: wideColumn}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("pdf"); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	if e.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 9, strings.ToUpper(e.Title), "", 1, "C", false, 0, "")
	}
	if e.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, e.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	width, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	widths := columnWidths(data.Headers, e.WideColumn, width-left-right)

	header := func() {
		pdf.SetFont("Arial", "B", 8)
		pdf.SetFillColor(68, 114, 196)
		pdf.SetTextColor(255, 255, 255)
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Arial", "", 8)
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			header()
		}
	})
	header()

	for _, row := range data.Rows {
		for i, cell := range row {
			align := "C"
			if _, ok := cell.(string); ok {
				align = "L"
			}
			pdf.CellFormat(widths[i], 7, FormatCell(cell), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) ContentType() string { return "application/pdf" }

func (e *PDFExporter) Extension() string { return "pdf" }

func columnWidths(headers []string, wide string, total float64) []float64 {
	shares := float64(len(headers))
	for _, h := range headers {
		if h == wide {
			shares += 2
		}
	}
	widths := make([]float64, len(headers))
	for i, h := range headers {
		widths[i] = total / shares
		if h == wide {
			widths[i] *= 3
		}
	}
	return widths
}

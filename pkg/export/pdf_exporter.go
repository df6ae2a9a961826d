package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth   = 277.0
	headerFont  = 9
	bodyFont    = 8
	titleFont   = 12
	footerFont  = 7
	rowHeight   = 6
	titleHeight = 9
)

// PDFExporter lays datasets out as a landscape A4 table with the column row repeated per page.
type PDFExporter struct {
	// Widths optionally weights columns; missing entries count as 1.
	Widths map[string]float64
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType reports the MIME type of rendered output.
func (e *PDFExporter) ContentType() string {
	return "application/pdf"
}

func (e *PDFExporter) columnWidths(columns []string) []float64 {
	weights := make([]float64, len(columns))
	var sum float64
	for i, col := range columns {
		w := 1.0
		if v, ok := e.Widths[col]; ok && v > 0 {
			w = v
		}
		weights[i] = w
		sum += w
	}
	for i := range weights {
		weights[i] = pageWidth * weights[i] / sum
	}
	return weights
}

// Write streams the rendered document to w.
func (e *PDFExporter) Write(w io.Writer, data Dataset) error {
	if err := data.validate(); err != nil {
		return err
	}
	widths := e.columnWidths(data.Columns)

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.SetHeaderFunc(func() {
		if data.Title != "" {
			pdf.SetFont("Arial", "B", titleFont)
			pdf.CellFormat(0, titleHeight, data.Title, "", 1, "L", false, 0, "")
		}
		pdf.SetFont("Arial", "B", headerFont)
		for i, col := range data.Columns {
			pdf.CellFormat(widths[i], rowHeight+1, col, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", bodyFont)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Arial", "I", footerFont)
		pdf.CellFormat(0, 5, fmt.Sprintf("%d rows, page %d", len(data.Rows), pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	for _, row := range data.Rows {
		for i, cell := range row {
			pdf.CellFormat(widths[i], rowHeight, cell, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

// Render returns the PDF document bytes.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

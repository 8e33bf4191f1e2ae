package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageMargin = 14.0
	rowHeight  = 7.0
	fontFamily = "Helvetica"
)

// FPDFRenderer draws documents in-process with gofpdf.
type FPDFRenderer struct {
	Creator string
}

// NewFPDFRenderer returns a renderer that needs no external service.
func NewFPDFRenderer() *FPDFRenderer {
	return &FPDFRenderer{Creator: "odyssey invoicing"}
}

// Render implements Renderer.
func (r *FPDFRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, pageMargin)
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator(r.Creator, true)
	pdf.AddPage()

	pdf.SetFont(fontFamily, "", 20)
	pdf.Text(pageMargin, 20, tr(doc.Title))
	pdf.SetFont(fontFamily, "", 12)
	y := 30.0
	for _, line := range doc.Meta {
		pdf.Text(pageMargin, y, tr(line))
		y += 5
	}

	pdf.SetXY(pageMargin, 50)
	drawHeader(pdf, doc.Columns)

	_, pageHeight := pdf.GetPageSize()
	for _, row := range doc.Rows {
		if pdf.GetY()+rowHeight > pageHeight-pageMargin {
			pdf.AddPage()
			pdf.SetXY(pageMargin, pageMargin)
			drawHeader(pdf, doc.Columns)
		}
		drawRow(pdf, tr, doc.Columns, row, "")
	}
	if pdf.GetY()+rowHeight > pageHeight-pageMargin {
		pdf.AddPage()
		pdf.SetXY(pageMargin, pageMargin)
	}
	drawRow(pdf, tr, doc.Columns, doc.Footer, "B")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("export: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func drawHeader(pdf *gofpdf.Fpdf, columns []Column) {
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetFillColor(41, 128, 185)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetDrawColor(200, 200, 200)
	for _, col := range columns {
		pdf.CellFormat(col.Width, rowHeight, col.Title, "1", 0, align(col), true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetTextColor(0, 0, 0)
}

func drawRow(pdf *gofpdf.Fpdf, tr func(string) string, columns []Column, row Row, style string) {
	pdf.SetFont(fontFamily, style, 10)
	cells := row.Cells()
	for i, col := range columns {
		text := ""
		if i < len(cells) {
			text = fit(pdf, tr, cells[i], col.Width-2)
		}
		pdf.CellFormat(col.Width, rowHeight, text, "1", 0, align(col), false, 0, "")
	}
	pdf.Ln(-1)
}

func align(col Column) string {
	if col.Right {
		return "RM"
	}
	return "LM"
}

// fit truncates UTF-8 text with an ellipsis so it stays inside width and
// returns it translated for the core font.
func fit(pdf *gofpdf.Fpdf, tr func(string) string, text string, width float64) string {
	if out := tr(text); pdf.GetStringWidth(out) <= width {
		return out
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := tr(string(runes) + "...")
		if pdf.GetStringWidth(candidate) <= width {
			return candidate
		}
	}
	return ""
}

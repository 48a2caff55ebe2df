package export

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/aixgo-dev/pixelctx/pkg/tree"
)

const (
	pdfIndentMM = 6.0
	pdfMaxDepth = 8
	pdfLineMM   = 5.0
)

// PDF renders t as an A4 document, one block per node indented by depth.
// Markdown in responses is flattened to plain text.
func (e *Exporter) PDF(t tree.Tree) ([]byte, error) {
	if !e.PDFEnabled {
		return nil, fmt.Errorf("%w: pdf export is disabled", ErrFeatureUnavailable)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	at := e.clock().UTC()
	pdf.SetCreationDate(at)
	pdf.SetModificationDate(at)
	pdf.SetTitle("Conversation "+t.SessionID, true)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	// Core fonts are cp1252; other runes print as '.'.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr("Conversation "+t.SessionID), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(107, 114, 128)
	pdf.CellFormat(0, 6, fmt.Sprintf("Exported %s - %d messages", at.Format("2006-01-02 15:04:05"), len(t.Nodes)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	left, _, right, _ := pdf.GetMargins()
	pageW, _ := pdf.GetPageSize()
	writeBranches(pdf, tr, t.Branches(), 0, left, pageW-left-right)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeBranches(pdf *fpdf.Fpdf, tr func(string) string, branches []*tree.Branch, depth int, left, width float64) {
	d := min(depth, pdfMaxDepth)
	x := left + float64(d)*pdfIndentMM
	w := width - float64(d)*pdfIndentMM

	for _, b := range branches {
		pdf.SetX(x)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(107, 114, 128)
		meta := b.ID
		if b.Timestamp != "" {
			meta += " - " + b.Timestamp
		}
		pdf.CellFormat(w, 4, tr(meta), "", 1, "L", false, 0, "")

		pdf.SetX(x)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(37, 99, 235)
		pdf.MultiCell(w, pdfLineMM, tr("User: "+b.Prompt), "", "L", false)

		pdf.SetX(x)
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(31, 41, 55)
		pdf.MultiCell(w, pdfLineMM, tr("Model: "+PlainText(b.Response)), "", "L", false)
		pdf.Ln(2)

		writeBranches(pdf, tr, b.Children, depth+1, left, width)
	}
}

package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/phpdave11/gofpdf"

	"spendlens/internal/currency"
)

const maxPDFRows = 500

// PDF renders a snapshot as an A4 expense report.
type PDF struct{}

func (PDF) Export(_ context.Context, s Snapshot) (Artifact, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(false, 14)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "Expense Report")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(80, 80, 80)
	if s.UserName != "" {
		pdf.Cell(0, 6, tr(s.UserName+" <"+s.Email+">"))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, "Generated: "+s.GeneratedAt.Format("Jan 2, 2006 15:04"))
	pdf.Ln(10)

	pdf.SetDrawColor(200, 200, 200)
	pdf.SetFillColor(248, 248, 248)
	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "B", 11)
	sumW := []float64{60, 61, 61}
	pdf.CellFormat(sumW[0], 10, "Total", "1", 0, "C", true, 0, "")
	pdf.CellFormat(sumW[1], 10, "Budget", "1", 0, "C", true, 0, "")
	pdf.CellFormat(sumW[2], 10, "Remaining", "1", 1, "C", true, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(sumW[0], 10, tr(currency.Format(s.Total, s.Currency)), "1", 0, "C", false, 0, "")
	pdf.CellFormat(sumW[1], 10, tr(currency.Format(s.Budget.Limit, s.Currency)), "1", 0, "C", false, 0, "")
	pdf.CellFormat(sumW[2], 10, tr(currency.Format(s.Budget.Remaining, s.Currency)), "1", 1, "C", false, 0, "")
	pdf.Ln(6)

	colW := []float64{26, 58, 36, 22, 40}
	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(245, 245, 245)
		pdf.CellFormat(colW[0], 8, "DATE", "1", 0, "C", true, 0, "")
		pdf.CellFormat(colW[1], 8, "TITLE", "1", 0, "L", true, 0, "")
		pdf.CellFormat(colW[2], 8, "CATEGORY", "1", 0, "L", true, 0, "")
		pdf.CellFormat(colW[3], 8, "PRIORITY", "1", 0, "C", true, 0, "")
		pdf.CellFormat(colW[4], 8, "AMOUNT", "1", 1, "R", true, 0, "")
		pdf.SetFont("Helvetica", "", 9)
	}
	header()

	for i, r := range s.Rows {
		if i >= maxPDFRows {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.CellFormat(0, 8, fmt.Sprintf("... %d more rows not shown", len(s.Rows)-maxPDFRows), "1", 1, "C", false, 0, "")
			break
		}
		if pdf.GetY() > 270 {
			pdf.AddPage()
			header()
		}
		pdf.CellFormat(colW[0], 8, r.DateString, "1", 0, "C", false, 0, "")
		pdf.CellFormat(colW[1], 8, tr(trimTo(r.Title, 34)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(colW[2], 8, tr(string(r.Category)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(colW[3], 8, string(r.Priority), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colW[4], 8, tr(currency.Format(r.Converted, s.Currency)), "1", 1, "R", false, 0, "")
	}

	if len(s.Categories) > 0 {
		if pdf.GetY() > 240 {
			pdf.AddPage()
		}
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, "By category")
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		for _, c := range s.Categories {
			pdf.CellFormat(120, 7, tr(c.Category), "B", 0, "L", false, 0, "")
			pdf.CellFormat(62, 7, tr(currency.Format(c.Amount, s.Currency)), "B", 1, "R", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return Artifact{}, fmt.Errorf("render pdf: %w", err)
	}
	return Artifact{
		Name:        "expenses-" + s.GeneratedAt.Format("2006-01-02") + ".pdf",
		ContentType: "application/pdf",
		Data:        buf.Bytes(),
	}, nil
}

func trimTo(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "..."
}

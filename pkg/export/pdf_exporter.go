package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets and invoices into PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// InvoiceLine is a single billed item on an invoice.
type InvoiceLine struct {
	Description string
	Amount      int64
}

// InvoicePayment is a ledger entry printed on the invoice.
type InvoicePayment struct {
	ReceivedAt  time.Time
	Description string
	ReferenceNo string
	Amount      int64
}

// Invoice carries everything needed to print a billing statement. All amounts
// are minor currency units.
type Invoice struct {
	ReferenceCode string
	IssuedAt      time.Time
	BilledTo      string
	StudentName   string
	StudentLRN    string
	SchoolYear    string
	GradeLevel    int
	Lines         []InvoiceLine
	Total         int64
	Discount      int64
	NetAmount     int64
	AmountPaid    int64
	Balance       int64
	Payments      []InvoicePayment
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			value := row[header]
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderInvoice prints a billing statement: header block, fee lines, discount
// and balance summary, then the payment ledger.
func (e *PDFExporter) RenderInvoice(inv Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "STATEMENT OF ACCOUNT", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Reference: %s", inv.ReferenceCode), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued: %s", inv.IssuedAt.Format("2006-01-02")), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Billed To:", "", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, inv.BilledTo, "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Student:", "", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s (LRN %s)", inv.StudentName, inv.StudentLRN), "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "School Year:", "", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s / Grade %d", inv.SchoolYear, inv.GradeLevel), "", 1, "", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(130, 8, "Description", "1", 0, "", false, 0, "")
	pdf.CellFormat(50, 8, "Amount", "1", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	for _, line := range inv.Lines {
		if line.Amount == 0 {
			continue
		}
		pdf.CellFormat(130, 7, line.Description, "1", 0, "", false, 0, "")
		pdf.CellFormat(50, 7, FormatAmount(line.Amount), "1", 1, "R", false, 0, "")
	}

	summary := []struct {
		label  string
		amount int64
	}{
		{"Total", inv.Total},
		{"Discount", -inv.Discount},
		{"Net Amount", inv.NetAmount},
		{"Amount Paid", inv.AmountPaid},
		{"Balance Due", inv.Balance},
	}
	pdf.SetFont("Arial", "B", 10)
	for _, row := range summary {
		if row.label == "Discount" && inv.Discount == 0 {
			continue
		}
		pdf.CellFormat(130, 7, row.label, "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 7, FormatAmount(row.amount), "1", 1, "R", false, 0, "")
	}

	if len(inv.Payments) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, "Payments", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(35, 7, "Date", "1", 0, "", false, 0, "")
		pdf.CellFormat(70, 7, "Method", "1", 0, "", false, 0, "")
		pdf.CellFormat(40, 7, "Reference No", "1", 0, "", false, 0, "")
		pdf.CellFormat(35, 7, "Amount", "1", 1, "R", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, p := range inv.Payments {
			pdf.CellFormat(35, 7, p.ReceivedAt.Format("2006-01-02"), "1", 0, "", false, 0, "")
			pdf.CellFormat(70, 7, p.Description, "1", 0, "", false, 0, "")
			pdf.CellFormat(40, 7, p.ReferenceNo, "1", 0, "", false, 0, "")
			pdf.CellFormat(35, 7, FormatAmount(p.Amount), "1", 1, "R", false, 0, "")
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render invoice: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatAmount renders minor currency units as a decimal string.
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

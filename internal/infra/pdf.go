package infra

// pdf.go renders the customer receipt for a completed sale as a narrow
// thermal-style PDF (74mm wide). The height grows with the number of lines
// so long tickets are not split across pages.

import (
	"fmt"
	"os"
	"path/filepath"

	"retailpos/internal/model"

	"github.com/go-pdf/fpdf"
)

const (
	ticketWidth      = 74.0
	ticketBaseHeight = 95.0
	ticketLineHeight = 4.5
)

// GenerateTicketPDF writes storagePath/receipt_{sale number}.pdf and returns
// its absolute path. Details should carry their Product and payments their
// PaymentMethod; missing associations print as blanks.
func GenerateTicketPDF(sale *model.Sale, storeName, storagePath string) (string, error) {
	if sale == nil {
		return "", fmt.Errorf("pdf: nil sale")
	}
	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}
	abs, err := filepath.Abs(storagePath)
	if err != nil {
		return "", fmt.Errorf("pdf: resolve storage dir: %w", err)
	}
	filePath := filepath.Join(abs, fmt.Sprintf("receipt_%s.pdf", sale.SaleNumber))

	height := ticketBaseHeight + ticketLineHeight*float64(len(sale.Details)+len(sale.Payments))
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: ticketWidth, Ht: height},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.SetAutoPageBreak(false, 4)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 8

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentW, 7, tr(storeName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW, 5, tr("Comprobante de venta"), "", 1, "C", false, 0, "")
	pdf.Ln(1)

	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(contentW, 5, sale.SaleNumber, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(contentW, 4, sale.SaleDate.Format("02/01/2006  15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(1)
	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(1)

	// ── Lines ────────────────────────────────────────────────────────────────
	col1 := contentW * 0.50
	col2 := contentW * 0.18
	col3 := contentW * 0.32

	pdf.SetFont("Helvetica", "B", 7)
	pdf.CellFormat(col1, 5, "Producto", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 5, "Cant", "B", 0, "C", false, 0, "")
	pdf.CellFormat(col3, 5, "Importe", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	for _, d := range sale.Details {
		name := ""
		if d.Product != nil {
			name = d.Product.Name
		}
		if r := []rune(name); len(r) > 22 {
			name = string(r[:21]) + "."
		}
		pdf.CellFormat(col1, ticketLineHeight, tr(name), "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, ticketLineHeight, d.Quantity.String(), "", 0, "C", false, 0, "")
		pdf.CellFormat(col3, ticketLineHeight, d.Total.StringFixed(2), "", 1, "R", false, 0, "")
	}

	pdf.Ln(1)
	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(1)

	// ── Totals ───────────────────────────────────────────────────────────────
	row := func(label, value string) {
		pdf.CellFormat(col1+col2, 4, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 4, value, "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "", 7)
	row("Subtotal:", sale.Subtotal.StringFixed(2))
	if !sale.DiscountAmount.IsZero() {
		row("Descuento:", "-"+sale.DiscountAmount.StringFixed(2))
	}
	row("Impuestos:", sale.TaxAmount.StringFixed(2))

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(col1+col2, 6, "TOTAL:", "", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 6, sale.TotalAmount.StringFixed(2), "", 1, "R", false, 0, "")

	pdf.Ln(1)
	pdf.SetFont("Helvetica", "", 7)
	for _, p := range sale.Payments {
		method := ""
		if p.PaymentMethod != nil {
			method = p.PaymentMethod.Name
		}
		row(tr("Pago ("+method+"):"), p.Amount.StringFixed(2))
		if p.ReferenceNumber != nil && *p.ReferenceNumber != "" {
			row(tr("  Ref. "+*p.ReferenceNumber), "")
		}
	}

	if sale.Status != model.SaleCompleted {
		pdf.Ln(1)
		pdf.SetFont("Helvetica", "B", 8)
		pdf.CellFormat(contentW, 5, "*** "+string(sale.Status)+" ***", "", 1, "C", false, 0, "")
	}

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "I", 7)
	pdf.CellFormat(contentW, 4, tr("¡Gracias por su compra!"), "", 1, "C", false, 0, "")

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return filePath, nil
}

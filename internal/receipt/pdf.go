package receipt

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"rental/internal/clock"
	"rental/internal/domain"
	"rental/internal/money"
)

const (
	pageMargin = 15.0
	lineHeight = 7.0
	labelWidth = 45.0
)

// RenderPDF renders the receipt document. The output depends only on r, so a
// stored record always re-renders to the same bytes.
func RenderPDF(r *domain.Receipt) ([]byte, error) {
	issued := r.IssuedAt.UTC()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(issued)
	pdf.SetModificationDate(issued)
	pdf.SetCatalogSort(true)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetTitle("Rental receipt "+r.ID, true)
	pdf.SetSubject("Payment "+r.PaymentID, true)
	pdf.SetCreator("rental", true)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "RENTAL RECEIPT", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr("Receipt "+r.ID), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	section(pdf, "Details")
	row(pdf, tr, "Issued", issued.Format("Jan 02, 2006 15:04 UTC"))
	row(pdf, tr, "Payment", r.PaymentID)
	row(pdf, tr, "Rental", r.RentalRequestID)
	row(pdf, tr, "Period", fmt.Sprintf("%s to %s (%d days)", clock.FormatDate(r.StartDate), clock.FormatDate(r.EndDate), r.Days))
	pdf.Ln(2)

	section(pdf, "Vehicle")
	row(pdf, tr, "Vehicle", r.VehicleName)
	row(pdf, tr, "Plate", r.PlateNumber)
	row(pdf, tr, "Store", r.StoreName)
	pdf.Ln(2)

	section(pdf, "Parties")
	row(pdf, tr, "Owner", partyLine(r.Owner))
	row(pdf, tr, "Customer", partyLine(r.Customer))
	pdf.Ln(2)

	section(pdf, "Charges")
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(90, lineHeight, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(20, lineHeight, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(35, lineHeight, "Unit", "B", 0, "R", false, 0, "")
	pdf.CellFormat(35, lineHeight, "Amount", "B", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, item := range r.LineItems {
		pdf.CellFormat(90, lineHeight, tr(item.Description), "", 0, "L", false, 0, "")
		pdf.CellFormat(20, lineHeight, fmt.Sprintf("%d", item.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, lineHeight, money.Format(item.UnitPrice), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, lineHeight, money.Format(item.Amount), "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(145, lineHeight+1, "TOTAL", "T", 0, "R", false, 0, "")
	pdf.CellFormat(35, lineHeight+1, r.Currency+" "+money.Format(r.Total), "T", 1, "R", false, 0, "")
	pdf.Ln(4)

	section(pdf, "Payment")
	row(pdf, tr, "Method", string(r.PaymentMethod))
	if r.ProviderRef != "" {
		row(pdf, tr, "Reference", r.ProviderRef)
	}
	row(pdf, tr, "Status", "PAID")

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func section(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, lineHeight+1, title, "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
}

func row(pdf *fpdf.Fpdf, tr func(string) string, label, value string) {
	pdf.CellFormat(labelWidth, lineHeight, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(0, lineHeight, tr(value), "", 1, "L", false, 0, "")
}

func partyLine(p domain.ReceiptParty) string {
	if p.Email == "" {
		return p.Name
	}
	return fmt.Sprintf("%s <%s>", p.Name, p.Email)
}

package receipt

import (
	"fmt"
	"strings"

	"rental/internal/clock"
	"rental/internal/domain"
	"rental/internal/money"
)

// FormatText formats the receipt as plain text (for email/print).
func FormatText(r *domain.Receipt) string {
	var b strings.Builder

	b.WriteString(`
=====================================
        RENTAL RECEIPT
=====================================
`)
	fmt.Fprintf(&b, "Receipt ID: %s\n", r.ID)
	fmt.Fprintf(&b, "Payment ID: %s\n", r.PaymentID)
	fmt.Fprintf(&b, "Date: %s\n", r.IssuedAt.UTC().Format("Jan 02, 2006 3:04 PM"))

	b.WriteString(`
RENTAL DETAILS
-------------------------------------
`)
	fmt.Fprintf(&b, "Vehicle:  %s (%s)\n", r.VehicleName, r.PlateNumber)
	fmt.Fprintf(&b, "Store:    %s\n", r.StoreName)
	fmt.Fprintf(&b, "Owner:    %s\n", r.Owner.Name)
	fmt.Fprintf(&b, "Customer: %s\n", r.Customer.Name)
	fmt.Fprintf(&b, "Period:   %s to %s\n", clock.FormatDate(r.StartDate), clock.FormatDate(r.EndDate))
	fmt.Fprintf(&b, "Days:     %d\n", r.Days)

	b.WriteString(`
CHARGES
-------------------------------------
`)
	for _, item := range r.LineItems {
		fmt.Fprintf(&b, "%-28s %3d x %10s = %10s\n", item.Description, item.Quantity, money.Format(item.UnitPrice), money.Format(item.Amount))
	}
	b.WriteString("-------------------------------------\n")
	fmt.Fprintf(&b, "TOTAL:            %s %s\n", r.Currency, money.Format(r.Total))

	b.WriteString(`
PAYMENT
-------------------------------------
`)
	fmt.Fprintf(&b, "Method: %s\n", r.PaymentMethod)
	if r.ProviderRef != "" {
		fmt.Fprintf(&b, "Reference: %s\n", r.ProviderRef)
	}
	b.WriteString(`Status: PAID

=====================================
     Thank you for renting with us!
=====================================
`)

	return b.String()
}

// Filename is the attachment name used for the receipt document.
func Filename(r *domain.Receipt) string {
	return "receipt-" + r.ID + ".pdf"
}

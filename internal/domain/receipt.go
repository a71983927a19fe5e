package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptLineItem is one priced component of a rental.
type ReceiptLineItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// ReceiptParty identifies a person named on a receipt.
type ReceiptParty struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Receipt is the immutable record produced when a payment succeeds.
// The stored JSON form is the single source for every rendering of the document.
type Receipt struct {
	ID              string            `json:"id"`
	PaymentID       string            `json:"payment_id"`
	RentalRequestID string            `json:"rental_request_id"`
	VehicleID       string            `json:"vehicle_id"`
	VehicleName     string            `json:"vehicle_name"`
	PlateNumber     string            `json:"plate_number"`
	StoreID         string            `json:"store_id"`
	StoreName       string            `json:"store_name"`
	Owner           ReceiptParty      `json:"owner"`
	Customer        ReceiptParty      `json:"customer"`
	StartDate       time.Time         `json:"start_date"`
	EndDate         time.Time         `json:"end_date"`
	Days            int               `json:"days"`
	LineItems       []ReceiptLineItem `json:"line_items"`
	Total           decimal.Decimal   `json:"total"`
	Currency        string            `json:"currency"`
	PaymentMethod   PaymentMethod     `json:"payment_method"`
	ProviderRef     string            `json:"provider_ref,omitempty"`
	IssuedAt        time.Time         `json:"issued_at"`
}

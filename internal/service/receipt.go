package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"rental/internal/clock"
	"rental/internal/domain"
	"rental/internal/receipt"
	"rental/internal/repository"
)

// receiptNamespace seeds the name-based receipt IDs.
var receiptNamespace = uuid.MustParse("6f1c2a4e-8d3b-4f7a-9e5c-1b2d3c4e5f60")

// ReceiptSnapshot is everything a receipt is projected from, captured at settlement.
type ReceiptSnapshot struct {
	Payment  *domain.Payment
	Rental   *domain.RentalRequest
	Vehicle  *domain.Vehicle
	Owner    *domain.User
	Customer *domain.User
}

// ReceiptService generates receipt records and documents.
type ReceiptService struct {
	pricing  *PricingEngine
	currency string
	baseURL  string
	store    repository.Store
}

// NewReceiptService creates a new ReceiptService. store is used by Regenerate
// and Get; it may be nil when only Generate is needed.
func NewReceiptService(pricing *PricingEngine, currency, baseURL string, store repository.Store) *ReceiptService {
	return &ReceiptService{
		pricing:  pricing,
		currency: currency,
		baseURL:  strings.TrimRight(baseURL, "/"),
		store:    store,
	}
}

// ReceiptID returns the deterministic receipt ID for a payment.
func ReceiptID(paymentID string) string {
	return uuid.NewSHA1(receiptNamespace, []byte(paymentID)).String()
}

// ReceiptURL returns where the receipt document for a payment is served.
func (s *ReceiptService) ReceiptURL(paymentID string) string {
	return s.baseURL + "/v1/payments/" + paymentID + "/receipt.pdf"
}

// Generate projects the snapshot into a receipt record and renders its document.
// Identical snapshots yield identical records and bytes.
func (s *ReceiptService) Generate(snap ReceiptSnapshot) (*domain.Receipt, []byte, error) {
	if snap.Payment == nil || snap.Rental == nil || snap.Vehicle == nil {
		return nil, nil, fmt.Errorf("%w: incomplete receipt snapshot", ErrValidation)
	}
	if snap.Payment.SettledAt == nil {
		return nil, nil, fmt.Errorf("%w: payment %s is not settled", ErrInvalidState, snap.Payment.ID)
	}

	rec := &domain.Receipt{
		ID:              ReceiptID(snap.Payment.ID),
		PaymentID:       snap.Payment.ID,
		RentalRequestID: snap.Rental.ID,
		VehicleID:       snap.Vehicle.ID,
		VehicleName:     snap.Vehicle.Name,
		PlateNumber:     snap.Vehicle.PlateNumber,
		StoreID:         snap.Vehicle.StoreID,
		StoreName:       snap.Vehicle.StoreName,
		Owner:           party(snap.Owner),
		Customer:        party(snap.Customer),
		StartDate:       clock.Date(snap.Rental.StartDate),
		EndDate:         clock.Date(snap.Rental.EndDate),
		Days:            clock.DaysBetween(snap.Rental.StartDate, snap.Rental.EndDate),
		LineItems:       s.lineItems(snap),
		Total:           snap.Payment.Amount,
		Currency:        s.currency,
		PaymentMethod:   snap.Payment.Method,
		ProviderRef:     snap.Payment.ProviderRef,
		IssuedAt:        snap.Payment.SettledAt.UTC(),
	}

	doc, err := s.Render(rec)
	if err != nil {
		return nil, nil, err
	}
	return rec, doc, nil
}

// Render renders the document for a stored receipt record.
func (s *ReceiptService) Render(rec *domain.Receipt) ([]byte, error) {
	return receipt.RenderPDF(rec)
}

// FormatText renders the plain-text receipt used as the email body.
func (s *ReceiptService) FormatText(rec *domain.Receipt) string {
	return receipt.FormatText(rec)
}

// Get loads the stored receipt record for a payment the caller may see.
func (s *ReceiptService) Get(ctx context.Context, paymentID string, p domain.Principal) (*domain.Receipt, error) {
	if paymentID == "" {
		return nil, ErrInvalidPaymentID
	}

	rec, err := s.store.Receipts().GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	rental, err := s.store.Rentals().GetByID(ctx, rec.RentalRequestID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(ctx, s.store.Vehicles(), rental, p); err != nil {
		return nil, err
	}

	return rec, nil
}

// Regenerate re-renders the document from the stored record. The output is
// byte-identical to the document produced at settlement.
func (s *ReceiptService) Regenerate(ctx context.Context, paymentID string, p domain.Principal) (*domain.Receipt, []byte, error) {
	rec, err := s.Get(ctx, paymentID, p)
	if err != nil {
		return nil, nil, err
	}

	doc, err := s.Render(rec)
	if err != nil {
		return nil, nil, err
	}
	return rec, doc, nil
}

// lineItems explains the total using the snapshot's rates. When the rates no
// longer reproduce the charged amount a single line carries the total.
func (s *ReceiptService) lineItems(snap ReceiptSnapshot) []domain.ReceiptLineItem {
	days := clock.DaysBetween(snap.Rental.StartDate, snap.Rental.EndDate)
	single := []domain.ReceiptLineItem{{
		Description: fmt.Sprintf("Rental, %d days", days),
		Quantity:    1,
		UnitPrice:   snap.Payment.Amount,
		Amount:      snap.Payment.Amount,
	}}

	b, err := s.pricing.Breakdown(snap.Vehicle, snap.Rental.StartDate, snap.Rental.EndDate)
	if err != nil || !b.Total.Equal(snap.Payment.Amount) {
		return single
	}

	var items []domain.ReceiptLineItem
	if b.Months > 0 {
		items = append(items, domain.ReceiptLineItem{
			Description: fmt.Sprintf("Monthly rate (%d days)", s.pricing.MonthDays()),
			Quantity:    b.Months,
			UnitPrice:   b.MonthlyRate,
			Amount:      b.MonthsAmount,
		})
	}
	if b.RemainderDays > 0 {
		if b.RemainderCapped {
			items = append(items, domain.ReceiptLineItem{
				Description: fmt.Sprintf("%d days, capped at monthly rate", b.RemainderDays),
				Quantity:    1,
				UnitPrice:   b.MonthlyRate,
				Amount:      b.RemainderAmount,
			})
		} else {
			items = append(items, domain.ReceiptLineItem{
				Description: "Daily rate",
				Quantity:    b.RemainderDays,
				UnitPrice:   b.DailyRate,
				Amount:      b.RemainderAmount,
			})
		}
	}
	if len(items) == 0 {
		return single
	}
	return items
}

func party(u *domain.User) domain.ReceiptParty {
	if u == nil {
		return domain.ReceiptParty{}
	}
	return domain.ReceiptParty{ID: u.ID, Name: u.Name, Email: u.Email}
}

package repository

import (
	"context"

	"rental/internal/domain"
)

// ReceiptRepository stores immutable receipt records.
type ReceiptRepository interface {
	// Create persists a receipt record. A second record for the same payment
	// returns ErrDuplicate.
	Create(ctx context.Context, receipt *domain.Receipt) error

	// GetByPaymentID retrieves the receipt record for a payment.
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.Receipt, error)
}

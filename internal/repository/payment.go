package repository

import (
	"context"
	"time"

	"rental/internal/domain"
)

// PaymentRepository defines the persistence operations for payments.
type PaymentRepository interface {
	// Create persists a new payment.
	// Returns ErrDuplicate if another non-FAILED payment exists for the rental request.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment by ID.
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetPendingByRental retrieves the in-flight payment for a rental request.
	// Returns nil if none exists.
	GetPendingByRental(ctx context.Context, rentalRequestID string) (*domain.Payment, error)

	// ListByRental retrieves every payment attempt for a rental request, oldest first.
	ListByRental(ctx context.Context, rentalRequestID string) ([]*domain.Payment, error)

	// ListStalePending returns PENDING payments created before the cutoff.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*domain.Payment, error)

	// RecordProviderRef stores the provider reference of a charge taken for the payment.
	// Returns ErrNotFound if the payment does not exist.
	RecordProviderRef(ctx context.Context, id, providerRef string) error

	// Settle records the terminal outcome of a PENDING payment.
	// Returns ErrNotFound if the payment is missing or no longer PENDING.
	Settle(ctx context.Context, payment *domain.Payment) error
}

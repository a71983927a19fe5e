package repository

import (
	"context"
	"time"

	"rental/internal/domain"
)

// RentalRepository defines the persistence operations for rental requests.
type RentalRepository interface {
	// Create persists a new rental request.
	Create(ctx context.Context, rental *domain.RentalRequest) error

	// GetByID retrieves a rental request by ID.
	GetByID(ctx context.Context, id string) (*domain.RentalRequest, error)

	// GetByIDForUpdate retrieves a rental request and row-locks it for the
	// rest of the surrounding transaction.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.RentalRequest, error)

	// Update saves status, end date, total amount and paid timestamp.
	Update(ctx context.Context, rental *domain.RentalRequest) error

	// ListBlocking returns PENDING and APPROVED requests for the vehicle whose
	// range intersects [start, end), skipping excludeID when it is not empty.
	ListBlocking(ctx context.Context, vehicleID string, start, end time.Time, excludeID string) ([]*domain.RentalRequest, error)

	// ListByCustomer returns all requests made by a customer, newest first.
	ListByCustomer(ctx context.Context, customerID string) ([]*domain.RentalRequest, error)

	// ListByVehicle returns all requests for a vehicle, newest first.
	ListByVehicle(ctx context.Context, vehicleID string) ([]*domain.RentalRequest, error)

	// ListDueForCompletion returns APPROVED requests with end date on or before today.
	ListDueForCompletion(ctx context.Context, today time.Time) ([]*domain.RentalRequest, error)
}

package service

import (
	"context"
	"time"

	"rental/internal/clock"
	"rental/internal/repository"
)

// AvailabilityChecker decides whether a vehicle can be booked for a range.
type AvailabilityChecker struct {
	rentals repository.RentalRepository
}

// NewAvailabilityChecker creates an AvailabilityChecker over the given repository.
// Admission builds one per transaction so the check sees the transaction's snapshot.
func NewAvailabilityChecker(rentals repository.RentalRepository) *AvailabilityChecker {
	return &AvailabilityChecker{rentals: rentals}
}

// IsAvailable reports whether no PENDING or APPROVED request other than
// excludeID overlaps [start, end) for the vehicle.
func (a *AvailabilityChecker) IsAvailable(ctx context.Context, vehicleID string, start, end time.Time, excludeID string) (bool, error) {
	if !start.Before(end) {
		return false, ErrEndBeforeStart
	}

	blocking, err := a.rentals.ListBlocking(ctx, vehicleID, start, end, excludeID)
	if err != nil {
		return false, err
	}

	for _, r := range blocking {
		if r.ID == excludeID || !r.Status.Blocks() {
			continue
		}
		if clock.Overlaps(start, end, r.StartDate, r.EndDate) {
			return false, nil
		}
	}

	return true, nil
}

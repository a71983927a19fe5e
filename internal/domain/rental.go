package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RentalStatus represents the current status of a rental request.
type RentalStatus string

const (
	RentalStatusPending   RentalStatus = "PENDING"
	RentalStatusApproved  RentalStatus = "APPROVED"
	RentalStatusCancelled RentalStatus = "CANCELLED"
	RentalStatusCompleted RentalStatus = "COMPLETED"
)

// rentalTransitions is the complete rental state machine. Any pair not listed is rejected.
var rentalTransitions = map[RentalStatus][]RentalStatus{
	RentalStatusPending:   {RentalStatusApproved, RentalStatusCancelled},
	RentalStatusApproved:  {RentalStatusCompleted},
	RentalStatusCancelled: {},
	RentalStatusCompleted: {},
}

// IsValid returns true if the status is a recognized rental status.
func (s RentalStatus) IsValid() bool {
	_, ok := rentalTransitions[s]
	return ok
}

// CanTransitionTo returns true if moving from s to target is allowed.
func (s RentalStatus) CanTransitionTo(target RentalStatus) bool {
	for _, t := range rentalTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible.
func (s RentalStatus) IsTerminal() bool {
	return len(rentalTransitions[s]) == 0
}

// Blocks reports whether a request in this status holds its date range.
func (s RentalStatus) Blocks() bool {
	return s == RentalStatusPending || s == RentalStatusApproved
}

// ParseRentalStatus converts a string to a RentalStatus.
func ParseRentalStatus(s string) (RentalStatus, error) {
	status := RentalStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid rental status: %s", s)
	}
	return status, nil
}

// RentalRequest is a customer's booking of a vehicle over [StartDate, EndDate).
type RentalRequest struct {
	ID          string
	VehicleID   string
	CustomerID  string
	StartDate   time.Time
	EndDate     time.Time
	TotalAmount decimal.Decimal
	Status      RentalStatus
	PaidAt      *time.Time // Set when a payment reaches SUCCESS
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsPaid reports whether a successful payment exists for the request.
func (r *RentalRequest) IsPaid() bool {
	return r.PaidAt != nil
}

// Elapsed reports whether the rental term is over as of today.
func (r *RentalRequest) Elapsed(today time.Time) bool {
	return !r.EndDate.After(today)
}

// DueForCompletion reports whether the request's term is over so it should
// move to COMPLETED, paid or not.
func (r *RentalRequest) DueForCompletion(today time.Time) bool {
	return r.Status == RentalStatusApproved && r.Elapsed(today)
}

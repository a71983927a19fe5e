package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine wraps exactly one of these
// or repository.ErrNotFound.
var (
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("invalid input")

	// ErrInvalidRange is returned for an empty, inverted or past date range.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrConflict is returned when a vehicle cannot be booked for a range.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState is returned when an operation is not allowed in the current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrForbidden is returned when the caller may not act on the entity.
	ErrForbidden = errors.New("forbidden")

	// ErrAmountMismatch is returned when a payment amount differs from the rental total.
	ErrAmountMismatch = errors.New("amount mismatch")

	// ErrAlreadyInProgress is returned when a payment is already being settled for the rental.
	ErrAlreadyInProgress = errors.New("payment already in progress")

	// ErrProviderTimeout is recorded when the settlement provider does not answer in time.
	ErrProviderTimeout = errors.New("settlement provider timeout")

	// ErrProviderRejected is recorded when the settlement provider declines the charge.
	ErrProviderRejected = errors.New("settlement provider rejected")
)

var (
	// ErrInvalidVehicleID is returned when vehicle ID is empty.
	ErrInvalidVehicleID = fmt.Errorf("%w: vehicle id is required", ErrValidation)

	// ErrInvalidRentalID is returned when rental request ID is empty.
	ErrInvalidRentalID = fmt.Errorf("%w: rental request id is required", ErrValidation)

	// ErrInvalidPaymentID is returned when payment ID is empty.
	ErrInvalidPaymentID = fmt.Errorf("%w: payment id is required", ErrValidation)

	// ErrInvalidPaymentMethod is returned when payment method is not recognized.
	ErrInvalidPaymentMethod = fmt.Errorf("%w: unknown payment method", ErrValidation)

	// ErrInvalidPaymentAmount is returned when payment amount is not positive.
	ErrInvalidPaymentAmount = fmt.Errorf("%w: amount must be positive", ErrValidation)

	// ErrPaymentAmountPrecision is returned for amounts finer than the currency's minor unit.
	ErrPaymentAmountPrecision = fmt.Errorf("%w: amount has more than two decimal places", ErrValidation)

	// ErrMissingPaymentToken is returned when a card, UPI or cash payment has no token.
	ErrMissingPaymentToken = fmt.Errorf("%w: token is required for this payment method", ErrValidation)

	// ErrCashNotAccepted is returned when no cash slip issuer is configured.
	ErrCashNotAccepted = fmt.Errorf("%w: cash payments are not accepted", ErrValidation)

	// ErrEndBeforeStart is returned when start is not before end.
	ErrEndBeforeStart = fmt.Errorf("%w: start date must be before end date", ErrInvalidRange)

	// ErrStartInPast is returned when a booking starts before today.
	ErrStartInPast = fmt.Errorf("%w: start date is in the past", ErrInvalidRange)

	// ErrRenewalNotLater is returned when a renewal does not extend the end date.
	ErrRenewalNotLater = fmt.Errorf("%w: new end date must be after the current end date", ErrInvalidRange)

	// ErrVehicleNotListed is returned when the vehicle's listing flag is off.
	ErrVehicleNotListed = fmt.Errorf("%w: vehicle is not listed for rent", ErrConflict)

	// ErrVehicleUnavailable is returned when the range overlaps an existing booking.
	ErrVehicleUnavailable = fmt.Errorf("%w: vehicle is already booked for the requested dates", ErrConflict)

	// ErrBusy is returned when the admission transaction keeps losing serialization races.
	ErrBusy = fmt.Errorf("%w: too many concurrent bookings, try again", ErrConflict)

	// ErrRentalAlreadyPaid is returned when paying or renewing a paid rental.
	ErrRentalAlreadyPaid = fmt.Errorf("%w: rental is already paid", ErrInvalidState)

	// ErrNotOwner is returned when an owner acts on a vehicle of a store they do not control.
	ErrNotOwner = fmt.Errorf("%w: caller does not control the vehicle's store", ErrForbidden)

	// ErrNotRequester is returned when a customer acts on someone else's rental.
	ErrNotRequester = fmt.Errorf("%w: caller is not the requesting customer", ErrForbidden)
)

// invalidTransition builds the error for a status change the state machine rejects.
func invalidTransition(entity string, from, to any) error {
	return fmt.Errorf("%w: %s cannot move from %v to %v", ErrInvalidState, entity, from, to)
}

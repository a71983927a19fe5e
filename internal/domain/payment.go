package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the current status of a payment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusSuccess, PaymentStatusFailed},
	PaymentStatusSuccess: {},
	PaymentStatusFailed:  {},
}

// CanTransitionTo returns true if moving from s to target is allowed.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, t := range paymentTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible.
func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}

// PaymentMethod represents how the customer pays.
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "CARD"
	PaymentMethodUPI  PaymentMethod = "UPI"
	PaymentMethodCash PaymentMethod = "CASH"
	PaymentMethodMock PaymentMethod = "MOCK"
)

// ParsePaymentMethod converts a string to a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentMethodCard, PaymentMethodUPI, PaymentMethodCash, PaymentMethodMock:
		return m, nil
	default:
		return "", fmt.Errorf("unknown payment method: %q", s)
	}
}

// Payment represents one attempt to pay for a rental request.
type Payment struct {
	ID              string
	RentalRequestID string
	Amount          decimal.Decimal
	Method          PaymentMethod
	Status          PaymentStatus
	ReceiptURL      string // SUCCESS only
	ProviderRef     string
	FailureReason   string
	CreatedAt       time.Time
	SettledAt       *time.Time
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRentalStatus_TransitionTable(t *testing.T) {
	all := []RentalStatus{RentalStatusPending, RentalStatusApproved, RentalStatusCancelled, RentalStatusCompleted}
	allowed := map[[2]RentalStatus]bool{
		{RentalStatusPending, RentalStatusApproved}:   true,
		{RentalStatusPending, RentalStatusCancelled}:  true,
		{RentalStatusApproved, RentalStatusCompleted}: true,
	}

	for _, from := range all {
		for _, to := range all {
			got := from.CanTransitionTo(to)
			assert.Equal(t, allowed[[2]RentalStatus{from, to}], got, "%s -> %s", from, to)
		}
	}
}

func TestRentalStatus_NoCancelAfterApproval(t *testing.T) {
	assert.False(t, RentalStatusApproved.CanTransitionTo(RentalStatusCancelled))
}

func TestRentalStatus_Terminal(t *testing.T) {
	assert.True(t, RentalStatusCancelled.IsTerminal())
	assert.True(t, RentalStatusCompleted.IsTerminal())
	assert.False(t, RentalStatusPending.IsTerminal())
	assert.False(t, RentalStatusApproved.IsTerminal())
}

func TestParseRentalStatus(t *testing.T) {
	s, err := ParseRentalStatus("APPROVED")
	assert.NoError(t, err)
	assert.Equal(t, RentalStatusApproved, s)

	_, err = ParseRentalStatus("approved")
	assert.Error(t, err)
}

func TestRentalRequest_DueForCompletion(t *testing.T) {
	today := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	paid := today.Add(-48 * time.Hour)

	r := &RentalRequest{
		Status:  RentalStatusApproved,
		EndDate: today,
		PaidAt:  &paid,
	}
	assert.True(t, r.DueForCompletion(today))

	r.EndDate = today.AddDate(0, 0, 1)
	assert.False(t, r.DueForCompletion(today))

	r.EndDate = today
	r.PaidAt = nil
	assert.True(t, r.DueForCompletion(today), "end of term completes unpaid requests too")

	r.PaidAt = &paid
	r.Status = RentalStatusPending
	assert.False(t, r.DueForCompletion(today))
}

func TestPaymentStatus_TransitionTable(t *testing.T) {
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusSuccess))
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusFailed))
	assert.False(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusSuccess))
	assert.False(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusPending))
	assert.False(t, PaymentStatusSuccess.CanTransitionTo(PaymentStatusFailed))
	assert.True(t, PaymentStatusFailed.IsTerminal())
	assert.True(t, PaymentStatusSuccess.IsTerminal())
}

func TestParsePaymentMethod(t *testing.T) {
	for _, m := range []string{"CARD", "UPI", "CASH", "MOCK"} {
		got, err := ParsePaymentMethod(m)
		assert.NoError(t, err)
		assert.Equal(t, PaymentMethod(m), got)
	}
	_, err := ParsePaymentMethod("WALLET")
	assert.Error(t, err)
}

func TestPrincipal_ControlsStore(t *testing.T) {
	owner := Principal{UserID: "u1", Role: RoleOwner, StoreIDs: []string{"s1", "s2"}}
	assert.True(t, owner.ControlsStore("s2"))
	assert.False(t, owner.ControlsStore("s3"))

	customer := Principal{UserID: "u2", Role: RoleCustomer, StoreIDs: []string{"s1"}}
	assert.False(t, customer.ControlsStore("s1"))
}

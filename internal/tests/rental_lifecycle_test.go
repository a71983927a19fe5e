package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rental/internal/domain"
	"rental/internal/money"
	"rental/internal/repository"
	"rental/internal/service"
)

// ──────────────────────────────────────────────
// 1. BOOKING LIFECYCLE
// ──────────────────────────────────────────────

func TestRental_MonthBookedApprovedPaidAndCompleted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	r := h.book(t, customer1, day(2024, 1, 1), day(2024, 1, 31))
	if r.Status != domain.RentalStatusPending {
		t.Fatalf("expected PENDING, got %s", r.Status)
	}
	if got := money.Format(r.TotalAmount); got != "1200.00" {
		t.Fatalf("expected total 1200.00, got %s", got)
	}

	r, err := h.rentals.Approve(ctx, r.ID, owner())
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if r.Status != domain.RentalStatusApproved {
		t.Fatalf("expected APPROVED, got %s", r.Status)
	}

	p := h.pay(t, r, domain.PaymentMethodMock, "")
	if p.Status != domain.PaymentStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", p.Status, p.FailureReason)
	}
	if p.ReceiptURL == "" {
		t.Error("expected receipt URL on successful payment")
	}

	stored := h.db.GetRental(r.ID)
	if !stored.IsPaid() {
		t.Fatal("expected rental to be marked paid")
	}
	if stored.Status != domain.RentalStatusApproved {
		t.Fatalf("term not over yet, expected APPROVED, got %s", stored.Status)
	}

	// The term ends on the 31st; the next read completes it.
	h.clock.Set(day(2024, 1, 31).Add(10 * time.Hour))
	got, err := h.rentals.Get(ctx, r.ID, customer(customer1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.RentalStatusCompleted {
		t.Fatalf("expected COMPLETED after term, got %s", got.Status)
	}
	if h.publisher.Count(string(service.NotificationRentalCompleted)) != 1 {
		t.Error("expected one rental.completed event")
	}
}

func TestRental_TenDaysPricedDaily(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	r := h.book(t, customer1, day(2024, 1, 1), day(2024, 1, 11))
	if got := money.Format(r.TotalAmount); got != "500.00" {
		t.Fatalf("expected total 500.00, got %s", got)
	}
	if h.publisher.Count(string(service.NotificationRentalRequested)) != 1 {
		t.Error("expected owner to be notified of the request")
	}
}

func TestRental_RejectedByOwner(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	r := h.book(t, customer1, day(2024, 1, 1), day(2024, 1, 11))
	r, err := h.rentals.Reject(context.Background(), r.ID, owner())
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if r.Status != domain.RentalStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", r.Status)
	}

	// The range is free again.
	h.book(t, customer2, day(2024, 1, 5), day(2024, 1, 8))
}

// ──────────────────────────────────────────────
// 2. ADMISSION
// ──────────────────────────────────────────────

func TestRental_OverlapRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.book(t, customer1, day(2024, 1, 1), day(2024, 1, 11))

	_, err := h.rentals.Create(context.Background(), service.CreateRentalRequest{
		VehicleID: vehicleID,
		Customer:  customer(customer2),
		StartDate: day(2024, 1, 5),
		EndDate:   day(2024, 1, 15),
	})
	if !errors.Is(err, service.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRental_BackToBackAllowed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.book(t, customer1, day(2024, 1, 1), day(2024, 1, 11))
	h.book(t, customer2, day(2024, 1, 11), day(2024, 1, 21))
}

func TestRental_CreateValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.clock.Set(day(2024, 1, 10))

	testCases := []struct {
		name    string
		req     service.CreateRentalRequest
		wantErr error
	}{
		{
			name:    "end before start",
			req:     service.CreateRentalRequest{VehicleID: vehicleID, Customer: customer(customer1), StartDate: day(2024, 1, 20), EndDate: day(2024, 1, 15)},
			wantErr: service.ErrInvalidRange,
		},
		{
			name:    "empty range",
			req:     service.CreateRentalRequest{VehicleID: vehicleID, Customer: customer(customer1), StartDate: day(2024, 1, 20), EndDate: day(2024, 1, 20)},
			wantErr: service.ErrInvalidRange,
		},
		{
			name:    "start in the past",
			req:     service.CreateRentalRequest{VehicleID: vehicleID, Customer: customer(customer1), StartDate: day(2024, 1, 9), EndDate: day(2024, 1, 15)},
			wantErr: service.ErrInvalidRange,
		},
		{
			name:    "missing vehicle id",
			req:     service.CreateRentalRequest{Customer: customer(customer1), StartDate: day(2024, 1, 12), EndDate: day(2024, 1, 15)},
			wantErr: service.ErrValidation,
		},
		{
			name:    "unknown vehicle",
			req:     service.CreateRentalRequest{VehicleID: "nope", Customer: customer(customer1), StartDate: day(2024, 1, 12), EndDate: day(2024, 1, 15)},
			wantErr: repository.ErrNotFound,
		},
		{
			name:    "owner cannot book",
			req:     service.CreateRentalRequest{VehicleID: vehicleID, Customer: owner(), StartDate: day(2024, 1, 12), EndDate: day(2024, 1, 15)},
			wantErr: service.ErrForbidden,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.rentals.Create(context.Background(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRental_UnlistedVehicleRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	v, _ := h.db.Store().Vehicles().GetVehicle(context.Background(), vehicleID)
	v.IsAvailable = false
	h.db.AddVehicle(v)

	_, err := h.rentals.Create(context.Background(), service.CreateRentalRequest{
		VehicleID: vehicleID,
		Customer:  customer(customer1),
		StartDate: day(2024, 1, 1),
		EndDate:   day(2024, 1, 5),
	})
	if !errors.Is(err, service.ErrVehicleNotListed) {
		t.Fatalf("expected not listed, got %v", err)
	}
	if h.cache.InvalidateCallCount != 1 {
		t.Error("expected the quote cache to be invalidated")
	}
}

func TestRental_ConcurrentAdmission_OneWins(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	const n = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, conflicts := 0, 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.rentals.Create(context.Background(), service.CreateRentalRequest{
				VehicleID: vehicleID,
				Customer:  customer(customer1),
				StartDate: day(2024, 2, 1),
				EndDate:   day(2024, 2, 10),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, service.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", n-1, successes, conflicts)
	}
}

func TestRental_SerializationRetried(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.db.SerializationFailures = 2

	r := h.book(t, customer1, day(2024, 1, 1), day(2024, 1, 5))
	if h.db.GetRental(r.ID) == nil {
		t.Fatal("expected rental to be stored after retries")
	}
	if h.db.TxAttemptCount != 3 {
		t.Errorf("expected 3 attempts, got %d", h.db.TxAttemptCount)
	}
}

func TestRental_SerializationExhaustedIsConflict(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.db.SerializationFailures = 100

	_, err := h.rentals.Create(context.Background(), service.CreateRentalRequest{
		VehicleID: vehicleID,
		Customer:  customer(customer1),
		StartDate: day(2024, 1, 1),
		EndDate:   day(2024, 1, 5),
	})
	if !errors.Is(err, service.ErrBusy) || !errors.Is(err, service.ErrConflict) {
		t.Fatalf("expected busy conflict, got %v", err)
	}

	list, _ := h.db.Store().Rentals().ListByCustomer(context.Background(), customer1)
	if len(list) != 0 {
		t.Fatalf("expected nothing stored, got %d rentals", len(list))
	}
}

// ──────────────────────────────────────────────
// 3. OWNER AND CUSTOMER ACTIONS
// ──────────────────────────────────────────────

func TestRental_ApproveRequiresControllingOwner(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	r := h.book(t, customer1, day(2024, 1, 1), day(2024, 1, 5))

	if _, err := h.rentals.Approve(ctx, r.ID, otherOwner()); !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("expected forbidden for other owner, got %v", err)
	}
	if _, err := h.rentals.Approve(ctx, r.ID, customer(customer1)); !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("expected forbidden for customer, got %v", err)
	}

	// The vehicle's owner may act without listing the store.
	direct := owner()
	direct.StoreIDs = nil
	if _, err := h.rentals.Approve(ctx, r.ID, direct); err != nil {
		t.Fatalf("expected owner of record to approve, got %v", err)
	}

	if _, err := h.rentals.Approve(ctx, r.ID, owner()); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("expected invalid state on second approval, got %v", err)
	}
	if _, err := h.rentals.Reject(ctx, r.ID, owner()); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("expected invalid state rejecting an approved rental, got %v", err)
	}
}

func TestRental_ApproveRecheckConflict(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	r := h.book(t, customer1, day(2024, 1, 1), day(2024, 1, 10))

	// An overlapping booking approved behind admission's back.
	h.db.AddRental(&domain.RentalRequest{
		ID:          "rental-seeded",
		VehicleID:   vehicleID,
		CustomerID:  customer2,
		StartDate:   day(2024, 1, 5),
		EndDate:     day(2024, 1, 8),
		TotalAmount: money.MustParse("150"),
		Status:      domain.RentalStatusApproved,
		CreatedAt:   h.clock.Now(),
		UpdatedAt:   h.clock.Now(),
	})

	if _, err := h.rentals.Approve(ctx, r.ID, owner()); !errors.Is(err, service.ErrConflict) {
		t.Fatalf("expected conflict approving over an approved booking, got %v", err)
	}
	if got := h.db.GetRental(r.ID).Status; got != domain.RentalStatusPending {
		t.Fatalf("expected request to stay PENDING, got %s", got)
	}
}

func TestRental_CustomerCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	r := h.book(t, customer1, day(2024, 1, 1), day(2024, 1, 5))

	if _, err := h.rentals.Cancel(ctx, r.ID, customer(customer2)); !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("expected forbidden for another customer, got %v", err)
	}

	r, err := h.rentals.Cancel(ctx, r.ID, customer(customer1))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if r.Status != domain.RentalStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", r.Status)
	}

	approved := h.approved(t, customer1, day(2024, 2, 1), day(2024, 2, 5))
	if _, err := h.rentals.Cancel(ctx, approved.ID, customer(customer1)); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("expected invalid state cancelling approved rental, got %v", err)
	}
}

func TestRental_ReadAccess(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	r := h.book(t, customer1, day(2024, 1, 1), day(2024, 1, 5))

	if _, err := h.rentals.Get(ctx, r.ID, customer(customer1)); err != nil {
		t.Errorf("requester should read: %v", err)
	}
	if _, err := h.rentals.Get(ctx, r.ID, owner()); err != nil {
		t.Errorf("owner should read: %v", err)
	}
	if _, err := h.rentals.Get(ctx, r.ID, customer(customer2)); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected forbidden for another customer, got %v", err)
	}
	if _, err := h.rentals.Get(ctx, r.ID, otherOwner()); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected forbidden for another owner, got %v", err)
	}
	if _, err := h.rentals.Get(ctx, "missing", owner()); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRental_Listings(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.book(t, customer1, day(2024, 1, 1), day(2024, 1, 5))
	h.book(t, customer2, day(2024, 1, 5), day(2024, 1, 9))
	h.book(t, customer1, day(2024, 1, 9), day(2024, 1, 12))

	mine, err := h.rentals.ListForCustomer(ctx, customer(customer1))
	if err != nil {
		t.Fatalf("list for customer: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("expected 2 rentals for customer, got %d", len(mine))
	}

	all, err := h.rentals.ListForVehicle(ctx, vehicleID, owner())
	if err != nil {
		t.Fatalf("list for vehicle: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 rentals for vehicle, got %d", len(all))
	}

	if _, err := h.rentals.ListForVehicle(ctx, vehicleID, otherOwner()); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected forbidden for another owner, got %v", err)
	}
}

// ──────────────────────────────────────────────
// 4. RENEWAL
// ──────────────────────────────────────────────

func TestRental_RenewReprices(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	r := h.approved(t, customer1, day(2024, 1, 1), day(2024, 1, 11))

	r, err := h.rentals.Renew(context.Background(), r.ID, customer(customer1), day(2024, 2, 5))
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !r.EndDate.Equal(day(2024, 2, 5)) {
		t.Errorf("expected new end date, got %s", r.EndDate)
	}
	// 35 days: one month plus five days.
	if got := money.Format(r.TotalAmount); got != "1450.00" {
		t.Errorf("expected total 1450.00, got %s", got)
	}
	if r.Status != domain.RentalStatusApproved {
		t.Errorf("expected renewal to stay APPROVED, got %s", r.Status)
	}
}

func TestRental_RenewRules(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	r := h.approved(t, customer1, day(2024, 1, 1), day(2024, 1, 11))
	h.book(t, customer2, day(2024, 1, 15), day(2024, 1, 20))

	if _, err := h.rentals.Renew(ctx, r.ID, customer(customer1), day(2024, 1, 16)); !errors.Is(err, service.ErrConflict) {
		t.Errorf("expected conflict with next booking, got %v", err)
	}
	if _, err := h.rentals.Renew(ctx, r.ID, customer(customer1), day(2024, 1, 11)); !errors.Is(err, service.ErrInvalidRange) {
		t.Errorf("expected invalid range for same end date, got %v", err)
	}
	if _, err := h.rentals.Renew(ctx, r.ID, customer(customer2), day(2024, 1, 14)); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected forbidden for another customer, got %v", err)
	}

	// Up to the next booking is fine.
	if _, err := h.rentals.Renew(ctx, r.ID, customer(customer1), day(2024, 1, 15)); err != nil {
		t.Errorf("expected renewal up to next booking, got %v", err)
	}

	pending := h.book(t, customer1, day(2024, 3, 1), day(2024, 3, 5))
	if _, err := h.rentals.Renew(ctx, pending.ID, customer(customer1), day(2024, 3, 8)); !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("expected invalid state renewing pending rental, got %v", err)
	}

	paid := h.approved(t, customer1, day(2024, 4, 1), day(2024, 4, 5))
	h.pay(t, paid, domain.PaymentMethodMock, "")
	if _, err := h.rentals.Renew(ctx, paid.ID, customer(customer1), day(2024, 4, 8)); !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("expected invalid state renewing paid rental, got %v", err)
	}
}

// ──────────────────────────────────────────────
// 5. QUOTES AND COMPLETION SWEEP
// ──────────────────────────────────────────────

func TestRental_QuoteUsesCache(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	q, err := h.rentals.Quote(ctx, vehicleID, day(2024, 1, 1), day(2024, 2, 5))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if got := money.Format(q.Breakdown.Total); got != "1450.00" {
		t.Errorf("expected 1450.00, got %s", got)
	}
	if q.Breakdown.Months != 1 || q.Breakdown.RemainderDays != 5 {
		t.Errorf("unexpected breakdown %+v", q.Breakdown)
	}

	if _, err := h.rentals.Quote(ctx, vehicleID, day(2024, 1, 1), day(2024, 1, 4)); err != nil {
		t.Fatalf("second quote: %v", err)
	}
	if h.cache.HitCount != 1 {
		t.Errorf("expected second quote to hit the cache, hits=%d", h.cache.HitCount)
	}
}

func TestRental_Availability(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.book(t, customer1, day(2024, 1, 5), day(2024, 1, 10))

	ok, err := h.rentals.CheckAvailability(ctx, vehicleID, day(2024, 1, 8), day(2024, 1, 12))
	if err != nil || ok {
		t.Errorf("expected overlap to be unavailable, got %v %v", ok, err)
	}
	ok, err = h.rentals.CheckAvailability(ctx, vehicleID, day(2024, 1, 10), day(2024, 1, 12))
	if err != nil || !ok {
		t.Errorf("expected adjacent range to be available, got %v %v", ok, err)
	}
}

func TestRental_CompletionSweep(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	paid := h.approved(t, customer1, day(2024, 1, 1), day(2024, 1, 5))
	h.pay(t, paid, domain.PaymentMethodMock, "")
	unpaid := h.approved(t, customer2, day(2024, 1, 5), day(2024, 1, 8))
	settling := h.approved(t, customer1, day(2024, 1, 8), day(2024, 1, 12))
	h.db.AddPayment(&domain.Payment{
		ID:              "payment-settling",
		RentalRequestID: settling.ID,
		Amount:          settling.TotalAmount,
		Method:          domain.PaymentMethodCard,
		Status:          domain.PaymentStatusPending,
		CreatedAt:       h.clock.Now(),
	})

	h.clock.Set(day(2024, 1, 20))

	n, err := h.rentals.CompleteElapsed(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 completions, got %d", n)
	}
	if got := h.db.GetRental(paid.ID).Status; got != domain.RentalStatusCompleted {
		t.Errorf("expected paid rental COMPLETED, got %s", got)
	}
	if got := h.db.GetRental(unpaid.ID).Status; got != domain.RentalStatusCompleted {
		t.Errorf("expected unpaid rental COMPLETED at end of term, got %s", got)
	}
	if got := h.db.GetRental(settling.ID).Status; got != domain.RentalStatusApproved {
		t.Errorf("expected rental with a settling payment to stay APPROVED, got %s", got)
	}

	// A completed term is no longer payable.
	_, err = h.payments.Submit(ctx, service.SubmitPaymentRequest{
		RentalRequestID: unpaid.ID,
		Customer:        customer(customer2),
		Method:          "MOCK",
		Amount:          unpaid.TotalAmount,
	})
	if !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("expected invalid state paying a completed rental, got %v", err)
	}

	n, _ = h.rentals.CompleteElapsed(ctx)
	if n != 0 {
		t.Errorf("expected second sweep to be a no-op, got %d", n)
	}
}

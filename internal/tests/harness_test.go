package tests

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rental/internal/clock"
	"rental/internal/domain"
	"rental/internal/service"
	"rental/internal/settlement"
)

const (
	vehicleID = "vehicle-1"
	storeID   = "store-1"
	ownerID   = "owner-1"
	customer1 = "customer-1"
	customer2 = "customer-2"
)

// harness wires the rental and payment services over the in-memory mocks.
type harness struct {
	db        *MockDB
	locks     *MockLockStore
	cache     *MockCacheStore
	provider  *MockSettlementProvider
	publisher *MockPublisher
	mailer    *MockMailer
	clock     *clock.Fixed
	slips     *settlement.CashSlips

	rentals  *service.RentalService
	payments *service.PaymentService
	receipts *service.ReceiptService
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithConfig(t, service.PaymentConfig{Currency: "THB"})
}

func newHarnessWithConfig(t *testing.T, cfg service.PaymentConfig) *harness {
	t.Helper()

	h := &harness{
		db:        NewMockDB(),
		locks:     NewMockLockStore(),
		cache:     NewMockCacheStore(),
		provider:  NewMockSettlementProvider(),
		publisher: NewMockPublisher(),
		mailer:    NewMockMailer(),
		clock:     clock.NewFixed(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)),
	}

	h.db.AddVehicle(&domain.Vehicle{
		ID:           vehicleID,
		StoreID:      storeID,
		StoreName:    "Downtown Motors",
		OwnerID:      ownerID,
		Name:         "Honda City",
		PlateNumber:  "KA-01-1234",
		RentPerDay:   decimal.RequireFromString("50"),
		RentPerMonth: decimal.RequireFromString("1200"),
		IsAvailable:  true,
	})
	h.db.AddUser(&domain.User{ID: ownerID, Name: "Olivia Owner", Email: "owner@example.com"})
	h.db.AddUser(&domain.User{ID: customer1, Name: "Casey Customer", Email: "casey@example.com"})
	h.db.AddUser(&domain.User{ID: customer2, Name: "Robin Renter", Email: "robin@example.com"})

	if cfg.Currency == "" {
		cfg.Currency = "THB"
	}

	pricing := service.NewPricingEngine(service.DefaultMonthDays)
	notifications := service.NewNotificationService(h.publisher, h.mailer, h.clock)
	h.receipts = service.NewReceiptService(pricing, cfg.Currency, "https://rental.example.com", h.db.Store())
	h.rentals = service.NewRentalService(h.db, pricing, h.cache, notifications, h.clock)
	h.slips = settlement.NewCashSlips("test-slip-secret", 24*time.Hour, h.clock)
	providers := settlement.NewRouter().
		Register(domain.PaymentMethodCard, h.provider).
		Register(domain.PaymentMethodUPI, h.provider).
		Register(domain.PaymentMethodCash, settlement.NewCounterProvider(h.slips))
	h.payments = service.NewPaymentService(h.db, h.locks, providers, h.slips, h.receipts, notifications, h.clock, cfg)

	return h
}

func customer(id string) domain.Principal {
	return domain.Principal{UserID: id, Role: domain.RoleCustomer}
}

func owner() domain.Principal {
	return domain.Principal{UserID: ownerID, Role: domain.RoleOwner, StoreIDs: []string{storeID}}
}

func otherOwner() domain.Principal {
	return domain.Principal{UserID: "owner-2", Role: domain.RoleOwner, StoreIDs: []string{"store-2"}}
}

// book creates a PENDING request for customer over [start, end).
func (h *harness) book(t *testing.T, customerID string, start, end time.Time) *domain.RentalRequest {
	t.Helper()
	r, err := h.rentals.Create(context.Background(), service.CreateRentalRequest{
		VehicleID: vehicleID,
		Customer:  customer(customerID),
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		t.Fatalf("create rental: %v", err)
	}
	return r
}

// approved creates and approves a request.
func (h *harness) approved(t *testing.T, customerID string, start, end time.Time) *domain.RentalRequest {
	t.Helper()
	r := h.book(t, customerID, start, end)
	r, err := h.rentals.Approve(context.Background(), r.ID, owner())
	if err != nil {
		t.Fatalf("approve rental: %v", err)
	}
	return r
}

// pay submits a payment for the full total.
func (h *harness) pay(t *testing.T, r *domain.RentalRequest, method domain.PaymentMethod, token string) *domain.Payment {
	t.Helper()
	p, err := h.payments.Submit(context.Background(), service.SubmitPaymentRequest{
		RentalRequestID: r.ID,
		Customer:        customer(r.CustomerID),
		Method:          string(method),
		Amount:          r.TotalAmount,
		Token:           token,
	})
	if err != nil {
		t.Fatalf("submit payment: %v", err)
	}
	return p
}

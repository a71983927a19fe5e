package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"rental/internal/clock"
	"rental/internal/domain"
	"rental/internal/logger"
	"rental/internal/money"
	"rental/internal/redis"
	"rental/internal/repository"
)

// SettlementRequest is what a settlement provider needs to move the money.
type SettlementRequest struct {
	PaymentID       string
	RentalRequestID string
	Amount          decimal.Decimal
	Currency        string
	Method          domain.PaymentMethod
	Token           string
}

// SettlementProvider charges a payment with an external provider.
// Declines wrap ErrProviderRejected.
type SettlementProvider interface {
	Settle(ctx context.Context, req SettlementRequest) (providerRef string, err error)
}

// CashSlipIssuer signs the slip a store owner hands over after collecting
// cash. The customer pays CASH with the slip as token.
type CashSlipIssuer interface {
	IssueCashSlip(rentalRequestID string, amount decimal.Decimal, issuedBy string) (slip string, expiresAt time.Time, err error)
}

// PaymentConfig holds the payment policy knobs.
type PaymentConfig struct {
	Currency          string
	SettlementTimeout time.Duration
	LockTTL           time.Duration
	StalePaymentAfter time.Duration
}

const (
	DefaultSettlementTimeout = 10 * time.Second
	DefaultPaymentLockTTL    = 30 * time.Second
	DefaultStalePaymentAfter = 5 * time.Minute
)

// PaymentService handles payment operations.
type PaymentService struct {
	tx                  repository.Transactor
	lockStore           redis.LockStoreInterface
	provider            SettlementProvider
	cashSlips           CashSlipIssuer
	receiptService      *ReceiptService
	notificationService *NotificationService
	clock               clock.Clock
	cfg                 PaymentConfig
}

// NewPaymentService creates a new PaymentService. provider may be nil, in
// which case only MOCK payments can succeed. cashSlips may be nil, in which
// case owners cannot issue cash slips.
func NewPaymentService(
	tx repository.Transactor,
	lockStore redis.LockStoreInterface,
	provider SettlementProvider,
	cashSlips CashSlipIssuer,
	receiptService *ReceiptService,
	notificationService *NotificationService,
	clk clock.Clock,
	cfg PaymentConfig,
) *PaymentService {
	if clk == nil {
		clk = clock.System{}
	}
	if cfg.SettlementTimeout <= 0 {
		cfg.SettlementTimeout = DefaultSettlementTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultPaymentLockTTL
	}
	if cfg.StalePaymentAfter <= 0 {
		cfg.StalePaymentAfter = DefaultStalePaymentAfter
	}
	return &PaymentService{
		tx:                  tx,
		lockStore:           lockStore,
		provider:            provider,
		cashSlips:           cashSlips,
		receiptService:      receiptService,
		notificationService: notificationService,
		clock:               clk,
		cfg:                 cfg,
	}
}

// SubmitPaymentRequest contains the parameters for paying a rental request.
type SubmitPaymentRequest struct {
	RentalRequestID string
	Customer        domain.Principal
	Method          string
	Amount          decimal.Decimal
	Token           string
}

// Submit pays an APPROVED rental request. A declined or timed out settlement
// is not an error: the FAILED payment is returned and the request stays payable.
//
// Once the payment lock is held the attempt runs to a recorded outcome even
// if the caller goes away. A charge whose outcome could not be recorded keeps
// its provider reference on the PENDING row for FailStalePayments.
func (s *PaymentService) Submit(ctx context.Context, req SubmitPaymentRequest) (*domain.Payment, error) {
	if req.RentalRequestID == "" {
		return nil, ErrInvalidRentalID
	}

	method, err := domain.ParsePaymentMethod(req.Method)
	if err != nil {
		return nil, ErrInvalidPaymentMethod
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidPaymentAmount
	}
	if !money.Exact(req.Amount) {
		return nil, ErrPaymentAmountPrecision
	}
	if method != domain.PaymentMethodMock && req.Token == "" {
		return nil, ErrMissingPaymentToken
	}

	lockToken, acquired, err := s.lockStore.AcquirePaymentLock(ctx, req.RentalRequestID, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrAlreadyInProgress
	}

	ctx = context.WithoutCancel(ctx)
	defer s.releaseLock(ctx, req.RentalRequestID, lockToken)

	payment, err := s.open(ctx, req, method)
	if err != nil {
		return nil, err
	}

	providerRef, settleErr := s.settle(ctx, payment, req.Token)
	if settleErr != nil {
		return s.fail(ctx, payment, settleErr)
	}
	s.recordProviderRef(ctx, payment, providerRef)
	return s.succeed(ctx, payment, providerRef)
}

func (s *PaymentService) releaseLock(ctx context.Context, rentalRequestID, token string) {
	if err := s.lockStore.ReleasePaymentLock(ctx, rentalRequestID, token); err != nil {
		logger.FromContext(ctx).WithError(err).WithField("rental_request_id", rentalRequestID).Warn("payment lock not released")
	}
}

// open validates the rental request and records a PENDING payment.
func (s *PaymentService) open(ctx context.Context, req SubmitPaymentRequest, method domain.PaymentMethod) (*domain.Payment, error) {
	var payment *domain.Payment

	err := s.withinTx(ctx, func(ctx context.Context, store repository.Store) error {
		rental, err := store.Rentals().GetByIDForUpdate(ctx, req.RentalRequestID)
		if err != nil {
			return err
		}
		if !isRequester(req.Customer, rental) {
			return ErrNotRequester
		}
		if rental.Status != domain.RentalStatusApproved {
			return invalidTransition("rental request", rental.Status, "payment")
		}
		if rental.IsPaid() {
			return ErrRentalAlreadyPaid
		}
		if !money.Equal(req.Amount, rental.TotalAmount) {
			return fmt.Errorf("%w: expected %s, got %s", ErrAmountMismatch, money.Format(rental.TotalAmount), money.Format(req.Amount))
		}

		pending, err := store.Payments().GetPendingByRental(ctx, rental.ID)
		if err != nil {
			return err
		}
		if pending != nil {
			return ErrAlreadyInProgress
		}

		payment = &domain.Payment{
			ID:              uuid.New().String(),
			RentalRequestID: rental.ID,
			Amount:          money.Round(rental.TotalAmount),
			Method:          method,
			Status:          domain.PaymentStatusPending,
			CreatedAt:       s.clock.Now(),
		}

		err = store.Payments().Create(ctx, payment)
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrAlreadyInProgress
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).WithFields(log.Fields{
		"payment_id":        payment.ID,
		"rental_request_id": payment.RentalRequestID,
		"method":            payment.Method,
		"amount":            money.Format(payment.Amount),
	}).Info("payment opened")
	return payment, nil
}

// settle moves the money. MOCK settles locally.
func (s *PaymentService) settle(ctx context.Context, payment *domain.Payment, token string) (string, error) {
	if payment.Method == domain.PaymentMethodMock {
		return "mock_" + payment.ID, nil
	}
	if s.provider == nil {
		return "", fmt.Errorf("%w: no settlement provider configured", ErrProviderRejected)
	}

	settleCtx, cancel := context.WithTimeout(ctx, s.cfg.SettlementTimeout)
	defer cancel()

	type result struct {
		ref string
		err error
	}
	done := make(chan result, 1)

	start := time.Now()
	go func() {
		ref, err := s.provider.Settle(settleCtx, SettlementRequest{
			PaymentID:       payment.ID,
			RentalRequestID: payment.RentalRequestID,
			Amount:          payment.Amount,
			Currency:        s.cfg.Currency,
			Method:          payment.Method,
			Token:           token,
		})
		done <- result{ref: ref, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-settleCtx.Done():
		res = result{err: settleCtx.Err()}
	}

	entry := logger.FromContext(ctx).WithFields(log.Fields{
		"payment_id":  payment.ID,
		"method":      payment.Method,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	switch {
	case res.err == nil:
		entry.WithField("provider_ref", res.ref).Info("settlement succeeded")
		return res.ref, nil
	case errors.Is(res.err, context.DeadlineExceeded):
		entry.Warn("settlement timed out")
		return "", fmt.Errorf("%w after %s", ErrProviderTimeout, s.cfg.SettlementTimeout)
	case errors.Is(res.err, ErrProviderRejected):
		entry.WithError(res.err).Warn("settlement rejected")
		return "", res.err
	default:
		entry.WithError(res.err).Warn("settlement failed")
		return "", fmt.Errorf("%w: %v", ErrProviderRejected, res.err)
	}
}

// recordProviderRef saves the charge reference with a plain update outside
// any transaction.
func (s *PaymentService) recordProviderRef(ctx context.Context, payment *domain.Payment, providerRef string) {
	if payment.Method == domain.PaymentMethodMock {
		return
	}
	if err := s.tx.Store().Payments().RecordProviderRef(ctx, payment.ID, providerRef); err != nil {
		logger.FromContext(ctx).WithError(err).WithFields(log.Fields{
			"payment_id":   payment.ID,
			"provider_ref": providerRef,
		}).Error("provider reference not recorded")
		return
	}
	payment.ProviderRef = providerRef
}

// succeed records a settled payment, issues its receipt and marks the rental paid.
func (s *PaymentService) succeed(ctx context.Context, payment *domain.Payment, providerRef string) (*domain.Payment, error) {
	var (
		rec      *domain.Receipt
		doc      []byte
		customer *domain.User
	)

	err := s.withinTx(ctx, func(ctx context.Context, store repository.Store) error {
		current, err := store.Payments().GetByID(ctx, payment.ID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(domain.PaymentStatusSuccess) {
			return invalidTransition("payment", current.Status, domain.PaymentStatusSuccess)
		}

		rental, err := store.Rentals().GetByIDForUpdate(ctx, payment.RentalRequestID)
		if err != nil {
			return err
		}
		if rental.Status != domain.RentalStatusApproved || rental.IsPaid() {
			return invalidTransition("rental request", rental.Status, "paid")
		}

		vehicle, err := store.Vehicles().GetVehicle(ctx, rental.VehicleID)
		if err != nil {
			return err
		}
		owner, err := lookupUser(ctx, store.Vehicles(), vehicle.OwnerID)
		if err != nil {
			return err
		}
		customer, err = lookupUser(ctx, store.Vehicles(), rental.CustomerID)
		if err != nil {
			return err
		}

		settledAt := s.clock.Now().UTC().Truncate(time.Second)
		settled := *payment
		settled.Status = domain.PaymentStatusSuccess
		settled.ProviderRef = providerRef
		settled.SettledAt = &settledAt
		settled.ReceiptURL = s.receiptService.ReceiptURL(payment.ID)

		rec, doc, err = s.receiptService.Generate(ReceiptSnapshot{
			Payment:  &settled,
			Rental:   rental,
			Vehicle:  vehicle,
			Owner:    owner,
			Customer: customer,
		})
		if err != nil {
			return err
		}

		if err := store.Receipts().Create(ctx, rec); err != nil {
			return err
		}
		if err := store.Payments().Settle(ctx, &settled); err != nil {
			return err
		}

		rental.PaidAt = &settledAt
		if rental.DueForCompletion(clock.Today(s.clock)) {
			rental.Status = domain.RentalStatusCompleted
		}
		rental.UpdatedAt = s.clock.Now()
		if err := store.Rentals().Update(ctx, rental); err != nil {
			return err
		}

		*payment = settled
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithFields(log.Fields{
			"payment_id":   payment.ID,
			"provider_ref": providerRef,
		}).Error("charged payment could not be recorded")
		return nil, err
	}

	logger.FromContext(ctx).WithFields(log.Fields{
		"payment_id":        payment.ID,
		"rental_request_id": payment.RentalRequestID,
		"receipt_id":        rec.ID,
	}).Info("payment succeeded")

	if s.notificationService != nil {
		_ = s.notificationService.NotifyPaymentSuccess(ctx, payment, rec, doc, customer)
	}
	return payment, nil
}

// fail records the settlement failure. The rental request is left untouched.
func (s *PaymentService) fail(ctx context.Context, payment *domain.Payment, cause error) (*domain.Payment, error) {
	var customerID string

	err := s.withinTx(ctx, func(ctx context.Context, store repository.Store) error {
		current, err := store.Payments().GetByID(ctx, payment.ID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(domain.PaymentStatusFailed) {
			return invalidTransition("payment", current.Status, domain.PaymentStatusFailed)
		}

		rental, err := store.Rentals().GetByID(ctx, payment.RentalRequestID)
		if err != nil {
			return err
		}
		customerID = rental.CustomerID

		failed := *current
		failed.Status = domain.PaymentStatusFailed
		failed.FailureReason = cause.Error()
		settledAt := s.clock.Now().UTC().Truncate(time.Second)
		failed.SettledAt = &settledAt

		if err := store.Payments().Settle(ctx, &failed); err != nil {
			return err
		}
		*payment = failed
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).WithFields(log.Fields{
		"payment_id":        payment.ID,
		"rental_request_id": payment.RentalRequestID,
		"reason":            payment.FailureReason,
	}).Warn("payment failed")

	if s.notificationService != nil {
		_ = s.notificationService.NotifyPaymentFailed(ctx, payment, customerID)
	}
	return payment, nil
}

// Get retrieves a payment the caller may see.
func (s *PaymentService) Get(ctx context.Context, paymentID string, p domain.Principal) (*domain.Payment, error) {
	if paymentID == "" {
		return nil, ErrInvalidPaymentID
	}

	store := s.tx.Store()
	payment, err := store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	rental, err := store.Rentals().GetByID(ctx, payment.RentalRequestID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(ctx, store.Vehicles(), rental, p); err != nil {
		return nil, err
	}
	return payment, nil
}

// ListForRental returns every payment attempt for a rental request, oldest first.
func (s *PaymentService) ListForRental(ctx context.Context, rentalID string, p domain.Principal) ([]*domain.Payment, error) {
	if rentalID == "" {
		return nil, ErrInvalidRentalID
	}

	store := s.tx.Store()
	rental, err := store.Rentals().GetByID(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(ctx, store.Vehicles(), rental, p); err != nil {
		return nil, err
	}
	return store.Payments().ListByRental(ctx, rentalID)
}

// FailStalePayments resolves PENDING payments older than StalePaymentAfter so
// their rental requests become payable again. A payment that already carries
// a provider reference was charged and is recorded as SUCCESS; the rest are
// failed. Payments whose lock is still held are left alone. It returns how
// many payments were resolved.
func (s *PaymentService) FailStalePayments(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.cfg.StalePaymentAfter)
	stale, err := s.tx.Store().Payments().ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, p := range stale {
		ok, err := s.resolveStale(ctx, p)
		if err != nil {
			logger.FromContext(ctx).WithError(err).WithFields(log.Fields{
				"payment_id":   p.ID,
				"provider_ref": p.ProviderRef,
			}).Warn("stale payment not resolved")
			continue
		}
		if ok {
			resolved++
		}
	}
	return resolved, nil
}

func (s *PaymentService) resolveStale(ctx context.Context, p *domain.Payment) (bool, error) {
	lockToken, acquired, err := s.lockStore.AcquirePaymentLock(ctx, p.RentalRequestID, s.cfg.LockTTL)
	if err != nil {
		return false, err
	}
	if !acquired {
		// Still settling.
		return false, nil
	}
	defer s.releaseLock(context.WithoutCancel(ctx), p.RentalRequestID, lockToken)

	if p.ProviderRef != "" {
		logger.FromContext(ctx).WithFields(log.Fields{
			"payment_id":   p.ID,
			"provider_ref": p.ProviderRef,
		}).Info("reconciling charged payment")
		_, err = s.succeed(ctx, p, p.ProviderRef)
	} else {
		_, err = s.fail(ctx, p, fmt.Errorf("%w: settlement not confirmed within %s", ErrProviderTimeout, s.cfg.StalePaymentAfter))
	}
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	case errors.Is(err, ErrInvalidState) && p.ProviderRef == "":
		// Settled in the meantime.
		return false, nil
	default:
		return false, err
	}
}

// IssueCashSlip lets the owner of a rental's vehicle confirm that the rental
// total was paid in cash. The customer then submits a CASH payment with the
// slip as token.
func (s *PaymentService) IssueCashSlip(ctx context.Context, rentalID string, owner domain.Principal) (*CashSlip, error) {
	if rentalID == "" {
		return nil, ErrInvalidRentalID
	}
	if s.cashSlips == nil {
		return nil, ErrCashNotAccepted
	}

	store := s.tx.Store()
	rental, err := store.Rentals().GetByID(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	vehicle, err := store.Vehicles().GetVehicle(ctx, rental.VehicleID)
	if err != nil {
		return nil, err
	}
	if !ownerControls(owner, vehicle) {
		return nil, ErrNotOwner
	}
	if rental.Status != domain.RentalStatusApproved {
		return nil, invalidTransition("rental request", rental.Status, "payment")
	}
	if rental.IsPaid() {
		return nil, ErrRentalAlreadyPaid
	}

	amount := money.Round(rental.TotalAmount)
	slip, expiresAt, err := s.cashSlips.IssueCashSlip(rental.ID, amount, owner.UserID)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).WithFields(log.Fields{
		"rental_request_id": rental.ID,
		"owner_id":          owner.UserID,
		"amount":            money.Format(amount),
	}).Info("cash slip issued")

	return &CashSlip{
		RentalRequestID: rental.ID,
		Amount:          amount,
		Slip:            slip,
		ExpiresAt:       expiresAt,
	}, nil
}

// CashSlip is a signed confirmation of cash collected by the store.
type CashSlip struct {
	RentalRequestID string
	Amount          decimal.Decimal
	Slip            string
	ExpiresAt       time.Time
}

func (s *PaymentService) withinTx(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	err := s.tx.WithinTx(ctx, fn)
	if errors.Is(err, repository.ErrSerialization) {
		return ErrBusy
	}
	return err
}

// lookupUser reads a user snapshot; a missing user yields nil.
func lookupUser(ctx context.Context, users repository.VehicleDirectory, id string) (*domain.User, error) {
	u, err := users.GetUser(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

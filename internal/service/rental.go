package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"rental/internal/clock"
	"rental/internal/domain"
	"rental/internal/logger"
	"rental/internal/redis"
	"rental/internal/repository"
)

// RentalService drives rental requests through their lifecycle.
type RentalService struct {
	tx                  repository.Transactor
	pricing             *PricingEngine
	cache               redis.CacheStoreInterface
	notificationService *NotificationService
	clock               clock.Clock
}

// NewRentalService creates a new RentalService. cache may be nil.
func NewRentalService(
	tx repository.Transactor,
	pricing *PricingEngine,
	cache redis.CacheStoreInterface,
	notificationService *NotificationService,
	clk clock.Clock,
) *RentalService {
	if clk == nil {
		clk = clock.System{}
	}
	return &RentalService{
		tx:                  tx,
		pricing:             pricing,
		cache:               cache,
		notificationService: notificationService,
		clock:               clk,
	}
}

// CreateRentalRequest contains the parameters for booking a vehicle.
type CreateRentalRequest struct {
	VehicleID string
	Customer  domain.Principal
	StartDate time.Time
	EndDate   time.Time
}

// Quote is a price preview for a booking form.
type Quote struct {
	VehicleID string
	StartDate time.Time
	EndDate   time.Time
	Listed    bool
	Breakdown *PriceBreakdown
}

// Create books a vehicle for [StartDate, EndDate) as a PENDING request.
func (s *RentalService) Create(ctx context.Context, req CreateRentalRequest) (*domain.RentalRequest, error) {
	if req.VehicleID == "" {
		return nil, ErrInvalidVehicleID
	}
	if !req.Customer.IsCustomer() {
		return nil, ErrNotRequester
	}

	start, end := clock.Date(req.StartDate), clock.Date(req.EndDate)
	if err := s.validateRange(start, end); err != nil {
		return nil, err
	}

	var rental *domain.RentalRequest
	var ownerID string

	err := s.withinTx(ctx, func(ctx context.Context, store repository.Store) error {
		vehicle, err := store.Vehicles().LockVehicle(ctx, req.VehicleID)
		if err != nil {
			return err
		}
		if !vehicle.IsAvailable {
			return ErrVehicleNotListed
		}

		available, err := NewAvailabilityChecker(store.Rentals()).IsAvailable(ctx, vehicle.ID, start, end, "")
		if err != nil {
			return err
		}
		if !available {
			return ErrVehicleUnavailable
		}

		total, err := s.pricing.Price(vehicle, start, end)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		rental = &domain.RentalRequest{
			ID:          uuid.New().String(),
			VehicleID:   vehicle.ID,
			CustomerID:  req.Customer.UserID,
			StartDate:   start,
			EndDate:     end,
			TotalAmount: total,
			Status:      domain.RentalStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		ownerID = vehicle.OwnerID

		return store.Rentals().Create(ctx, rental)
	})
	if err != nil {
		if errors.Is(err, ErrVehicleNotListed) && s.cache != nil {
			// The quote cache may still show the vehicle as listed.
			_ = s.cache.InvalidateVehicle(ctx, req.VehicleID)
		}
		return nil, err
	}

	s.logTransition(ctx, rental, "", rental.Status)
	if s.notificationService != nil {
		_ = s.notificationService.NotifyRentalRequested(ctx, rental, ownerID)
	}

	return rental, nil
}

// Approve accepts a PENDING request on behalf of the vehicle's owner.
func (s *RentalService) Approve(ctx context.Context, rentalID string, owner domain.Principal) (*domain.RentalRequest, error) {
	rental, err := s.ownerDecision(ctx, rentalID, owner, domain.RentalStatusApproved)
	if err != nil {
		return nil, err
	}
	if s.notificationService != nil {
		_ = s.notificationService.NotifyRentalApproved(ctx, rental)
	}
	return rental, nil
}

// Reject declines a PENDING request on behalf of the vehicle's owner.
func (s *RentalService) Reject(ctx context.Context, rentalID string, owner domain.Principal) (*domain.RentalRequest, error) {
	rental, err := s.ownerDecision(ctx, rentalID, owner, domain.RentalStatusCancelled)
	if err != nil {
		return nil, err
	}
	if s.notificationService != nil {
		_ = s.notificationService.NotifyRentalRejected(ctx, rental)
	}
	return rental, nil
}

func (s *RentalService) ownerDecision(ctx context.Context, rentalID string, owner domain.Principal, to domain.RentalStatus) (*domain.RentalRequest, error) {
	if rentalID == "" {
		return nil, ErrInvalidRentalID
	}

	var rental *domain.RentalRequest
	var from domain.RentalStatus

	err := s.withinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var vehicle *domain.Vehicle
		var err error
		rental, vehicle, err = lockRentalAndVehicle(ctx, store, rentalID)
		if err != nil {
			return err
		}

		if !ownerControls(owner, vehicle) {
			return ErrNotOwner
		}
		if !rental.Status.CanTransitionTo(to) {
			return invalidTransition("rental request", rental.Status, to)
		}

		if to == domain.RentalStatusApproved {
			available, err := NewAvailabilityChecker(store.Rentals()).IsAvailable(ctx, rental.VehicleID, rental.StartDate, rental.EndDate, rental.ID)
			if err != nil {
				return err
			}
			if !available {
				return ErrVehicleUnavailable
			}
		}

		from = rental.Status
		rental.Status = to
		rental.UpdatedAt = s.clock.Now()
		return store.Rentals().Update(ctx, rental)
	})
	if err != nil {
		return nil, err
	}

	s.logTransition(ctx, rental, from, to)
	return rental, nil
}

// Cancel withdraws a PENDING request on behalf of the requesting customer.
func (s *RentalService) Cancel(ctx context.Context, rentalID string, customer domain.Principal) (*domain.RentalRequest, error) {
	if rentalID == "" {
		return nil, ErrInvalidRentalID
	}

	var rental *domain.RentalRequest
	var ownerID string
	var from domain.RentalStatus

	err := s.withinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		rental, err = store.Rentals().GetByIDForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		if !isRequester(customer, rental) {
			return ErrNotRequester
		}
		if !rental.Status.CanTransitionTo(domain.RentalStatusCancelled) {
			return invalidTransition("rental request", rental.Status, domain.RentalStatusCancelled)
		}

		vehicle, err := store.Vehicles().GetVehicle(ctx, rental.VehicleID)
		if err != nil {
			return err
		}
		ownerID = vehicle.OwnerID

		from = rental.Status
		rental.Status = domain.RentalStatusCancelled
		rental.UpdatedAt = s.clock.Now()
		return store.Rentals().Update(ctx, rental)
	})
	if err != nil {
		return nil, err
	}

	s.logTransition(ctx, rental, from, rental.Status)
	if s.notificationService != nil {
		_ = s.notificationService.NotifyRentalCancelled(ctx, rental, ownerID)
	}
	return rental, nil
}

// Renew extends an APPROVED, unpaid request to newEnd and reprices the full range.
func (s *RentalService) Renew(ctx context.Context, rentalID string, customer domain.Principal, newEnd time.Time) (*domain.RentalRequest, error) {
	if rentalID == "" {
		return nil, ErrInvalidRentalID
	}
	newEnd = clock.Date(newEnd)

	var rental *domain.RentalRequest
	var ownerID string
	var oldEnd time.Time

	err := s.withinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var vehicle *domain.Vehicle
		var err error
		rental, vehicle, err = lockRentalAndVehicle(ctx, store, rentalID)
		if err != nil {
			return err
		}

		if !isRequester(customer, rental) {
			return ErrNotRequester
		}
		if rental.Status != domain.RentalStatusApproved {
			return invalidTransition("rental request", rental.Status, "renewal")
		}
		if rental.IsPaid() {
			return ErrRentalAlreadyPaid
		}

		pending, err := store.Payments().GetPendingByRental(ctx, rental.ID)
		if err != nil {
			return err
		}
		if pending != nil {
			return ErrAlreadyInProgress
		}

		if !newEnd.After(rental.EndDate) {
			return ErrRenewalNotLater
		}

		available, err := NewAvailabilityChecker(store.Rentals()).IsAvailable(ctx, rental.VehicleID, rental.EndDate, newEnd, rental.ID)
		if err != nil {
			return err
		}
		if !available {
			return ErrVehicleUnavailable
		}

		total, err := s.pricing.Price(vehicle, rental.StartDate, newEnd)
		if err != nil {
			return err
		}

		oldEnd = rental.EndDate
		ownerID = vehicle.OwnerID
		rental.EndDate = newEnd
		rental.TotalAmount = total
		rental.UpdatedAt = s.clock.Now()
		return store.Rentals().Update(ctx, rental)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).WithFields(log.Fields{
		"rental_request_id": rental.ID,
		"old_end":           clock.FormatDate(oldEnd),
		"new_end":           clock.FormatDate(newEnd),
		"total_amount":      rental.TotalAmount.StringFixed(2),
	}).Info("rental request renewed")
	if s.notificationService != nil {
		_ = s.notificationService.NotifyRentalRenewed(ctx, rental, ownerID)
	}
	return rental, nil
}

// Get returns a rental request visible to the caller.
func (s *RentalService) Get(ctx context.Context, rentalID string, p domain.Principal) (*domain.RentalRequest, error) {
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

	return s.completeIfDue(ctx, rental), nil
}

// ListForCustomer returns the caller's own rental requests.
func (s *RentalService) ListForCustomer(ctx context.Context, customer domain.Principal) ([]*domain.RentalRequest, error) {
	rentals, err := s.tx.Store().Rentals().ListByCustomer(ctx, customer.UserID)
	if err != nil {
		return nil, err
	}
	for i, r := range rentals {
		rentals[i] = s.completeIfDue(ctx, r)
	}
	return rentals, nil
}

// ListForVehicle returns every request for a vehicle the owner controls.
func (s *RentalService) ListForVehicle(ctx context.Context, vehicleID string, owner domain.Principal) ([]*domain.RentalRequest, error) {
	if vehicleID == "" {
		return nil, ErrInvalidVehicleID
	}

	store := s.tx.Store()
	vehicle, err := store.Vehicles().GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if !ownerControls(owner, vehicle) {
		return nil, ErrNotOwner
	}

	rentals, err := store.Rentals().ListByVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	for i, r := range rentals {
		rentals[i] = s.completeIfDue(ctx, r)
	}
	return rentals, nil
}

// CheckAvailability reports whether the vehicle is free over [start, end).
func (s *RentalService) CheckAvailability(ctx context.Context, vehicleID string, start, end time.Time) (bool, error) {
	if vehicleID == "" {
		return false, ErrInvalidVehicleID
	}
	store := s.tx.Store()
	if _, err := store.Vehicles().GetVehicle(ctx, vehicleID); err != nil {
		return false, err
	}
	return NewAvailabilityChecker(store.Rentals()).IsAvailable(ctx, vehicleID, clock.Date(start), clock.Date(end), "")
}

// Quote prices [start, end) for a vehicle without booking it.
func (s *RentalService) Quote(ctx context.Context, vehicleID string, start, end time.Time) (*Quote, error) {
	if vehicleID == "" {
		return nil, ErrInvalidVehicleID
	}

	start, end = clock.Date(start), clock.Date(end)
	if err := s.validateRange(start, end); err != nil {
		return nil, err
	}

	vehicle, err := s.quoteVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	b, err := s.pricing.Breakdown(vehicle, start, end)
	if err != nil {
		return nil, err
	}

	return &Quote{
		VehicleID: vehicleID,
		StartDate: start,
		EndDate:   end,
		Listed:    vehicle.IsAvailable,
		Breakdown: b,
	}, nil
}

// CompleteElapsed moves every APPROVED request whose term has ended to
// COMPLETED and returns how many were moved. Requests with a payment still
// settling are left for a later run.
func (s *RentalService) CompleteElapsed(ctx context.Context) (int, error) {
	due, err := s.tx.Store().Rentals().ListDueForCompletion(ctx, clock.Today(s.clock))
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, r := range due {
		_, moved, err := s.complete(ctx, r.ID)
		if err != nil {
			logger.FromContext(ctx).WithError(err).WithField("rental_request_id", r.ID).Warn("completion failed")
			continue
		}
		if moved {
			completed++
		}
	}
	return completed, nil
}

// completeIfDue applies lazy completion to a rental that was just read.
func (s *RentalService) completeIfDue(ctx context.Context, rental *domain.RentalRequest) *domain.RentalRequest {
	if !rental.DueForCompletion(clock.Today(s.clock)) {
		return rental
	}

	updated, _, err := s.complete(ctx, rental.ID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField("rental_request_id", rental.ID).Warn("lazy completion failed")
		return rental
	}
	return updated
}

func (s *RentalService) complete(ctx context.Context, rentalID string) (*domain.RentalRequest, bool, error) {
	var rental *domain.RentalRequest
	moved := false

	err := s.withinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		rental, err = store.Rentals().GetByIDForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		if !rental.DueForCompletion(clock.Today(s.clock)) {
			return nil
		}
		pending, err := store.Payments().GetPendingByRental(ctx, rental.ID)
		if err != nil {
			return err
		}
		if pending != nil {
			return nil
		}
		if !rental.Status.CanTransitionTo(domain.RentalStatusCompleted) {
			return invalidTransition("rental request", rental.Status, domain.RentalStatusCompleted)
		}

		rental.Status = domain.RentalStatusCompleted
		rental.UpdatedAt = s.clock.Now()
		moved = true
		return store.Rentals().Update(ctx, rental)
	})
	if err != nil {
		return nil, false, err
	}

	if moved {
		s.logTransition(ctx, rental, domain.RentalStatusApproved, domain.RentalStatusCompleted)
		if s.notificationService != nil {
			_ = s.notificationService.NotifyRentalCompleted(ctx, rental)
		}
	}
	return rental, moved, nil
}

func (s *RentalService) validateRange(start, end time.Time) error {
	if !start.Before(end) {
		return ErrEndBeforeStart
	}
	if start.Before(clock.Today(s.clock)) {
		return ErrStartInPast
	}
	return nil
}

// quoteVehicle reads the vehicle through the snapshot cache when one is configured.
func (s *RentalService) quoteVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	if s.cache != nil {
		cached, err := s.cache.GetVehicle(ctx, vehicleID)
		if err == nil && cached != nil {
			return &domain.Vehicle{
				ID:           cached.ID,
				StoreID:      cached.StoreID,
				OwnerID:      cached.OwnerID,
				Name:         cached.Name,
				RentPerDay:   cached.RentPerDay,
				RentPerMonth: cached.RentPerMonth,
				IsAvailable:  cached.IsAvailable,
			}, nil
		}
	}

	vehicle, err := s.tx.Store().Vehicles().GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.SetVehicle(ctx, &redis.CachedVehicle{
			ID:           vehicle.ID,
			StoreID:      vehicle.StoreID,
			OwnerID:      vehicle.OwnerID,
			Name:         vehicle.Name,
			RentPerDay:   vehicle.RentPerDay,
			RentPerMonth: vehicle.RentPerMonth,
			IsAvailable:  vehicle.IsAvailable,
		})
	}
	return vehicle, nil
}

// withinTx runs fn in a transaction and reports exhausted serialization retries as a conflict.
func (s *RentalService) withinTx(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	err := s.tx.WithinTx(ctx, fn)
	if errors.Is(err, repository.ErrSerialization) {
		return ErrBusy
	}
	return err
}

func (s *RentalService) logTransition(ctx context.Context, rental *domain.RentalRequest, from, to domain.RentalStatus) {
	logger.FromContext(ctx).WithFields(log.Fields{
		"rental_request_id": rental.ID,
		"vehicle_id":        rental.VehicleID,
		"from":              from,
		"to":                to,
	}).Info("rental status changed")
}

// lockRentalAndVehicle locks the vehicle row before the rental row, the same
// order Create uses, so concurrent admissions cannot deadlock each other.
func lockRentalAndVehicle(ctx context.Context, store repository.Store, rentalID string) (*domain.RentalRequest, *domain.Vehicle, error) {
	current, err := store.Rentals().GetByID(ctx, rentalID)
	if err != nil {
		return nil, nil, err
	}
	vehicle, err := store.Vehicles().LockVehicle(ctx, current.VehicleID)
	if err != nil {
		return nil, nil, err
	}
	rental, err := store.Rentals().GetByIDForUpdate(ctx, rentalID)
	if err != nil {
		return nil, nil, err
	}
	return rental, vehicle, nil
}

func ownerControls(p domain.Principal, v *domain.Vehicle) bool {
	return p.IsOwner() && (p.ControlsStore(v.StoreID) || v.OwnerID == p.UserID)
}

func isRequester(p domain.Principal, r *domain.RentalRequest) bool {
	return p.IsCustomer() && r.CustomerID == p.UserID
}

// authorizeRead allows the requesting customer and the controlling owner.
func authorizeRead(ctx context.Context, vehicles repository.VehicleDirectory, r *domain.RentalRequest, p domain.Principal) error {
	if r.CustomerID == p.UserID {
		return nil
	}
	if p.IsOwner() {
		v, err := vehicles.GetVehicle(ctx, r.VehicleID)
		if err != nil {
			return err
		}
		if ownerControls(p, v) {
			return nil
		}
	}
	return ErrForbidden
}


package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rental/internal/clock"
	"rental/internal/domain"
	"rental/internal/repository"
)

// RentalRepository is a PostgreSQL implementation of repository.RentalRepository.
type RentalRepository struct {
	q Querier
}

// NewRentalRepository creates a new PostgreSQL rental repository.
func NewRentalRepository(db *sql.DB) *RentalRepository {
	return &RentalRepository{q: db}
}

// NewRentalRepositoryWithTx creates a rental repository using a transaction.
func NewRentalRepositoryWithTx(tx *sql.Tx) *RentalRepository {
	return &RentalRepository{q: tx}
}

const rentalColumns = `id, vehicle_id, customer_id, start_date, end_date, total_amount, status, paid_at, created_at, updated_at`

// Create persists a new rental request.
func (r *RentalRepository) Create(ctx context.Context, rental *domain.RentalRequest) error {
	query := `
		INSERT INTO rental_requests (id, vehicle_id, customer_id, start_date, end_date, total_amount, status, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q.ExecContext(ctx, query,
		rental.ID,
		rental.VehicleID,
		rental.CustomerID,
		rental.StartDate,
		rental.EndDate,
		rental.TotalAmount,
		rental.Status,
		nullTime(rental.PaidAt),
		rental.CreatedAt,
		rental.UpdatedAt,
	)

	return mapError(err)
}

// GetByID retrieves a rental request by ID.
func (r *RentalRepository) GetByID(ctx context.Context, id string) (*domain.RentalRequest, error) {
	query := `SELECT ` + rentalColumns + ` FROM rental_requests WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDForUpdate retrieves a rental request and locks its row.
func (r *RentalRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.RentalRequest, error) {
	query := `SELECT ` + rentalColumns + ` FROM rental_requests WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *RentalRepository) getOne(ctx context.Context, query, id string) (*domain.RentalRequest, error) {
	rental, err := scanRental(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapError(err)
	}
	return rental, nil
}

// Update saves the mutable fields of a rental request.
func (r *RentalRepository) Update(ctx context.Context, rental *domain.RentalRequest) error {
	query := `
		UPDATE rental_requests
		SET status = $1, end_date = $2, total_amount = $3, paid_at = $4, updated_at = $5
		WHERE id = $6
	`

	result, err := r.q.ExecContext(ctx, query,
		rental.Status,
		rental.EndDate,
		rental.TotalAmount,
		nullTime(rental.PaidAt),
		rental.UpdatedAt,
		rental.ID,
	)
	if err != nil {
		return mapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListBlocking returns PENDING/APPROVED requests overlapping [start, end).
func (r *RentalRepository) ListBlocking(ctx context.Context, vehicleID string, start, end time.Time, excludeID string) ([]*domain.RentalRequest, error) {
	query := `
		SELECT ` + rentalColumns + `
		FROM rental_requests
		WHERE vehicle_id = $1
		  AND status IN ('PENDING', 'APPROVED')
		  AND start_date < $3
		  AND $2 < end_date
		  AND id <> $4
		ORDER BY start_date
	`
	return r.list(ctx, query, vehicleID, start, end, excludeID)
}

// ListByCustomer returns all requests made by a customer.
func (r *RentalRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.RentalRequest, error) {
	query := `SELECT ` + rentalColumns + ` FROM rental_requests WHERE customer_id = $1 ORDER BY created_at DESC LIMIT 100`
	return r.list(ctx, query, customerID)
}

// ListByVehicle returns all requests for a vehicle.
func (r *RentalRepository) ListByVehicle(ctx context.Context, vehicleID string) ([]*domain.RentalRequest, error) {
	query := `SELECT ` + rentalColumns + ` FROM rental_requests WHERE vehicle_id = $1 ORDER BY created_at DESC LIMIT 100`
	return r.list(ctx, query, vehicleID)
}

// ListDueForCompletion returns APPROVED requests whose term has elapsed.
func (r *RentalRepository) ListDueForCompletion(ctx context.Context, today time.Time) ([]*domain.RentalRequest, error) {
	query := `
		SELECT ` + rentalColumns + `
		FROM rental_requests
		WHERE status = 'APPROVED' AND end_date <= $1
		ORDER BY end_date
	`
	return r.list(ctx, query, today)
}

func (r *RentalRepository) list(ctx context.Context, query string, args ...any) ([]*domain.RentalRequest, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var rentals []*domain.RentalRequest
	for rows.Next() {
		rental, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		rentals = append(rentals, rental)
	}

	return rentals, rows.Err()
}

func scanRental(s scanner) (*domain.RentalRequest, error) {
	var rental domain.RentalRequest
	var paidAt sql.NullTime

	err := s.Scan(
		&rental.ID,
		&rental.VehicleID,
		&rental.CustomerID,
		&rental.StartDate,
		&rental.EndDate,
		&rental.TotalAmount,
		&rental.Status,
		&paidAt,
		&rental.CreatedAt,
		&rental.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rental.StartDate = clock.Date(rental.StartDate)
	rental.EndDate = clock.Date(rental.EndDate)
	if paidAt.Valid {
		t := paidAt.Time
		rental.PaidAt = &t
	}

	return &rental, nil
}

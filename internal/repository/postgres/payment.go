package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rental/internal/domain"
	"rental/internal/repository"
)

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// NewPaymentRepositoryWithTx creates a payment repository using a transaction.
func NewPaymentRepositoryWithTx(tx *sql.Tx) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

const paymentColumns = `id, rental_request_id, amount, method, status, receipt_url, provider_ref, failure_reason, created_at, settled_at`

// Create persists a new payment. The partial unique index on
// payments(rental_request_id) for PENDING/SUCCESS rows surfaces as ErrDuplicate.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, rental_request_id, amount, method, status, receipt_url, provider_ref, failure_reason, created_at, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q.ExecContext(ctx, query,
		payment.ID,
		payment.RentalRequestID,
		payment.Amount,
		payment.Method,
		payment.Status,
		nullString(payment.ReceiptURL),
		nullString(payment.ProviderRef),
		nullString(payment.FailureReason),
		payment.CreatedAt,
		nullTime(payment.SettledAt),
	)

	return mapError(err)
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	payment, err := scanPayment(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapError(err)
	}

	return payment, nil
}

// GetPendingByRental retrieves the in-flight payment for a rental request.
// Returns nil if none exists.
func (r *PaymentRepository) GetPendingByRental(ctx context.Context, rentalRequestID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE rental_request_id = $1 AND status = 'PENDING'`

	payment, err := scanPayment(r.q.QueryRowContext(ctx, query, rentalRequestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(err)
	}

	return payment, nil
}

// ListByRental retrieves every payment attempt for a rental request.
func (r *PaymentRepository) ListByRental(ctx context.Context, rentalRequestID string) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE rental_request_id = $1 ORDER BY created_at`
	return r.list(ctx, query, rentalRequestID)
}

// ListStalePending returns PENDING payments created before cutoff.
func (r *PaymentRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE status = 'PENDING' AND created_at < $1 ORDER BY created_at`
	return r.list(ctx, query, cutoff)
}

// RecordProviderRef stores the charge reference on a payment in any state.
func (r *PaymentRepository) RecordProviderRef(ctx context.Context, id, providerRef string) error {
	query := `UPDATE payments SET provider_ref = $1 WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, providerRef, id)
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

// Settle records the terminal state of a PENDING payment.
func (r *PaymentRepository) Settle(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $1, receipt_url = $2, provider_ref = $3, failure_reason = $4, settled_at = $5
		WHERE id = $6 AND status = 'PENDING'
	`

	result, err := r.q.ExecContext(ctx, query,
		payment.Status,
		nullString(payment.ReceiptURL),
		nullString(payment.ProviderRef),
		nullString(payment.FailureReason),
		nullTime(payment.SettledAt),
		payment.ID,
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

func (r *PaymentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Payment, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var payment domain.Payment
	var receiptURL, providerRef, failureReason sql.NullString
	var settledAt sql.NullTime

	err := s.Scan(
		&payment.ID,
		&payment.RentalRequestID,
		&payment.Amount,
		&payment.Method,
		&payment.Status,
		&receiptURL,
		&providerRef,
		&failureReason,
		&payment.CreatedAt,
		&settledAt,
	)
	if err != nil {
		return nil, err
	}

	payment.ReceiptURL = receiptURL.String
	payment.ProviderRef = providerRef.String
	payment.FailureReason = failureReason.String
	if settledAt.Valid {
		t := settledAt.Time
		payment.SettledAt = &t
	}

	return &payment, nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"rental/internal/domain"
	"rental/internal/repository"
)

// ReceiptRepository stores receipt records as JSONB documents keyed by payment.
type ReceiptRepository struct {
	q Querier
}

// NewReceiptRepository creates a new PostgreSQL receipt repository.
func NewReceiptRepository(db *sql.DB) *ReceiptRepository {
	return &ReceiptRepository{q: db}
}

// NewReceiptRepositoryWithTx creates a receipt repository using a transaction.
func NewReceiptRepositoryWithTx(tx *sql.Tx) *ReceiptRepository {
	return &ReceiptRepository{q: tx}
}

// Create persists a receipt record.
func (r *ReceiptRepository) Create(ctx context.Context, receipt *domain.Receipt) error {
	query := `
		INSERT INTO receipts (id, payment_id, rental_request_id, record, issued_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	record, err := json.Marshal(receipt)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, query,
		receipt.ID,
		receipt.PaymentID,
		receipt.RentalRequestID,
		record,
		receipt.IssuedAt,
	)

	return mapError(err)
}

// GetByPaymentID retrieves the stored receipt record for a payment.
func (r *ReceiptRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Receipt, error) {
	query := `SELECT record FROM receipts WHERE payment_id = $1`

	var record []byte
	if err := r.q.QueryRowContext(ctx, query, paymentID).Scan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapError(err)
	}

	var receipt domain.Receipt
	if err := json.Unmarshal(record, &receipt); err != nil {
		return nil, err
	}

	return &receipt, nil
}

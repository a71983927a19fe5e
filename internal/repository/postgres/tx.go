package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"rental/internal/repository"
)

// DefaultMaxRetries bounds how often a serialization failure is retried.
const DefaultMaxRetries = 3

// txStore exposes transaction-scoped repositories.
type txStore struct {
	rentals  *RentalRepository
	payments *PaymentRepository
	receipts *ReceiptRepository
	vehicles *VehicleDirectory
}

func newStore(q Querier) *txStore {
	return &txStore{
		rentals:  &RentalRepository{q: q},
		payments: &PaymentRepository{q: q},
		receipts: &ReceiptRepository{q: q},
		vehicles: &VehicleDirectory{q: q},
	}
}

func (s *txStore) Rentals() repository.RentalRepository   { return s.rentals }
func (s *txStore) Payments() repository.PaymentRepository { return s.payments }
func (s *txStore) Receipts() repository.ReceiptRepository { return s.receipts }
func (s *txStore) Vehicles() repository.VehicleDirectory  { return s.vehicles }

// Transactor runs units of work in SERIALIZABLE transactions.
type Transactor struct {
	db         *sql.DB
	maxRetries int
}

// NewTransactor creates a new Transactor. maxRetries <= 0 uses DefaultMaxRetries.
func NewTransactor(db *sql.DB, maxRetries int) *Transactor {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Transactor{db: db, maxRetries: maxRetries}
}

// Store returns repositories bound to the connection pool.
func (t *Transactor) Store() repository.Store {
	return newStore(t.db)
}

// WithinTx runs fn in a serializable transaction, retrying serialization failures.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	var err error
	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		err = t.runOnce(ctx, fn)
		if !errors.Is(err, repository.ErrSerialization) {
			return err
		}
		log.WithFields(log.Fields{
			"attempt":     attempt,
			"max_retries": t.maxRetries,
		}).Warn("serialization failure, retrying transaction")
	}
	return err
}

func (t *Transactor) runOnce(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) (err error) {
	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, newStore(tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return mapError(err)
	}

	return nil
}

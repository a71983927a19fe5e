package repository

import "context"

// Store groups the repositories that share one transaction.
type Store interface {
	Rentals() RentalRepository
	Payments() PaymentRepository
	Receipts() ReceiptRepository
	Vehicles() VehicleDirectory
}

// Transactor runs units of work atomically.
type Transactor interface {
	// WithinTx runs fn inside a serializable transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise. Serialization
	// failures are retried a bounded number of times before ErrSerialization
	// is returned.
	WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error

	// Store returns repositories that run outside any transaction.
	Store() Store
}

package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("duplicate entity")

	// ErrSerialization is returned when the database aborts a transaction
	// because of a concurrent conflicting transaction. The transaction may be retried.
	ErrSerialization = errors.New("serialization failure")
)

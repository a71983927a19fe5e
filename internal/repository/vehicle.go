package repository

import (
	"context"

	"rental/internal/domain"
)

// VehicleDirectory is the read-only view of vehicles, stores and users
// maintained by the catalogue and account services.
type VehicleDirectory interface {
	// GetVehicle retrieves a vehicle with its store and owner.
	GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error)

	// LockVehicle retrieves a vehicle and row-locks it for the rest of the
	// surrounding transaction. Admission for one vehicle is serialized on this lock.
	LockVehicle(ctx context.Context, id string) (*domain.Vehicle, error)

	// GetUser retrieves a user snapshot.
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

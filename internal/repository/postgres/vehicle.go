package postgres

import (
	"context"
	"database/sql"
	"errors"

	"rental/internal/domain"
	"rental/internal/repository"
)

// VehicleDirectory is a PostgreSQL implementation of repository.VehicleDirectory.
// It reads the vehicles, stores and users tables owned by the catalogue service.
type VehicleDirectory struct {
	q Querier
}

// NewVehicleDirectory creates a new PostgreSQL vehicle directory.
func NewVehicleDirectory(db *sql.DB) *VehicleDirectory {
	return &VehicleDirectory{q: db}
}

// NewVehicleDirectoryWithTx creates a vehicle directory using a transaction.
func NewVehicleDirectoryWithTx(tx *sql.Tx) *VehicleDirectory {
	return &VehicleDirectory{q: tx}
}

const vehicleSelect = `
	SELECT v.id, v.store_id, s.name, s.owner_id, v.name, v.plate_number, v.rent_per_day, v.rent_per_month, v.is_available
	FROM vehicles v
	JOIN stores s ON s.id = v.store_id
	WHERE v.id = $1
`

// GetVehicle retrieves a vehicle with its store and owner.
func (d *VehicleDirectory) GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error) {
	return d.getVehicle(ctx, vehicleSelect, id)
}

// LockVehicle retrieves a vehicle and takes a row lock on it.
func (d *VehicleDirectory) LockVehicle(ctx context.Context, id string) (*domain.Vehicle, error) {
	return d.getVehicle(ctx, vehicleSelect+` FOR UPDATE OF v`, id)
}

func (d *VehicleDirectory) getVehicle(ctx context.Context, query, id string) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := d.q.QueryRowContext(ctx, query, id).Scan(
		&v.ID,
		&v.StoreID,
		&v.StoreName,
		&v.OwnerID,
		&v.Name,
		&v.PlateNumber,
		&v.RentPerDay,
		&v.RentPerMonth,
		&v.IsAvailable,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapError(err)
	}

	return &v, nil
}

// GetUser retrieves a user snapshot.
func (d *VehicleDirectory) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, name, email FROM users WHERE id = $1`

	var user domain.User
	err := d.q.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Name, &user.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapError(err)
	}

	return &user, nil
}

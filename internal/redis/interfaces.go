package redis

import (
	"context"
	"time"
)

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquirePaymentLock(ctx context.Context, rentalRequestID string, ttl time.Duration) (token string, acquired bool, err error)
	ReleasePaymentLock(ctx context.Context, rentalRequestID, token string) error
}

// CacheStoreInterface defines the interface for the vehicle snapshot cache.
type CacheStoreInterface interface {
	GetVehicle(ctx context.Context, vehicleID string) (*CachedVehicle, error)
	SetVehicle(ctx context.Context, vehicle *CachedVehicle) error
	InvalidateVehicle(ctx context.Context, vehicleID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface  = (*LockStore)(nil)
	_ CacheStoreInterface = (*CacheStore)(nil)
)

package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// DefaultVehicleCacheTTL bounds how stale a quoted rate can be.
const DefaultVehicleCacheTTL = 60 * time.Second

const vehicleCachePrefix = "cache:vehicle:"

// NewCacheStore creates a new CacheStore. ttl <= 0 uses DefaultVehicleCacheTTL.
func NewCacheStore(client *redis.Client, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = DefaultVehicleCacheTTL
	}
	return &CacheStore{client: client, ttl: ttl}
}

// CachedVehicle is the vehicle snapshot used for price quotes.
// Admission and settlement always read the database.
type CachedVehicle struct {
	ID           string          `json:"id"`
	StoreID      string          `json:"store_id"`
	OwnerID      string          `json:"owner_id"`
	Name         string          `json:"name"`
	RentPerDay   decimal.Decimal `json:"rent_per_day"`
	RentPerMonth decimal.Decimal `json:"rent_per_month"`
	IsAvailable  bool            `json:"is_available"`
}

// GetVehicle retrieves a vehicle from cache. Returns nil on a cache miss.
func (s *CacheStore) GetVehicle(ctx context.Context, vehicleID string) (*CachedVehicle, error) {
	data, err := s.client.Get(ctx, vehicleCachePrefix+vehicleID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var vehicle CachedVehicle
	if err := json.Unmarshal(data, &vehicle); err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// SetVehicle stores a vehicle in cache.
func (s *CacheStore) SetVehicle(ctx context.Context, vehicle *CachedVehicle) error {
	data, err := json.Marshal(vehicle)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, vehicleCachePrefix+vehicle.ID, data, s.ttl).Err()
}

// InvalidateVehicle removes a vehicle from cache.
func (s *CacheStore) InvalidateVehicle(ctx context.Context, vehicleID string) error {
	return s.client.Del(ctx, vehicleCachePrefix+vehicleID).Err()
}

package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const paymentLockPrefix = "lock:payment:"

// releaseScript deletes the lock only while it still carries the caller's
// token, so a holder whose lock expired cannot free the next holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore holds per-rental payment locks in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquirePaymentLock attempts to take the payment lock for a rental request.
// On success it returns the token that identifies this acquisition.
func (s *LockStore) AcquirePaymentLock(ctx context.Context, rentalRequestID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, paymentLockPrefix+rentalRequestID, token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleasePaymentLock releases the payment lock if it still carries token.
func (s *LockStore) ReleasePaymentLock(ctx context.Context, rentalRequestID, token string) error {
	err := releaseScript.Run(ctx, s.client, []string{paymentLockPrefix + rentalRequestID}, token).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReconSweepLockKey builds the redis key guarding a reconciliation sweep run.
func ReconSweepLockKey(accountID int64) string {
	return fmt.Sprintf("recon:sweep:%d:lock", accountID)
}

// RunLock provides a coarse redis-backed mutex for background runs.
type RunLock struct {
	client *redis.Client
}

// NewRunLock constructs a RunLock.
func NewRunLock(client *redis.Client) *RunLock {
	return &RunLock{client: client}
}

// Acquire claims the key for ttl. Returns false when another run holds it.
func (l *RunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	return l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Release drops the key.
func (l *RunLock) Release(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, key).Err()
}

package adapter

import (
	"context"
	"time"
)

// Locker is a cross-process mutex. TryLock returns domain.ErrLockNotAcquired
// when the key stays held after the retries.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

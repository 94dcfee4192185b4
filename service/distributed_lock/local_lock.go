package distributed_lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"backoffice-service/service/utils"
)

// LocalLock in-process Locker for single-instance deployments and tests
type LocalLock struct {
	mu      sync.Mutex
	clock   utils.Clock
	expires map[string]time.Time
}

// NewLocalLock creates an in-process lock; expiry is measured on clock
func NewLocalLock(clock utils.Clock) *LocalLock {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &LocalLock{
		clock:   clock,
		expires: make(map[string]time.Time),
	}
}

func (l *LocalLock) heldLocked(key string) bool {
	exp, ok := l.expires[key]
	if !ok {
		return false
	}
	if !l.clock.Now().Before(exp) {
		delete(l.expires, key)
		return false
	}
	return true
}

// TryLock acquires key unless it is held and not expired
func (l *LocalLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.heldLocked(key) {
		return false, nil
	}
	l.expires[key] = l.clock.Now().Add(ttl)
	return true, nil
}

// Unlock releases key
func (l *LocalLock) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.expires, key)
	return nil
}

// Refresh extends a held key
func (l *LocalLock) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.heldLocked(key) {
		return fmt.Errorf("refresh lock %s: not held", key)
	}
	l.expires[key] = l.clock.Now().Add(ttl)
	return nil
}

// IsLocked reports whether key is held
func (l *LocalLock) IsLocked(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.heldLocked(key), nil
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"

	"dropsync-api/internal/domain"
)

// Unlocker releases a held account lock.
type Unlocker interface {
	Release(ctx context.Context) error
}

// AccountLocker enforces single-flight per account. Acquire returns
// domain.ErrAlreadyRunning when the account's lock is held elsewhere.
type AccountLocker interface {
	Acquire(ctx context.Context, accountID int64, ttl time.Duration) (Unlocker, error)
}

// RedisAccountLocker backs single-flight with redislock so the marker is
// shared between replicas and expires on its own if a process dies mid-run.
type RedisAccountLocker struct {
	locker    *redislock.Client
	keyPrefix string
}

// NewRedisAccountLocker creates a locker on an existing redislock client.
func NewRedisAccountLocker(locker *redislock.Client, keyPrefix string) *RedisAccountLocker {
	if keyPrefix == "" {
		keyPrefix = "dropsync:synclock"
	}
	return &RedisAccountLocker{locker: locker, keyPrefix: keyPrefix}
}

func (l *RedisAccountLocker) Acquire(ctx context.Context, accountID int64, ttl time.Duration) (Unlocker, error) {
	lock, err := l.locker.Obtain(ctx, fmt.Sprintf("%s:%d", l.keyPrefix, accountID), ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, domain.ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain sync lock: %w", err)
	}
	return redisUnlocker{lock}, nil
}

type redisUnlocker struct {
	lock *redislock.Lock
}

func (u redisUnlocker) Release(ctx context.Context) error {
	err := u.lock.Release(ctx)
	if err == redislock.ErrLockNotHeld {
		// TTL expiry already released it; the watchdog owns that case.
		return nil
	}
	return err
}

// MemoryAccountLocker is the in-process fallback used when Redis is
// unavailable. The ledger's running-job check still guards cross-process
// duplicates.
type MemoryAccountLocker struct {
	mu   sync.Mutex
	held map[int64]bool
}

// NewMemoryAccountLocker creates an empty in-memory locker.
func NewMemoryAccountLocker() *MemoryAccountLocker {
	return &MemoryAccountLocker{held: make(map[int64]bool)}
}

func (l *MemoryAccountLocker) Acquire(_ context.Context, accountID int64, _ time.Duration) (Unlocker, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[accountID] {
		return nil, domain.ErrAlreadyRunning
	}
	l.held[accountID] = true
	return memoryUnlocker{locker: l, accountID: accountID}, nil
}

type memoryUnlocker struct {
	locker    *MemoryAccountLocker
	accountID int64
}

func (u memoryUnlocker) Release(context.Context) error {
	u.locker.mu.Lock()
	defer u.locker.mu.Unlock()

	delete(u.locker.held, u.accountID)
	return nil
}

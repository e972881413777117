// Package redis provides the Redis-backed distributed account lock.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/Jay-S9/backend-foundation/pkg/logger"
)

// DefaultKeyPrefix namespaces account lock keys
const DefaultKeyPrefix = "ledger:lock:account:"

// ErrLockNotAcquired is returned when every attempt found the lock held.
var ErrLockNotAcquired = errors.New("account lock not acquired")

// LockOptions tunes lock acquisition.
type LockOptions struct {
	// Expiry must exceed the slowest load → commit sequence; the store's
	// version check still rejects writes made after expiry.
	Expiry      time.Duration
	Tries       int
	RetryDelay  time.Duration
	DriftFactor float64
	KeyPrefix   string
}

// DefaultLockOptions waits up to roughly Tries*RetryDelay for a busy account.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:      8 * time.Second,
		Tries:       64,
		RetryDelay:  50 * time.Millisecond,
		DriftFactor: 0.01,
		KeyPrefix:   DefaultKeyPrefix,
	}
}

// Locker implements ledger.Locker with redsync so that several processes
// serialize per account.
type Locker struct {
	rs     *redsync.Redsync
	opts   LockOptions
	logger *logger.Logger
}

// NewLocker creates a locker over client
func NewLocker(client redis.UniversalClient, opts LockOptions, log *logger.Logger) *Locker {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	return &Locker{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: log.WithField("component", "redis_locker"),
	}
}

// Lock acquires the account's lock, retrying per LockOptions.
func (l *Locker) Lock(ctx context.Context, accountID string) (func(), error) {
	key := l.opts.KeyPrefix + accountID
	mutex := l.rs.NewMutex(
		key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
		redsync.WithDriftFactor(l.opts.DriftFactor),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// contention surfaces as ErrFailed or a "lock already taken" error
		if errors.Is(err, redsync.ErrFailed) || strings.Contains(err.Error(), "lock already taken") {
			return nil, fmt.Errorf("%s: %w", accountID, ErrLockNotAcquired)
		}
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", accountID, err)
	}

	return func() {
		// release even if the request context is gone
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
			l.logger.Warn("failed to release account lock", "account_id", accountID, "error", err)
		}
	}, nil
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DispatcherLockKey is shared by every instance pointed at the same Redis
const DispatcherLockKey = "orderbot:dispatch"

// RedsyncLocker is a single-attempt Redis mutex. Expiry should exceed the
// longest expected pass. An expired lock lets a second instance overlap; it
// can then only take messages whose per-message lease has lapsed, and the
// first instance skips any message it no longer holds.
type RedsyncLocker struct {
	rs     *redsync.Redsync
	key    string
	expiry time.Duration
	logger *zap.Logger
}

// NewRedsyncLocker builds a locker over rdb
func NewRedsyncLocker(rdb redis.UniversalClient, key string, expiry time.Duration, logger *zap.Logger) *RedsyncLocker {
	if key == "" {
		key = DispatcherLockKey
	}
	if expiry <= 0 {
		expiry = time.Minute
	}
	return &RedsyncLocker{
		rs:     redsync.New(goredis.NewPool(rdb)),
		key:    key,
		expiry: expiry,
		logger: logger,
	}
}

// TryLock makes one attempt. Any acquisition failure is reported as
// ErrLockBusy since redsync does not distinguish contention from a flaky
// node on a single try.
func (l *RedsyncLocker) TryLock(ctx context.Context) (func(context.Context), error) {
	mutex := l.rs.NewMutex(l.key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockBusy, err)
	}
	return func(ctx context.Context) {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			l.logger.Warn("Failed to release dispatcher lock", zap.String("key", l.key), zap.Error(err))
		}
	}, nil
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/branch-delivery/internal/port"
)

const (
	DefaultLockExpiry = 10 * time.Second
	unlockTimeout     = 2 * time.Second
)

// RedsyncLocker is an ItemLocker shared by every service replica that talks
// to the same Redis.
type RedsyncLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	logger *zap.Logger
}

var _ port.ItemLocker = (*RedsyncLocker)(nil)

func NewRedsyncLocker(client *redis.Client, expiry time.Duration, logger *zap.Logger) *RedsyncLocker {
	if expiry <= 0 {
		expiry = DefaultLockExpiry
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedsyncLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
		logger: logger,
	}
}

func (l *RedsyncLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if isLockContention(err) {
			l.logger.Debug("lock held elsewhere", zap.String("lock_key", key))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
			l.logger.Warn("failed to release lock",
				zap.String("lock_key", key),
				zap.Error(err))
		}
	}
	return unlock, true, nil
}

// redsync reports contention either as ErrFailed or as a taken-lock error
// depending on how many nodes answered.
func isLockContention(err error) bool {
	var taken *redsync.ErrTaken
	if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "lock already taken") ||
		strings.Contains(msg, "failed to acquire lock")
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is still held by someone else once
// the caller stops waiting.
var ErrNotAcquired = errors.New("lock: not acquired")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker provides a Redis-backed distributed lock used to serialise commits of
// the same cart across API replicas.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
}

// Lease is a held lock. Release is safe to call more than once.
type Lease struct {
	locker Locker
	key    string
	token  string
}

// Acquire blocks until key is locked for ttl or ctx is done.
func (l Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l.R == nil {
		return nil, errors.New("lock: redis client not configured")
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("lock: key is required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	token := uuid.NewString()

	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctxErr)
			}
			return nil, err
		}
		if ok {
			return &Lease{locker: l, key: key, token: token}, nil
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-timer.C:
		}
	}
}

// Release drops the lock if this lease still owns it.
func (ls *Lease) Release(ctx context.Context) {
	if ls == nil || ls.token == "" {
		return
	}
	if err := ls.locker.R.Eval(ctx, releaseScript, []string{ls.key}, ls.token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = ls.locker.R.Del(ctx, ls.key).Err()
		}
	}
	ls.token = ""
}

// WithLock executes fn while holding a lock for the provided key. The lock is
// released automatically even if fn returns an error.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer lease.Release(context.Background())
	return fn(ctx)
}

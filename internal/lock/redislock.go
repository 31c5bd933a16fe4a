// Package lock serialises cart mutations across API instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrBusy is returned when the lock could not be taken before the context ended.
var ErrBusy = errors.New("lock: busy")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker is a Redis SET NX lock with owner token release.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	Logger       zerolog.Logger
}

// WithLock runs fn while holding key. The lock expires after ttl even if the
// holder dies, and is released when fn returns.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	token := uuid.NewString()

	for attempt := 0; ; attempt++ {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrBusy, ctx.Err())
			}
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			defer l.release(key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.Logger.Warn().Str("key", key).Int("attempts", attempt+1).Msg("lock not acquired")
			return fmt.Errorf("%w: %w", ErrBusy, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err()
	if err == nil {
		return
	}
	if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
		_ = l.R.Del(ctx, key).Err()
		return
	}
	l.Logger.Warn().Err(err).Str("key", key).Msg("lock release failed")
}

// Package ratelimit throttles cart mutations per client with a Redis sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a sliding window counter kept in a Redis sorted set per key.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Allow records one event for key and reports whether at most limit events
// happened inside window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	now := l.now()
	if l.Client == nil || limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}, nil
	}

	redisKey := l.Prefix + key
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+cutoff)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	count := pipe.ZCard(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}, fmt.Errorf("ratelimit %s: %w", key, err)
	}

	current := int(count.Val())
	return Decision{
		Allowed:   current <= limit,
		Remaining: max(0, limit-current),
		ResetAt:   now.Add(window),
	}, nil
}

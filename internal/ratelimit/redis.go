package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window limiter shared by every instance using the same
// Redis database.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	clock  clockwork.Clock
}

func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration, clock clockwork.Clock) *Redis {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Redis{client: client, prefix: prefix, limit: limit, window: window, clock: clock}
}

func (r *Redis) Allow(ctx context.Context, key string) (Result, error) {
	k := r.prefix + key

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return Result{}, fmt.Errorf("incr %s: %w", k, err)
	}
	if count == 1 {
		if err := r.client.PExpire(ctx, k, r.window).Err(); err != nil {
			return Result{}, fmt.Errorf("expire %s: %w", k, err)
		}
	}

	ttl, err := r.client.PTTL(ctx, k).Result()
	if err != nil {
		return Result{}, fmt.Errorf("pttl %s: %w", k, err)
	}
	if ttl < 0 {
		// Key has no expiry; restart the window.
		ttl = r.window
		if err := r.client.PExpire(ctx, k, ttl).Err(); err != nil {
			return Result{}, fmt.Errorf("expire %s: %w", k, err)
		}
	}

	n := int(count)
	return Result{
		Allowed:   n <= r.limit,
		Limit:     r.limit,
		Remaining: remaining(r.limit, n),
		ResetAt:   r.clock.Now().Add(ttl),
	}, nil
}

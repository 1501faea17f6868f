package security

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/hook"
	"github.com/redis/go-redis/v9"
)

// RateLimiter implements a fixed-window counter per caller on top of Redis,
// shared across server instances.
type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Allow counts one hit against the key's window and reports whether the
// caller is still under the limit.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count <= int64(limit), nil
}

// Limit builds route middleware keyed by user id for authenticated requests
// and by IP otherwise. A Redis outage fails open: queue operations keep
// working without the limiter.
func (r *RateLimiter) Limit(op string, limit int, window time.Duration) *hook.Handler[*core.RequestEvent] {
	return &hook.Handler[*core.RequestEvent]{
		Id: "rateLimit:" + op,
		Func: func(e *core.RequestEvent) error {
			caller := e.RealIP()
			if e.Auth != nil {
				caller = "user:" + e.Auth.Id
			}
			key := fmt.Sprintf("ratelimit:%s:%s", op, caller)

			ok, err := r.Allow(e.Request.Context(), key, limit, window)
			if err != nil {
				return e.Next()
			}
			if !ok {
				return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
			}
			return e.Next()
		},
	}
}

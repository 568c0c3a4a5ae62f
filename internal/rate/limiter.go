// Package rate implements fixed-window counters over Redis for gating
// sensitive operations: login, OTP issuance, OTP verification, refresh.
package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts attempts per string key inside a fixed window. Counters
// live in Redis so the budget holds across server instances, and they
// increment on every call, including denied ones, so callers cannot
// bypass a limit by racing requests.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a [Limiter] with the given key namespace.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "arl"
	}
	return &Limiter{redis: redisClient, prefix: prefix}
}

func (l *Limiter) key(key string) string {
	return l.prefix + ":" + key
}

// Allow records one attempt for key and reports whether it fits inside
// the budget of max attempts per window. When denied, retryAfter carries
// the remaining window as a client hint. Backend failures deny.
func (l *Limiter) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, time.Duration, error) {
	k := l.key(key)

	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// Fixed-window semantics: the first hit opens the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, k, window).Err(); err != nil {
			return false, 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	if count <= int64(max) {
		return true, 0, nil
	}

	retryAfter, err := l.redis.PTTL(ctx, k).Result()
	if err != nil || retryAfter < 0 {
		retryAfter = window
	}
	return false, retryAfter, nil
}

// Package ratelimit implements fixed-window counters on the shared cache.
package ratelimit

import (
	"context"
	"time"

	"codearena/internal/common/cache"
	pkgerrors "codearena/pkg/errors"
)

// Limiter enforces fixed-window limits.
type Limiter struct {
	cache        cache.BasicOps
	window       time.Duration
	cacheTimeout time.Duration
}

func NewLimiter(cacheClient cache.BasicOps, window, cacheTimeout time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if cacheTimeout <= 0 {
		cacheTimeout = 200 * time.Millisecond
	}
	return &Limiter{cache: cacheClient, window: window, cacheTimeout: cacheTimeout}
}

// Allow counts one hit on key and fails with code once the count exceeds max.
// A zero window falls back to the limiter default.
func (l *Limiter) Allow(ctx context.Context, key string, max int, window time.Duration, code pkgerrors.ErrorCode) error {
	if max <= 0 {
		return nil
	}
	if l.cache == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if window <= 0 {
		window = l.window
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.cacheTimeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = l.cache.Incr(ctxCache, key)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
		// A key without ttl would block forever.
		if ttl, ttlErr := l.cache.TTL(ctxCache, key); ttlErr == nil && ttl < 0 {
			_ = l.cache.Expire(ctxCache, key, window)
		}
	}
	if int(count) > max {
		return pkgerrors.New(code)
	}
	return nil
}

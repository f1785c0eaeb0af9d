package cache

import (
	"context"
	"time"
)

// Cache is the key-value surface used by repositories and services.
type Cache interface {
	BasicOps
	ZSetOps
	LockOps

	Ping(ctx context.Context) error
	Close() error
}

// BasicOps covers plain string keys and counters.
// Get returns "" with a nil error when the key does not exist.
type BasicOps interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// ZSetOps covers sorted sets. Missing members report a zero score and rank -1.
type ZSetOps interface {
	ZIncrBy(ctx context.Context, key string, increment float64, member string) (float64, error)
	ZScore(ctx context.Context, key, member string) (float64, error)
	ZRevRank(ctx context.Context, key, member string) (int64, error)
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMember, error)
}

// LockOps provides owner-checked distributed locks.
type LockOps interface {
	// TryLock stores token under key when free.
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Unlock removes key only while it still holds token.
	Unlock(ctx context.Context, key, token string) error
}

// ZMember is one sorted set entry.
type ZMember struct {
	Score  float64
	Member string
}

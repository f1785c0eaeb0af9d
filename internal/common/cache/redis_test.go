package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"codearena/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithConfig(cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("create cache failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheBasicOps(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := testContext(t)

	value, err := c.Get(ctx, "missing")
	if err != nil || value != "" {
		t.Fatalf("expected empty miss, got %q %v", value, err)
	}
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	ok, err := c.SetNX(ctx, "k", "other", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected SetNX to fail on existing key, got %v %v", ok, err)
	}
	n, err := c.Incr(ctx, "counter")
	if err != nil || n != 1 {
		t.Fatalf("unexpected incr result: %d %v", n, err)
	}
	if err := c.Expire(ctx, "counter", 10*time.Second); err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	mr.FastForward(11 * time.Second)
	value, _ = c.Get(ctx, "counter")
	if value != "" {
		t.Fatalf("expected counter to expire, got %q", value)
	}
}

func TestRedisCacheLockOwnership(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := testContext(t)

	ok, err := c.TryLock(ctx, "lock", "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock acquired, got %v %v", ok, err)
	}
	ok, _ = c.TryLock(ctx, "lock", "owner-b", time.Minute)
	if ok {
		t.Fatalf("second owner must not acquire the lock")
	}
	if err := c.Unlock(ctx, "lock", "owner-b"); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if value, _ := c.Get(ctx, "lock"); value != "owner-a" {
		t.Fatalf("foreign unlock must not release lock, got %q", value)
	}
	if err := c.Unlock(ctx, "lock", "owner-a"); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if value, _ := c.Get(ctx, "lock"); value != "" {
		t.Fatalf("expected lock released, got %q", value)
	}
}

func TestRedisCacheZSet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := testContext(t)

	_, _ = c.ZIncrBy(ctx, "board", 10, "1")
	_, _ = c.ZIncrBy(ctx, "board", 30, "2")
	_, _ = c.ZIncrBy(ctx, "board", 5, "1")

	members, err := c.ZRevRangeWithScores(ctx, "board", 0, -1)
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if len(members) != 2 || members[0].Member != "2" || members[1].Score != 15 {
		t.Fatalf("unexpected members: %+v", members)
	}
	rank, _ := c.ZRevRank(ctx, "board", "missing")
	if rank != -1 {
		t.Fatalf("expected -1 rank for missing member, got %d", rank)
	}
}

type item struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestGetWithCached(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := testContext(t)

	calls := 0
	load := func(result *item) func(context.Context) (*item, error) {
		return func(context.Context) (*item, error) {
			calls++
			return result, nil
		}
	}
	get := func(key string, fn func(context.Context) (*item, error)) (*item, error) {
		return cache.GetWithCached(ctx, c, key, time.Minute, 10*time.Second,
			func(v *item) bool { return v == nil },
			func(v *item) (string, error) {
				b, err := json.Marshal(v)
				return string(b), err
			},
			func(s string) (*item, error) {
				var v item
				err := json.Unmarshal([]byte(s), &v)
				return &v, err
			},
			fn)
	}

	for i := 0; i < 2; i++ {
		got, err := get("item:1", load(&item{ID: 1, Name: "a"}))
		if err != nil || got == nil || got.Name != "a" {
			t.Fatalf("unexpected result: %+v %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one load, got %d", calls)
	}

	for i := 0; i < 2; i++ {
		got, err := get("item:2", load(nil))
		if err != nil || got != nil {
			t.Fatalf("expected nil result, got %+v %v", got, err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected null value to be cached, got %d loads", calls)
	}

	boom := errors.New("db down")
	if _, err := get("item:3", func(context.Context) (*item, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
}

// testContext stands in for t.Context (Go 1.24+) on older toolchains: the
// returned context is canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

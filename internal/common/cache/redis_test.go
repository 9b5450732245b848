package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheGetMissingKey(t *testing.T) {
	c, _ := newTestCache(t)
	value, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "" {
		t.Fatalf("expected empty value, got %q", value)
	}
}

func TestGetWithCachedStoresNullValue(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		return "", nil
	}
	identity := func(s string) string { return s }
	parse := func(s string) (string, error) { return s, nil }
	isEmpty := func(s string) bool { return s == "" }

	for i := 0; i < 2; i++ {
		if _, err := GetWithCached(ctx, c, "k", time.Minute, time.Minute, isEmpty, identity, parse, load); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected loader to run once, ran %d times", calls)
	}
	got, _ := mr.Get("k")
	if got != NullCacheValue {
		t.Fatalf("expected null marker, got %q", got)
	}
}

func TestJitterTTLWithinBounds(t *testing.T) {
	ttl := 10 * time.Minute
	for i := 0; i < 50; i++ {
		got := JitterTTL(ttl)
		if got > ttl || got < ttl-ttl/10 {
			t.Fatalf("jittered ttl %v out of range", got)
		}
	}
}

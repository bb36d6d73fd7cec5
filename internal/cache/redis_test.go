package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		c, mr := newTestRedis(t)
		if err := c.Set(ctx, "identity:1111111111", []byte(`{"npi":"1111111111"}`), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		got, err := c.Get(ctx, "identity:1111111111")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `{"npi":"1111111111"}` {
			t.Errorf("expected stored value, got %q", got)
		}
		if !mr.Exists(redisKeyPrefix + "identity:1111111111") {
			t.Error("expected key to carry the fraudscan prefix")
		}
	})

	t.Run("MissIsNil", func(t *testing.T) {
		c, _ := newTestRedis(t)
		got, err := c.Get(ctx, "absent")
		if err != nil {
			t.Fatalf("expected no error on miss, got %v", err)
		}
		if got != nil {
			t.Errorf("expected nil, got %q", got)
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		c, mr := newTestRedis(t)
		c.Set(ctx, "k", []byte("v"), time.Second)
		mr.FastForward(2 * time.Second)

		got, _ := c.Get(ctx, "k")
		if got != nil {
			t.Errorf("expected expired key, got %q", got)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c, _ := newTestRedis(t)
		c.Set(ctx, "k", []byte("v"), time.Minute)
		if err := c.Delete(ctx, "k"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if got, _ := c.Get(ctx, "k"); got != nil {
			t.Errorf("expected deleted key, got %q", got)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		c, _ := newTestRedis(t)
		if err := c.Ping(ctx); err != nil {
			t.Errorf("expected ping to succeed, got %v", err)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		if _, err := NewRedisCache("127.0.0.1:1", "", 0); err == nil {
			t.Error("expected error connecting to an unreachable server")
		}
	})
}

func TestNewCacheRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	t.Run("Redis", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "redis", RedisAddr: mr.Addr()})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()
		if _, ok := c.(*RedisCache); !ok {
			t.Errorf("expected *RedisCache, got %T", c)
		}
	})

	t.Run("TwoPhase", func(t *testing.T) {
		c, err := New(domain.CacheConfig{
			Type:           "redis",
			RedisAddr:      mr.Addr(),
			EnableTwoPhase: true,
			LocalMaxSize:   10,
			LocalTTL:       time.Minute,
		})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		tp, ok := c.(*TwoPhaseCache)
		if !ok {
			t.Fatalf("expected *TwoPhaseCache, got %T", c)
		}

		// A value written by another run is only in Redis.
		mr.Set(redisKeyPrefix+"totals:2222222222", `{"total_paid":10}`)

		got, err := tp.Get(ctx, "totals:2222222222")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `{"total_paid":10}` {
			t.Errorf("expected L2 value, got %q", got)
		}

		local, _ := tp.local.Get(ctx, "totals:2222222222")
		if local == nil {
			t.Error("expected L2 hit to populate L1")
		}
	})

	t.Run("ReferenceCacheShared", func(t *testing.T) {
		remote, err := NewRedisCache(mr.Addr(), "", 0)
		if err != nil {
			t.Fatalf("NewRedisCache failed: %v", err)
		}
		defer remote.Close()

		src := &fakeSource{identities: map[string]domain.Identity{
			"3333333333": {NPI: "3333333333", Name: "Acme Home Care"},
		}}

		first := NewReferenceCache(src, remote, time.Hour)
		if _, err := first.BatchLookupIdentity(ctx, []string{"3333333333"}); err != nil {
			t.Fatalf("lookup failed: %v", err)
		}

		// A second run with a fresh wrapper is served from Redis.
		second := NewReferenceCache(src, remote, time.Hour)
		got, err := second.BatchLookupIdentity(ctx, []string{"3333333333"})
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if got["3333333333"].Name != "Acme Home Care" {
			t.Errorf("expected Acme Home Care, got %q", got["3333333333"].Name)
		}
		if len(src.calls) != 1 {
			t.Errorf("expected 1 source call, got %d", len(src.calls))
		}
	})
}

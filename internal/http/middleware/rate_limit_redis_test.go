package middleware

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiterForTest(t *testing.T) (*miniredis.Miniredis, *RedisFixedWindowLimiter) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return m, NewRedisFixedWindowLimiter(client, "rl_test")
}

func TestRedisFixedWindowLimiterAllowThenDeny(t *testing.T) {
	_, limiter := newRedisLimiterForTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.Allow(ctx, "login:10.0.0.1", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("request %d within the limit must be allowed", i+1)
		}
	}

	allowed, retryAfter, err := limiter.Allow(ctx, "login:10.0.0.1", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if allowed {
		t.Fatal("request over the limit must be denied")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %v", retryAfter)
	}
}

func TestRedisFixedWindowLimiterWindowElapses(t *testing.T) {
	m, limiter := newRedisLimiterForTest(t)
	ctx := context.Background()

	if allowed, _, _ := limiter.Allow(ctx, "k", 1, time.Minute); !allowed {
		t.Fatal("first request must be allowed")
	}
	if allowed, _, _ := limiter.Allow(ctx, "k", 1, time.Minute); allowed {
		t.Fatal("second request must be denied")
	}

	m.FastForward(61 * time.Second)

	if allowed, _, _ := limiter.Allow(ctx, "k", 1, time.Minute); !allowed {
		t.Fatal("expected a fresh window after expiry")
	}
}

func TestRedisFixedWindowLimiterKeysAreIndependent(t *testing.T) {
	_, limiter := newRedisLimiterForTest(t)
	ctx := context.Background()

	if allowed, _, _ := limiter.Allow(ctx, "a", 1, time.Minute); !allowed {
		t.Fatal("key a must be allowed")
	}
	if allowed, _, _ := limiter.Allow(ctx, "b", 1, time.Minute); !allowed {
		t.Fatal("key b must have its own budget")
	}
}

func TestRedisFixedWindowLimiterErrors(t *testing.T) {
	limiter := NewRedisFixedWindowLimiter(nil, "")
	if _, _, err := limiter.Allow(context.Background(), "k", 1, time.Minute); err == nil {
		t.Fatal("expected nil client error")
	}

	badClient := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  20 * time.Millisecond,
		ReadTimeout:  20 * time.Millisecond,
		WriteTimeout: 20 * time.Millisecond,
	})
	t.Cleanup(func() { _ = badClient.Close() })
	limiter = NewRedisFixedWindowLimiter(badClient, "")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, _, err := limiter.Allow(ctx, "k", 1, time.Minute); err == nil {
		t.Fatal("expected backend error")
	}
}

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/aidigitalagency/storefront-backend/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client, err := New(context.Background(), config.RedisConfig{Address: srv.Addr()}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestCountWindowStartsWindowOnFirstHit(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := context.Background()
	key := "rl:ip:checkout:203.0.113.9"

	for want := int64(1); want <= 3; want++ {
		srv.FastForward(10 * time.Second)
		count, err := client.CountWindow(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != want {
			t.Fatalf("expected counter %d got %d", want, count)
		}
	}
	if ttl := srv.TTL(key); ttl != 40*time.Second {
		t.Fatalf("window should not be extended by later hits, ttl %v", ttl)
	}

	srv.FastForward(time.Minute)
	count, err := client.CountWindow(ctx, key, time.Minute)
	if err != nil || count != 1 {
		t.Fatalf("expected a fresh window, got %d (%v)", count, err)
	}
	if _, err := client.CountWindow(ctx, key, 0); err == nil {
		t.Fatal("expected error for empty window")
	}
}

func TestMarkOnce(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	key := client.WebhookEventKey("paypal", "WH-1")
	first, err := client.MarkOnce(ctx, key, time.Hour)
	if err != nil || !first {
		t.Fatalf("expected first mark to win: %v %v", first, err)
	}
	second, err := client.MarkOnce(ctx, key, time.Hour)
	if err != nil || second {
		t.Fatalf("expected second mark to lose: %v %v", second, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, Nil) {
		t.Fatalf("expected Nil after del, got %v", err)
	}
}

func TestKeys(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "sf:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.WebhookEventKey("cashfree", " cf-1 "); got != "sf:webhook:cashfree:cf-1" {
		t.Fatalf("unexpected webhook key %s", got)
	}
	if got := client.LockKey(""); got != "sf:lock" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptions(t *testing.T) {
	if _, err := options(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}

	opts, err := options(config.RedisConfig{URL: "redis://:secret@cache:6380/2", PoolSize: 7, DB: 5, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 || opts.Password != "secret" {
		t.Fatalf("url settings should win, got %s db=%d", opts.Addr, opts.DB)
	}
	if opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("pool settings should fill in, got %d %v", opts.PoolSize, opts.DialTimeout)
	}
}

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestAcquireAndReleaseRoundTrip(t *testing.T) {
	client := newTestClient(t)
	l := New(client, "my-key", DefaultConfig(), nil)

	ok, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error acquiring: %v", err)
	}
	if !ok {
		t.Fatalf("expected to acquire an uncontended lock")
	}
	if !l.IsAcquired() {
		t.Fatalf("expected IsAcquired to report true after a successful Acquire")
	}

	if err := l.Release(context.Background()); err != nil {
		t.Fatalf("unexpected error releasing: %v", err)
	}
	if l.IsAcquired() {
		t.Fatalf("expected IsAcquired to report false after Release")
	}
}

func TestAcquireFailsWhileAlreadyHeld(t *testing.T) {
	client := newTestClient(t)
	cfg := Config{TTL: 5 * time.Second, MaxRetries: 1, RetryInterval: time.Millisecond}

	first := New(client, "shared-key", cfg, nil)
	if ok, err := first.Acquire(context.Background()); err != nil || !ok {
		t.Fatalf("expected the first holder to acquire, ok=%v err=%v", ok, err)
	}

	second := New(client, "shared-key", cfg, nil)
	ok, err := second.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected a second holder to fail acquiring an already-held lock")
	}
}

func TestReleaseNeverDeletesAnotherHoldersLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := Config{TTL: 50 * time.Millisecond, MaxRetries: 0, RetryInterval: time.Millisecond}

	first := New(client, "expiring-key", cfg, nil)
	ok, err := first.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected to acquire, ok=%v err=%v", ok, err)
	}

	mr.FastForward(100 * time.Millisecond) // let the TTL expire

	second := New(client, "expiring-key", DefaultConfig(), nil)
	ok, err = second.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected the second holder to acquire after expiry, ok=%v err=%v", ok, err)
	}

	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("unexpected error from the stale holder's Release: %v", err)
	}
	if !second.IsAcquired() || !mr.Exists("expiring-key") {
		t.Fatalf("expected the stale holder's Release not to touch the new holder's lock")
	}
}

func TestReleaseWithoutAcquireIsANoOp(t *testing.T) {
	client := newTestClient(t)
	l := New(client, "never-acquired", DefaultConfig(), nil)
	if err := l.Release(context.Background()); err != nil {
		t.Fatalf("expected releasing a never-acquired lock to be a no-op, got %v", err)
	}
}

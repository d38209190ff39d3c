package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestThrottle(t *testing.T, maxFailures int, window time.Duration) (*LoginThrottle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLoginThrottle(client, maxFailures, window), mr
}

func TestLoginThrottle_BlocksAfterBudget(t *testing.T) {
	throttle, _ := newTestThrottle(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if blocked, err := throttle.Blocked(ctx, "alice"); err != nil || blocked {
			t.Fatalf("attempt %d: blocked=%v err=%v", i, blocked, err)
		}
		if err := throttle.RecordFailure(ctx, "alice"); err != nil {
			t.Fatalf("attempt %d: RecordFailure: %v", i, err)
		}
	}

	if blocked, err := throttle.Blocked(ctx, "alice"); err != nil || !blocked {
		t.Fatalf("expected alice blocked after budget, got blocked=%v err=%v", blocked, err)
	}
	// Other usernames keep their own budget.
	if blocked, err := throttle.Blocked(ctx, "bob"); err != nil || blocked {
		t.Fatalf("bob must not share alice's budget, got blocked=%v err=%v", blocked, err)
	}
}

func TestLoginThrottle_ResetClearsBudget(t *testing.T) {
	throttle, _ := newTestThrottle(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := throttle.RecordFailure(ctx, "alice"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	if err := throttle.Reset(ctx, "alice"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if blocked, err := throttle.Blocked(ctx, "alice"); err != nil || blocked {
		t.Fatalf("expected budget cleared, got blocked=%v err=%v", blocked, err)
	}
}

func TestLoginThrottle_WindowExpires(t *testing.T) {
	throttle, mr := newTestThrottle(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := throttle.RecordFailure(ctx, "alice"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	if blocked, _ := throttle.Blocked(ctx, "alice"); !blocked {
		t.Fatalf("expected alice blocked inside the window")
	}

	mr.FastForward(time.Minute + time.Second)
	if blocked, err := throttle.Blocked(ctx, "alice"); err != nil || blocked {
		t.Fatalf("expected block lifted after the window, got blocked=%v err=%v", blocked, err)
	}
}

func TestLoginThrottle_CounterAlwaysCarriesDeadline(t *testing.T) {
	throttle, mr := newTestThrottle(t, 2, time.Minute)
	ctx := context.Background()

	if err := throttle.RecordFailure(ctx, "alice"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if ttl := mr.TTL("login_failures:alice"); ttl <= 0 {
		t.Fatalf("counter has no TTL after first failure")
	}

	// A counter that lost its deadline, whatever the cause, must be re-armed
	// by the next failure so the block cannot outlive the window forever.
	mr.Del("login_failures:alice")
	if err := mr.Set("login_failures:alice", "5"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := throttle.RecordFailure(ctx, "alice"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if ttl := mr.TTL("login_failures:alice"); ttl <= 0 {
		t.Fatalf("counter left without a TTL; block would never expire")
	}

	mr.FastForward(time.Minute + time.Second)
	if blocked, err := throttle.Blocked(ctx, "alice"); err != nil || blocked {
		t.Fatalf("stale counter outlived the window, got blocked=%v err=%v", blocked, err)
	}
}

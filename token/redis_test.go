package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *fakeClock, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := NewRedisStore(rdb, "sa", DefaultRetention)
	store.SetClock(clock.Now)

	return store, clock, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestRedisCreateAndFind(t *testing.T) {
	store, clock, done := newTestRedisStore(t)
	defer done()
	ctx := context.Background()

	rec, err := store.Create(ctx, "u1", time.Hour)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	found, err := store.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.UserID != "u1" || found.Revoked {
		t.Fatalf("unexpected record: %+v", found)
	}
	if !found.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("expiry = %v", found.ExpiresAt)
	}

	if _, err := store.FindByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisRotate(t *testing.T) {
	store, _, done := newTestRedisStore(t)
	defer done()
	ctx := context.Background()

	old, _ := store.Create(ctx, "u1", time.Hour)

	fresh, err := store.Rotate(ctx, old.ID, "u1", time.Hour)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if fresh.ID == old.ID {
		t.Fatal("rotation reused the old id")
	}

	spent, err := store.FindByID(ctx, old.ID)
	if err != nil {
		t.Fatalf("find old failed: %v", err)
	}
	if !spent.Revoked {
		t.Fatal("old record not revoked after rotation")
	}
}

func TestRedisRotateStatuses(t *testing.T) {
	store, clock, done := newTestRedisStore(t)
	defer done()
	ctx := context.Background()

	if _, err := store.Rotate(ctx, "missing", "u1", time.Hour); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec, _ := store.Create(ctx, "u1", time.Hour)
	if _, err := store.Rotate(ctx, rec.ID, "u2", time.Hour); !errors.Is(err, ErrUserMismatch) {
		t.Fatalf("expected ErrUserMismatch, got %v", err)
	}

	if _, err := store.Rotate(ctx, rec.ID, "u1", time.Hour); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}

	// Spent tokens read as revoked, even once their own lifetime has passed.
	if _, err := store.Rotate(ctx, rec.ID, "u1", time.Hour); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
	clock.Advance(2 * time.Hour)
	if _, err := store.Rotate(ctx, rec.ID, "u1", time.Hour); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked after expiry, got %v", err)
	}

	expired, _ := store.Create(ctx, "u3", time.Minute)
	clock.Advance(time.Hour)
	if _, err := store.Rotate(ctx, expired.ID, "u3", time.Hour); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestRedisRotateConcurrencySingleWinner(t *testing.T) {
	store, _, done := newTestRedisStore(t)
	defer done()
	ctx := context.Background()

	rec, _ := store.Create(ctx, "u1", time.Hour)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Rotate(ctx, rec.ID, "u1", time.Hour)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrRevoked):
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
}

func TestRedisRevoke(t *testing.T) {
	store, _, done := newTestRedisStore(t)
	defer done()
	ctx := context.Background()

	rec, _ := store.Create(ctx, "u1", time.Hour)
	if err := store.Revoke(ctx, rec.ID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if err := store.Revoke(ctx, rec.ID); err != nil {
		t.Fatalf("second revoke failed: %v", err)
	}
	if err := store.Revoke(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	found, _ := store.FindByID(ctx, rec.ID)
	if !found.Revoked {
		t.Fatal("record not revoked")
	}
}

func TestRedisRevokeAllAndCountActive(t *testing.T) {
	store, clock, done := newTestRedisStore(t)
	defer done()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Create(ctx, "u1", time.Hour); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	if _, err := store.Create(ctx, "u2", time.Hour); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	active, err := store.CountActive(ctx, "u1")
	if err != nil || active != 3 {
		t.Fatalf("CountActive = %d, %v", active, err)
	}

	n, err := store.RevokeAll(ctx, "u1")
	if err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d, want 3", n)
	}

	active, _ = store.CountActive(ctx, "u1")
	if active != 0 {
		t.Fatalf("CountActive after revoke all = %d", active)
	}
	active, _ = store.CountActive(ctx, "u2")
	if active != 1 {
		t.Fatalf("CountActive for u2 = %d", active)
	}

	clock.Advance(2 * time.Hour)
	n, _ = store.RevokeAll(ctx, "u2")
	if n != 0 {
		t.Fatalf("revoked %d expired tokens, want 0", n)
	}
}

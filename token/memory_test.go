package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemoryStore(t *testing.T) (*MemoryStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore(DefaultRetention)
	store.SetClock(clock.Now)
	return store, clock
}

func TestMemoryCreateAndFind(t *testing.T) {
	store, clock := newTestMemoryStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "u1", time.Hour)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if rec.ID == "" || rec.UserID != "u1" || rec.Revoked {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("expiry = %v", rec.ExpiresAt)
	}

	found, err := store.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.ID != rec.ID || found.UserID != "u1" {
		t.Fatalf("found wrong record: %+v", found)
	}

	if _, err := store.FindByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRotate(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	ctx := context.Background()

	old, err := store.Create(ctx, "u1", time.Hour)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

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

func TestMemoryRotateRevokedAlwaysRevoked(t *testing.T) {
	store, clock := newTestMemoryStore(t)
	ctx := context.Background()

	old, _ := store.Create(ctx, "u1", time.Hour)
	if _, err := store.Rotate(ctx, old.ID, "u1", time.Hour); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}

	// A second spend of the same token reports revoked, and keeps doing so
	// even after the record's own expiry has passed.
	if _, err := store.Rotate(ctx, old.ID, "u1", time.Hour); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := store.Rotate(ctx, old.ID, "u1", time.Hour); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked after expiry, got %v", err)
	}
}

func TestMemoryRotateUserMismatch(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	ctx := context.Background()

	rec, _ := store.Create(ctx, "u1", time.Hour)
	if _, err := store.Rotate(ctx, rec.ID, "u2", time.Hour); !errors.Is(err, ErrUserMismatch) {
		t.Fatalf("expected ErrUserMismatch, got %v", err)
	}

	// The mismatch must not spend the record for its real owner.
	if _, err := store.Rotate(ctx, rec.ID, "u1", time.Hour); err != nil {
		t.Fatalf("owner rotation failed after mismatch: %v", err)
	}
}

func TestMemoryRotateExpired(t *testing.T) {
	store, clock := newTestMemoryStore(t)
	ctx := context.Background()

	rec, _ := store.Create(ctx, "u1", time.Hour)
	clock.Advance(time.Hour)

	if _, err := store.Rotate(ctx, rec.ID, "u1", time.Hour); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestMemoryRotateUnknown(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	if _, err := store.Rotate(context.Background(), "nope", "u1", time.Hour); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRotateConcurrencySingleWinner(t *testing.T) {
	store, _ := newTestMemoryStore(t)
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
	revoked := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrRevoked):
			revoked++
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
	if revoked != n-1 {
		t.Fatalf("expected %d revoked losers, got %d", n-1, revoked)
	}
}

func TestMemoryRevoke(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	ctx := context.Background()

	rec, _ := store.Create(ctx, "u1", time.Hour)
	if err := store.Revoke(ctx, rec.ID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	// Idempotent.
	if err := store.Revoke(ctx, rec.ID); err != nil {
		t.Fatalf("second revoke failed: %v", err)
	}
	if err := store.Revoke(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRevokeAllAndCountActive(t *testing.T) {
	store, clock := newTestMemoryStore(t)
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

	// The other user is untouched.
	active, _ = store.CountActive(ctx, "u2")
	if active != 1 {
		t.Fatalf("CountActive for u2 = %d", active)
	}

	// Expired tokens are not usable and not counted by a later RevokeAll.
	clock.Advance(2 * time.Hour)
	n, _ = store.RevokeAll(ctx, "u2")
	if n != 0 {
		t.Fatalf("revoked %d expired tokens, want 0", n)
	}
}

func TestMemoryRetentionPrune(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore(time.Hour)
	store.SetClock(clock.Now)
	ctx := context.Background()

	rec, _ := store.Create(ctx, "u1", time.Minute)

	// Expired but inside retention: still visible.
	clock.Advance(30 * time.Minute)
	if _, err := store.Create(ctx, "u1", time.Minute); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.FindByID(ctx, rec.ID); err != nil {
		t.Fatalf("record pruned inside retention: %v", err)
	}

	// Past expiry+retention the record is gone for good.
	clock.Advance(time.Hour)
	if _, err := store.Create(ctx, "u1", time.Minute); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.FindByID(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after retention, got %v", err)
	}
}

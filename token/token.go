package token

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for an id. The caller
	// decides whether that is a benign miss or a theft signal.
	ErrNotFound = errors.New("refresh token record not found")
	// ErrRevoked is returned by Rotate when the record was already rotated
	// or revoked. A revoked record can never rotate again.
	ErrRevoked = errors.New("refresh token record revoked")
	// ErrExpired is returned by Rotate when the record is past expiry.
	ErrExpired = errors.New("refresh token record expired")
	// ErrUserMismatch is returned by Rotate when the record belongs to a
	// different user than the caller claims.
	ErrUserMismatch = errors.New("refresh token record user mismatch")
	// ErrUnavailable wraps transport failures of the backing store.
	ErrUnavailable = errors.New("token store unavailable")
)

// Record is one persisted refresh token. One record is created per issuance
// and one per rotation; a record is never mutated in place except to flip
// Revoked.
type Record struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Usable reports whether the record can still be exchanged: not revoked and
// not past expiry.
func (r *Record) Usable(now time.Time) bool {
	return r != nil && !r.Revoked && r.ExpiresAt.After(now)
}

// Store persists refresh-token records. All methods must be safe for
// concurrent use. Transport errors are wrapped in [ErrUnavailable] and
// propagate to the caller unmodified beyond that wrapping — the store does
// not retry.
type Store interface {
	// Create inserts a fresh record for userID expiring after ttl.
	Create(ctx context.Context, userID string, ttl time.Duration) (*Record, error)

	// FindByID returns the record for id, revoked or expired included, or
	// [ErrNotFound].
	FindByID(ctx context.Context, id string) (*Record, error)

	// Rotate atomically revokes the record id and creates a replacement for
	// the same user, returning the new record. Checks run in this order:
	// [ErrNotFound], [ErrUserMismatch] when the record does not belong to
	// userID, [ErrRevoked] when it was already rotated, [ErrExpired] when it
	// is past expiry. Under concurrent rotation of the same id exactly one
	// caller wins; the rest observe [ErrRevoked].
	Rotate(ctx context.Context, id, userID string, ttl time.Duration) (*Record, error)

	// Revoke flips the revoked flag on a single record. Revoking an absent
	// record returns [ErrNotFound]; revoking twice is idempotent.
	Revoke(ctx context.Context, id string) error

	// RevokeAll revokes every usable record of userID and returns how many
	// it touched.
	RevokeAll(ctx context.Context, userID string) (int, error)

	// CountActive returns the number of usable records for userID.
	CountActive(ctx context.Context, userID string) (int, error)
}

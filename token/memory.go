package token

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process [Store]. A single mutex makes every operation
// atomic, including Rotate's revoke-then-create pair. Records are retained
// for a grace period past expiry so an expired-but-known token is still
// distinguishable from an unknown one.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]*Record
	byUser    map[string]map[string]struct{}
	retention time.Duration
	now       func() time.Time
}

// DefaultRetention is how long records stay queryable past their expiry.
const DefaultRetention = 24 * time.Hour

// NewMemoryStore creates an empty [MemoryStore]. A non-positive retention
// falls back to [DefaultRetention].
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{
		records:   make(map[string]*Record),
		byUser:    make(map[string]map[string]struct{}),
		retention: retention,
		now:       time.Now,
	}
}

// SetClock replaces the store's time source. Intended for tests that
// simulate elapsed time.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

// Create implements [Store].
func (s *MemoryStore) Create(ctx context.Context, userID string, ttl time.Duration) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(userID, ttl), nil
}

func (s *MemoryStore) createLocked(userID string, ttl time.Duration) *Record {
	now := s.now()
	s.pruneLocked(now)

	rec := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records[rec.ID] = rec

	ids, ok := s.byUser[userID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[userID] = ids
	}
	ids[rec.ID] = struct{}{}

	out := *rec
	return &out
}

// FindByID implements [Store].
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

// Rotate implements [Store].
func (s *MemoryStore) Rotate(ctx context.Context, id, userID string, ttl time.Duration) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.UserID != userID {
		return nil, ErrUserMismatch
	}
	if rec.Revoked {
		return nil, ErrRevoked
	}
	now := s.now()
	if !rec.ExpiresAt.After(now) {
		return nil, ErrExpired
	}

	// Revoke-then-create: record the old token dead before its replacement
	// exists so a crash in between fails closed.
	rec.Revoked = true
	rec.UpdatedAt = now

	return s.createLocked(userID, ttl), nil
}

// Revoke implements [Store].
func (s *MemoryStore) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if !rec.Revoked {
		rec.Revoked = true
		rec.UpdatedAt = s.now()
	}
	return nil
}

// RevokeAll implements [Store].
func (s *MemoryStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	revoked := 0
	for id := range s.byUser[userID] {
		rec, ok := s.records[id]
		if !ok || rec.Revoked {
			continue
		}
		stillUsable := rec.ExpiresAt.After(now)
		rec.Revoked = true
		rec.UpdatedAt = now
		if stillUsable {
			revoked++
		}
	}
	return revoked, nil
}

// CountActive implements [Store].
func (s *MemoryStore) CountActive(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	active := 0
	for id := range s.byUser[userID] {
		if rec, ok := s.records[id]; ok && rec.Usable(now) {
			active++
		}
	}
	return active, nil
}

// pruneLocked drops records whose retention window has fully elapsed.
func (s *MemoryStore) pruneLocked(now time.Time) {
	for id, rec := range s.records {
		if now.Before(rec.ExpiresAt.Add(s.retention)) {
			continue
		}
		delete(s.records, id)
		if ids, ok := s.byUser[rec.UserID]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(s.byUser, rec.UserID)
			}
		}
	}
}

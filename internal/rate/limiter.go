package rate

import (
	"sync"
	"sync/atomic"
	"time"
)

// CounterStore is the injectable counter table behind the guard. Increment
// must be atomic per key: a naive read-then-write race would under-count and
// weaken the limiter. Implementations decide their own sweep strategy; the
// contract is only that a logically expired entry behaves as absent.
type CounterStore interface {
	// Increment bumps the counter for key within the given window and
	// returns the count after this hit together with the window's reset
	// time. An absent or expired entry restarts at count 1 with
	// resetAt = now + window.
	Increment(key string, window time.Duration, now time.Time) (count int, resetAt time.Time)

	// Len reports the number of physically present entries, expired or not.
	Len() int

	// Reset drops all entries. Intended for tests.
	Reset()
}

type counterEntry struct {
	count   int
	resetAt time.Time
}

// MemoryStore is the process-wide in-memory [CounterStore]. A single mutex
// guards the table; per-key read-modify-write is therefore atomic. Expired
// entries are removed by a lazy sweep triggered from Increment at most once
// per sweepEvery, gated by a last-run timestamp so concurrent requests do
// not all pay the sweep cost.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*counterEntry
	sweepEvery time.Duration
	lastSweep  atomic.Int64 // unix nanos of the last completed sweep
}

// NewMemoryStore creates a [MemoryStore] whose lazy sweep runs at most once
// per sweepEvery. A non-positive sweepEvery disables sweeping; entries then
// stay until overwritten, which is only acceptable in tests.
func NewMemoryStore(sweepEvery time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*counterEntry),
		sweepEvery: sweepEvery,
	}
}

// Increment implements [CounterStore].
func (s *MemoryStore) Increment(key string, window time.Duration, now time.Time) (int, time.Time) {
	s.maybeSweep(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &counterEntry{count: 1, resetAt: now.Add(window)}
		s.entries[key] = e
		return e.count, e.resetAt
	}

	e.count++
	return e.count, e.resetAt
}

// Len implements [CounterStore].
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reset implements [CounterStore].
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*counterEntry)
}

// maybeSweep removes every entry whose window has fully elapsed. It bounds
// memory growth under sustained distinct-client traffic without a background
// goroutine: the caller on the request path pays for it, and the CAS on the
// last-run timestamp makes sure only one caller per interval does.
func (s *MemoryStore) maybeSweep(now time.Time) {
	if s.sweepEvery <= 0 {
		return
	}

	last := s.lastSweep.Load()
	if now.UnixNano()-last < int64(s.sweepEvery) {
		return
	}
	if !s.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if !now.Before(e.resetAt) {
			delete(s.entries, key)
		}
	}
}

package store

import (
	"sync"
	"time"

	"github.com/hlsgate/hlsgate/pkg/metrics"
)

// DefaultTTL is the lifetime of a resource entry. It is independent from the
// token validity window even though both default to ten minutes.
const DefaultTTL = 10 * time.Minute

type entry struct {
	remoteURL string
	expiresAt time.Time
}

// Store maps opaque resource identifiers to absolute remote URLs with a fixed
// per-deployment TTL. Entries are inserted once and never updated in place;
// expiry is the only eviction trigger. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// Option customises the Store.
type Option func(*Store)

// WithTTL overrides the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithNow overrides the clock used for expiry, primarily for testing.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Put inserts (or overwrites) the mapping and restarts its TTL countdown.
func (s *Store) Put(resourceID, remoteURL string) {
	s.mu.Lock()
	s.entries[resourceID] = entry{
		remoteURL: remoteURL,
		expiresAt: s.now().Add(s.ttl),
	}
	size := len(s.entries)
	s.mu.Unlock()

	metrics.StoreEntries.Set(float64(size))
}

// Get returns the remote URL for the identifier. An entry that was never
// inserted and one whose TTL elapsed are indistinguishable: both report absent.
// Expired entries are removed on access.
func (s *Store) Get(resourceID string) (string, bool) {
	s.mu.RLock()
	e, ok := s.entries[resourceID]
	s.mu.RUnlock()

	if !ok {
		return "", false
	}

	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have refreshed it.
		if cur, still := s.entries[resourceID]; still && s.now().After(cur.expiresAt) {
			delete(s.entries, resourceID)
		}
		size := len(s.entries)
		s.mu.Unlock()

		metrics.StoreEntries.Set(float64(size))
		return "", false
	}

	return e.remoteURL, true
}

// Len reports the number of entries currently held, including any whose TTL
// elapsed but which have not been purged yet.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Purge removes every expired entry and returns how many were dropped.
func (s *Store) Purge() int {
	now := s.now()

	s.mu.Lock()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	size := len(s.entries)
	s.mu.Unlock()

	metrics.StoreEntries.Set(float64(size))
	return removed
}

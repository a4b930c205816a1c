package conversation

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore implements Store in process memory. It backs deployments
// without Redis and doubles as the test store. TTL semantics match
// RedisStore: every Append resets the expiry.
//
// MemoryStore is safe for concurrent use by multiple goroutines.
type MemoryStore struct {
	mu    sync.Mutex // serializes read-modify-write in Append
	cache *gocache.Cache
	ttl   time.Duration
}

// NewMemoryStore creates a MemoryStore with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	cleanup := ttl
	if cleanup > 10*time.Minute {
		cleanup = 10 * time.Minute
	}
	return &MemoryStore{
		cache: gocache.New(ttl, cleanup),
		ttl:   ttl,
	}
}

// History returns a copy of the stored messages, or an empty slice.
func (s *MemoryStore) History(_ context.Context, sessionID, kbID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history(sessionID, kbID)
}

// history reads the cache without locking; callers hold s.mu.
func (s *MemoryStore) history(sessionID, kbID string) []Message {
	v, ok := s.cache.Get(Key(sessionID, kbID))
	if !ok {
		return []Message{}
	}
	stored := v.([]Message)
	cp := make([]Message, len(stored))
	copy(cp, stored)
	return cp
}

// Append appends messages and resets the TTL.
func (s *MemoryStore) Append(_ context.Context, sessionID, kbID string, msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.history(sessionID, kbID)
	history = append(history, msgs...)
	s.cache.Set(Key(sessionID, kbID), history, s.ttl)
}

// Clear removes the history for (sessionID, kbID).
func (s *MemoryStore) Clear(_ context.Context, sessionID, kbID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(Key(sessionID, kbID))
	return nil
}

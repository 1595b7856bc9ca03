// Package idempotency caches responses of POST requests by Idempotency-Key.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// Response is a cached HTTP response.
type Response struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
}

type Store interface {
	// Get returns the cached response for key, or nil.
	Get(ctx context.Context, key string) (*Response, error)
	// Reserve marks key as in flight. It reports false when another request
	// holds the key or a response is already cached for it.
	Reserve(ctx context.Context, key string) (bool, error)
	// Save caches resp for key and drops the reservation.
	Save(ctx context.Context, key string, resp Response) error
	// Release drops the reservation without caching anything.
	Release(ctx context.Context, key string) error
}

type memoryEntry struct {
	resp      *Response
	expiresAt time.Time
}

// MemoryStore keeps responses in process. It is used when redis is not
// configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func (s *MemoryStore) lookup(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if ok && s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, ok
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok || e.resp == nil {
		return nil, nil
	}
	return e.resp, nil
}

func (s *MemoryStore) Reserve(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{expiresAt: s.now().Add(s.ttl)}
	return true, nil
}

func (s *MemoryStore) Save(ctx context.Context, key string, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{resp: &resp, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.resp == nil {
		delete(s.entries, key)
	}
	return nil
}

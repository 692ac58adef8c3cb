package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryStore implements Store using an in-memory map. Safe for concurrent use.
// Nothing survives a restart; intended for tests and single-process deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]Entry
	ttl   time.Duration
	clock clockwork.Clock
}

// NewMemoryStore creates a MemoryStore with the given TTL. A nil clock uses the real clock.
func NewMemoryStore(ttl time.Duration, clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		data:  make(map[string]Entry),
		ttl:   ttl,
		clock: clock,
	}
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	s.mu.RLock()
	entry, ok := s.data[key]
	s.mu.RUnlock()
	if !ok || expired(entry.StoredAt, s.clock.Now(), s.ttl) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put implements Store.Put.
func (s *MemoryStore) Put(ctx context.Context, key string, payload json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = Entry{
		Key:      key,
		Payload:  append(json.RawMessage(nil), payload...),
		StoredAt: s.clock.Now(),
	}
	return nil
}

// ClearAll implements Store.ClearAll.
func (s *MemoryStore) ClearAll(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.data)
	s.data = make(map[string]Entry)
	return n, nil
}

// ClearExpired implements Store.ClearExpired.
func (s *MemoryStore) ClearExpired(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.data {
		if expired(e.StoredAt, now, s.ttl) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, fresh or stale.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Package sagastore provides saga.Store implementations: a Redis-backed
// store for production and an in-memory store for tests and local runs.
package sagastore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VKev/registration-saga/internal/saga"
)

// MemoryStore is an in-memory saga.Store with the same TTL and
// compare-and-set semantics as the Redis store.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[uuid.UUID]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	state     saga.State
	expiresAt time.Time
}

// NewMemoryStore creates a store whose records expire after ttl. A zero ttl
// disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		records: make(map[uuid.UUID]memoryRecord),
		now:     time.Now,
	}
}

// Get returns a copy of the record for id, or saga.ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*saga.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.live(id)
	if !ok {
		return nil, saga.ErrNotFound
	}
	state := rec.state
	return &state, nil
}

// Create stores a new record, failing with saga.ErrAlreadyExists when a
// live record for the id is present. The stored version starts at 1.
func (s *MemoryStore) Create(ctx context.Context, state *saga.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(state.CorrelationID); ok {
		return saga.ErrAlreadyExists
	}
	state.Version = 1
	s.put(*state)
	return nil
}

// Update replaces the record if the caller's version still matches the
// stored one, then bumps the version. The TTL is refreshed on every write.
func (s *MemoryStore) Update(ctx context.Context, state *saga.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.live(state.CorrelationID)
	if !ok {
		return saga.ErrNotFound
	}
	if rec.state.Version != state.Version {
		return saga.ErrConflict
	}
	state.Version++
	s.put(*state)
	return nil
}

// live returns the record for id, evicting it first if expired.
func (s *MemoryStore) live(id uuid.UUID) (memoryRecord, bool) {
	rec, ok := s.records[id]
	if !ok {
		return memoryRecord{}, false
	}
	if !rec.expiresAt.IsZero() && s.now().After(rec.expiresAt) {
		delete(s.records, id)
		return memoryRecord{}, false
	}
	return rec, true
}

func (s *MemoryStore) put(state saga.State) {
	rec := memoryRecord{state: state}
	if s.ttl > 0 {
		rec.expiresAt = s.now().Add(s.ttl)
	}
	s.records[state.CorrelationID] = rec
}

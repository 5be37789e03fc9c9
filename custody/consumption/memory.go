package consumption

import (
	"context"
	"sync"
	"time"

	"github.com/LerianStudio/lib-custody/custody"
)

// MemoryStore keeps the consumed set in process memory. It is the store used
// by single-instance deployments and by tests.
type MemoryStore struct {
	mu       sync.Mutex
	consumed map[custody.AuthorizationID]time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory consumed set.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		consumed: make(map[custody.AuthorizationID]time.Time),
	}
}

// Consume implements Store. The mutex makes the check-and-set atomic.
func (s *MemoryStore) Consume(_ context.Context, id custody.AuthorizationID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.consumed[id]; ok {
		return false, nil
	}

	s.consumed[id] = time.Now().UTC()

	return true, nil
}

// Consumed implements Store.
func (s *MemoryStore) Consumed(_ context.Context, id custody.AuthorizationID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.consumed[id]

	return ok, nil
}

// ConsumedAt returns when id was consumed, with ok reporting membership.
func (s *MemoryStore) ConsumedAt(_ context.Context, id custody.AuthorizationID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.consumed[id]

	return at, ok
}

// Size returns the number of consumed IDs.
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.consumed)
}

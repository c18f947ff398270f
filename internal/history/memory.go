package history

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps events in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
	nextID int64
	now    func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Append stores event with the next id.
func (s *MemoryStore) Append(_ context.Context, event Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.ID = s.nextID
	event.CreatedAt = s.now()
	s.nextID++

	s.events = append(s.events, event)
	return event, nil
}

// ListByBook returns the events of bookID, oldest first.
func (s *MemoryStore) ListByBook(_ context.Context, bookID int64) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Event
	for _, event := range s.events {
		if event.BookID == bookID {
			result = append(result, event)
		}
	}
	return result, nil
}

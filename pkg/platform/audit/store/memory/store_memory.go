// Package memory holds audit events in a bounded in-memory ring. The
// default sink for single-process deployments and tests; configure the
// Kafka publisher when events must outlive the process.
package memory

import (
	"context"
	"sync"

	audit "meridian/pkg/platform/audit"
)

const defaultCapacity = 4096

// Store is a fixed-capacity ring buffer of audit events. Oldest events
// are overwritten once the ring fills.
type Store struct {
	mu     sync.RWMutex
	events []audit.Event
	next   int
	filled bool
}

// New constructs a ring with the given capacity; zero or negative
// capacity uses the default.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Store{events: make([]audit.Event, capacity)}
}

func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[s.next] = event
	s.next++
	if s.next == len(s.events) {
		s.next = 0
		s.filled = true
	}
	return nil
}

// ListRecent returns up to limit events, newest first.
func (s *Store) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.filled {
		size = len(s.events)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]audit.Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.events)) % len(s.events)
		out = append(out, s.events[idx])
	}
	return out, nil
}

// Clear empties the ring. Used between tests.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make([]audit.Event, len(s.events))
	s.next = 0
	s.filled = false
}

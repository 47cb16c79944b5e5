// Package events adapts the per-event UTC store to the transition
// engine's EventStore port.
package events

import (
	"context"
	"sync"
	"time"

	"meridian/internal/sessions"
	"meridian/internal/timezone"
	id "meridian/pkg/domain"
	"meridian/pkg/platform/sentinel"
)

// MemoryStore is an in-memory UTC event store for tests and
// single-node development.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[id.UserID][]sessions.UTCEvent
}

// NewMemory constructs an empty in-memory event store.
func NewMemory() *MemoryStore {
	return &MemoryStore{events: make(map[id.UserID][]sessions.UTCEvent)}
}

// Seed adds events for a user.
func (s *MemoryStore) Seed(userID id.UserID, events ...sessions.UTCEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[userID] = append(s.events[userID], events...)
}

// EventsInRange returns events whose start falls in [utcStart, utcEnd].
func (s *MemoryStore) EventsInRange(_ context.Context, userID id.UserID, utcStart, utcEnd time.Time) ([]sessions.UTCEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []sessions.UTCEvent
	for _, ev := range s.events[userID] {
		start, err := timezone.ParseUTCMillis(ev.StartTimeUTC)
		if err != nil {
			continue
		}
		if start.Before(utcStart) || start.After(utcEnd) {
			continue
		}
		out = append(out, ev)
	}

	if len(out) == 0 {
		return nil, sentinel.ErrNoData
	}
	return out, nil
}

// Clear removes everything. Used between tests.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.UserID][]sessions.UTCEvent)
}

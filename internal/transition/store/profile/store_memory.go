// Package profile adapts the user profile service to the transition
// engine's ProfileStore port. Only the saved timezone preference is
// read here.
package profile

import (
	"context"
	"sync"

	id "meridian/pkg/domain"
	"meridian/pkg/platform/sentinel"
)

// MemoryStore holds timezone preferences in memory, optionally backed
// by a configured default zone for users without a saved preference.
type MemoryStore struct {
	mu        sync.RWMutex
	timezones map[id.UserID]string
	defaultTZ string
}

// NewMemory constructs an empty in-memory profile store.
func NewMemory() *MemoryStore {
	return &MemoryStore{timezones: make(map[id.UserID]string)}
}

// NewMemoryWithDefault constructs a store that answers defaultTZ for
// users without a saved preference instead of ErrNotFound.
func NewMemoryWithDefault(defaultTZ string) *MemoryStore {
	return &MemoryStore{
		timezones: make(map[id.UserID]string),
		defaultTZ: defaultTZ,
	}
}

// Set saves a user's timezone preference.
func (s *MemoryStore) Set(userID id.UserID, tz string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timezones[userID] = tz
}

// Timezone returns the user's saved IANA zone.
func (s *MemoryStore) Timezone(_ context.Context, userID id.UserID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tz, ok := s.timezones[userID]
	if !ok || tz == "" {
		if s.defaultTZ != "" {
			return s.defaultTZ, nil
		}
		return "", sentinel.ErrNotFound
	}
	return tz, nil
}

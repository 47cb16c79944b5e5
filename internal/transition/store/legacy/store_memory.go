// Package legacy adapts the legacy day-aggregate store to the
// transition engine's LegacyStore port. The store itself is an
// external system; these adapters are read-only views of it.
package legacy

import (
	"context"
	"sync"

	"meridian/internal/sessions"
	id "meridian/pkg/domain"
	"meridian/pkg/platform/sentinel"
)

// MemoryStore is an in-memory legacy store for tests and single-node
// development.
type MemoryStore struct {
	mu sync.RWMutex
	// rows is keyed by user, then local calendar date.
	rows map[id.UserID]map[string][]sessions.LegacyDayRecord
}

// NewMemory constructs an empty in-memory legacy store.
func NewMemory() *MemoryStore {
	return &MemoryStore{rows: make(map[id.UserID]map[string][]sessions.LegacyDayRecord)}
}

// Seed adds day rows for a user. Rows for the same date accumulate.
func (s *MemoryStore) Seed(userID id.UserID, rows ...sessions.LegacyDayRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDate, ok := s.rows[userID]
	if !ok {
		byDate = make(map[string][]sessions.LegacyDayRecord)
		s.rows[userID] = byDate
	}
	for _, row := range rows {
		byDate[row.Date] = append(byDate[row.Date], row)
	}
}

// DayAggregates returns the aggregate rows for one local calendar date.
func (s *MemoryStore) DayAggregates(_ context.Context, userID id.UserID, localDate string) ([]sessions.LegacyDayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.rows[userID][localDate]
	if len(rows) == 0 {
		return nil, sentinel.ErrNoData
	}

	out := make([]sessions.LegacyDayRecord, len(rows))
	copy(out, rows)
	return out, nil
}

// Clear removes everything. Used between tests.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[id.UserID]map[string][]sessions.LegacyDayRecord)
}

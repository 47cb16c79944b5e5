// Package ports defines the interfaces the transition engine consumes.
// The two session stores and the user profile source are external
// collaborators; these interfaces are the engine's view of them.
package ports

//go:generate mockgen -destination=../mocks/mocks.go -package=mocks meridian/internal/transition/ports LegacyStore,EventStore,ProfileStore,AuditPublisher

import (
	"context"
	"time"

	"meridian/internal/sessions"
	id "meridian/pkg/domain"
	"meridian/pkg/platform/audit"
)

// LegacyStore reads the day-aggregated legacy representation: one row
// per (user, local calendar date, subject) with visit count and total
// time but no individual event boundaries.
type LegacyStore interface {
	// DayAggregates returns the aggregate rows for one local calendar
	// date. Returns sentinel.ErrNoData when the store holds nothing for
	// that date.
	DayAggregates(ctx context.Context, userID id.UserID, localDate string) ([]sessions.LegacyDayRecord, error)
}

// EventStore reads the normalized per-event UTC representation.
type EventStore interface {
	// EventsInRange returns events whose start falls in [utcStart, utcEnd],
	// endpoints inclusive since range ends are last-millisecond-of-day.
	// Returns sentinel.ErrNoData when the store holds nothing in range.
	EventsInRange(ctx context.Context, userID id.UserID, utcStart, utcEnd time.Time) ([]sessions.UTCEvent, error)
}

// ProfileStore supplies a user's saved timezone preference.
type ProfileStore interface {
	// Timezone returns the user's saved IANA zone. Returns
	// sentinel.ErrNotFound when the user has no saved preference.
	Timezone(ctx context.Context, userID id.UserID) (string, error)
}

// AuditPublisher emits audit events for operational state changes.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

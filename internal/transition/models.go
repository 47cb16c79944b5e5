// Package transition is the dual-source session query engine. It routes
// each query to the legacy day-aggregate store, the per-event UTC
// store, or both, per the user's migration state, isolates source
// failures behind per-source circuit breakers, and merges results into
// one unified timeline.
package transition

import (
	"strings"
	"time"

	"meridian/internal/flags"
	"meridian/internal/sessions"
	"meridian/internal/timezone"
	id "meridian/pkg/domain"
	dErrors "meridian/pkg/domain-errors"
	"meridian/pkg/platform/circuit"
)

// Source names for breakers, metrics, and health reporting.
const (
	SourceLegacy = "legacy_store"
	SourceUTC    = "utc_store"
)

// FeatureName identifies the migration flag this engine routes on.
const FeatureName = "utc_sessions"

// SortOrder controls result ordering.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// ParseSortOrder parses an order label; empty means ascending.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc":
		return SortAscending, nil
	case "desc":
		return SortDescending, nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown sort order %q", s)
	}
}

// Query asks for a user's sessions over an inclusive local date range.
type Query struct {
	UserID    id.UserID
	StartDate string // local calendar date, YYYY-MM-DD
	EndDate   string
	// Timezone is the client-declared IANA zone. Empty falls back to
	// the user's saved preference, then to the runtime-detected zone.
	Timezone string
	Order    SortOrder
	// Subjects optionally narrows results to the named subject IDs.
	Subjects []string
}

// Validate normalizes and checks the query.
func (q *Query) Validate() error {
	if q.UserID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if _, err := time.Parse(timezone.LocalDateLayout, q.StartDate); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "start date is not a local calendar date")
	}
	if _, err := time.Parse(timezone.LocalDateLayout, q.EndDate); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "end date is not a local calendar date")
	}
	if q.EndDate < q.StartDate {
		return dErrors.New(dErrors.CodeInvalidInput, "end date precedes start date")
	}
	if q.Order == "" {
		q.Order = SortAscending
	}
	return nil
}

// legOutcome labels how a source leg ended, for metrics and diagnostics.
type legOutcome string

const (
	legOK      legOutcome = "ok"
	legEmpty   legOutcome = "empty"
	legFailed  legOutcome = "failed"
	legSkipped legOutcome = "skipped"
)

// Result is one answered query.
type Result struct {
	Events []sessions.UnifiedEvent `json:"events"`
	Range  timezone.UTCTimeRange   `json:"range"`
	Mode   flags.TransitionMode    `json:"mode"`
	Stats  sessions.MergeStats     `json:"stats"`
	// Degraded reports that at least one selected leg failed and the
	// result was served from what remained.
	Degraded bool `json:"degraded"`
	// LegacyLeg and UTCLeg report the per-source outcome.
	LegacyLeg string `json:"legacy_leg"`
	UTCLeg    string `json:"utc_leg"`
}

// Health is the engine's operational snapshot: per-breaker metrics plus
// the routing state.
type Health struct {
	Flags    flags.State             `json:"flags"`
	Breakers []circuit.HealthMetrics `json:"breakers"`
}

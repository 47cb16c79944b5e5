// Package flags decides, per user, which session store a query reads
// from while the legacy-to-UTC migration is in flight.
package flags

import (
	"strings"
	"time"

	id "meridian/pkg/domain"
	dErrors "meridian/pkg/domain-errors"
)

// TransitionMode selects which store answers session queries.
type TransitionMode string

const (
	// ModeDisabled reads the legacy store only. The migration is off.
	ModeDisabled TransitionMode = "disabled"
	// ModeDual reads both stores and merges.
	ModeDual TransitionMode = "dual"
	// ModeUTCOnly reads the UTC store only. The migration is complete.
	ModeUTCOnly TransitionMode = "utc-only"
)

// IsValid reports whether the mode is a known value.
func (m TransitionMode) IsValid() bool {
	return m == ModeDisabled || m == ModeDual || m == ModeUTCOnly
}

// ParseTransitionMode parses a mode label.
func ParseTransitionMode(s string) (TransitionMode, error) {
	m := TransitionMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown transition mode %q", s)
	}
	return m, nil
}

// RoutingConfig tunes how dual mode behaves. Both knobs are mutable at
// runtime and read fresh on every routing decision.
type RoutingConfig struct {
	// PreferUTC makes the UTC store primary in dual mode; the legacy
	// store is only consulted when the UTC leg fails or returns nothing.
	PreferUTC bool `json:"prefer_utc"`
	// FallbackToLegacy permits falling back to the legacy store when a
	// UTC-primary read cannot be served.
	FallbackToLegacy bool `json:"fallback_to_legacy"`
}

// ConfigUpdate is a partial RoutingConfig; nil fields keep their
// current value.
type ConfigUpdate struct {
	PreferUTC        *bool `json:"prefer_utc,omitempty"`
	FallbackToLegacy *bool `json:"fallback_to_legacy,omitempty"`
}

// Decision is the routing outcome for one query. The service executes
// exactly the legs the decision names.
type Decision struct {
	Mode TransitionMode `json:"mode"`
	// QueryLegacy and QueryUTC name the legs to issue.
	QueryLegacy bool `json:"query_legacy"`
	QueryUTC    bool `json:"query_utc"`
	// UTCPrimary means the UTC leg is authoritative and the legacy leg
	// runs only as fallback. When false and both legs are on, the legs
	// run concurrently and merge.
	UTCPrimary bool `json:"utc_primary"`
	// FallbackToLegacy permits the legacy fallback leg when UTCPrimary.
	FallbackToLegacy bool `json:"fallback_to_legacy"`
	// Emergency reports that an emergency disable forced the mode.
	Emergency bool `json:"emergency"`
}

// State is a read-only snapshot of the router for health reporting.
type State struct {
	FeatureName       string         `json:"feature_name"`
	GlobalMode        TransitionMode `json:"global_mode"`
	PerUserOverrides  int            `json:"per_user_overrides"`
	EmergencyDisabled bool           `json:"emergency_disabled"`
	EmergencyAt       time.Time      `json:"emergency_at,omitzero"`
	Routing           RoutingConfig  `json:"routing"`
}

// Override pins one user to a mode regardless of the global default.
// Used to enroll pilot users before a global rollout.
type Override struct {
	UserID id.UserID      `json:"user_id"`
	Mode   TransitionMode `json:"mode"`
}

// Package audit captures operational state changes made to the
// migration engine: kill-switch flips, config updates, and circuit
// transitions. Events stay transport-agnostic so stores and sinks can
// fan out.
package audit

import (
	"context"
	"time"

	"meridian/pkg/attrs"
	id "meridian/pkg/domain"
)

// Action names what happened.
type Action string

const (
	ActionEmergencyDisabled Action = "emergency_disabled"
	ActionEmergencyReset    Action = "emergency_reset"
	ActionConfigUpdated     Action = "config_updated"
	ActionOverrideSet       Action = "override_set"
	ActionOverrideCleared   Action = "override_cleared"
	ActionBreakerOpened     Action = "breaker_opened"
	ActionBreakerClosed     Action = "breaker_closed"
	ActionBreakerHalfOpened Action = "breaker_half_opened"
)

// Category classifies events by operational weight. Security events are
// kill-switch flips an operator must be able to reconstruct; operations
// events are routine visibility and may be sampled.
type Category string

const (
	CategorySecurity   Category = "security"
	CategoryOperations Category = "operations"
)

// categories maps each action to its category. Unknown actions are
// treated as operations.
var categories = map[Action]Category{
	ActionEmergencyDisabled: CategorySecurity,
	ActionEmergencyReset:    CategorySecurity,
	ActionConfigUpdated:     CategorySecurity,
	ActionOverrideSet:       CategoryOperations,
	ActionOverrideCleared:   CategoryOperations,
	ActionBreakerOpened:     CategoryOperations,
	ActionBreakerClosed:     CategoryOperations,
	ActionBreakerHalfOpened: CategoryOperations,
}

// CategoryOf returns the category an action belongs to.
func CategoryOf(action Action) Category {
	if c, ok := categories[action]; ok {
		return c
	}
	return CategoryOperations
}

// Event is one recorded state change.
type Event struct {
	Category  Category  `json:"category"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	// Feature is the feature flag the change applies to, when any.
	Feature string `json:"feature,omitempty"`
	// UserID is the affected user for per-user changes; zero for global ones.
	UserID id.UserID `json:"user_id,omitzero"`
	// ActorID identifies who performed the action. Admin operations
	// record the admin identity; automated transitions record the
	// component name.
	ActorID   string `json:"actor_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	// Detail carries free-form key-value pairs, [k1, v1, k2, v2, ...],
	// the same shape slog attrs use.
	Detail []any `json:"detail,omitempty"`
}

// DetailString extracts a string value from the event's detail pairs.
func (e Event) DetailString(key string) string {
	return attrs.ExtractString(e.Detail, key)
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

package handler

import (
	"meridian/internal/transition"
	"meridian/pkg/platform/circuit"
)

// healthResponse combines the routing snapshot with the detailed
// per-breaker state for the ops dashboard.
type healthResponse struct {
	transition.Health
	Statuses []circuit.Status `json:"breaker_status"`
}

package flags

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "meridian/pkg/domain"

	"meridian/internal/flags/metrics"
)

// Resettable is anything an emergency reset must return to baseline.
// Circuit breakers guarding the session stores register here so a reset
// clears their failure history along with the emergency flag.
type Resettable interface {
	Name() string
	Reset()
}

// Router resolves which store(s) a user's session queries read from.
//
// Precedence is evaluated top-down on every call:
//
//	emergency disable > per-user override > global default
//
// All state is process-local and mutex-guarded. Safe for concurrent use.
type Router struct {
	featureName string

	mu          sync.RWMutex
	globalMode  TransitionMode
	overrides   map[id.UserID]TransitionMode
	routing     RoutingConfig
	emergency   bool
	emergencyAt time.Time

	resettables []Resettable
	logger      *slog.Logger
	metrics     *metrics.Metrics
	clock       func() time.Time
}

// Option configures the Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches routing metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Router) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithGlobalMode sets the startup default mode.
func WithGlobalMode(mode TransitionMode) Option {
	return func(r *Router) {
		if mode.IsValid() {
			r.globalMode = mode
		}
	}
}

// WithRoutingConfig sets the startup routing knobs.
func WithRoutingConfig(cfg RoutingConfig) Option {
	return func(r *Router) {
		r.routing = cfg
	}
}

// WithOverrides seeds per-user overrides loaded from the flag source.
func WithOverrides(overrides []Override) Option {
	return func(r *Router) {
		for _, o := range overrides {
			if !o.UserID.IsZero() && o.Mode.IsValid() {
				r.overrides[o.UserID] = o.Mode
			}
		}
	}
}

// WithResettables registers components an emergency reset returns to
// baseline alongside the flag itself.
func WithResettables(rs ...Resettable) Option {
	return func(r *Router) {
		r.resettables = append(r.resettables, rs...)
	}
}

// NewRouter constructs a Router for the named feature.
func NewRouter(featureName string, opts ...Option) *Router {
	r := &Router{
		featureName: featureName,
		globalMode:  ModeDisabled,
		overrides:   make(map[id.UserID]TransitionMode),
		routing:     RoutingConfig{PreferUTC: false, FallbackToLegacy: true},
		logger:      slog.Default(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode resolves the effective transition mode for a user. An active
// emergency disable wins over everything, including per-user overrides.
func (r *Router) Mode(userID id.UserID) TransitionMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modeLocked(userID)
}

func (r *Router) modeLocked(userID id.UserID) TransitionMode {
	if r.emergency {
		return ModeDisabled
	}
	if mode, ok := r.overrides[userID]; ok {
		return mode
	}
	return r.globalMode
}

// Decide resolves the full routing decision for one query: the
// effective mode plus which legs to run, per the routing table.
func (r *Router) Decide(ctx context.Context, userID id.UserID) Decision {
	r.mu.RLock()
	mode := r.modeLocked(userID)
	routing := r.routing
	emergency := r.emergency
	r.mu.RUnlock()

	d := Decision{Mode: mode, Emergency: emergency}
	switch mode {
	case ModeUTCOnly:
		d.QueryUTC = true
	case ModeDual:
		if routing.PreferUTC {
			d.QueryUTC = true
			d.UTCPrimary = true
			d.FallbackToLegacy = routing.FallbackToLegacy
			d.QueryLegacy = routing.FallbackToLegacy
		} else {
			d.QueryLegacy = true
			d.QueryUTC = true
		}
	default: // ModeDisabled
		d.QueryLegacy = true
	}

	r.metrics.IncrementDecisions(string(mode))
	if emergency {
		r.logger.DebugContext(ctx, "routing forced to legacy by emergency disable",
			"feature", r.featureName,
			"user_id", userID,
		)
	}
	return d
}

// SetOverride pins a user to a mode. An invalid mode clears the override.
func (r *Router) SetOverride(userID id.UserID, mode TransitionMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !mode.IsValid() {
		delete(r.overrides, userID)
		return
	}
	r.overrides[userID] = mode
}

// ClearOverride removes a user's pin, returning them to the global default.
func (r *Router) ClearOverride(userID id.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, userID)
}

// SetGlobalMode moves the global default. Used by rollout tooling.
func (r *Router) SetGlobalMode(mode TransitionMode) {
	if !mode.IsValid() {
		return
	}
	r.mu.Lock()
	r.globalMode = mode
	r.mu.Unlock()
	r.metrics.SetGlobalMode(string(mode))
}

// Config returns the current routing knobs.
func (r *Router) Config() RoutingConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routing
}

// UpdateConfig applies a partial update to the routing knobs and
// returns the resulting config. Nil fields keep their current value.
func (r *Router) UpdateConfig(ctx context.Context, update ConfigUpdate) RoutingConfig {
	r.mu.Lock()
	if update.PreferUTC != nil {
		r.routing.PreferUTC = *update.PreferUTC
	}
	if update.FallbackToLegacy != nil {
		r.routing.FallbackToLegacy = *update.FallbackToLegacy
	}
	routing := r.routing
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "routing config updated",
		"feature", r.featureName,
		"prefer_utc", routing.PreferUTC,
		"fallback_to_legacy", routing.FallbackToLegacy,
	)
	return routing
}

// EmergencyDisable forces every user to the legacy store immediately,
// overriding all per-user pins. The kill switch for bad migrations.
func (r *Router) EmergencyDisable(ctx context.Context) {
	now := r.clock()

	r.mu.Lock()
	already := r.emergency
	r.emergency = true
	r.emergencyAt = now
	r.mu.Unlock()

	if already {
		return
	}
	r.metrics.SetEmergency(true)
	r.logger.WarnContext(ctx, "feature emergency-disabled",
		"feature", r.featureName,
	)
}

// ResetEmergency clears the emergency flag and returns every registered
// resettable to baseline. A reset is a full return to pre-incident
// behavior, not just a flag flip.
func (r *Router) ResetEmergency(ctx context.Context) {
	r.mu.Lock()
	r.emergency = false
	r.emergencyAt = time.Time{}
	r.mu.Unlock()

	for _, rs := range r.resettables {
		rs.Reset()
		r.logger.InfoContext(ctx, "reset to baseline",
			"feature", r.featureName,
			"component", rs.Name(),
		)
	}
	r.metrics.SetEmergency(false)
	r.logger.InfoContext(ctx, "emergency state cleared",
		"feature", r.featureName,
	)
}

// EmergencyDisabled reports whether the kill switch is active.
func (r *Router) EmergencyDisabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.emergency
}

// Snapshot returns the router state for health reporting.
func (r *Router) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return State{
		FeatureName:       r.featureName,
		GlobalMode:        r.globalMode,
		PerUserOverrides:  len(r.overrides),
		EmergencyDisabled: r.emergency,
		EmergencyAt:       r.emergencyAt,
		Routing:           r.routing,
	}
}

// Package circuit provides a sliding-window circuit breaker for guarding
// calls to session data sources.
//
// The breaker counts failures within a monitor window. Crossing the
// failure threshold opens the circuit; after a reset timeout a limited
// number of probe requests are allowed through (half-open), and enough
// probe successes close the circuit again.
package circuit

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by Execute when the circuit is open and no
// fallback is configured.
var ErrOpen = errors.New("circuit open")

// State is the breaker state machine position.
type State int

const (
	// StateClosed allows all requests through.
	StateClosed State = iota
	// StateOpen rejects requests until the reset timeout elapses.
	StateOpen
	// StateHalfOpen allows a bounded number of probe requests.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Change reports state transitions caused by a breaker event.
type Change struct {
	Opened     bool
	Closed     bool
	HalfOpened bool
}

const (
	defaultFailureThreshold  = 5
	defaultSuccessThreshold  = 1
	defaultResetTimeout      = 30 * time.Second
	defaultMonitorWindow     = 60 * time.Second
	defaultHalfOpenMaxProbes = 3
)

// Breaker is a thread-safe sliding-window circuit breaker.
type Breaker struct {
	name string

	mu             sync.Mutex
	state          State
	failures       []time.Time
	successCount   int
	halfOpenProbes int
	lastFailureAt  time.Time
	lastSuccessAt  time.Time
	openedAt       time.Time
	totalCalls     uint64
	totalFailures  uint64

	failureThreshold  int
	successThreshold  int
	resetTimeout      time.Duration
	monitorWindow     time.Duration
	halfOpenMaxProbes int
	maxRetries        int

	clock         func() time.Time
	logger        *slog.Logger
	onStateChange func(name string, from, to State)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many failures within the monitor window
// open the circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many successes close an open circuit.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithResetTimeout sets how long the circuit stays open before probe
// requests are allowed.
func WithResetTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.resetTimeout = d
		}
	}
}

// WithMonitorWindow sets the sliding window within which failures count
// toward the threshold. Older failures are pruned.
func WithMonitorWindow(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.monitorWindow = d
		}
	}
}

// WithHalfOpenMaxProbes bounds concurrent probe requests while half-open.
func WithHalfOpenMaxProbes(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.halfOpenMaxProbes = n
		}
	}
}

// WithMaxRetries records an advisory retry budget for callers. The
// breaker never retries on its own; the value is only surfaced through
// Status so operators see what callers are configured to do.
func WithMaxRetries(n int) Option {
	return func(b *Breaker) {
		if n >= 0 {
			b.maxRetries = n
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(clock func() time.Time) Option {
	return func(b *Breaker) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithLogger sets the logger for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithOnStateChange registers a callback invoked after every state
// transition. Called outside the breaker lock.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// New constructs a closed breaker with the given name.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:              name,
		state:             StateClosed,
		failureThreshold:  defaultFailureThreshold,
		successThreshold:  defaultSuccessThreshold,
		resetTimeout:      defaultResetTimeout,
		monitorWindow:     defaultMonitorWindow,
		halfOpenMaxProbes: defaultHalfOpenMaxProbes,
		clock:             time.Now,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether the circuit is open.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Healthy reports whether the breaker is letting primary traffic through.
// Half-open counts as healthy since probes are in flight.
func (b *Breaker) Healthy() bool {
	return b.State() != StateOpen
}

// Allow reports whether a request may proceed to the primary source.
// When the reset timeout has elapsed on an open circuit, Allow moves it
// to half-open and admits the request as a probe.
func (b *Breaker) Allow() (bool, Change) {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return true, Change{}

	case StateOpen:
		if b.clock().Sub(b.openedAt) >= b.resetTimeout {
			from := b.state
			b.state = StateHalfOpen
			b.halfOpenProbes = 1
			b.successCount = 0
			b.mu.Unlock()
			b.notify(from, StateHalfOpen)
			return true, Change{HalfOpened: true}
		}
		b.mu.Unlock()
		return false, Change{}

	default: // StateHalfOpen
		if b.halfOpenProbes < b.halfOpenMaxProbes {
			b.halfOpenProbes++
			b.mu.Unlock()
			return true, Change{}
		}
		b.mu.Unlock()
		return false, Change{}
	}
}

// RecordFailure records a failed call. Returns whether callers should
// use their fallback and any state transition that occurred.
func (b *Breaker) RecordFailure() (useFallback bool, change Change) {
	b.mu.Lock()

	now := b.clock()
	b.lastFailureAt = now
	b.totalCalls++
	b.totalFailures++
	b.failures = append(b.failures, now)
	b.pruneLocked(now)
	b.successCount = 0

	switch b.state {
	case StateClosed:
		if len(b.failures) >= b.failureThreshold {
			from := b.state
			b.state = StateOpen
			b.openedAt = now
			b.mu.Unlock()
			b.notify(from, StateOpen)
			return true, Change{Opened: true}
		}
		b.mu.Unlock()
		return false, Change{}

	case StateHalfOpen:
		// A failed probe reopens immediately.
		from := b.state
		b.state = StateOpen
		b.openedAt = now
		b.halfOpenProbes = 0
		b.mu.Unlock()
		b.notify(from, StateOpen)
		return true, Change{Opened: true}

	default: // StateOpen
		b.mu.Unlock()
		return true, Change{}
	}
}

// RecordSuccess records a successful call. Returns whether callers
// should route to the primary source and any state transition.
func (b *Breaker) RecordSuccess() (usePrimary bool, change Change) {
	b.mu.Lock()

	b.totalCalls++
	b.lastSuccessAt = b.clock()

	if b.state == StateClosed {
		b.failures = b.failures[:0]
		b.mu.Unlock()
		return true, Change{}
	}

	b.successCount++
	if b.successCount >= b.successThreshold {
		from := b.state
		b.state = StateClosed
		b.failures = b.failures[:0]
		b.successCount = 0
		b.halfOpenProbes = 0
		b.mu.Unlock()
		b.notify(from, StateClosed)
		return true, Change{Closed: true}
	}

	b.mu.Unlock()
	return false, Change{}
}

// Reset forces the breaker closed and clears all recorded history.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = b.failures[:0]
	b.successCount = 0
	b.halfOpenProbes = 0
	b.openedAt = time.Time{}
	b.lastFailureAt = time.Time{}
	b.lastSuccessAt = time.Time{}
	b.totalCalls = 0
	b.totalFailures = 0
	b.mu.Unlock()

	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

// Status is a point-in-time snapshot for health reporting.
type Status struct {
	Name             string        `json:"name"`
	State            string        `json:"state"`
	WindowFailures   int           `json:"window_failures"`
	SuccessCount     int           `json:"success_count"`
	LastFailureAt    time.Time     `json:"last_failure_at,omitzero"`
	LastSuccessAt    time.Time     `json:"last_success_at,omitzero"`
	OpenedAt         time.Time     `json:"opened_at,omitzero"`
	NextRetryAt      time.Time     `json:"next_retry_at,omitzero"`
	FailureThreshold int           `json:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	MaxRetries       int           `json:"max_retries"`
	ResetTimeout     time.Duration `json:"reset_timeout_ms"`
	MonitorWindow    time.Duration `json:"monitor_window_ms"`
}

// Status returns a snapshot of the breaker's state and window counts.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	b.pruneLocked(now)

	var nextRetry time.Time
	if b.state == StateOpen {
		nextRetry = b.openedAt.Add(b.resetTimeout)
	}

	return Status{
		Name:             b.name,
		State:            b.state.String(),
		WindowFailures:   len(b.failures),
		SuccessCount:     b.successCount,
		LastFailureAt:    b.lastFailureAt,
		LastSuccessAt:    b.lastSuccessAt,
		OpenedAt:         b.openedAt,
		NextRetryAt:      nextRetry,
		FailureThreshold: b.failureThreshold,
		SuccessThreshold: b.successThreshold,
		MaxRetries:       b.maxRetries,
		ResetTimeout:     b.resetTimeout / time.Millisecond,
		MonitorWindow:    b.monitorWindow / time.Millisecond,
	}
}

// HealthMetrics summarizes a breaker for operational dashboards.
// Availability is the success ratio of calls recorded since the last
// reset; a breaker that has seen no traffic reports 1.0.
type HealthMetrics struct {
	Name           string    `json:"name"`
	State          string    `json:"state"`
	Healthy        bool      `json:"healthy"`
	WindowFailures int       `json:"window_failures"`
	TotalCalls     uint64    `json:"total_calls"`
	TotalFailures  uint64    `json:"total_failures"`
	Availability   float64   `json:"availability"`
	LastFailureAt  time.Time `json:"last_failure_at,omitzero"`
	LastSuccessAt  time.Time `json:"last_success_at,omitzero"`
	NextRetryAt    time.Time `json:"next_retry_at,omitzero"`
}

// HealthMetrics returns an availability estimate alongside the state
// snapshot. Read-only.
func (b *Breaker) HealthMetrics() HealthMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneLocked(b.clock())

	availability := 1.0
	if b.totalCalls > 0 {
		availability = float64(b.totalCalls-b.totalFailures) / float64(b.totalCalls)
	}
	var nextRetry time.Time
	if b.state == StateOpen {
		nextRetry = b.openedAt.Add(b.resetTimeout)
	}

	return HealthMetrics{
		Name:           b.name,
		State:          b.state.String(),
		Healthy:        b.state != StateOpen,
		WindowFailures: len(b.failures),
		TotalCalls:     b.totalCalls,
		TotalFailures:  b.totalFailures,
		Availability:   availability,
		LastFailureAt:  b.lastFailureAt,
		LastSuccessAt:  b.lastSuccessAt,
		NextRetryAt:    nextRetry,
	}
}

// pruneLocked drops failures older than the monitor window.
// Callers must hold b.mu.
func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.monitorWindow)
	kept := b.failures[:0]
	for _, ts := range b.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.failures = kept
}

func (b *Breaker) notify(from, to State) {
	if b.logger != nil {
		b.logger.Info("circuit state changed",
			"circuit", b.name,
			"from", from.String(),
			"to", to.String(),
		)
	}
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

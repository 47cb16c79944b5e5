package transition

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"meridian/internal/flags"
	"meridian/internal/sessions"
	"meridian/internal/timezone"
	"meridian/internal/transition/metrics"
	"meridian/internal/transition/ports"
	id "meridian/pkg/domain"
	dErrors "meridian/pkg/domain-errors"
	"meridian/pkg/platform/audit"
	"meridian/pkg/platform/circuit"
	"meridian/pkg/platform/sentinel"
	"meridian/pkg/requestcontext"
)

const tracerName = "meridian/internal/transition"

// Service answers session queries during the store migration. One
// instance owns one breaker per source; both breakers register with the
// flag router so an emergency reset returns them to baseline.
type Service struct {
	tz      *timezone.Service
	merger  *sessions.Merger
	router  *flags.Router
	legacy  ports.LegacyStore
	events  ports.EventStore
	profile ports.ProfileStore

	legacyBreaker *circuit.Breaker
	utcBreaker    *circuit.Breaker

	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   ports.AuditPublisher
	tracer  trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches query metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAudit attaches an audit publisher for operational state changes.
func WithAudit(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

// WithBreakers injects pre-configured breakers for the two sources.
// Without this option the service builds breakers with defaults.
func WithBreakers(legacy, utc *circuit.Breaker) Option {
	return func(s *Service) {
		if legacy != nil {
			s.legacyBreaker = legacy
		}
		if utc != nil {
			s.utcBreaker = utc
		}
	}
}

// New constructs the engine. The stores, timezone service, merger, and
// flag router are required; everything else has defaults.
func New(
	tz *timezone.Service,
	merger *sessions.Merger,
	router *flags.Router,
	legacy ports.LegacyStore,
	events ports.EventStore,
	profile ports.ProfileStore,
	opts ...Option,
) (*Service, error) {
	if tz == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "timezone service is required")
	}
	if merger == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "session merger is required")
	}
	if router == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "flag router is required")
	}
	if legacy == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "legacy store is required")
	}
	if events == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "event store is required")
	}
	if profile == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "profile store is required")
	}

	s := &Service{
		tz:      tz,
		merger:  merger,
		router:  router,
		legacy:  legacy,
		events:  events,
		profile: profile,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.legacyBreaker == nil {
		s.legacyBreaker = circuit.New(SourceLegacy, circuit.WithLogger(s.logger))
	}
	if s.utcBreaker == nil {
		s.utcBreaker = circuit.New(SourceUTC, circuit.WithLogger(s.logger))
	}

	return s, nil
}

// Breakers exposes the per-source breakers, typically to register them
// with the flag router's emergency reset.
func (s *Service) Breakers() []*circuit.Breaker {
	return []*circuit.Breaker{s.legacyBreaker, s.utcBreaker}
}

// SessionsForDateRange returns the unified sessions for an inclusive
// local date range, routed per the user's transition mode.
func (s *Service) SessionsForDateRange(ctx context.Context, q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	tz := s.resolveTimezone(ctx, q.UserID, q.Timezone)
	bounds := s.tz.RangeBoundaries(ctx, q.StartDate, q.EndDate, tz)
	decision := s.router.Decide(ctx, q.UserID)

	ctx, span := s.tracer.Start(ctx, "transition.SessionsForDateRange",
		trace.WithAttributes(
			attribute.String("transition.mode", string(decision.Mode)),
			attribute.String("query.timezone", tz),
			attribute.String("query.start_date", q.StartDate),
			attribute.String("query.end_date", q.EndDate),
		))
	defer span.End()

	result := &Result{
		Range:     bounds,
		Mode:      decision.Mode,
		LegacyLeg: string(legSkipped),
		UTCLeg:    string(legSkipped),
	}

	var utcEvents, legacyEvents []sessions.UnifiedEvent
	var utcErr, legacyErr error

	switch {
	case decision.UTCPrimary:
		// Dual mode preferring UTC: the legacy leg runs only when the
		// UTC leg fails or comes back empty.
		utcEvents, utcErr = s.runUTCLeg(ctx, q.UserID, bounds)
		result.UTCLeg = string(outcomeOf(utcEvents, utcErr))

		switch {
		case utcErr == nil && len(utcEvents) > 0:
			// Primary answered.
		case !decision.FallbackToLegacy:
			if utcErr != nil {
				s.metrics.IncrementQueries(string(decision.Mode), "error")
				return nil, s.translateLegError(SourceUTC, utcErr)
			}
		default:
			reason := "no_data"
			if utcErr != nil {
				reason = "error"
				result.Degraded = true
			}
			s.metrics.IncrementFallbacks(SourceUTC, reason)
			legacyEvents, legacyErr = s.runLegacyLeg(ctx, q.UserID, q.StartDate, q.EndDate, tz)
			result.LegacyLeg = string(outcomeOf(legacyEvents, legacyErr))
			if legacyErr != nil && utcErr != nil {
				s.metrics.IncrementQueries(string(decision.Mode), "error")
				return nil, s.translateLegError(SourceLegacy, legacyErr)
			}
		}

	case decision.QueryLegacy && decision.QueryUTC:
		// Dual mode preferring legacy: both legs run concurrently and
		// merge. Each leg fails independently; errgroup is used for
		// its shared-context plumbing, never to abort the sibling leg.
		g, legCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			legacyEvents, legacyErr = s.runLegacyLeg(legCtx, q.UserID, q.StartDate, q.EndDate, tz)
			return nil
		})
		g.Go(func() error {
			utcEvents, utcErr = s.runUTCLeg(legCtx, q.UserID, bounds)
			return nil
		})
		_ = g.Wait()

		result.LegacyLeg = string(outcomeOf(legacyEvents, legacyErr))
		result.UTCLeg = string(outcomeOf(utcEvents, utcErr))
		if legacyErr != nil && utcErr != nil {
			s.metrics.IncrementQueries(string(decision.Mode), "error")
			return nil, s.translateLegError(SourceLegacy, legacyErr)
		}
		result.Degraded = legacyErr != nil || utcErr != nil

	case decision.QueryUTC:
		utcEvents, utcErr = s.runUTCLeg(ctx, q.UserID, bounds)
		result.UTCLeg = string(outcomeOf(utcEvents, utcErr))
		if utcErr != nil {
			s.metrics.IncrementQueries(string(decision.Mode), "error")
			return nil, s.translateLegError(SourceUTC, utcErr)
		}

	default:
		legacyEvents, legacyErr = s.runLegacyLeg(ctx, q.UserID, q.StartDate, q.EndDate, tz)
		result.LegacyLeg = string(outcomeOf(legacyEvents, legacyErr))
		if legacyErr != nil {
			s.metrics.IncrementQueries(string(decision.Mode), "error")
			return nil, s.translateLegError(SourceLegacy, legacyErr)
		}
	}

	merged, stats := s.merger.Merge(ctx, utcEvents, legacyEvents)
	merged = filterSubjects(merged, q.Subjects)
	if q.Order == SortDescending {
		sessions.SortByStartDesc(merged)
	}

	result.Events = merged
	result.Stats = stats

	s.metrics.IncrementQueries(string(decision.Mode), "ok")
	s.metrics.ObserveEventsReturned(len(merged))
	s.metrics.AddDeduplicated(stats.Deduplicated)
	s.metrics.AddDropped(stats.Dropped)
	span.SetAttributes(
		attribute.Int("result.events", len(merged)),
		attribute.Int("result.deduplicated", stats.Deduplicated),
		attribute.Bool("result.degraded", result.Degraded),
	)

	s.logger.InfoContext(ctx, "session query served",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", q.UserID,
		"mode", decision.Mode,
		"timezone", tz,
		"start_date", q.StartDate,
		"end_date", q.EndDate,
		"events", len(merged),
		"deduplicated", stats.Deduplicated,
		"degraded", result.Degraded,
	)
	return result, nil
}

// TodaySessions returns the unified sessions for "today" in the user's
// zone. Which calendar date that is depends on the zone, not on server
// time.
func (s *Service) TodaySessions(ctx context.Context, userID id.UserID, tz string, order SortOrder) (*Result, error) {
	effTz := s.resolveTimezone(ctx, userID, tz)
	bounds := s.tz.TodayBoundaries(ctx, effTz)
	return s.SessionsForDateRange(ctx, Query{
		UserID:    userID,
		StartDate: bounds.OriginalStart,
		EndDate:   bounds.OriginalEnd,
		Timezone:  effTz,
		Order:     order,
	})
}

// resolveTimezone picks the effective zone: the client's declared zone,
// else the user's saved preference, else the runtime-detected zone.
// The result is always a validated IANA name.
func (s *Service) resolveTimezone(ctx context.Context, userID id.UserID, declared string) string {
	if declared != "" && s.tz.IsValidTimezone(declared) {
		return declared
	}
	if declared != "" {
		s.logger.WarnContext(ctx, "declared timezone invalid, consulting profile",
			"user_id", userID,
			"timezone", declared,
		)
	}

	saved, err := s.profile.Timezone(ctx, userID)
	if err == nil && s.tz.IsValidTimezone(saved) {
		return saved
	}
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "profile timezone lookup failed",
			"user_id", userID,
			"error", err,
		)
	}
	return s.tz.CurrentTimezone()
}

// runUTCLeg reads the per-event UTC store through its breaker.
func (s *Service) runUTCLeg(ctx context.Context, userID id.UserID, bounds timezone.UTCTimeRange) ([]sessions.UnifiedEvent, error) {
	ctx, span := s.tracer.Start(ctx, "transition.utc_leg")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveSourceLatency(SourceUTC, time.Since(start)) }()

	utcStart, err := timezone.ParseUTCMillis(bounds.UTCStart)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unusable range start")
	}
	utcEnd, err := timezone.ParseUTCMillis(bounds.UTCEnd)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unusable range end")
	}

	rows, err := circuit.Execute(ctx, s.utcBreaker, func(ctx context.Context) ([]sessions.UTCEvent, error) {
		rows, err := s.events.EventsInRange(ctx, userID, utcStart, utcEnd)
		if errors.Is(err, sentinel.ErrNoData) {
			// An empty range is a fact about the data, not a source failure.
			return nil, nil
		}
		return rows, err
	}, nil)
	if err != nil {
		s.metrics.IncrementSourceFailures(SourceUTC)
		s.logger.WarnContext(ctx, "utc leg failed",
			"user_id", userID,
			"error", err,
		)
		return nil, err
	}

	out := make([]sessions.UnifiedEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.merger.NormalizeUTC(ctx, row, userID))
	}
	return out, nil
}

// runLegacyLeg reads the legacy day aggregates through their breaker,
// one query per local calendar date, and fans each row out into
// synthetic events.
func (s *Service) runLegacyLeg(ctx context.Context, userID id.UserID, startDate, endDate, tz string) ([]sessions.UnifiedEvent, error) {
	ctx, span := s.tracer.Start(ctx, "transition.legacy_leg")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveSourceLatency(SourceLegacy, time.Since(start)) }()

	var out []sessions.UnifiedEvent
	for _, date := range localDates(startDate, endDate) {
		rows, err := circuit.Execute(ctx, s.legacyBreaker, func(ctx context.Context) ([]sessions.LegacyDayRecord, error) {
			rows, err := s.legacy.DayAggregates(ctx, userID, date)
			if errors.Is(err, sentinel.ErrNoData) {
				return nil, nil
			}
			return rows, err
		}, nil)
		if err != nil {
			s.metrics.IncrementSourceFailures(SourceLegacy)
			s.logger.WarnContext(ctx, "legacy leg failed",
				"user_id", userID,
				"date", date,
				"error", err,
			)
			return nil, err
		}

		bounds := s.tz.DayBoundaries(ctx, date, tz)
		for _, row := range rows {
			out = append(out, s.merger.FanOut(ctx, row, bounds, userID)...)
		}
	}
	return out, nil
}

// localDates enumerates the inclusive calendar dates between two
// YYYY-MM-DD values. Dates are pre-validated by Query.Validate.
func localDates(startDate, endDate string) []string {
	start, err := time.Parse(timezone.LocalDateLayout, startDate)
	if err != nil {
		return []string{startDate}
	}
	end, err := time.Parse(timezone.LocalDateLayout, endDate)
	if err != nil || end.Before(start) {
		return []string{startDate}
	}

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(timezone.LocalDateLayout))
	}
	return dates
}

// translateLegError maps leg failures to coded errors for transport.
func (s *Service) translateLegError(source string, err error) error {
	if errors.Is(err, circuit.ErrOpen) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, source+" circuit open")
	}
	if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, source+" query failed")
}

func outcomeOf(events []sessions.UnifiedEvent, err error) legOutcome {
	switch {
	case err != nil:
		return legFailed
	case len(events) == 0:
		return legEmpty
	default:
		return legOK
	}
}

// filterSubjects narrows events to the requested subject IDs; an empty
// filter keeps everything. Subjects are hostnames, so both sides fold
// case before comparing.
func filterSubjects(events []sessions.UnifiedEvent, subjects []string) []sessions.UnifiedEvent {
	if len(subjects) == 0 {
		return events
	}
	want := make(map[string]struct{}, len(subjects))
	for _, sub := range subjects {
		want[strings.ToLower(sub)] = struct{}{}
	}
	kept := events[:0]
	for _, ev := range events {
		if _, ok := want[strings.ToLower(ev.SubjectID)]; ok {
			kept = append(kept, ev)
		}
	}
	return kept
}

// Config returns the current routing configuration.
func (s *Service) Config() flags.RoutingConfig {
	return s.router.Config()
}

// UpdateConfig applies a partial routing-config update and audits it.
func (s *Service) UpdateConfig(ctx context.Context, update flags.ConfigUpdate) flags.RoutingConfig {
	cfg := s.router.UpdateConfig(ctx, update)
	s.emitAudit(ctx, audit.Event{
		Action:  audit.ActionConfigUpdated,
		Feature: FeatureName,
		Detail: []any{
			"prefer_utc", boolLabel(cfg.PreferUTC),
			"fallback_to_legacy", boolLabel(cfg.FallbackToLegacy),
		},
	})
	return cfg
}

// EmergencyDisable flips the kill switch: every user routes to the
// legacy store until ResetEmergencyState.
func (s *Service) EmergencyDisable(ctx context.Context, reason string) {
	s.router.EmergencyDisable(ctx)
	s.emitAudit(ctx, audit.Event{
		Action:  audit.ActionEmergencyDisabled,
		Feature: FeatureName,
		Detail:  []any{"reason", reason},
	})
}

// ResetEmergencyState clears the kill switch and returns both source
// breakers to baseline. A full return to pre-incident behavior.
func (s *Service) ResetEmergencyState(ctx context.Context) {
	s.router.ResetEmergency(ctx)
	s.emitAudit(ctx, audit.Event{
		Action:  audit.ActionEmergencyReset,
		Feature: FeatureName,
	})
}

// Health reports routing state and per-breaker availability.
func (s *Service) Health() Health {
	return Health{
		Flags: s.router.Snapshot(),
		Breakers: []circuit.HealthMetrics{
			s.legacyBreaker.HealthMetrics(),
			s.utcBreaker.HealthMetrics(),
		},
	}
}

// BreakerStatuses returns the detailed per-breaker snapshots.
func (s *Service) BreakerStatuses() []circuit.Status {
	return []circuit.Status{
		s.legacyBreaker.Status(),
		s.utcBreaker.Status(),
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action,
			"error", err,
		)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Package timezone converts between user-local time and UTC using the
// IANA zone database.
//
// Every operation is total: unusable timezones coerce to UTC and
// unparseable values fall back to the current instant, with a warning
// logged and a fallback counter bumped. Queries must degrade rather
// than fail because a client sent a bad zone name.
package timezone

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"

	"meridian/internal/timezone/metrics"
)

// FallbackTimezone is the zone used whenever a client-supplied zone
// cannot be resolved.
const FallbackTimezone = "UTC"

// Day boundary spans outside this band indicate zone-database anomalies
// and are flagged for investigation. DST transitions keep a day between
// 23 and 25 hours; anything past 20-28 is suspect.
const (
	minDaySpan = 20 * time.Hour
	maxDaySpan = 28 * time.Hour
)

// naiveLayouts are accepted for datetime values without zone
// information. They are interpreted in the user's zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	LocalDateLayout,
}

const (
	defaultContextCacheSize = 10_000
	defaultContextCacheTTL  = time.Hour
	locationCacheSize       = 1_024
)

// Service performs timezone-aware conversions. Safe for concurrent use.
type Service struct {
	locations *otter.Cache[string, *time.Location]
	contexts  *otter.Cache[string, Context]
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time

	contextTTL time.Duration
	cacheSize  int
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

// WithMetrics attaches conversion metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithContextCacheTTL sets how long timezone contexts stay cached.
func WithContextCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.contextTTL = ttl
		}
	}
}

// WithContextCacheSize bounds the context cache.
func WithContextCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// New constructs the conversion service.
func New(opts ...Option) *Service {
	s := &Service{
		logger:     slog.Default(),
		clock:      time.Now,
		contextTTL: defaultContextCacheTTL,
		cacheSize:  defaultContextCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.locations = otter.Must(&otter.Options[string, *time.Location]{
		MaximumSize: locationCacheSize,
	})
	s.contexts = otter.Must(&otter.Options[string, Context]{
		MaximumSize:      s.cacheSize,
		InitialCapacity:  s.cacheSize / 10,
		ExpiryCalculator: otter.ExpiryWriting[string, Context](s.contextTTL),
	})

	return s
}

// Now returns the current instant from the service clock.
func (s *Service) Now() time.Time {
	return s.clock()
}

// CurrentUTC returns the current instant as the canonical storage string.
func (s *Service) CurrentUTC() string {
	return FormatUTCMillis(s.clock())
}

// CurrentTimezone returns the runtime-detected IANA zone. Detection
// failures report UTC; this never errors.
func (s *Service) CurrentTimezone() string {
	name := time.Local.String()
	if name == "" || name == "Local" || !s.IsValidTimezone(name) {
		return FallbackTimezone
	}
	return name
}

// IsValidTimezone reports whether tz names a resolvable IANA zone.
// Empty names and "Local" are rejected; server-local time is never a
// valid anchor for user data.
func (s *Service) IsValidTimezone(tz string) bool {
	if tz == "" || strings.EqualFold(tz, "Local") {
		return false
	}
	if _, ok := s.locations.GetIfPresent(tz); ok {
		return true
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false
	}
	s.locations.Set(tz, loc)
	return true
}

// Normalize returns tz when it is a valid IANA zone, otherwise the
// fallback zone. Coercions are logged and counted.
func (s *Service) Normalize(ctx context.Context, tz string) string {
	_, eff := s.resolve(ctx, "normalize", tz)
	return eff
}

// resolve maps a zone name to a *time.Location, coercing unusable names
// to UTC. Returns the location and the effective zone name.
func (s *Service) resolve(ctx context.Context, op, tz string) (*time.Location, string) {
	if tz == "" || strings.EqualFold(tz, "Local") {
		if tz != "" {
			s.logger.WarnContext(ctx, "unusable timezone, falling back to UTC",
				"op", op,
				"timezone", tz,
			)
		}
		s.metrics.IncrementFallback(op, "invalid_timezone")
		return time.UTC, FallbackTimezone
	}

	if loc, ok := s.locations.GetIfPresent(tz); ok {
		return loc, tz
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.logger.WarnContext(ctx, "invalid timezone, falling back to UTC",
			"op", op,
			"timezone", tz,
			"error", err,
		)
		s.metrics.IncrementFallback(op, "invalid_timezone")
		return time.UTC, FallbackTimezone
	}

	s.locations.Set(tz, loc)
	return loc, tz
}

// UserTimeToUTC converts a user-entered datetime to a UTC instant.
// Values with explicit offsets are honored; naive values are read in
// the user's zone. Unparseable values fall back to the current instant.
func (s *Service) UserTimeToUTC(ctx context.Context, value, tz string) time.Time {
	s.metrics.IncrementConversions("user_time_to_utc")
	loc, _ := s.resolve(ctx, "user_time_to_utc", tz)

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC()
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC()
		}
	}

	s.logger.WarnContext(ctx, "unparseable datetime, falling back to current instant",
		"op", "user_time_to_utc",
		"value", value,
		"timezone", tz,
	)
	s.metrics.IncrementFallback("user_time_to_utc", "unparseable_datetime")
	return s.clock().UTC()
}

// UTCToUserTime converts a stored UTC instant to the user's zone.
// Unparseable values fall back to the current instant.
func (s *Service) UTCToUserTime(ctx context.Context, value, tz string) time.Time {
	s.metrics.IncrementConversions("utc_to_user_time")
	loc, _ := s.resolve(ctx, "utc_to_user_time", tz)

	t, err := ParseUTCMillis(value)
	if err != nil {
		for _, layout := range naiveLayouts {
			if parsed, perr := time.ParseInLocation(layout, value, time.UTC); perr == nil {
				return parsed.In(loc)
			}
		}
		s.logger.WarnContext(ctx, "unparseable timestamp, falling back to current instant",
			"op", "utc_to_user_time",
			"value", value,
			"timezone", tz,
		)
		s.metrics.IncrementFallback("utc_to_user_time", "unparseable_datetime")
		t = s.clock()
	}
	return t.In(loc)
}

// DayBoundaries resolves a user-local calendar date to UTC instants
// covering [00:00:00.000, 23:59:59.999] in the user's zone. The zone
// database decides what those wall-clock times mean, so DST transition
// days produce spans shorter or longer than 24 hours.
//
// Unparseable dates fall back to today in the user's zone.
func (s *Service) DayBoundaries(ctx context.Context, localDate, tz string) UTCTimeRange {
	s.metrics.IncrementConversions("day_boundaries")
	loc, effTz := s.resolve(ctx, "day_boundaries", tz)

	day, err := time.ParseInLocation(LocalDateLayout, localDate, loc)
	if err != nil {
		s.logger.WarnContext(ctx, "unparseable local date, falling back to today",
			"op", "day_boundaries",
			"date", localDate,
			"timezone", effTz,
		)
		s.metrics.IncrementFallback("day_boundaries", "unparseable_date")
		day = s.clock().In(loc)
		localDate = day.Format(LocalDateLayout)
	}

	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)

	r := UTCTimeRange{
		UTCStart:      FormatUTCMillis(start),
		UTCEnd:        FormatUTCMillis(end),
		UserTimezone:  effTz,
		OriginalStart: localDate,
		OriginalEnd:   localDate,
	}

	if span := end.Sub(start); span < minDaySpan || span > maxDaySpan {
		s.logger.WarnContext(ctx, "day boundary span outside sane band",
			"date", localDate,
			"timezone", effTz,
			"span", span.String(),
			"utc_start", r.UTCStart,
			"utc_end", r.UTCEnd,
		)
		s.metrics.IncrementBoundaryWarnings()
	}

	return r
}

// RangeBoundaries resolves an inclusive local date range to UTC
// instants: the start date's first moment through the end date's last.
func (s *Service) RangeBoundaries(ctx context.Context, startDate, endDate, tz string) UTCTimeRange {
	sb := s.DayBoundaries(ctx, startDate, tz)
	eb := s.DayBoundaries(ctx, endDate, tz)
	return UTCTimeRange{
		UTCStart:      sb.UTCStart,
		UTCEnd:        eb.UTCEnd,
		UserTimezone:  sb.UserTimezone,
		OriginalStart: sb.OriginalStart,
		OriginalEnd:   eb.OriginalEnd,
	}
}

// TodayBoundaries resolves "today" in the user's zone. Which calendar
// date that is depends on the zone, not on server time.
func (s *Service) TodayBoundaries(ctx context.Context, tz string) UTCTimeRange {
	loc, _ := s.resolve(ctx, "today_boundaries", tz)
	today := s.clock().In(loc).Format(LocalDateLayout)
	return s.DayBoundaries(ctx, today, tz)
}

// LocalDateKey returns the user-local calendar date an instant falls on.
func (s *Service) LocalDateKey(ctx context.Context, t time.Time, tz string) string {
	loc, _ := s.resolve(ctx, "local_date_key", tz)
	return t.In(loc).Format(LocalDateLayout)
}

// Snapshot returns the user's timezone context, cached per hour bucket
// so DST flips are observed within the hour they happen.
func (s *Service) Snapshot(ctx context.Context, tz string, prov Provenance) Context {
	loc, effTz := s.resolve(ctx, "snapshot", tz)
	if effTz == FallbackTimezone && effTz != tz {
		prov = ProvenanceFallback
	}

	now := s.clock()
	key := effTz + "|" + string(prov) + "|" + strconv.FormatInt(now.Unix()/3600, 10)

	if cached, ok := s.contexts.GetIfPresent(key); ok {
		s.metrics.IncrementCacheHits()
		return cached
	}
	s.metrics.IncrementCacheMisses()

	local := now.In(loc)
	_, offsetSeconds := local.Zone()

	snapshot := Context{
		Timezone:         effTz,
		UTCOffsetMinutes: offsetSeconds / 60,
		IsDST:            isDST(local, loc),
		RecordedAt:       now.UTC(),
		Provenance:       prov,
	}
	s.contexts.Set(key, snapshot)
	return snapshot
}

// EstimatedContexts returns the approximate context cache population.
func (s *Service) EstimatedContexts() int {
	return int(s.contexts.EstimatedSize())
}

// isDST reports whether t is under daylight saving in loc, by comparing
// its offset against the zone's January and July offsets. Zones without
// DST report false.
func isDST(t time.Time, loc *time.Location) bool {
	_, offset := t.Zone()

	jan := time.Date(t.Year(), time.January, 1, 12, 0, 0, 0, loc)
	jul := time.Date(t.Year(), time.July, 1, 12, 0, 0, 0, loc)
	_, offJan := jan.Zone()
	_, offJul := jul.Zone()

	if offJan == offJul {
		return false
	}
	maxOff := offJan
	if offJul > maxOff {
		maxOff = offJul
	}
	return offset == maxOff
}

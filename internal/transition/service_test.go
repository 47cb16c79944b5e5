package transition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"meridian/internal/flags"
	"meridian/internal/sessions"
	"meridian/internal/timezone"
	"meridian/internal/transition/mocks"
	id "meridian/pkg/domain"
	dErrors "meridian/pkg/domain-errors"
	"meridian/pkg/platform/audit"
	"meridian/pkg/platform/circuit"
	"meridian/pkg/platform/sentinel"
	"meridian/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	ctx    context.Context
	now    time.Time
	userID id.UserID

	ctrl    *gomock.Controller
	legacy  *mocks.MockLegacyStore
	events  *mocks.MockEventStore
	profile *mocks.MockProfileStore
	auditor *mocks.MockAuditPublisher

	tz     *timezone.Service
	merger *sessions.Merger
	router *flags.Router
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 8, 6, 12, 0, 0, 0, time.UTC)
	s.userID = id.NewUserID()

	s.ctrl = gomock.NewController(s.T())
	s.legacy = mocks.NewMockLegacyStore(s.ctrl)
	s.events = mocks.NewMockEventStore(s.ctrl)
	s.profile = mocks.NewMockProfileStore(s.ctrl)
	s.auditor = mocks.NewMockAuditPublisher(s.ctrl)

	s.tz = timezone.New(
		timezone.WithLogger(testutil.DiscardLogger()),
		timezone.WithClock(func() time.Time { return s.now }),
	)
	var err error
	s.merger, err = sessions.NewMerger(s.tz, sessions.WithLogger(testutil.DiscardLogger()))
	s.Require().NoError(err)
}

// newService builds the engine against the suite mocks. Extra breaker
// options tighten thresholds for the circuit tests.
func (s *ServiceSuite) newService(mode flags.TransitionMode, routing flags.RoutingConfig, breakerOpts ...circuit.Option) *Service {
	baseOpts := append([]circuit.Option{
		circuit.WithLogger(testutil.DiscardLogger()),
		circuit.WithClock(func() time.Time { return s.now }),
	}, breakerOpts...)
	legacyBreaker := circuit.New(SourceLegacy, baseOpts...)
	utcBreaker := circuit.New(SourceUTC, baseOpts...)

	s.router = flags.NewRouter(FeatureName,
		flags.WithLogger(testutil.DiscardLogger()),
		flags.WithGlobalMode(mode),
		flags.WithRoutingConfig(routing),
		flags.WithResettables(legacyBreaker, utcBreaker),
	)

	svc, err := New(s.tz, s.merger, s.router, s.legacy, s.events, s.profile,
		WithLogger(testutil.DiscardLogger()),
		WithAudit(s.auditor),
		WithBreakers(legacyBreaker, utcBreaker),
	)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) query() Query {
	return Query{
		UserID:    s.userID,
		StartDate: "2025-08-06",
		EndDate:   "2025-08-06",
		Timezone:  "Asia/Saigon",
	}
}

func (s *ServiceSuite) legacyRow(subject string, visits int, totalMS int64) sessions.LegacyDayRecord {
	return sessions.LegacyDayRecord{
		Date:        "2025-08-06",
		SubjectID:   subject,
		Visits:      visits,
		TotalTimeMS: totalMS,
	}
}

func (s *ServiceSuite) utcRow(eventID, subject, start string, durMS int64) sessions.UTCEvent {
	return sessions.UTCEvent{
		ID:           eventID,
		SubjectID:    subject,
		StartTimeUTC: start,
		DurationMS:   durMS,
	}
}

func (s *ServiceSuite) TestDisabledModeQueriesLegacyOnly() {
	svc := s.newService(flags.ModeDisabled, flags.RoutingConfig{FallbackToLegacy: true})

	s.legacy.EXPECT().
		DayAggregates(gomock.Any(), s.userID, "2025-08-06").
		Return([]sessions.LegacyDayRecord{s.legacyRow("github.com", 2, 600_000)}, nil)
	// UTC store must not be touched in disabled mode.

	res, err := svc.SessionsForDateRange(s.ctx, s.query())
	s.Require().NoError(err)
	s.Equal(flags.ModeDisabled, res.Mode)
	s.Len(res.Events, 2)
	s.Equal(string(legOK), res.LegacyLeg)
	s.Equal(string(legSkipped), res.UTCLeg)
	for _, ev := range res.Events {
		s.Equal(sessions.SourceLegacy, ev.Source)
	}
}

func (s *ServiceSuite) TestUTCOnlyModeQueriesUTCOnly() {
	svc := s.newService(flags.ModeUTCOnly, flags.RoutingConfig{})

	s.events.EXPECT().
		EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
		Return([]sessions.UTCEvent{s.utcRow("evt-1", "github.com", "2025-08-06T03:00:00.000Z", 60_000)}, nil)

	res, err := svc.SessionsForDateRange(s.ctx, s.query())
	s.Require().NoError(err)
	s.Len(res.Events, 1)
	s.Equal(sessions.SourceUTC, res.Events[0].Source)
	s.Equal(string(legSkipped), res.LegacyLeg)
}

func (s *ServiceSuite) TestDualPreferUTCServesFromUTCWithoutTouchingLegacy() {
	svc := s.newService(flags.ModeDual, flags.RoutingConfig{PreferUTC: true, FallbackToLegacy: true})

	s.events.EXPECT().
		EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
		Return([]sessions.UTCEvent{s.utcRow("evt-1", "github.com", "2025-08-06T03:00:00.000Z", 60_000)}, nil)

	res, err := svc.SessionsForDateRange(s.ctx, s.query())
	s.Require().NoError(err)
	s.Len(res.Events, 1)
	s.False(res.Degraded)
	s.Equal(string(legSkipped), res.LegacyLeg, "legacy leg never runs when utc answers")
}

func (s *ServiceSuite) TestDualPreferUTCFallsBackOnEmpty() {
	svc := s.newService(flags.ModeDual, flags.RoutingConfig{PreferUTC: true, FallbackToLegacy: true})

	s.events.EXPECT().
		EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
		Return(nil, sentinel.ErrNoData)
	s.legacy.EXPECT().
		DayAggregates(gomock.Any(), s.userID, "2025-08-06").
		Return([]sessions.LegacyDayRecord{s.legacyRow("github.com", 1, 300_000)}, nil)

	res, err := svc.SessionsForDateRange(s.ctx, s.query())
	s.Require().NoError(err)
	s.Len(res.Events, 1)
	s.Equal(sessions.SourceLegacy, res.Events[0].Source)
	s.False(res.Degraded, "empty is a data fact, not degradation")
}

func (s *ServiceSuite) TestDualPreferUTCFallsBackOnError() {
	svc := s.newService(flags.ModeDual, flags.RoutingConfig{PreferUTC: true, FallbackToLegacy: true})

	s.events.EXPECT().
		EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
		Return(nil, errors.New("utc store down"))
	s.legacy.EXPECT().
		DayAggregates(gomock.Any(), s.userID, "2025-08-06").
		Return([]sessions.LegacyDayRecord{s.legacyRow("github.com", 1, 300_000)}, nil)

	res, err := svc.SessionsForDateRange(s.ctx, s.query())
	s.Require().NoError(err)
	s.Len(res.Events, 1)
	s.True(res.Degraded)
	s.Equal(string(legFailed), res.UTCLeg)
	s.Equal(string(legOK), res.LegacyLeg)
}

func (s *ServiceSuite) TestDualPreferUTCWithoutFallbackSurfacesError() {
	svc := s.newService(flags.ModeDual, flags.RoutingConfig{PreferUTC: true, FallbackToLegacy: false})

	s.events.EXPECT().
		EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
		Return(nil, errors.New("utc store down"))

	_, err := svc.SessionsForDateRange(s.ctx, s.query())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ServiceSuite) TestDualLegacyFirstQueriesBothAndMerges() {
	svc := s.newService(flags.ModeDual, flags.RoutingConfig{PreferUTC: false, FallbackToLegacy: true})

	s.legacy.EXPECT().
		DayAggregates(gomock.Any(), s.userID, "2025-08-06").
		Return([]sessions.LegacyDayRecord{s.legacyRow("github.com", 1, 1_800_000)}, nil)
	s.events.EXPECT().
		EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
		Return([]sessions.UTCEvent{s.utcRow("evt-1", "docs.rs", "2025-08-06T03:00:00.000Z", 60_000)}, nil)

	res, err := svc.SessionsForDateRange(s.ctx, s.query())
	s.Require().NoError(err)
	s.Len(res.Events, 2)
	s.Equal(string(legOK), res.LegacyLeg)
	s.Equal(string(legOK), res.UTCLeg)
}

func (s *ServiceSuite) TestDualModeDeduplicatesAcrossSources() {
	svc := s.newService(flags.ModeDual, flags.RoutingConfig{PreferUTC: false, FallbackToLegacy: true})

	// One visit of 30 minutes fans out anchored at local noon (05:00Z in
	// Saigon), so the synthetic event runs 04:30-05:00Z. The UTC store
	// holds the real event at 04:31Z: same subject, same 5-minute
	// bucket, so the UTC copy must win.
	s.legacy.EXPECT().
		DayAggregates(gomock.Any(), s.userID, "2025-08-06").
		Return([]sessions.LegacyDayRecord{s.legacyRow("github.com", 1, 1_800_000)}, nil)
	s.events.EXPECT().
		EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
		Return([]sessions.UTCEvent{s.utcRow("evt-1", "github.com", "2025-08-06T04:31:00.000Z", 1_740_000)}, nil)

	res, err := svc.SessionsForDateRange(s.ctx, s.query())
	s.Require().NoError(err)
	s.Require().Len(res.Events, 1)
	s.Equal(sessions.SourceUTC, res.Events[0].Source)
	s.Equal("evt-1", res.Events[0].ID)
	s.Equal(1, res.Stats.Deduplicated)
}

func (s *ServiceSuite) TestDualModeLegIsolation() {
	s.Run("legacy failure does not abort the utc leg", func() {
		svc := s.newService(flags.ModeDual, flags.RoutingConfig{PreferUTC: false, FallbackToLegacy: true})

		s.legacy.EXPECT().
			DayAggregates(gomock.Any(), s.userID, "2025-08-06").
			Return(nil, errors.New("legacy store down"))
		s.events.EXPECT().
			EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
			Return([]sessions.UTCEvent{s.utcRow("evt-1", "github.com", "2025-08-06T03:00:00.000Z", 60_000)}, nil)

		res, err := svc.SessionsForDateRange(s.ctx, s.query())
		s.Require().NoError(err)
		s.Len(res.Events, 1)
		s.True(res.Degraded)
		s.Equal(string(legFailed), res.LegacyLeg)
	})

	s.Run("utc failure does not abort the legacy leg", func() {
		svc := s.newService(flags.ModeDual, flags.RoutingConfig{PreferUTC: false, FallbackToLegacy: true})

		s.legacy.EXPECT().
			DayAggregates(gomock.Any(), s.userID, "2025-08-06").
			Return([]sessions.LegacyDayRecord{s.legacyRow("github.com", 1, 60_000)}, nil)
		s.events.EXPECT().
			EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
			Return(nil, errors.New("utc store down"))

		res, err := svc.SessionsForDateRange(s.ctx, s.query())
		s.Require().NoError(err)
		s.Len(res.Events, 1)
		s.True(res.Degraded)
		s.Equal(string(legFailed), res.UTCLeg)
	})

	s.Run("both legs failing is an error", func() {
		svc := s.newService(flags.ModeDual, flags.RoutingConfig{PreferUTC: false, FallbackToLegacy: true})

		s.legacy.EXPECT().
			DayAggregates(gomock.Any(), s.userID, "2025-08-06").
			Return(nil, errors.New("legacy store down"))
		s.events.EXPECT().
			EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
			Return(nil, errors.New("utc store down"))

		_, err := svc.SessionsForDateRange(s.ctx, s.query())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func (s *ServiceSuite) TestCircuitOpensAndEmergencyResetRestoresBaseline() {
	svc := s.newService(flags.ModeDisabled, flags.RoutingConfig{},
		circuit.WithFailureThreshold(1),
		circuit.WithResetTimeout(time.Hour),
	)
	legacyBreaker := svc.Breakers()[0]
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	// First failure opens the breaker.
	s.legacy.EXPECT().
		DayAggregates(gomock.Any(), s.userID, "2025-08-06").
		Return(nil, errors.New("legacy store down"))
	_, err := svc.SessionsForDateRange(s.ctx, s.query())
	s.Require().Error(err)
	s.Equal(circuit.StateOpen, legacyBreaker.State())

	// While open, the store is never called; the circuit rejects.
	_, err = svc.SessionsForDateRange(s.ctx, s.query())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	// Emergency reset is a full return to baseline: flag cleared and
	// breaker history gone, so the next call reaches the store again.
	svc.ResetEmergencyState(s.ctx)
	s.Equal(circuit.StateClosed, legacyBreaker.State())

	s.legacy.EXPECT().
		DayAggregates(gomock.Any(), s.userID, "2025-08-06").
		Return([]sessions.LegacyDayRecord{s.legacyRow("github.com", 1, 60_000)}, nil)
	res, err := svc.SessionsForDateRange(s.ctx, s.query())
	s.Require().NoError(err)
	s.Len(res.Events, 1)
}

func (s *ServiceSuite) TestEmergencyDisableForcesLegacyForOverriddenUser() {
	svc := s.newService(flags.ModeUTCOnly, flags.RoutingConfig{})
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.router.SetOverride(s.userID, flags.ModeUTCOnly)

	svc.EmergencyDisable(s.ctx, "bad migration batch")

	s.legacy.EXPECT().
		DayAggregates(gomock.Any(), s.userID, "2025-08-06").
		Return([]sessions.LegacyDayRecord{s.legacyRow("github.com", 1, 60_000)}, nil)

	res, err := svc.SessionsForDateRange(s.ctx, s.query())
	s.Require().NoError(err)
	s.Equal(flags.ModeDisabled, res.Mode)
	s.Equal(string(legSkipped), res.UTCLeg)
}

func (s *ServiceSuite) TestTimezoneResolution() {
	s.Run("invalid declared zone falls back to saved preference", func() {
		svc := s.newService(flags.ModeUTCOnly, flags.RoutingConfig{})
		s.profile.EXPECT().Timezone(gomock.Any(), s.userID).Return("Asia/Kolkata", nil)
		s.events.EXPECT().
			EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
			Return(nil, nil)

		q := s.query()
		q.Timezone = "Mars/Olympus"
		res, err := svc.SessionsForDateRange(s.ctx, q)
		s.Require().NoError(err)
		s.Equal("Asia/Kolkata", res.Range.UserTimezone)
	})

	s.Run("no saved preference falls back to detected zone", func() {
		svc := s.newService(flags.ModeUTCOnly, flags.RoutingConfig{})
		s.profile.EXPECT().Timezone(gomock.Any(), s.userID).Return("", sentinel.ErrNotFound)
		s.events.EXPECT().
			EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
			Return(nil, nil)

		q := s.query()
		q.Timezone = ""
		res, err := svc.SessionsForDateRange(s.ctx, q)
		s.Require().NoError(err)
		s.Equal(s.tz.CurrentTimezone(), res.Range.UserTimezone)
	})
}

func (s *ServiceSuite) TestRangeSpansMultipleDays() {
	svc := s.newService(flags.ModeDisabled, flags.RoutingConfig{})

	for _, date := range []string{"2025-08-05", "2025-08-06", "2025-08-07"} {
		s.legacy.EXPECT().
			DayAggregates(gomock.Any(), s.userID, date).
			Return([]sessions.LegacyDayRecord{{
				Date: date, SubjectID: "github.com", Visits: 1, TotalTimeMS: 60_000,
			}}, nil)
	}

	q := s.query()
	q.StartDate = "2025-08-05"
	q.EndDate = "2025-08-07"
	res, err := svc.SessionsForDateRange(s.ctx, q)
	s.Require().NoError(err)
	s.Len(res.Events, 3)
}

func (s *ServiceSuite) TestSubjectFilter() {
	svc := s.newService(flags.ModeUTCOnly, flags.RoutingConfig{})

	s.events.EXPECT().
		EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
		Return([]sessions.UTCEvent{
			s.utcRow("evt-1", "github.com", "2025-08-06T03:00:00.000Z", 60_000),
			s.utcRow("evt-2", "docs.rs", "2025-08-06T04:00:00.000Z", 60_000),
		}, nil)

	q := s.query()
	q.Subjects = []string{"docs.rs"}
	res, err := svc.SessionsForDateRange(s.ctx, q)
	s.Require().NoError(err)
	s.Require().Len(res.Events, 1)
	s.Equal("docs.rs", res.Events[0].SubjectID)
}

func (s *ServiceSuite) TestSubjectFilterIgnoresCase() {
	svc := s.newService(flags.ModeUTCOnly, flags.RoutingConfig{})

	s.events.EXPECT().
		EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
		Return([]sessions.UTCEvent{
			s.utcRow("evt-1", "GitHub.com", "2025-08-06T03:00:00.000Z", 60_000),
			s.utcRow("evt-2", "docs.rs", "2025-08-06T04:00:00.000Z", 60_000),
		}, nil)

	q := s.query()
	q.Subjects = []string{"github.com"}
	res, err := svc.SessionsForDateRange(s.ctx, q)
	s.Require().NoError(err)
	s.Require().Len(res.Events, 1)
	s.Equal("evt-1", res.Events[0].ID)
}

func (s *ServiceSuite) TestDescendingOrder() {
	svc := s.newService(flags.ModeUTCOnly, flags.RoutingConfig{})

	s.events.EXPECT().
		EventsInRange(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
		Return([]sessions.UTCEvent{
			s.utcRow("old", "github.com", "2025-08-06T03:00:00.000Z", 60_000),
			s.utcRow("new", "github.com", "2025-08-06T08:00:00.000Z", 60_000),
		}, nil)

	q := s.query()
	q.Order = SortDescending
	res, err := svc.SessionsForDateRange(s.ctx, q)
	s.Require().NoError(err)
	s.Require().Len(res.Events, 2)
	s.Equal("new", res.Events[0].ID)
}

func (s *ServiceSuite) TestTodaySessionsUsesUserLocalDate() {
	svc := s.newService(flags.ModeDisabled, flags.RoutingConfig{})

	// 2025-08-06 12:00Z is 19:00 in Saigon, still 2025-08-06 locally.
	s.legacy.EXPECT().
		DayAggregates(gomock.Any(), s.userID, "2025-08-06").
		Return(nil, sentinel.ErrNoData)

	res, err := svc.TodaySessions(s.ctx, s.userID, "Asia/Saigon", SortAscending)
	s.Require().NoError(err)
	s.Empty(res.Events)
	s.Equal("2025-08-06", res.Range.OriginalStart)
}

func (s *ServiceSuite) TestQueryValidation() {
	svc := s.newService(flags.ModeDisabled, flags.RoutingConfig{})

	cases := []struct {
		name string
		q    Query
	}{
		{"zero user id", Query{StartDate: "2025-08-06", EndDate: "2025-08-06"}},
		{"bad start date", Query{UserID: s.userID, StartDate: "06/08/2025", EndDate: "2025-08-06"}},
		{"bad end date", Query{UserID: s.userID, StartDate: "2025-08-06", EndDate: "tomorrow"}},
		{"inverted range", Query{UserID: s.userID, StartDate: "2025-08-07", EndDate: "2025-08-06"}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := svc.SessionsForDateRange(s.ctx, tc.q)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func (s *ServiceSuite) TestUpdateConfigAuditsChange() {
	svc := s.newService(flags.ModeDual, flags.RoutingConfig{})

	var emitted bool
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ev audit.Event) error {
			emitted = true
			s.Equal(audit.ActionConfigUpdated, ev.Action)
			s.Equal("true", ev.DetailString("prefer_utc"))
			return nil
		})

	preferUTC := true
	cfg := svc.UpdateConfig(s.ctx, flags.ConfigUpdate{PreferUTC: &preferUTC})
	s.True(cfg.PreferUTC)
	s.True(emitted)
}

func (s *ServiceSuite) TestHealthSnapshot() {
	svc := s.newService(flags.ModeDual, flags.RoutingConfig{PreferUTC: true, FallbackToLegacy: true})

	h := svc.Health()
	s.Equal(FeatureName, h.Flags.FeatureName)
	s.Len(h.Breakers, 2)
	s.Equal(SourceLegacy, h.Breakers[0].Name)
	s.Equal(SourceUTC, h.Breakers[1].Name)

	statuses := svc.BreakerStatuses()
	s.Len(statuses, 2)
	s.Equal("closed", statuses[0].State)
}

func (s *ServiceSuite) TestConstructorRequiresDependencies() {
	router := flags.NewRouter(FeatureName)
	_, err := New(nil, s.merger, router, s.legacy, s.events, s.profile)
	s.Error(err)
	_, err = New(s.tz, nil, router, s.legacy, s.events, s.profile)
	s.Error(err)
	_, err = New(s.tz, s.merger, nil, s.legacy, s.events, s.profile)
	s.Error(err)
	_, err = New(s.tz, s.merger, router, nil, s.events, s.profile)
	s.Error(err)
}

package sessions

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"meridian/internal/timezone"
	id "meridian/pkg/domain"
)

type MergerSuite struct {
	suite.Suite
	ctx    context.Context
	now    time.Time
	tz     *timezone.Service
	merger *Merger
	userID id.UserID
}

func TestMergerSuite(t *testing.T) {
	suite.Run(t, new(MergerSuite))
}

func (s *MergerSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 8, 6, 12, 0, 0, 0, time.UTC)
	s.tz = timezone.New(
		timezone.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		timezone.WithClock(func() time.Time { return s.now }),
	)
	s.userID = id.NewUserID()

	var err error
	s.merger, err = NewMerger(s.tz, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
}

func (s *MergerSuite) utcEvent(eventID, subject, start string, durationMS int64) UnifiedEvent {
	return UnifiedEvent{
		ID:           eventID,
		UserID:       s.userID,
		SubjectID:    subject,
		StartTimeUTC: start,
		DurationMS:   durationMS,
		Source:       SourceUTC,
	}
}

func (s *MergerSuite) legacyEvent(eventID, subject, start string, durationMS int64) UnifiedEvent {
	ev := s.utcEvent(eventID, subject, start, durationMS)
	ev.Source = SourceLegacy
	return ev
}

func (s *MergerSuite) TestFanOut_SaigonDay() {
	bounds := s.tz.DayBoundaries(s.ctx, "2025-08-06", "Asia/Saigon")
	s.Require().Equal("2025-08-05T17:00:00.000Z", bounds.UTCStart)
	s.Require().Equal("2025-08-06T16:59:59.999Z", bounds.UTCEnd)

	rec := LegacyDayRecord{
		Date:        "2025-08-06",
		SubjectID:   "github.com",
		Visits:      3,
		TotalTimeMS: 5_400_000,
	}

	events := s.merger.FanOut(s.ctx, rec, bounds, s.userID)
	s.Require().Len(events, 3)

	var total int64
	for i, ev := range events {
		s.Equal(SyntheticID("2025-08-06", "github.com", i), ev.ID)
		s.Equal(SourceLegacy, ev.Source)
		s.Equal(s.userID, ev.UserID)
		s.Equal("github.com", ev.SubjectID)
		total += ev.DurationMS

		start, err := ev.Start()
		s.Require().NoError(err)
		end, err := timezone.ParseUTCMillis(ev.EndTimeUTC)
		s.Require().NoError(err)
		s.Equal(ev.DurationMS, end.Sub(start).Milliseconds())
	}
	s.Equal(int64(5_400_000), total, "durations preserve the aggregate total")
	s.Equal("migrated_2025-08-06_github.com_0", events[0].ID)
	s.Equal("migrated_2025-08-06_github.com_2", events[2].ID)

	// Deterministic: re-running the fan-out reproduces the same events.
	again := s.merger.FanOut(s.ctx, rec, bounds, s.userID)
	s.Equal(events, again)
}

func (s *MergerSuite) TestFanOut_ZeroVisitsStillProducesOneEvent() {
	bounds := s.tz.DayBoundaries(s.ctx, "2025-08-06", "UTC")
	rec := LegacyDayRecord{Date: "2025-08-06", SubjectID: "docs.rs", Visits: 0, TotalTimeMS: 90_000}

	events := s.merger.FanOut(s.ctx, rec, bounds, s.userID)
	s.Require().Len(events, 1)
	s.Equal(int64(90_000), events[0].DurationMS)
}

func (s *MergerSuite) TestFanOut_AnchorsOnLastVisit() {
	bounds := s.tz.DayBoundaries(s.ctx, "2025-08-06", "UTC")
	lastVisit := time.Date(2025, 8, 6, 15, 0, 0, 0, time.UTC)
	rec := LegacyDayRecord{
		Date:        "2025-08-06",
		SubjectID:   "github.com",
		Visits:      2,
		TotalTimeMS: 600_000,
		LastVisit:   &lastVisit,
	}

	events := s.merger.FanOut(s.ctx, rec, bounds, s.userID)
	s.Require().Len(events, 2)
	s.Equal("2025-08-06T15:00:00.000Z", events[1].EndTimeUTC, "last event ends at the recorded last visit")
}

func (s *MergerSuite) TestFanOut_IndivisibleTotalPreservesSum() {
	bounds := s.tz.DayBoundaries(s.ctx, "2025-08-06", "UTC")
	rec := LegacyDayRecord{Date: "2025-08-06", SubjectID: "github.com", Visits: 3, TotalTimeMS: 100}

	events := s.merger.FanOut(s.ctx, rec, bounds, s.userID)
	s.Require().Len(events, 3)

	var total int64
	for _, ev := range events {
		total += ev.DurationMS
	}
	s.Equal(int64(100), total)
}

func (s *MergerSuite) TestFanOut_MalformedRecordDropped() {
	bounds := s.tz.DayBoundaries(s.ctx, "2025-08-06", "UTC")

	s.Nil(s.merger.FanOut(s.ctx, LegacyDayRecord{Date: "not-a-date", SubjectID: "x"}, bounds, s.userID))
	s.Nil(s.merger.FanOut(s.ctx, LegacyDayRecord{Date: "2025-08-06"}, bounds, s.userID))
}

func (s *MergerSuite) TestMerge_UTCWinsDuplicates() {
	utc := []UnifiedEvent{
		s.utcEvent("evt-1", "github.com", "2025-08-06T09:00:00.000Z", 300_000),
	}
	legacy := []UnifiedEvent{
		// Same subject starting 2 minutes later: same 5-minute bucket.
		s.legacyEvent("migrated_2025-08-06_github.com_0", "github.com", "2025-08-06T09:02:00.000Z", 300_000),
	}

	merged, stats := s.merger.Merge(s.ctx, utc, legacy)
	s.Require().Len(merged, 1)
	s.Equal(SourceUTC, merged[0].Source)
	s.Equal("evt-1", merged[0].ID)
	s.Equal(1, stats.Deduplicated)
}

func (s *MergerSuite) TestMerge_DistinctEventsSurvive() {
	utc := []UnifiedEvent{
		s.utcEvent("evt-1", "github.com", "2025-08-06T09:00:00.000Z", 60_000),
	}
	legacy := []UnifiedEvent{
		s.legacyEvent("m-0", "github.com", "2025-08-06T11:00:00.000Z", 60_000),
		s.legacyEvent("m-1", "docs.rs", "2025-08-06T09:00:00.000Z", 60_000),
	}

	merged, stats := s.merger.Merge(s.ctx, utc, legacy)
	s.Len(merged, 3)
	s.Equal(0, stats.Deduplicated)
}

func (s *MergerSuite) TestMerge_SortedAscendingWithStableTieBreak() {
	utc := []UnifiedEvent{
		s.utcEvent("b", "github.com", "2025-08-06T10:00:00.000Z", 1000),
		s.utcEvent("a", "docs.rs", "2025-08-06T10:00:00.000Z", 1000),
		s.utcEvent("c", "news.ycombinator.com", "2025-08-06T08:00:00.000Z", 1000),
	}

	merged, _ := s.merger.Merge(s.ctx, utc, nil)
	s.Require().Len(merged, 3)
	s.Equal("c", merged[0].ID)
	s.Equal("a", merged[1].ID)
	s.Equal("b", merged[2].ID)
}

func (s *MergerSuite) TestMerge_MalformedEventsDroppedAndCounted() {
	utc := []UnifiedEvent{
		s.utcEvent("good", "github.com", "2025-08-06T09:00:00.000Z", 1000),
		s.utcEvent("bad-start", "github.com", "whenever", 1000),
		s.utcEvent("", "github.com", "2025-08-06T10:00:00.000Z", 1000),
	}

	merged, stats := s.merger.Merge(s.ctx, utc, nil)
	s.Require().Len(merged, 1)
	s.Equal("good", merged[0].ID)
	s.Equal(2, stats.Dropped)
}

func (s *MergerSuite) TestMerge_OneLegEmpty() {
	legacy := []UnifiedEvent{
		s.legacyEvent("m-0", "github.com", "2025-08-06T09:00:00.000Z", 1000),
	}

	merged, stats := s.merger.Merge(s.ctx, nil, legacy)
	s.Len(merged, 1)
	s.Equal(0, stats.UTCEvents)
	s.Equal(1, stats.LegacyEvents)

	merged, _ = s.merger.Merge(s.ctx, nil, nil)
	s.Empty(merged)
}

func (s *MergerSuite) TestNormalizeUTC_DerivesDuration() {
	ev := s.merger.NormalizeUTC(s.ctx, UTCEvent{
		ID:           "evt-1",
		SubjectID:    "github.com",
		StartTimeUTC: "2025-08-06T09:00:00.000Z",
		EndTimeUTC:   "2025-08-06T09:05:00.000Z",
	}, s.userID)

	s.Equal(int64(300_000), ev.DurationMS)
	s.Equal(SourceUTC, ev.Source)
	s.Equal(s.userID, ev.UserID)
}

func (s *MergerSuite) TestGroupByLocalDate() {
	events := []UnifiedEvent{
		// 2025-08-05 17:30 UTC is already 2025-08-06 in Saigon.
		s.utcEvent("evt-1", "github.com", "2025-08-05T17:30:00.000Z", 1000),
		s.utcEvent("evt-2", "github.com", "2025-08-05T12:00:00.000Z", 1000),
	}

	grouped := s.merger.GroupByLocalDate(s.ctx, events, "Asia/Saigon")
	s.Len(grouped["2025-08-06"], 1)
	s.Len(grouped["2025-08-05"], 1)
}

func (s *MergerSuite) TestGroupByLocalDate_MalformedFallsBackToRawDate() {
	events := []UnifiedEvent{
		s.utcEvent("good", "github.com", "2025-08-06T09:00:00.000Z", 1000),
		s.utcEvent("bad", "github.com", "2025-08-07Tnot-a-time", 1000),
	}

	grouped := s.merger.GroupByLocalDate(s.ctx, events, "UTC")
	s.Len(grouped["2025-08-06"], 1)
	s.Len(grouped["2025-08-07"], 1, "malformed event buckets under its raw date prefix")
}

func (s *MergerSuite) TestSortByStartDesc() {
	events := []UnifiedEvent{
		s.utcEvent("old", "github.com", "2025-08-06T08:00:00.000Z", 1000),
		s.utcEvent("new", "github.com", "2025-08-06T10:00:00.000Z", 1000),
	}

	SortByStartDesc(events)
	s.Equal("new", events[0].ID)
	s.Equal("old", events[1].ID)

	SortByStart(events)
	s.Equal("old", events[0].ID)
}

func (s *MergerSuite) TestNewMergerRequiresTimezoneService() {
	_, err := NewMerger(nil)
	s.Error(err)
}

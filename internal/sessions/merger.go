package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	id "meridian/pkg/domain"

	"meridian/internal/timezone"
)

// dedupBucket is the coarseness used to spot the same visit surfacing
// from both stores during dual-write. Events from different sources for
// the same user and subject starting within the same bucket are
// considered duplicates.
const dedupBucket = 5 * time.Minute

// fanOutGap is the idle gap placed between synthetic events when the
// day leaves room for it.
const fanOutGap = 30 * time.Minute

// Merger reconciles events from both stores into a single timeline.
// Merging never fails: malformed events are dropped and counted.
type Merger struct {
	tz     *timezone.Service
	logger *slog.Logger
}

// Option configures a Merger.
type Option func(*Merger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Merger) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMerger constructs a Merger.
func NewMerger(tz *timezone.Service, opts ...Option) (*Merger, error) {
	if tz == nil {
		return nil, fmt.Errorf("timezone service is required")
	}
	m := &Merger{
		tz:     tz,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// MergeStats reports what happened during a merge.
type MergeStats struct {
	UTCEvents    int `json:"utc_events"`
	LegacyEvents int `json:"legacy_events"`
	Deduplicated int `json:"deduplicated"`
	Dropped      int `json:"dropped"`
}

// Merge combines both result sets into one chronological timeline.
// When the same visit appears in both stores, the UTC copy wins.
// Duplicates within a single source are kept; two real visits to the
// same subject minutes apart are not duplicates.
func (m *Merger) Merge(ctx context.Context, utcEvents, legacyEvents []UnifiedEvent) ([]UnifiedEvent, MergeStats) {
	stats := MergeStats{UTCEvents: len(utcEvents), LegacyEvents: len(legacyEvents)}

	type parsed struct {
		ev    UnifiedEvent
		start time.Time
	}
	out := make([]parsed, 0, len(utcEvents)+len(legacyEvents))
	claimed := make(map[string]DataSource, len(utcEvents)+len(legacyEvents))

	admit := func(ev UnifiedEvent) {
		if err := ev.Validate(); err != nil {
			stats.Dropped++
			m.logger.WarnContext(ctx, "dropping malformed event from merge",
				"event_id", ev.ID,
				"source", ev.Source,
				"error", err,
			)
			return
		}

		start, _ := ev.Start()
		canonicalize(&ev, start)

		key := dedupKey(ev, start)
		if src, dup := claimed[key]; dup && src != ev.Source {
			stats.Deduplicated++
			return
		}
		if _, dup := claimed[key]; !dup {
			claimed[key] = ev.Source
		}
		out = append(out, parsed{ev: ev, start: start})
	}

	// UTC events are admitted first so they claim duplicate slots.
	for _, ev := range utcEvents {
		admit(ev)
	}
	for _, ev := range legacyEvents {
		admit(ev)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].start.Equal(out[j].start) {
			return out[i].start.Before(out[j].start)
		}
		return out[i].ev.ID < out[j].ev.ID
	})

	merged := make([]UnifiedEvent, len(out))
	for i, p := range out {
		merged[i] = p.ev
	}
	return merged, stats
}

// canonicalize rewrites event times into the canonical storage layout
// and derives a missing end time from start plus duration.
func canonicalize(ev *UnifiedEvent, start time.Time) {
	ev.StartTimeUTC = timezone.FormatUTCMillis(start)
	if ev.EndTimeUTC == "" {
		ev.EndTimeUTC = timezone.FormatUTCMillis(start.Add(time.Duration(ev.DurationMS) * time.Millisecond))
		return
	}
	if end, err := timezone.ParseUTCMillis(ev.EndTimeUTC); err == nil {
		ev.EndTimeUTC = timezone.FormatUTCMillis(end)
	}
}

func dedupKey(ev UnifiedEvent, start time.Time) string {
	bucket := start.UnixMilli() / dedupBucket.Milliseconds()
	return ev.UserID.String() + "|" + ev.SubjectID + "|" + strconv.FormatInt(bucket, 10)
}

// FanOut expands a legacy day row into max(1, visits) synthetic events
// placed inside the day's UTC bounds.
//
// Placement anchors on the row's last visit when it falls inside the
// day, otherwise on local noon, and walks backward with an idle gap
// between events. The gap shrinks when the day is too full for it.
// Event IDs are deterministic so re-queries produce identical output,
// and durations always sum to the row's total.
func (m *Merger) FanOut(ctx context.Context, rec LegacyDayRecord, bounds timezone.UTCTimeRange, userID id.UserID) []UnifiedEvent {
	if err := rec.Validate(); err != nil {
		m.logger.WarnContext(ctx, "dropping malformed legacy day row",
			"date", rec.Date,
			"subject_id", rec.SubjectID,
			"error", err,
		)
		return nil
	}

	dayStart, err := timezone.ParseUTCMillis(bounds.UTCStart)
	if err != nil {
		m.logger.WarnContext(ctx, "unusable day bounds for fan-out", "utc_start", bounds.UTCStart, "error", err)
		return nil
	}
	dayEnd, err := timezone.ParseUTCMillis(bounds.UTCEnd)
	if err != nil || !dayEnd.After(dayStart) {
		m.logger.WarnContext(ctx, "unusable day bounds for fan-out", "utc_end", bounds.UTCEnd, "error", err)
		return nil
	}

	n := rec.Visits
	if n < 1 {
		n = 1
	}
	per := rec.TotalTimeMS / int64(n)
	rem := rec.TotalTimeMS % int64(n)
	totalDur := time.Duration(rec.TotalTimeMS) * time.Millisecond

	// Anchor the last event's end on the recorded last visit when it
	// falls inside the day, otherwise on local noon.
	endRef := dayStart.Add(12 * time.Hour)
	if rec.LastVisit != nil {
		lv := rec.LastVisit.UTC()
		if !lv.Before(dayStart) && !lv.After(dayEnd) {
			endRef = lv
		}
	}

	gap := fanOutGap
	if n > 1 {
		if avail := endRef.Sub(dayStart) - totalDur; avail < time.Duration(n-1)*gap {
			if avail < 0 {
				avail = 0
			}
			gap = avail / time.Duration(n-1)
		}
	}
	if span := totalDur + time.Duration(n-1)*gap; endRef.Sub(dayStart) < span {
		// Durations alone overflow the anchor; push the anchor later.
		// A row claiming more time than the day holds still keeps its
		// durations intact, spilling past the start boundary.
		endRef = dayStart.Add(span)
		if endRef.After(dayEnd) {
			endRef = dayEnd
		}
	}

	raw, _ := json.Marshal(rec)

	events := make([]UnifiedEvent, n)
	cursor := endRef
	for i := n - 1; i >= 0; i-- {
		durMS := per
		if i == n-1 {
			durMS += rem
		}
		end := cursor
		start := end.Add(-time.Duration(durMS) * time.Millisecond)

		events[i] = UnifiedEvent{
			ID:           SyntheticID(rec.Date, rec.SubjectID, i),
			UserID:       userID,
			SubjectID:    rec.SubjectID,
			StartTimeUTC: timezone.FormatUTCMillis(start),
			EndTimeUTC:   timezone.FormatUTCMillis(end),
			DurationMS:   durMS,
			Source:       SourceLegacy,
			Raw:          raw,
		}
		cursor = start.Add(-gap)
	}

	return events
}

// NormalizeUTC converts a UTC store row into the unified shape. Rows
// with unusable times pass through and are dropped during merge.
func (m *Merger) NormalizeUTC(ctx context.Context, ev UTCEvent, userID id.UserID) UnifiedEvent {
	raw, _ := json.Marshal(ev)
	out := UnifiedEvent{
		ID:           ev.ID,
		UserID:       userID,
		SubjectID:    ev.SubjectID,
		StartTimeUTC: ev.StartTimeUTC,
		EndTimeUTC:   ev.EndTimeUTC,
		DurationMS:   ev.DurationMS,
		Source:       SourceUTC,
		Raw:          raw,
	}

	start, err := timezone.ParseUTCMillis(ev.StartTimeUTC)
	if err != nil {
		return out
	}

	if out.DurationMS == 0 && out.EndTimeUTC != "" {
		if end, err := timezone.ParseUTCMillis(ev.EndTimeUTC); err == nil && end.After(start) {
			out.DurationMS = end.Sub(start).Milliseconds()
		}
	}
	canonicalize(&out, start)
	return out
}

// GroupByLocalDate buckets events by the user-local calendar date their
// start falls on. One unusable event never aborts grouping of the rest:
// it is bucketed under the raw date portion of its start string instead.
func (m *Merger) GroupByLocalDate(ctx context.Context, events []UnifiedEvent, tz string) map[string][]UnifiedEvent {
	grouped := make(map[string][]UnifiedEvent)
	for _, ev := range events {
		start, err := ev.Start()
		if err != nil {
			m.logger.WarnContext(ctx, "grouping event with unusable start by raw date",
				"event_id", ev.ID,
				"start", ev.StartTimeUTC,
				"error", err,
			)
			grouped[rawDateKey(ev.StartTimeUTC)] = append(grouped[rawDateKey(ev.StartTimeUTC)], ev)
			continue
		}
		key := m.tz.LocalDateKey(ctx, start, tz)
		grouped[key] = append(grouped[key], ev)
	}
	return grouped
}

// rawDateKey extracts the YYYY-MM-DD prefix from a timestamp string
// that failed to parse. Shorter strings bucket as-is.
func rawDateKey(s string) string {
	if len(s) >= len(timezone.LocalDateLayout) {
		return s[:len(timezone.LocalDateLayout)]
	}
	return s
}

// SortByStart orders events chronologically in place, breaking ties by ID.
func SortByStart(events []UnifiedEvent) {
	sortByStart(events, false)
}

// SortByStartDesc orders events newest-first in place.
func SortByStartDesc(events []UnifiedEvent) {
	sortByStart(events, true)
}

func sortByStart(events []UnifiedEvent, desc bool) {
	sort.SliceStable(events, func(i, j int) bool {
		if desc {
			i, j = j, i
		}
		si, errI := timezone.ParseUTCMillis(events[i].StartTimeUTC)
		sj, errJ := timezone.ParseUTCMillis(events[j].StartTimeUTC)
		if errI != nil || errJ != nil {
			return events[i].StartTimeUTC < events[j].StartTimeUTC
		}
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		return events[i].ID < events[j].ID
	})
}

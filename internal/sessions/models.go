// Package sessions defines the unified session event model and the
// merge rules that reconcile legacy day-aggregated rows with per-event
// UTC rows during the store migration.
package sessions

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	id "meridian/pkg/domain"
	dErrors "meridian/pkg/domain-errors"

	"meridian/internal/timezone"
)

// DataSource identifies which store produced an event.
type DataSource string

const (
	// SourceLegacy marks events fanned out from day-aggregated rows.
	SourceLegacy DataSource = "legacy"
	// SourceUTC marks events read from the per-event UTC store.
	SourceUTC DataSource = "utc"
)

// IsValid reports whether the source is a known value.
func (d DataSource) IsValid() bool {
	return d == SourceLegacy || d == SourceUTC
}

// ParseDataSource parses a data source label.
func ParseDataSource(s string) (DataSource, error) {
	d := DataSource(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown data source %q", s)
	}
	return d, nil
}

// UnifiedEvent is the single shape both stores are reconciled into.
// Times are canonical UTC millisecond strings; consumers convert for
// display only.
type UnifiedEvent struct {
	ID           string          `json:"id"`
	UserID       id.UserID       `json:"user_id"`
	SubjectID    string          `json:"subject_id"`
	StartTimeUTC string          `json:"start_time_utc"`
	EndTimeUTC   string          `json:"end_time_utc"`
	DurationMS   int64           `json:"duration_ms"`
	Source       DataSource      `json:"data_source"`
	Raw          json.RawMessage `json:"raw_data,omitempty"`
}

// Validate checks the fields required for merging. Events failing
// validation are dropped from merge output, never propagated as errors.
func (e UnifiedEvent) Validate() error {
	if e.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "event id is required")
	}
	if e.SubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "subject id is required")
	}
	if !e.Source.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown data source %q", e.Source)
	}
	if e.DurationMS < 0 {
		return dErrors.New(dErrors.CodeValidation, "duration must not be negative")
	}
	if _, err := timezone.ParseUTCMillis(e.StartTimeUTC); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "start time is not a UTC timestamp")
	}
	if e.EndTimeUTC != "" {
		if _, err := timezone.ParseUTCMillis(e.EndTimeUTC); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "end time is not a UTC timestamp")
		}
	}
	return nil
}

// Start returns the parsed start instant. Validate first.
func (e UnifiedEvent) Start() (time.Time, error) {
	return timezone.ParseUTCMillis(e.StartTimeUTC)
}

// LegacyDayRecord is a day-aggregated row from the legacy store: one
// row per (local calendar date, subject) with visit count and total
// time, but no individual event timestamps.
type LegacyDayRecord struct {
	Date        string     `json:"date"`
	SubjectID   string     `json:"subject_id"`
	Visits      int        `json:"visits"`
	TotalTimeMS int64      `json:"total_time_ms"`
	LastVisit   *time.Time `json:"last_visit,omitempty"`
}

// Validate checks the fields fan-out depends on.
func (r LegacyDayRecord) Validate() error {
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "subject id is required")
	}
	if _, err := time.Parse(timezone.LocalDateLayout, r.Date); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "date is not a local calendar date")
	}
	if r.Visits < 0 {
		return dErrors.New(dErrors.CodeValidation, "visits must not be negative")
	}
	if r.TotalTimeMS < 0 {
		return dErrors.New(dErrors.CodeValidation, "total time must not be negative")
	}
	return nil
}

// UTCEvent is a per-event row from the UTC store.
type UTCEvent struct {
	ID           string `json:"id"`
	SubjectID    string `json:"subject_id"`
	StartTimeUTC string `json:"start_time_utc"`
	EndTimeUTC   string `json:"end_time_utc"`
	DurationMS   int64  `json:"duration_ms"`
	Timezone     string `json:"timezone,omitempty"`
}

// SyntheticID builds the deterministic ID for an event fanned out from
// a legacy day row. Index is the event's position within the day.
func SyntheticID(date string, subjectID string, index int) string {
	return fmt.Sprintf("migrated_%s_%s_%d", date, subjectID, index)
}

package timezone

import (
	"strings"
	"time"

	dErrors "meridian/pkg/domain-errors"
)

// Canonical wire layouts. All stored instants are UTC with millisecond
// precision; local calendar dates carry no zone.
const (
	// UTCMillisLayout formats instants as "2006-01-02T15:04:05.000Z".
	UTCMillisLayout = "2006-01-02T15:04:05.000Z"
	// LocalDateLayout formats user-local calendar dates.
	LocalDateLayout = "2006-01-02"
)

// FormatUTCMillis renders t as the canonical UTC storage string.
func FormatUTCMillis(t time.Time) string {
	return t.UTC().Format(UTCMillisLayout)
}

// ParseUTCMillis parses a canonical UTC storage string. Offsets other
// than Z are accepted and normalized to UTC.
func ParseUTCMillis(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "timestamp is not RFC 3339")
	}
	return t.UTC(), nil
}

// Provenance records how a timezone value reached the system.
type Provenance string

const (
	// ProvenanceBrowser means the zone came from the client runtime.
	ProvenanceBrowser Provenance = "browser"
	// ProvenanceManual means the user picked the zone in settings.
	ProvenanceManual Provenance = "manual"
	// ProvenanceExtension means the zone came from the capture extension.
	ProvenanceExtension Provenance = "extension"
	// ProvenanceMigrated means the zone was carried over from legacy rows.
	ProvenanceMigrated Provenance = "migrated"
	// ProvenanceFallback means the system coerced an unusable zone to UTC.
	ProvenanceFallback Provenance = "fallback"
)

// IsValid reports whether the provenance is a known value.
func (p Provenance) IsValid() bool {
	switch p {
	case ProvenanceBrowser, ProvenanceManual, ProvenanceExtension, ProvenanceMigrated, ProvenanceFallback:
		return true
	default:
		return false
	}
}

// ParseProvenance parses a provenance label.
func ParseProvenance(s string) (Provenance, error) {
	p := Provenance(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown timezone provenance %q", s)
	}
	return p, nil
}

// Context is a point-in-time description of a user's timezone, cached
// per hour bucket so DST flips are picked up without recomputing on
// every query.
type Context struct {
	Timezone         string     `json:"timezone"`
	UTCOffsetMinutes int        `json:"utc_offset_minutes"`
	IsDST            bool       `json:"is_dst"`
	RecordedAt       time.Time  `json:"recorded_at"`
	Provenance       Provenance `json:"provenance"`
}

// UTCTimeRange is a user-local date span resolved to UTC instants.
// OriginalStart and OriginalEnd echo the local calendar dates the range
// was derived from.
type UTCTimeRange struct {
	UTCStart      string `json:"utc_start"`
	UTCEnd        string `json:"utc_end"`
	UserTimezone  string `json:"user_timezone"`
	OriginalStart string `json:"original_start"`
	OriginalEnd   string `json:"original_end"`
}

// Span returns the duration between the range's UTC endpoints. Returns
// zero when either endpoint fails to parse.
func (r UTCTimeRange) Span() time.Duration {
	start, err := ParseUTCMillis(r.UTCStart)
	if err != nil {
		return 0
	}
	end, err := ParseUTCMillis(r.UTCEnd)
	if err != nil {
		return 0
	}
	return end.Sub(start)
}

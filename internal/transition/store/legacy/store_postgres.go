package legacy

import (
	"context"
	"database/sql"
	"fmt"

	"meridian/internal/sessions"
	id "meridian/pkg/domain"
	"meridian/pkg/platform/sentinel"
)

// PostgresStore reads the legacy day-aggregate table. Pure I/O; the
// fan-out of aggregates into events belongs to the merger.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed legacy store adapter.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DayAggregates returns the aggregate rows for one local calendar date.
// The usage_date column stores the user-local date the aggregation ran
// under; no timezone math happens here.
func (s *PostgresStore) DayAggregates(ctx context.Context, userID id.UserID, localDate string) ([]sessions.LegacyDayRecord, error) {
	query := `
		SELECT usage_date::text, subject_id, visits, total_time_ms, last_visit
		FROM legacy_day_usage
		WHERE user_id = $1 AND usage_date = $2
		ORDER BY subject_id
	`
	rows, err := s.db.QueryContext(ctx, query, userID.String(), localDate)
	if err != nil {
		return nil, fmt.Errorf("query legacy day usage: %w", err)
	}
	defer rows.Close()

	var out []sessions.LegacyDayRecord
	for rows.Next() {
		var rec sessions.LegacyDayRecord
		var lastVisit sql.NullTime
		if err := rows.Scan(&rec.Date, &rec.SubjectID, &rec.Visits, &rec.TotalTimeMS, &lastVisit); err != nil {
			return nil, fmt.Errorf("scan legacy day usage: %w", err)
		}
		if lastVisit.Valid {
			t := lastVisit.Time
			rec.LastVisit = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy day usage: %w", err)
	}

	if len(out) == 0 {
		return nil, sentinel.ErrNoData
	}
	return out, nil
}

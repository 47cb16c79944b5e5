//go:build integration

package legacy_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"meridian/internal/sessions"
	"meridian/internal/transition/store/legacy"
	id "meridian/pkg/domain"
	"meridian/pkg/platform/sentinel"
	"meridian/pkg/testutil/containers"
)

const schema = `
CREATE TABLE IF NOT EXISTS legacy_day_usage (
	user_id       UUID        NOT NULL,
	usage_date    DATE        NOT NULL,
	subject_id    TEXT        NOT NULL,
	visits        INTEGER     NOT NULL DEFAULT 0,
	total_time_ms BIGINT      NOT NULL DEFAULT 0,
	last_visit    TIMESTAMPTZ,
	PRIMARY KEY (user_id, usage_date, subject_id)
);
`

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.Postgres
	store *legacy.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.StartPostgres(s.T(), schema)
	s.store = legacy.NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.pg.DB.ExecContext(context.Background(), `TRUNCATE legacy_day_usage`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seed(userID id.UserID, date, subject string, visits int, totalMS int64, lastVisit *time.Time) {
	_, err := s.pg.DB.ExecContext(context.Background(), `
		INSERT INTO legacy_day_usage (user_id, usage_date, subject_id, visits, total_time_ms, last_visit)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, userID.String(), date, subject, visits, totalMS, lastVisit)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestEmptyDateReturnsNoData() {
	_, err := s.store.DayAggregates(context.Background(), id.NewUserID(), "2025-08-06")
	s.Require().ErrorIs(err, sentinel.ErrNoData)
}

func (s *PostgresStoreSuite) TestDayAggregatesRoundTrip() {
	ctx := context.Background()
	userID := id.NewUserID()
	lastVisit := time.Date(2025, 8, 6, 14, 30, 0, 0, time.UTC)

	s.seed(userID, "2025-08-06", "github.com", 3, 5_400_000, &lastVisit)
	s.seed(userID, "2025-08-06", "golang.org", 1, 600_000, nil)
	s.seed(userID, "2025-08-07", "github.com", 2, 1_200_000, nil)

	rows, err := s.store.DayAggregates(ctx, userID, "2025-08-06")
	s.Require().NoError(err)
	s.Require().Len(rows, 2)

	s.Equal(sessions.LegacyDayRecord{
		Date:        "2025-08-06",
		SubjectID:   "github.com",
		Visits:      3,
		TotalTimeMS: 5_400_000,
		LastVisit:   rows[0].LastVisit,
	}, rows[0])
	s.Require().NotNil(rows[0].LastVisit)
	s.True(rows[0].LastVisit.Equal(lastVisit))
	s.Nil(rows[1].LastVisit)
}

func (s *PostgresStoreSuite) TestUsersStayIsolated() {
	ctx := context.Background()
	userA := id.NewUserID()
	userB := id.NewUserID()
	s.seed(userA, "2025-08-06", "github.com", 1, 1000, nil)

	_, err := s.store.DayAggregates(ctx, userB, "2025-08-06")
	s.Require().ErrorIs(err, sentinel.ErrNoData)
}

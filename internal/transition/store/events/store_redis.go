package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"meridian/internal/sessions"
	"meridian/internal/timezone"
	id "meridian/pkg/domain"
	"meridian/pkg/platform/sentinel"
)

// eventKeyPrefix namespaces per-user event sets.
const eventKeyPrefix = "meridian:events:"

// RedisStore reads per-event UTC rows from a Redis sorted set per
// user, scored by start time in Unix milliseconds. Range queries map
// directly onto ZRANGEBYSCORE.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedis constructs a Redis-backed event store adapter.
func NewRedis(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func eventKey(userID id.UserID) string {
	return eventKeyPrefix + userID.String()
}

// Add writes events into the user's sorted set. Used by the ingest
// path and by tests; the query engine itself never writes.
func (s *RedisStore) Add(ctx context.Context, userID id.UserID, events ...sessions.UTCEvent) error {
	if len(events) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(events))
	for _, ev := range events {
		start, err := timezone.ParseUTCMillis(ev.StartTimeUTC)
		if err != nil {
			return fmt.Errorf("event %s has unusable start time: %w", ev.ID, err)
		}
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.ID, err)
		}
		members = append(members, redis.Z{
			Score:  float64(start.UnixMilli()),
			Member: string(value),
		})
	}

	if err := s.client.ZAdd(ctx, eventKey(userID), members...).Err(); err != nil {
		return fmt.Errorf("zadd events: %w", err)
	}
	return nil
}

// EventsInRange returns events whose start falls in [utcStart, utcEnd].
// Members that fail to decode are skipped; a stray corrupt row must not
// take down range reads.
func (s *RedisStore) EventsInRange(ctx context.Context, userID id.UserID, utcStart, utcEnd time.Time) ([]sessions.UTCEvent, error) {
	values, err := s.client.ZRangeByScore(ctx, eventKey(userID), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", utcStart.UnixMilli()),
		Max: fmt.Sprintf("%d", utcEnd.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore events: %w", err)
	}

	out := make([]sessions.UTCEvent, 0, len(values))
	for _, v := range values {
		var ev sessions.UTCEvent
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}

	if len(out) == 0 {
		return nil, sentinel.ErrNoData
	}
	return out, nil
}

//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "meridian/pkg/platform/audit"
	auditkafka "meridian/pkg/platform/audit/store/kafka"
	"meridian/pkg/testutil/containers"
)

const testTopic = "meridian.audit.test"

func TestAppendPublishesToTopic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rp := containers.StartRedpanda(t, testTopic)

	store, err := auditkafka.New([]string{rp.Broker}, testTopic)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sent := audit.Event{
		Timestamp: time.Date(2025, 8, 6, 12, 0, 0, 0, time.UTC),
		Action:    audit.ActionEmergencyDisabled,
		Feature:   "utc_sessions",
		ActorID:   "ops-on-call",
		Detail:    []any{"reason", "utc store returning corrupt rows"},
	}
	require.NoError(t, store.Append(ctx, sent))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, string(audit.ActionEmergencyDisabled), string(records[0].Key))

	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, sent.Action, got.Action)
	require.Equal(t, sent.Feature, got.Feature)
	require.Equal(t, sent.ActorID, got.ActorID)
	require.Equal(t, "utc store returning corrupt rows", got.DetailString("reason"))
}

func TestListRecentIsUnsupported(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rp := containers.StartRedpanda(t, testTopic)

	store, err := auditkafka.New([]string{rp.Broker}, testTopic)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	_, err = store.ListRecent(context.Background(), 10)
	require.Error(t, err)
}

//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Redpanda is a throwaway Kafka-compatible broker for publisher tests.
type Redpanda struct {
	Broker string
}

// StartRedpanda launches a Redpanda container and creates the given
// topics before returning.
func StartRedpanda(t *testing.T, topics ...string) *Redpanda {
	t.Helper()
	ctx := context.Background()

	container, err := redpanda.Run(ctx, "redpandadata/redpanda:v24.1.7")
	if err != nil {
		t.Fatalf("start redpanda container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	broker, err := container.KafkaSeedBroker(ctx)
	if err != nil {
		t.Fatalf("redpanda seed broker: %v", err)
	}

	if len(topics) > 0 {
		client, err := kgo.NewClient(kgo.SeedBrokers(broker))
		if err != nil {
			t.Fatalf("kafka admin client: %v", err)
		}
		defer client.Close()

		admin := kadm.NewClient(client)
		createCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if _, err := admin.CreateTopics(createCtx, 1, 1, nil, topics...); err != nil {
			t.Fatalf("create topics %v: %v", topics, err)
		}
	}

	return &Redpanda{Broker: broker}
}

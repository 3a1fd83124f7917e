//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"idregistry/internal/audit"
	id "idregistry/pkg/domain"
	"idregistry/pkg/testutil/containers"
)

// TestKafkaPublisherDelivery produces audit events against a real broker and
// consumes them back, checking key ordering and payload fidelity.
func TestKafkaPublisherDelivery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	redpanda := containers.GetManager().GetRedpanda(t)
	topic := "registration.audit.test"

	publisher, err := audit.NewKafkaPublisher(ctx, redpanda.Brokers, topic, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	registrationID := id.NewRegistrationID()
	emitted := []audit.EventType{
		audit.EventRegistrationCreated,
		audit.EventApprovedForCapture,
		audit.EventBiometricsVerified,
		audit.EventIdentityIssued,
	}
	for _, eventType := range emitted {
		require.NoError(t, publisher.Emit(ctx, audit.Event{
			RegistrationID: registrationID,
			EventType:      eventType,
			ActorID:        "officer-7",
			Payload:        map[string]any{"status": string(eventType)},
		}))
	}
	require.NoError(t, publisher.Close())

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var received []audit.Event
	deadline := time.Now().Add(30 * time.Second)
	for len(received) < len(emitted) && time.Now().Before(deadline) {
		fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		fetches := consumer.PollFetches(fetchCtx)
		cancel()
		fetches.EachRecord(func(record *kgo.Record) {
			require.Equal(t, registrationID.String(), string(record.Key),
				"events must be keyed by registration ID")
			var event audit.Event
			require.NoError(t, json.Unmarshal(record.Value, &event))
			received = append(received, event)
		})
	}

	require.Len(t, received, len(emitted))
	for i, event := range received {
		require.Equal(t, emitted[i], event.EventType, "per-key ordering must hold")
		require.Equal(t, "officer-7", event.ActorID)
		require.False(t, event.Timestamp.IsZero())
	}
}

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "idregistry/pkg/domain"
)

func newEvent(registrationID id.RegistrationID, eventType EventType) Event {
	return Event{
		RegistrationID: registrationID,
		EventType:      eventType,
		ActorID:        "officer-7",
	}
}

func TestStorePublisherSync(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	publisher := NewStorePublisher(store)
	registrationID := id.NewRegistrationID()

	require.NoError(t, publisher.Emit(ctx, newEvent(registrationID, EventRegistrationCreated)))
	require.NoError(t, publisher.Emit(ctx, newEvent(registrationID, EventApprovedForCapture)))

	events := store.All()
	require.Len(t, events, 2)
	assert.Equal(t, EventRegistrationCreated, events[0].EventType)
	assert.Equal(t, EventApprovedForCapture, events[1].EventType)
	assert.False(t, events[0].Timestamp.IsZero(), "emit must stamp an unset timestamp")

	require.NoError(t, publisher.Close())
}

func TestStorePublisherPreservesExplicitTimestamp(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewStorePublisher(store)

	stamped := newEvent(id.NewRegistrationID(), EventIdentityIssued)
	stamped.Timestamp = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, publisher.Emit(context.Background(), stamped))

	events := store.All()
	require.Len(t, events, 1)
	assert.True(t, events[0].Timestamp.Equal(stamped.Timestamp))
}

func TestStorePublisherAsyncDrainsOnClose(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	publisher := NewStorePublisher(store, WithAsyncBuffer(64))
	registrationID := id.NewRegistrationID()

	const emitted = 50
	for i := 0; i < emitted; i++ {
		require.NoError(t, publisher.Emit(ctx, newEvent(registrationID, EventCaptureScheduled)))
	}

	// Close must block until the buffer is fully drained.
	require.NoError(t, publisher.Close())
	assert.Len(t, store.All(), emitted)
}

func TestListByRegistration(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	publisher := NewStorePublisher(store)

	first := id.NewRegistrationID()
	second := id.NewRegistrationID()
	require.NoError(t, publisher.Emit(ctx, newEvent(first, EventRegistrationCreated)))
	require.NoError(t, publisher.Emit(ctx, newEvent(second, EventRegistrationCreated)))
	require.NoError(t, publisher.Emit(ctx, newEvent(first, EventRegistrationRejected)))

	events, err := store.ListByRegistration(ctx, first.String())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventRegistrationRejected, events[1].EventType)
}

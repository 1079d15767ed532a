package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduitci/conduit/pkg/domain"
)

func event(id string) domain.Event {
	return domain.Event{
		ID:        id,
		Type:      domain.EventTypeStageSuccess,
		RunID:     "run-1",
		Timestamp: time.Now(),
	}
}

func TestPublishDeliversToTopicSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx := context.Background()

	var stageEvents, runEvents []domain.Event
	require.NoError(t, bus.Subscribe(ctx, "stage.events", func(_ context.Context, e domain.Event) error {
		stageEvents = append(stageEvents, e)
		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx, "run.events", func(_ context.Context, e domain.Event) error {
		runEvents = append(runEvents, e)
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, "stage.events", event("e1")))
	require.NoError(t, bus.Publish(ctx, "stage.events", event("e2")))

	require.Len(t, stageEvents, 2)
	assert.Equal(t, "e1", stageEvents[0].ID)
	assert.Empty(t, runEvents)
}

func TestPublishContinuesPastHandlerError(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx := context.Background()

	var delivered int
	require.NoError(t, bus.Subscribe(ctx, "t", func(_ context.Context, _ domain.Event) error {
		return errors.New("handler broken")
	}))
	require.NoError(t, bus.Subscribe(ctx, "t", func(_ context.Context, _ domain.Event) error {
		delivered++
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, "t", event("e1")))
	assert.Equal(t, 1, delivered)
}

func TestCloseDropsSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx := context.Background()

	var delivered int
	require.NoError(t, bus.Subscribe(ctx, "t", func(_ context.Context, _ domain.Event) error {
		delivered++
		return nil
	}))
	require.NoError(t, bus.Close())

	require.NoError(t, bus.Publish(ctx, "t", event("e1")))
	assert.Zero(t, delivered)
}

package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscription_ReceivesPublishedEvents(t *testing.T) {
	hub := NewHub(0)
	key := ChannelKey{Scope: ScopeToken, ID: "tok-1"}

	sub, err := Subscribe(hub, key, 8, false, 4096)
	require.NoError(t, err)
	defer sub.Close()

	hub.Publish(context.Background(), key, Event{EventType: EventTransition})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventTransition, ev.EventType)
}

func TestSubscription_NextReturnsChannelClosedAfterClose(t *testing.T) {
	hub := NewHub(0)
	key := ChannelKey{Scope: ScopeToken, ID: "tok-1"}

	sub, err := Subscribe(hub, key, 8, false, 4096)
	require.NoError(t, err)
	sub.Close()

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrChannelClosed)
}

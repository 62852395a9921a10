package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_DeliversImmediateFlushEventsDirectly(t *testing.T) {
	s := NewSession(ChannelKey{Scope: ScopeToken, ID: "tok-1"}, 8, false, 4096)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Deliver(ctx, Event{EventType: EventTransition, ScopeID: "tok-1"}))

	select {
	case ev := <-s.Out():
		assert.Equal(t, EventTransition, ev.EventType)
		assert.EqualValues(t, 1, ev.Seq)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestSession_CoalescesConsecutiveContentChunks(t *testing.T) {
	s := NewSession(ChannelKey{Scope: ScopeToken, ID: "tok-1"}, 8, false, 4096)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Deliver(ctx, Event{EventType: EventContentChunk, ScopeID: "tok-1", Payload: map[string]interface{}{"text": "hel"}}))
	require.NoError(t, s.Deliver(ctx, Event{EventType: EventContentChunk, ScopeID: "tok-1", Payload: map[string]interface{}{"text": "lo"}}))
	// A non-chunk event flushes the pending merged chunk ahead of itself.
	require.NoError(t, s.Deliver(ctx, Event{EventType: EventCompleted, ScopeID: "tok-1"}))

	select {
	case ev := <-s.Out():
		require.Equal(t, EventContentChunk, ev.EventType)
		assert.Equal(t, "hello", ev.Payload["text"])
	case <-time.After(time.Second):
		t.Fatal("expected coalesced chunk was not delivered")
	}

	select {
	case ev := <-s.Out():
		assert.Equal(t, EventCompleted, ev.EventType)
	case <-time.After(time.Second):
		t.Fatal("expected completed event was not delivered")
	}
}

func TestSession_PeriodicFlushDrainsPendingChunkEvenWithoutAFollowingEvent(t *testing.T) {
	s := NewSession(ChannelKey{Scope: ScopeToken, ID: "tok-1"}, 8, false, 4096)
	defer s.Close()

	require.NoError(t, s.Deliver(context.Background(), Event{EventType: EventContentChunk, ScopeID: "tok-1", Payload: map[string]interface{}{"text": "solo"}}))

	select {
	case ev := <-s.Out():
		assert.Equal(t, "solo", ev.Payload["text"])
	case <-time.After(2 * flushInterval):
		t.Fatal("periodic flush did not deliver the pending chunk")
	}
}

func TestSession_LossyDropsOldestWhenFull(t *testing.T) {
	s := NewSession(ChannelKey{Scope: ScopeToken, ID: "tok-1"}, 2, true, 4096)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Deliver(ctx, Event{EventType: EventTransition, ScopeID: "tok-1", Payload: map[string]interface{}{"n": 1}}))
	require.NoError(t, s.Deliver(ctx, Event{EventType: EventTransition, ScopeID: "tok-1", Payload: map[string]interface{}{"n": 2}}))
	require.NoError(t, s.Deliver(ctx, Event{EventType: EventTransition, ScopeID: "tok-1", Payload: map[string]interface{}{"n": 3}}))

	assert.Equal(t, int64(1), s.Dropped())

	first := <-s.Out()
	assert.EqualValues(t, 2, first.Payload["n"])
}

func TestSession_NonLossyBlocksUntilCancelled(t *testing.T) {
	s := NewSession(ChannelKey{Scope: ScopeToken, ID: "tok-1"}, 1, false, 4096)
	defer s.Close()

	require.NoError(t, s.Deliver(context.Background(), Event{EventType: EventTransition, ScopeID: "tok-1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Deliver(ctx, Event{EventType: EventTransition, ScopeID: "tok-1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSession_DeliverAfterCloseReturnsChannelClosed(t *testing.T) {
	s := NewSession(ChannelKey{Scope: ScopeToken, ID: "tok-1"}, 4, false, 4096)
	s.Close()

	err := s.Deliver(context.Background(), Event{EventType: EventTransition, ScopeID: "tok-1"})
	assert.ErrorIs(t, err, ErrChannelClosed)
}

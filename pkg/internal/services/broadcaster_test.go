package services

import (
	"context"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	hub := NewHub(4, 64)
	t.Cleanup(hub.Close)
	return hub
}

func typingEvent(user uint) models.Event {
	return models.TypingStart{TargetType: models.ScopeChannel, TargetID: 1, UserID: user}
}

func TestHubDeliversOnlyToSubscribers(t *testing.T) {
	hub := newTestHub(t)
	inside := &recordingSession{id: "a", userId: 1}
	outside := &recordingSession{id: "b", userId: 2}
	hub.Subscribe(models.ChannelScope(1), inside)
	hub.Subscribe(models.ChannelScope(2), outside)

	hub.Publish(context.Background(), models.ChannelScope(1), typingEvent(3))

	require.Eventually(t, func() bool { return len(inside.Packets()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.EventTypingStart, inside.Packets()[0].Action)
	hub.Close()
	assert.Empty(t, outside.Packets())
}

func TestHubExcludesActor(t *testing.T) {
	hub := newTestHub(t)
	actor := &recordingSession{id: "a", userId: 1}
	peer := &recordingSession{id: "b", userId: 2}
	hub.Subscribe(models.ChannelScope(1), actor)
	hub.Subscribe(models.ChannelScope(1), peer)

	hub.Publish(context.Background(), models.ChannelScope(1), typingEvent(1), ExcludeUser(1))
	hub.Close()

	assert.Empty(t, actor.Packets())
	assert.Len(t, peer.Packets(), 1)
}

func TestHubKeepsPerScopeOrder(t *testing.T) {
	hub := newTestHub(t)
	session := &recordingSession{id: "a", userId: 1}
	hub.Subscribe(models.ChannelScope(1), session)

	const total = 200
	for idx := 1; idx <= total; idx++ {
		hub.Publish(context.Background(), models.ChannelScope(1), typingEvent(uint(idx)))
	}
	hub.Close()

	packets := session.Packets()
	require.Len(t, packets, total)
	for idx, packet := range packets {
		var event models.TypingStart
		require.NoError(t, models.FitStruct(packet.Payload, &event))
		assert.EqualValues(t, idx+1, event.UserID)
	}
}

func TestHubSlowSessionDoesNotBlockOthers(t *testing.T) {
	hub := newTestHub(t)
	slow := &recordingSession{id: "slow", userId: 1, fail: ErrSessionBusy}
	fast := &recordingSession{id: "fast", userId: 2}
	hub.Subscribe(models.ChannelScope(1), slow)
	hub.Subscribe(models.ChannelScope(1), fast)

	for idx := 0; idx < 10; idx++ {
		hub.Publish(context.Background(), models.ChannelScope(1), typingEvent(3))
	}
	hub.Close()

	assert.Len(t, fast.Packets(), 10)
}

func TestHubUnsubscribeAndRevoke(t *testing.T) {
	hub := newTestHub(t)
	first := &recordingSession{id: "a", userId: 1}
	second := &recordingSession{id: "b", userId: 1}
	other := &recordingSession{id: "c", userId: 2}
	for _, session := range []Session{first, second, other} {
		hub.Subscribe(models.ChannelScope(1), session)
		hub.Subscribe(models.ChannelScope(2), session)
	}

	hub.Unsubscribe(models.ChannelScope(2), "c")
	assert.False(t, hub.Subscribed(models.ChannelScope(2), "c"))
	assert.True(t, hub.Subscribed(models.ChannelScope(1), "c"))

	hub.RevokeUser(models.ChannelScope(1), 1)
	assert.False(t, hub.Subscribed(models.ChannelScope(1), "a"))
	assert.False(t, hub.Subscribed(models.ChannelScope(1), "b"))
	assert.True(t, hub.Subscribed(models.ChannelScope(2), "a"))

	hub.UnsubscribeAll("a")
	assert.False(t, hub.Subscribed(models.ChannelScope(2), "a"))
	assert.True(t, hub.Subscribed(models.ChannelScope(2), "b"))
}

func TestHubCloseIsIdempotent(t *testing.T) {
	hub := NewHub(1, 1)
	hub.Close()
	hub.Close()
	// Publishing after close is dropped silently.
	hub.Publish(context.Background(), models.ChannelScope(1), typingEvent(1))
}

func TestConnectionDeliverNeverBlocks(t *testing.T) {
	conn := NewConnection(1, 2)
	require.NoError(t, conn.Deliver([]byte("1")))
	require.NoError(t, conn.Deliver([]byte("2")))
	assert.ErrorIs(t, conn.Deliver([]byte("3")), ErrSessionBusy)

	assert.Equal(t, "1", string(<-conn.Outbox()))

	conn.Close()
	conn.Close()
	assert.ErrorIs(t, conn.Deliver([]byte("4")), ErrSessionClosed)
	assert.NotEqual(t, conn.ID(), NewConnection(1, 1).ID())
	assert.EqualValues(t, 1, conn.UserID())
}

package services

import (
	"context"
	"testing"

	"git.solsynth.dev/hypernet/relay/pkg/internal/database"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeScopes(t *testing.T) {
	oracle := newStaticOracle()
	oracle.SetChannelMember(1, 10, true)
	oracle.SetParticipant(1, 20, true)
	ctx := context.Background()

	assert.NoError(t, Authorize(ctx, oracle, 1, models.ChannelScope(10)))
	assert.NoError(t, Authorize(ctx, oracle, 1, models.ConversationScope(20)))
	assert.NoError(t, Authorize(ctx, oracle, 1, models.UserScope(1)))

	var unauthorized *UnauthorizedError
	err := Authorize(ctx, oracle, 1, models.UserScope(2))
	require.ErrorAs(t, err, &unauthorized)
	assert.Equal(t, models.UserScope(2), unauthorized.Target)

	assert.ErrorIs(t, Authorize(ctx, oracle, 2, models.ChannelScope(10)), ErrNotChannelMember)
	assert.ErrorIs(t, Authorize(ctx, oracle, 2, models.ConversationScope(20)), ErrNotConversationParticipant)
	assert.ErrorIs(t, Authorize(ctx, oracle, 1, models.Scope{Type: "workspace", ID: 1}), ErrInvalidScope)
}

func TestCachedMembershipFollowsChanges(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()
	oracle := &CachedMembership{}

	ok, err := oracle.IsChannelMember(ctx, 5, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	member, err := AddChannelMember(ctx, 1, 5, models.PowerLevelAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.PowerLevelAdmin, member.PowerLevel)

	ok, err = oracle.IsChannelMember(ctx, 5, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	// Adding again keeps the original row.
	member, err = AddChannelMember(ctx, 1, 5, models.PowerLevelMember)
	require.NoError(t, err)
	assert.Equal(t, models.PowerLevelAdmin, member.PowerLevel)

	require.NoError(t, RemoveChannelMember(ctx, 1, 5))
	ok, err = oracle.IsChannelMember(ctx, 5, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, AddConversationParticipant(ctx, 3, 5))
	ok, err = oracle.IsConversationParticipant(ctx, 5, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, RemoveConversationParticipant(ctx, 3, 5))
	ok, err = oracle.IsConversationParticipant(ctx, 5, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCachedMembershipServesFromCache(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()
	oracle := &CachedMembership{}

	_, err := AddChannelMember(ctx, 1, 5, models.PowerLevelMember)
	require.NoError(t, err)
	ok, err := oracle.IsChannelMember(ctx, 5, 1)
	require.NoError(t, err)
	require.True(t, ok)

	// Removed behind the service's back, the cached answer stays.
	require.NoError(t, database.C.Where("channel_id = ?", 1).Delete(&models.ChannelMember{}).Error)
	ok, err = oracle.IsChannelMember(ctx, 5, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemovingMemberRevokesSubscriptions(t *testing.T) {
	setupTestDatabase(t)
	hub := newTestHub(t)
	useBus(t, hub)
	ctx := context.Background()

	_, err := AddChannelMember(ctx, 1, 5, models.PowerLevelMember)
	require.NoError(t, err)
	hub.Subscribe(models.ChannelScope(1), &recordingSession{id: "a", userId: 5})
	hub.Subscribe(models.ChannelScope(1), &recordingSession{id: "b", userId: 6})

	require.NoError(t, RemoveChannelMember(ctx, 1, 5))
	assert.False(t, hub.Subscribed(models.ChannelScope(1), "a"))
	assert.True(t, hub.Subscribed(models.ChannelScope(1), "b"))
}

func TestChannelLifecycle(t *testing.T) {
	setupTestDatabase(t)
	hub := newTestHub(t)
	useBus(t, hub)
	ctx := context.Background()

	channel, err := NewChannel(ctx, models.Channel{Name: "general", WorkspaceID: 1}, 7)
	require.NoError(t, err)

	member, err := GetChannelMember(7, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PowerLevelAdmin, member.PowerLevel)

	channels, err := ListAvailableChannel(7, 1)
	require.NoError(t, err)
	require.Len(t, channels, 1)

	hub.Subscribe(models.ChannelScope(channel.ID), &recordingSession{id: "a", userId: 7})
	require.NoError(t, DeleteChannel(ctx, channel))
	assert.False(t, hub.Subscribed(models.ChannelScope(channel.ID), "a"))

	ok, err := (&CachedMembership{}).IsChannelMember(ctx, 7, channel.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConversationReusesDirectPair(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()

	first, err := NewConversation(ctx, 1, 1, []uint{2})
	require.NoError(t, err)
	again, err := NewConversation(ctx, 1, 2, []uint{1})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	group, err := NewConversation(ctx, 1, 1, []uint{2, 3})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, group.ID)

	_, err = NewConversation(ctx, 1, 1, []uint{1})
	assert.Error(t, err)
}

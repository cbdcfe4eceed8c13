package services

import (
	"context"
	"testing"

	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingAnchorsOnlyMoveForward(t *testing.T) {
	setupTestDatabase(t)
	useBus(t, &recordingBus{})
	ctx := context.Background()

	_, err := AddChannelMember(ctx, 1, 5, models.PowerLevelMember)
	require.NoError(t, err)

	require.NoError(t, SetReadingAnchor(models.ChannelScope(1), 5, 4))
	require.NoError(t, SetReadingAnchor(models.ChannelScope(1), 5, 2))
	FlushReadingAnchor()

	member, err := GetChannelMember(5, 1)
	require.NoError(t, err)
	require.NotNil(t, member.ReadingAnchor)
	assert.EqualValues(t, 4, *member.ReadingAnchor)

	require.NoError(t, SetReadingAnchor(models.ChannelScope(1), 5, 3))
	FlushReadingAnchor()
	member, err = GetChannelMember(5, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 4, *member.ReadingAnchor)

	assert.ErrorIs(t, SetReadingAnchor(models.UserScope(5), 5, 1), ErrInvalidScope)
}

func TestCountUnread(t *testing.T) {
	setupTestDatabase(t)
	useBus(t, &recordingBus{})
	ctx := context.Background()

	_, err := AddChannelMember(ctx, 1, 5, models.PowerLevelMember)
	require.NoError(t, err)
	require.NoError(t, AddConversationParticipant(ctx, 2, 5))

	channel := models.ChannelScope(1)
	appendText(t, channel, 6, "one")
	appendText(t, channel, 5, "mine")
	appendText(t, channel, 6, "three")
	appendText(t, channel, 6, "four")
	appendText(t, models.ConversationScope(2), 6, "dm")

	require.NoError(t, SetReadingAnchor(channel, 5, 3))
	FlushReadingAnchor()

	counts, err := CountUnread(ctx, 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []UnreadCount{
		{Scope: channel, Unread: 1},
		{Scope: models.ConversationScope(2), Unread: 1},
	}, counts)
}

package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"git.solsynth.dev/hypernet/relay/pkg/internal/database"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func appendText(t *testing.T, scope models.Scope, author uint, content string, parent ...uint) models.Message {
	t.Helper()
	draft := MessageDraft{Scope: scope, AuthorID: author, Content: content}
	if len(parent) > 0 {
		draft.ParentID = lo.ToPtr(parent[0])
	}
	message, err := AppendMessage(context.Background(), draft)
	require.NoError(t, err)
	return message
}

func TestAppendMessageConcurrentDistinctSequences(t *testing.T) {
	setupTestDatabase(t)
	useBus(t, &recordingBus{})
	scope := models.ChannelScope(1)

	var wg sync.WaitGroup
	results := make([]models.Message, 3)
	errs := make([]error, 3)
	for idx, content := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(idx int, content string) {
			defer wg.Done()
			results[idx], errs[idx] = AppendMessage(context.Background(), MessageDraft{
				Scope:    scope,
				AuthorID: 1,
				Content:  content,
			})
		}(idx, content)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	sequences := lo.Map(results, func(item models.Message, _ int) int64 { return item.Sequence })
	sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })
	assert.Equal(t, []int64{1, 2, 3}, sequences)
}

func TestAppendMessageManyWriters(t *testing.T) {
	setupTestDatabase(t)
	useBus(t, &recordingBus{})
	scope := models.ConversationScope(7)

	const writers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int64]bool)
	for idx := 0; idx < writers; idx++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			message, err := AppendMessage(context.Background(), MessageDraft{
				Scope:    scope,
				AuthorID: uint(idx + 1),
				Content:  "hello",
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[message.Sequence], "sequence %d handed out twice", message.Sequence)
			seen[message.Sequence] = true
		}(idx)
	}
	wg.Wait()

	assert.Len(t, seen, writers)
	for seq := int64(1); seq <= writers; seq++ {
		assert.True(t, seen[seq])
	}
}

func TestAppendMessageSequentialOrder(t *testing.T) {
	setupTestDatabase(t)
	useBus(t, &recordingBus{})
	scope := models.ChannelScope(3)

	first := appendText(t, scope, 1, "first")
	second := appendText(t, scope, 2, "second")
	other := appendText(t, models.ChannelScope(4), 1, "elsewhere")

	assert.Less(t, first.Sequence, second.Sequence)
	assert.EqualValues(t, 1, other.Sequence)
}

func TestAppendMessageNeverReusesDeletedSequence(t *testing.T) {
	setupTestDatabase(t)
	useBus(t, &recordingBus{})
	scope := models.ChannelScope(1)

	appendText(t, scope, 1, "one")
	last := appendText(t, scope, 1, "two")
	_, err := DeleteMessage(context.Background(), last.ID, 1)
	require.NoError(t, err)

	next := appendText(t, scope, 1, "three")
	assert.EqualValues(t, 3, next.Sequence)
}

func TestAppendMessageThreadReplies(t *testing.T) {
	setupTestDatabase(t)
	bus := &recordingBus{}
	useBus(t, bus)
	scope := models.ChannelScope(1)

	parent := appendText(t, scope, 1, "root")
	first := appendText(t, scope, 2, "reply one", parent.ID)
	second := appendText(t, scope, 3, "reply two", parent.ID)

	require.NotNil(t, first.ThreadSequence)
	require.NotNil(t, second.ThreadSequence)
	assert.EqualValues(t, 1, *first.ThreadSequence)
	assert.EqualValues(t, 2, *second.ThreadSequence)
	assert.EqualValues(t, 2, first.Sequence)
	assert.EqualValues(t, 3, second.Sequence)

	stored, err := GetMessage(context.Background(), parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ReplyCount)

	counts := bus.OfKind(models.EventReplyCountChanged)
	require.Len(t, counts, 2)
	assert.Equal(t, models.ReplyCountChanged{ParentID: parent.ID, NewCount: 2}, counts[1].Event)
	assert.Len(t, bus.OfKind(models.EventMessageNew), 3)

	nested := appendText(t, scope, 4, "reply to reply", first.ID)
	require.NotNil(t, nested.ParentID)
	assert.Equal(t, parent.ID, *nested.ParentID)
	assert.EqualValues(t, 3, *nested.ThreadSequence)

	replies, err := ListReplies(context.Background(), parent.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, replies, 3)
}

func TestAppendMessageParentNotFound(t *testing.T) {
	setupTestDatabase(t)
	bus := &recordingBus{}
	useBus(t, bus)
	scope := models.ChannelScope(1)

	_, err := AppendMessage(context.Background(), MessageDraft{
		Scope:    scope,
		AuthorID: 1,
		Content:  "orphan",
		ParentID: lo.ToPtr(uint(404)),
	})
	assert.ErrorIs(t, err, ErrParentNotFound)

	parent := appendText(t, scope, 1, "root")
	_, err = DeleteMessage(context.Background(), parent.ID, 1)
	require.NoError(t, err)

	_, err = AppendMessage(context.Background(), MessageDraft{
		Scope:    scope,
		AuthorID: 2,
		Content:  "late reply",
		ParentID: lo.ToPtr(parent.ID),
	})
	assert.ErrorIs(t, err, ErrParentNotFound)

	_, err = AppendMessage(context.Background(), MessageDraft{
		Scope:    models.ChannelScope(2),
		AuthorID: 2,
		Content:  "wrong channel",
		ParentID: lo.ToPtr(parent.ID),
	})
	assert.ErrorIs(t, err, ErrParentNotFound)

	// No sequence was consumed by the failed replies.
	next := appendText(t, scope, 1, "after")
	assert.EqualValues(t, 2, next.Sequence)
	assert.Empty(t, bus.OfKind(models.EventReplyCountChanged))
}

func TestAppendMessageValidation(t *testing.T) {
	setupTestDatabase(t)
	useBus(t, &recordingBus{})

	_, err := AppendMessage(context.Background(), MessageDraft{Scope: models.UserScope(1), AuthorID: 1, Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidScope)

	_, err = AppendMessage(context.Background(), MessageDraft{Scope: models.ChannelScope(1), AuthorID: 1, Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	message, err := AppendMessage(context.Background(), MessageDraft{
		Scope:       models.ChannelScope(1),
		AuthorID:    1,
		Attachments: []string{"file-1"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, message.Sequence)
}

// failCreates makes the next n message inserts fail with a duplicate key.
func failCreates(t *testing.T, db *gorm.DB, n int32) *atomic.Int32 {
	t.Helper()
	remaining := &atomic.Int32{}
	remaining.Store(n)
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:duplicate", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*models.Message); !ok {
			return
		}
		if remaining.Add(-1) >= 0 {
			_ = tx.AddError(gorm.ErrDuplicatedKey)
		}
	}))
	return remaining
}

func TestAppendMessageRetriesOnUniqueViolation(t *testing.T) {
	db := setupTestDatabase(t)
	useBus(t, &recordingBus{})
	noBackoff(t)
	failCreates(t, db, 2)

	message, err := AppendMessage(context.Background(), MessageDraft{Scope: models.ChannelScope(1), AuthorID: 1, Content: "retry"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, message.Sequence)
}

func TestAppendMessageRetriesAfterLosingSequenceRace(t *testing.T) {
	db := setupTestDatabase(t)
	useBus(t, &recordingBus{})
	noBackoff(t)

	// A competing writer takes the sequence between our MAX and our insert,
	// so the insert hits the real unique index.
	var raced atomic.Bool
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:competitor", func(tx *gorm.DB) {
		message, ok := tx.Statement.Dest.(*models.Message)
		if !ok || raced.Swap(true) {
			return
		}
		competitor := models.Message{
			ChannelID: message.ChannelID,
			Sequence:  message.Sequence,
			AuthorID:  99,
			Content:   "competitor",
		}
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).Create(&competitor).Error)
	}))

	message, err := AppendMessage(context.Background(), MessageDraft{Scope: models.ChannelScope(1), AuthorID: 1, Content: "mine"})
	require.NoError(t, err)
	assert.True(t, raced.Load())
	assert.EqualValues(t, 1, message.Sequence)
	assert.Equal(t, "mine", message.Content)
}

func TestAppendMessageGivesUpAfterBoundedAttempts(t *testing.T) {
	db := setupTestDatabase(t)
	bus := &recordingBus{}
	useBus(t, bus)
	noBackoff(t)
	remaining := failCreates(t, db, 100)

	_, err := AppendMessage(context.Background(), MessageDraft{Scope: models.ChannelScope(1), AuthorID: 1, Content: "doomed"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSequencingFailed)
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
	assert.EqualValues(t, 100-SequencerMaxAttempts, remaining.Load())
	assert.Empty(t, bus.Events())

	var count int64
	require.NoError(t, database.C.Model(&models.Message{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteMessagePermissions(t *testing.T) {
	setupTestDatabase(t)
	bus := &recordingBus{}
	useBus(t, bus)
	ctx := context.Background()

	_, err := AddChannelMember(ctx, 1, 10, models.PowerLevelAdmin)
	require.NoError(t, err)
	_, err = AddChannelMember(ctx, 1, 11, models.PowerLevelMember)
	require.NoError(t, err)

	message := appendText(t, models.ChannelScope(1), 12, "mine")

	_, err = DeleteMessage(ctx, message.ID, 11)
	assert.ErrorIs(t, err, ErrNotMessageAuthor)

	_, err = DeleteMessage(ctx, message.ID, 10)
	require.NoError(t, err)

	deleted := bus.OfKind(models.EventMessageDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, models.MessageDeleted{MessageID: message.ID, Scope: models.ChannelScope(1)}, deleted[0].Event)

	_, err = DeleteMessage(ctx, message.ID, 12)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	messages, err := ListMessages(ctx, models.ChannelScope(1), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestListMessagesPagesBySequence(t *testing.T) {
	setupTestDatabase(t)
	useBus(t, &recordingBus{})
	scope := models.ChannelScope(1)
	for idx := 0; idx < 5; idx++ {
		appendText(t, scope, 1, "m")
	}

	page, err := ListMessages(context.Background(), scope, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 3, page[0].Sequence)
	assert.EqualValues(t, 4, page[1].Sequence)
}

func noBackoff(t *testing.T) {
	prev := SequencerBackoff
	SequencerBackoff = 0
	t.Cleanup(func() { SequencerBackoff = prev })
}

package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/relay/pkg/internal/database"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

var (
	// SequencerMaxAttempts bounds the read-compute-insert cycles of one
	// append. It is never retried beyond that.
	SequencerMaxAttempts = 3
	SequencerBackoff     = 10 * time.Millisecond
)

type MessageDraft struct {
	Scope       models.Scope
	AuthorID    uint
	Content     string
	Attachments []string
	ParentID    *uint
}

// AppendMessage stores a message at the next free sequence of its scope
// and, for replies, the next thread sequence under the parent while bumping
// the parent's reply counter in the same transaction.
//
// Uniqueness is enforced by the store's unique indexes, not by locks: a
// losing concurrent writer hits a unique violation and recomputes from a
// fresh maximum.
func AppendMessage(ctx context.Context, draft MessageDraft) (models.Message, error) {
	if !draft.Scope.IsMessageScope() {
		return models.Message{}, ErrInvalidScope
	}
	draft.Content = strings.TrimSpace(draft.Content)
	if len(draft.Content) == 0 && len(draft.Attachments) == 0 {
		return models.Message{}, ErrEmptyMessage
	}

	if draft.ParentID != nil {
		parent, err := GetMessage(ctx, *draft.ParentID)
		if err != nil {
			if isRecordNotFound(err) {
				return models.Message{}, ErrParentNotFound
			}
			return models.Message{}, err
		}
		if parent.Scope() != draft.Scope {
			return models.Message{}, ErrParentNotFound
		}
		// Threads are one level deep, replying to a reply joins its thread.
		if parent.ParentID != nil {
			draft.ParentID = parent.ParentID
		}
	}

	maxAttempts := max(SequencerMaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		message, replyCount, err := appendOnce(ctx, draft)
		if err == nil {
			sequencerAttempts.WithLabelValues("ok").Inc()
			announceMessage(ctx, message, replyCount)
			return message, nil
		}
		if errors.Is(err, ErrParentNotFound) {
			return models.Message{}, err
		}
		if !isUniqueViolation(err) && !isTransientStoreError(err) {
			return models.Message{}, fmt.Errorf("unable to append message: %w", err)
		}

		lastErr = err
		sequencerAttempts.WithLabelValues("retry").Inc()
		log.Debug().Err(err).
			Str("scope", draft.Scope.String()).
			Int("attempt", attempt).
			Msg("Sequence was taken concurrently, retrying...")

		if attempt < maxAttempts {
			if err := waitBackoff(ctx, attempt); err != nil {
				lastErr = err
				break
			}
		}
	}

	sequencerAttempts.WithLabelValues("failed").Inc()
	log.Warn().Err(lastErr).Str("scope", draft.Scope.String()).Msg("Gave up sequencing a message...")
	return models.Message{}, fmt.Errorf("%w: %w", ErrSequencingFailed, lastErr)
}

func waitBackoff(ctx context.Context, attempt int) error {
	delay := SequencerBackoff * time.Duration(attempt)
	if delay > 0 {
		delay += time.Duration(rand.Int63n(int64(delay)))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func appendOnce(ctx context.Context, draft MessageDraft) (models.Message, int, error) {
	var message models.Message
	var replyCount int

	err := database.C.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sequence, err := nextSequence(tx, draft.Scope)
		if err != nil {
			return err
		}

		message = models.Message{
			Sequence:    sequence,
			ParentID:    draft.ParentID,
			AuthorID:    draft.AuthorID,
			Content:     draft.Content,
			Attachments: draft.Attachments,
		}
		switch draft.Scope.Type {
		case models.ScopeChannel:
			message.ChannelID = lo.ToPtr(draft.Scope.ID)
		case models.ScopeConversation:
			message.ConversationID = lo.ToPtr(draft.Scope.ID)
		}

		if draft.ParentID != nil {
			threadSequence, err := nextThreadSequence(tx, *draft.ParentID)
			if err != nil {
				return err
			}
			message.ThreadSequence = &threadSequence
		}

		if err := tx.Create(&message).Error; err != nil {
			return err
		}

		if draft.ParentID != nil {
			// The soft-delete scope makes this a no-op when the parent was
			// deleted after our existence check.
			result := tx.Model(&models.Message{}).
				Where("id = ?", *draft.ParentID).
				UpdateColumn("reply_count", gorm.Expr("reply_count + ?", 1))
			if result.Error != nil {
				return result.Error
			} else if result.RowsAffected == 0 {
				return ErrParentNotFound
			}
			if err := tx.Model(&models.Message{}).
				Where("id = ?", *draft.ParentID).
				Pluck("reply_count", &replyCount).Error; err != nil {
				return err
			}
		}

		return nil
	})

	return message, replyCount, err
}

// nextSequence includes soft-deleted rows so a sequence is never handed out
// twice.
func nextSequence(tx *gorm.DB, scope models.Scope) (int64, error) {
	column := "channel_id"
	if scope.Type == models.ScopeConversation {
		column = "conversation_id"
	}

	var current int64
	if err := tx.Unscoped().Model(&models.Message{}).
		Where(column+" = ?", scope.ID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&current).Error; err != nil {
		return 0, err
	}
	return current + 1, nil
}

func nextThreadSequence(tx *gorm.DB, parentId uint) (int64, error) {
	var current int64
	if err := tx.Unscoped().Model(&models.Message{}).
		Where("parent_id = ?", parentId).
		Select("COALESCE(MAX(thread_sequence), 0)").
		Scan(&current).Error; err != nil {
		return 0, err
	}
	return current + 1, nil
}

func announceMessage(ctx context.Context, message models.Message, replyCount int) {
	scope := message.Scope()
	Bus.Publish(ctx, scope, models.MessageNew{Message: message})
	if message.ParentID != nil {
		Bus.Publish(ctx, scope, models.ReplyCountChanged{
			ParentID: *message.ParentID,
			NewCount: replyCount,
		})
	}
}

// GetMessage returns a message that is not deleted.
func GetMessage(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := database.C.WithContext(ctx).
		Where("id = ?", id).
		First(&message).Error; err != nil {
		return message, err
	}
	return message, nil
}

// ListMessages pages through a scope in sequence order, starting after
// the given sequence.
func ListMessages(ctx context.Context, scope models.Scope, after int64, take int) ([]models.Message, error) {
	if !scope.IsMessageScope() {
		return nil, ErrInvalidScope
	}
	if take <= 0 || take > 100 {
		take = 100
	}

	column := "channel_id"
	if scope.Type == models.ScopeConversation {
		column = "conversation_id"
	}

	var messages []models.Message
	if err := database.C.WithContext(ctx).
		Where(column+" = ? AND sequence > ?", scope.ID, after).
		Order("sequence ASC").
		Limit(take).
		Find(&messages).Error; err != nil {
		return messages, err
	}
	return messages, nil
}

func ListReplies(ctx context.Context, parentId uint, after int64, take int) ([]models.Message, error) {
	if take <= 0 || take > 100 {
		take = 100
	}

	var messages []models.Message
	if err := database.C.WithContext(ctx).
		Where("parent_id = ? AND thread_sequence > ?", parentId, after).
		Order("thread_sequence ASC").
		Limit(take).
		Find(&messages).Error; err != nil {
		return messages, err
	}
	return messages, nil
}

// DeleteMessage soft-deletes a message. Authors may delete their own
// messages; channel admins may delete any message of their channel.
func DeleteMessage(ctx context.Context, id uint, actor uint) (models.Message, error) {
	message, err := GetMessage(ctx, id)
	if err != nil {
		if isRecordNotFound(err) {
			return message, ErrMessageNotFound
		}
		return message, err
	}

	if message.AuthorID != actor {
		if message.ChannelID == nil {
			return message, ErrNotMessageAuthor
		}
		member, err := GetChannelMember(actor, *message.ChannelID)
		if err != nil || member.PowerLevel < models.PowerLevelAdmin {
			return message, ErrNotMessageAuthor
		}
	}

	if err := database.C.WithContext(ctx).Delete(&message).Error; err != nil {
		return message, err
	}

	Bus.Publish(ctx, message.Scope(), models.MessageDeleted{
		MessageID: message.ID,
		Scope:     message.Scope(),
	})
	return message, nil
}

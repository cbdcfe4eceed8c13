package services

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/relay/pkg/internal/database"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ReactionAdded   = "added"
	ReactionRemoved = "removed"
)

type ToggleResult struct {
	State string `json:"state"`
	// Changed is false when a concurrent call already produced the state.
	Changed bool `json:"changed"`
}

func validateReaction(ctx context.Context, messageId uint, emoji string) (models.Message, error) {
	if len(emoji) == 0 || len(emoji) > 64 {
		return models.Message{}, ErrInvalidEmoji
	}
	message, err := GetMessage(ctx, messageId)
	if err != nil {
		if isRecordNotFound(err) {
			return message, ErrMessageNotFound
		}
		return message, err
	}
	return message, nil
}

func reactionQuery(tx *gorm.DB, messageId, userId uint, emoji string) *gorm.DB {
	return tx.Model(&models.Reaction{}).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageId, userId, emoji)
}

func reactionExists(tx *gorm.DB, messageId, userId uint, emoji string) (bool, error) {
	var count int64
	if err := reactionQuery(tx, messageId, userId, emoji).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ToggleReaction adds the tuple when absent and removes it when present.
// Two racing adds both report "added", the unique index keeps one row.
func ToggleReaction(ctx context.Context, messageId, userId uint, emoji string) (ToggleResult, error) {
	message, err := validateReaction(ctx, messageId, emoji)
	if err != nil {
		return ToggleResult{}, err
	}

	tx := database.C.WithContext(ctx)
	exists, err := reactionExists(tx, messageId, userId, emoji)
	if err != nil {
		return ToggleResult{}, err
	}

	var result ToggleResult
	if exists {
		result, err = removeReaction(tx, messageId, userId, emoji)
	} else {
		result, err = insertReaction(tx, messageId, userId, emoji)
	}
	if err != nil {
		return result, err
	}

	reactionToggles.WithLabelValues(result.State).Inc()
	announceReaction(ctx, message, userId, emoji)
	return result, nil
}

// SetReaction drives the tuple to the wanted existence. Unlike a toggle it
// is idempotent for the caller, which is what retries should use.
func SetReaction(ctx context.Context, messageId, userId uint, emoji string, present bool) (ToggleResult, error) {
	message, err := validateReaction(ctx, messageId, emoji)
	if err != nil {
		return ToggleResult{}, err
	}

	tx := database.C.WithContext(ctx)
	var result ToggleResult
	if present {
		result, err = insertReaction(tx, messageId, userId, emoji)
	} else {
		result, err = removeReaction(tx, messageId, userId, emoji)
	}
	if err != nil {
		return result, err
	}

	if result.Changed {
		reactionToggles.WithLabelValues(result.State).Inc()
		announceReaction(ctx, message, userId, emoji)
	}
	return result, nil
}

func insertReaction(tx *gorm.DB, messageId, userId uint, emoji string) (ToggleResult, error) {
	reaction := models.Reaction{MessageID: messageId, UserID: userId, Emoji: emoji}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reaction)
	if res.Error != nil {
		return ToggleResult{}, res.Error
	}
	return ToggleResult{State: ReactionAdded, Changed: res.RowsAffected > 0}, nil
}

func removeReaction(tx *gorm.DB, messageId, userId uint, emoji string) (ToggleResult, error) {
	res := tx.Where("message_id = ? AND user_id = ? AND emoji = ?", messageId, userId, emoji).
		Delete(&models.Reaction{})
	if res.Error != nil {
		return ToggleResult{}, res.Error
	}
	return ToggleResult{State: ReactionRemoved, Changed: res.RowsAffected > 0}, nil
}

// announceReaction broadcasts what the store holds now rather than what
// the caller asked for.
func announceReaction(ctx context.Context, message models.Message, userId uint, emoji string) {
	exists, err := reactionExists(database.C.WithContext(ctx), message.ID, userId, emoji)
	if err != nil {
		log.Warn().Err(err).
			Uint("message", message.ID).
			Uint("user", userId).
			Str("emoji", emoji).
			Msg("Unable to read back a reaction, skipped its broadcast...")
		return
	}
	Bus.Publish(ctx, message.Scope(), models.ReactionChanged{
		MessageID:  message.ID,
		UserID:     userId,
		Emoji:      emoji,
		Exists:     exists,
		ObservedAt: time.Now().UnixMicro(),
	})
}

// ListReactions groups the reactions of a message by emoji, in order of
// first use.
func ListReactions(ctx context.Context, messageId uint) ([]models.ReactionGroup, error) {
	var reactions []models.Reaction
	if err := database.C.WithContext(ctx).
		Where("message_id = ?", messageId).
		Order("id ASC").
		Find(&reactions).Error; err != nil {
		return nil, err
	}

	order := lo.Uniq(lo.Map(reactions, func(item models.Reaction, _ int) string {
		return item.Emoji
	}))
	grouped := lo.GroupBy(reactions, func(item models.Reaction) string {
		return item.Emoji
	})

	return lo.Map(order, func(emoji string, _ int) models.ReactionGroup {
		items := grouped[emoji]
		return models.ReactionGroup{
			Emoji: emoji,
			Count: len(items),
			Users: lo.Map(items, func(item models.Reaction, _ int) uint {
				return item.UserID
			}),
		}
	}), nil
}

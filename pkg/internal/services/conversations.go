package services

import (
	"context"
	"fmt"

	"git.solsynth.dev/hypernet/relay/pkg/internal/database"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

func GetConversation(id uint) (models.Conversation, error) {
	var conversation models.Conversation
	if err := database.C.Where("id = ?", id).
		Preload("Participants").
		First(&conversation).Error; err != nil {
		return conversation, err
	}
	return conversation, nil
}

// GetDirectConversation finds the two-party conversation between user and
// other inside a workspace.
func GetDirectConversation(workspaceId, user, other uint) (models.Conversation, error) {
	conversations := tableName(&models.Conversation{})
	participants := tableName(&models.ConversationParticipant{})
	counts := database.C.Model(&models.ConversationParticipant{}).
		Select("conversation_id").
		Group("conversation_id").
		Having("COUNT(*) = 2")

	var conversation models.Conversation
	if err := database.C.Preload("Participants").
		Where(fmt.Sprintf("%s.workspace_id = ?", conversations), workspaceId).
		Joins(fmt.Sprintf("JOIN %s p1 ON p1.conversation_id = %s.id AND p1.account_id = ?", participants, conversations), user).
		Joins(fmt.Sprintf("JOIN %s p2 ON p2.conversation_id = %s.id AND p2.account_id = ?", participants, conversations), other).
		Where(fmt.Sprintf("%s.id IN (?)", conversations), counts).
		First(&conversation).Error; err != nil {
		return conversation, err
	}
	return conversation, nil
}

// NewConversation creates a conversation among the given accounts, the
// creator always included.
func NewConversation(ctx context.Context, workspaceId, creator uint, others []uint) (models.Conversation, error) {
	accounts := lo.Uniq(append([]uint{creator}, others...))
	if len(accounts) < 2 {
		return models.Conversation{}, fmt.Errorf("a conversation needs at least two participants")
	}

	if len(accounts) == 2 {
		if existing, err := GetDirectConversation(workspaceId, accounts[0], accounts[1]); err == nil {
			return existing, nil
		}
	}

	conversation := models.Conversation{
		WorkspaceID: workspaceId,
		Participants: lo.Map(accounts, func(item uint, _ int) models.ConversationParticipant {
			return models.ConversationParticipant{AccountID: item}
		}),
	}
	if err := database.C.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&conversation).Error
	}); err != nil {
		return conversation, fmt.Errorf("unable to create conversation: %w", err)
	}

	scope := models.ConversationScope(conversation.ID)
	for _, account := range accounts {
		invalidateMembership(ctx, scope, account)
	}
	return conversation, nil
}

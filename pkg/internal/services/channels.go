package services

import (
	"context"
	"fmt"

	"git.solsynth.dev/hypernet/relay/pkg/internal/database"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

func GetChannel(id uint) (models.Channel, error) {
	var channel models.Channel
	if err := database.C.Where("id = ?", id).First(&channel).Error; err != nil {
		return channel, err
	}
	return channel, nil
}

// ListAvailableChannel returns the channels the user is a member of.
func ListAvailableChannel(userId uint, workspaceId ...uint) ([]models.Channel, error) {
	var channels []models.Channel
	var members []models.ChannelMember
	if err := database.C.Where(&models.ChannelMember{
		AccountID: userId,
	}).Find(&members).Error; err != nil {
		return channels, err
	}

	idx := lo.Map(members, func(item models.ChannelMember, index int) uint {
		return item.ChannelID
	})

	tx := database.C.Where("id IN ?", idx)
	if len(workspaceId) > 0 {
		tx = tx.Where("workspace_id = ?", workspaceId[0])
	}
	if err := tx.Find(&channels).Error; err != nil {
		return channels, err
	}
	return channels, nil
}

// NewChannel creates the channel and makes its creator an admin member in
// the same transaction.
func NewChannel(ctx context.Context, channel models.Channel, creator uint) (models.Channel, error) {
	err := database.C.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&channel).Error; err != nil {
			return err
		}
		return tx.Create(&models.ChannelMember{
			ChannelID:  channel.ID,
			AccountID:  creator,
			PowerLevel: models.PowerLevelAdmin,
		}).Error
	})
	if err != nil {
		return channel, fmt.Errorf("unable to create channel: %w", err)
	}
	invalidateMembership(ctx, models.ChannelScope(channel.ID), creator)
	return channel, nil
}

// DeleteChannel soft-deletes the channel. Its messages stay untouched so
// their sequences remain taken.
func DeleteChannel(ctx context.Context, channel models.Channel) error {
	var members []models.ChannelMember
	if err := database.C.WithContext(ctx).
		Where("channel_id = ?", channel.ID).
		Find(&members).Error; err != nil {
		return err
	}

	if err := database.C.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("channel_id = ?", channel.ID).Delete(&models.ChannelMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&channel).Error
	}); err != nil {
		return err
	}

	scope := models.ChannelScope(channel.ID)
	for _, member := range members {
		invalidateMembership(ctx, scope, member.AccountID)
		revokeSubscriptions(ctx, scope, member.AccountID)
	}
	return nil
}

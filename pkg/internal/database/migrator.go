package database

import (
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"gorm.io/gorm"
)

var AutoMaintainRange = []any{
	&models.Channel{},
	&models.ChannelMember{},
	&models.Conversation{},
	&models.ConversationParticipant{},
	&models.Message{},
	&models.Reaction{},
	&models.Document{},
}

func RunMigration(source *gorm.DB) error {
	if err := source.AutoMigrate(AutoMaintainRange...); err != nil {
		return err
	}

	return nil
}

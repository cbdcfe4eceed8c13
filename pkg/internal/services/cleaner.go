package services

import (
	"time"

	"git.solsynth.dev/hypernet/relay/pkg/internal/database"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/rs/zerolog/log"
)

// ReactionRetention is how long reactions outlive their deleted message.
var ReactionRetention = 7 * 24 * time.Hour

// DoAutoDatabaseCleanup drops reactions hanging on messages deleted before
// the retention window. Messages are never removed.
func DoAutoDatabaseCleanup() {
	deadline := time.Now().Add(-ReactionRetention)
	log.Debug().Time("deadline", deadline).Msg("Now cleaning up reactions of deleted messages...")

	deleted := database.C.Unscoped().
		Model(&models.Message{}).
		Select("id").
		Where("deleted_at IS NOT NULL AND deleted_at < ?", deadline)

	tx := database.C.Where("message_id IN (?)", deleted).Delete(&models.Reaction{})
	if tx.Error != nil {
		log.Error().Err(tx.Error).Msg("An error occurred when running database cleanup...")
		return
	}

	log.Debug().Int64("affected", tx.RowsAffected).Msg("Clean up reactions accomplished.")
}

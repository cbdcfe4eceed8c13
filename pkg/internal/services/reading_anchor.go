package services

import (
	"context"
	"fmt"
	"sync"

	"git.solsynth.dev/hypernet/relay/pkg/internal/database"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type readingAnchorKey struct {
	scope models.Scope
	user  uint
}

var (
	readingAnchorLock  sync.Mutex
	readingAnchorQueue = make(map[readingAnchorKey]int64)
)

// SetReadingAnchor queues the last read sequence of a user in a scope.
// Anchors only move forward; FlushReadingAnchor persists them.
func SetReadingAnchor(scope models.Scope, userId uint, sequence int64) error {
	if !scope.IsMessageScope() {
		return ErrInvalidScope
	}
	readingAnchorLock.Lock()
	defer readingAnchorLock.Unlock()

	key := readingAnchorKey{scope: scope, user: userId}
	readingAnchorQueue[key] = max(readingAnchorQueue[key], sequence)
	return nil
}

func FlushReadingAnchor() {
	readingAnchorLock.Lock()
	pending := readingAnchorQueue
	readingAnchorQueue = make(map[readingAnchorKey]int64)
	readingAnchorLock.Unlock()

	if len(pending) == 0 {
		return
	}

	for key, sequence := range pending {
		tx := database.C.Where("reading_anchor IS NULL OR reading_anchor < ?", sequence)
		switch key.scope.Type {
		case models.ScopeChannel:
			tx = tx.Model(&models.ChannelMember{}).
				Where("channel_id = ? AND account_id = ?", key.scope.ID, key.user)
		case models.ScopeConversation:
			tx = tx.Model(&models.ConversationParticipant{}).
				Where("conversation_id = ? AND account_id = ?", key.scope.ID, key.user)
		}
		if err := tx.Update("reading_anchor", sequence).Error; err != nil {
			log.Error().Err(err).Str("scope", key.scope.String()).Msg("An error occurred when flushing reading anchor...")
			// Put it back for the next round unless a newer one arrived.
			_ = SetReadingAnchor(key.scope, key.user, sequence)
		}
	}
	log.Debug().Int("count", len(pending)).Msg("Flushed reading anchors...")
}

type UnreadCount struct {
	Scope  models.Scope `json:"scope"`
	Unread int64        `json:"unread"`
}

// CountUnread reports, per channel and conversation of the user, how many
// messages of others came after the persisted anchor.
func CountUnread(ctx context.Context, userId uint) ([]UnreadCount, error) {
	type row struct {
		ScopeID uint
		Unread  int64
	}
	var out []UnreadCount

	messages := tableName(&models.Message{})
	for _, target := range []struct {
		kind   models.ScopeType
		column string
		table  string
	}{
		{models.ScopeChannel, "channel_id", tableName(&models.ChannelMember{})},
		{models.ScopeConversation, "conversation_id", tableName(&models.ConversationParticipant{})},
	} {
		var rows []row
		if err := database.C.WithContext(ctx).
			Table(messages).
			Select(fmt.Sprintf("%s.%s AS scope_id, COUNT(%s.id) AS unread", messages, target.column, messages)).
			Joins(fmt.Sprintf("JOIN %s ON %s.%s = %s.%s AND %s.account_id = ?", target.table, target.table, target.column, messages, target.column, target.table), userId).
			Where(fmt.Sprintf("%s.deleted_at IS NULL AND %s.author_id <> ?", messages, messages), userId).
			Where(fmt.Sprintf("%s.sequence > COALESCE(%s.reading_anchor, 0)", messages, target.table)).
			Group(fmt.Sprintf("%s.%s", messages, target.column)).
			Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, item := range rows {
			out = append(out, UnreadCount{Scope: models.Scope{Type: target.kind, ID: item.ScopeID}, Unread: item.Unread})
		}
	}

	return out, nil
}

// tableName resolves the table of a model through the naming strategy, so
// the configured prefix applies to raw joins too.
func tableName(model any) string {
	stmt := &gorm.Statement{DB: database.C}
	if err := stmt.Parse(model); err != nil {
		return ""
	}
	return stmt.Schema.Table
}

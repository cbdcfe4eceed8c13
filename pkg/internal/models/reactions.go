package models

import "time"

// Reaction rows are inserted and deleted by toggles only, never updated.
// The unique index on (message, user, emoji) is what keeps concurrent adds
// from producing duplicates.
type Reaction struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	MessageID uint   `json:"message_id" gorm:"uniqueIndex:idx_reactions_tuple,priority:1"`
	UserID    uint   `json:"user_id" gorm:"uniqueIndex:idx_reactions_tuple,priority:2"`
	Emoji     string `json:"emoji" gorm:"size:64;uniqueIndex:idx_reactions_tuple,priority:3"`
}

// ReactionGroup is the aggregated view of one emoji on a message.
type ReactionGroup struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
	Users []uint `json:"users"`
}

package models

import "time"

type Channel struct {
	BaseModel

	Name        string          `json:"name"`
	Description string          `json:"description"`
	WorkspaceID uint            `json:"workspace_id" gorm:"index"`
	Members     []ChannelMember `json:"members,omitempty"`
}

const (
	PowerLevelMember = 0
	PowerLevelAdmin  = 50
)

// ChannelMember is hard-deleted on removal so the (channel, account) pair
// can be re-added without tripping the unique index.
type ChannelMember struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ChannelID     uint   `json:"channel_id" gorm:"uniqueIndex:idx_channel_members_pair,priority:1"`
	AccountID     uint   `json:"account_id" gorm:"uniqueIndex:idx_channel_members_pair,priority:2;index"`
	PowerLevel    int    `json:"power_level"`
	ReadingAnchor *int64 `json:"reading_anchor"`
}

type Conversation struct {
	BaseModel

	WorkspaceID  uint                      `json:"workspace_id" gorm:"index"`
	Participants []ConversationParticipant `json:"participants,omitempty"`
}

type ConversationParticipant struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ConversationID uint   `json:"conversation_id" gorm:"uniqueIndex:idx_conversation_participants_pair,priority:1"`
	AccountID      uint   `json:"account_id" gorm:"uniqueIndex:idx_conversation_participants_pair,priority:2;index"`
	ReadingAnchor  *int64 `json:"reading_anchor"`
}

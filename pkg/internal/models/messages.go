package models

import "gorm.io/datatypes"

// Message is sequenced inside exactly one of a channel or a conversation.
// Soft-deleted rows keep their sequence numbers so they are never reused.
type Message struct {
	BaseModel

	ChannelID      *uint                       `json:"channel_id" gorm:"uniqueIndex:idx_messages_channel_sequence,priority:1"`
	ConversationID *uint                       `json:"conversation_id" gorm:"uniqueIndex:idx_messages_conversation_sequence,priority:1"`
	Sequence       int64                       `json:"sequence" gorm:"not null;uniqueIndex:idx_messages_channel_sequence,priority:2;uniqueIndex:idx_messages_conversation_sequence,priority:2"`
	ParentID       *uint                       `json:"parent_id" gorm:"uniqueIndex:idx_messages_thread_sequence,priority:1"`
	ThreadSequence *int64                      `json:"thread_sequence" gorm:"uniqueIndex:idx_messages_thread_sequence,priority:2"`
	ReplyCount     int                         `json:"reply_count" gorm:"not null;default:0"`
	AuthorID       uint                        `json:"author_id" gorm:"index"`
	Content        string                      `json:"content"`
	Attachments    datatypes.JSONSlice[string] `json:"attachments"`
}

func (v Message) Scope() Scope {
	if v.ChannelID != nil {
		return ChannelScope(*v.ChannelID)
	}
	if v.ConversationID != nil {
		return ConversationScope(*v.ConversationID)
	}
	return Scope{}
}

func (v Message) IsReply() bool {
	return v.ParentID != nil
}

package models

import (
	"fmt"
	"time"
)

type DocumentKind = string

const (
	DocumentKindChannel  = DocumentKind("channel")
	DocumentKindPersonal = DocumentKind("personal")
)

// Document backs channel notes and personal notes. Version 0 is never
// stored: it stands for "no document yet".
type Document struct {
	Key         string    `json:"key" gorm:"column:doc_key;primaryKey;size:128"`
	Kind        string    `json:"kind" gorm:"size:16"`
	ChannelID   *uint     `json:"channel_id" gorm:"index"`
	UserID      *uint     `json:"user_id" gorm:"index:idx_documents_owner,priority:1"`
	WorkspaceID *uint     `json:"workspace_id" gorm:"index:idx_documents_owner,priority:2"`
	Content     string    `json:"content"`
	Version     int64     `json:"version" gorm:"not null"`
	UpdatedBy   uint      `json:"updated_by"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type DocumentKey struct {
	Kind        DocumentKind
	ChannelID   uint
	UserID      uint
	WorkspaceID uint
}

// Document builds the first version of the document at this key.
func (v DocumentKey) Document() Document {
	document := Document{Key: v.String(), Kind: v.Kind}
	if v.Kind == DocumentKindPersonal {
		document.UserID = &v.UserID
		document.WorkspaceID = &v.WorkspaceID
	} else {
		document.ChannelID = &v.ChannelID
	}
	return document
}

func ChannelNoteKey(channelId uint) DocumentKey {
	return DocumentKey{Kind: DocumentKindChannel, ChannelID: channelId}
}

func PersonalNoteKey(userId, workspaceId uint) DocumentKey {
	return DocumentKey{Kind: DocumentKindPersonal, UserID: userId, WorkspaceID: workspaceId}
}

func (v DocumentKey) String() string {
	if v.Kind == DocumentKindPersonal {
		return fmt.Sprintf("personal:%d:%d", v.UserID, v.WorkspaceID)
	}
	return fmt.Sprintf("channel:%d", v.ChannelID)
}

// Scope is where updates of the document are announced. Personal notes
// only reach the owner's other sessions.
func (v DocumentKey) Scope() Scope {
	if v.Kind == DocumentKindPersonal {
		return UserScope(v.UserID)
	}
	return ChannelScope(v.ChannelID)
}

package models

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

type EventKind = string

const (
	EventMessageNew        = EventKind("message:new")
	EventMessageDeleted    = EventKind("message:deleted")
	EventReplyCountChanged = EventKind("message:replyCountChanged")
	EventReactionChanged   = EventKind("reaction:changed")
	EventTypingStart       = EventKind("typing:start")
	EventTypingStop        = EventKind("typing:stop")
	EventDocumentUpdated   = EventKind("document:updated")
)

// Event is the closed set of state changes the broadcaster fans out.
// Only types in this file implement it.
type Event interface {
	Kind() EventKind
	sealed()
}

type MessageNew struct {
	Message Message `json:"message"`
}

type MessageDeleted struct {
	MessageID uint  `json:"message_id"`
	Scope     Scope `json:"scope"`
}

type ReplyCountChanged struct {
	ParentID uint `json:"parent_id"`
	NewCount int  `json:"new_count"`
}

// ReactionChanged carries the resulting existence of the tuple rather than
// the toggle direction, so applying it twice is harmless. ObservedAt lets a
// receiver keep the newest view when deliveries arrive out of order.
type ReactionChanged struct {
	MessageID  uint   `json:"message_id"`
	UserID     uint   `json:"user_id"`
	Emoji      string `json:"emoji"`
	Exists     bool   `json:"exists"`
	ObservedAt int64  `json:"observed_at"`
}

type TypingStart struct {
	TargetType ScopeType `json:"target_type"`
	TargetID   uint      `json:"target_id"`
	UserID     uint      `json:"user_id"`
}

type TypingStop struct {
	TargetType ScopeType `json:"target_type"`
	TargetID   uint      `json:"target_id"`
	UserID     uint      `json:"user_id"`
}

type DocumentUpdated struct {
	Key       string `json:"key"`
	Version   int64  `json:"version"`
	UpdatedBy uint   `json:"updated_by"`
}

func (MessageNew) Kind() EventKind        { return EventMessageNew }
func (MessageDeleted) Kind() EventKind    { return EventMessageDeleted }
func (ReplyCountChanged) Kind() EventKind { return EventReplyCountChanged }
func (ReactionChanged) Kind() EventKind   { return EventReactionChanged }
func (TypingStart) Kind() EventKind       { return EventTypingStart }
func (TypingStop) Kind() EventKind        { return EventTypingStop }
func (DocumentUpdated) Kind() EventKind   { return EventDocumentUpdated }

func (MessageNew) sealed()        {}
func (MessageDeleted) sealed()    {}
func (ReplyCountChanged) sealed() {}
func (ReactionChanged) sealed()   {}
func (TypingStart) sealed()       {}
func (TypingStop) sealed()        {}
func (DocumentUpdated) sealed()   {}

// DecodeEvent turns a kind and its JSON payload back into a typed event.
func DecodeEvent(kind EventKind, raw []byte) (Event, error) {
	var out Event
	var err error
	switch kind {
	case EventMessageNew:
		var v MessageNew
		err = jsoniter.Unmarshal(raw, &v)
		out = v
	case EventMessageDeleted:
		var v MessageDeleted
		err = jsoniter.Unmarshal(raw, &v)
		out = v
	case EventReplyCountChanged:
		var v ReplyCountChanged
		err = jsoniter.Unmarshal(raw, &v)
		out = v
	case EventReactionChanged:
		var v ReactionChanged
		err = jsoniter.Unmarshal(raw, &v)
		out = v
	case EventTypingStart:
		var v TypingStart
		err = jsoniter.Unmarshal(raw, &v)
		out = v
	case EventTypingStop:
		var v TypingStop
		err = jsoniter.Unmarshal(raw, &v)
		out = v
	case EventDocumentUpdated:
		var v DocumentUpdated
		err = jsoniter.Unmarshal(raw, &v)
		out = v
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s payload: %v", kind, err)
	}
	return out, nil
}

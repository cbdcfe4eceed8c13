package models

import (
	"fmt"
	"strconv"
	"strings"
)

type ScopeType = string

const (
	ScopeChannel      = ScopeType("channel")
	ScopeConversation = ScopeType("conversation")
	ScopeUser         = ScopeType("user")
)

// Scope identifies a fan-out target. Channels and conversations are also
// the units within which message sequences are unique.
type Scope struct {
	Type ScopeType `json:"type"`
	ID   uint      `json:"id"`
}

func ChannelScope(id uint) Scope      { return Scope{Type: ScopeChannel, ID: id} }
func ConversationScope(id uint) Scope { return Scope{Type: ScopeConversation, ID: id} }
func UserScope(id uint) Scope         { return Scope{Type: ScopeUser, ID: id} }

func (v Scope) String() string {
	return fmt.Sprintf("%s:%d", v.Type, v.ID)
}

// IsMessageScope reports whether messages can be sequenced in the scope.
func (v Scope) IsMessageScope() bool {
	return v.ID > 0 && (v.Type == ScopeChannel || v.Type == ScopeConversation)
}

func ParseScope(raw string) (Scope, error) {
	kind, id, ok := strings.Cut(raw, ":")
	if !ok {
		return Scope{}, fmt.Errorf("malformed scope %q", raw)
	}
	switch kind {
	case ScopeChannel, ScopeConversation, ScopeUser:
	default:
		return Scope{}, fmt.Errorf("unknown scope type %q", kind)
	}
	num, err := strconv.ParseUint(id, 10, 64)
	if err != nil || num == 0 {
		return Scope{}, fmt.Errorf("malformed scope id %q", id)
	}
	return Scope{Type: kind, ID: uint(num)}, nil
}

package services

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrSequencingFailed means the sequencer gave up after its bounded
	// retries. The message was not stored.
	ErrSequencingFailed = errors.New("message sequencing failed")
	ErrParentNotFound   = errors.New("thread parent not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrInvalidScope     = errors.New("scope must be exactly one channel or conversation")
	ErrEmptyMessage     = errors.New("empty message was not allowed")
	ErrInvalidEmoji     = errors.New("emoji must be between 1 and 64 bytes")
	ErrInvalidVersion   = errors.New("base version must not be negative")
	ErrNotMessageAuthor = errors.New("only the author or a channel admin can do that")
	ErrTypingThrottled  = errors.New("typing updates are sent too fast")
	ErrSessionClosed    = errors.New("session closed")
	ErrSessionBusy      = errors.New("session outbox is full")

	ErrUnauthorized               = errors.New("unauthorized")
	ErrNotChannelMember           = errors.New("not a channel member")
	ErrNotConversationParticipant = errors.New("not a conversation participant")
	ErrNotDocumentOwner           = errors.New("not the owner of the document")
)

// UnauthorizedError reports which kind of target refused the caller so the
// client can tell "not a channel member" from "not a conversation
// participant". It matches ErrUnauthorized and the target specific sentinel.
type UnauthorizedError struct {
	UserID uint
	Target models.Scope
}

func (v *UnauthorizedError) Error() string {
	return fmt.Sprintf("user %d: %v (%s)", v.UserID, v.reason(), v.Target)
}

func (v *UnauthorizedError) reason() error {
	switch v.Target.Type {
	case models.ScopeChannel:
		return ErrNotChannelMember
	case models.ScopeConversation:
		return ErrNotConversationParticipant
	default:
		return ErrNotDocumentOwner
	}
}

func (v *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized || target == v.reason()
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// SQLite drivers without error translation only expose the message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isTransientStoreError matches failures worth repeating a whole
// transaction for: dropped connections, serialization failures and lock
// timeouts.
func isTransientStoreError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "55P03":
			return true
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		}
	}
	return strings.Contains(err.Error(), "database is locked")
}

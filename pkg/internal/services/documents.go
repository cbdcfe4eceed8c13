package services

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/relay/pkg/internal/database"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocumentSnapshot struct {
	Content string `json:"content"`
	Version int64  `json:"version"`
}

// DocumentConflict describes the row that beat the caller. It is a result,
// not an error, so the caller can choose to keep either side.
type DocumentConflict struct {
	ServerContent string `json:"server_content"`
	ServerVersion int64  `json:"server_version"`
	EditedBy      uint   `json:"edited_by"`
}

type WriteResult struct {
	Version  int64             `json:"version"`
	Conflict *DocumentConflict `json:"conflict,omitempty"`
}

// AuthorizeDocument checks whether the user may read or write the note.
func AuthorizeDocument(ctx context.Context, key models.DocumentKey, userId uint) error {
	switch key.Kind {
	case models.DocumentKindChannel:
		return Authorize(ctx, Oracle, userId, models.ChannelScope(key.ChannelID))
	case models.DocumentKindPersonal:
		if key.UserID != userId {
			return &UnauthorizedError{UserID: userId, Target: key.Scope()}
		}
		return nil
	default:
		return ErrInvalidScope
	}
}

// ReadDocument returns an empty snapshot at version 0 for a missing note.
func ReadDocument(ctx context.Context, key models.DocumentKey) (DocumentSnapshot, error) {
	var document models.Document
	if err := database.C.WithContext(ctx).
		Where("doc_key = ?", key.String()).
		First(&document).Error; err != nil {
		if isRecordNotFound(err) {
			return DocumentSnapshot{}, nil
		}
		return DocumentSnapshot{}, err
	}
	return DocumentSnapshot{Content: document.Content, Version: document.Version}, nil
}

// WriteDocument stores content on top of baseVersion and announces the new
// version. A stale baseVersion yields a conflict.
func WriteDocument(ctx context.Context, key models.DocumentKey, content string, baseVersion int64, writer uint) (WriteResult, error) {
	if err := AuthorizeDocument(ctx, key, writer); err != nil {
		return WriteResult{}, err
	}

	result, err := CompareAndSwapDocument(ctx, key, baseVersion, content, writer)
	if err != nil {
		return result, err
	}
	if result.Conflict != nil {
		documentWrites.WithLabelValues("conflict").Inc()
		return result, nil
	}

	documentWrites.WithLabelValues("ok").Inc()
	Bus.Publish(ctx, key.Scope(), models.DocumentUpdated{
		Key:       key.String(),
		Version:   result.Version,
		UpdatedBy: writer,
	})
	return result, nil
}

// CompareAndSwapDocument replaces the document only when its stored version
// equals expected. Expected 0 means the document must not exist yet.
func CompareAndSwapDocument(ctx context.Context, key models.DocumentKey, expected int64, content string, writer uint) (WriteResult, error) {
	if expected < 0 {
		return WriteResult{}, ErrInvalidVersion
	}

	tx := database.C.WithContext(ctx)
	var affected int64
	if expected == 0 {
		document := key.Document()
		document.Content = content
		document.Version = 1
		document.UpdatedBy = writer
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&document)
		if res.Error != nil {
			return WriteResult{}, res.Error
		}
		affected = res.RowsAffected
	} else {
		res := tx.Model(&models.Document{}).
			Where("doc_key = ? AND version = ?", key.String(), expected).
			Updates(map[string]any{
				"content":    content,
				"version":    gorm.Expr("version + ?", 1),
				"updated_by": writer,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return WriteResult{}, res.Error
		}
		affected = res.RowsAffected
	}

	if affected > 0 {
		return WriteResult{Version: expected + 1}, nil
	}

	var current models.Document
	if err := tx.Where("doc_key = ?", key.String()).First(&current).Error; err != nil {
		if !isRecordNotFound(err) {
			return WriteResult{}, err
		}
		// Updating a note nobody created: the server side is version 0.
		current = models.Document{}
	}
	log.Debug().
		Str("key", key.String()).
		Int64("expected", expected).
		Int64("actual", current.Version).
		Msg("Rejected a stale document write...")
	return WriteResult{
		Version: current.Version,
		Conflict: &DocumentConflict{
			ServerContent: current.Content,
			ServerVersion: current.Version,
			EditedBy:      current.UpdatedBy,
		},
	}, nil
}

package services

import (
	"context"
	"fmt"

	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/samber/lo"
)

type typingCommandPayload struct {
	TargetType models.ScopeType `json:"target_type"`
	TargetID   uint             `json:"target_id"`
}

type scopeCommandPayload struct {
	Scope string `json:"scope"`
}

// DealCommand runs one client command on behalf of the connection and
// returns the reply packet, nil means nothing to reply.
func DealCommand(ctx context.Context, conn *Connection, task models.UnifiedCommand) *models.UnifiedCommand {
	switch task.Action {
	case "ping":
		return &models.UnifiedCommand{Action: "pong"}
	case "typing.start":
		var req typingCommandPayload
		if err := models.FitStruct(task.Payload, &req); err != nil {
			return lo.ToPtr(models.UnifiedCommandFromError(err))
		}
		target := models.Scope{Type: req.TargetType, ID: req.TargetID}
		if err := Typing.Start(ctx, conn.ID(), target, conn.UserID()); err != nil {
			return lo.ToPtr(models.UnifiedCommandFromError(err))
		}
		return nil
	case "typing.stop":
		if err := Typing.Stop(ctx, conn.ID()); err != nil {
			return lo.ToPtr(models.UnifiedCommandFromError(err))
		}
		return nil
	case "subscribe", "unsubscribe":
		var req scopeCommandPayload
		if err := models.FitStruct(task.Payload, &req); err != nil {
			return lo.ToPtr(models.UnifiedCommandFromError(err))
		}
		scope, err := models.ParseScope(req.Scope)
		if err != nil {
			return lo.ToPtr(models.UnifiedCommandFromError(err))
		}
		if task.Action == "unsubscribe" {
			LocalHub.Unsubscribe(scope, conn.ID())
		} else {
			if err := Authorize(ctx, Oracle, conn.UserID(), scope); err != nil {
				return lo.ToPtr(models.UnifiedCommandFromError(err))
			}
			LocalHub.Subscribe(scope, conn)
		}
		return &models.UnifiedCommand{Action: task.Action + "d", Payload: scope}
	default:
		return &models.UnifiedCommand{
			Action:  "error",
			Message: fmt.Sprintf("command %q not found", task.Action),
		}
	}
}

package api

import (
	"git.solsynth.dev/hypernet/relay/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"git.solsynth.dev/hypernet/relay/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

func getWhatsNew(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}

	counts, err := services.CountUnread(c.UserContext(), exts.GetUserID(c))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"count": lo.SumBy(counts, func(item services.UnreadCount) int64 { return item.Unread }),
		"data":  counts,
	})
}

func markRead(c *fiber.Ctx, scope models.Scope) error {
	var data struct {
		Sequence int64 `json:"sequence" validate:"required,min=1"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	if err := services.SetReadingAnchor(scope, exts.GetUserID(c), data.Sequence); err != nil {
		return exts.MapError(err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func markChannelRead(c *fiber.Ctx) error {
	scope, err := authorizedScope(c, models.ScopeChannel, "channelId")
	if err != nil {
		return err
	}
	return markRead(c, scope)
}

func markConversationRead(c *fiber.Ctx) error {
	scope, err := authorizedScope(c, models.ScopeConversation, "conversationId")
	if err != nil {
		return err
	}
	return markRead(c, scope)
}

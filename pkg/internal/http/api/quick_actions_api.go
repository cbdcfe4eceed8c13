package api

import (
	"fmt"

	"git.solsynth.dev/hypernet/relay/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/relay/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

// quickReply posts a thread reply from a notification action. The reply
// token stands in for the session and pins the parent message.
func quickReply(c *fiber.Ctx) error {
	replyTk := c.Query("replyToken")
	if len(replyTk) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "reply token is required")
	}

	claims, err := services.ParseReplyToken(replyTk)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("reply token is invalid: %v", err))
	}

	var data struct {
		Content string `json:"content" validate:"required,max=4096"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	parent, err := services.GetMessage(c.UserContext(), claims.MessageID)
	if err != nil {
		return exts.MapError(services.ErrParentNotFound)
	}
	if err := services.Authorize(c.UserContext(), services.Oracle, claims.UserID, parent.Scope()); err != nil {
		return exts.MapError(err)
	}

	message, err := services.AppendMessage(c.UserContext(), services.MessageDraft{
		Scope:    parent.Scope(),
		AuthorID: claims.UserID,
		Content:  data.Content,
		ParentID: &parent.ID,
	})
	if err != nil {
		return exts.MapError(err)
	}
	return c.JSON(message)
}

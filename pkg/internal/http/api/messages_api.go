package api

import (
	"git.solsynth.dev/hypernet/relay/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"git.solsynth.dev/hypernet/relay/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

type messageRequest struct {
	Content     string   `json:"content" validate:"max=4096"`
	Attachments []string `json:"attachments" validate:"max=16"`
	ParentID    *uint    `json:"parent_id"`
}

// authorizedScope resolves the scope from the route and checks the caller
// against it.
func authorizedScope(c *fiber.Ctx, kind models.ScopeType, param string) (models.Scope, error) {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return models.Scope{}, err
	}
	id, err := c.ParamsInt(param, 0)
	if err != nil || id <= 0 {
		return models.Scope{}, fiber.NewError(fiber.StatusBadRequest, "invalid "+param)
	}
	scope := models.Scope{Type: kind, ID: uint(id)}
	if err := services.Authorize(c.UserContext(), services.Oracle, exts.GetUserID(c), scope); err != nil {
		return scope, exts.MapError(err)
	}
	return scope, nil
}

func listMessages(c *fiber.Ctx, scope models.Scope) error {
	after := c.QueryInt("after", 0)
	take := c.QueryInt("take", 50)

	messages, err := services.ListMessages(c.UserContext(), scope, int64(after), take)
	if err != nil {
		return exts.MapError(err)
	}
	return c.JSON(messages)
}

func newMessage(c *fiber.Ctx, scope models.Scope) error {
	var data messageRequest
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	message, err := services.AppendMessage(c.UserContext(), services.MessageDraft{
		Scope:       scope,
		AuthorID:    exts.GetUserID(c),
		Content:     data.Content,
		Attachments: data.Attachments,
		ParentID:    data.ParentID,
	})
	if err != nil {
		return exts.MapError(err)
	}
	return c.JSON(message)
}

func listChannelMessages(c *fiber.Ctx) error {
	scope, err := authorizedScope(c, models.ScopeChannel, "channelId")
	if err != nil {
		return err
	}
	return listMessages(c, scope)
}

func newChannelMessage(c *fiber.Ctx) error {
	scope, err := authorizedScope(c, models.ScopeChannel, "channelId")
	if err != nil {
		return err
	}
	return newMessage(c, scope)
}

func listConversationMessages(c *fiber.Ctx) error {
	scope, err := authorizedScope(c, models.ScopeConversation, "conversationId")
	if err != nil {
		return err
	}
	return listMessages(c, scope)
}

func newConversationMessage(c *fiber.Ctx) error {
	scope, err := authorizedScope(c, models.ScopeConversation, "conversationId")
	if err != nil {
		return err
	}
	return newMessage(c, scope)
}

// visibleMessage loads a message the caller may see.
func visibleMessage(c *fiber.Ctx) (models.Message, error) {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return models.Message{}, err
	}
	messageId, _ := c.ParamsInt("messageId", 0)

	message, err := services.GetMessage(c.UserContext(), uint(messageId))
	if err != nil {
		return message, exts.MapError(err)
	}
	if err := services.Authorize(c.UserContext(), services.Oracle, exts.GetUserID(c), message.Scope()); err != nil {
		return message, exts.MapError(err)
	}
	return message, nil
}

func listReplies(c *fiber.Ctx) error {
	message, err := visibleMessage(c)
	if err != nil {
		return err
	}

	after := c.QueryInt("after", 0)
	take := c.QueryInt("take", 50)
	replies, err := services.ListReplies(c.UserContext(), message.ID, int64(after), take)
	if err != nil {
		return exts.MapError(err)
	}
	return c.JSON(replies)
}

func deleteMessage(c *fiber.Ctx) error {
	message, err := visibleMessage(c)
	if err != nil {
		return err
	}

	if _, err := services.DeleteMessage(c.UserContext(), message.ID, exts.GetUserID(c)); err != nil {
		return exts.MapError(err)
	}
	return c.SendStatus(fiber.StatusOK)
}

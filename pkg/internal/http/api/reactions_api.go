package api

import (
	"git.solsynth.dev/hypernet/relay/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/relay/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

func listReactions(c *fiber.Ctx) error {
	message, err := visibleMessage(c)
	if err != nil {
		return err
	}

	groups, err := services.ListReactions(c.UserContext(), message.ID)
	if err != nil {
		return exts.MapError(err)
	}
	return c.JSON(groups)
}

func toggleReaction(c *fiber.Ctx) error {
	message, err := visibleMessage(c)
	if err != nil {
		return err
	}

	var data struct {
		Emoji string `json:"emoji" validate:"required,max=64"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	result, err := services.ToggleReaction(c.UserContext(), message.ID, exts.GetUserID(c), data.Emoji)
	if err != nil {
		return exts.MapError(err)
	}
	return c.JSON(result)
}

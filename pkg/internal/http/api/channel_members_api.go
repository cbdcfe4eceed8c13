package api

import (
	"git.solsynth.dev/hypernet/relay/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"git.solsynth.dev/hypernet/relay/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

func requireChannelAdmin(c *fiber.Ctx, channelId uint) error {
	user := exts.GetUserID(c)
	if member, err := services.GetChannelMember(user, channelId); err != nil {
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	} else if member.PowerLevel < models.PowerLevelAdmin {
		return fiber.NewError(fiber.StatusForbidden, "you must be a moderator of a channel to manage its members")
	}
	return nil
}

func addChannelMember(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	channelId, _ := c.ParamsInt("channelId", 0)

	var data struct {
		AccountID  uint `json:"account_id" validate:"required"`
		PowerLevel int  `json:"power_level" validate:"min=0,max=100"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	if _, err := services.GetChannel(uint(channelId)); err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err := requireChannelAdmin(c, uint(channelId)); err != nil {
		return err
	}

	member, err := services.AddChannelMember(c.UserContext(), uint(channelId), data.AccountID, data.PowerLevel)
	if err != nil {
		return exts.MapError(err)
	}
	return c.JSON(member)
}

// removeChannelMember lets admins kick anyone and members leave by
// removing themselves.
func removeChannelMember(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	user := exts.GetUserID(c)
	channelId, _ := c.ParamsInt("channelId", 0)
	accountId, _ := c.ParamsInt("accountId", 0)

	if uint(accountId) != user {
		if err := requireChannelAdmin(c, uint(channelId)); err != nil {
			return err
		}
	}

	if err := services.RemoveChannelMember(c.UserContext(), uint(channelId), uint(accountId)); err != nil {
		return exts.MapError(err)
	}
	return c.SendStatus(fiber.StatusOK)
}

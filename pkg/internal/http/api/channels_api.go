package api

import (
	"git.solsynth.dev/hypernet/relay/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"git.solsynth.dev/hypernet/relay/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

func listAvailableChannel(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}

	var workspace []uint
	if id := c.QueryInt("workspace", 0); id > 0 {
		workspace = append(workspace, uint(id))
	}

	channels, err := services.ListAvailableChannel(exts.GetUserID(c), workspace...)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(channels)
}

func createChannel(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}

	var data struct {
		Name        string `json:"name" validate:"required,max=64"`
		Description string `json:"description" validate:"max=4096"`
		WorkspaceID uint   `json:"workspace_id" validate:"required"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	channel, err := services.NewChannel(c.UserContext(), models.Channel{
		Name:        data.Name,
		Description: data.Description,
		WorkspaceID: data.WorkspaceID,
	}, exts.GetUserID(c))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(channel)
}

func deleteChannel(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	channelId, _ := c.ParamsInt("channelId", 0)

	channel, err := services.GetChannel(uint(channelId))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err := requireChannelAdmin(c, channel.ID); err != nil {
		return err
	}

	if err := services.DeleteChannel(c.UserContext(), channel); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.SendStatus(fiber.StatusOK)
}

func createConversation(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}

	var data struct {
		WorkspaceID  uint   `json:"workspace_id" validate:"required"`
		Participants []uint `json:"participants" validate:"required,min=1"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	conversation, err := services.NewConversation(c.UserContext(), data.WorkspaceID, exts.GetUserID(c), data.Participants)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(conversation)
}

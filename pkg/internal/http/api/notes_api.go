package api

import (
	"git.solsynth.dev/hypernet/relay/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"git.solsynth.dev/hypernet/relay/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

func readNote(c *fiber.Ctx, key models.DocumentKey) error {
	if err := services.AuthorizeDocument(c.UserContext(), key, exts.GetUserID(c)); err != nil {
		return exts.MapError(err)
	}

	snapshot, err := services.ReadDocument(c.UserContext(), key)
	if err != nil {
		return exts.MapError(err)
	}
	return c.JSON(snapshot)
}

// writeNote answers a stale base version with 409 and the server side of
// the conflict, so the client can offer to keep either.
func writeNote(c *fiber.Ctx, key models.DocumentKey) error {
	var data struct {
		Content     string `json:"content" validate:"max=65536"`
		BaseVersion int64  `json:"base_version" validate:"min=0"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	result, err := services.WriteDocument(c.UserContext(), key, data.Content, data.BaseVersion, exts.GetUserID(c))
	if err != nil {
		return exts.MapError(err)
	}
	if result.Conflict != nil {
		return c.Status(fiber.StatusConflict).JSON(result.Conflict)
	}
	return c.JSON(result)
}

func channelNoteKey(c *fiber.Ctx) (models.DocumentKey, error) {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return models.DocumentKey{}, err
	}
	channelId, err := c.ParamsInt("channelId", 0)
	if err != nil || channelId <= 0 {
		return models.DocumentKey{}, fiber.NewError(fiber.StatusBadRequest, "invalid channelId")
	}
	return models.ChannelNoteKey(uint(channelId)), nil
}

func personalNoteKey(c *fiber.Ctx) (models.DocumentKey, error) {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return models.DocumentKey{}, err
	}
	workspaceId, err := c.ParamsInt("workspaceId", 0)
	if err != nil || workspaceId <= 0 {
		return models.DocumentKey{}, fiber.NewError(fiber.StatusBadRequest, "invalid workspaceId")
	}
	return models.PersonalNoteKey(exts.GetUserID(c), uint(workspaceId)), nil
}

func getChannelNote(c *fiber.Ctx) error {
	key, err := channelNoteKey(c)
	if err != nil {
		return err
	}
	return readNote(c, key)
}

func putChannelNote(c *fiber.Ctx) error {
	key, err := channelNoteKey(c)
	if err != nil {
		return err
	}
	return writeNote(c, key)
}

func getPersonalNote(c *fiber.Ctx) error {
	key, err := personalNoteKey(c)
	if err != nil {
		return err
	}
	return readNote(c, key)
}

func putPersonalNote(c *fiber.Ctx) error {
	key, err := personalNoteKey(c)
	if err != nil {
		return err
	}
	return writeNote(c, key)
}

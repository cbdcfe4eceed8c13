package exts

import (
	"strings"

	"git.solsynth.dev/hypernet/relay/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware resolves the caller from a bearer token or the tk query
// parameter, which browsers use for websocket upgrades. Requests without a
// token pass through anonymous.
func AuthMiddleware(c *fiber.Ctx) error {
	tk := c.Query("tk")
	if header := c.Get(fiber.HeaderAuthorization); len(header) > 0 {
		tk = strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	}
	if len(tk) == 0 {
		return c.Next()
	}

	userId, err := services.ParseAccessToken(tk)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}
	c.Locals("user", userId)
	return c.Next()
}

func EnsureAuthenticated(c *fiber.Ctx) error {
	if _, ok := c.Locals("user").(uint); !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "you must sign in first")
	}
	return nil
}

// GetUserID returns the authenticated caller, zero when anonymous.
func GetUserID(c *fiber.Ctx) uint {
	userId, _ := c.Locals("user").(uint)
	return userId
}

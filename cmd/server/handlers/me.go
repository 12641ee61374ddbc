package handlers

import (
	"wash-sync/cmd/server/ctxkeys"

	"github.com/gofiber/fiber/v2"
)

// Me returns the authenticated user's id and role as seen by the server.
func Me(c *fiber.Ctx) error {
	userID := c.Locals(ctxkeys.UserIDKey).(string)
	role := c.Locals(ctxkeys.UserRoleKey).(string)
	return c.JSON(fiber.Map{
		"uid":  userID,
		"role": role,
	})
}

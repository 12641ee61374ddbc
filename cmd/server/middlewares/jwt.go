package middlewares

import (
	"wash-sync/cmd/server/ctxkeys"
	"wash-sync/cmd/server/handlers/httperr"
	"wash-sync/internal/config"
	"wash-sync/internal/services/watch"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWT returns a configured Fiber middleware that:
//
//   - validates the Bearer token signature using cfg.JWTSecret
//   - makes sure the token carries "user_id" and "role" claims and that the
//     role is one the subsystem knows
//   - stores those values in ctx.Locals so downstream handlers can trust them.
//
// On any problem it bubbles up a 401 via the global httperr handler.
func JWT(cfg config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		SuccessHandler: func(c *fiber.Ctx) error {
			// Token already verified at this point.
			token := c.Locals("user").(*jwt.Token)
			claims, _ := token.Claims.(jwt.MapClaims)

			userID, ok := claims["user_id"].(string)
			if !ok || userID == "" {
				return httperr.Fail(httperr.E{Status: 401, Message: "Invalid token: missing user_id"})
			}

			roleStr, ok := claims["role"].(string)
			if !ok || roleStr == "" {
				return httperr.Fail(httperr.E{Status: 401, Message: "Invalid token: missing role"})
			}
			if _, err := watch.ParseRole(roleStr); err != nil {
				return httperr.Fail(httperr.E{Status: 401, Message: "Invalid token: unknown role"})
			}

			c.Locals(ctxkeys.UserIDKey, userID)
			c.Locals(ctxkeys.UserRoleKey, roleStr)
			return c.Next()
		},

		// Override the default "unauthorized" JSON to match the project style
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return httperr.Fail(httperr.ErrUnauthorized)
		},
	})
}

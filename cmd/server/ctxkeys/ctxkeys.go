// Package ctxkeys holds the fiber.Ctx Locals keys shared between the HTTP
// middlewares and the WebSocket handlers.
package ctxkeys

const (
	UserIDKey    = "userID"
	UserRoleKey  = "userRole"
	ParentCtxKey = "parentCtx"
)

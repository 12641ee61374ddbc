package handlerutil

import (
	"errors"

	"wash-sync/cmd/server/ctxkeys"
	"wash-sync/cmd/server/handlers/httperr"
	"wash-sync/internal/logger"
	"wash-sync/internal/services/watch"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func NotFoundError(err error) error {
	return httperr.Fail(httperr.E{
		Status:  404,
		Message: err.Error(),
	})
}

// GetUserID extracts user ID from fiber context
func GetUserID(c *fiber.Ctx) (bson.ObjectID, error) {
	userIDStr, ok := c.Locals(ctxkeys.UserIDKey).(string)
	if !ok {
		logger.L().Error("user ID not found in context", "handler", "getUserID", "path", c.Path())
		return bson.ObjectID{}, httperr.Fail(httperr.ErrUnauthorized)
	}

	userID, err := bson.ObjectIDFromHex(userIDStr)
	if err != nil {
		logger.L().Error("invalid user ID", "handler", "getUserID", "userIDStr", userIDStr, "path", c.Path(), "error", err)
		return bson.ObjectID{}, httperr.Fail(httperr.ErrUnauthorized)
	}

	return userID, nil
}

// GetRole extracts the validated role claim from fiber context
func GetRole(c *fiber.Ctx) (watch.Role, error) {
	roleStr, ok := c.Locals(ctxkeys.UserRoleKey).(string)
	if !ok {
		logger.L().Error("role not found in context", "handler", "getRole", "path", c.Path())
		return "", httperr.Fail(httperr.ErrUnauthorized)
	}

	role, err := watch.ParseRole(roleStr)
	if err != nil {
		logger.L().Error("invalid role", "handler", "getRole", "role", roleStr, "path", c.Path(), "error", err)
		return "", httperr.Fail(httperr.ErrUnauthorized)
	}

	return role, nil
}

// ParseAndValidateBody parses request body and validates it
func ParseAndValidateBody(c *fiber.Ctx, req any, validator *validator.Validate, handlerName string) error {
	userID, _ := GetUserID(c)
	userIDHex := userID.Hex()

	if err := c.BodyParser(req); err != nil {
		logger.L().Warn("failed to parse request body", "handler", handlerName, "userID", userIDHex, "error", err)
		return httperr.Fail(httperr.ErrBadRequest)
	}

	if err := validator.Struct(req); err != nil {
		logger.L().Warn("request validation failed", "handler", handlerName, "userID", userIDHex, "error", err)
		return httperr.InvalidInput(err)
	}

	return nil
}

// ExtractObjectID extracts and validates an ObjectID URL parameter
func ExtractObjectID(c *fiber.Ctx, param, handlerName string, notFoundErr error) (bson.ObjectID, error) {
	idStr := c.Params(param)
	if idStr == "" {
		logger.L().Warn("missing id parameter", "handler", handlerName, "param", param, "path", c.Path())
		return bson.ObjectID{}, NotFoundError(notFoundErr)
	}

	id, err := bson.ObjectIDFromHex(idStr)
	if err != nil {
		logger.L().Warn("invalid id parameter", "handler", handlerName, "param", param, "idStr", idStr, "error", err)
		return bson.ObjectID{}, NotFoundError(notFoundErr)
	}

	return id, nil
}

// HandleServiceError handles common service error responses
func HandleServiceError(err error, handlerName string, userID bson.ObjectID, resourceID *bson.ObjectID, notFoundErr error) error {
	userIDHex := userID.Hex()
	logFields := []any{"handler", handlerName, "userID", userIDHex, "error", err}

	if resourceID != nil {
		logFields = append(logFields, "resourceID", resourceID.Hex())
	}

	if errors.Is(err, notFoundErr) {
		logger.L().Info("resource not found", logFields...)
		return NotFoundError(notFoundErr)
	}

	logger.L().Error("service operation failed", logFields...)
	return httperr.Fail(httperr.E{
		Status:  500,
		Message: err.Error(),
	})
}

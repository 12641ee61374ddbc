package carwashes

import (
	"context"
	"errors"

	"wash-sync/cmd/server/handlers/handlerutil"
	"wash-sync/cmd/server/handlers/httperr"
	"wash-sync/internal/services/carwashes"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Service defines the interface for the carwashes service
type Service interface {
	Create(ctx context.Context, ownerID bson.ObjectID, req carwashes.CreateCarwashRequest) (*carwashes.CarwashResponse, error)
	ListOwned(ctx context.Context, ownerID bson.ObjectID) (*carwashes.ListCarwashesResponse, error)
	Get(ctx context.Context, id bson.ObjectID) (*carwashes.Carwash, error)
}

// Handlers contains the carwashes HTTP handlers
type Handlers struct {
	service   Service
	validator *validator.Validate
}

// NewHandlers creates new carwashes handlers
func NewHandlers(service Service, validator *validator.Validate) *Handlers {
	return &Handlers{
		service:   service,
		validator: validator,
	}
}

// Create registers a carwash under the calling owner
func (h *Handlers) Create(c *fiber.Ctx) error {
	userID, err := handlerutil.GetUserID(c)
	if err != nil {
		return err
	}
	role, err := handlerutil.GetRole(c)
	if err != nil {
		return err
	}
	if !role.Manages() {
		return httperr.Fail(httperr.ErrForbidden)
	}

	var req carwashes.CreateCarwashRequest
	if err := handlerutil.ParseAndValidateBody(c, &req, h.validator, "Create"); err != nil {
		return err
	}

	resp, err := h.service.Create(c.Context(), userID, req)
	if err != nil {
		return handlerutil.HandleServiceError(err, "Create", userID, nil, carwashes.ErrCarwashNotFound)
	}

	return c.Status(201).JSON(resp)
}

// ListOwned returns the caller's carwashes
func (h *Handlers) ListOwned(c *fiber.Ctx) error {
	userID, err := handlerutil.GetUserID(c)
	if err != nil {
		return err
	}
	role, err := handlerutil.GetRole(c)
	if err != nil {
		return err
	}
	if !role.Manages() {
		return httperr.Fail(httperr.ErrForbidden)
	}

	resp, err := h.service.ListOwned(c.Context(), userID)
	if err != nil {
		return handlerutil.HandleServiceError(err, "ListOwned", userID, nil, carwashes.ErrCarwashNotFound)
	}

	return c.JSON(resp)
}

// Get returns one carwash by id. Clients use it to render booking screens.
func (h *Handlers) Get(c *fiber.Ctx) error {
	userID, err := handlerutil.GetUserID(c)
	if err != nil {
		return err
	}

	id, err := handlerutil.ExtractObjectID(c, "id", "Get", carwashes.ErrCarwashNotFound)
	if err != nil {
		return err
	}

	cw, err := h.service.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, carwashes.ErrCarwashNotFound) {
			return handlerutil.NotFoundError(carwashes.ErrCarwashNotFound)
		}
		return handlerutil.HandleServiceError(err, "Get", userID, &id, carwashes.ErrCarwashNotFound)
	}

	return c.JSON(cw)
}

package reservations

import (
	"context"
	"errors"

	"wash-sync/cmd/server/handlers/handlerutil"
	"wash-sync/cmd/server/handlers/httperr"
	"wash-sync/internal/services/reservations"
	"wash-sync/internal/services/watch"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Service defines the interface for the reservations service
type Service interface {
	Create(ctx context.Context, clientID bson.ObjectID, req reservations.CreateReservationRequest) (*reservations.ReservationResponse, error)
	SetStatus(ctx context.Context, actor reservations.Actor, id bson.ObjectID, status reservations.Status) (*reservations.ReservationResponse, error)
	MarkSeen(ctx context.Context, clientID, id bson.ObjectID) error
}

// Handlers contains the reservations HTTP handlers
type Handlers struct {
	service   Service
	store     watch.Store
	carwashes watch.CarwashSource
	validator *validator.Validate
}

// NewHandlers creates new reservations handlers
func NewHandlers(service Service, store watch.Store, carwashes watch.CarwashSource, validator *validator.Validate) *Handlers {
	return &Handlers{
		service:   service,
		store:     store,
		carwashes: carwashes,
		validator: validator,
	}
}

// Create handles a booking request. The caller becomes the reservation's
// client regardless of role.
func (h *Handlers) Create(c *fiber.Ctx) error {
	userID, err := handlerutil.GetUserID(c)
	if err != nil {
		return err
	}

	var req reservations.CreateReservationRequest
	if err := handlerutil.ParseAndValidateBody(c, &req, h.validator, "Create"); err != nil {
		return err
	}

	resp, err := h.service.Create(c.Context(), userID, req)
	if err != nil {
		if errors.Is(err, reservations.ErrCarwashNotFound) {
			return handlerutil.NotFoundError(reservations.ErrCarwashNotFound)
		}
		return handlerutil.HandleServiceError(err, "Create", userID, nil, reservations.ErrReservationNotFound)
	}

	return c.Status(201).JSON(resp)
}

// List returns the caller's current reservation view: the same sorted list,
// badge and degraded flag a live session would push as its first frame.
func (h *Handlers) List(c *fiber.Ctx) error {
	userID, err := handlerutil.GetUserID(c)
	if err != nil {
		return err
	}
	role, err := handlerutil.GetRole(c)
	if err != nil {
		return err
	}

	snap, err := watch.TakeSnapshot(c.Context(), h.store, h.carwashes, role, userID)
	if err != nil {
		return handlerutil.HandleServiceError(err, "List", userID, nil, reservations.ErrReservationNotFound)
	}

	return c.JSON(snap)
}

// SetStatus handles pending → confirmed|canceled transitions
func (h *Handlers) SetStatus(c *fiber.Ctx) error {
	userID, err := handlerutil.GetUserID(c)
	if err != nil {
		return err
	}
	role, err := handlerutil.GetRole(c)
	if err != nil {
		return err
	}

	id, err := handlerutil.ExtractObjectID(c, "id", "SetStatus", reservations.ErrReservationNotFound)
	if err != nil {
		return err
	}

	var req reservations.SetStatusRequest
	if err := handlerutil.ParseAndValidateBody(c, &req, h.validator, "SetStatus"); err != nil {
		return err
	}

	actor := reservations.Actor{UserID: userID, IsOwner: role.Manages()}
	resp, err := h.service.SetStatus(c.Context(), actor, id, reservations.Status(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, reservations.ErrInvalidStatus):
			return httperr.Fail(httperr.ErrBadRequest)
		case errors.Is(err, reservations.ErrStatusFinal):
			return httperr.Fail(httperr.ErrConflict)
		case errors.Is(err, reservations.ErrForbidden):
			return httperr.Fail(httperr.ErrForbidden)
		}
		return handlerutil.HandleServiceError(err, "SetStatus", userID, &id, reservations.ErrReservationNotFound)
	}

	return c.JSON(resp)
}

// MarkSeen acknowledges a status change on the caller's own reservation
func (h *Handlers) MarkSeen(c *fiber.Ctx) error {
	userID, err := handlerutil.GetUserID(c)
	if err != nil {
		return err
	}

	id, err := handlerutil.ExtractObjectID(c, "id", "MarkSeen", reservations.ErrReservationNotFound)
	if err != nil {
		return err
	}

	if err := h.service.MarkSeen(c.Context(), userID, id); err != nil {
		return handlerutil.HandleServiceError(err, "MarkSeen", userID, &id, reservations.ErrReservationNotFound)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

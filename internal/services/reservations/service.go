package reservations

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"wash-sync/internal/services/carwashes"
	"wash-sync/internal/utils/sanitize"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Service handles reservation business logic. It never touches the live
// views: watchers pick up every accepted write from the change feed, so there
// is no optimistic update path here.
type Service struct {
	repo    Repository
	catalog CarwashCatalog
	log     *slog.Logger
}

// NewService creates a new reservations service.
func NewService(repo Repository, catalog CarwashCatalog, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		log:     log,
	}
}

// CreateReservationRequest represents a booking request from a client.
type CreateReservationRequest struct {
	CarwashID   string   `json:"carwash_id" validate:"required" example:"683cdb8aa96ad71e8e075bd3"`
	ServiceID   string   `json:"service_id" validate:"required" example:"lavage-complet"`
	ServiceName string   `json:"service_name" validate:"required,min=2,max=120" example:"Lavage complet"`
	Price       float64  `json:"price" validate:"gte=0" example:"1200"`
	Date        string   `json:"date" validate:"required,resdate" example:"21/06/2025"`
	Time        string   `json:"time" validate:"required,restime" example:"14:30"`
	Phone       string   `json:"phone" validate:"required,min=6,max=20" example:"0550123456"`
	Address     string   `json:"address" validate:"required,min=4,max=240" example:"12 Rue Didouche Mourad, Alger"`
	Latitude    *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

// SetStatusRequest represents a status transition request.
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed canceled" example:"confirmed"`
}

// ReservationResponse represents a single reservation response.
type ReservationResponse struct {
	Reservation *Reservation `json:"reservation"`
}

// Create books a slot. The status always starts at pending and the owner id
// and carwash name are copied from the catalog, never taken from the request.
func (s *Service) Create(ctx context.Context, clientID bson.ObjectID, req CreateReservationRequest) (*ReservationResponse, error) {
	carwashID, err := bson.ObjectIDFromHex(req.CarwashID)
	if err != nil {
		return nil, ErrCarwashNotFound
	}

	cw, err := s.catalog.Get(ctx, carwashID)
	if err != nil {
		if errors.Is(err, carwashes.ErrCarwashNotFound) {
			s.log.Info("booking against unknown carwash", "client_id", clientID.Hex(), "carwash_id", req.CarwashID)
			return nil, ErrCarwashNotFound
		}
		s.log.Error(ErrCreateReservation.Error(), "error", err, "client_id", clientID.Hex())
		return nil, ErrCreateReservation
	}

	now := time.Now()
	r := &Reservation{
		ID:              bson.NewObjectID(),
		ClientID:        clientID,
		OwnerID:         cw.OwnerID,
		CarwashID:       cw.ID,
		CarwashName:     cw.Name,
		ServiceID:       req.ServiceID,
		ServiceName:     sanitize.Clean(req.ServiceName),
		Price:           req.Price,
		Date:            req.Date,
		Time:            req.Time,
		ClientPhone:     sanitize.Clean(req.Phone),
		ClientAddress:   sanitize.Clean(req.Address),
		ClientLatitude:  req.Latitude,
		ClientLongitude: req.Longitude,
		Status:          StatusPending,
		IsSeenByClient:  false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, r); err != nil {
		s.log.Error(ErrCreateReservation.Error(), "error", err, "client_id", clientID.Hex())
		return nil, ErrCreateReservation
	}

	return &ReservationResponse{Reservation: r}, nil
}

// Actor identifies who is requesting a status change.
type Actor struct {
	UserID  bson.ObjectID
	IsOwner bool // owner or admin role
}

// SetStatus applies a pending → confirmed|canceled transition. Owners and
// admins may confirm or cancel bookings for their carwashes; a client may only
// cancel their own pending booking. Terminal statuses never change again.
func (s *Service) SetStatus(ctx context.Context, actor Actor, id bson.ObjectID, status Status) (*ReservationResponse, error) {
	if !status.Valid() || status == StatusPending {
		return nil, ErrInvalidStatus
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return nil, ErrReservationNotFound
		}
		s.log.Error(ErrUpdateStatus.Error(), "error", err, "reservation_id", id.Hex())
		return nil, ErrUpdateStatus
	}

	if err := authorizeTransition(actor, current, status); err != nil {
		s.log.Info("status change refused", "error", err,
			"reservation_id", id.Hex(), "actor_id", actor.UserID.Hex(), "status", string(status))
		return nil, err
	}

	updated, err := s.repo.SetStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return nil, ErrReservationNotFound
		}
		s.log.Error(ErrUpdateStatus.Error(), "error", err, "reservation_id", id.Hex())
		return nil, ErrUpdateStatus
	}

	return &ReservationResponse{Reservation: updated}, nil
}

func authorizeTransition(actor Actor, current *Reservation, next Status) error {
	if current.Status.Final() {
		return ErrStatusFinal
	}
	if actor.IsOwner {
		if current.OwnerID != actor.UserID {
			return ErrForbidden
		}
		return nil
	}
	// Clients may only walk away from their own pending booking.
	if current.ClientID != actor.UserID || next != StatusCanceled {
		return ErrForbidden
	}
	return nil
}

// MarkSeen records that the client has viewed a status change, which clears
// the reservation from the client badge count.
func (s *Service) MarkSeen(ctx context.Context, clientID, id bson.ObjectID) error {
	if err := s.repo.MarkSeen(ctx, clientID, id); err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return ErrReservationNotFound
		}
		s.log.Error(ErrMarkSeen.Error(), "error", err, "reservation_id", id.Hex(), "client_id", clientID.Hex())
		return ErrMarkSeen
	}
	return nil
}

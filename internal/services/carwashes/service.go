package carwashes

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"wash-sync/internal/utils/sanitize"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Service handles carwash business logic.
type Service struct {
	repo Repository
	log  *slog.Logger
}

// NewService creates a new carwashes service.
func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// CreateCarwashRequest represents a carwash creation request.
type CreateCarwashRequest struct {
	Name      string   `json:"name" validate:"required,min=2,max=120" example:"Lavage Auto Hydra"`
	Address   string   `json:"address" validate:"required,min=4,max=240" example:"Route de l'Université, Bab Ezzouar"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

// CarwashResponse represents a single carwash response.
type CarwashResponse struct {
	Carwash *Carwash `json:"carwash"`
}

// ListCarwashesResponse represents the owned-carwash list response.
type ListCarwashesResponse struct {
	Carwashes []*Carwash `json:"carwashes"`
}

// Create registers a carwash for the owner.
func (s *Service) Create(ctx context.Context, ownerID bson.ObjectID, req CreateCarwashRequest) (*CarwashResponse, error) {
	now := time.Now()
	cw := &Carwash{
		ID:        bson.NewObjectID(),
		OwnerID:   ownerID,
		Name:      sanitize.Clean(req.Name),
		Address:   sanitize.Clean(req.Address),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, cw); err != nil {
		s.log.Error(ErrCreateCarwash.Error(), "error", err, "owner_id", ownerID.Hex())
		return nil, ErrCreateCarwash
	}

	return &CarwashResponse{Carwash: cw}, nil
}

// ListOwned returns all carwashes belonging to the owner.
func (s *Service) ListOwned(ctx context.Context, ownerID bson.ObjectID) (*ListCarwashesResponse, error) {
	list, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		s.log.Error(ErrListCarwashes.Error(), "error", err, "owner_id", ownerID.Hex())
		return nil, ErrListCarwashes
	}
	return &ListCarwashesResponse{Carwashes: list}, nil
}

// OwnedIDs returns the owner's carwash id set for filter construction.
func (s *Service) OwnedIDs(ctx context.Context, ownerID bson.ObjectID) ([]bson.ObjectID, error) {
	ids, err := s.repo.IDsByOwner(ctx, ownerID)
	if err != nil {
		s.log.Error(ErrListCarwashes.Error(), "error", err, "owner_id", ownerID.Hex())
		return nil, ErrListCarwashes
	}
	return ids, nil
}

// Get loads one carwash by id.
func (s *Service) Get(ctx context.Context, id bson.ObjectID) (*Carwash, error) {
	cw, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCarwashNotFound) {
			return nil, ErrCarwashNotFound
		}
		s.log.Error("failed to load carwash", "error", err, "carwash_id", id.Hex())
		return nil, err
	}
	return cw, nil
}

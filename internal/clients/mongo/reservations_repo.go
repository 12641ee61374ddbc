package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wash-sync/internal/logger"
	"wash-sync/internal/services/reservations"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ReservationsRepo implements the reservations.Repository interface for MongoDB
type ReservationsRepo struct {
	collection *mongo.Collection
}

func repoCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return WithRepoTimeout(parent, OpTimeout)
}

// translateNotFound maps the driver ErrNoDocuments to the domain-level ErrReservationNotFound.
func translateNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return reservations.ErrReservationNotFound
	}
	return err
}

// NewReservationsRepo creates a new reservations repository
func NewReservationsRepo(parentCtx context.Context, db *mongo.Database) (*ReservationsRepo, error) {
	collection := db.Collection("reservations")

	indexes := []mongo.IndexModel{
		// Client view: own reservations, newest first
		{
			Keys: bson.D{
				{Key: "client_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
		// Owner view scoped by carwash membership
		{
			Keys: bson.D{
				{Key: "carwash_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
		// Badge counts for owners
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "status", Value: 1},
			},
		},
	}

	ctx, cancel := context.WithTimeout(parentCtx, OpTimeout)
	defer cancel()

	for _, indexModel := range indexes {
		_, err := collection.Indexes().CreateOne(ctx, indexModel)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				logger.L().Debug("index already exists, continuing", "collection", "reservations")
			} else {
				logger.L().Error("failed to create index", "collection", "reservations", "error", err)
				return nil, fmt.Errorf("failed to create reservations collection index: %w", err)
			}
		}
	}

	return &ReservationsRepo{
		collection: collection,
	}, nil
}

// Create inserts a new reservation
func (r *ReservationsRepo) Create(ctx context.Context, res *reservations.Reservation) error {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	res.CreatedAt = now
	res.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, res)
	return err
}

// Get fetches a single reservation by id
func (r *ReservationsRepo) Get(ctx context.Context, id bson.ObjectID) (*reservations.Reservation, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	var res reservations.Reservation
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&res); err != nil {
		return nil, translateNotFound(err)
	}
	return &res, nil
}

// SetStatus moves a reservation to the given status and bumps updated_at.
// A status change resets is_seen_by_client so the client badge picks it up.
func (r *ReservationsRepo) SetStatus(ctx context.Context, id bson.ObjectID, status reservations.Status) (*reservations.Reservation, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"status":            status,
			"is_seen_by_client": false,
			"updated_at":        time.Now().UTC(),
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated reservations.Reservation
	if err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&updated); err != nil {
		return nil, translateNotFound(err)
	}
	return &updated, nil
}

// MarkSeen flags a reservation as acknowledged by its client. Scoped to
// clientID so a client cannot acknowledge somebody else's reservation.
func (r *ReservationsRepo) MarkSeen(ctx context.Context, clientID, id bson.ObjectID) error {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	filter := bson.M{
		"_id":       id,
		"client_id": clientID,
	}
	update := bson.M{
		"$set": bson.M{"is_seen_by_client": true},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return reservations.ErrReservationNotFound
	}
	return nil
}

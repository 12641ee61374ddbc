package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wash-sync/internal/logger"
	"wash-sync/internal/services/carwashes"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CarwashesRepo implements the carwashes.Repository interface for MongoDB
type CarwashesRepo struct {
	collection *mongo.Collection
}

// NewCarwashesRepo creates a new carwashes repository
func NewCarwashesRepo(parentCtx context.Context, db *mongo.Database) (*CarwashesRepo, error) {
	collection := db.Collection("carwashes")

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
			},
		},
	}

	ctx, cancel := context.WithTimeout(parentCtx, OpTimeout)
	defer cancel()

	for _, indexModel := range indexes {
		_, err := collection.Indexes().CreateOne(ctx, indexModel)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				logger.L().Debug("index already exists, continuing", "collection", "carwashes")
			} else {
				logger.L().Error("failed to create index", "collection", "carwashes", "error", err)
				return nil, fmt.Errorf("failed to create carwashes collection index: %w", err)
			}
		}
	}

	return &CarwashesRepo{
		collection: collection,
	}, nil
}

// Create inserts a new carwash
func (r *CarwashesRepo) Create(ctx context.Context, cw *carwashes.Carwash) error {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	cw.CreatedAt = now
	cw.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, cw)
	return err
}

// Get fetches a single carwash by id
func (r *CarwashesRepo) Get(ctx context.Context, id bson.ObjectID) (*carwashes.Carwash, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	var cw carwashes.Carwash
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&cw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, carwashes.ErrCarwashNotFound
		}
		return nil, err
	}
	return &cw, nil
}

// ListByOwner returns all carwashes belonging to the given owner
func (r *CarwashesRepo) ListByOwner(ctx context.Context, ownerID bson.ObjectID) ([]*carwashes.Carwash, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return nil, err
	}
	defer func(ctxToClose context.Context) {
		if cerr := cursor.Close(ctxToClose); cerr != nil {
			logger.L().Error("failed to close cursor", "error", cerr)
		}
	}(ctx)

	list := []*carwashes.Carwash{}
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// IDsByOwner returns only the ids of the owner's carwashes. Projection keeps
// the payload small since watchers call this on every session start.
func (r *CarwashesRepo) IDsByOwner(ctx context.Context, ownerID bson.ObjectID) ([]bson.ObjectID, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := r.collection.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer func(ctxToClose context.Context) {
		if cerr := cursor.Close(ctxToClose); cerr != nil {
			logger.L().Error("failed to close cursor", "error", cerr)
		}
	}(ctx)

	var docs []struct {
		ID bson.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]bson.ObjectID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

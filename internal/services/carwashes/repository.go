package carwashes

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Repository defines the store operations the carwashes service needs.
type Repository interface {
	Create(ctx context.Context, cw *Carwash) error
	Get(ctx context.Context, id bson.ObjectID) (*Carwash, error)
	ListByOwner(ctx context.Context, ownerID bson.ObjectID) ([]*Carwash, error)
	// IDsByOwner is the one-shot query that seeds the owner-side reservation
	// filter (carwash_id ∈ set). Kept separate from ListByOwner so watcher
	// startup never decodes full documents.
	IDsByOwner(ctx context.Context, ownerID bson.ObjectID) ([]bson.ObjectID, error)
}

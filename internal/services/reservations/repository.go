package reservations

import (
	"context"

	"wash-sync/internal/services/carwashes"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Repository defines the write-side store operations for reservations. Reads
// for live views go through the watch package's feed instead; the service only
// needs point lookups to authorize writes.
type Repository interface {
	Create(ctx context.Context, r *Reservation) error
	Get(ctx context.Context, id bson.ObjectID) (*Reservation, error)
	// SetStatus writes the new status, bumps updated_at server-side and resets
	// is_seen_by_client to false. It returns the updated document.
	SetStatus(ctx context.Context, id bson.ObjectID, status Status) (*Reservation, error)
	// MarkSeen sets is_seen_by_client true for a reservation owned by clientID.
	MarkSeen(ctx context.Context, clientID, id bson.ObjectID) error
}

// CarwashCatalog is the slice of the carwashes service the booking path needs:
// resolving a carwash so owner id and display name can be denormalized onto
// the new reservation.
type CarwashCatalog interface {
	Get(ctx context.Context, id bson.ObjectID) (*carwashes.Carwash, error)
}

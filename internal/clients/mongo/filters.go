package mongo

import (
	"wash-sync/internal/services/watch"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// reservationFilter translates a watch.Filter into a Mongo filter document.
// The Store contract's fan-out cap is enforced here, at the last gate before
// the wire.
func reservationFilter(f watch.Filter) (bson.M, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if !f.ClientID.IsZero() {
		return bson.M{"client_id": f.ClientID}, nil
	}
	if len(f.CarwashIDs) == 1 {
		return bson.M{"carwash_id": f.CarwashIDs[0]}, nil
	}
	return bson.M{"carwash_id": bson.M{"$in": f.CarwashIDs}}, nil
}

package watch

import (
	"context"

	"wash-sync/internal/services/reservations"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Snapshot is a one-shot read of the role-dependent reservation view: the
// same filter, sort and badge rules as a live watcher, without a
// subscription. This backs plain list requests and the manual pull path.
type Snapshot struct {
	Reservations []reservations.Reservation `json:"reservations"`
	Badge        Badge                      `json:"badge"`
	// Degraded mirrors the watcher flag: above the fan-out limit the list
	// came from batched reads and is not kept live.
	Degraded bool `json:"degraded"`
}

// TakeSnapshot builds the current view for one user.
func TakeSnapshot(ctx context.Context, store Store, carwashes CarwashSource, role Role, userID bson.ObjectID) (*Snapshot, error) {
	var (
		list     []reservations.Reservation
		degraded bool
		err      error
	)

	if role.Manages() {
		var ids []bson.ObjectID
		ids, err = carwashes.OwnedIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		switch {
		case len(ids) == 0:
			list = []reservations.Reservation{}
		case len(ids) <= MaxFilterIDs:
			list, err = store.Query(ctx, OwnerFilter(ids))
		default:
			degraded = true
			list, err = QueryByIDSet(ctx, store, ids)
		}
	} else {
		list, err = store.Query(ctx, ClientFilter(userID))
	}
	if err != nil {
		return nil, err
	}

	view := NewView(PolicyForRole(role))
	view.Replace(list)

	return &Snapshot{
		Reservations: view.List(),
		Badge:        BadgeForRole(role, view),
		Degraded:     degraded,
	}, nil
}

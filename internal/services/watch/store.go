package watch

import (
	"context"
	"errors"

	"wash-sync/internal/services/reservations"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MaxFilterIDs is the store's cap on the number of values a single
// "field ∈ set" filter may carry. Larger id sets must be chunked by the
// caller (see QueryByIDSet).
const MaxFilterIDs = 10

// ErrFilterIDSetTooLarge is returned when a filter carries more than
// MaxFilterIDs carwash ids.
var ErrFilterIDSetTooLarge = errors.New("filter id set exceeds store fan-out limit")

// ErrEmptyFilter is returned when a filter selects nothing at all.
var ErrEmptyFilter = errors.New("filter selects no documents")

// Filter describes one reservation query: equality on the client id, or
// membership of the carwash id in a bounded set. Exactly one side is used per
// role.
type Filter struct {
	ClientID   bson.ObjectID
	CarwashIDs []bson.ObjectID
}

// ClientFilter selects the client's own bookings.
func ClientFilter(clientID bson.ObjectID) Filter {
	return Filter{ClientID: clientID}
}

// OwnerFilter selects bookings for the given carwashes.
func OwnerFilter(carwashIDs []bson.ObjectID) Filter {
	return Filter{CarwashIDs: carwashIDs}
}

// Validate enforces the store's filter contract.
func (f Filter) Validate() error {
	if f.ClientID.IsZero() && len(f.CarwashIDs) == 0 {
		return ErrEmptyFilter
	}
	if len(f.CarwashIDs) > MaxFilterIDs {
		return ErrFilterIDSetTooLarge
	}
	return nil
}

// Matches reports whether r satisfies the filter. The feed adapter uses it to
// decide membership when classifying raw change-stream events.
func (f Filter) Matches(r *reservations.Reservation) bool {
	if !f.ClientID.IsZero() {
		return r.ClientID == f.ClientID
	}
	for _, id := range f.CarwashIDs {
		if r.CarwashID == id {
			return true
		}
	}
	return false
}

// ChangeKind tags one entry of a feed event's change list.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change is one document-level change observed by a subscription.
type Change struct {
	Kind        ChangeKind
	Reservation reservations.Reservation
}

// EventFunc receives one feed event: the full current snapshot plus the
// changes since the previous event. The very first event carries the whole
// pre-existing result set as "added" changes.
type EventFunc func(snapshot []reservations.Reservation, changes []Change)

// ErrorFunc receives an asynchronous subscription failure. The subscription
// is considered stopped afterwards; retry policy belongs to the caller.
type ErrorFunc func(err error)

// Store is the uniform face of the document store: one-shot queries plus a
// subscribe-for-changes primitive. Callbacks of one subscription are invoked
// sequentially; nothing is ordered across subscriptions.
type Store interface {
	Query(ctx context.Context, f Filter) ([]reservations.Reservation, error)
	// Subscribe starts a live subscription. The returned stop function
	// releases it and is safe to call more than once.
	Subscribe(ctx context.Context, f Filter, onEvent EventFunc, onError ErrorFunc) (stop func(), err error)
}

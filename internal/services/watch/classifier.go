package watch

import (
	"wash-sync/internal/services/reservations"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// TransitionKind names a state transition worth evaluating for notification.
type TransitionKind string

const (
	// TransitionNewBooking - a reservation appeared while the watcher was
	// already live. Announced on owner-side watchers.
	TransitionNewBooking TransitionKind = "new_booking"
	// TransitionConfirmed / TransitionCanceled - the status field genuinely
	// changed to a terminal value. Announced on client-side watchers.
	TransitionConfirmed TransitionKind = "confirmed"
	TransitionCanceled  TransitionKind = "canceled"
)

// Transition is one classified change, ready for the dispatcher.
type Transition struct {
	Kind        TransitionKind
	Reservation reservations.Reservation
}

// Classifier turns raw feed changes into genuine transitions. It tracks the
// last-known status per document so a modification that touches any other
// field (an address correction, a seen flag) never counts as a transition.
//
// The initial snapshot is never classified: Prime records it as the baseline,
// preventing a notification storm when a subscription starts and every
// pre-existing reservation arrives tagged "added".
type Classifier struct {
	lastStatus map[bson.ObjectID]reservations.Status
}

// NewClassifier creates an empty classifier.
func NewClassifier() *Classifier {
	return &Classifier{
		lastStatus: make(map[bson.ObjectID]reservations.Status),
	}
}

// Prime records the initial snapshot's statuses as the baseline.
func (c *Classifier) Prime(changes []Change) {
	for _, ch := range changes {
		if ch.Kind == ChangeRemoved {
			continue
		}
		c.lastStatus[ch.Reservation.ID] = ch.Reservation.Status
	}
}

// Diff classifies changes received after the baseline. Removals are not a
// modeled transition; they only clear tracking state.
func (c *Classifier) Diff(changes []Change) []Transition {
	var out []Transition
	for _, ch := range changes {
		switch ch.Kind {
		case ChangeAdded:
			c.lastStatus[ch.Reservation.ID] = ch.Reservation.Status
			out = append(out, Transition{Kind: TransitionNewBooking, Reservation: ch.Reservation})

		case ChangeModified:
			prev, known := c.lastStatus[ch.Reservation.ID]
			next := ch.Reservation.Status
			c.lastStatus[ch.Reservation.ID] = next
			if !known || prev == next {
				continue
			}
			switch next {
			case reservations.StatusConfirmed:
				out = append(out, Transition{Kind: TransitionConfirmed, Reservation: ch.Reservation})
			case reservations.StatusCanceled:
				out = append(out, Transition{Kind: TransitionCanceled, Reservation: ch.Reservation})
			}

		case ChangeRemoved:
			delete(c.lastStatus, ch.Reservation.ID)
		}
	}
	return out
}

package reservations

import "errors"

// ErrReservationNotFound - reservation not found in DB.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrCarwashNotFound is returned when the referenced carwash does not exist.
var ErrCarwashNotFound = errors.New("carwash not found")

// ErrCreateReservation is returned when reservation creation fails.
var ErrCreateReservation = errors.New("failed to create reservation")

// ErrUpdateStatus is returned when a status write fails at the store.
var ErrUpdateStatus = errors.New("failed to update reservation status")

// ErrMarkSeen is returned when the seen acknowledgement write fails.
var ErrMarkSeen = errors.New("failed to mark reservation as seen")

// ErrInvalidStatus is returned when the requested status is not a modeled one.
var ErrInvalidStatus = errors.New("invalid reservation status")

// ErrStatusFinal is returned when a transition is attempted on a confirmed or
// canceled reservation.
var ErrStatusFinal = errors.New("reservation status is final")

// ErrForbidden is returned when the actor is not allowed to touch the
// reservation (wrong client, or owner of a different carwash).
var ErrForbidden = errors.New("not allowed to modify this reservation")

// ErrCreateReservationsRepo is returned when the repository cannot be built.
var ErrCreateReservationsRepo = errors.New("failed to create reservations repository")

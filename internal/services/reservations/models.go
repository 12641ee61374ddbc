package reservations

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
)

// Valid reports whether s is one of the three modeled statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCanceled:
		return true
	}
	return false
}

// Final reports whether s is terminal. Confirmed and canceled reservations
// never transition again.
func (s Status) Final() bool {
	return s == StatusConfirmed || s == StatusCanceled
}

// Reservation is one booking record. Carwash and service names plus the owner
// id are denormalized at creation time so role-based filters and notification
// text never need a join.
type Reservation struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id,omitempty" example:"683cdb8aa96ad71e8e075bd1"`
	ClientID    bson.ObjectID `bson:"client_id" json:"client_id" example:"683cdb8aa96ad71e8e075bd0"`
	OwnerID     bson.ObjectID `bson:"owner_id" json:"owner_id" example:"683cdb8aa96ad71e8e075bd2"`
	CarwashID   bson.ObjectID `bson:"carwash_id" json:"carwash_id" example:"683cdb8aa96ad71e8e075bd3"`
	CarwashName string        `bson:"carwash_name" json:"carwash_name" example:"Lavage Auto Hydra"`
	ServiceID   string        `bson:"service_id" json:"service_id" example:"lavage-complet"`
	ServiceName string        `bson:"service_name" json:"service_name" example:"Lavage complet"`
	Price       float64       `bson:"price" json:"price" example:"1200"`

	// Date and Time keep the wire format the mobile forms produce.
	Date string `bson:"date" json:"date" example:"21/06/2025"`
	Time string `bson:"time" json:"time" example:"14:30"`

	ClientPhone     string   `bson:"client_phone" json:"client_phone" example:"0550123456"`
	ClientAddress   string   `bson:"client_address" json:"client_address" example:"12 Rue Didouche Mourad, Alger"`
	ClientLatitude  *float64 `bson:"client_latitude,omitempty" json:"client_latitude,omitempty"`
	ClientLongitude *float64 `bson:"client_longitude,omitempty" json:"client_longitude,omitempty"`

	Status Status `bson:"status" json:"status" example:"pending"`

	// IsSeenByClient drives the client badge: reset to false every time the
	// status leaves pending, set true once the client acknowledges.
	IsSeenByClient bool `bson:"is_seen_by_client" json:"is_seen_by_client"`

	CreatedAt time.Time `bson:"created_at" json:"created_at" example:"2025-06-01T23:00:26.005703677Z"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at" example:"2025-06-01T23:00:26.005703677Z"`
}

// Display placeholders for documents missing denormalized fields. A partial
// document renders with these instead of failing the whole list.
const (
	PlaceholderText = "N/A"
	PlaceholderDate = "??/??/????"
	PlaceholderTime = "--:--"
)

// DisplayCarwash returns the carwash name or a placeholder.
func (r *Reservation) DisplayCarwash() string {
	if r.CarwashName == "" {
		return PlaceholderText
	}
	return r.CarwashName
}

// DisplayService returns the service name or a placeholder.
func (r *Reservation) DisplayService() string {
	if r.ServiceName == "" {
		return PlaceholderText
	}
	return r.ServiceName
}

// DisplayDate returns the scheduled date or a placeholder.
func (r *Reservation) DisplayDate() string {
	if r.Date == "" {
		return PlaceholderDate
	}
	return r.Date
}

// DisplayTime returns the scheduled time or a placeholder.
func (r *Reservation) DisplayTime() string {
	if r.Time == "" {
		return PlaceholderTime
	}
	return r.Time
}

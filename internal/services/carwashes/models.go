package carwashes

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Carwash is an owned resource. One owner may run any number of carwashes;
// everything above the store's membership-filter limit is handled downstream
// by the fan-out batcher, never here.
type Carwash struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id,omitempty" example:"683cdb8aa96ad71e8e075bd3"`
	OwnerID   bson.ObjectID `bson:"owner_id" json:"owner_id" example:"683cdb8aa96ad71e8e075bd2"`
	Name      string        `bson:"name" json:"name" validate:"required" example:"Lavage Auto Hydra"`
	Address   string        `bson:"address" json:"address" example:"Route de l'Université, Bab Ezzouar"`
	Latitude  *float64      `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude *float64      `bson:"longitude,omitempty" json:"longitude,omitempty"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updated_at"`
}

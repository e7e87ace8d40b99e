package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User roles: "admin" validates orders and proformas, "finance" records
// payments and manages caisses.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	FirstName string             `bson:"first_name" json:"first_name"`
	LastName  string             `bson:"last_name" json:"last_name"`
	Phone     string             `bson:"phone" json:"phone"`
	Email     string             `bson:"email,omitempty" json:"email,omitempty"`
	Role      string             `bson:"role" json:"role"`
	Password  string             `bson:"password,omitempty" json:"password,omitempty"`
	Handle    string             `bson:"handle,omitempty" json:"handle,omitempty"`
	CreatedAt time.Time          `bson:"created_at,omitempty" json:"created_at,omitempty"`
}

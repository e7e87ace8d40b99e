package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Counter holds the sequence number for one (entity type, year-month) pair.
// Incremented only through an atomic findAndModify upsert.
type Counter struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Type          string             `bson:"type" json:"type"`
	Period        string             `bson:"period" json:"period"`
	CurrentNumber int64              `bson:"current_number" json:"current_number"`
}

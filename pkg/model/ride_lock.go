package model

import "time"

// RideLock is an advisory lock serializing all seat-accounting writes against
// one ride. The _id is the ride id, so a unique-key insert either wins the
// lock or collides with the current holder; ExpiresAt bounds the damage a
// crashed holder can do.
type RideLock struct {
	ID        string    `bson:"_id" json:"id"`
	Owner     string    `bson:"owner" json:"owner"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

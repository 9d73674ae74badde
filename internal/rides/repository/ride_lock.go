package repository

import (
	"context"
	"time"

	"ridepool/pkg/config"
	"ridepool/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	RideLockCollectionName = "Ride_locks"
)

// RideLockRepository provides operations for per-ride advisory locks
type RideLockRepository interface {
	Create(ctx context.Context, lock *model.RideLock) (*model.RideLock, error)
	Delete(ctx context.Context, lockID string) error
}

type mongoRideLockRepository struct {
	collection *mongo.Collection
}

func NewRideLockRepository(cfg *config.Config) RideLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRideLockRepository{
		collection: db.Collection(RideLockCollectionName),
	}
}

// Returns duplicate key error if the lock already exists
func (r *mongoRideLockRepository) Create(ctx context.Context, lock *model.RideLock) (*model.RideLock, error) {
	lock.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		return nil, err
	}

	return lock, nil
}

// Delete removes an advisory lock
func (r *mongoRideLockRepository) Delete(ctx context.Context, lockID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID})
	return err
}

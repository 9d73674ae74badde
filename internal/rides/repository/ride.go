package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	riderrors "ridepool/internal/rides/errors"
	"ridepool/pkg/config"
	mongotx "ridepool/pkg/db/mongo"
	"ridepool/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	RideCollectionName = "Rides"
)

type RideRepository interface {
	Create(ctx context.Context, ride *model.Ride) error
	FindByID(ctx context.Context, id string) (*model.Ride, error)
	FindUpcoming(ctx context.Context, after time.Time, limit int, offset int64) ([]*model.Ride, error)
	CountUpcoming(ctx context.Context, after time.Time) (int64, error)
	FindByDriver(ctx context.Context, driverID string, limit int, offset int64) ([]*model.Ride, error)
	CountByDriver(ctx context.Context, driverID string) (int64, error)
	FindOverlapping(ctx context.Context, driverID string, departure, arrival time.Time) ([]*model.Ride, error)
	FindNonTerminal(ctx context.Context, limit int) ([]*model.Ride, error)
	UpdateStatus(ctx context.Context, id string, from []model.RideStatus, to model.RideStatus) (bool, error)
	UpdateDetails(ctx context.Context, id string, from []model.RideStatus, ride *model.Ride) (bool, error)
	ReserveSeats(ctx context.Context, id string, n int) error
	ReleaseSeats(ctx context.Context, id string, n int) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoRideRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoRideRepository(cfg *config.Config) RideRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRideRepository{
		cfg:        cfg,
		collection: db.Collection(RideCollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless we are already inside a
// transaction. A SessionContext cannot be wrapped without breaking
// transaction semantics, so it is returned unchanged with a no-op cancel.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoRideRepository) Create(ctx context.Context, ride *model.Ride) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	ride.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, ride)
	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		ride.ID = oid.Hex()
	}
	return nil
}

func (r *mongoRideRepository) FindByID(ctx context.Context, id string) (*model.Ride, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", riderrors.ErrInvalidID, id)
	}

	var ride model.Ride
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&ride)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, riderrors.ErrRideNotFound
		}
		return nil, fmt.Errorf("failed to find ride: %w", err)
	}

	return &ride, nil
}

func (r *mongoRideRepository) FindUpcoming(ctx context.Context, after time.Time, limit int, offset int64) ([]*model.Ride, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := upcomingFilter(after)
	opts := options.Find().
		SetSort(bson.D{{Key: "departure_time", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find upcoming rides: %w", err)
	}
	defer cursor.Close(ctx)

	var rides []*model.Ride
	if err = cursor.All(ctx, &rides); err != nil {
		return nil, fmt.Errorf("failed to decode rides: %w", err)
	}

	return rides, nil
}

func (r *mongoRideRepository) CountUpcoming(ctx context.Context, after time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, upcomingFilter(after))
	if err != nil {
		return 0, fmt.Errorf("failed to count upcoming rides: %w", err)
	}
	return count, nil
}

func upcomingFilter(after time.Time) bson.M {
	return bson.M{
		"status":         model.RideUpcoming,
		"departure_time": bson.M{"$gt": after},
	}
}

func (r *mongoRideRepository) FindByDriver(ctx context.Context, driverID string, limit int, offset int64) ([]*model.Ride, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "departure_time", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"driver_id": driverID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find rides by driver: %w", err)
	}
	defer cursor.Close(ctx)

	var rides []*model.Ride
	if err = cursor.All(ctx, &rides); err != nil {
		return nil, fmt.Errorf("failed to decode rides: %w", err)
	}

	return rides, nil
}

func (r *mongoRideRepository) CountByDriver(ctx context.Context, driverID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"driver_id": driverID})
	if err != nil {
		return 0, fmt.Errorf("failed to count rides by driver: %w", err)
	}
	return count, nil
}

// FindOverlapping returns the driver's non-terminal rides whose time window
// intersects [departure, arrival).
func (r *mongoRideRepository) FindOverlapping(ctx context.Context, driverID string, departure, arrival time.Time) ([]*model.Ride, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"driver_id":      driverID,
		"status":         bson.M{"$in": []model.RideStatus{model.RideUpcoming, model.RideNotStarted, model.RideActive}},
		"departure_time": bson.M{"$lt": arrival},
		"arrival_time":   bson.M{"$gt": departure},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping rides: %w", err)
	}
	defer cursor.Close(ctx)

	var rides []*model.Ride
	if err = cursor.All(ctx, &rides); err != nil {
		return nil, fmt.Errorf("failed to decode rides: %w", err)
	}

	return rides, nil
}

func (r *mongoRideRepository) FindNonTerminal(ctx context.Context, limit int) ([]*model.Ride, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"status": bson.M{"$in": []model.RideStatus{model.RideUpcoming, model.RideNotStarted, model.RideActive}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "departure_time", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find non-terminal rides: %w", err)
	}
	defer cursor.Close(ctx)

	var rides []*model.Ride
	if err = cursor.All(ctx, &rides); err != nil {
		return nil, fmt.Errorf("failed to decode rides: %w", err)
	}

	return rides, nil
}

// UpdateStatus moves a ride to the target status only when its current status
// is one of `from`. The false return means another actor got there first,
// which keeps lifecycle writes and the sweep idempotent.
func (r *mongoRideRepository) UpdateStatus(ctx context.Context, id string, from []model.RideStatus, to model.RideStatus) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("%w: %s", riderrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":    objectID,
		"status": bson.M{"$in": from},
	}
	update := bson.M{"$set": bson.M{
		"status":     to,
		"updated_at": time.Now().UTC().Truncate(time.Millisecond),
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to update ride status: %w", err)
	}

	return result.MatchedCount > 0, nil
}

// UpdateDetails rewrites the ride's editable fields only while its status is
// one of `from`. Seat counters are part of the write so a capacity edit and
// its recomputed availability land atomically.
func (r *mongoRideRepository) UpdateDetails(ctx context.Context, id string, from []model.RideStatus, ride *model.Ride) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("%w: %s", riderrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":    objectID,
		"status": bson.M{"$in": from},
	}
	update := bson.M{"$set": bson.M{
		"origin":          ride.Origin,
		"destination":     ride.Destination,
		"departure_time":  ride.DepartureTime,
		"arrival_time":    ride.ArrivalTime,
		"total_seats":     ride.TotalSeats,
		"available_seats": ride.AvailableSeats,
		"rate_per_km":     ride.RatePerKm,
		"distance_km":     ride.DistanceKm,
		"note":            ride.Note,
		"vehicle_model":   ride.VehicleModel,
		"vehicle_plate":   ride.VehiclePlate,
		"contact_info":    ride.ContactInfo,
		"updated_at":      time.Now().UTC().Truncate(time.Millisecond),
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to update ride details: %w", err)
	}

	return result.MatchedCount > 0, nil
}

// ReserveSeats decrements available_seats by n only when n seats remain.
// The conditional filter is what makes oversell impossible regardless of how
// callers interleave.
func (r *mongoRideRepository) ReserveSeats(ctx context.Context, id string, n int) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", riderrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":             objectID,
		"available_seats": bson.M{"$gte": n},
	}
	update := bson.M{
		"$inc": bson.M{"available_seats": -n},
		"$set": bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to reserve seats: %w", err)
	}

	if result.MatchedCount == 0 {
		return riderrors.ErrInsufficientSeats
	}

	return nil
}

// ReleaseSeats increments available_seats by n, clamped at total_seats. The
// pipeline update reads both counters atomically so a double release cannot
// push the counter past capacity.
func (r *mongoRideRepository) ReleaseSeats(ctx context.Context, id string, n int) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", riderrors.ErrInvalidID, id)
	}

	update := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "available_seats", Value: bson.D{{Key: "$min", Value: bson.A{
				"$total_seats",
				bson.D{{Key: "$add", Value: bson.A{"$available_seats", n}}},
			}}}},
			{Key: "updated_at", Value: time.Now().UTC().Truncate(time.Millisecond)},
		}}},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}

	if result.MatchedCount == 0 {
		return riderrors.ErrRideNotFound
	}

	return nil
}

func (r *mongoRideRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

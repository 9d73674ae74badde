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
	BookingCollectionName = "Bookings"
)

// BookingUpdate carries the mutable booking fields for a conditional state
// write. Nil pointers leave the stored value untouched.
type BookingUpdate struct {
	Status       *model.BookingStatus
	TripStatus   *model.TripStatus
	SeatCount    *int
	SeatsHeld    *bool
	Contribution *float64
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindByPassenger(ctx context.Context, passengerID string, limit int, offset int64) ([]*model.Booking, error)
	CountByPassenger(ctx context.Context, passengerID string) (int64, error)
	HasConfirmed(ctx context.Context, rideID, passengerID string) (bool, error)
	FindConfirmedByRide(ctx context.Context, rideID string) ([]*model.Booking, error)
	FindOldestWaitlistedFitting(ctx context.Context, rideID string, maxSeats int, excludePassengers []string) (*model.Booking, error)
	ApplyUpdate(ctx context.Context, id string, from []model.BookingStatus, update BookingUpdate) (bool, error)
	CascadeByRide(ctx context.Context, rideID string, from []model.BookingStatus, update BookingUpdate) (int64, error)
	FindByRide(ctx context.Context, rideID string, statuses []model.BookingStatus) ([]*model.Booking, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(BookingCollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	booking.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, booking)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		booking.ID = oid.Hex()
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", riderrors.ErrInvalidID, id)
	}

	var booking model.Booking
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, riderrors.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) FindByPassenger(ctx context.Context, passengerID string, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"passenger_id": passengerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings by passenger: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) CountByPassenger(ctx context.Context, passengerID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"passenger_id": passengerID})
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings by passenger: %w", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) HasConfirmed(ctx context.Context, rideID, passengerID string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"ride_id":      rideID,
		"passenger_id": passengerID,
		"status":       model.BookingConfirmed,
	}

	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check confirmed booking: %w", err)
	}
	return count > 0, nil
}

func (r *mongoBookingRepository) FindConfirmedByRide(ctx context.Context, rideID string) ([]*model.Booking, error) {
	return r.FindByRide(ctx, rideID, []model.BookingStatus{model.BookingConfirmed})
}

// FindOldestWaitlistedFitting returns the FIFO-first waitlisted booking on
// the ride whose seat count fits within maxSeats, or nil when none fits.
// Passengers in excludePassengers are skipped; promotion uses this to pass
// over candidates who already hold a confirmed booking.
func (r *mongoBookingRepository) FindOldestWaitlistedFitting(ctx context.Context, rideID string, maxSeats int, excludePassengers []string) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"ride_id":    rideID,
		"status":     model.BookingWaitlisted,
		"seat_count": bson.M{"$lte": maxSeats},
	}
	if len(excludePassengers) > 0 {
		filter["passenger_id"] = bson.M{"$nin": excludePassengers}
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})

	var booking model.Booking
	err := r.collection.FindOne(ctx, filter, opts).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find waitlisted booking: %w", err)
	}

	return &booking, nil
}

// ApplyUpdate writes the given fields only when the booking's current status
// is one of `from`. A false return means the precondition no longer holds.
func (r *mongoBookingRepository) ApplyUpdate(ctx context.Context, id string, from []model.BookingStatus, update BookingUpdate) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("%w: %s", riderrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID}
	if len(from) > 0 {
		filter["status"] = bson.M{"$in": from}
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": updateFields(update)})
	if err != nil {
		return false, fmt.Errorf("failed to update booking: %w", err)
	}

	return result.MatchedCount > 0, nil
}

// CascadeByRide applies the update to every booking on the ride whose status
// is one of `from`. Used by lifecycle transitions and the sweep.
func (r *mongoBookingRepository) CascadeByRide(ctx context.Context, rideID string, from []model.BookingStatus, update BookingUpdate) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"ride_id": rideID,
		"status":  bson.M{"$in": from},
	}

	result, err := r.collection.UpdateMany(ctx, filter, bson.M{"$set": updateFields(update)})
	if err != nil {
		return 0, fmt.Errorf("failed to cascade booking update: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *mongoBookingRepository) FindByRide(ctx context.Context, rideID string, statuses []model.BookingStatus) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"ride_id": rideID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings by ride: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func updateFields(update BookingUpdate) bson.M {
	fields := bson.M{
		"updated_at": time.Now().UTC().Truncate(time.Millisecond),
	}
	if update.Status != nil {
		fields["status"] = *update.Status
	}
	if update.TripStatus != nil {
		fields["trip_status"] = *update.TripStatus
	}
	if update.SeatCount != nil {
		fields["seat_count"] = *update.SeatCount
	}
	if update.SeatsHeld != nil {
		fields["seats_held"] = *update.SeatsHeld
	}
	if update.Contribution != nil {
		fields["contribution"] = *update.Contribution
	}
	return fields
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	riderrors "ridepool/internal/rides/errors"
	"ridepool/internal/rides/repository"
	"ridepool/internal/rides/validator"
	"ridepool/pkg/auth"
	"ridepool/pkg/config"
	apperrors "ridepool/pkg/errors"
	"ridepool/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

type RideService interface {
	Create(ctx context.Context, principal auth.Principal, ride *model.Ride) (*model.Ride, error)
	Update(ctx context.Context, principal auth.Principal, id string, update *RideUpdate) (*model.Ride, error)
	Cancel(ctx context.Context, principal auth.Principal, id string) (*model.Ride, error)
	GetByID(ctx context.Context, id string) (*model.Ride, error)
	ListUpcoming(ctx context.Context, limit int, offset int64) ([]*model.Ride, int64, error)
	ListByDriver(ctx context.Context, principal auth.Principal, limit int, offset int64) ([]*model.Ride, int64, error)
	Passengers(ctx context.Context, principal auth.Principal, rideID string) ([]*model.Booking, error)
}

// RideUpdate carries the editable ride fields for a driver edit. Nil fields
// keep their current value.
type RideUpdate struct {
	Origin        *string    `json:"origin"`
	Destination   *string    `json:"destination"`
	DepartureTime *time.Time `json:"departure_time"`
	ArrivalTime   *time.Time `json:"arrival_time"`
	TotalSeats    *int       `json:"total_seats"`
	RatePerKm     *float64   `json:"rate_per_km"`
	DistanceKm    *float64   `json:"distance_km"`
	Note          *string    `json:"note"`
	VehicleModel  *string    `json:"vehicle_model"`
	VehiclePlate  *string    `json:"vehicle_plate"`
	ContactInfo   *string    `json:"contact_info"`
}

type rideService struct {
	rides     repository.RideRepository
	bookings  repository.BookingRepository
	locks     repository.RideLockRepository
	validator *validator.RideValidator
	promoter  *WaitlistPromoter
	notifier  Notifier
	cfg       *config.Config
}

func NewRideService(
	rides repository.RideRepository,
	bookings repository.BookingRepository,
	locks repository.RideLockRepository,
	rideValidator *validator.RideValidator,
	promoter *WaitlistPromoter,
	notifier Notifier,
	cfg *config.Config,
) RideService {
	return &rideService{
		rides:     rides,
		bookings:  bookings,
		locks:     locks,
		validator: rideValidator,
		promoter:  promoter,
		notifier:  notifier,
		cfg:       cfg,
	}
}

func (s *rideService) Create(ctx context.Context, principal auth.Principal, ride *model.Ride) (*model.Ride, error) {
	if principal.Role != auth.RoleDriver && !principal.IsAdmin() {
		return nil, apperrors.Forbidden("only drivers can publish rides")
	}

	ride.DriverID = principal.ID
	ride.Status = model.RideUpcoming
	ride.AvailableSeats = ride.TotalSeats

	if err := s.validator.Validate(ride); err != nil {
		s.cfg.Log.Warn("Ride validation failed", "error", err)
		return nil, apperrors.Validation("Ride validation failed", map[string]any{"error": err.Error()})
	}

	overlapping, err := s.rides.FindOverlapping(ctx, ride.DriverID, ride.DepartureTime, ride.ArrivalTime)
	if err != nil {
		return nil, apperrors.Internal("Failed to check overlapping rides", err)
	}
	if len(overlapping) > 0 {
		other := overlapping[0]
		return nil, apperrors.Conflict(fmt.Sprintf(
			"Ride window overlaps with your existing ride (%s - %s)",
			other.DepartureTime.Format(time.RFC3339),
			other.ArrivalTime.Format(time.RFC3339),
		))
	}

	if err := s.rides.Create(ctx, ride); err != nil {
		s.cfg.Log.Error("Failed to create ride", "driver_id", ride.DriverID, "error", err)
		return nil, apperrors.Internal("Failed to create ride", err)
	}

	s.cfg.Log.Info("Ride created",
		"ride_id", ride.ID,
		"driver_id", ride.DriverID,
		"departure_time", ride.DepartureTime,
		"total_seats", ride.TotalSeats,
	)
	return ride, nil
}

// Update edits an upcoming ride. Capacity changes keep the seat ledger
// consistent: the new total may never dip below seats already held by pending
// or confirmed bookings, and extra capacity promotes the waitlist in the same
// transaction.
func (s *rideService) Update(ctx context.Context, principal auth.Principal, id string, update *RideUpdate) (*model.Ride, error) {
	ride, err := s.findRide(ctx, id)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != principal.ID && !principal.IsAdmin() {
		return nil, apperrors.NotOwner("only the ride's driver can edit it")
	}
	if ride.Status != model.RideUpcoming {
		return nil, apperrors.InvalidTransition("only an upcoming ride can be edited")
	}

	lockID, err := acquireRideLock(ctx, s.locks, s.cfg, id, principal.ID)
	if err != nil {
		return nil, err
	}
	defer releaseRideLock(ctx, s.locks, s.cfg, lockID)

	var updated *model.Ride
	var promoted []*model.Booking
	err = s.rides.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		current, err := s.rides.FindByID(sessCtx, id)
		if err != nil {
			return mapRideErr(err, id)
		}
		if current.Status != model.RideUpcoming {
			return apperrors.InvalidTransition("only an upcoming ride can be edited")
		}

		next := *current
		update.applyTo(&next)

		held := current.TotalSeats - current.AvailableSeats
		if next.TotalSeats != current.TotalSeats {
			if next.TotalSeats < held {
				return apperrors.Conflict(fmt.Sprintf(
					"cannot reduce capacity below the %d seats already held", held))
			}
			next.AvailableSeats = next.TotalSeats - held
		}

		if err := s.validator.Validate(&next); err != nil {
			s.cfg.Log.Warn("Ride validation failed", "ride_id", id, "error", err)
			return apperrors.Validation("Ride validation failed", map[string]any{"error": err.Error()})
		}

		if !next.DepartureTime.Equal(current.DepartureTime) || !next.ArrivalTime.Equal(current.ArrivalTime) {
			overlapping, err := s.rides.FindOverlapping(sessCtx, current.DriverID, next.DepartureTime, next.ArrivalTime)
			if err != nil {
				return apperrors.Internal("Failed to check overlapping rides", err)
			}
			for _, other := range overlapping {
				if other.ID == id {
					continue
				}
				return apperrors.Conflict(fmt.Sprintf(
					"Ride window overlaps with your existing ride (%s - %s)",
					other.DepartureTime.Format(time.RFC3339),
					other.ArrivalTime.Format(time.RFC3339),
				))
			}
		}

		ok, err := s.rides.UpdateDetails(sessCtx, id, []model.RideStatus{model.RideUpcoming}, &next)
		if err != nil {
			return apperrors.Internal("Failed to update ride", err)
		}
		if !ok {
			return apperrors.InvalidTransition("ride state changed, retry the update")
		}

		if next.RatePerKm != current.RatePerKm {
			if err := s.repriceConfirmed(sessCtx, id, next.RatePerKm); err != nil {
				return err
			}
		}

		updated = &next
		if next.TotalSeats > current.TotalSeats {
			promoted, err = s.promoter.Promote(sessCtx, id)
			if err != nil {
				return apperrors.Internal("Failed to promote waitlist", err)
			}
			if len(promoted) > 0 {
				updated, err = s.rides.FindByID(sessCtx, id)
				if err != nil {
					return mapRideErr(err, id)
				}
			}
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to update ride", "ride_id", id, "error", err)
		return nil, err
	}

	notifyPromotions(ctx, s.notifier, promoted)
	s.cfg.Log.Info("Ride updated",
		"ride_id", id,
		"driver_id", updated.DriverID,
		"total_seats", updated.TotalSeats,
	)
	return updated, nil
}

// Cancel withdraws a ride that has not run yet. Every live booking is
// cancelled with it and its passengers are notified after commit. Seat
// counters are left alone; the ride is terminal so they no longer mean
// anything.
func (s *rideService) Cancel(ctx context.Context, principal auth.Principal, id string) (*model.Ride, error) {
	ride, err := s.findRide(ctx, id)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != principal.ID && !principal.IsAdmin() {
		return nil, apperrors.NotOwner("only the ride's driver can cancel it")
	}
	if !ride.Status.CanTransition(model.RideCancelled) {
		return nil, apperrors.InvalidTransition("ride cannot be cancelled from its current state")
	}

	lockID, err := acquireRideLock(ctx, s.locks, s.cfg, id, principal.ID)
	if err != nil {
		return nil, err
	}
	defer releaseRideLock(ctx, s.locks, s.cfg, lockID)

	liveStates := []model.BookingStatus{model.BookingPending, model.BookingConfirmed, model.BookingWaitlisted}
	var affected []*model.Booking
	err = s.rides.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		ok, err := s.rides.UpdateStatus(sessCtx, id,
			[]model.RideStatus{model.RideUpcoming, model.RideNotStarted}, model.RideCancelled)
		if err != nil {
			return apperrors.Internal("Failed to cancel ride", err)
		}
		if !ok {
			return apperrors.InvalidTransition("ride state changed, cancellation skipped")
		}

		affected, err = s.bookings.FindByRide(sessCtx, id, liveStates)
		if err != nil {
			return apperrors.Internal("Failed to load bookings", err)
		}

		cancelled := model.BookingCancelled
		trip := model.TripCancelled
		held := false
		_, err = s.bookings.CascadeByRide(sessCtx, id, liveStates,
			repository.BookingUpdate{Status: &cancelled, TripStatus: &trip, SeatsHeld: &held},
		)
		if err != nil {
			return apperrors.Internal("Failed to cancel passenger bookings", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to cancel ride", "ride_id", id, "error", err)
		return nil, err
	}

	for _, b := range affected {
		s.notifier.BookingOutcome(ctx, bookingEvent(b, model.OutcomeCancelled))
	}
	ride.Status = model.RideCancelled
	s.cfg.Log.Info("Ride cancelled by driver",
		"ride_id", id,
		"driver_id", ride.DriverID,
		"bookings_cancelled", len(affected),
	)
	return ride, nil
}

func (s *rideService) GetByID(ctx context.Context, id string) (*model.Ride, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Ride ID cannot be empty")
	}
	return s.findRide(ctx, id)
}

func (s *rideService) ListUpcoming(ctx context.Context, limit int, offset int64) ([]*model.Ride, int64, error) {
	now := time.Now()

	var count int64
	var rides []*model.Ride
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.rides.CountUpcoming(ctx, now)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count upcoming rides", "error", errCount)
			errCount = apperrors.Internal("Failed to count rides", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		rides, errFind = s.rides.FindUpcoming(ctx, now, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list upcoming rides", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve rides", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return rides, count, nil
}

func (s *rideService) ListByDriver(ctx context.Context, principal auth.Principal, limit int, offset int64) ([]*model.Ride, int64, error) {
	var count int64
	var rides []*model.Ride
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.rides.CountByDriver(ctx, principal.ID)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count driver rides", "driver_id", principal.ID, "error", errCount)
			errCount = apperrors.Internal("Failed to count rides", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		rides, errFind = s.rides.FindByDriver(ctx, principal.ID, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list driver rides", "driver_id", principal.ID, "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve rides", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return rides, count, nil
}

// Passengers lists the confirmed bookings on a ride. Only the ride's driver
// (or admin) sees the manifest.
func (s *rideService) Passengers(ctx context.Context, principal auth.Principal, rideID string) ([]*model.Booking, error) {
	ride, err := s.findRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != principal.ID && !principal.IsAdmin() {
		return nil, apperrors.NotOwner("only the ride's driver can list its passengers")
	}

	bookings, err := s.bookings.FindConfirmedByRide(ctx, rideID)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve passengers", err)
	}
	return bookings, nil
}

func (u *RideUpdate) applyTo(r *model.Ride) {
	if u.Origin != nil {
		r.Origin = *u.Origin
	}
	if u.Destination != nil {
		r.Destination = *u.Destination
	}
	if u.DepartureTime != nil {
		r.DepartureTime = *u.DepartureTime
	}
	if u.ArrivalTime != nil {
		r.ArrivalTime = *u.ArrivalTime
	}
	if u.TotalSeats != nil {
		r.TotalSeats = *u.TotalSeats
	}
	if u.RatePerKm != nil {
		r.RatePerKm = *u.RatePerKm
	}
	if u.DistanceKm != nil {
		r.DistanceKm = *u.DistanceKm
	}
	if u.Note != nil {
		r.Note = *u.Note
	}
	if u.VehicleModel != nil {
		r.VehicleModel = *u.VehicleModel
	}
	if u.VehiclePlate != nil {
		r.VehiclePlate = *u.VehiclePlate
	}
	if u.ContactInfo != nil {
		r.ContactInfo = *u.ContactInfo
	}
}

// repriceConfirmed recomputes confirmed bookings' contributions after a rate
// change. Pending and waitlisted bookings are priced when they confirm.
func (s *rideService) repriceConfirmed(sessCtx mongo.SessionContext, rideID string, rate float64) error {
	confirmed, err := s.bookings.FindConfirmedByRide(sessCtx, rideID)
	if err != nil {
		return apperrors.Internal("Failed to load confirmed bookings", err)
	}
	for _, b := range confirmed {
		contribution := model.ContributionFor(b.DistanceKm, rate)
		if _, err := s.bookings.ApplyUpdate(sessCtx, b.ID,
			[]model.BookingStatus{model.BookingConfirmed},
			repository.BookingUpdate{Contribution: &contribution},
		); err != nil {
			return apperrors.Internal("Failed to reprice booking", err)
		}
	}
	return nil
}

func (s *rideService) findRide(ctx context.Context, id string) (*model.Ride, error) {
	ride, err := s.rides.FindByID(ctx, id)
	if err != nil {
		return nil, mapRideErr(err, id)
	}
	return ride, nil
}

func mapRideErr(err error, id string) error {
	if errors.Is(err, riderrors.ErrRideNotFound) {
		return apperrors.NotFoundWithID("Ride", id)
	}
	if errors.Is(err, riderrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid ride ID format")
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Internal("Failed to retrieve ride", err)
}

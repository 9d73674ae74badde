package service

import (
	"context"
	"time"

	"ridepool/internal/rides/repository"
	"ridepool/pkg/auth"
	"ridepool/pkg/config"
	apperrors "ridepool/pkg/errors"
	"ridepool/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

type LifecycleService interface {
	StartRide(ctx context.Context, principal auth.Principal, rideID string) (*model.Ride, error)
	EndRide(ctx context.Context, principal auth.Principal, rideID string) (*model.Ride, error)
}

type lifecycleService struct {
	rides    repository.RideRepository
	bookings repository.BookingRepository
	cfg      *config.Config
}

func NewLifecycleService(
	rides repository.RideRepository,
	bookings repository.BookingRepository,
	cfg *config.Config,
) LifecycleService {
	return &lifecycleService{
		rides:    rides,
		bookings: bookings,
		cfg:      cfg,
	}
}

// startableStates lets the driver start late: the sweep's not_started_yet
// marker does not forfeit the ride until the arrival time passes.
var startableStates = []model.RideStatus{model.RideUpcoming, model.RideNotStarted}

// StartRide moves the ride to active and mirrors the change onto confirmed
// bookings. Starting after the arrival time cancels the ride instead.
func (s *lifecycleService) StartRide(ctx context.Context, principal auth.Principal, rideID string) (*model.Ride, error) {
	ride, err := s.loadOwnedRide(ctx, principal, rideID)
	if err != nil {
		return nil, err
	}

	if !containsStatus(startableStates, ride.Status) {
		return nil, apperrors.InvalidTransition("ride cannot be started from its current state")
	}

	if !time.Now().Before(ride.ArrivalTime) {
		err = s.rides.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			return cancelRideCascade(sessCtx, s.rides, s.bookings, rideID, startableStates)
		})
		if err != nil {
			s.cfg.Log.Error("Failed to cancel overdue ride", "ride_id", rideID, "error", err)
			return nil, err
		}
		s.cfg.Log.Info("Ride cancelled on late start attempt", "ride_id", rideID)
		return nil, apperrors.InvalidTransition("arrival time has passed, ride was cancelled")
	}

	err = s.rides.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		ok, err := s.rides.UpdateStatus(sessCtx, rideID, startableStates, model.RideActive)
		if err != nil {
			return apperrors.Internal("Failed to start ride", err)
		}
		if !ok {
			return apperrors.InvalidTransition("ride state changed, retry the start")
		}

		active := model.TripActive
		_, err = s.bookings.CascadeByRide(sessCtx, rideID,
			[]model.BookingStatus{model.BookingConfirmed},
			repository.BookingUpdate{TripStatus: &active},
		)
		if err != nil {
			return apperrors.Internal("Failed to update passenger trips", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to start ride", "ride_id", rideID, "error", err)
		return nil, err
	}

	ride.Status = model.RideActive
	s.cfg.Log.Info("Ride started", "ride_id", rideID, "driver_id", ride.DriverID)
	return ride, nil
}

// EndRide completes an active ride. Confirmed trips finish here; pending and
// waitlisted bookings are left for the reconciliation sweep to settle.
func (s *lifecycleService) EndRide(ctx context.Context, principal auth.Principal, rideID string) (*model.Ride, error) {
	ride, err := s.loadOwnedRide(ctx, principal, rideID)
	if err != nil {
		return nil, err
	}

	if ride.Status != model.RideActive {
		return nil, apperrors.InvalidTransition("only an active ride can be ended")
	}

	err = s.rides.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		ok, err := s.rides.UpdateStatus(sessCtx, rideID,
			[]model.RideStatus{model.RideActive}, model.RideCompleted)
		if err != nil {
			return apperrors.Internal("Failed to end ride", err)
		}
		if !ok {
			return apperrors.InvalidTransition("ride state changed, retry the end")
		}

		completed := model.TripCompleted
		_, err = s.bookings.CascadeByRide(sessCtx, rideID,
			[]model.BookingStatus{model.BookingConfirmed},
			repository.BookingUpdate{TripStatus: &completed},
		)
		if err != nil {
			return apperrors.Internal("Failed to update passenger trips", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to end ride", "ride_id", rideID, "error", err)
		return nil, err
	}

	ride.Status = model.RideCompleted
	s.cfg.Log.Info("Ride completed", "ride_id", rideID, "driver_id", ride.DriverID)
	return ride, nil
}

func (s *lifecycleService) loadOwnedRide(ctx context.Context, principal auth.Principal, rideID string) (*model.Ride, error) {
	if rideID == "" {
		return nil, apperrors.InvalidInput("Ride ID cannot be empty")
	}

	ride, err := s.rides.FindByID(ctx, rideID)
	if err != nil {
		return nil, mapRideErr(err, rideID)
	}

	if ride.DriverID != principal.ID && !principal.IsAdmin() {
		return nil, apperrors.NotOwner("only the ride's driver can change its lifecycle")
	}

	return ride, nil
}

// cancelRideCascade cancels the ride from one of the given states and settles
// every live booking as never travelled. Seat counters are left alone; the
// ride is terminal so they no longer mean anything.
func cancelRideCascade(
	sessCtx mongo.SessionContext,
	rides repository.RideRepository,
	bookings repository.BookingRepository,
	rideID string,
	from []model.RideStatus,
) error {
	ok, err := rides.UpdateStatus(sessCtx, rideID, from, model.RideCancelled)
	if err != nil {
		return apperrors.Internal("Failed to cancel ride", err)
	}
	if !ok {
		return apperrors.InvalidTransition("ride state changed, cancellation skipped")
	}

	cancelled := model.BookingCancelled
	didNotTravel := model.TripDidNotTravel
	held := false
	_, err = bookings.CascadeByRide(sessCtx, rideID,
		[]model.BookingStatus{model.BookingPending, model.BookingConfirmed, model.BookingWaitlisted},
		repository.BookingUpdate{Status: &cancelled, TripStatus: &didNotTravel, SeatsHeld: &held},
	)
	if err != nil {
		return apperrors.Internal("Failed to cancel passenger bookings", err)
	}
	return nil
}

func containsStatus(list []model.RideStatus, s model.RideStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

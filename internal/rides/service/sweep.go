package service

import (
	"context"
	"time"

	"ridepool/internal/rides/repository"
	"ridepool/pkg/config"
	apperrors "ridepool/pkg/errors"
	"ridepool/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// sweepBatchSize caps how many rides one sweep pass examines.
const sweepBatchSize = 500

// SweepReport summarizes one reconciliation pass.
type SweepReport struct {
	RidesExamined int `json:"rides_examined"`
	MarkedLate    int `json:"marked_late"`
	Cancelled     int `json:"cancelled"`
	AutoCompleted int `json:"auto_completed"`
	Failures      int `json:"failures"`
}

// SweepService reconciles ride and booking states against the clock. It
// repairs what drivers forgot: rides never started past their window are
// cancelled, rides left running past arrival plus a grace period are
// auto-completed, and passenger trip states follow.
//
// The sweep takes no ride lock. It never touches seat counters, and all its
// status writes carry current-state filters, so a pass can be killed and
// rerun at any point without harm.
type SweepService interface {
	RunSweep(ctx context.Context, now time.Time) (SweepReport, error)
}

type sweepService struct {
	rides    repository.RideRepository
	bookings repository.BookingRepository
	cfg      *config.Config
}

func NewSweepService(
	rides repository.RideRepository,
	bookings repository.BookingRepository,
	cfg *config.Config,
) SweepService {
	return &sweepService{
		rides:    rides,
		bookings: bookings,
		cfg:      cfg,
	}
}

func (s *sweepService) RunSweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport

	rides, err := s.rides.FindNonTerminal(ctx, sweepBatchSize)
	if err != nil {
		return report, apperrors.Internal("Failed to list rides for sweep", err)
	}

	for _, ride := range rides {
		report.RidesExamined++

		action := s.classify(ride, now)
		if action == sweepNone {
			continue
		}

		if err := s.apply(ctx, ride, action); err != nil {
			report.Failures++
			s.cfg.Log.Error("Sweep failed for ride",
				"ride_id", ride.ID,
				"status", ride.Status,
				"error", err,
			)
			continue
		}

		switch action {
		case sweepMarkLate:
			report.MarkedLate++
		case sweepCancel:
			report.Cancelled++
		case sweepAutoComplete:
			report.AutoCompleted++
		}
	}

	s.cfg.Log.Info("Reconciliation sweep finished",
		"rides_examined", report.RidesExamined,
		"marked_late", report.MarkedLate,
		"cancelled", report.Cancelled,
		"auto_completed", report.AutoCompleted,
		"failures", report.Failures,
	)
	return report, nil
}

type sweepAction int

const (
	sweepNone sweepAction = iota
	sweepMarkLate
	sweepCancel
	sweepAutoComplete
)

func (s *sweepService) classify(ride *model.Ride, now time.Time) sweepAction {
	switch ride.Status {
	case model.RideUpcoming:
		// Cancellation kicks in at the arrival time itself, not one tick
		// after it.
		if !now.Before(ride.ArrivalTime) {
			return sweepCancel
		}
		if !now.Before(ride.DepartureTime) {
			return sweepMarkLate
		}
	case model.RideNotStarted:
		if !now.Before(ride.ArrivalTime) {
			return sweepCancel
		}
	case model.RideActive:
		if now.After(ride.ArrivalTime.Add(s.cfg.SweepGracePeriod)) {
			return sweepAutoComplete
		}
	}
	return sweepNone
}

func (s *sweepService) apply(ctx context.Context, ride *model.Ride, action sweepAction) error {
	switch action {
	case sweepMarkLate:
		// Single conditional write, no booking changes; a transaction would
		// add nothing.
		_, err := s.rides.UpdateStatus(ctx, ride.ID,
			[]model.RideStatus{model.RideUpcoming}, model.RideNotStarted)
		return err

	case sweepCancel:
		return s.rides.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			err := cancelRideCascade(sessCtx, s.rides, s.bookings, ride.ID, startableStates)
			if apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
				// Someone else moved the ride first; nothing to repair.
				return nil
			}
			return err
		})

	case sweepAutoComplete:
		return s.rides.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			ok, err := s.rides.UpdateStatus(sessCtx, ride.ID,
				[]model.RideStatus{model.RideActive}, model.RideAutoCompleted)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}

			completed := model.TripCompleted
			if _, err := s.bookings.CascadeByRide(sessCtx, ride.ID,
				[]model.BookingStatus{model.BookingConfirmed},
				repository.BookingUpdate{TripStatus: &completed},
			); err != nil {
				return err
			}

			// Pending and waitlisted passengers never travelled.
			cancelled := model.BookingCancelled
			didNotTravel := model.TripDidNotTravel
			held := false
			_, err = s.bookings.CascadeByRide(sessCtx, ride.ID,
				[]model.BookingStatus{model.BookingPending, model.BookingWaitlisted},
				repository.BookingUpdate{Status: &cancelled, TripStatus: &didNotTravel, SeatsHeld: &held},
			)
			return err
		})
	}
	return nil
}

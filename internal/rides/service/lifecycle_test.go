package service

import (
	"context"
	"testing"
	"time"

	apperrors "ridepool/pkg/errors"
	"ridepool/pkg/model"
)

func TestStartRide_ActivatesRideAndConfirmedTrips(t *testing.T) {
	env := newTestEnv()
	ride := env.seedRide(driver.ID, 4, 1, futureDeparture())
	confirmed := env.seedBooking(ride.ID, passenger.ID, 2, model.BookingConfirmed, true)
	pending := env.seedBooking(ride.ID, "passenger-2", 1, model.BookingPending, true)

	started, err := env.lifecycle.StartRide(context.Background(), driver, ride.ID)
	if err != nil {
		t.Fatalf("StartRide() returned error: %v", err)
	}

	if started.Status != model.RideActive {
		t.Errorf("expected ride active, got %s", started.Status)
	}
	if got := env.bookingState(confirmed.ID).TripStatus; got != model.TripActive {
		t.Errorf("expected confirmed trip active, got %s", got)
	}
	if got := env.bookingState(pending.ID).TripStatus; got != model.TripUpcoming {
		t.Errorf("pending trip must not follow the start, got %s", got)
	}
}

func TestStartRide_AllowedAfterSweepMarkedItLate(t *testing.T) {
	env := newTestEnv()
	ride := env.seedRide(driver.ID, 4, 4, time.Now().Add(-10*time.Minute))
	ride.Status = model.RideNotStarted

	started, err := env.lifecycle.StartRide(context.Background(), driver, ride.ID)
	if err != nil {
		t.Fatalf("late start before arrival should succeed, got %v", err)
	}
	if started.Status != model.RideActive {
		t.Errorf("expected ride active, got %s", started.Status)
	}
}

func TestStartRide_AfterArrivalCancelsRide(t *testing.T) {
	env := newTestEnv()
	departure := time.Now().Add(-3 * time.Hour)
	ride := env.seedRide(driver.ID, 4, 1, departure)
	confirmed := env.seedBooking(ride.ID, passenger.ID, 2, model.BookingConfirmed, true)
	waitlisted := env.seedBooking(ride.ID, "passenger-2", 1, model.BookingWaitlisted, false)

	_, err := env.lifecycle.StartRide(context.Background(), driver, ride.ID)
	assertCode(t, err, apperrors.CodeInvalidTransition)

	if got := env.rideState(ride.ID).Status; got != model.RideCancelled {
		t.Errorf("expected ride cancelled, got %s", got)
	}
	for _, id := range []string{confirmed.ID, waitlisted.ID} {
		b := env.bookingState(id)
		if b.Status != model.BookingCancelled {
			t.Errorf("expected booking %s cancelled, got %s", id, b.Status)
		}
		if b.TripStatus != model.TripDidNotTravel {
			t.Errorf("expected trip did_not_travel, got %s", b.TripStatus)
		}
		if b.SeatsHeld {
			t.Errorf("cancelled booking must not hold seats")
		}
	}
}

func TestStartRide_RequiresDriver(t *testing.T) {
	env := newTestEnv()
	ride := env.seedRide(driver.ID, 4, 4, futureDeparture())

	_, err := env.lifecycle.StartRide(context.Background(), stranger, ride.ID)
	assertCode(t, err, apperrors.CodeNotOwner)
}

func TestStartRide_InvalidFromActive(t *testing.T) {
	env := newTestEnv()
	ride := env.seedRide(driver.ID, 4, 4, futureDeparture())
	ride.Status = model.RideActive

	_, err := env.lifecycle.StartRide(context.Background(), driver, ride.ID)
	assertCode(t, err, apperrors.CodeInvalidTransition)
}

func TestEndRide_CompletesConfirmedTrips(t *testing.T) {
	env := newTestEnv()
	ride := env.seedRide(driver.ID, 4, 1, time.Now().Add(-time.Hour))
	ride.Status = model.RideActive
	confirmed := env.seedBooking(ride.ID, passenger.ID, 2, model.BookingConfirmed, true)
	pending := env.seedBooking(ride.ID, "passenger-2", 1, model.BookingPending, true)

	ended, err := env.lifecycle.EndRide(context.Background(), driver, ride.ID)
	if err != nil {
		t.Fatalf("EndRide() returned error: %v", err)
	}

	if ended.Status != model.RideCompleted {
		t.Errorf("expected ride completed, got %s", ended.Status)
	}
	if got := env.bookingState(confirmed.ID).TripStatus; got != model.TripCompleted {
		t.Errorf("expected confirmed trip completed, got %s", got)
	}
	// Undecided bookings are left for the reconciliation sweep.
	if got := env.bookingState(pending.ID).Status; got != model.BookingPending {
		t.Errorf("pending booking must be untouched by end, got %s", got)
	}
}

func TestEndRide_OnlyFromActive(t *testing.T) {
	env := newTestEnv()
	ride := env.seedRide(driver.ID, 4, 4, futureDeparture())

	_, err := env.lifecycle.EndRide(context.Background(), driver, ride.ID)
	assertCode(t, err, apperrors.CodeInvalidTransition)
}

func TestEndRide_AdminMayActForDriver(t *testing.T) {
	env := newTestEnv()
	ride := env.seedRide(driver.ID, 4, 4, time.Now().Add(-time.Hour))
	ride.Status = model.RideActive

	if _, err := env.lifecycle.EndRide(context.Background(), admin, ride.ID); err != nil {
		t.Errorf("admin should be able to end any ride, got %v", err)
	}
}

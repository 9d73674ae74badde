package service

import (
	"context"
	"testing"
	"time"

	"ridepool/pkg/model"
)

func TestSweep_MarksLateRideAsNotStarted(t *testing.T) {
	env := newTestEnv()
	ride := env.seedRide(driver.ID, 4, 2, time.Now())
	booking := env.seedBooking(ride.ID, passenger.ID, 2, model.BookingConfirmed, true)

	now := ride.DepartureTime.Add(10 * time.Minute)
	report, err := env.sweep.RunSweep(context.Background(), now)
	if err != nil {
		t.Fatalf("RunSweep() returned error: %v", err)
	}

	if report.MarkedLate != 1 {
		t.Errorf("expected 1 ride marked late, got %d", report.MarkedLate)
	}
	if got := env.rideState(ride.ID).Status; got != model.RideNotStarted {
		t.Errorf("expected ride not_started_yet, got %s", got)
	}
	// Marking a ride late changes nothing for its passengers.
	if got := env.bookingState(booking.ID).Status; got != model.BookingConfirmed {
		t.Errorf("expected booking untouched, got %s", got)
	}
	if got := env.rideState(ride.ID).AvailableSeats; got != 2 {
		t.Errorf("expected seat counter untouched, got %d", got)
	}
}

func TestSweep_CancelsRidesNeverStarted(t *testing.T) {
	env := newTestEnv()
	upcoming := env.seedRide(driver.ID, 4, 2, time.Now())
	late := env.seedRide("driver-2", 4, 4, time.Now())
	late.Status = model.RideNotStarted
	booking := env.seedBooking(upcoming.ID, passenger.ID, 2, model.BookingPending, true)

	now := upcoming.ArrivalTime.Add(time.Minute)
	report, err := env.sweep.RunSweep(context.Background(), now)
	if err != nil {
		t.Fatalf("RunSweep() returned error: %v", err)
	}

	if report.Cancelled != 2 {
		t.Errorf("expected 2 rides cancelled, got %d", report.Cancelled)
	}
	for _, id := range []string{upcoming.ID, late.ID} {
		if got := env.rideState(id).Status; got != model.RideCancelled {
			t.Errorf("expected ride %s cancelled, got %s", id, got)
		}
	}

	b := env.bookingState(booking.ID)
	if b.Status != model.BookingCancelled {
		t.Errorf("expected booking cancelled, got %s", b.Status)
	}
	if b.TripStatus != model.TripDidNotTravel {
		t.Errorf("expected trip did_not_travel, got %s", b.TripStatus)
	}
	if b.SeatsHeld {
		t.Errorf("cancelled booking must not hold seats")
	}
}

func TestSweep_AutoCompletesOverdueActiveRide(t *testing.T) {
	env := newTestEnv()
	ride := env.seedRide(driver.ID, 6, 1, time.Now().Add(-5*time.Hour))
	ride.Status = model.RideActive
	confirmed := env.seedBooking(ride.ID, passenger.ID, 3, model.BookingConfirmed, true)
	pending := env.seedBooking(ride.ID, "passenger-2", 2, model.BookingPending, true)
	waitlisted := env.seedBooking(ride.ID, "passenger-3", 1, model.BookingWaitlisted, false)

	now := ride.ArrivalTime.Add(env.cfg.SweepGracePeriod + time.Minute)
	report, err := env.sweep.RunSweep(context.Background(), now)
	if err != nil {
		t.Fatalf("RunSweep() returned error: %v", err)
	}

	if report.AutoCompleted != 1 {
		t.Errorf("expected 1 ride auto-completed, got %d", report.AutoCompleted)
	}
	if got := env.rideState(ride.ID).Status; got != model.RideAutoCompleted {
		t.Errorf("expected ride auto_completed, got %s", got)
	}

	if got := env.bookingState(confirmed.ID).TripStatus; got != model.TripCompleted {
		t.Errorf("expected confirmed trip completed, got %s", got)
	}
	for _, id := range []string{pending.ID, waitlisted.ID} {
		b := env.bookingState(id)
		if b.Status != model.BookingCancelled {
			t.Errorf("expected undecided booking %s cancelled, got %s", id, b.Status)
		}
		if b.TripStatus != model.TripDidNotTravel {
			t.Errorf("expected trip did_not_travel, got %s", b.TripStatus)
		}
	}
}

func TestSweep_WithinGracePeriodLeavesActiveRideAlone(t *testing.T) {
	env := newTestEnv()
	ride := env.seedRide(driver.ID, 4, 4, time.Now().Add(-2*time.Hour))
	ride.Status = model.RideActive

	now := ride.ArrivalTime.Add(env.cfg.SweepGracePeriod - time.Minute)
	report, err := env.sweep.RunSweep(context.Background(), now)
	if err != nil {
		t.Fatalf("RunSweep() returned error: %v", err)
	}

	if report.AutoCompleted != 0 {
		t.Errorf("expected no auto-completion within grace period, got %d", report.AutoCompleted)
	}
	if got := env.rideState(ride.ID).Status; got != model.RideActive {
		t.Errorf("expected ride still active, got %s", got)
	}
}

func TestSweep_LeavesHealthyRidesAlone(t *testing.T) {
	env := newTestEnv()
	ride := env.seedRide(driver.ID, 4, 4, futureDeparture())

	report, err := env.sweep.RunSweep(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("RunSweep() returned error: %v", err)
	}

	if report.RidesExamined != 1 {
		t.Errorf("expected 1 ride examined, got %d", report.RidesExamined)
	}
	if report.MarkedLate+report.Cancelled+report.AutoCompleted != 0 {
		t.Errorf("expected no actions, got %+v", report)
	}
	if got := env.rideState(ride.ID).Status; got != model.RideUpcoming {
		t.Errorf("expected ride untouched, got %s", got)
	}
}

func TestSweep_SecondPassIsNoOp(t *testing.T) {
	env := newTestEnv()
	expired := env.seedRide(driver.ID, 4, 2, time.Now())
	env.seedBooking(expired.ID, passenger.ID, 2, model.BookingPending, true)
	overdue := env.seedRide("driver-2", 4, 4, time.Now().Add(-5*time.Hour))
	overdue.Status = model.RideActive

	now := overdue.ArrivalTime.Add(env.cfg.SweepGracePeriod + 2*time.Hour)
	first, err := env.sweep.RunSweep(context.Background(), now)
	if err != nil {
		t.Fatalf("first RunSweep() returned error: %v", err)
	}
	if first.Cancelled != 1 || first.AutoCompleted != 1 {
		t.Fatalf("unexpected first pass report: %+v", first)
	}

	second, err := env.sweep.RunSweep(context.Background(), now)
	if err != nil {
		t.Fatalf("second RunSweep() returned error: %v", err)
	}
	if second.RidesExamined != 0 {
		t.Errorf("terminal rides must not be re-examined, got %d", second.RidesExamined)
	}
	if second.MarkedLate+second.Cancelled+second.AutoCompleted+second.Failures != 0 {
		t.Errorf("second pass must be a no-op, got %+v", second)
	}
}

func TestSweep_CancelsAtExactArrivalTime(t *testing.T) {
	env := newTestEnv()
	ride := env.seedRide(driver.ID, 4, 4, time.Now())

	report, err := env.sweep.RunSweep(context.Background(), ride.ArrivalTime)
	if err != nil {
		t.Fatalf("RunSweep() returned error: %v", err)
	}

	if report.Cancelled != 1 {
		t.Errorf("expected ride cancelled at its arrival time, got %d cancellations", report.Cancelled)
	}
	if got := env.rideState(ride.ID).Status; got != model.RideCancelled {
		t.Errorf("expected ride cancelled, got %s", got)
	}
}

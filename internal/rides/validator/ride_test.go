package validator

import (
	"io"
	"testing"
	"time"

	"ridepool/pkg/logger"
	"ridepool/pkg/model"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.ERROR, Format: logger.TEXT, Output: io.Discard})
}

func validRide() *model.Ride {
	departure := time.Now().Add(24 * time.Hour)
	return &model.Ride{
		DriverID:       "driver-1",
		Origin:         "Tel Aviv",
		Destination:    "Haifa",
		DepartureTime:  departure,
		ArrivalTime:    departure.Add(90 * time.Minute),
		TotalSeats:     4,
		AvailableSeats: 4,
		RatePerKm:      1.5,
		DistanceKm:     95,
		Status:         model.RideUpcoming,
	}
}

func TestRideValidator_Validate(t *testing.T) {
	v := NewRideValidator(testLogger())

	t.Run("valid ride passes", func(t *testing.T) {
		if err := v.Validate(validRide()); err != nil {
			t.Errorf("expected valid ride to pass, got %v", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*model.Ride)
	}{
		{"missing driver", func(r *model.Ride) { r.DriverID = "" }},
		{"missing origin", func(r *model.Ride) { r.Origin = "" }},
		{"origin too short", func(r *model.Ride) { r.Origin = "A" }},
		{"zero seats", func(r *model.Ride) { r.TotalSeats = 0 }},
		{"too many seats", func(r *model.Ride) { r.TotalSeats = 51 }},
		{"available exceeds total", func(r *model.Ride) { r.AvailableSeats = r.TotalSeats + 1 }},
		{"negative rate", func(r *model.Ride) { r.RatePerKm = -1 }},
		{"unknown status", func(r *model.Ride) { r.Status = "parked" }},
		{"arrival before departure", func(r *model.Ride) { r.ArrivalTime = r.DepartureTime.Add(-time.Hour) }},
		{"arrival equals departure", func(r *model.Ride) { r.ArrivalTime = r.DepartureTime }},
		{"departure in the past", func(r *model.Ride) {
			r.DepartureTime = time.Now().Add(-time.Hour)
			r.ArrivalTime = r.DepartureTime.Add(time.Hour)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ride := validRide()
			tt.mutate(ride)
			if err := v.Validate(ride); err == nil {
				t.Errorf("expected validation error for %s", tt.name)
			}
		})
	}
}

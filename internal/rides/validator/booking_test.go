package validator

import (
	"testing"

	"ridepool/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func validBooking() *model.Booking {
	return &model.Booking{
		RideID:      primitive.NewObjectID().Hex(),
		PassengerID: "passenger-1",
		SeatCount:   2,
		DistanceKm:  40,
		Status:      model.BookingPending,
		TripStatus:  model.TripUpcoming,
	}
}

func TestBookingValidator_Validate(t *testing.T) {
	v := NewBookingValidator(testLogger())

	t.Run("valid booking passes", func(t *testing.T) {
		if err := v.Validate(validBooking()); err != nil {
			t.Errorf("expected valid booking to pass, got %v", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*model.Booking)
	}{
		{"missing ride id", func(b *model.Booking) { b.RideID = "" }},
		{"malformed ride id", func(b *model.Booking) { b.RideID = "not-an-object-id" }},
		{"missing passenger", func(b *model.Booking) { b.PassengerID = "" }},
		{"zero seats", func(b *model.Booking) { b.SeatCount = 0 }},
		{"too many seats", func(b *model.Booking) { b.SeatCount = 51 }},
		{"negative distance", func(b *model.Booking) { b.DistanceKm = -1 }},
		{"unknown status", func(b *model.Booking) { b.Status = "parked" }},
		{"unknown trip status", func(b *model.Booking) { b.TripStatus = "teleported" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			booking := validBooking()
			tt.mutate(booking)
			if err := v.Validate(booking); err == nil {
				t.Errorf("expected validation error for %s", tt.name)
			}
		})
	}
}

func TestBookingValidator_ValidateSeatCount(t *testing.T) {
	v := NewBookingValidator(testLogger())

	tests := []struct {
		name      string
		seatCount int
		wantErr   bool
	}{
		{"minimum", 1, false},
		{"maximum", 50, false},
		{"typical", 3, false},
		{"zero", 0, true},
		{"negative", -2, true},
		{"over maximum", 51, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateSeatCount(tt.seatCount)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSeatCount(%d) error = %v, wantErr %v", tt.seatCount, err, tt.wantErr)
			}
		})
	}
}

package model

import (
	"time"
)

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingRejected   BookingStatus = "rejected"
	BookingWaitlisted BookingStatus = "waitlisted"
	BookingCancelled  BookingStatus = "cancelled"
)

// bookingTransitions is the allowed transition graph for a booking.
// pending -> waitlisted covers the approve-time demotion when the held seats
// were lost; waitlisted -> confirmed is waitlist promotion.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingConfirmed, BookingWaitlisted, BookingRejected, BookingCancelled},
	BookingConfirmed:  {BookingCancelled},
	BookingWaitlisted: {BookingConfirmed, BookingCancelled},
	BookingRejected:   {},
	BookingCancelled:  {},
}

func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// TripStatus mirrors the ride's progress for one passenger, filtered through
// the booking's own status. It is written only by lifecycle cascades and the
// reconciliation sweep, never recomputed on reads.
type TripStatus string

const (
	TripUpcoming     TripStatus = "upcoming"
	TripActive       TripStatus = "active"
	TripCompleted    TripStatus = "completed"
	TripCancelled    TripStatus = "cancelled"
	TripDidNotTravel TripStatus = "did_not_travel"
)

// Booking is a passenger's claim against a ride's seat inventory.
//
// SeatsHeld records whether this booking currently holds seats out of the
// ride's available_seats: true for pending (provisional hold) and confirmed
// bookings, false for waitlisted ones. Every reserve/release in the
// repositories keeps this flag and the ride counter in the same transaction.
type Booking struct {
	ID           string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	RideID       string        `json:"ride_id" bson:"ride_id" validate:"required,mongodb"`
	PassengerID  string        `json:"passenger_id" bson:"passenger_id" validate:"required"`
	SeatCount    int           `json:"seat_count" bson:"seat_count" validate:"required,min=1,max=50"`
	DistanceKm   float64       `json:"distance_km" bson:"distance_km" validate:"min=0"`
	Contribution float64       `json:"contribution" bson:"contribution" validate:"min=0"`
	Status       BookingStatus `json:"status" bson:"status" validate:"required,oneof=pending confirmed rejected waitlisted cancelled"`
	TripStatus   TripStatus    `json:"trip_status" bson:"trip_status" validate:"required,oneof=upcoming active completed cancelled did_not_travel"`
	SeatsHeld    bool          `json:"seats_held" bson:"seats_held"`
	PickupPoint  string        `json:"pickup_point,omitempty" bson:"pickup_point,omitempty" validate:"max=255"`
	DropPoint    string        `json:"drop_point,omitempty" bson:"drop_point,omitempty" validate:"max=255"`
	ContactInfo  string        `json:"contact_info,omitempty" bson:"contact_info,omitempty" validate:"max=255"`
	CreatedAt    time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

// ContributionFor computes the passenger's share for a ride at the given
// per-km rate. Recomputed whenever a booking is confirmed or its seat count
// changes while confirmed.
func ContributionFor(distanceKm, ratePerKm float64) float64 {
	if distanceKm <= 0 || ratePerKm <= 0 {
		return 0
	}
	return distanceKm * ratePerKm
}

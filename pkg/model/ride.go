package model

import (
	"time"
)

type RideStatus string

const (
	RideUpcoming      RideStatus = "upcoming"
	RideNotStarted    RideStatus = "not_started_yet"
	RideActive        RideStatus = "active"
	RideCompleted     RideStatus = "completed"
	RideAutoCompleted RideStatus = "auto_completed"
	RideCancelled     RideStatus = "cancelled"
)

// rideTransitions is the allowed transition graph for a ride.
// not_started_yet is set by the reconciliation sweep when the departure time
// passes without the driver starting; the driver can still start from there
// until the arrival time passes.
var rideTransitions = map[RideStatus][]RideStatus{
	RideUpcoming:      {RideNotStarted, RideActive, RideCancelled},
	RideNotStarted:    {RideActive, RideCancelled},
	RideActive:        {RideCompleted, RideAutoCompleted},
	RideCompleted:     {},
	RideAutoCompleted: {},
	RideCancelled:     {},
}

func (s RideStatus) CanTransition(to RideStatus) bool {
	for _, allowed := range rideTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s RideStatus) IsTerminal() bool {
	return len(rideTransitions[s]) == 0
}

// Ride is a driver's published trip with a fixed seat capacity and time
// window. AvailableSeats is mutated only through the repository's
// ReserveSeats/ReleaseSeats conditional updates.
type Ride struct {
	ID             string     `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	DriverID       string     `json:"driver_id" bson:"driver_id" validate:"required"`
	Origin         string     `json:"origin" bson:"origin" validate:"required,min=2,max=255"`
	Destination    string     `json:"destination" bson:"destination" validate:"required,min=2,max=255"`
	DepartureTime  time.Time  `json:"departure_time" bson:"departure_time" validate:"required"`
	ArrivalTime    time.Time  `json:"arrival_time" bson:"arrival_time" validate:"required,gtfield=DepartureTime"`
	TotalSeats     int        `json:"total_seats" bson:"total_seats" validate:"required,min=1,max=50"`
	AvailableSeats int        `json:"available_seats" bson:"available_seats" validate:"min=0,ltefield=TotalSeats"`
	RatePerKm      float64    `json:"rate_per_km" bson:"rate_per_km" validate:"min=0"`
	DistanceKm     float64    `json:"distance_km" bson:"distance_km" validate:"min=0"`
	Note           string     `json:"note,omitempty" bson:"note,omitempty" validate:"max=500"`
	VehicleModel   string     `json:"vehicle_model,omitempty" bson:"vehicle_model,omitempty" validate:"max=50"`
	VehiclePlate   string     `json:"vehicle_plate,omitempty" bson:"vehicle_plate,omitempty" validate:"max=20"`
	ContactInfo    string     `json:"contact_info,omitempty" bson:"contact_info,omitempty" validate:"max=255"`
	Status         RideStatus `json:"status" bson:"status" validate:"required,oneof=upcoming not_started_yet active completed auto_completed cancelled"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

// IsExpired reports whether bookings may no longer be created or modified
// against this ride.
func (r *Ride) IsExpired(now time.Time) bool {
	return now.After(r.DepartureTime)
}

func (r *Ride) Overlaps(departure, arrival time.Time) bool {
	return r.DepartureTime.Before(arrival) && r.ArrivalTime.After(departure)
}

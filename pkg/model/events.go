package model

import "time"

// BookingOutcome names the booking-facing events published for the external
// notification collaborator.
type BookingOutcome string

const (
	OutcomeRequested  BookingOutcome = "requested"
	OutcomeConfirmed  BookingOutcome = "confirmed"
	OutcomeRejected   BookingOutcome = "rejected"
	OutcomeWaitlisted BookingOutcome = "waitlisted"
	OutcomeCancelled  BookingOutcome = "cancelled"
	OutcomePromoted   BookingOutcome = "promoted"
)

// BookingEvent is the payload published per booking outcome. Delivery is
// fire-and-forget; a publish failure never rolls back the state transition
// that produced it.
type BookingEvent struct {
	BookingID    string         `json:"booking_id"`
	RideID       string         `json:"ride_id"`
	PassengerID  string         `json:"passenger_id"`
	Outcome      BookingOutcome `json:"outcome"`
	SeatCount    int            `json:"seat_count"`
	Contribution float64        `json:"contribution,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

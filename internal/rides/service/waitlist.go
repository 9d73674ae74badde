package service

import (
	"ridepool/internal/rides/repository"
	"ridepool/pkg/logger"
	"ridepool/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// WaitlistPromoter fills freed seats from the waitlist in FIFO order. It runs
// inside the transaction of whatever operation released the seats, so a
// promotion and its seat reservation commit or roll back together.
type WaitlistPromoter struct {
	rides    repository.RideRepository
	bookings repository.BookingRepository
	log      *logger.Logger
}

func NewWaitlistPromoter(
	rides repository.RideRepository,
	bookings repository.BookingRepository,
	log *logger.Logger,
) *WaitlistPromoter {
	return &WaitlistPromoter{
		rides:    rides,
		bookings: bookings,
		log:      log,
	}
}

// Promote confirms waitlisted bookings oldest-first while one still fits in
// the ride's available seats. It returns the promoted bookings so the caller
// can emit events after commit.
//
// A candidate whose passenger already holds a confirmed booking on the ride
// is passed over, never promoted: one confirmed booking per (ride, passenger)
// holds at all times.
func (p *WaitlistPromoter) Promote(sessCtx mongo.SessionContext, rideID string) ([]*model.Booking, error) {
	var promoted []*model.Booking
	var skipped []string

	for {
		ride, err := p.rides.FindByID(sessCtx, rideID)
		if err != nil {
			return promoted, err
		}
		if ride.AvailableSeats <= 0 {
			return promoted, nil
		}

		candidate, err := p.bookings.FindOldestWaitlistedFitting(sessCtx, rideID, ride.AvailableSeats, skipped)
		if err != nil {
			return promoted, err
		}
		if candidate == nil {
			return promoted, nil
		}

		duplicate, err := p.bookings.HasConfirmed(sessCtx, rideID, candidate.PassengerID)
		if err != nil {
			return promoted, err
		}
		if duplicate {
			skipped = append(skipped, candidate.PassengerID)
			continue
		}

		if err := p.rides.ReserveSeats(sessCtx, rideID, candidate.SeatCount); err != nil {
			return promoted, err
		}

		confirmed := model.BookingConfirmed
		held := true
		contribution := model.ContributionFor(candidate.DistanceKm, ride.RatePerKm)
		ok, err := p.bookings.ApplyUpdate(sessCtx, candidate.ID,
			[]model.BookingStatus{model.BookingWaitlisted},
			repository.BookingUpdate{
				Status:       &confirmed,
				SeatsHeld:    &held,
				Contribution: &contribution,
			},
		)
		if err != nil {
			return promoted, err
		}
		if !ok {
			// Lost the candidate to a concurrent cancel; seats go back and
			// the loop retries with the next one.
			if err := p.rides.ReleaseSeats(sessCtx, rideID, candidate.SeatCount); err != nil {
				return promoted, err
			}
			continue
		}

		candidate.Status = confirmed
		candidate.SeatsHeld = true
		candidate.Contribution = contribution
		promoted = append(promoted, candidate)

		p.log.Info("Waitlisted booking promoted",
			"booking_id", candidate.ID,
			"ride_id", rideID,
			"seat_count", candidate.SeatCount,
		)
	}
}

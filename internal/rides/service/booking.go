package service

import (
	"context"
	"errors"
	"sync"
	"time"

	riderrors "ridepool/internal/rides/errors"
	"ridepool/internal/rides/repository"
	"ridepool/internal/rides/validator"
	"ridepool/pkg/auth"
	"ridepool/pkg/config"
	apperrors "ridepool/pkg/errors"
	"ridepool/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

type BookingService interface {
	Create(ctx context.Context, principal auth.Principal, booking *model.Booking) (*model.Booking, error)
	Approve(ctx context.Context, principal auth.Principal, id string) (*model.Booking, error)
	Reject(ctx context.Context, principal auth.Principal, id string) (*model.Booking, error)
	Cancel(ctx context.Context, principal auth.Principal, id string) (*model.Booking, error)
	UpdateSeats(ctx context.Context, principal auth.Principal, id string, seatCount int) (*model.Booking, error)
	GetByID(ctx context.Context, principal auth.Principal, id string) (*model.Booking, error)
	ListMine(ctx context.Context, principal auth.Principal, limit int, offset int64) ([]*model.Booking, int64, error)
}

type bookingService struct {
	rides     repository.RideRepository
	bookings  repository.BookingRepository
	locks     repository.RideLockRepository
	validator *validator.BookingValidator
	promoter  *WaitlistPromoter
	notifier  Notifier
	cfg       *config.Config
}

func NewBookingService(
	rides repository.RideRepository,
	bookings repository.BookingRepository,
	locks repository.RideLockRepository,
	bookingValidator *validator.BookingValidator,
	promoter *WaitlistPromoter,
	notifier Notifier,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		rides:     rides,
		bookings:  bookings,
		locks:     locks,
		validator: bookingValidator,
		promoter:  promoter,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// Create requests seats on a ride. With capacity available the booking lands
// in pending with its seats provisionally held until the driver decides;
// without capacity it lands on the waitlist holding nothing.
func (s *bookingService) Create(ctx context.Context, principal auth.Principal, booking *model.Booking) (*model.Booking, error) {
	booking.PassengerID = principal.ID
	s.applyDefaults(booking)

	ride, err := s.getRide(ctx, booking.RideID)
	if err != nil {
		return nil, err
	}

	if ride.DriverID == principal.ID {
		return nil, apperrors.InvalidInput("Driver cannot book a seat on their own ride")
	}
	if ride.Status != model.RideUpcoming {
		return nil, apperrors.InvalidTransition("ride is no longer open for booking")
	}
	if ride.IsExpired(time.Now()) {
		return nil, apperrors.RideExpired(ride.ID)
	}
	if booking.DistanceKm <= 0 {
		booking.DistanceKm = ride.DistanceKm
	}

	if err := s.validate(booking); err != nil {
		return nil, err
	}

	lockID, err := acquireRideLock(ctx, s.locks, s.cfg, ride.ID, principal.ID)
	if err != nil {
		return nil, err
	}
	defer releaseRideLock(ctx, s.locks, s.cfg, lockID)

	err = s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		duplicate, err := s.bookings.HasConfirmed(sessCtx, booking.RideID, booking.PassengerID)
		if err != nil {
			return apperrors.Internal("Failed to check existing bookings", err)
		}
		if duplicate {
			return apperrors.DuplicateBooking(booking.RideID, booking.PassengerID)
		}

		err = s.rides.ReserveSeats(sessCtx, booking.RideID, booking.SeatCount)
		switch {
		case err == nil:
			booking.Status = model.BookingPending
			booking.SeatsHeld = true
		case errors.Is(err, riderrors.ErrInsufficientSeats):
			booking.Status = model.BookingWaitlisted
			booking.SeatsHeld = false
		default:
			return apperrors.Internal("Failed to reserve seats", err)
		}

		if err := s.bookings.Create(sessCtx, booking); err != nil {
			return apperrors.Internal("Failed to create booking", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to create booking", "ride_id", booking.RideID, "error", err)
		return nil, err
	}

	outcome := model.OutcomeRequested
	if booking.Status == model.BookingWaitlisted {
		outcome = model.OutcomeWaitlisted
	}
	s.notifier.BookingOutcome(ctx, bookingEvent(booking, outcome))

	s.cfg.Log.Info("Booking created",
		"booking_id", booking.ID,
		"ride_id", booking.RideID,
		"passenger_id", booking.PassengerID,
		"status", booking.Status,
		"seat_count", booking.SeatCount,
	)
	return booking, nil
}

// Approve confirms a pending booking. When the provisional hold was lost the
// booking is demoted to the waitlist instead, and the demoted snapshot is
// returned rather than an error.
func (s *bookingService) Approve(ctx context.Context, principal auth.Principal, id string) (*model.Booking, error) {
	booking, ride, err := s.loadForDriverAction(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	lockID, err := acquireRideLock(ctx, s.locks, s.cfg, ride.ID, principal.ID)
	if err != nil {
		return nil, err
	}
	defer releaseRideLock(ctx, s.locks, s.cfg, lockID)

	demoted := false
	err = s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		current, err := s.bookings.FindByID(sessCtx, id)
		if err != nil {
			return s.mapBookingErr(err, id)
		}
		if current.Status != model.BookingPending {
			return apperrors.InvalidTransition("only pending bookings can be approved")
		}

		// The passenger may have had a second request confirmed since this
		// one was created. Re-check under the transaction so approving both
		// can never yield two confirmed bookings for the same passenger.
		duplicate, err := s.bookings.HasConfirmed(sessCtx, current.RideID, current.PassengerID)
		if err != nil {
			return apperrors.Internal("Failed to check existing bookings", err)
		}
		if duplicate {
			return apperrors.DuplicateBooking(current.RideID, current.PassengerID)
		}

		if !current.SeatsHeld {
			err := s.rides.ReserveSeats(sessCtx, ride.ID, current.SeatCount)
			if errors.Is(err, riderrors.ErrInsufficientSeats) {
				waitlisted := model.BookingWaitlisted
				held := false
				if _, err := s.bookings.ApplyUpdate(sessCtx, id,
					[]model.BookingStatus{model.BookingPending},
					repository.BookingUpdate{Status: &waitlisted, SeatsHeld: &held},
				); err != nil {
					return apperrors.Internal("Failed to waitlist booking", err)
				}
				booking = current
				booking.Status = waitlisted
				booking.SeatsHeld = false
				demoted = true
				return nil
			}
			if err != nil {
				return apperrors.Internal("Failed to reserve seats", err)
			}
		}

		confirmed := model.BookingConfirmed
		held := true
		contribution := model.ContributionFor(current.DistanceKm, ride.RatePerKm)
		ok, err := s.bookings.ApplyUpdate(sessCtx, id,
			[]model.BookingStatus{model.BookingPending},
			repository.BookingUpdate{Status: &confirmed, SeatsHeld: &held, Contribution: &contribution},
		)
		if err != nil {
			return apperrors.Internal("Failed to confirm booking", err)
		}
		if !ok {
			return apperrors.InvalidTransition("booking state changed, retry the approval")
		}

		booking = current
		booking.Status = confirmed
		booking.SeatsHeld = true
		booking.Contribution = contribution
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to approve booking", "booking_id", id, "error", err)
		return nil, err
	}

	if demoted {
		s.notifier.BookingOutcome(ctx, bookingEvent(booking, model.OutcomeWaitlisted))
		s.cfg.Log.Info("Booking demoted to waitlist on approval", "booking_id", id, "ride_id", ride.ID)
	} else {
		s.notifier.BookingOutcome(ctx, bookingEvent(booking, model.OutcomeConfirmed))
		s.cfg.Log.Info("Booking confirmed", "booking_id", id, "ride_id", ride.ID)
	}
	return booking, nil
}

// Reject declines a pending booking and frees its provisional hold.
func (s *bookingService) Reject(ctx context.Context, principal auth.Principal, id string) (*model.Booking, error) {
	booking, ride, err := s.loadForDriverAction(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	lockID, err := acquireRideLock(ctx, s.locks, s.cfg, ride.ID, principal.ID)
	if err != nil {
		return nil, err
	}
	defer releaseRideLock(ctx, s.locks, s.cfg, lockID)

	var promoted []*model.Booking
	err = s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		current, err := s.bookings.FindByID(sessCtx, id)
		if err != nil {
			return s.mapBookingErr(err, id)
		}
		if current.Status != model.BookingPending {
			return apperrors.InvalidTransition("only pending bookings can be rejected")
		}

		rejected := model.BookingRejected
		trip := model.TripCancelled
		held := false
		ok, err := s.bookings.ApplyUpdate(sessCtx, id,
			[]model.BookingStatus{model.BookingPending},
			repository.BookingUpdate{Status: &rejected, TripStatus: &trip, SeatsHeld: &held},
		)
		if err != nil {
			return apperrors.Internal("Failed to reject booking", err)
		}
		if !ok {
			return apperrors.InvalidTransition("booking state changed, retry the rejection")
		}

		if current.SeatsHeld {
			if err := s.rides.ReleaseSeats(sessCtx, ride.ID, current.SeatCount); err != nil {
				return apperrors.Internal("Failed to release seats", err)
			}
			promoted, err = s.promoter.Promote(sessCtx, ride.ID)
			if err != nil {
				return apperrors.Internal("Failed to promote waitlist", err)
			}
		}

		booking = current
		booking.Status = rejected
		booking.TripStatus = trip
		booking.SeatsHeld = false
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to reject booking", "booking_id", id, "error", err)
		return nil, err
	}

	s.notifier.BookingOutcome(ctx, bookingEvent(booking, model.OutcomeRejected))
	notifyPromotions(ctx, s.notifier, promoted)
	s.cfg.Log.Info("Booking rejected", "booking_id", id, "ride_id", ride.ID)
	return booking, nil
}

// Cancel withdraws a booking. Freed seats go to the waitlist in the same
// transaction, so a cancelled confirmed seat is either still free or already
// promoted when the call returns, never in between.
func (s *bookingService) Cancel(ctx context.Context, principal auth.Principal, id string) (*model.Booking, error) {
	booking, err := s.GetByID(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if booking.PassengerID != principal.ID && !principal.IsAdmin() {
		return nil, apperrors.NotOwner("only the booking passenger can cancel it")
	}

	lockID, err := acquireRideLock(ctx, s.locks, s.cfg, booking.RideID, principal.ID)
	if err != nil {
		return nil, err
	}
	defer releaseRideLock(ctx, s.locks, s.cfg, lockID)

	rideID := booking.RideID
	var promoted []*model.Booking
	err = s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		current, err := s.bookings.FindByID(sessCtx, id)
		if err != nil {
			return s.mapBookingErr(err, id)
		}
		if !current.Status.CanTransition(model.BookingCancelled) {
			return apperrors.InvalidTransition("booking cannot be cancelled from its current state")
		}

		cancelled := model.BookingCancelled
		trip := model.TripCancelled
		held := false
		ok, err := s.bookings.ApplyUpdate(sessCtx, id,
			[]model.BookingStatus{current.Status},
			repository.BookingUpdate{Status: &cancelled, TripStatus: &trip, SeatsHeld: &held},
		)
		if err != nil {
			return apperrors.Internal("Failed to cancel booking", err)
		}
		if !ok {
			return apperrors.InvalidTransition("booking state changed, retry the cancellation")
		}

		if current.SeatsHeld {
			if err := s.rides.ReleaseSeats(sessCtx, rideID, current.SeatCount); err != nil {
				return apperrors.Internal("Failed to release seats", err)
			}
			promoted, err = s.promoter.Promote(sessCtx, rideID)
			if err != nil {
				return apperrors.Internal("Failed to promote waitlist", err)
			}
		}

		booking = current
		booking.Status = cancelled
		booking.TripStatus = trip
		booking.SeatsHeld = false
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to cancel booking", "booking_id", id, "error", err)
		return nil, err
	}

	s.notifier.BookingOutcome(ctx, bookingEvent(booking, model.OutcomeCancelled))
	notifyPromotions(ctx, s.notifier, promoted)
	s.cfg.Log.Info("Booking cancelled", "booking_id", id, "ride_id", rideID)
	return booking, nil
}

// UpdateSeats changes the booking's seat count, reserving or releasing the
// difference when the booking currently holds seats.
func (s *bookingService) UpdateSeats(ctx context.Context, principal auth.Principal, id string, seatCount int) (*model.Booking, error) {
	if err := s.validator.ValidateSeatCount(seatCount); err != nil {
		return nil, apperrors.Validation("Invalid seat count", map[string]any{"error": err.Error()})
	}

	booking, err := s.GetByID(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if booking.PassengerID != principal.ID && !principal.IsAdmin() {
		return nil, apperrors.NotOwner("only the booking passenger can change its seats")
	}
	if booking.Status.IsTerminal() {
		return nil, apperrors.InvalidTransition("booking is already settled")
	}

	ride, err := s.getRide(ctx, booking.RideID)
	if err != nil {
		return nil, err
	}
	if ride.IsExpired(time.Now()) {
		return nil, apperrors.RideExpired(ride.ID)
	}

	lockID, err := acquireRideLock(ctx, s.locks, s.cfg, ride.ID, principal.ID)
	if err != nil {
		return nil, err
	}
	defer releaseRideLock(ctx, s.locks, s.cfg, lockID)

	var promoted []*model.Booking
	err = s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		current, err := s.bookings.FindByID(sessCtx, id)
		if err != nil {
			return s.mapBookingErr(err, id)
		}
		if current.Status.IsTerminal() {
			return apperrors.InvalidTransition("booking is already settled")
		}

		delta := seatCount - current.SeatCount
		if delta == 0 {
			booking = current
			return nil
		}

		if current.SeatsHeld {
			if delta > 0 {
				err := s.rides.ReserveSeats(sessCtx, ride.ID, delta)
				if errors.Is(err, riderrors.ErrInsufficientSeats) {
					return apperrors.InsufficientCapacity(ride.ID, delta)
				}
				if err != nil {
					return apperrors.Internal("Failed to reserve seats", err)
				}
			} else {
				if err := s.rides.ReleaseSeats(sessCtx, ride.ID, -delta); err != nil {
					return apperrors.Internal("Failed to release seats", err)
				}
			}
		}

		update := repository.BookingUpdate{SeatCount: &seatCount}
		if current.Status == model.BookingConfirmed {
			contribution := model.ContributionFor(current.DistanceKm, ride.RatePerKm)
			update.Contribution = &contribution
		}
		ok, err := s.bookings.ApplyUpdate(sessCtx, id,
			[]model.BookingStatus{current.Status}, update)
		if err != nil {
			return apperrors.Internal("Failed to update seat count", err)
		}
		if !ok {
			return apperrors.InvalidTransition("booking state changed, retry the update")
		}

		if current.SeatsHeld && delta < 0 {
			promoted, err = s.promoter.Promote(sessCtx, ride.ID)
			if err != nil {
				return apperrors.Internal("Failed to promote waitlist", err)
			}
		}

		booking = current
		booking.SeatCount = seatCount
		if update.Contribution != nil {
			booking.Contribution = *update.Contribution
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to update booking seats", "booking_id", id, "error", err)
		return nil, err
	}

	notifyPromotions(ctx, s.notifier, promoted)
	s.cfg.Log.Info("Booking seat count updated",
		"booking_id", id,
		"ride_id", ride.ID,
		"seat_count", seatCount,
	)
	return booking, nil
}

func (s *bookingService) GetByID(ctx context.Context, principal auth.Principal, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapBookingErr(err, id)
	}

	if booking.PassengerID == principal.ID || principal.IsAdmin() {
		return booking, nil
	}

	ride, err := s.getRide(ctx, booking.RideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != principal.ID {
		return nil, apperrors.NotOwner("booking belongs to another passenger")
	}
	return booking, nil
}

func (s *bookingService) ListMine(ctx context.Context, principal auth.Principal, limit int, offset int64) ([]*model.Booking, int64, error) {
	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.bookings.CountByPassenger(ctx, principal.ID)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "passenger_id", principal.ID, "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.bookings.FindByPassenger(ctx, principal.ID, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "passenger_id", principal.ID, "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

// --- Helpers ---

func (s *bookingService) applyDefaults(b *model.Booking) {
	if b.SeatCount <= 0 {
		b.SeatCount = 1
	}
	b.Status = model.BookingPending
	b.TripStatus = model.TripUpcoming
	b.Contribution = 0
}

func (s *bookingService) validate(booking *model.Booking) error {
	if err := s.validator.Validate(booking); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		return apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

// loadForDriverAction fetches the booking and its ride and checks the caller
// is the ride's driver (or admin).
func (s *bookingService) loadForDriverAction(ctx context.Context, principal auth.Principal, id string) (*model.Booking, *model.Ride, error) {
	if id == "" {
		return nil, nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, nil, s.mapBookingErr(err, id)
	}

	ride, err := s.getRide(ctx, booking.RideID)
	if err != nil {
		return nil, nil, err
	}

	if ride.DriverID != principal.ID && !principal.IsAdmin() {
		return nil, nil, apperrors.NotOwner("only the ride's driver can decide this booking")
	}

	return booking, ride, nil
}

func (s *bookingService) getRide(ctx context.Context, rideID string) (*model.Ride, error) {
	ride, err := s.rides.FindByID(ctx, rideID)
	if err != nil {
		return nil, mapRideErr(err, rideID)
	}
	return ride, nil
}

func (s *bookingService) mapBookingErr(err error, id string) error {
	if errors.Is(err, riderrors.ErrBookingNotFound) {
		return apperrors.NotFoundWithID("Booking", id)
	}
	if errors.Is(err, riderrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid booking ID format")
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Internal("Failed to retrieve booking", err)
}

// acquireRideLock serializes seat accounting per ride via a unique _id
// insert. The TTL index on expires_at clears locks left by a crashed holder.
func acquireRideLock(ctx context.Context, locks repository.RideLockRepository, cfg *config.Config, rideID, owner string) (string, error) {
	lock := &model.RideLock{
		ID:        rideID,
		Owner:     owner,
		ExpiresAt: time.Now().Add(cfg.RideLockTTL),
	}

	_, err := locks.Create(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", apperrors.Conflict("This ride is being modified by another request. Please try again.")
		}
		return "", apperrors.Internal("Failed to acquire ride lock", err)
	}

	return lock.ID, nil
}

func releaseRideLock(ctx context.Context, locks repository.RideLockRepository, cfg *config.Config, lockID string) {
	if err := locks.Delete(ctx, lockID); err != nil {
		cfg.Log.Warn("Failed to release ride lock", "lock_id", lockID, "error", err)
	}
}

func bookingEvent(b *model.Booking, outcome model.BookingOutcome) model.BookingEvent {
	return model.BookingEvent{
		BookingID:    b.ID,
		RideID:       b.RideID,
		PassengerID:  b.PassengerID,
		Outcome:      outcome,
		SeatCount:    b.SeatCount,
		Contribution: b.Contribution,
		OccurredAt:   time.Now().UTC(),
	}
}

func notifyPromotions(ctx context.Context, notifier Notifier, promoted []*model.Booking) {
	for _, b := range promoted {
		notifier.BookingOutcome(ctx, bookingEvent(b, model.OutcomePromoted))
	}
}

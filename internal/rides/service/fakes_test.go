package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	riderrors "ridepool/internal/rides/errors"
	"ridepool/internal/rides/repository"
	"ridepool/internal/rides/validator"
	"ridepool/pkg/config"
	mongotx "ridepool/pkg/db/mongo"
	"ridepool/pkg/logger"
	"ridepool/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// In-memory repository fakes. They reproduce the conditional-update
// semantics of the Mongo repositories (from-status filters, seat counter
// guards) without a running database. Transactions degrade to direct
// execution; the tests assert on end states, not on rollback behavior.

type fakeRideRepo struct {
	mu    sync.Mutex
	rides map[string]*model.Ride
}

func newFakeRideRepo() *fakeRideRepo {
	return &fakeRideRepo{rides: make(map[string]*model.Ride)}
}

func (f *fakeRideRepo) Create(_ context.Context, ride *model.Ride) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ride.ID == "" {
		ride.ID = primitive.NewObjectID().Hex()
	}
	ride.CreatedAt = time.Now()
	cp := *ride
	f.rides[ride.ID] = &cp
	return nil
}

func (f *fakeRideRepo) FindByID(_ context.Context, id string) (*model.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ride, ok := f.rides[id]
	if !ok {
		return nil, riderrors.ErrRideNotFound
	}
	cp := *ride
	return &cp, nil
}

func (f *fakeRideRepo) FindUpcoming(_ context.Context, after time.Time, limit int, offset int64) ([]*model.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Ride
	for _, r := range f.rides {
		if r.Status == model.RideUpcoming && r.DepartureTime.After(after) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.Before(out[j].DepartureTime) })
	return slicePage(out, limit, offset), nil
}

func (f *fakeRideRepo) CountUpcoming(_ context.Context, after time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.rides {
		if r.Status == model.RideUpcoming && r.DepartureTime.After(after) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRideRepo) FindByDriver(_ context.Context, driverID string, limit int, offset int64) ([]*model.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Ride
	for _, r := range f.rides {
		if r.DriverID == driverID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.After(out[j].DepartureTime) })
	return slicePage(out, limit, offset), nil
}

func (f *fakeRideRepo) CountByDriver(_ context.Context, driverID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.rides {
		if r.DriverID == driverID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRideRepo) FindOverlapping(_ context.Context, driverID string, departure, arrival time.Time) ([]*model.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Ride
	for _, r := range f.rides {
		if r.DriverID == driverID && !r.Status.IsTerminal() && r.Overlaps(departure, arrival) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRideRepo) FindNonTerminal(_ context.Context, limit int) ([]*model.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Ride
	for _, r := range f.rides {
		if !r.Status.IsTerminal() {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.Before(out[j].DepartureTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRideRepo) UpdateStatus(_ context.Context, id string, from []model.RideStatus, to model.RideStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ride, ok := f.rides[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if ride.Status == s {
			ride.Status = to
			ride.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRideRepo) UpdateDetails(_ context.Context, id string, from []model.RideStatus, ride *model.Ride) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.rides[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if current.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	current.Origin = ride.Origin
	current.Destination = ride.Destination
	current.DepartureTime = ride.DepartureTime
	current.ArrivalTime = ride.ArrivalTime
	current.TotalSeats = ride.TotalSeats
	current.AvailableSeats = ride.AvailableSeats
	current.RatePerKm = ride.RatePerKm
	current.DistanceKm = ride.DistanceKm
	current.Note = ride.Note
	current.VehicleModel = ride.VehicleModel
	current.VehiclePlate = ride.VehiclePlate
	current.ContactInfo = ride.ContactInfo
	current.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeRideRepo) ReserveSeats(_ context.Context, id string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ride, ok := f.rides[id]
	if !ok || ride.AvailableSeats < n {
		return riderrors.ErrInsufficientSeats
	}
	ride.AvailableSeats -= n
	return nil
}

func (f *fakeRideRepo) ReleaseSeats(_ context.Context, id string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ride, ok := f.rides[id]
	if !ok {
		return riderrors.ErrRideNotFound
	}
	ride.AvailableSeats += n
	if ride.AvailableSeats > ride.TotalSeats {
		ride.AvailableSeats = ride.TotalSeats
	}
	return nil
}

func (f *fakeRideRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(mongo.NewSessionContext(ctx, nil))
}

type fakeBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
	seq      int
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: make(map[string]*model.Booking)}
}

func (f *fakeBookingRepo) Create(_ context.Context, booking *model.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if booking.ID == "" {
		booking.ID = primitive.NewObjectID().Hex()
	}
	f.seq++
	// Sequence-derived timestamps keep FIFO ordering deterministic.
	booking.CreatedAt = time.Unix(int64(f.seq), 0)
	cp := *booking
	f.bookings[booking.ID] = &cp
	return nil
}

func (f *fakeBookingRepo) FindByID(_ context.Context, id string) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	booking, ok := f.bookings[id]
	if !ok {
		return nil, riderrors.ErrBookingNotFound
	}
	cp := *booking
	return &cp, nil
}

func (f *fakeBookingRepo) FindByPassenger(_ context.Context, passengerID string, limit int, offset int64) ([]*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Booking
	for _, b := range f.bookings {
		if b.PassengerID == passengerID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return slicePage(out, limit, offset), nil
}

func (f *fakeBookingRepo) CountByPassenger(_ context.Context, passengerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, b := range f.bookings {
		if b.PassengerID == passengerID {
			n++
		}
	}
	return n, nil
}

func (f *fakeBookingRepo) HasConfirmed(_ context.Context, rideID, passengerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.RideID == rideID && b.PassengerID == passengerID && b.Status == model.BookingConfirmed {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBookingRepo) FindConfirmedByRide(_ context.Context, rideID string) ([]*model.Booking, error) {
	return f.FindByRide(nil, rideID, []model.BookingStatus{model.BookingConfirmed})
}

func (f *fakeBookingRepo) FindOldestWaitlistedFitting(_ context.Context, rideID string, maxSeats int, excludePassengers []string) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	excluded := make(map[string]bool, len(excludePassengers))
	for _, p := range excludePassengers {
		excluded[p] = true
	}
	var oldest *model.Booking
	for _, b := range f.bookings {
		if b.RideID != rideID || b.Status != model.BookingWaitlisted || b.SeatCount > maxSeats {
			continue
		}
		if excluded[b.PassengerID] {
			continue
		}
		if oldest == nil || b.CreatedAt.Before(oldest.CreatedAt) {
			oldest = b
		}
	}
	if oldest == nil {
		return nil, nil
	}
	cp := *oldest
	return &cp, nil
}

func (f *fakeBookingRepo) ApplyUpdate(_ context.Context, id string, from []model.BookingStatus, update repository.BookingUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	booking, ok := f.bookings[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if booking.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	applyBookingUpdate(booking, update)
	return true, nil
}

func (f *fakeBookingRepo) CascadeByRide(_ context.Context, rideID string, from []model.BookingStatus, update repository.BookingUpdate) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, b := range f.bookings {
		if b.RideID != rideID {
			continue
		}
		for _, s := range from {
			if b.Status == s {
				applyBookingUpdate(b, update)
				n++
				break
			}
		}
	}
	return n, nil
}

func (f *fakeBookingRepo) FindByRide(_ context.Context, rideID string, statuses []model.BookingStatus) ([]*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Booking
	for _, b := range f.bookings {
		if b.RideID != rideID {
			continue
		}
		if len(statuses) == 0 {
			cp := *b
			out = append(out, &cp)
			continue
		}
		for _, s := range statuses {
			if b.Status == s {
				cp := *b
				out = append(out, &cp)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeBookingRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(mongo.NewSessionContext(ctx, nil))
}

func applyBookingUpdate(b *model.Booking, update repository.BookingUpdate) {
	if update.Status != nil {
		b.Status = *update.Status
	}
	if update.TripStatus != nil {
		b.TripStatus = *update.TripStatus
	}
	if update.SeatCount != nil {
		b.SeatCount = *update.SeatCount
	}
	if update.SeatsHeld != nil {
		b.SeatsHeld = *update.SeatsHeld
	}
	if update.Contribution != nil {
		b.Contribution = *update.Contribution
	}
	b.UpdatedAt = time.Now()
}

type fakeLockRepo struct {
	mu    sync.Mutex
	locks map[string]*model.RideLock
}

func newFakeLockRepo() *fakeLockRepo {
	return &fakeLockRepo{locks: make(map[string]*model.RideLock)}
}

func (f *fakeLockRepo) Create(_ context.Context, lock *model.RideLock) (*model.RideLock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.locks[lock.ID]; held {
		return nil, mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}
	}
	lock.CreatedAt = time.Now()
	f.locks[lock.ID] = lock
	return lock, nil
}

func (f *fakeLockRepo) Delete(_ context.Context, lockID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, lockID)
	return nil
}

type captureNotifier struct {
	mu     sync.Mutex
	events []model.BookingEvent
}

func (c *captureNotifier) BookingOutcome(_ context.Context, event model.BookingEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureNotifier) outcomes() []model.BookingOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.BookingOutcome, len(c.events))
	for i, e := range c.events {
		out[i] = e.Outcome
	}
	return out
}

func slicePage[T any](items []T, limit int, offset int64) []T {
	if offset >= int64(len(items)) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func testConfig() *config.Config {
	return &config.Config{
		Log:              logger.New(logger.Config{Level: logger.ERROR, Format: logger.TEXT, Output: io.Discard}),
		RideLockTTL:      time.Second,
		SweepGracePeriod: time.Hour,
	}
}

// testEnv wires the booking, ride, lifecycle and sweep services over the
// in-memory fakes.
type testEnv struct {
	rides     *fakeRideRepo
	bookings  *fakeBookingRepo
	locks     *fakeLockRepo
	notifier  *captureNotifier
	cfg       *config.Config
	booking   BookingService
	ride      RideService
	lifecycle LifecycleService
	sweep     SweepService
}

func newTestEnv() *testEnv {
	cfg := testConfig()
	rides := newFakeRideRepo()
	bookings := newFakeBookingRepo()
	locks := newFakeLockRepo()
	notifier := &captureNotifier{}
	promoter := NewWaitlistPromoter(rides, bookings, cfg.Log)

	return &testEnv{
		rides:     rides,
		bookings:  bookings,
		locks:     locks,
		notifier:  notifier,
		cfg:       cfg,
		booking:   NewBookingService(rides, bookings, locks, validator.NewBookingValidator(cfg.Log), promoter, notifier, cfg),
		ride:      NewRideService(rides, bookings, locks, validator.NewRideValidator(cfg.Log), promoter, notifier, cfg),
		lifecycle: NewLifecycleService(rides, bookings, cfg),
		sweep:     NewSweepService(rides, bookings, cfg),
	}
}

func (e *testEnv) seedRide(driverID string, total, available int, departure time.Time) *model.Ride {
	ride := &model.Ride{
		ID:             primitive.NewObjectID().Hex(),
		DriverID:       driverID,
		Origin:         "Tel Aviv",
		Destination:    "Haifa",
		DepartureTime:  departure,
		ArrivalTime:    departure.Add(90 * time.Minute),
		TotalSeats:     total,
		AvailableSeats: available,
		RatePerKm:      2.0,
		DistanceKm:     95,
		Status:         model.RideUpcoming,
	}
	e.rides.rides[ride.ID] = ride
	return ride
}

func (e *testEnv) seedBooking(rideID, passengerID string, seats int, status model.BookingStatus, held bool) *model.Booking {
	booking := &model.Booking{
		RideID:      rideID,
		PassengerID: passengerID,
		SeatCount:   seats,
		DistanceKm:  95,
		Status:      status,
		TripStatus:  model.TripUpcoming,
		SeatsHeld:   held,
	}
	if err := e.bookings.Create(context.Background(), booking); err != nil {
		panic(err)
	}
	return booking
}

func (e *testEnv) rideState(id string) *model.Ride {
	e.rides.mu.Lock()
	defer e.rides.mu.Unlock()
	cp := *e.rides.rides[id]
	return &cp
}

func (e *testEnv) bookingState(id string) *model.Booking {
	e.bookings.mu.Lock()
	defer e.bookings.mu.Unlock()
	cp := *e.bookings.bookings[id]
	return &cp
}

// heldSeats sums the seat counts of bookings currently holding seats on the
// ride. The seat accounting invariant is
// available == total - heldSeats at every observable point.
func (e *testEnv) heldSeats(rideID string) int {
	e.bookings.mu.Lock()
	defer e.bookings.mu.Unlock()
	total := 0
	for _, b := range e.bookings.bookings {
		if b.RideID == rideID && b.SeatsHeld {
			total += b.SeatCount
		}
	}
	return total
}

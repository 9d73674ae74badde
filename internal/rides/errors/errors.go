package errors

import "errors"

var (
	ErrRideNotFound = errors.New("ride not found")

	ErrBookingNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid ID format")

	ErrInsufficientSeats = errors.New("not enough available seats")
)

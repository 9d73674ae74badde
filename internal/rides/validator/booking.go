package validator

import (
	"errors"
	"fmt"

	"ridepool/pkg/logger"
	"ridepool/pkg/model"

	"github.com/go-playground/validator/v10"
)

const maxSeatsPerBooking = 50

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	return &BookingValidator{
		validate: validator.New(),
		logger:   log,
	}
}

func (v *BookingValidator) Validate(booking *model.Booking) error {
	if err := v.validate.Struct(booking); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}

	return nil
}

func (v *BookingValidator) ValidateSeatCount(seatCount int) error {
	if seatCount < 1 || seatCount > maxSeatsPerBooking {
		return ValidationErrors{
			ValidationError{
				Field:   "SeatCount",
				Message: fmt.Sprintf("seat_count must be between 1 and %d", maxSeatsPerBooking),
			},
		}
	}
	return nil
}

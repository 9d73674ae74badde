package validator

import (
	"errors"
	"time"

	"ridepool/pkg/logger"
	"ridepool/pkg/model"

	"github.com/go-playground/validator/v10"
)

type RideValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewRideValidator(log *logger.Logger) *RideValidator {
	return &RideValidator{
		validate: validator.New(),
		logger:   log,
	}
}

func (v *RideValidator) Validate(ride *model.Ride) error {
	if err := v.validate.Struct(ride); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}

	if !ride.ArrivalTime.After(ride.DepartureTime) {
		return ValidationErrors{
			ValidationError{
				Field:   "ArrivalTime",
				Message: "arrival_time must be after departure_time",
			},
		}
	}

	if ride.DepartureTime.Before(time.Now()) {
		return ValidationErrors{
			ValidationError{
				Field:   "DepartureTime",
				Message: "departure_time cannot be in the past",
			},
		}
	}

	return nil
}

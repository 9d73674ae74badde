package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	CodeNotFound             = "NOT_FOUND"
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeConflict             = "CONFLICT"
	CodeInternal             = "INTERNAL_ERROR"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeRideExpired          = "RIDE_EXPIRED"
	CodeInsufficientCapacity = "INSUFFICIENT_CAPACITY"
	CodeDuplicateBooking     = "DUPLICATE_BOOKING"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeNotOwner             = "NOT_OWNER"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func (e *AppError) ToJSON() []byte {
	response := ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
	data, _ := json.Marshal(response)
	return data
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NotFoundWithID(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// RideExpired marks attempts to create or modify a booking against a ride
// whose departure time has passed.
func RideExpired(rideID string) *AppError {
	return &AppError{
		Code:       CodeRideExpired,
		Message:    "ride departure time has passed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"ride_id": rideID},
	}
}

// InsufficientCapacity marks a seat reservation that exceeds the ride's
// available seats.
func InsufficientCapacity(rideID string, requested int) *AppError {
	return &AppError{
		Code:       CodeInsufficientCapacity,
		Message:    "not enough seats available",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"ride_id": rideID, "requested": requested},
	}
}

// DuplicateBooking marks a passenger who already holds a confirmed booking on
// the ride.
func DuplicateBooking(rideID, passengerID string) *AppError {
	return &AppError{
		Code:       CodeDuplicateBooking,
		Message:    "passenger already holds a confirmed booking on this ride",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"ride_id": rideID, "passenger_id": passengerID},
	}
}

// InvalidTransition marks an operation whose source state does not permit it.
func InvalidTransition(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidTransition,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NotOwner marks an actor who is neither the owning principal nor privileged.
func NotOwner(message string) *AppError {
	return &AppError{
		Code:       CodeNotOwner,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code string) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

package booking

import (
	"errors"

	"salonbook/backend/internal/domain"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

var (
	ErrStaffNotFound             = errors.New("staff member not found")
	ErrServiceNotFound           = errors.New("service not found")
	ErrAppointmentNotFound       = errors.New("appointment not found")
	ErrStaffCannotPerformService = errors.New("staff member does not perform this service")
	// ErrSlotUnavailable is returned when the requested time cannot be booked,
	// including when a concurrent booking took it first. It usually wraps an
	// *availability.UnavailableError with the reason.
	ErrSlotUnavailable = errors.New("time slot is not available")
	ErrDateInPast      = errors.New("date is in the past")
	// ErrIdempotencyConflict means the key was already used for a different booking.
	ErrIdempotencyConflict = errors.New("idempotency key conflict")

	ErrInvalidDate       = domain.ErrInvalidDate
	ErrInvalidTransition = domain.ErrInvalidTransition
)

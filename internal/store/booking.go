package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
)

// ScheduleReader loads the inputs of an availability computation. Staff and
// salon are returned with their breaks and vacations; staff also carries
// its service capability set.
type ScheduleReader interface {
	GetSalon(ctx context.Context, salonID uuid.UUID) (domain.Salon, error)
	GetStaff(ctx context.Context, staffID uuid.UUID) (domain.Staff, error)
	GetService(ctx context.Context, serviceID uuid.UUID) (domain.Service, error)
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	// ListActiveAppointments returns the non-cancelled appointments of
	// staffID on date, ordered by start.
	ListActiveAppointments(ctx context.Context, staffID uuid.UUID, date time.Time) ([]domain.Appointment, error)
}

// BookingTx is a unit of work holding the lock of one staff member.
type BookingTx interface {
	ScheduleReader

	// LockAppointment reloads the appointment and holds its row lock until
	// the transaction ends.
	LockAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
}

type BookingStore interface {
	ScheduleReader

	// InStaffTransaction runs fn while holding the exclusive booking lock of
	// staffID. fn's changes commit only if it returns nil. Writers for the
	// same staff member run one at a time; other staff never wait.
	InStaffTransaction(ctx context.Context, staffID uuid.UUID, fn func(ctx context.Context, tx BookingTx) error) error

	// InAppointmentTransaction locks only the appointment row. It serves
	// status changes, which never move an appointment in time.
	InAppointmentTransaction(ctx context.Context, appointmentID uuid.UUID, fn func(ctx context.Context, tx BookingTx, appt domain.Appointment) error) error
}

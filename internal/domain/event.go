package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBooked        EventType = "appointment.booked"
	EventRescheduled   EventType = "appointment.rescheduled"
	EventStatusChanged EventType = "appointment.status_changed"
)

// AppointmentEvent is published after a booking change commits.
type AppointmentEvent struct {
	Type        EventType   `json:"type"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Appointment EventDetail `json:"appointment"`
	// Previous is set for reschedules and status changes.
	Previous *EventDetail `json:"previous,omitempty"`
}

type EventDetail struct {
	ID        uuid.UUID         `json:"id"`
	SalonID   uuid.UUID         `json:"salon_id"`
	StaffID   uuid.UUID         `json:"staff_id"`
	ServiceID uuid.UUID         `json:"service_id"`
	Date      string            `json:"date"`
	Start     Clock             `json:"start"`
	End       Clock             `json:"end"`
	Status    AppointmentStatus `json:"status"`
	BookedBy  Actor             `json:"booked_by"`
}

func DetailOf(a Appointment) EventDetail {
	return EventDetail{
		ID:        a.ID,
		SalonID:   a.SalonID,
		StaffID:   a.StaffID,
		ServiceID: a.ServiceID,
		Date:      FormatDate(a.Date),
		Start:     a.Start,
		End:       a.End,
		Status:    a.Status,
		BookedBy:  a.BookedBy,
	}
}

func NewAppointmentEvent(t EventType, at time.Time, current Appointment, previous *Appointment) AppointmentEvent {
	ev := AppointmentEvent{Type: t, OccurredAt: at.UTC(), Appointment: DetailOf(current)}
	if previous != nil {
		p := DetailOf(*previous)
		ev.Previous = &p
	}
	return ev
}

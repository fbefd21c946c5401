package grpc

import (
	"time"

	"salonbook/backend/internal/domain"
)

const timeLayout = time.RFC3339

// Requests carry dates as "DD.MM.YYYY" (or ISO "YYYY-MM-DD") and times as "HH:MM".
type ListAvailableSlotsRequest struct {
	StaffID   string `json:"staff_id"`
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
}

type ListAvailableSlotsResponse struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

type Guest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Email   string `json:"email,omitempty"`
}

type BookAppointmentRequest struct {
	StaffID   string `json:"staff_id"`
	ServiceID string `json:"service_id"`
	SalonID   string `json:"salon_id,omitempty"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	// Exactly one of ClientUserID and Guest is set.
	ClientUserID string `json:"client_user_id,omitempty"`
	Guest        *Guest `json:"guest,omitempty"`
	Actor        string `json:"actor,omitempty"`
}

// RescheduleAppointmentRequest leaves a field unchanged when it is empty.
type RescheduleAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	StaffID       string `json:"staff_id,omitempty"`
	ServiceID     string `json:"service_id,omitempty"`
	Date          string `json:"date,omitempty"`
	Time          string `json:"time,omitempty"`
}

type GetAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type UpdateAppointmentStatusRequest struct {
	AppointmentID string `json:"appointment_id"`
	// Action is one of confirm, start, complete, no_show, cancel.
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	Appointment Appointment `json:"appointment"`
}

type Appointment struct {
	ID              string `json:"id"`
	SalonID         string `json:"salon_id"`
	StaffID         string `json:"staff_id"`
	ServiceID       string `json:"service_id"`
	ClientUserID    string `json:"client_user_id,omitempty"`
	Guest           *Guest `json:"guest,omitempty"`
	Date            string `json:"date"`
	Start           string `json:"start"`
	End             string `json:"end"`
	Status          string `json:"status"`
	TotalPriceCents int64  `json:"total_price_cents"`
	BookedBy        string `json:"booked_by"`
	CancelReason    string `json:"cancel_reason,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toAppointment(a domain.Appointment) Appointment {
	out := Appointment{
		ID:              a.ID.String(),
		SalonID:         a.SalonID.String(),
		StaffID:         a.StaffID.String(),
		ServiceID:       a.ServiceID.String(),
		Date:            domain.FormatDate(a.Date),
		Start:           a.Start.String(),
		End:             a.End.String(),
		Status:          string(a.Status),
		TotalPriceCents: a.TotalPriceCents,
		BookedBy:        string(a.BookedBy),
		CancelReason:    a.CancelReason,
		CreatedAt:       a.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:       a.UpdatedAt.UTC().Format(timeLayout),
	}
	switch c := a.Client().(type) {
	case domain.RegisteredClient:
		out.ClientUserID = c.UserID
	case domain.GuestClient:
		out.Guest = &Guest{Name: c.Name, Phone: c.Phone, Address: c.Address, Email: c.Email}
	}
	return out
}

package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// Active appointments hold their slot. Only cancellation releases it.
func (s AppointmentStatus) Active() bool {
	return s != StatusCancelled
}

func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Actor identifies who initiated a booking; it drives the initial status.
type Actor string

const (
	ActorClient Actor = "client"
	ActorGuest  Actor = "guest"
	ActorStaff  Actor = "staff"
	ActorSalon  Actor = "salon"
)

func (a Actor) Manual() bool {
	return a == ActorStaff || a == ActorSalon
}

// InitialStatus applies the confirmation policy: manual bookings confirm
// immediately, client and guest bookings confirm only under auto-confirm.
func InitialStatus(actor Actor, salon Salon, staff Staff) AppointmentStatus {
	if actor.Manual() || salon.AutoConfirm || staff.AutoConfirm {
		return StatusConfirmed
	}
	return StatusPending
}

// ClientIdentity is either a RegisteredClient or a GuestClient.
type ClientIdentity interface {
	isClientIdentity()
	Validate() error
}

type RegisteredClient struct {
	UserID string
}

type GuestClient struct {
	Name    string
	Phone   string
	Address string
	Email   string
}

func (RegisteredClient) isClientIdentity() {}
func (GuestClient) isClientIdentity()      {}

func (c RegisteredClient) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("client user_id is required")
	}
	return nil
}

func (c GuestClient) Validate() error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return errors.New("guest name is required")
	case strings.TrimSpace(c.Phone) == "":
		return errors.New("guest phone is required")
	case strings.TrimSpace(c.Address) == "":
		return errors.New("guest address is required")
	}
	return nil
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID              uuid.UUID         `bun:"id,pk,type:uuid"`
	StaffID         uuid.UUID         `bun:"staff_id,type:uuid,notnull"`
	SalonID         uuid.UUID         `bun:"salon_id,type:uuid,notnull"`
	ServiceID       uuid.UUID         `bun:"service_id,type:uuid,notnull"`
	ClientUserID    *string           `bun:"client_user_id"`
	GuestName       string            `bun:"guest_name"`
	GuestPhone      string            `bun:"guest_phone"`
	GuestAddress    string            `bun:"guest_address"`
	GuestEmail      string            `bun:"guest_email"`
	Date            time.Time         `bun:"appointment_date,type:date,notnull"`
	Start           Clock             `bun:"start_minute,notnull"`
	End             Clock             `bun:"end_minute,notnull"`
	Status          AppointmentStatus `bun:"status,notnull"`
	TotalPriceCents int64             `bun:"total_price_cents,notnull"`
	BookedBy        Actor             `bun:"booked_by,notnull"`
	CancelReason    string            `bun:"cancel_reason"`
	CreatedAt       time.Time         `bun:"created_at,notnull"`
	UpdatedAt       time.Time         `bun:"updated_at,notnull"`
}

// Client rebuilds the tagged client identity from the stored columns.
func (a Appointment) Client() ClientIdentity {
	if a.ClientUserID != nil {
		return RegisteredClient{UserID: *a.ClientUserID}
	}
	return GuestClient{Name: a.GuestName, Phone: a.GuestPhone, Address: a.GuestAddress, Email: a.GuestEmail}
}

func (a *Appointment) SetClient(c ClientIdentity) {
	a.ClientUserID = nil
	a.GuestName, a.GuestPhone, a.GuestAddress, a.GuestEmail = "", "", "", ""
	switch v := c.(type) {
	case RegisteredClient:
		id := strings.TrimSpace(v.UserID)
		a.ClientUserID = &id
	case GuestClient:
		a.GuestName = strings.TrimSpace(v.Name)
		a.GuestPhone = strings.TrimSpace(v.Phone)
		a.GuestAddress = strings.TrimSpace(v.Address)
		a.GuestEmail = strings.TrimSpace(v.Email)
	}
}

// Schedule sets date, start and the derived end from the service duration.
func (a *Appointment) Schedule(date time.Time, start Clock, durationMinutes int) error {
	end, err := start.AddMinutes(durationMinutes)
	if err != nil {
		return err
	}
	a.Date = DateOf(date)
	a.Start = start
	a.End = end
	return nil
}

func (a Appointment) Overlaps(start, end Clock) bool {
	return IntervalsOverlap(a.Start, a.End, start, end)
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SalonDayHours struct {
	Open   Clock `json:"open"`
	Close  Clock `json:"close"`
	IsOpen bool  `json:"is_open"`
}

type StaffDayHours struct {
	Start     Clock `json:"start"`
	End       Clock `json:"end"`
	IsWorking bool  `json:"is_working"`
}

type Salon struct {
	bun.BaseModel `bun:"table:salons"`

	ID           uuid.UUID                `bun:"id,pk,type:uuid"`
	Name         string                   `bun:"name,notnull"`
	Timezone     string                   `bun:"timezone,notnull"`
	WorkingHours map[string]SalonDayHours `bun:"working_hours,type:jsonb,notnull"`
	AutoConfirm  bool                     `bun:"auto_confirm,notnull"`

	Breaks    []SalonBreak    `bun:"rel:has-many,join:id=salon_id"`
	Vacations []SalonVacation `bun:"rel:has-many,join:id=salon_id"`
}

// HoursOn returns the salon's declared hours for the weekday of date.
func (s Salon) HoursOn(date time.Time) (SalonDayHours, bool) {
	h, ok := s.WorkingHours[WeekdayKey(date.Weekday())]
	return h, ok
}

func (s Salon) Location() (*time.Location, error) {
	return LoadLocation(s.Timezone)
}

type Staff struct {
	bun.BaseModel `bun:"table:staff"`

	ID           uuid.UUID                `bun:"id,pk,type:uuid"`
	SalonID      uuid.UUID                `bun:"salon_id,type:uuid,notnull"`
	Name         string                   `bun:"name,notnull"`
	WorkingHours map[string]StaffDayHours `bun:"working_hours,type:jsonb"`
	AutoConfirm  bool                     `bun:"auto_confirm,notnull"`

	Breaks    []StaffBreak    `bun:"rel:has-many,join:id=staff_id"`
	Vacations []StaffVacation `bun:"rel:has-many,join:id=staff_id"`

	// ServiceIDs is the capability set, loaded from staff_services.
	ServiceIDs []uuid.UUID `bun:"-"`
}

// HoursOn returns the staff member's own hours for the weekday of date.
// ok is false when the staff member has no entry for that day.
func (s Staff) HoursOn(date time.Time) (StaffDayHours, bool) {
	h, ok := s.WorkingHours[WeekdayKey(date.Weekday())]
	return h, ok
}

func (s Staff) CanPerform(serviceID uuid.UUID) bool {
	return slices.Contains(s.ServiceIDs, serviceID)
}

// StaffService links a staff member to a service they can perform.
type StaffService struct {
	bun.BaseModel `bun:"table:staff_services"`

	StaffID   uuid.UUID `bun:"staff_id,pk,type:uuid"`
	ServiceID uuid.UUID `bun:"service_id,pk,type:uuid"`
}

type Service struct {
	bun.BaseModel `bun:"table:services"`

	ID                 uuid.UUID `bun:"id,pk,type:uuid"`
	SalonID            uuid.UUID `bun:"salon_id,type:uuid,notnull"`
	Name               string    `bun:"name,notnull"`
	DurationMinutes    int       `bun:"duration_minutes,notnull"`
	PriceCents         int64     `bun:"price_cents,notnull"`
	DiscountPriceCents *int64    `bun:"discount_price_cents"`
}

// EffectivePriceCents is the price charged at booking time: the discount
// price when one is set below the list price.
func (s Service) EffectivePriceCents() int64 {
	if s.DiscountPriceCents != nil && *s.DiscountPriceCents >= 0 && *s.DiscountPriceCents < s.PriceCents {
		return *s.DiscountPriceCents
	}
	return s.PriceCents
}

type BreakKind string

const (
	BreakKindSpecificDate BreakKind = "specific_date"
	BreakKindDateRange    BreakKind = "date_range"
)

// Break is an all-day exclusion on either one date or an inclusive date range.
type Break struct {
	ID        uuid.UUID  `bun:"id,pk,type:uuid"`
	Kind      BreakKind  `bun:"kind,notnull"`
	Date      *time.Time `bun:"break_date,type:date"`
	StartDate *time.Time `bun:"start_date,type:date"`
	EndDate   *time.Time `bun:"end_date,type:date"`
	IsActive  bool       `bun:"is_active,notnull"`
	Title     string     `bun:"title,notnull"`
}

func (b Break) Covers(date time.Time) bool {
	if !b.IsActive {
		return false
	}
	switch b.Kind {
	case BreakKindSpecificDate:
		return b.Date != nil && SameDate(DateOf(*b.Date), DateOf(date))
	case BreakKindDateRange:
		return dateWithin(date, b.StartDate, b.EndDate)
	default:
		return false
	}
}

type SalonBreak struct {
	bun.BaseModel `bun:"table:salon_breaks"`
	Break

	SalonID uuid.UUID `bun:"salon_id,type:uuid,notnull"`
}

type StaffBreak struct {
	bun.BaseModel `bun:"table:staff_breaks"`
	Break

	StaffID uuid.UUID `bun:"staff_id,type:uuid,notnull"`
}

// Vacation is an all-day absence over an inclusive date range.
type Vacation struct {
	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	StartDate time.Time `bun:"start_date,type:date,notnull"`
	EndDate   time.Time `bun:"end_date,type:date,notnull"`
	IsActive  bool      `bun:"is_active,notnull"`
	Title     string    `bun:"title,notnull"`
}

func (v Vacation) Covers(date time.Time) bool {
	return v.IsActive && dateWithin(date, &v.StartDate, &v.EndDate)
}

type SalonVacation struct {
	bun.BaseModel `bun:"table:salon_vacations"`
	Vacation

	SalonID uuid.UUID `bun:"salon_id,type:uuid,notnull"`
}

type StaffVacation struct {
	bun.BaseModel `bun:"table:staff_vacations"`
	Vacation

	StaffID uuid.UUID `bun:"staff_id,type:uuid,notnull"`
}

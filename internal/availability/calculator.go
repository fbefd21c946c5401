package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
)

const DefaultGranularity = 30 * time.Minute

type UnavailableKind string

const (
	KindClosed       UnavailableKind = "closed"
	KindOutsideHours UnavailableKind = "outside_hours"
	KindBlocked      UnavailableKind = "blocked"
	KindBooked       UnavailableKind = "booked"
	KindPast         UnavailableKind = "past"
	KindOffGrid      UnavailableKind = "off_grid"
)

// UnavailableError explains why a requested start time cannot be booked.
// Reason is safe to show to the person booking.
type UnavailableError struct {
	Kind   UnavailableKind
	Reason string
}

func (e *UnavailableError) Error() string {
	return "slot unavailable: " + e.Reason
}

func unavailable(kind UnavailableKind, format string, args ...any) error {
	return &UnavailableError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

var ErrInvalidDuration = errors.New("service duration must be positive")

type Query struct {
	Resolution Resolution
	// Duration of the service in minutes.
	Duration int
	// Granularity in minutes; zero uses the calculator's default.
	Granularity          int
	Appointments         []domain.Appointment
	ExcludeAppointmentID uuid.UUID
	Now                  time.Time
	Location             *time.Location
	// OnGrid makes Check reject starts that Slots would never offer.
	OnGrid bool
}

type Calculator struct {
	granularity int
}

func NewCalculator(granularity time.Duration) *Calculator {
	if granularity < time.Minute {
		granularity = DefaultGranularity
	}
	return &Calculator{granularity: int(granularity / time.Minute)}
}

func (c *Calculator) Granularity() time.Duration {
	return time.Duration(c.granularity) * time.Minute
}

// Slots lists every start time on the granularity grid at which the service
// fits, in chronological order.
func (c *Calculator) Slots(q Query) []domain.Clock {
	window := q.Resolution.WorkingWindow
	if window == nil || q.Duration <= 0 {
		return []domain.Clock{}
	}
	granularity := q.Granularity
	if granularity <= 0 {
		granularity = c.granularity
	}

	day := dayPosition(q)
	if day.past {
		return []domain.Clock{}
	}

	out := []domain.Clock{}
	for start := range domain.EnumerateSlots(window.Start, window.End, granularity, q.Duration) {
		end := start + domain.Clock(q.Duration)
		if day.today && start < day.now {
			continue
		}
		if _, hit := blockedBy(q.Resolution.Blocked, start, end); hit {
			continue
		}
		if bookedBy(q, start, end) {
			continue
		}
		out = append(out, start)
	}
	return out
}

// Check applies the same rules as Slots to a single start time. The start
// only has to sit on the granularity grid when q.OnGrid is set.
func (c *Calculator) Check(q Query, start domain.Clock) error {
	if q.Duration <= 0 {
		return ErrInvalidDuration
	}
	window := q.Resolution.WorkingWindow
	if window == nil {
		if len(q.Resolution.Reasons) == 0 {
			return unavailable(KindClosed, "no working hours on this date")
		}
		return unavailable(KindClosed, "%s", strings.Join(q.Resolution.Reasons, "; "))
	}

	day := dayPosition(q)
	if day.past || (day.today && start < day.now) {
		return unavailable(KindPast, "requested time has already passed")
	}

	end, err := start.AddMinutes(q.Duration)
	if err != nil {
		return unavailable(KindOutsideHours, "appointment would run past midnight")
	}
	if start < window.Start || end > window.End {
		return unavailable(KindOutsideHours, "requested time is outside working hours (%s-%s)", window.Start, window.End)
	}
	if q.OnGrid {
		granularity := q.Granularity
		if granularity <= 0 {
			granularity = c.granularity
		}
		if int(start-window.Start)%granularity != 0 {
			return unavailable(KindOffGrid, "bookings start every %d minutes from %s", granularity, window.Start)
		}
	}
	if b, hit := blockedBy(q.Resolution.Blocked, start, end); hit {
		return unavailable(KindBlocked, "%s", b.Reason)
	}
	if bookedBy(q, start, end) {
		return unavailable(KindBooked, "time slot is already booked")
	}
	return nil
}

type position struct {
	past  bool
	today bool
	now   domain.Clock
}

// dayPosition places the resolution date relative to Now in the salon's
// location. A zero Now disables the check.
func dayPosition(q Query) position {
	if q.Now.IsZero() {
		return position{}
	}
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	local := q.Now.In(loc)
	today := domain.DateOf(local)
	date := domain.DateOf(q.Resolution.Date)
	switch {
	case date.Before(today):
		return position{past: true}
	case date.Equal(today):
		return position{today: true, now: domain.ClockOf(local)}
	}
	return position{}
}

func blockedBy(blocked []Blocked, start, end domain.Clock) (Blocked, bool) {
	for _, b := range blocked {
		if domain.IntervalsOverlap(b.Start, b.End, start, end) {
			return b, true
		}
	}
	return Blocked{}, false
}

func bookedBy(q Query, start, end domain.Clock) bool {
	for _, a := range q.Appointments {
		if !a.Status.Active() {
			continue
		}
		if q.ExcludeAppointmentID != uuid.Nil && a.ID == q.ExcludeAppointmentID {
			continue
		}
		if a.Overlaps(start, end) {
			return true
		}
	}
	return false
}

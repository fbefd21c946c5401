// Package availability turns salon and staff schedules into bookable slots.
package availability

import (
	"fmt"
	"slices"
	"time"

	"salonbook/backend/internal/domain"
)

type Source string

const (
	SourceSalon Source = "salon"
	SourceStaff Source = "staff"
)

type Window struct {
	Start domain.Clock
	End   domain.Clock
}

// Blocked is a [Start, End) interval of the day that cannot be booked.
type Blocked struct {
	Start  domain.Clock
	End    domain.Clock
	Reason string
	Source Source
}

// Resolution is the effective schedule of one staff member on one date.
// WorkingWindow is nil when nothing can be booked that day; Reasons then
// says why.
type Resolution struct {
	Date          time.Time
	WorkingWindow *Window
	Blocked       []Blocked
	Reasons       []string
}

func (r Resolution) Closed() bool {
	return r.WorkingWindow == nil
}

// Resolve computes the working window and blocked intervals for staff on
// date. It never looks at appointments.
func Resolve(salon domain.Salon, staff domain.Staff, date time.Time) Resolution {
	date = domain.DateOf(date)
	res := Resolution{Date: date}
	day := domain.WeekdayKey(date.Weekday())

	salonHours, ok := salon.HoursOn(date)
	if !ok || !salonHours.IsOpen {
		res.Reasons = append(res.Reasons, fmt.Sprintf("salon is closed on %s", day))
		return res
	}
	window := Window{Start: salonHours.Open, End: salonHours.Close}

	if staffHours, ok := staff.HoursOn(date); ok {
		if !staffHours.IsWorking {
			res.Reasons = append(res.Reasons, fmt.Sprintf("staff member does not work on %s", day))
			return res
		}
		window.Start = max(window.Start, staffHours.Start)
		window.End = min(window.End, staffHours.End)
	}
	if window.End <= window.Start {
		res.Reasons = append(res.Reasons, "staff hours do not overlap salon hours")
		return res
	}

	vacation := false
	for _, v := range salon.Vacations {
		if v.Covers(date) {
			res.Reasons = append(res.Reasons, reason("salon vacation", v.Title))
			vacation = true
		}
	}
	for _, v := range staff.Vacations {
		if v.Covers(date) {
			res.Reasons = append(res.Reasons, reason("staff vacation", v.Title))
			vacation = true
		}
	}
	if vacation {
		return res
	}

	for _, b := range salon.Breaks {
		if b.Covers(date) {
			res.Blocked = append(res.Blocked, allDay(reason("salon break", b.Title), SourceSalon))
		}
	}
	for _, b := range staff.Breaks {
		if b.Covers(date) {
			res.Blocked = append(res.Blocked, allDay(reason("staff break", b.Title), SourceStaff))
		}
	}

	res.WorkingWindow = &window
	res.Blocked = coalesce(res.Blocked)
	return res
}

func reason(kind, title string) string {
	if title == "" {
		return kind
	}
	return kind + ": " + title
}

// Breaks are stored without a time range, so each one blocks the whole day.
func allDay(reason string, src Source) Blocked {
	return Blocked{Start: domain.Midnight, End: domain.EndOfDay, Reason: reason, Source: src}
}

// coalesce sorts blocked intervals and merges the ones that overlap or touch.
// The first interval's reason and source are kept for a merged run.
func coalesce(in []Blocked) []Blocked {
	if len(in) < 2 {
		return in
	}
	slices.SortStableFunc(in, func(a, b Blocked) int {
		if a.Start != b.Start {
			return int(a.Start) - int(b.Start)
		}
		return int(a.End) - int(b.End)
	})
	out := in[:1]
	for _, b := range in[1:] {
		last := &out[len(out)-1]
		if b.Start <= last.End {
			last.End = max(last.End, b.End)
			continue
		}
		out = append(out, b)
	}
	return out
}

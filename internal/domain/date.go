package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	// DayFirstLayout is the localized format accepted at the booking boundary.
	DayFirstLayout = "02.01.2006"
	ISODateLayout  = "2006-01-02"
)

var ErrInvalidDate = errors.New("invalid date")

// ParseDate normalizes a boundary date string to a calendar date (midnight
// UTC). Day-first "DD.MM.YYYY" and ISO "YYYY-MM-DD" are accepted; any other
// shape is rejected instead of guessed, so "03/04/2026" fails.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var layout string
	switch {
	case len(s) == len(DayFirstLayout) && s[2] == '.' && s[5] == '.':
		layout = DayFirstLayout
	case len(s) == len(ISODateLayout) && s[4] == '-' && s[7] == '-':
		layout = ISODateLayout
	default:
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// DateOf returns the calendar date of t as seen in t's own location,
// represented as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func FormatDate(t time.Time) string {
	return t.Format(ISODateLayout)
}

// WeekdayKey is the key used in working-hours maps ("monday" ... "sunday").
func WeekdayKey(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

// dateWithin reports whether date falls inside the inclusive [start, end]
// calendar range. Nil bounds never match.
func dateWithin(date time.Time, start, end *time.Time) bool {
	if start == nil || end == nil {
		return false
	}
	d := DateOf(date)
	return !d.Before(DateOf(*start)) && !d.After(DateOf(*end))
}

// LoadLocation resolves an IANA zone name, falling back to UTC for empty names.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.New("invalid time_zone")
	}
	return loc, nil
}

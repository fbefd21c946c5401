package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day with minute precision, counted from midnight.
// Valid values are 00:00 through 24:00; 24:00 only ever appears as an
// exclusive interval end.
type Clock int

const (
	Midnight    Clock = 0
	EndOfDay    Clock = 24 * 60
	minutesHour       = 60
)

var (
	ErrInvalidClock    = errors.New("invalid time of day")
	ErrCrossesMidnight = errors.New("interval crosses midnight")
)

func NewClock(hour, minute int) (Clock, error) {
	if hour < 0 || minute < 0 || minute >= minutesHour {
		return 0, ErrInvalidClock
	}
	c := Clock(hour*minutesHour + minute)
	if c > EndOfDay {
		return 0, ErrInvalidClock
	}
	return c, nil
}

// ParseClock parses "HH:MM". Seconds ("HH:MM:SS") are accepted only when zero.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if len(parts) == 3 && parts[2] != "00" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	c, err := NewClock(h, m)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return c, nil
}

func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the time of day of t in t's location, truncated to the minute.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*minutesHour + t.Minute())
}

func (c Clock) Hour() int   { return int(c) / minutesHour }
func (c Clock) Minute() int { return int(c) % minutesHour }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) Valid() bool {
	return c >= Midnight && c <= EndOfDay
}

// AddMinutes returns c shifted by d minutes. The result never rolls over
// into the next day: anything past 24:00 is ErrCrossesMidnight.
func (c Clock) AddMinutes(d int) (Clock, error) {
	out := c + Clock(d)
	if out < Midnight || out > EndOfDay {
		return 0, ErrCrossesMidnight
	}
	return out, nil
}

func (c Clock) Before(o Clock) bool { return c < o }
func (c Clock) After(o Clock) bool  { return c > o }

// On places c on the calendar date of day, in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Clock) Value() (driver.Value, error) {
	return int64(c), nil
}

func (c *Clock) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*c = Clock(v)
	case int32:
		*c = Clock(v)
	case []byte:
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return err
		}
		*c = Clock(n)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*c = Clock(n)
	case nil:
		*c = 0
	default:
		return fmt.Errorf("cannot scan %T into Clock", src)
	}
	return nil
}

// IntervalsOverlap reports whether [aStart, aEnd) and [bStart, bEnd) share at
// least one minute. Intervals that only touch do not overlap.
func IntervalsOverlap(aStart, aEnd, bStart, bEnd Clock) bool {
	return aStart < bEnd && bStart < aEnd
}

// EnumerateSlots yields candidate start times from windowStart in steps of
// granularity minutes, as long as [start, start+duration) fits inside the
// window. The sequence can be ranged over any number of times.
func EnumerateSlots(windowStart, windowEnd Clock, granularity, duration int) iter.Seq[Clock] {
	return func(yield func(Clock) bool) {
		if granularity <= 0 || duration <= 0 || windowEnd <= windowStart {
			return
		}
		for start := windowStart; start+Clock(duration) <= windowEnd; start += Clock(granularity) {
			if !yield(start) {
				return
			}
		}
	}
}

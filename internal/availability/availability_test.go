package availability

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
)

// 2026-01-05 is a Monday.
var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func clock(s string) domain.Clock { return domain.MustParseClock(s) }

func weekSalon() domain.Salon {
	hours := map[string]domain.SalonDayHours{}
	for _, d := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		hours[d] = domain.SalonDayHours{Open: clock("09:00"), Close: clock("17:00"), IsOpen: true}
	}
	hours["sunday"] = domain.SalonDayHours{IsOpen: false}
	return domain.Salon{ID: uuid.New(), Timezone: "UTC", WorkingHours: hours}
}

func labels(cs []domain.Clock) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.String())
	}
	return out
}

func unavailableKind(t *testing.T, err error) UnavailableKind {
	t.Helper()
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UnavailableError", err)
	}
	if ue.Reason == "" {
		t.Fatalf("empty reason for kind %q", ue.Kind)
	}
	return ue.Kind
}

func TestResolve_SalonWindowWhenStaffHoursUnset(t *testing.T) {
	res := Resolve(weekSalon(), domain.Staff{}, monday)

	if res.WorkingWindow == nil {
		t.Fatalf("expected a working window")
	}
	if want := (Window{Start: clock("09:00"), End: clock("17:00")}); *res.WorkingWindow != want {
		t.Fatalf("window = %+v, want %+v", *res.WorkingWindow, want)
	}
	if len(res.Blocked) != 0 {
		t.Fatalf("blocked = %+v, want none", res.Blocked)
	}
}

func TestResolve_IntersectsStaffHours(t *testing.T) {
	staff := domain.Staff{WorkingHours: map[string]domain.StaffDayHours{
		"monday": {Start: clock("08:00"), End: clock("13:00"), IsWorking: true},
	}}

	res := Resolve(weekSalon(), staff, monday)

	if res.WorkingWindow == nil {
		t.Fatalf("expected a working window")
	}
	if want := (Window{Start: clock("09:00"), End: clock("13:00")}); *res.WorkingWindow != want {
		t.Fatalf("window = %+v, want %+v", *res.WorkingWindow, want)
	}
}

func TestResolve_ClosedDays(t *testing.T) {
	tests := []struct {
		name  string
		salon domain.Salon
		staff domain.Staff
		date  time.Time
	}{
		{name: "salon closed", salon: weekSalon(), date: time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)},
		{name: "salon has no entry", salon: weekSalon(), date: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)},
		{
			name:  "staff day off",
			salon: weekSalon(),
			staff: domain.Staff{WorkingHours: map[string]domain.StaffDayHours{"monday": {IsWorking: false}}},
			date:  monday,
		},
		{
			name:  "no overlap",
			salon: weekSalon(),
			staff: domain.Staff{WorkingHours: map[string]domain.StaffDayHours{
				"monday": {Start: clock("17:00"), End: clock("20:00"), IsWorking: true},
			}},
			date: monday,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(tt.salon, tt.staff, tt.date)
			if !res.Closed() {
				t.Fatalf("expected closed, window = %+v", res.WorkingWindow)
			}
			if len(res.Reasons) == 0 {
				t.Fatalf("expected a reason")
			}
		})
	}
}

func TestResolve_VacationClearsWindow(t *testing.T) {
	staff := domain.Staff{Vacations: []domain.StaffVacation{{Vacation: domain.Vacation{
		StartDate: monday, EndDate: monday.AddDate(0, 0, 4), IsActive: true, Title: "Holiday",
	}}}}

	res := Resolve(weekSalon(), staff, monday.AddDate(0, 0, 2))

	if !res.Closed() {
		t.Fatalf("expected closed")
	}
	if !slices.Equal(res.Reasons, []string{"staff vacation: Holiday"}) {
		t.Fatalf("reasons = %q", res.Reasons)
	}
}

func TestResolve_InactiveVacationIgnored(t *testing.T) {
	salon := weekSalon()
	salon.Vacations = []domain.SalonVacation{{Vacation: domain.Vacation{StartDate: monday, EndDate: monday}}}

	if res := Resolve(salon, domain.Staff{}, monday); res.Closed() {
		t.Fatalf("inactive vacation closed the day: %q", res.Reasons)
	}
}

func TestResolve_BreaksBlockWholeDayAndCoalesce(t *testing.T) {
	salon := weekSalon()
	salon.Breaks = []domain.SalonBreak{{Break: domain.Break{
		Kind: domain.BreakKindSpecificDate, Date: &monday, IsActive: true, Title: "Inventory",
	}}}
	end := monday.AddDate(0, 0, 1)
	staff := domain.Staff{Breaks: []domain.StaffBreak{{Break: domain.Break{
		Kind: domain.BreakKindDateRange, StartDate: &monday, EndDate: &end, IsActive: true,
	}}}}

	res := Resolve(salon, staff, monday)

	if res.WorkingWindow == nil {
		t.Fatalf("expected a working window")
	}
	if len(res.Blocked) != 1 {
		t.Fatalf("blocked = %+v, want one coalesced range", res.Blocked)
	}
	want := Blocked{Start: domain.Midnight, End: domain.EndOfDay, Reason: "salon break: Inventory"}
	if res.Blocked[0] != want {
		t.Fatalf("blocked = %+v, want %+v", res.Blocked[0], want)
	}
}

func TestCoalesce(t *testing.T) {
	in := []Blocked{
		{Start: clock("13:00"), End: clock("14:00"), Reason: "c"},
		{Start: clock("09:00"), End: clock("10:00"), Reason: "a"},
		{Start: clock("10:00"), End: clock("11:00"), Reason: "b"},
		{Start: clock("15:00"), End: clock("16:00"), Reason: "d"},
	}

	out := coalesce(in)

	if len(out) != 3 {
		t.Fatalf("coalesce = %+v, want 3 ranges", out)
	}
	if want := (Blocked{Start: clock("09:00"), End: clock("11:00"), Reason: "a"}); out[0] != want {
		t.Fatalf("out[0] = %+v, want %+v", out[0], want)
	}
	if out[1].Start != clock("13:00") || out[2].Start != clock("15:00") {
		t.Fatalf("starts = %s, %s", out[1].Start, out[2].Start)
	}
}

func TestSlots_MondayScenario(t *testing.T) {
	calc := NewCalculator(30 * time.Minute)
	res := Resolve(weekSalon(), domain.Staff{}, monday)
	q := Query{Resolution: res, Duration: 30}

	slots := calc.Slots(q)
	if len(slots) != 16 {
		t.Fatalf("len(slots) = %d, want 16", len(slots))
	}
	if slots[0].String() != "09:00" || slots[15].String() != "16:30" {
		t.Fatalf("slots = %s..%s", slots[0], slots[15])
	}

	q.Appointments = []domain.Appointment{{
		ID: uuid.New(), Start: clock("10:00"), End: clock("10:30"), Status: domain.StatusPending,
	}}
	got := labels(calc.Slots(q))
	if len(got) != 15 {
		t.Fatalf("len(slots) = %d, want 15", len(got))
	}
	if slices.Contains(got, "10:00") || !slices.Contains(got, "10:30") {
		t.Fatalf("slots = %v", got)
	}
}

func TestSlots_LongServiceAndOverlap(t *testing.T) {
	calc := NewCalculator(30 * time.Minute)
	res := Resolve(weekSalon(), domain.Staff{}, monday)
	q := Query{
		Resolution: res,
		Duration:   60,
		Appointments: []domain.Appointment{
			{ID: uuid.New(), Start: clock("10:00"), End: clock("11:00"), Status: domain.StatusConfirmed},
			{ID: uuid.New(), Start: clock("13:00"), End: clock("14:00"), Status: domain.StatusCancelled},
		},
	}

	got := labels(calc.Slots(q))

	for _, s := range []string{"09:30", "10:30"} {
		if slices.Contains(got, s) {
			t.Fatalf("slots contain %s: %v", s, got)
		}
	}
	for _, s := range []string{"09:00", "11:00", "13:00"} {
		if !slices.Contains(got, s) {
			t.Fatalf("slots missing %s: %v", s, got)
		}
	}
	if last := got[len(got)-1]; last != "16:00" {
		t.Fatalf("last slot = %s, want 16:00", last)
	}
}

func TestSlots_ExcludedAppointmentFreesItsSlot(t *testing.T) {
	calc := NewCalculator(30 * time.Minute)
	id := uuid.New()
	q := Query{
		Resolution:           Resolve(weekSalon(), domain.Staff{}, monday),
		Duration:             30,
		Appointments:         []domain.Appointment{{ID: id, Start: clock("10:00"), End: clock("10:30"), Status: domain.StatusConfirmed}},
		ExcludeAppointmentID: id,
	}

	if got := labels(calc.Slots(q)); !slices.Contains(got, "10:00") {
		t.Fatalf("slots missing 10:00: %v", got)
	}
	if err := calc.Check(q, clock("10:00")); err != nil {
		t.Fatalf("Check error: %v", err)
	}
}

func TestSlots_TodayDropsPastStarts(t *testing.T) {
	calc := NewCalculator(30 * time.Minute)
	q := Query{
		Resolution: Resolve(weekSalon(), domain.Staff{}, monday),
		Duration:   30,
		Now:        monday.Add(12*time.Hour + 10*time.Minute),
		Location:   time.UTC,
	}

	got := labels(calc.Slots(q))

	if len(got) == 0 || got[0] != "12:30" {
		t.Fatalf("slots = %v, want first 12:30", got)
	}
}

func TestSlots_TodayUsesSalonLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	calc := NewCalculator(30 * time.Minute)
	q := Query{
		Resolution: Resolve(weekSalon(), domain.Staff{}, monday),
		Duration:   30,
		// 01:00 UTC on Monday is 10:00 on Monday in Tokyo.
		Now:      monday.Add(time.Hour),
		Location: loc,
	}

	got := labels(calc.Slots(q))

	if len(got) == 0 || got[0] != "10:00" {
		t.Fatalf("slots = %v, want first 10:00", got)
	}
}

func TestSlots_PastDateEmpty(t *testing.T) {
	calc := NewCalculator(30 * time.Minute)
	q := Query{
		Resolution: Resolve(weekSalon(), domain.Staff{}, monday),
		Duration:   30,
		Now:        monday.AddDate(0, 0, 1),
	}

	if got := calc.Slots(q); len(got) != 0 {
		t.Fatalf("slots = %v, want none", labels(got))
	}
}

func TestSlots_Idempotent(t *testing.T) {
	calc := NewCalculator(15 * time.Minute)
	q := Query{Resolution: Resolve(weekSalon(), domain.Staff{}, monday), Duration: 45}

	if a, b := calc.Slots(q), calc.Slots(q); !slices.Equal(a, b) {
		t.Fatalf("slots differ between calls: %v vs %v", labels(a), labels(b))
	}
}

func TestCheck(t *testing.T) {
	calc := NewCalculator(30 * time.Minute)
	salon := weekSalon()
	salon.Breaks = []domain.SalonBreak{{Break: domain.Break{
		Kind: domain.BreakKindSpecificDate, Date: &monday, IsActive: true, Title: "Training",
	}}}
	open := Query{
		Resolution:   Resolve(weekSalon(), domain.Staff{}, monday),
		Duration:     30,
		Appointments: []domain.Appointment{{ID: uuid.New(), Start: clock("10:00"), End: clock("10:30"), Status: domain.StatusConfirmed}},
	}
	onGrid := open
	onGrid.OnGrid = true
	withBreak := Query{Resolution: Resolve(salon, domain.Staff{}, monday), Duration: 30}
	closed := Query{Resolution: Resolve(weekSalon(), domain.Staff{}, monday.AddDate(0, 0, -1)), Duration: 30}

	tests := []struct {
		name  string
		q     Query
		start string
		want  UnavailableKind
	}{
		{name: "booked", q: open, start: "10:00", want: KindBooked},
		{name: "partial overlap", q: open, start: "09:45", want: KindBooked},
		{name: "before open", q: open, start: "08:30", want: KindOutsideHours},
		{name: "runs past close", q: open, start: "16:45", want: KindOutsideHours},
		{name: "break", q: withBreak, start: "11:00", want: KindBlocked},
		{name: "closed day", q: closed, start: "11:00", want: KindClosed},
		{name: "off grid", q: onGrid, start: "11:10", want: KindOffGrid},
		{name: "off grid and overlapping", q: onGrid, start: "09:45", want: KindOffGrid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unavailableKind(t, calc.Check(tt.q, clock(tt.start))); got != tt.want {
				t.Fatalf("kind = %q, want %q", got, tt.want)
			}
		})
	}

	for _, start := range []string{"10:30", "16:30"} {
		if err := calc.Check(onGrid, clock(start)); err != nil {
			t.Fatalf("Check(%s) error: %v", start, err)
		}
	}
	if err := calc.Check(open, clock("11:10")); err != nil {
		t.Fatalf("off-grid start without OnGrid: %v", err)
	}

	err := calc.Check(withBreak, clock("11:00"))
	if err == nil || !strings.Contains(err.Error(), "Training") {
		t.Fatalf("error = %v, want the break title", err)
	}
}

func TestCheck_GridFollowsWorkingWindow(t *testing.T) {
	staff := domain.Staff{WorkingHours: map[string]domain.StaffDayHours{
		"monday": {Start: clock("09:15"), End: clock("13:00"), IsWorking: true},
	}}
	calc := NewCalculator(30 * time.Minute)
	q := Query{Resolution: Resolve(weekSalon(), staff, monday), Duration: 30, OnGrid: true}

	got := labels(calc.Slots(q))
	if len(got) == 0 || got[0] != "09:15" {
		t.Fatalf("slots = %v, want first 09:15", got)
	}
	for _, s := range got {
		if err := calc.Check(q, clock(s)); err != nil {
			t.Fatalf("listed slot %s rejected: %v", s, err)
		}
	}
	if kind := unavailableKind(t, calc.Check(q, clock("10:00"))); kind != KindOffGrid {
		t.Fatalf("kind = %q, want %q", kind, KindOffGrid)
	}

	q.Granularity = 15
	if err := calc.Check(q, clock("10:00")); err != nil {
		t.Fatalf("15-minute grid rejected 10:00: %v", err)
	}
}

func TestCheck_PastMidnight(t *testing.T) {
	salon := weekSalon()
	salon.WorkingHours["monday"] = domain.SalonDayHours{Open: clock("20:00"), Close: domain.EndOfDay, IsOpen: true}
	calc := NewCalculator(30 * time.Minute)
	q := Query{Resolution: Resolve(salon, domain.Staff{}, monday), Duration: 90}

	if kind := unavailableKind(t, calc.Check(q, clock("23:00"))); kind != KindOutsideHours {
		t.Fatalf("kind = %q, want %q", kind, KindOutsideHours)
	}
	if got := labels(calc.Slots(q)); slices.Contains(got, "23:00") {
		t.Fatalf("slots contain 23:00: %v", got)
	}
}

func TestCheck_InvalidDuration(t *testing.T) {
	calc := NewCalculator(0)
	if calc.Granularity() != DefaultGranularity {
		t.Fatalf("Granularity = %s, want %s", calc.Granularity(), DefaultGranularity)
	}
	err := calc.Check(Query{Resolution: Resolve(weekSalon(), domain.Staff{}, monday)}, clock("10:00"))
	if !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("error = %v, want ErrInvalidDuration", err)
	}
}

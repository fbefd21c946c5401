package domain

import (
	"errors"
	"testing"
	"time"
)

func TestInitialStatus(t *testing.T) {
	tests := []struct {
		name  string
		actor Actor
		salon Salon
		staff Staff
		want  AppointmentStatus
	}{
		{name: "guest without auto confirm", actor: ActorGuest, want: StatusPending},
		{name: "client without auto confirm", actor: ActorClient, want: StatusPending},
		{name: "client with salon auto confirm", actor: ActorClient, salon: Salon{AutoConfirm: true}, want: StatusConfirmed},
		{name: "guest with staff auto confirm", actor: ActorGuest, staff: Staff{AutoConfirm: true}, want: StatusConfirmed},
		{name: "staff manual booking", actor: ActorStaff, want: StatusConfirmed},
		{name: "salon manual booking", actor: ActorSalon, want: StatusConfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InitialStatus(tt.actor, tt.salon, tt.staff); got != tt.want {
				t.Fatalf("InitialStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	allowed := [][2]AppointmentStatus{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCancelled},
		{StatusConfirmed, StatusInProgress},
		{StatusConfirmed, StatusCompleted},
		{StatusConfirmed, StatusNoShow},
		{StatusConfirmed, StatusCancelled},
		{StatusInProgress, StatusCompleted},
	}
	for _, p := range allowed {
		if !p[0].CanTransitionTo(p[1]) {
			t.Fatalf("%s -> %s should be allowed", p[0], p[1])
		}
	}

	denied := [][2]AppointmentStatus{
		{StatusPending, StatusCompleted},
		{StatusPending, StatusNoShow},
		{StatusCancelled, StatusConfirmed},
		{StatusCompleted, StatusCancelled},
		{StatusNoShow, StatusConfirmed},
		{StatusInProgress, StatusCancelled},
	}
	for _, p := range denied {
		if p[0].CanTransitionTo(p[1]) {
			t.Fatalf("%s -> %s should be denied", p[0], p[1])
		}
	}
}

func TestAppointmentSchedule_DerivesEnd(t *testing.T) {
	var a Appointment
	day := time.Date(2026, 1, 5, 15, 4, 0, 0, time.UTC)

	if err := a.Schedule(day, MustParseClock("10:00"), 45); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if a.End != MustParseClock("10:45") {
		t.Fatalf("end = %v, want 10:45", a.End)
	}
	if !a.Date.Equal(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %v, want 2026-01-05", a.Date)
	}

	if err := a.Schedule(day, MustParseClock("23:30"), 45); !errors.Is(err, ErrCrossesMidnight) {
		t.Fatalf("err = %v, want ErrCrossesMidnight", err)
	}
}

func TestAppointmentClientRoundTrip(t *testing.T) {
	var a Appointment

	a.SetClient(GuestClient{Name: " Ann ", Phone: "+100", Address: "Main st"})
	g, ok := a.Client().(GuestClient)
	if !ok {
		t.Fatalf("client type = %T, want GuestClient", a.Client())
	}
	if g.Name != "Ann" || g.Phone != "+100" {
		t.Fatalf("guest = %+v", g)
	}

	a.SetClient(RegisteredClient{UserID: "u1"})
	r, ok := a.Client().(RegisteredClient)
	if !ok || r.UserID != "u1" {
		t.Fatalf("client = %#v, want RegisteredClient{u1}", a.Client())
	}
	if a.GuestName != "" {
		t.Fatalf("guest columns not cleared: %q", a.GuestName)
	}
}

func TestGuestClientValidate(t *testing.T) {
	if err := (GuestClient{Name: "Ann", Phone: "1", Address: "x"}).Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if err := (GuestClient{Name: "Ann", Address: "x"}).Validate(); err == nil {
		t.Fatalf("expected missing phone error")
	}
	if err := (RegisteredClient{}).Validate(); err == nil {
		t.Fatalf("expected missing user id error")
	}
}

func TestServiceEffectivePrice(t *testing.T) {
	discount := int64(800)
	s := Service{PriceCents: 1000, DiscountPriceCents: &discount}
	if got := s.EffectivePriceCents(); got != 800 {
		t.Fatalf("price = %d, want 800", got)
	}
	higher := int64(1200)
	s.DiscountPriceCents = &higher
	if got := s.EffectivePriceCents(); got != 1000 {
		t.Fatalf("price = %d, want 1000", got)
	}
}

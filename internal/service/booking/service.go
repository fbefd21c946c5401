package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/availability"
	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

// Notifier receives events after the change they describe has committed.
type Notifier interface {
	Notify(ctx context.Context, ev domain.AppointmentEvent) error
}

type Metrics interface {
	ObserveBooking(op, outcome string, elapsed time.Duration)
	ObserveSlotsListed(count int)
}

type Options struct {
	Granularity time.Duration
	Notifier    Notifier
	Metrics     Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

type Service struct {
	store    store.BookingStore
	calc     *availability.Calculator
	notifier Notifier
	metrics  Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewService(st store.BookingStore, opts Options) *Service {
	s := &Service{
		store:    st,
		calc:     availability.NewCalculator(opts.Granularity),
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		now:      opts.Now,
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With(slog.String("component", "service.booking"))
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.AppointmentEvent) error { return nil }

type nopMetrics struct{}

func (nopMetrics) ObserveBooking(string, string, time.Duration) {}
func (nopMetrics) ObserveSlotsListed(int)                       {}

// ListAvailableSlots returns the free start times ("HH:MM") for the service
// with the staff member on date. It takes no locks; the result is advisory.
func (s *Service) ListAvailableSlots(ctx context.Context, staffID, serviceID uuid.UUID, date time.Time) ([]string, error) {
	if staffID == uuid.Nil {
		return nil, validationError("staff_id is required")
	}
	if serviceID == uuid.Nil {
		return nil, validationError("service_id is required")
	}
	if date.IsZero() {
		return nil, ErrInvalidDate
	}

	staff, svc, err := loadStaffAndService(ctx, s.store, staffID, serviceID)
	if err != nil {
		return nil, err
	}
	salon, err := s.store.GetSalon(ctx, staff.SalonID)
	if err != nil {
		return nil, fmt.Errorf("load salon %s: %w", staff.SalonID, err)
	}
	loc, err := salon.Location()
	if err != nil {
		return nil, fmt.Errorf("salon %s: %w", salon.ID, err)
	}
	now := s.now()
	if err := checkNotPast(date, now, loc); err != nil {
		return nil, err
	}

	appts, err := s.store.ListActiveAppointments(ctx, staffID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	slots := s.calc.Slots(availability.Query{
		Resolution:   availability.Resolve(salon, staff, date),
		Duration:     svc.DurationMinutes,
		Appointments: appts,
		Now:          now,
		Location:     loc,
	})
	out := make([]string, 0, len(slots))
	for _, c := range slots {
		out = append(out, c.String())
	}
	s.metrics.ObserveSlotsListed(len(out))
	return out, nil
}

type BookInput struct {
	StaffID   uuid.UUID
	ServiceID uuid.UUID
	// SalonID is optional; when set it must match the staff member's salon.
	SalonID uuid.UUID
	Date    time.Time
	Time    domain.Clock
	Client  domain.ClientIdentity
	// Actor defaults to client or guest depending on Client.
	Actor domain.Actor
	// IdempotencyKey makes retries of the same booking return the original
	// appointment instead of failing on the slot it already holds.
	IdempotencyKey string
}

func (s *Service) BookAppointment(ctx context.Context, in BookInput) (appt domain.Appointment, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveBooking("book", outcomeOf(err), s.now().Sub(started)) }()

	actor, err := validateBookInput(&in)
	if err != nil {
		return domain.Appointment{}, err
	}

	// Advisory pass without the lock so obviously bad requests never queue.
	staff, _, err := loadStaffAndService(ctx, s.store, in.StaffID, in.ServiceID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if in.SalonID != uuid.Nil && in.SalonID != staff.SalonID {
		return domain.Appointment{}, validationError("staff member does not belong to this salon")
	}

	id := idempotentID(in.Client, in.IdempotencyKey)
	replayed := false
	err = s.store.InStaffTransaction(ctx, in.StaffID, func(ctx context.Context, tx store.BookingTx) error {
		if id != uuid.Nil {
			existing, err := tx.GetAppointment(ctx, id)
			switch {
			case err == nil:
				if existing.StaffID != in.StaffID || existing.ServiceID != in.ServiceID ||
					!domain.SameDate(existing.Date, in.Date) || existing.Start != in.Time {
					return ErrIdempotencyConflict
				}
				appt, replayed = existing, true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		staff, svc, err := loadStaffAndService(ctx, tx, in.StaffID, in.ServiceID)
		if err != nil {
			return err
		}
		salon, err := tx.GetSalon(ctx, staff.SalonID)
		if err != nil {
			return fmt.Errorf("load salon %s: %w", staff.SalonID, err)
		}
		if err := s.checkSlot(ctx, tx, salon, staff, svc, in.Date, in.Time, uuid.Nil, !actor.Manual()); err != nil {
			return err
		}

		next := domain.Appointment{
			ID:              id,
			StaffID:         staff.ID,
			SalonID:         salon.ID,
			ServiceID:       svc.ID,
			Status:          domain.InitialStatus(actor, salon, staff),
			TotalPriceCents: svc.EffectivePriceCents(),
			BookedBy:        actor,
		}
		next.SetClient(in.Client)
		if err := next.Schedule(in.Date, in.Time, svc.DurationMinutes); err != nil {
			return fmt.Errorf("%w: %w", ErrSlotUnavailable, err)
		}
		appt, err = tx.InsertAppointment(ctx, next)
		return err
	})
	if err != nil {
		return domain.Appointment{}, s.txError(err)
	}
	if replayed {
		return appt, nil
	}

	s.publish(ctx, domain.NewAppointmentEvent(domain.EventBooked, s.now(), appt, nil))
	return appt, nil
}

// idempotentID derives a stable appointment id from the client and the
// request key. It is uuid.Nil when no key is given.
func idempotentID(client domain.ClientIdentity, key string) uuid.UUID {
	key = strings.TrimSpace(key)
	if key == "" {
		return uuid.Nil
	}
	var owner string
	switch c := client.(type) {
	case domain.RegisteredClient:
		owner = "user:" + strings.TrimSpace(c.UserID)
	case domain.GuestClient:
		owner = "guest:" + strings.TrimSpace(c.Phone)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("salonbook:book_appointment:"+owner+":"+key))
}

type RescheduleInput struct {
	AppointmentID uuid.UUID
	// Nil fields keep the appointment's current value.
	StaffID   *uuid.UUID
	ServiceID *uuid.UUID
	Date      *time.Time
	Time      *domain.Clock
}

func (s *Service) RescheduleAppointment(ctx context.Context, in RescheduleInput) (appt domain.Appointment, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveBooking("reschedule", outcomeOf(err), s.now().Sub(started)) }()

	if in.AppointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if in.Date != nil && in.Date.IsZero() {
		return domain.Appointment{}, ErrInvalidDate
	}
	if in.Time != nil && (!in.Time.Valid() || *in.Time == domain.EndOfDay) {
		return domain.Appointment{}, validationError("time is out of range")
	}

	current, err := s.store.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		return domain.Appointment{}, notFound(err, ErrAppointmentNotFound)
	}
	if err := checkReschedulable(current); err != nil {
		return domain.Appointment{}, err
	}

	staffID := current.StaffID
	if in.StaffID != nil && *in.StaffID != uuid.Nil {
		staffID = *in.StaffID
	}
	serviceID := current.ServiceID
	if in.ServiceID != nil && *in.ServiceID != uuid.Nil {
		serviceID = *in.ServiceID
	}
	if _, _, err := loadStaffAndService(ctx, s.store, staffID, serviceID); err != nil {
		return domain.Appointment{}, err
	}

	var previous domain.Appointment
	err = s.store.InStaffTransaction(ctx, staffID, func(ctx context.Context, tx store.BookingTx) error {
		locked, err := tx.LockAppointment(ctx, in.AppointmentID)
		if err != nil {
			return notFound(err, ErrAppointmentNotFound)
		}
		if err := checkReschedulable(locked); err != nil {
			return err
		}
		// The appointment moved to another staff member after we chose which
		// lock to take; that move owns the slot now.
		if in.StaffID == nil && locked.StaffID != staffID {
			return fmt.Errorf("%w: appointment was changed concurrently", ErrSlotUnavailable)
		}
		previous = locked

		staff, svc, err := loadStaffAndService(ctx, tx, staffID, serviceID)
		if err != nil {
			return err
		}
		if staff.SalonID != locked.SalonID {
			return validationError("staff member belongs to a different salon")
		}
		salon, err := tx.GetSalon(ctx, staff.SalonID)
		if err != nil {
			return fmt.Errorf("load salon %s: %w", staff.SalonID, err)
		}

		date, start := locked.Date, locked.Start
		if in.Date != nil {
			date = domain.DateOf(*in.Date)
		}
		if in.Time != nil {
			start = *in.Time
		}
		if err := s.checkSlot(ctx, tx, salon, staff, svc, date, start, locked.ID, false); err != nil {
			return err
		}

		next := locked
		next.StaffID = staff.ID
		if next.ServiceID != svc.ID {
			next.ServiceID = svc.ID
			next.TotalPriceCents = svc.EffectivePriceCents()
		}
		if err := next.Schedule(date, start, svc.DurationMinutes); err != nil {
			return fmt.Errorf("%w: %w", ErrSlotUnavailable, err)
		}
		appt, err = tx.UpdateAppointment(ctx, next)
		return err
	})
	if err != nil {
		return domain.Appointment{}, s.txError(err)
	}

	s.publish(ctx, domain.NewAppointmentEvent(domain.EventRescheduled, s.now(), appt, &previous))
	return appt, nil
}

func checkReschedulable(a domain.Appointment) error {
	if a.Status != domain.StatusPending && a.Status != domain.StatusConfirmed {
		return fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, a.Status)
	}
	return nil
}

func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.changeStatus(ctx, "confirm", id, domain.StatusConfirmed, "")
}

func (s *Service) StartAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.changeStatus(ctx, "start", id, domain.StatusInProgress, "")
}

func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.changeStatus(ctx, "complete", id, domain.StatusCompleted, "")
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.changeStatus(ctx, "no_show", id, domain.StatusNoShow, "")
}

// CancelAppointment releases the slot. The appointment row is kept.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error) {
	if len(reason) > 500 {
		return domain.Appointment{}, validationError("cancel reason too long")
	}
	return s.changeStatus(ctx, "cancel", id, domain.StatusCancelled, reason)
}

func (s *Service) changeStatus(ctx context.Context, op string, id uuid.UUID, next domain.AppointmentStatus, reason string) (appt domain.Appointment, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveBooking(op, outcomeOf(err), s.now().Sub(started)) }()

	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}

	var previous domain.Appointment
	err = s.store.InAppointmentTransaction(ctx, id, func(ctx context.Context, tx store.BookingTx, locked domain.Appointment) error {
		if !locked.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, locked.Status, next)
		}
		previous = locked
		updated := locked
		updated.Status = next
		if next == domain.StatusCancelled {
			updated.CancelReason = reason
		}
		saved, err := tx.UpdateAppointment(ctx, updated)
		if err != nil {
			return err
		}
		appt = saved
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Appointment{}, ErrAppointmentNotFound
		}
		return domain.Appointment{}, s.txError(err)
	}

	s.publish(ctx, domain.NewAppointmentEvent(domain.EventStatusChanged, s.now(), appt, &previous))
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, notFound(err, ErrAppointmentNotFound)
	}
	return appt, nil
}

// checkSlot is the authoritative availability test. It runs inside the staff
// transaction against freshly loaded data. Client and guest bookings must
// land on the listed grid; salon and staff users may place them anywhere free.
func (s *Service) checkSlot(ctx context.Context, tx store.BookingTx, salon domain.Salon, staff domain.Staff, svc domain.Service, date time.Time, start domain.Clock, exclude uuid.UUID, onGrid bool) error {
	loc, err := salon.Location()
	if err != nil {
		return fmt.Errorf("salon %s: %w", salon.ID, err)
	}
	now := s.now()
	if err := checkNotPast(date, now, loc); err != nil {
		return err
	}
	appts, err := tx.ListActiveAppointments(ctx, staff.ID, date)
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}
	err = s.calc.Check(availability.Query{
		Resolution:           availability.Resolve(salon, staff, date),
		Duration:             svc.DurationMinutes,
		Appointments:         appts,
		ExcludeAppointmentID: exclude,
		Now:                  now,
		Location:             loc,
		OnGrid:               onGrid,
	}, start)
	var ue *availability.UnavailableError
	if errors.As(err, &ue) {
		return fmt.Errorf("%w: %w", ErrSlotUnavailable, ue)
	}
	return err
}

// txError translates store failures surfacing from a booking transaction.
func (s *Service) txError(err error) error {
	switch {
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: the slot was just booked by someone else: %w", ErrSlotUnavailable, err)
	case errors.Is(err, store.ErrDuplicateID):
		// Only a derived idempotent id can collide: the same key was used
		// concurrently under another staff lock.
		return fmt.Errorf("%w: %w", ErrIdempotencyConflict, err)
	case errors.Is(err, store.ErrNotFound):
		// Only the staff lock itself can leak a bare not-found; every read
		// inside the transaction maps its own.
		return ErrStaffNotFound
	}
	return err
}

func (s *Service) publish(ctx context.Context, ev domain.AppointmentEvent) {
	if err := s.notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("appointment event not delivered",
			slog.String("type", string(ev.Type)),
			slog.String("appointment_id", ev.Appointment.ID.String()),
			slog.Any("err", err),
		)
	}
}

func validateBookInput(in *BookInput) (domain.Actor, error) {
	if in.StaffID == uuid.Nil {
		return "", validationError("staff_id is required")
	}
	if in.ServiceID == uuid.Nil {
		return "", validationError("service_id is required")
	}
	if in.Date.IsZero() {
		return "", ErrInvalidDate
	}
	if !in.Time.Valid() || in.Time == domain.EndOfDay {
		return "", validationError("time is out of range")
	}
	if in.Client == nil {
		return "", validationError("client is required")
	}
	if err := in.Client.Validate(); err != nil {
		return "", validationError(err.Error())
	}
	if len(strings.TrimSpace(in.IdempotencyKey)) > 256 {
		return "", validationError("idempotency_key too long")
	}

	actor := in.Actor
	_, registered := in.Client.(domain.RegisteredClient)
	switch actor {
	case "":
		actor = domain.ActorGuest
		if registered {
			actor = domain.ActorClient
		}
	case domain.ActorClient:
		if !registered {
			return "", validationError("client bookings require a registered client")
		}
	case domain.ActorGuest:
		if registered {
			return "", validationError("guest bookings require guest details")
		}
	case domain.ActorStaff, domain.ActorSalon:
	default:
		return "", validationError("unknown actor")
	}
	return actor, nil
}

func loadStaffAndService(ctx context.Context, r store.ScheduleReader, staffID, serviceID uuid.UUID) (domain.Staff, domain.Service, error) {
	staff, err := r.GetStaff(ctx, staffID)
	if err != nil {
		return domain.Staff{}, domain.Service{}, notFound(err, ErrStaffNotFound)
	}
	svc, err := r.GetService(ctx, serviceID)
	if err != nil {
		return domain.Staff{}, domain.Service{}, notFound(err, ErrServiceNotFound)
	}
	if svc.SalonID != staff.SalonID || !staff.CanPerform(svc.ID) {
		return domain.Staff{}, domain.Service{}, ErrStaffCannotPerformService
	}
	return staff, svc, nil
}

func checkNotPast(date, now time.Time, loc *time.Location) error {
	if domain.DateOf(date).Before(domain.DateOf(now.In(loc))) {
		return ErrDateInPast
	}
	return nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, store.ErrNotFound) {
		return sentinel
	}
	return err
}

func outcomeOf(err error) string {
	var vErr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSlotUnavailable):
		return "unavailable"
	case errors.Is(err, store.ErrTransient):
		return "transient"
	case errors.As(err, &vErr),
		errors.Is(err, ErrStaffNotFound),
		errors.Is(err, ErrServiceNotFound),
		errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrStaffCannotPerformService),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrDateInPast),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrIdempotencyConflict):
		return "rejected"
	}
	return "error"
}

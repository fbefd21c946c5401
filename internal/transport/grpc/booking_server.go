package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"salonbook/backend/internal/availability"
	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/service/booking"
	"salonbook/backend/internal/store"
)

type BookingServer struct {
	svc bookingService
	log *slog.Logger
}

var _ BookingServiceServer = (*BookingServer)(nil)

type bookingService interface {
	ListAvailableSlots(ctx context.Context, staffID, serviceID uuid.UUID, date time.Time) ([]string, error)
	BookAppointment(ctx context.Context, in booking.BookInput) (domain.Appointment, error)
	RescheduleAppointment(ctx context.Context, in booking.RescheduleInput) (domain.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ConfirmAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	StartAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)
}

func NewBookingServer(svc bookingService, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.booking")),
	}
}

func (s *BookingServer) ListAvailableSlots(ctx context.Context, req *ListAvailableSlotsRequest) (*ListAvailableSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", methodListAvailableSlots))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	staffID, err := parseID("staff_id", req.StaffID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "staff_id"))
		return nil, err
	}
	serviceID, err := parseID("service_id", req.ServiceID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "service_id"))
		return nil, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("date", req.Date))
		return nil, err
	}

	slots, err := s.svc.ListAvailableSlots(ctx, staffID, serviceID, date)
	if err != nil {
		return nil, s.statusError(log, "slots list failed", err, slog.String("staff_id", staffID.String()))
	}

	log.Debug(
		"slots listed",
		slog.String("staff_id", staffID.String()),
		slog.String("service_id", serviceID.String()),
		slog.String("date", domain.FormatDate(date)),
		slog.Int("count", len(slots)),
	)

	if slots == nil {
		slots = []string{}
	}
	return &ListAvailableSlotsResponse{Date: domain.FormatDate(date), Slots: slots}, nil
}

func (s *BookingServer) BookAppointment(ctx context.Context, req *BookAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", methodBookAppointment))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	staffID, err := parseID("staff_id", req.StaffID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "staff_id"))
		return nil, err
	}
	serviceID, err := parseID("service_id", req.ServiceID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "service_id"))
		return nil, err
	}
	var salonID uuid.UUID
	if strings.TrimSpace(req.SalonID) != "" {
		if salonID, err = parseID("salon_id", req.SalonID); err != nil {
			log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "salon_id"))
			return nil, err
		}
	}
	date, err := parseDate(req.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("date", req.Date))
		return nil, err
	}
	start, err := parseTime(req.Time)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_time"), slog.String("time", req.Time))
		return nil, err
	}
	client, err := clientIdentity(req)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "ambiguous_client"))
		return nil, err
	}
	actor := domain.Actor(strings.TrimSpace(req.Actor))
	if actor.Manual() && !isStaffCall(ctx) {
		log.Warn("permission denied", slog.String("reason", "manual_actor"), slog.String("actor", string(actor)))
		return nil, status.Errorf(codes.PermissionDenied, "booking as %s requires staff credentials", actor)
	}

	appt, err := s.svc.BookAppointment(ctx, booking.BookInput{
		StaffID:        staffID,
		ServiceID:      serviceID,
		SalonID:        salonID,
		Date:           date,
		Time:           start,
		Client:         client,
		Actor:          actor,
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.statusError(log, "appointment booking failed", err,
			slog.String("staff_id", staffID.String()),
			slog.String("date", domain.FormatDate(date)),
			slog.String("time", start.String()),
		)
	}

	log.Info(
		"appointment booked",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("staff_id", appt.StaffID.String()),
		slog.String("date", domain.FormatDate(appt.Date)),
		slog.String("start", appt.Start.String()),
		slog.String("status", string(appt.Status)),
	)

	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *BookingServer) RescheduleAppointment(ctx context.Context, req *RescheduleAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", methodRescheduleAppointment))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID("appointment_id", req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "appointment_id"))
		return nil, err
	}

	in := booking.RescheduleInput{AppointmentID: id}
	if in.StaffID, err = optionalID("staff_id", req.StaffID); err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "staff_id"))
		return nil, err
	}
	if in.ServiceID, err = optionalID("service_id", req.ServiceID); err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "service_id"))
		return nil, err
	}
	if strings.TrimSpace(req.Date) != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("date", req.Date))
			return nil, err
		}
		in.Date = &date
	}
	if strings.TrimSpace(req.Time) != "" {
		start, err := parseTime(req.Time)
		if err != nil {
			log.Warn("invalid request", slog.String("reason", "invalid_time"), slog.String("time", req.Time))
			return nil, err
		}
		in.Time = &start
	}

	appt, err := s.svc.RescheduleAppointment(ctx, in)
	if err != nil {
		return nil, s.statusError(log, "appointment reschedule failed", err, slog.String("appointment_id", id.String()))
	}

	log.Info(
		"appointment rescheduled",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("staff_id", appt.StaffID.String()),
		slog.String("date", domain.FormatDate(appt.Date)),
		slog.String("start", appt.Start.String()),
	)

	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *BookingServer) GetAppointment(ctx context.Context, req *GetAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", methodGetAppointment))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID("appointment_id", req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "appointment_id"))
		return nil, err
	}

	appt, err := s.svc.GetAppointment(ctx, id)
	if err != nil {
		return nil, s.statusError(log, "appointment get failed", err, slog.String("appointment_id", id.String()))
	}
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *BookingServer) UpdateAppointmentStatus(ctx context.Context, req *UpdateAppointmentStatusRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", methodUpdateAppointmentStatus))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseID("appointment_id", req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "appointment_id"))
		return nil, err
	}

	action := strings.ToLower(strings.TrimSpace(req.Action))
	var appt domain.Appointment
	switch action {
	case "confirm":
		appt, err = s.svc.ConfirmAppointment(ctx, id)
	case "start":
		appt, err = s.svc.StartAppointment(ctx, id)
	case "complete":
		appt, err = s.svc.CompleteAppointment(ctx, id)
	case "no_show":
		appt, err = s.svc.MarkNoShow(ctx, id)
	case "cancel":
		appt, err = s.svc.CancelAppointment(ctx, id, req.Reason)
	default:
		log.Warn("invalid request", slog.String("reason", "unknown_action"), slog.String("action", req.Action))
		return nil, status.Error(codes.InvalidArgument, "action must be one of confirm, start, complete, no_show, cancel")
	}
	if err != nil {
		return nil, s.statusError(log, "appointment status update failed", err,
			slog.String("appointment_id", id.String()),
			slog.String("action", action),
		)
	}

	log.Info(
		"appointment status updated",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("action", action),
		slog.String("status", string(appt.Status)),
	)

	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

// statusError maps service errors to gRPC codes. Expected rejections are
// logged at Info or Warn; anything unexpected is logged at Error and hidden
// behind codes.Internal.
func (s *BookingServer) statusError(log *slog.Logger, msg string, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)

	var vErr *booking.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, booking.ErrInvalidDate):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, "date must be DD.MM.YYYY or YYYY-MM-DD")
	case errors.Is(err, booking.ErrStaffNotFound),
		errors.Is(err, booking.ErrServiceNotFound),
		errors.Is(err, booking.ErrAppointmentNotFound):
		log.Info("not found", args...)
		return status.Error(codes.NotFound, rootMessage(err))
	case errors.Is(err, booking.ErrSlotUnavailable):
		log.Info("slot unavailable", args...)
		return status.Error(codes.FailedPrecondition, unavailableMessage(err))
	case errors.Is(err, booking.ErrIdempotencyConflict):
		log.Info("idempotency conflict", args...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, booking.ErrStaffCannotPerformService):
		log.Info("service not offered", args...)
		return status.Error(codes.FailedPrecondition, "This staff member does not perform that service.")
	case errors.Is(err, booking.ErrDateInPast):
		log.Info("date in past", args...)
		return status.Error(codes.FailedPrecondition, "That date has already passed. Pick a later date.")
	case errors.Is(err, booking.ErrInvalidTransition):
		log.Info("status transition rejected", args...)
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, store.ErrTransient):
		log.Warn("booking contention", args...)
		return status.Error(codes.Unavailable, "The schedule is busy right now. Try again.")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("deadline exceeded", args...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	}
	log.Error(msg, args...)
	return status.Error(codes.Internal, "internal error")
}

func unavailableMessage(err error) string {
	var ue *availability.UnavailableError
	if errors.As(err, &ue) {
		return "That time is not available (" + ue.Reason + "). Pick a different slot."
	}
	if errors.Is(err, store.ErrConflict) {
		return "That slot was just booked by someone else. Pick a different slot."
	}
	return "That time is not available. Pick a different slot."
}

func rootMessage(err error) string {
	for _, sentinel := range []error{booking.ErrStaffNotFound, booking.ErrServiceNotFound, booking.ErrAppointmentNotFound} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func clientIdentity(req *BookAppointmentRequest) (domain.ClientIdentity, error) {
	userID := strings.TrimSpace(req.ClientUserID)
	switch {
	case userID != "" && req.Guest != nil:
		return nil, status.Error(codes.InvalidArgument, "set either client_user_id or guest, not both")
	case userID != "":
		return domain.RegisteredClient{UserID: userID}, nil
	case req.Guest != nil:
		return domain.GuestClient{
			Name:    req.Guest.Name,
			Phone:   req.Guest.Phone,
			Address: req.Guest.Address,
			Email:   req.Guest.Email,
		}, nil
	}
	return nil, nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "%s must be a UUID", field)
	}
	return id, nil
}

func optionalID(field, raw string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := parseID(field, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseDate(raw string) (time.Time, error) {
	date, err := domain.ParseDate(raw)
	if err != nil {
		return time.Time{}, status.Error(codes.InvalidArgument, "date must be DD.MM.YYYY or YYYY-MM-DD")
	}
	return date, nil
}

func parseTime(raw string) (domain.Clock, error) {
	c, err := domain.ParseClock(raw)
	if err != nil {
		return 0, status.Error(codes.InvalidArgument, "time must be HH:MM")
	}
	return c, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

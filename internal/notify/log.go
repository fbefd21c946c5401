package notify

import (
	"context"
	"log/slog"

	"salonbook/backend/internal/domain"
)

// LogNotifier records events in the service log when no broker is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With(slog.String("component", "notify.log"))}
}

func (n *LogNotifier) Notify(ctx context.Context, ev domain.AppointmentEvent) error {
	attrs := []any{
		slog.String("type", string(ev.Type)),
		slog.String("appointment_id", ev.Appointment.ID.String()),
		slog.String("staff_id", ev.Appointment.StaffID.String()),
		slog.String("date", ev.Appointment.Date),
		slog.String("start", ev.Appointment.Start.String()),
		slog.String("status", string(ev.Appointment.Status)),
	}
	if ev.Previous != nil {
		attrs = append(attrs, slog.String("previous_status", string(ev.Previous.Status)))
	}
	n.log.InfoContext(ctx, "appointment event", attrs...)
	return nil
}

func (n *LogNotifier) Close() error { return nil }

package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

const (
	slotConstraint    = "appointments_staff_slot_key"
	overlapConstraint = "appointments_staff_no_overlap"
	pkeyConstraint    = "appointments_pkey"

	DefaultLockTimeout = 5 * time.Second
)

type BookingRepo struct {
	reader
	pool        *bun.DB
	lockTimeout time.Duration
}

func NewBookingRepo(db *bun.DB, lockTimeout time.Duration) *BookingRepo {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &BookingRepo{reader: reader{db: db}, pool: db, lockTimeout: lockTimeout}
}

var _ store.BookingStore = (*BookingRepo)(nil)

// reader implements store.ScheduleReader on either the pool or a transaction.
type reader struct {
	db bun.IDB
}

type bookingTx struct {
	reader
	tx bun.Tx
}

func (r *BookingRepo) InStaffTransaction(ctx context.Context, staffID uuid.UUID, fn func(ctx context.Context, tx store.BookingTx) error) error {
	err := r.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := lockStaff(ctx, tx, staffID); err != nil {
			return err
		}
		return fn(ctx, newBookingTx(tx))
	})
	return classify(err)
}

func (r *BookingRepo) InAppointmentTransaction(ctx context.Context, appointmentID uuid.UUID, fn func(ctx context.Context, tx store.BookingTx, appt domain.Appointment) error) error {
	err := r.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		btx := newBookingTx(tx)
		appt, err := btx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		return fn(ctx, btx, appt)
	})
	return classify(err)
}

func (r *BookingRepo) runInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	return r.pool.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		// SET does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", r.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

func newBookingTx(tx bun.Tx) bookingTx {
	return bookingTx{reader: reader{db: tx}, tx: tx}
}

// lockStaff takes the row lock that serializes every booking write for one
// staff member.
func lockStaff(ctx context.Context, tx bun.Tx, staffID uuid.UUID) error {
	var id uuid.UUID
	err := tx.NewSelect().
		Model((*domain.Staff)(nil)).
		Column("id").
		Where("id = ?", staffID).
		For("UPDATE").
		Scan(ctx, &id)
	return err
}

func activeOnly(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Where("is_active")
}

func (r reader) GetSalon(ctx context.Context, salonID uuid.UUID) (domain.Salon, error) {
	var salon domain.Salon
	err := r.db.NewSelect().
		Model(&salon).
		Relation("Breaks", activeOnly).
		Relation("Vacations", activeOnly).
		Where("id = ?", salonID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Salon{}, classify(err)
	}
	return salon, nil
}

func (r reader) GetStaff(ctx context.Context, staffID uuid.UUID) (domain.Staff, error) {
	var staff domain.Staff
	err := r.db.NewSelect().
		Model(&staff).
		Relation("Breaks", activeOnly).
		Relation("Vacations", activeOnly).
		Where("id = ?", staffID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Staff{}, classify(err)
	}

	var serviceIDs []uuid.UUID
	err = r.db.NewSelect().
		Model((*domain.StaffService)(nil)).
		Column("service_id").
		Where("staff_id = ?", staffID).
		Scan(ctx, &serviceIDs)
	if err != nil {
		return domain.Staff{}, classify(err)
	}
	staff.ServiceIDs = serviceIDs
	return staff, nil
}

func (r reader) GetService(ctx context.Context, serviceID uuid.UUID) (domain.Service, error) {
	var svc domain.Service
	err := r.db.NewSelect().
		Model(&svc).
		Where("id = ?", serviceID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Service{}, classify(err)
	}
	return svc, nil
}

func (r reader) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Where("id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	return appt, nil
}

func (r reader) ListActiveAppointments(ctx context.Context, staffID uuid.UUID, date time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("staff_id = ?", staffID).
		Where("appointment_date = ?", domain.DateOf(date)).
		Where("status <> ?", domain.StatusCancelled).
		OrderExpr("start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

func (t bookingTx) LockAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := t.tx.NewSelect().
		Model(&appt).
		Where("id = ?", appointmentID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	return appt, nil
}

func (t bookingTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, classify(err)
	}
	return m, nil
}

func (t bookingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := t.tx.NewUpdate().
		Model(&m).
		Column("staff_id", "service_id", "appointment_date", "start_minute", "end_minute",
			"status", "total_price_cents", "cancel_reason", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

// classify maps driver errors onto the store sentinels. Errors it does not
// recognize are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		var netErr net.Error
		if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
			return fmt.Errorf("%w: %w", store.ErrTransient, err)
		}
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case slotConstraint:
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
		case pkeyConstraint:
			return fmt.Errorf("%w: %s", store.ErrDuplicateID, pgErr.ConstraintName)
		}
	case pgerrcode.ExclusionViolation:
		if pgErr.ConstraintName == overlapConstraint {
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
		}
	case pgerrcode.LockNotAvailable, pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected,
		pgerrcode.QueryCanceled, pgerrcode.AdminShutdown, pgerrcode.CrashShutdown, pgerrcode.CannotConnectNow:
		return fmt.Errorf("%w: %s", store.ErrTransient, pgErr.Message)
	}
	if pgerrcode.IsConnectionException(pgErr.Code) {
		return fmt.Errorf("%w: %s", store.ErrTransient, pgErr.Message)
	}
	return err
}

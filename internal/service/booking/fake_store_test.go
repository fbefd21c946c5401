package booking

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

// fakeStore keeps everything in memory. Staff transactions are serialized
// per staff member and inserts enforce the same uniqueness and overlap rules
// as the database constraints.
type fakeStore struct {
	mu       sync.Mutex
	salons   map[uuid.UUID]domain.Salon
	staff    map[uuid.UUID]domain.Staff
	services map[uuid.UUID]domain.Service
	appts    map[uuid.UUID]domain.Appointment

	staffLocks map[uuid.UUID]*sync.Mutex
	apptLock   sync.Mutex

	txCount int
	// txErr, when set, is returned by every transaction instead of running it.
	txErr error
	// insertFn runs before the fake constraint checks.
	insertFn func(appt domain.Appointment) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		salons:     map[uuid.UUID]domain.Salon{},
		staff:      map[uuid.UUID]domain.Staff{},
		services:   map[uuid.UUID]domain.Service{},
		appts:      map[uuid.UUID]domain.Appointment{},
		staffLocks: map[uuid.UUID]*sync.Mutex{},
	}
}

var _ store.BookingStore = (*fakeStore)(nil)

func (f *fakeStore) GetSalon(ctx context.Context, id uuid.UUID) (domain.Salon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.salons[id]
	if !ok {
		return domain.Salon{}, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) GetStaff(ctx context.Context, id uuid.UUID) (domain.Staff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.staff[id]
	if !ok {
		return domain.Staff{}, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) GetService(ctx context.Context, id uuid.UUID) (domain.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.services[id]
	if !ok {
		return domain.Service{}, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) ListActiveAppointments(ctx context.Context, staffID uuid.UUID, date time.Time) ([]domain.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeLocked(staffID, date, nil), nil
}

func (f *fakeStore) activeLocked(staffID uuid.UUID, date time.Time, pending map[uuid.UUID]domain.Appointment) []domain.Appointment {
	merged := map[uuid.UUID]domain.Appointment{}
	for id, a := range f.appts {
		merged[id] = a
	}
	for id, a := range pending {
		merged[id] = a
	}
	var out []domain.Appointment
	for _, a := range merged {
		if a.StaffID == staffID && domain.SameDate(a.Date, date) && a.Status.Active() {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.Appointment) int { return int(a.Start) - int(b.Start) })
	return out
}

func (f *fakeStore) staffLock(id uuid.UUID) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.staffLocks[id]
	if !ok {
		l = &sync.Mutex{}
		f.staffLocks[id] = l
	}
	return l
}

func (f *fakeStore) InStaffTransaction(ctx context.Context, staffID uuid.UUID, fn func(ctx context.Context, tx store.BookingTx) error) error {
	f.mu.Lock()
	f.txCount++
	txErr := f.txErr
	_, exists := f.staff[staffID]
	f.mu.Unlock()
	if txErr != nil {
		return txErr
	}
	if !exists {
		return store.ErrNotFound
	}

	l := f.staffLock(staffID)
	l.Lock()
	defer l.Unlock()

	tx := &fakeTx{fakeStore: f, pending: map[uuid.UUID]domain.Appointment{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (f *fakeStore) InAppointmentTransaction(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx store.BookingTx, appt domain.Appointment) error) error {
	f.mu.Lock()
	f.txCount++
	txErr := f.txErr
	f.mu.Unlock()
	if txErr != nil {
		return txErr
	}

	f.apptLock.Lock()
	defer f.apptLock.Unlock()

	tx := &fakeTx{fakeStore: f, pending: map[uuid.UUID]domain.Appointment{}}
	appt, err := tx.LockAppointment(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx, appt); err != nil {
		return err
	}
	return tx.commit()
}

func (f *fakeStore) addAppointment(a domain.Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appts[a.ID] = a
}

func (f *fakeStore) transactions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txCount
}

type fakeTx struct {
	*fakeStore
	pending map[uuid.UUID]domain.Appointment
}

func (t *fakeTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	t.mu.Lock()
	a, ok := t.pending[id]
	t.mu.Unlock()
	if ok {
		return a, nil
	}
	return t.fakeStore.GetAppointment(ctx, id)
}

func (t *fakeTx) ListActiveAppointments(ctx context.Context, staffID uuid.UUID, date time.Time) ([]domain.Appointment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked(staffID, date, t.pending), nil
}

func (t *fakeTx) LockAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return t.GetAppointment(ctx, id)
}

func (t *fakeTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if t.insertFn != nil {
		if err := t.insertFn(appt); err != nil {
			return domain.Appointment{}, err
		}
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	now := time.Now().UTC()
	appt.CreatedAt, appt.UpdatedAt = now, now
	if err := t.checkConstraints(appt); err != nil {
		return domain.Appointment{}, err
	}
	t.mu.Lock()
	t.pending[appt.ID] = appt
	t.mu.Unlock()
	return appt, nil
}

func (t *fakeTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if _, err := t.GetAppointment(ctx, appt.ID); err != nil {
		return domain.Appointment{}, err
	}
	appt.UpdatedAt = time.Now().UTC()
	if err := t.checkConstraints(appt); err != nil {
		return domain.Appointment{}, err
	}
	t.mu.Lock()
	t.pending[appt.ID] = appt
	t.mu.Unlock()
	return appt, nil
}

func (t *fakeTx) checkConstraints(appt domain.Appointment) error {
	if !appt.Status.Active() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, other := range t.activeLocked(appt.StaffID, appt.Date, t.pending) {
		if other.ID == appt.ID {
			continue
		}
		if other.Start == appt.Start || other.Overlaps(appt.Start, appt.End) {
			return store.ErrConflict
		}
	}
	return nil
}

func (t *fakeTx) commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, a := range t.pending {
		t.appts[id] = a
	}
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.AppointmentEvent
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, ev domain.AppointmentEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) types() []domain.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.EventType, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	listed   []int
}

func (m *recordingMetrics) ObserveBooking(op, outcome string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string]int{}
	}
	m.outcomes[op+"/"+outcome]++
}

func (m *recordingMetrics) ObserveSlotsListed(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listed = append(m.listed, count)
}

func (m *recordingMetrics) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[key]
}

var errNotifierDown = errors.New("broker unavailable")

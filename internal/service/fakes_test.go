package service

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/notify"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

// fakeClinic is an in-memory DoctorStore and AppointmentStore.  RunInTx
// serializes transactions the way the doctor row lock does and restores
// the appointment table when fn fails.  InsertAppointment enforces the
// active slot index.
type fakeClinic struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users         map[uint64]string
	doctors       map[uint64]model.Doctor
	appointments  map[uint64]model.Appointment
	prescriptions []model.Prescription
	nextID        uint64

	// blindSlotCheck makes SlotTaken always answer false so that only the
	// index can reject a duplicate.
	blindSlotCheck bool

	// schedules backs the transaction's schedule and leave reads.
	schedules *fakeSchedules
	txOpen    bool
}

func (f *fakeClinic) inTx() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txOpen
}

func newFakeClinic() *fakeClinic {
	return &fakeClinic{
		users:        map[uint64]string{},
		doctors:      map[uint64]model.Doctor{},
		appointments: map[uint64]model.Appointment{},
	}
}

func (f *fakeClinic) addUser(id uint64, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = name
}

func (f *fakeClinic) addDoctor(d model.Doctor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d.FullName = f.users[d.UserID]
	f.doctors[d.ID] = d
}

// DoctorStore

func (f *fakeClinic) Get(_ context.Context, id uint64) (model.Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.doctors[id]
	if !ok {
		return model.Doctor{}, repository.ErrNotFound
	}
	return d, nil
}

func (f *fakeClinic) GetByUserID(_ context.Context, userID uint64) (model.Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.doctors {
		if d.UserID == userID {
			return d, nil
		}
	}
	return model.Doctor{}, repository.ErrNotFound
}

func (f *fakeClinic) List(_ context.Context, flt repository.DoctorFilter) ([]model.Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Doctor{}
	for _, d := range f.doctors {
		if flt.AvailableOnly && !d.IsAvailable {
			continue
		}
		if flt.Specialization != "" && d.Specialization != flt.Specialization {
			continue
		}
		if q := strings.ToLower(flt.Query); q != "" &&
			!strings.Contains(strings.ToLower(d.FullName+" "+d.Specialization+" "+d.Qualification), q) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (f *fakeClinic) Specializations(context.Context) ([]model.SpecializationCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[string]int{}
	for _, d := range f.doctors {
		counts[d.Specialization]++
	}
	out := []model.SpecializationCount{}
	for _, name := range sortedKeys(counts) {
		out = append(out, model.SpecializationCount{Name: name, Count: counts[name]})
	}
	return out, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeClinic) SetAvailability(_ context.Context, id uint64, available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.doctors[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.IsAvailable = available
	f.doctors[id] = d
	return nil
}

func (f *fakeClinic) UpdateProfile(_ context.Context, id uint64, u repository.DoctorUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.doctors[id]
	if !ok {
		return repository.ErrNotFound
	}
	if u.Specialization != nil {
		d.Specialization = *u.Specialization
	}
	if u.Bio != nil {
		d.Bio = *u.Bio
	}
	if u.RoomNumber != nil {
		d.RoomNumber = *u.RoomNumber
	}
	f.doctors[id] = d
	return nil
}

// AppointmentStore

func (f *fakeClinic) RunInTx(_ context.Context, fn func(repository.AppointmentTx) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	snapshot := maps.Clone(f.appointments)
	rxLen := len(f.prescriptions)
	f.txOpen = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.txOpen = false
		f.mu.Unlock()
	}()

	if err := fn(&fakeTx{f: f}); err != nil {
		f.mu.Lock()
		f.appointments = snapshot
		f.prescriptions = f.prescriptions[:rxLen]
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeClinic) BookedTimes(_ context.Context, doctorID uint64, date model.Date) ([]model.TimeOfDay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.TimeOfDay{}
	for _, a := range f.appointments {
		if a.DoctorID == doctorID && a.Date == date && a.Status != model.StatusCancelled {
			out = append(out, a.Time)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *fakeClinic) GetDetail(_ context.Context, id uint64) (model.AppointmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appointments[id]
	if !ok {
		return model.AppointmentDetail{}, repository.ErrNotFound
	}
	return f.detailLocked(a), nil
}

func (f *fakeClinic) detailLocked(a model.Appointment) model.AppointmentDetail {
	doc := f.doctors[a.DoctorID]
	d := model.AppointmentDetail{
		Appointment:    a,
		PatientName:    f.users[a.PatientID],
		DoctorName:     doc.FullName,
		DoctorUserID:   doc.UserID,
		Specialization: doc.Specialization,
		RoomNumber:     doc.RoomNumber,
	}
	if a.Status == model.StatusCancelled {
		c := &model.Cancellation{Reason: a.CancellationReason, CancelledAt: a.CancelledAt}
		if a.CancelledBy != nil {
			c.CancelledBy = *a.CancelledBy
			c.CancelledByName = f.users[*a.CancelledBy]
		}
		d.Cancellation = c
	}
	for i := len(f.prescriptions) - 1; i >= 0; i-- {
		if p := f.prescriptions[i]; p.AppointmentID == a.ID {
			d.LatestPrescription = &p
			break
		}
	}
	return d
}

func (f *fakeClinic) ListDetails(_ context.Context, flt repository.AppointmentFilter) ([]model.AppointmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []model.Appointment
	for _, a := range f.appointments {
		switch {
		case flt.PatientID != 0 && a.PatientID != flt.PatientID,
			flt.DoctorID != 0 && a.DoctorID != flt.DoctorID,
			flt.OnDate != nil && a.Date != *flt.OnDate,
			flt.FromDate != nil && a.Date.Before(*flt.FromDate),
			flt.Status != "" && a.Status != flt.Status,
			flt.ExcludeCancelled && a.Status == model.StatusCancelled:
			continue
		}
		rows = append(rows, a)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		less := a.Date.Before(b.Date) || (a.Date == b.Date && (a.Time < b.Time || (a.Time == b.Time && a.ID < b.ID)))
		if flt.Ascending {
			return less
		}
		return !less && a.ID != b.ID
	})
	if flt.Offset > 0 {
		if flt.Offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[flt.Offset:]
		}
	}
	if flt.Limit > 0 && len(rows) > flt.Limit {
		rows = rows[:flt.Limit]
	}
	out := []model.AppointmentDetail{}
	for _, a := range rows {
		out = append(out, f.detailLocked(a))
	}
	return out, nil
}

type fakeTx struct{ f *fakeClinic }

func (t *fakeTx) LockDoctor(ctx context.Context, doctorID uint64) (model.Doctor, error) {
	return t.f.Get(ctx, doctorID)
}

func (t *fakeTx) ActiveForDay(_ context.Context, doctorID uint64, day model.Weekday) ([]model.DoctorSchedule, error) {
	return t.f.schedules.activeForDay(doctorID, day), nil
}

func (t *fakeTx) LeavesCovering(_ context.Context, doctorID uint64, date model.Date) ([]model.DoctorLeave, error) {
	return t.f.schedules.leavesCovering(doctorID, date), nil
}

func (t *fakeTx) SlotTaken(ctx context.Context, doctorID uint64, date model.Date, at model.TimeOfDay) (bool, error) {
	if t.f.blindSlotCheck {
		return false, nil
	}
	booked, _ := t.f.BookedTimes(ctx, doctorID, date)
	for _, b := range booked {
		if b == at {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	for _, x := range t.f.appointments {
		if x.DoctorID == a.DoctorID && x.Date == a.Date && x.Time == a.Time && x.Status != model.StatusCancelled {
			return repository.ErrSlotTaken
		}
	}
	t.f.nextID++
	a.ID = t.f.nextID
	t.f.appointments[a.ID] = *a
	return nil
}

func (t *fakeTx) LockAppointment(_ context.Context, id uint64) (repository.LockedAppointment, error) {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	a, ok := t.f.appointments[id]
	if !ok {
		return repository.LockedAppointment{}, repository.ErrNotFound
	}
	return repository.LockedAppointment{Appointment: a, DoctorUserID: t.f.doctors[a.DoctorID].UserID}, nil
}

func (t *fakeTx) SaveStatus(_ context.Context, a model.Appointment) error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	cur, ok := t.f.appointments[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if a.Status != model.StatusCancelled && cur.Status == model.StatusCancelled {
		for _, x := range t.f.appointments {
			if x.ID != a.ID && x.DoctorID == a.DoctorID && x.Date == a.Date && x.Time == a.Time && x.Status != model.StatusCancelled {
				return repository.ErrSlotTaken
			}
		}
	}
	cur.Status = a.Status
	cur.UpdatedAt = a.UpdatedAt
	if a.Status == model.StatusCancelled {
		if cur.CancelledBy == nil {
			cur.CancelledBy = a.CancelledBy
		}
		if cur.CancelledAt == nil {
			cur.CancelledAt = a.CancelledAt
		}
		if cur.CancellationReason == "" {
			cur.CancellationReason = a.CancellationReason
		}
	}
	t.f.appointments[a.ID] = cur
	return nil
}

func (t *fakeTx) InsertPrescription(_ context.Context, p *model.Prescription) error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	t.f.nextID++
	p.ID = t.f.nextID
	t.f.prescriptions = append(t.f.prescriptions, *p)
	return nil
}

// errPoolExhausted is what a one-connection pool would do to a read issued
// outside the transaction that holds the connection.
var errPoolExhausted = errors.New("connection pool exhausted")

// fakeSchedules is an in-memory ScheduleStore.  With singleConn set, reads
// through the store fail while singleConn has a transaction open.
type fakeSchedules struct {
	mu         sync.Mutex
	schedules  map[uint64]model.DoctorSchedule
	leaves     map[uint64]model.DoctorLeave
	nextID     uint64
	singleConn *fakeClinic
}

func (s *fakeSchedules) poolBusy() bool {
	return s.singleConn != nil && s.singleConn.inTx()
}

func newFakeSchedules() *fakeSchedules {
	return &fakeSchedules{schedules: map[uint64]model.DoctorSchedule{}, leaves: map[uint64]model.DoctorLeave{}}
}

func (s *fakeSchedules) ActiveForDay(_ context.Context, doctorID uint64, day model.Weekday) ([]model.DoctorSchedule, error) {
	if s.poolBusy() {
		return nil, errPoolExhausted
	}
	return s.activeForDay(doctorID, day), nil
}

func (s *fakeSchedules) activeForDay(doctorID uint64, day model.Weekday) []model.DoctorSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.DoctorSchedule{}
	for _, r := range s.schedules {
		if r.DoctorID == doctorID && r.DayOfWeek == day && r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeSchedules) List(_ context.Context, doctorID uint64, activeOnly bool) ([]model.DoctorSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.DoctorSchedule{}
	for _, r := range s.schedules {
		if r.DoctorID == doctorID && (!activeOnly || r.IsActive) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeSchedules) Get(_ context.Context, id uint64) (model.DoctorSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.schedules[id]
	if !ok {
		return r, repository.ErrNotFound
	}
	return r, nil
}

func (s *fakeSchedules) conflictLocked(r model.DoctorSchedule) bool {
	if !r.IsActive {
		return false
	}
	for _, x := range s.schedules {
		if x.ID != r.ID && x.DoctorID == r.DoctorID && x.DayOfWeek == r.DayOfWeek && x.IsActive {
			return true
		}
	}
	return false
}

func (s *fakeSchedules) Create(_ context.Context, r *model.DoctorSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflictLocked(*r) {
		return repository.ErrConflict
	}
	s.nextID++
	r.ID = s.nextID
	s.schedules[r.ID] = *r
	return nil
}

func (s *fakeSchedules) Update(_ context.Context, r model.DoctorSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[r.ID]; !ok {
		return repository.ErrNotFound
	}
	if s.conflictLocked(r) {
		return repository.ErrConflict
	}
	s.schedules[r.ID] = r
	return nil
}

func (s *fakeSchedules) LeavesCovering(_ context.Context, doctorID uint64, date model.Date) ([]model.DoctorLeave, error) {
	if s.poolBusy() {
		return nil, errPoolExhausted
	}
	return s.leavesCovering(doctorID, date), nil
}

func (s *fakeSchedules) leavesCovering(doctorID uint64, date model.Date) []model.DoctorLeave {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.DoctorLeave{}
	for _, l := range s.leaves {
		if l.DoctorID == doctorID && l.Covers(date) {
			out = append(out, l)
		}
	}
	return out
}

func (s *fakeSchedules) ListLeaves(_ context.Context, doctorID uint64) ([]model.DoctorLeave, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.DoctorLeave{}
	for _, l := range s.leaves {
		if l.DoctorID == doctorID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (s *fakeSchedules) CreateLeave(_ context.Context, l *model.DoctorLeave) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	l.ID = s.nextID
	s.leaves[l.ID] = *l
	return nil
}

func (s *fakeSchedules) DeleteLeave(_ context.Context, doctorID, leaveID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leaves[leaveID]
	if !ok || l.DoctorID != doctorID {
		return repository.ErrNotFound
	}
	delete(s.leaves, leaveID)
	return nil
}

// fakeReminders is an in-memory ReminderStore.
type fakeReminders struct {
	mu        sync.Mutex
	reminders map[uint64]model.MedicineReminder
	logs      []model.ReminderLog
	nextID    uint64
}

func newFakeReminders() *fakeReminders {
	return &fakeReminders{reminders: map[uint64]model.MedicineReminder{}}
}

func (r *fakeReminders) List(_ context.Context, patientID uint64) ([]model.MedicineReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.MedicineReminder{}
	for _, m := range r.reminders {
		if m.PatientID == patientID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeReminders) ActiveOn(ctx context.Context, patientID uint64, day model.Date) ([]model.MedicineReminder, error) {
	all, _ := r.List(ctx, patientID)
	out := []model.MedicineReminder{}
	for _, m := range all {
		if m.ActiveOn(day) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeReminders) Get(_ context.Context, patientID, id uint64) (model.MedicineReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.reminders[id]
	if !ok || m.PatientID != patientID {
		return model.MedicineReminder{}, repository.ErrNotFound
	}
	return m, nil
}

func (r *fakeReminders) Create(_ context.Context, m *model.MedicineReminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m.ID = r.nextID
	r.reminders[m.ID] = *m
	return nil
}

func (r *fakeReminders) Update(_ context.Context, m model.MedicineReminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.reminders[m.ID]
	if !ok || cur.PatientID != m.PatientID {
		return repository.ErrNotFound
	}
	r.reminders[m.ID] = m
	return nil
}

func (r *fakeReminders) SetActive(_ context.Context, patientID, id uint64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.reminders[id]
	if !ok || m.PatientID != patientID {
		return repository.ErrNotFound
	}
	m.IsActive = active
	r.reminders[id] = m
	return nil
}

func (r *fakeReminders) Delete(_ context.Context, patientID, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.reminders[id]
	if !ok || m.PatientID != patientID {
		return repository.ErrNotFound
	}
	delete(r.reminders, id)
	return nil
}

func (r *fakeReminders) AddLog(_ context.Context, l *model.ReminderLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	l.ID = r.nextID
	r.logs = append(r.logs, *l)
	return nil
}

func (r *fakeReminders) RecentLogs(_ context.Context, reminderID uint64, limit int) ([]model.ReminderLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.ReminderLog{}
	for i := len(r.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.logs[i].ReminderID == reminderID {
			out = append(out, r.logs[i])
		}
	}
	return out, nil
}

// recordingNotifier captures notifications synchronously.
type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, x notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, x)
}

func (n *recordingNotifier) kinds() map[notify.Kind][]uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := map[notify.Kind][]uint64{}
	for _, x := range n.got {
		out[x.Kind] = append(out[x.Kind], x.ToUserID)
	}
	return out
}

// Fixture ids.  2026-03-02 is a Monday.
const (
	drUserID    uint64 = 10
	otherDrUser uint64 = 11
	patientID   uint64 = 20
	otherPatID  uint64 = 21
	adminID     uint64 = 30
	drID        uint64 = 1
	otherDrID   uint64 = 2
)

var (
	monday    = model.Date{Year: 2026, Month: time.March, Day: 2}
	fixedNow  = time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	patient   = model.Identity{UserID: patientID, Role: model.RolePatient}
	other     = model.Identity{UserID: otherPatID, Role: model.RolePatient}
	doctor    = model.Identity{UserID: drUserID, Role: model.RoleDoctor}
	otherDoc  = model.Identity{UserID: otherDrUser, Role: model.RoleDoctor}
	admin     = model.Identity{UserID: adminID, Role: model.RoleAdmin}
	anonymous = model.Identity{}
)

type fixture struct {
	clinic    *fakeClinic
	schedules *fakeSchedules
	notifier  *recordingNotifier
	opts      Options

	resolver     *ScheduleResolver
	availability *Availability
	lifecycle    *Lifecycle
	queries      *Queries
	directory    *Directory
}

// newFixture seeds one doctor who works Mondays 09:00-10:00 and a second
// doctor with no schedule.
func newFixture() *fixture {
	c := newFakeClinic()
	c.addUser(drUserID, "Dr Karimi")
	c.addUser(otherDrUser, "Dr Rahimi")
	c.addUser(patientID, "Sara Ahmadi")
	c.addUser(otherPatID, "Ali Moradi")
	c.addUser(adminID, "Front Desk")
	c.addDoctor(model.Doctor{ID: drID, UserID: drUserID, Specialization: "Cardiology", IsAvailable: true})
	c.addDoctor(model.Doctor{ID: otherDrID, UserID: otherDrUser, Specialization: "Dermatology", IsAvailable: true})

	s := newFakeSchedules()
	_ = s.Create(context.Background(), &model.DoctorSchedule{
		DoctorID:  drID,
		DayOfWeek: model.Weekday(time.Monday),
		StartTime: model.NewTimeOfDay(9, 0),
		EndTime:   model.NewTimeOfDay(10, 0),
		IsActive:  true,
	})

	n := &recordingNotifier{}
	opts := Options{
		Location:             time.UTC,
		SlotMinutes:          30,
		RequireScheduledSlot: true,
		Now:                  func() time.Time { return fixedNow },
	}
	c.schedules = s
	r := NewScheduleResolver(c, s, opts)
	return &fixture{
		clinic:       c,
		schedules:    s,
		notifier:     n,
		opts:         opts,
		resolver:     r,
		availability: NewAvailability(r, c, opts),
		lifecycle:    NewLifecycle(c, n, opts),
		queries:      NewQueries(c, c, opts),
		directory:    NewDirectory(c, s, opts),
	}
}

func (fx *fixture) book(id model.Identity, at string) (model.AppointmentDetail, error) {
	return fx.lifecycle.BookAppointment(context.Background(), id, BookRequest{DoctorID: drID, DateTime: at})
}

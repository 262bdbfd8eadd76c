package service

import (
	"context"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

const (
	DefaultUpcomingLimit = 10
	MaxUpcomingLimit     = 100
	DefaultHistoryLimit  = 20
	MaxHistoryLimit      = 100
)

// HistoryFilter pages through past and present appointments.  An empty
// Status means every status.
type HistoryFilter struct {
	Status string
	Limit  int
	Offset int
}

// Queries serves the role scoped appointment views.  A doctor sees the
// appointments booked with their profile, anyone else sees their own
// bookings as a patient.
type Queries struct {
	appts   AppointmentStore
	doctors DoctorStore
	opts    Options
}

func NewQueries(appts AppointmentStore, doctors DoctorStore, opts Options) *Queries {
	return &Queries{appts: appts, doctors: doctors, opts: opts.withDefaults()}
}

func (q *Queries) scope(ctx context.Context, id model.Identity) (repository.AppointmentFilter, error) {
	if err := requireIdentity(id); err != nil {
		return repository.AppointmentFilter{}, err
	}
	if id.Role == model.RoleDoctor {
		doc, err := q.doctors.GetByUserID(ctx, id.UserID)
		if err != nil {
			return repository.AppointmentFilter{}, storeErr("get doctor profile", "doctor profile not found", err)
		}
		return repository.AppointmentFilter{DoctorID: doc.ID}, nil
	}
	return repository.AppointmentFilter{PatientID: id.UserID}, nil
}

func (q *Queries) list(ctx context.Context, f repository.AppointmentFilter) ([]model.AppointmentDetail, error) {
	rows, err := q.appts.ListDetails(ctx, f)
	if err != nil {
		return nil, Internal("list appointments", err)
	}
	for i := range rows {
		q.opts.stamp(&rows[i])
	}
	return rows, nil
}

// MyAppointments lists every appointment of the caller, newest first.
func (q *Queries) MyAppointments(ctx context.Context, id model.Identity) ([]model.AppointmentDetail, error) {
	f, err := q.scope(ctx, id)
	if err != nil {
		return nil, err
	}
	return q.list(ctx, f)
}

// UpcomingAppointments lists non-cancelled appointments from today on,
// soonest first.  limit is clamped to 1..100, zero means 10.
func (q *Queries) UpcomingAppointments(ctx context.Context, id model.Identity, limit int) ([]model.AppointmentDetail, error) {
	f, err := q.scope(ctx, id)
	if err != nil {
		return nil, err
	}
	today := q.opts.today()
	f.FromDate = &today
	f.ExcludeCancelled = true
	f.Ascending = true
	f.Limit = clamp(limit, DefaultUpcomingLimit, MaxUpcomingLimit)
	return q.list(ctx, f)
}

// AppointmentHistory pages through the caller's appointments, newest
// first, optionally filtered by status.
func (q *Queries) AppointmentHistory(ctx context.Context, id model.Identity, h HistoryFilter) ([]model.AppointmentDetail, error) {
	f, err := q.scope(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.Status != "" {
		s, err := model.ParseStatus(h.Status)
		if err != nil {
			return nil, InvalidArgument(err.Error())
		}
		f.Status = s
	}
	f.Limit = clamp(h.Limit, DefaultHistoryLimit, MaxHistoryLimit)
	if h.Offset > 0 {
		f.Offset = h.Offset
	}
	return q.list(ctx, f)
}

// AppointmentByID returns one appointment to a party of it or an admin.
func (q *Queries) AppointmentByID(ctx context.Context, id model.Identity, appointmentID uint64) (model.AppointmentDetail, error) {
	if err := requireIdentity(id); err != nil {
		return model.AppointmentDetail{}, err
	}
	d, err := q.appts.GetDetail(ctx, appointmentID)
	if err != nil {
		return model.AppointmentDetail{}, storeErr("get appointment", msgAppointmentNotFound, err)
	}
	if !canView(id, d.PatientID, d.DoctorUserID) {
		return model.AppointmentDetail{}, Forbidden("you are not allowed to view this appointment")
	}
	q.opts.stamp(&d)
	return d, nil
}

// DoctorAppointments lists a doctor's book for its owner or an admin.
// With a date the day is returned in time order.
func (q *Queries) DoctorAppointments(ctx context.Context, id model.Identity, doctorID uint64, date *model.Date) ([]model.AppointmentDetail, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	doc, err := q.doctors.Get(ctx, doctorID)
	if err != nil {
		return nil, storeErr("get doctor", msgDoctorNotFound, err)
	}
	if !canManage(id, doc.UserID) {
		return nil, Forbidden("only the doctor or an admin can view these appointments")
	}
	f := repository.AppointmentFilter{DoctorID: doc.ID}
	if date != nil {
		f.OnDate = date
		f.Ascending = true
	}
	return q.list(ctx, f)
}

func clamp(v, def, max int) int {
	switch {
	case v <= 0:
		return def
	case v > max:
		return max
	}
	return v
}

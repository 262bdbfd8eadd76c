package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

// DoctorStore is the doctor directory persistence used by the services.
type DoctorStore interface {
	Get(ctx context.Context, id uint64) (model.Doctor, error)
	GetByUserID(ctx context.Context, userID uint64) (model.Doctor, error)
	List(ctx context.Context, f repository.DoctorFilter) ([]model.Doctor, error)
	Specializations(ctx context.Context) ([]model.SpecializationCount, error)
	SetAvailability(ctx context.Context, id uint64, available bool) error
	UpdateProfile(ctx context.Context, id uint64, u repository.DoctorUpdate) error
}

// ScheduleStore holds weekly schedules and leave periods.
type ScheduleStore interface {
	ActiveForDay(ctx context.Context, doctorID uint64, day model.Weekday) ([]model.DoctorSchedule, error)
	List(ctx context.Context, doctorID uint64, activeOnly bool) ([]model.DoctorSchedule, error)
	Get(ctx context.Context, id uint64) (model.DoctorSchedule, error)
	Create(ctx context.Context, s *model.DoctorSchedule) error
	Update(ctx context.Context, s model.DoctorSchedule) error
	LeavesCovering(ctx context.Context, doctorID uint64, date model.Date) ([]model.DoctorLeave, error)
	ListLeaves(ctx context.Context, doctorID uint64) ([]model.DoctorLeave, error)
	CreateLeave(ctx context.Context, l *model.DoctorLeave) error
	DeleteLeave(ctx context.Context, doctorID, leaveID uint64) error
}

// AppointmentStore reads appointment projections and runs the
// transactional write path.
type AppointmentStore interface {
	RunInTx(ctx context.Context, fn func(repository.AppointmentTx) error) error
	BookedTimes(ctx context.Context, doctorID uint64, date model.Date) ([]model.TimeOfDay, error)
	GetDetail(ctx context.Context, id uint64) (model.AppointmentDetail, error)
	ListDetails(ctx context.Context, f repository.AppointmentFilter) ([]model.AppointmentDetail, error)
}

// ReminderStore holds medicine reminders scoped by patient.
type ReminderStore interface {
	List(ctx context.Context, patientID uint64) ([]model.MedicineReminder, error)
	ActiveOn(ctx context.Context, patientID uint64, day model.Date) ([]model.MedicineReminder, error)
	Get(ctx context.Context, patientID, id uint64) (model.MedicineReminder, error)
	Create(ctx context.Context, m *model.MedicineReminder) error
	Update(ctx context.Context, m model.MedicineReminder) error
	SetActive(ctx context.Context, patientID, id uint64, active bool) error
	Delete(ctx context.Context, patientID, id uint64) error
	AddLog(ctx context.Context, l *model.ReminderLog) error
	RecentLogs(ctx context.Context, reminderID uint64, limit int) ([]model.ReminderLog, error)
}

// Options carries the clinic policy shared by every service.
type Options struct {
	// Location is the clinic timezone.  Dates and times of day are
	// interpreted in it.
	Location *time.Location
	// SlotMinutes is the appointment granularity.
	SlotMinutes int
	// RequireScheduledSlot rejects bookings whose time is not the start
	// of a generated slot.
	RequireScheduledSlot bool
	// Now is the clock; tests replace it.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.SlotMinutes <= 0 {
		o.SlotMinutes = model.DefaultSlotMinutes
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) now() time.Time { return o.Now().In(o.Location) }

func (o Options) today() model.Date { return model.DateOf(o.now()) }

// stamp fills the RFC3339 date_time of d in the clinic timezone.
func (o Options) stamp(d *model.AppointmentDetail) {
	d.DateTime = d.Date.At(d.Time, o.Location).Format(time.RFC3339)
}

// storeErr maps repository sentinels onto service kinds.  notFound is the
// message used for ErrNotFound.
func storeErr(op, notFound string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return NotFound(notFound)
	case errors.Is(err, repository.ErrForbidden):
		return Forbidden("you are not allowed to access this resource")
	case errors.Is(err, repository.ErrSlotTaken):
		return Conflict(msgSlotTaken)
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return Internal(op, err)
}

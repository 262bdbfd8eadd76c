package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

// ScheduleInput is a weekly rule as submitted by a doctor.  A nil
// IsActive keeps the current value on update and means true on create.
type ScheduleInput struct {
	DayOfWeek model.Weekday
	StartTime model.TimeOfDay
	EndTime   model.TimeOfDay
	IsActive  *bool
}

// LeaveInput is a closed date interval of absence.
type LeaveInput struct {
	StartDate model.Date
	EndDate   model.Date
	Reason    string
}

// Directory serves the public doctor listing and the schedule and leave
// administration a doctor performs on their own profile.
type Directory struct {
	doctors   DoctorStore
	schedules ScheduleStore
	opts      Options
}

func NewDirectory(doctors DoctorStore, schedules ScheduleStore, opts Options) *Directory {
	return &Directory{doctors: doctors, schedules: schedules, opts: opts.withDefaults()}
}

func (d *Directory) ListDoctors(ctx context.Context) ([]model.Doctor, error) {
	return d.SearchDoctors(ctx, repository.DoctorFilter{})
}

func (d *Directory) AvailableDoctors(ctx context.Context) ([]model.Doctor, error) {
	return d.SearchDoctors(ctx, repository.DoctorFilter{AvailableOnly: true})
}

// SearchDoctors matches f.Query against name, specialization and
// qualification.
func (d *Directory) SearchDoctors(ctx context.Context, f repository.DoctorFilter) ([]model.Doctor, error) {
	f.Query = strings.TrimSpace(f.Query)
	f.Specialization = strings.TrimSpace(f.Specialization)
	out, err := d.doctors.List(ctx, f)
	if err != nil {
		return nil, Internal("list doctors", err)
	}
	return out, nil
}

func (d *Directory) Specializations(ctx context.Context) ([]model.SpecializationCount, error) {
	out, err := d.doctors.Specializations(ctx)
	if err != nil {
		return nil, Internal("list specializations", err)
	}
	return out, nil
}

// GetDoctor returns the profile with its active weekly schedule.
func (d *Directory) GetDoctor(ctx context.Context, id uint64) (model.DoctorProfile, error) {
	doc, err := d.doctors.Get(ctx, id)
	if err != nil {
		return model.DoctorProfile{}, storeErr("get doctor", msgDoctorNotFound, err)
	}
	sched, err := d.activeSchedule(ctx, id)
	if err != nil {
		return model.DoctorProfile{}, err
	}
	return model.DoctorProfile{Doctor: doc, Schedule: sched}, nil
}

// DoctorSchedule lists the active rules Monday first.
func (d *Directory) DoctorSchedule(ctx context.Context, id uint64) ([]model.DoctorSchedule, error) {
	if _, err := d.doctors.Get(ctx, id); err != nil {
		return nil, storeErr("get doctor", msgDoctorNotFound, err)
	}
	return d.activeSchedule(ctx, id)
}

func (d *Directory) activeSchedule(ctx context.Context, id uint64) ([]model.DoctorSchedule, error) {
	rows, err := d.schedules.List(ctx, id, true)
	if err != nil {
		return nil, Internal("list schedule", err)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].DayOfWeek.DisplayIndex(), rows[j].DayOfWeek.DisplayIndex()
		if a != b {
			return a < b
		}
		return rows[i].StartTime < rows[j].StartTime
	})
	return rows, nil
}

// owned loads the doctor and checks that id may administer it.
func (d *Directory) owned(ctx context.Context, id model.Identity, doctorID uint64) (model.Doctor, error) {
	if err := requireIdentity(id); err != nil {
		return model.Doctor{}, err
	}
	doc, err := d.doctors.Get(ctx, doctorID)
	if err != nil {
		return model.Doctor{}, storeErr("get doctor", msgDoctorNotFound, err)
	}
	if !canManage(id, doc.UserID) {
		return model.Doctor{}, Forbidden("only the doctor or an admin can manage this profile")
	}
	return doc, nil
}

// SetAvailability flips the global booking switch of a doctor.
func (d *Directory) SetAvailability(ctx context.Context, id model.Identity, doctorID uint64, available bool) (model.Doctor, error) {
	doc, err := d.owned(ctx, id, doctorID)
	if err != nil {
		return model.Doctor{}, err
	}
	if err := d.doctors.SetAvailability(ctx, doc.ID, available); err != nil {
		return model.Doctor{}, storeErr("set availability", msgDoctorNotFound, err)
	}
	doc.IsAvailable = available
	return doc, nil
}

// UpdateProfile applies the non-nil fields of u.
func (d *Directory) UpdateProfile(ctx context.Context, id model.Identity, doctorID uint64, u repository.DoctorUpdate) (model.Doctor, error) {
	if u.ExperienceYears != nil && *u.ExperienceYears < 0 {
		return model.Doctor{}, InvalidArgument("experience_years must not be negative")
	}
	if u.ConsultationFee != nil && *u.ConsultationFee < 0 {
		return model.Doctor{}, InvalidArgument("consultation_fee must not be negative")
	}
	if u.Specialization != nil && strings.TrimSpace(*u.Specialization) == "" {
		return model.Doctor{}, InvalidArgument("specialization must not be empty")
	}
	doc, err := d.owned(ctx, id, doctorID)
	if err != nil {
		return model.Doctor{}, err
	}
	if err := d.doctors.UpdateProfile(ctx, doc.ID, u); err != nil {
		return model.Doctor{}, storeErr("update doctor", msgDoctorNotFound, err)
	}
	updated, err := d.doctors.Get(ctx, doc.ID)
	if err != nil {
		return model.Doctor{}, storeErr("get doctor", msgDoctorNotFound, err)
	}
	return updated, nil
}

func validateWindow(start, end model.TimeOfDay) error {
	if start >= end {
		return InvalidArgument("start_time must be before end_time")
	}
	if end.Minutes() > 24*60 {
		return InvalidArgument("end_time must be within the day")
	}
	return nil
}

func scheduleErr(op string, err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return Conflict("an active schedule already exists for this day")
	}
	return storeErr(op, "schedule not found", err)
}

// CreateSchedule adds a weekly rule.  Only one active rule per weekday
// is allowed.
func (d *Directory) CreateSchedule(ctx context.Context, id model.Identity, doctorID uint64, in ScheduleInput) (model.DoctorSchedule, error) {
	if err := validateWindow(in.StartTime, in.EndTime); err != nil {
		return model.DoctorSchedule{}, err
	}
	doc, err := d.owned(ctx, id, doctorID)
	if err != nil {
		return model.DoctorSchedule{}, err
	}
	now := d.opts.now()
	s := model.DoctorSchedule{
		DoctorID:  doc.ID,
		DayOfWeek: in.DayOfWeek,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		IsActive:  in.IsActive == nil || *in.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.schedules.Create(ctx, &s); err != nil {
		return model.DoctorSchedule{}, scheduleErr("create schedule", err)
	}
	return s, nil
}

// UpdateSchedule rewrites a rule of the doctor.
func (d *Directory) UpdateSchedule(ctx context.Context, id model.Identity, doctorID, scheduleID uint64, in ScheduleInput) (model.DoctorSchedule, error) {
	if err := validateWindow(in.StartTime, in.EndTime); err != nil {
		return model.DoctorSchedule{}, err
	}
	doc, err := d.owned(ctx, id, doctorID)
	if err != nil {
		return model.DoctorSchedule{}, err
	}
	s, err := d.schedules.Get(ctx, scheduleID)
	if err != nil || s.DoctorID != doc.ID {
		if err == nil {
			err = repository.ErrNotFound
		}
		return model.DoctorSchedule{}, scheduleErr("get schedule", err)
	}
	s.DayOfWeek = in.DayOfWeek
	s.StartTime = in.StartTime
	s.EndTime = in.EndTime
	if in.IsActive != nil {
		s.IsActive = *in.IsActive
	}
	s.UpdatedAt = d.opts.now()
	if err := d.schedules.Update(ctx, s); err != nil {
		return model.DoctorSchedule{}, scheduleErr("update schedule", err)
	}
	return s, nil
}

func (d *Directory) ListLeaves(ctx context.Context, id model.Identity, doctorID uint64) ([]model.DoctorLeave, error) {
	doc, err := d.owned(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}
	out, err := d.schedules.ListLeaves(ctx, doc.ID)
	if err != nil {
		return nil, Internal("list leaves", err)
	}
	return out, nil
}

// CreateLeave records an absence.  Slots inside it disappear from
// availability; appointments already booked are kept.
func (d *Directory) CreateLeave(ctx context.Context, id model.Identity, doctorID uint64, in LeaveInput) (model.DoctorLeave, error) {
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return model.DoctorLeave{}, InvalidArgument("start_date and end_date are required")
	}
	if in.EndDate.Before(in.StartDate) {
		return model.DoctorLeave{}, InvalidArgument("end_date must not be before start_date")
	}
	doc, err := d.owned(ctx, id, doctorID)
	if err != nil {
		return model.DoctorLeave{}, err
	}
	l := model.DoctorLeave{
		DoctorID:  doc.ID,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Reason:    strings.TrimSpace(in.Reason),
		CreatedAt: d.opts.now(),
	}
	if err := d.schedules.CreateLeave(ctx, &l); err != nil {
		return model.DoctorLeave{}, Internal("create leave", err)
	}
	return l, nil
}

func (d *Directory) DeleteLeave(ctx context.Context, id model.Identity, doctorID, leaveID uint64) error {
	doc, err := d.owned(ctx, id, doctorID)
	if err != nil {
		return err
	}
	if err := d.schedules.DeleteLeave(ctx, doc.ID, leaveID); err != nil {
		return storeErr("delete leave", "leave not found", err)
	}
	return nil
}

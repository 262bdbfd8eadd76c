package service

import (
	"context"
	"strings"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

const reminderLogLimit = 20

// ReminderInput is the editable part of a medicine reminder.  Times are
// HH:MM strings in the clinic timezone.  A nil StartDate means today.
type ReminderInput struct {
	MedicineName    string
	Dosage          string
	Frequency       string
	CustomFrequency string
	Times           []string
	StartDate       *model.Date
	EndDate         *model.Date
	Notes           string
}

// IntakeInput records one dose.  ScheduledTime is ISO-8601.
type IntakeInput struct {
	ScheduledTime string
	Status        string
	Notes         string
}

// Reminders manages the caller's own medicine reminders.  A reminder of
// another patient is reported as not found.
type Reminders struct {
	store ReminderStore
	opts  Options
}

func NewReminders(store ReminderStore, opts Options) *Reminders {
	return &Reminders{store: store, opts: opts.withDefaults()}
}

const msgReminderNotFound = "reminder not found"

func (r *Reminders) List(ctx context.Context, id model.Identity) ([]model.MedicineReminder, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	out, err := r.store.List(ctx, id.UserID)
	if err != nil {
		return nil, Internal("list reminders", err)
	}
	return out, nil
}

// Active lists reminders that fire today.
func (r *Reminders) Active(ctx context.Context, id model.Identity) ([]model.MedicineReminder, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	out, err := r.store.ActiveOn(ctx, id.UserID, r.opts.today())
	if err != nil {
		return nil, Internal("list active reminders", err)
	}
	return out, nil
}

// Get returns a reminder with its most recent intake logs.
func (r *Reminders) Get(ctx context.Context, id model.Identity, reminderID uint64) (model.MedicineReminder, error) {
	if err := requireIdentity(id); err != nil {
		return model.MedicineReminder{}, err
	}
	m, err := r.store.Get(ctx, id.UserID, reminderID)
	if err != nil {
		return model.MedicineReminder{}, storeErr("get reminder", msgReminderNotFound, err)
	}
	logs, err := r.store.RecentLogs(ctx, m.ID, reminderLogLimit)
	if err != nil {
		return model.MedicineReminder{}, Internal("list reminder logs", err)
	}
	m.Logs = logs
	return m, nil
}

func (r *Reminders) apply(m *model.MedicineReminder, in ReminderInput) error {
	m.MedicineName = strings.TrimSpace(in.MedicineName)
	m.Dosage = strings.TrimSpace(in.Dosage)
	m.Frequency = strings.TrimSpace(in.Frequency)
	m.CustomFrequency = strings.TrimSpace(in.CustomFrequency)
	m.Notes = strings.TrimSpace(in.Notes)
	switch {
	case m.MedicineName == "":
		return InvalidArgument("medicine_name is required")
	case m.Dosage == "":
		return InvalidArgument("dosage is required")
	case m.Frequency == "":
		return InvalidArgument("frequency is required")
	}
	times, err := model.ParseTimes(strings.Join(in.Times, ","))
	if err != nil {
		return InvalidArgument(err.Error())
	}
	if len(times) == 0 {
		return InvalidArgument("at least one reminder time is required")
	}
	m.Times = times
	if in.StartDate != nil {
		m.StartDate = *in.StartDate
	} else if m.StartDate.IsZero() {
		m.StartDate = r.opts.today()
	}
	m.EndDate = in.EndDate
	if m.EndDate != nil && m.EndDate.Before(m.StartDate) {
		return InvalidArgument("end_date must not be before start_date")
	}
	return nil
}

func (r *Reminders) Create(ctx context.Context, id model.Identity, in ReminderInput) (model.MedicineReminder, error) {
	if err := requireIdentity(id); err != nil {
		return model.MedicineReminder{}, err
	}
	now := r.opts.now()
	m := model.MedicineReminder{PatientID: id.UserID, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := r.apply(&m, in); err != nil {
		return model.MedicineReminder{}, err
	}
	if err := r.store.Create(ctx, &m); err != nil {
		return model.MedicineReminder{}, Internal("create reminder", err)
	}
	return m, nil
}

func (r *Reminders) Update(ctx context.Context, id model.Identity, reminderID uint64, in ReminderInput) (model.MedicineReminder, error) {
	if err := requireIdentity(id); err != nil {
		return model.MedicineReminder{}, err
	}
	m, err := r.store.Get(ctx, id.UserID, reminderID)
	if err != nil {
		return model.MedicineReminder{}, storeErr("get reminder", msgReminderNotFound, err)
	}
	if err := r.apply(&m, in); err != nil {
		return model.MedicineReminder{}, err
	}
	m.UpdatedAt = r.opts.now()
	if err := r.store.Update(ctx, m); err != nil {
		return model.MedicineReminder{}, storeErr("update reminder", msgReminderNotFound, err)
	}
	return m, nil
}

// Toggle flips the active flag and returns the new value.
func (r *Reminders) Toggle(ctx context.Context, id model.Identity, reminderID uint64) (bool, error) {
	if err := requireIdentity(id); err != nil {
		return false, err
	}
	m, err := r.store.Get(ctx, id.UserID, reminderID)
	if err != nil {
		return false, storeErr("get reminder", msgReminderNotFound, err)
	}
	next := !m.IsActive
	if err := r.store.SetActive(ctx, id.UserID, m.ID, next); err != nil {
		return false, storeErr("toggle reminder", msgReminderNotFound, err)
	}
	return next, nil
}

func (r *Reminders) Delete(ctx context.Context, id model.Identity, reminderID uint64) error {
	if err := requireIdentity(id); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, id.UserID, reminderID); err != nil {
		return storeErr("delete reminder", msgReminderNotFound, err)
	}
	return nil
}

// LogIntake records a dose against one of the caller's reminders.
func (r *Reminders) LogIntake(ctx context.Context, id model.Identity, reminderID uint64, in IntakeInput) (model.ReminderLog, error) {
	if err := requireIdentity(id); err != nil {
		return model.ReminderLog{}, err
	}
	status, err := model.ParseIntakeStatus(in.Status)
	if err != nil {
		return model.ReminderLog{}, InvalidArgument(err.Error())
	}
	scheduled, err := ParseDateTime(in.ScheduledTime, r.opts.Location)
	if err != nil {
		return model.ReminderLog{}, InvalidArgument("scheduled_time must be ISO-8601")
	}
	m, err := r.store.Get(ctx, id.UserID, reminderID)
	if err != nil {
		return model.ReminderLog{}, storeErr("get reminder", msgReminderNotFound, err)
	}
	now := r.opts.now()
	l := model.ReminderLog{
		ReminderID:    m.ID,
		ScheduledTime: scheduled,
		Status:        status,
		TakenAt:       &now,
		Notes:         strings.TrimSpace(in.Notes),
		CreatedAt:     now,
	}
	if err := r.store.AddLog(ctx, &l); err != nil {
		return model.ReminderLog{}, Internal("log intake", err)
	}
	return l, nil
}

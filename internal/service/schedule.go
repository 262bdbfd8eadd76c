package service

import (
	"context"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// ScheduleResolver turns a doctor's weekly schedule and leave periods into
// the candidate slots of one calendar date.
type ScheduleResolver struct {
	doctors   DoctorStore
	schedules ScheduleStore
	opts      Options
}

func NewScheduleResolver(doctors DoctorStore, schedules ScheduleStore, opts Options) *ScheduleResolver {
	return &ScheduleResolver{doctors: doctors, schedules: schedules, opts: opts.withDefaults()}
}

// ResolveDaySlots returns the slots of slotMinutes length a doctor offers
// on date.  A date with no active schedule or inside a leave yields an
// empty list, not an error.
func (r *ScheduleResolver) ResolveDaySlots(ctx context.Context, doctorID uint64, date model.Date, slotMinutes int) ([]model.Slot, error) {
	_, slots, err := r.resolve(ctx, doctorID, date, slotMinutes)
	return slots, err
}

func (r *ScheduleResolver) resolve(ctx context.Context, doctorID uint64, date model.Date, slotMinutes int) (model.Doctor, []model.Slot, error) {
	if slotMinutes <= 0 {
		return model.Doctor{}, nil, InvalidArgument("slot duration must be positive")
	}
	if date.IsZero() {
		return model.Doctor{}, nil, InvalidArgument("date is required")
	}
	doc, err := r.doctors.Get(ctx, doctorID)
	if err != nil {
		return model.Doctor{}, nil, storeErr("get doctor", msgDoctorNotFound, err)
	}
	if date.Before(r.opts.today()) {
		return model.Doctor{}, nil, InvalidArgument("cannot get slots for past dates")
	}
	slots, err := daySlots(ctx, r.schedules, doctorID, date, slotMinutes)
	if err != nil {
		return model.Doctor{}, nil, err
	}
	return doc, slots, nil
}

// scheduleSource is the read side of schedules and leaves.  Both
// ScheduleStore and repository.AppointmentTx satisfy it.
type scheduleSource interface {
	ActiveForDay(ctx context.Context, doctorID uint64, day model.Weekday) ([]model.DoctorSchedule, error)
	LeavesCovering(ctx context.Context, doctorID uint64, date model.Date) ([]model.DoctorLeave, error)
}

// daySlots skips the input checks; callers have already validated them.
func daySlots(ctx context.Context, src scheduleSource, doctorID uint64, date model.Date, slotMinutes int) ([]model.Slot, error) {
	rules, err := src.ActiveForDay(ctx, doctorID, model.Weekday(date.Weekday()))
	if err != nil {
		return nil, Internal("load schedule", err)
	}
	if len(rules) == 0 {
		return []model.Slot{}, nil
	}
	// Older data may hold more than one active row per day.
	rule := rules[0]
	for _, s := range rules[1:] {
		if s.StartTime < rule.StartTime {
			rule = s
		}
	}

	leaves, err := src.LeavesCovering(ctx, doctorID, date)
	if err != nil {
		return nil, Internal("load leaves", err)
	}
	for _, l := range leaves {
		if l.Covers(date) {
			return []model.Slot{}, nil
		}
	}
	return model.GenerateSlots(rule.StartTime, rule.EndTime, slotMinutes), nil
}

// offersSlotAt reports whether at is the start of one of the doctor's
// slots on date, reading the schedule through src.
func offersSlotAt(ctx context.Context, src scheduleSource, doctorID uint64, date model.Date, at model.TimeOfDay, slotMinutes int) (bool, error) {
	slots, err := daySlots(ctx, src, doctorID, date, slotMinutes)
	if err != nil {
		return false, err
	}
	for _, s := range slots {
		if s.Start == at {
			return true, nil
		}
	}
	return false, nil
}

package service

import (
	"context"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// AvailableSlots is a doctor's day annotated with booked slots.
type AvailableSlots struct {
	DoctorID   uint64                   `json:"doctor_id"`
	DoctorName string                   `json:"doctor_name"`
	Date       model.Date               `json:"date"`
	Slots      []model.SlotAvailability `json:"slots"`
}

// Availability answers "which slots can still be booked".  It never
// writes, so repeated calls over unchanged data return equal results.
type Availability struct {
	resolver *ScheduleResolver
	appts    AppointmentStore
	opts     Options
}

func NewAvailability(resolver *ScheduleResolver, appts AppointmentStore, opts Options) *Availability {
	return &Availability{resolver: resolver, appts: appts, opts: opts.withDefaults()}
}

// GetAvailableSlots marks each slot of the day as available unless a
// non-cancelled appointment starts exactly at it.
func (a *Availability) GetAvailableSlots(ctx context.Context, doctorID uint64, date model.Date) (AvailableSlots, error) {
	doc, slots, err := a.resolver.resolve(ctx, doctorID, date, a.opts.SlotMinutes)
	if err != nil {
		return AvailableSlots{}, err
	}
	out := AvailableSlots{
		DoctorID:   doc.ID,
		DoctorName: doc.FullName,
		Date:       date,
		Slots:      make([]model.SlotAvailability, 0, len(slots)),
	}
	if len(slots) == 0 {
		return out, nil
	}

	booked, err := a.appts.BookedTimes(ctx, doctorID, date)
	if err != nil {
		return AvailableSlots{}, Internal("load booked times", err)
	}
	taken := make(map[model.TimeOfDay]struct{}, len(booked))
	for _, t := range booked {
		taken[t] = struct{}{}
	}
	for _, s := range slots {
		_, busy := taken[s.Start]
		out.Slots = append(out.Slots, model.SlotAvailability{
			Time:            s.Start,
			DurationMinutes: s.End.Minutes() - s.Start.Minutes(),
			IsAvailable:     !busy,
		})
	}
	return out, nil
}

package service

import (
	"context"
	"maps"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/notify"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

const (
	msgDoctorNotFound      = "doctor not found"
	msgAppointmentNotFound = "appointment not found"
	msgSlotTaken           = "this time slot is already booked"

	defaultDiagnosis     = "Consultation completed"
	maxCancelReasonRunes = 500
)

// BookRequest is a patient's booking input.  DateTime is ISO-8601; a
// value without an offset is read in the clinic timezone.
type BookRequest struct {
	DoctorID uint64
	DateTime string
	Symptoms string
	Notes    string
}

// PrescriptionInput is what a doctor records when completing a visit.
type PrescriptionInput struct {
	Diagnosis    string
	Notes        string
	FollowUpDate *model.Date
	Medicines    []model.PrescriptionMedicine
}

// Lifecycle owns every write to an appointment: booking, status moves,
// cancellation and completion with a prescription.  Each runs in one
// transaction that locks the rows it checks before writing them.
type Lifecycle struct {
	appts    AppointmentStore
	notifier notify.Notifier
	opts     Options
}

func NewLifecycle(appts AppointmentStore, notifier notify.Notifier, opts Options) *Lifecycle {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Lifecycle{appts: appts, notifier: notifier, opts: opts.withDefaults()}
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDateTime reads an ISO-8601 timestamp.  Values with an offset are
// converted to loc, the rest are interpreted in loc.  Seconds are dropped.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc).Truncate(time.Minute), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.Truncate(time.Minute), nil
		}
	}
	return time.Time{}, Invalidf("invalid date_time %q: use ISO-8601 such as 2026-03-02T09:00:00", s)
}

// BookAppointment reserves a slot for the calling patient.  The doctor
// row is locked for the duration of the checks so two bookings for the
// same doctor cannot interleave.
func (l *Lifecycle) BookAppointment(ctx context.Context, id model.Identity, req BookRequest) (model.AppointmentDetail, error) {
	if err := requireIdentity(id); err != nil {
		return model.AppointmentDetail{}, err
	}
	if id.Role != model.RolePatient {
		return model.AppointmentDetail{}, Forbidden("only patients can book appointments")
	}
	if req.DoctorID == 0 {
		return model.AppointmentDetail{}, InvalidArgument("doctor_id is required")
	}
	at, err := ParseDateTime(req.DateTime, l.opts.Location)
	if err != nil {
		return model.AppointmentDetail{}, err
	}
	if at.Before(l.opts.now()) {
		return model.AppointmentDetail{}, InvalidArgument("cannot book appointments in the past")
	}
	date, tod := model.DateOf(at), model.TimeOfDayOf(at)

	var appt model.Appointment
	err = l.appts.RunInTx(ctx, func(tx repository.AppointmentTx) error {
		doc, err := tx.LockDoctor(ctx, req.DoctorID)
		if err != nil {
			return err
		}
		if !doc.IsAvailable {
			return Conflict("doctor is not available")
		}
		if l.opts.RequireScheduledSlot {
			ok, err := offersSlotAt(ctx, tx, doc.ID, date, tod, l.opts.SlotMinutes)
			if err != nil {
				return err
			}
			if !ok {
				return Conflict("doctor is not available at the requested time")
			}
		}
		taken, err := tx.SlotTaken(ctx, doc.ID, date, tod)
		if err != nil {
			return err
		}
		if taken {
			return Conflict(msgSlotTaken)
		}
		now := l.opts.now()
		appt = model.Appointment{
			PatientID:       id.UserID,
			DoctorID:        doc.ID,
			Date:            date,
			Time:            tod,
			DurationMinutes: l.opts.SlotMinutes,
			Status:          model.StatusPending,
			Symptoms:        strings.TrimSpace(req.Symptoms),
			Notes:           strings.TrimSpace(req.Notes),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return tx.InsertAppointment(ctx, &appt)
	})
	if err != nil {
		return model.AppointmentDetail{}, storeErr("book appointment", msgDoctorNotFound, err)
	}

	d, err := l.detail(ctx, appt.ID)
	if err != nil {
		return model.AppointmentDetail{}, err
	}
	l.notify(ctx, notify.KindBooked, d, nil, d.PatientID, d.DoctorUserID)
	return d, nil
}

// UpdateStatus moves an appointment along the lifecycle.  Only the
// appointment's doctor or an admin may do so.
func (l *Lifecycle) UpdateStatus(ctx context.Context, id model.Identity, appointmentID uint64, status string) (model.AppointmentDetail, error) {
	if err := requireIdentity(id); err != nil {
		return model.AppointmentDetail{}, err
	}
	next, err := model.ParseStatus(status)
	if err != nil {
		return model.AppointmentDetail{}, InvalidArgument(err.Error())
	}

	err = l.appts.RunInTx(ctx, func(tx repository.AppointmentTx) error {
		a, err := tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !canManage(id, a.DoctorUserID) {
			return Forbidden("only the appointment's doctor or an admin can change its status")
		}
		if a.Status.Terminal() {
			return Invalidf("cannot change status of a %s appointment", a.Status)
		}
		if !a.Status.CanTransition(next) {
			return Invalidf("cannot change status from %s to %s", a.Status, next)
		}
		now := l.opts.now()
		a.Status = next
		a.UpdatedAt = now
		if next == model.StatusCancelled {
			by := id.UserID
			a.CancelledBy = &by
			a.CancelledAt = &now
		}
		return tx.SaveStatus(ctx, a.Appointment)
	})
	if err != nil {
		return model.AppointmentDetail{}, storeErr("update appointment status", msgAppointmentNotFound, err)
	}

	d, err := l.detail(ctx, appointmentID)
	if err != nil {
		return model.AppointmentDetail{}, err
	}
	l.notify(ctx, notify.KindStatusChanged, d, nil, d.PatientID)
	return d, nil
}

// Cancel cancels an appointment on behalf of its patient, its doctor or
// an admin.  The slot becomes bookable again once this commits.
func (l *Lifecycle) Cancel(ctx context.Context, id model.Identity, appointmentID uint64, reason string) (model.AppointmentDetail, error) {
	if err := requireIdentity(id); err != nil {
		return model.AppointmentDetail{}, err
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxCancelReasonRunes {
		return model.AppointmentDetail{}, Invalidf("cancellation reason must be at most %d characters", maxCancelReasonRunes)
	}

	err := l.appts.RunInTx(ctx, func(tx repository.AppointmentTx) error {
		a, err := tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !canView(id, a.PatientID, a.DoctorUserID) {
			return Forbidden("you are not allowed to cancel this appointment")
		}
		switch {
		case a.Status == model.StatusCancelled:
			return Conflict("appointment is already cancelled")
		case a.Status.Terminal():
			return Invalidf("cannot cancel a %s appointment", a.Status)
		}
		now := l.opts.now()
		by := id.UserID
		a.Status = model.StatusCancelled
		a.CancellationReason = reason
		a.CancelledBy = &by
		a.CancelledAt = &now
		a.UpdatedAt = now
		return tx.SaveStatus(ctx, a.Appointment)
	})
	if err != nil {
		return model.AppointmentDetail{}, storeErr("cancel appointment", msgAppointmentNotFound, err)
	}

	d, err := l.detail(ctx, appointmentID)
	if err != nil {
		return model.AppointmentDetail{}, err
	}
	l.notify(ctx, notify.KindCancelled, d, map[string]string{notify.KeyReason: reason}, d.PatientID, d.DoctorUserID)
	return d, nil
}

// AttachPrescriptionAndComplete stores the prescription and marks the
// appointment Completed in the same transaction.
func (l *Lifecycle) AttachPrescriptionAndComplete(ctx context.Context, id model.Identity, appointmentID uint64, in PrescriptionInput) (model.Prescription, error) {
	if err := requireIdentity(id); err != nil {
		return model.Prescription{}, err
	}
	diagnosis := strings.TrimSpace(in.Diagnosis)
	if diagnosis == "" {
		diagnosis = defaultDiagnosis
	}
	meds := make([]model.PrescriptionMedicine, 0, len(in.Medicines))
	for i, m := range in.Medicines {
		m.MedicineName = strings.TrimSpace(m.MedicineName)
		if m.MedicineName == "" {
			return model.Prescription{}, Invalidf("medicines[%d]: medicine_name is required", i)
		}
		meds = append(meds, m)
	}

	var p model.Prescription
	err := l.appts.RunInTx(ctx, func(tx repository.AppointmentTx) error {
		a, err := tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !canManage(id, a.DoctorUserID) {
			return Forbidden("only the appointment's doctor or an admin can complete it")
		}
		if a.Status.Terminal() {
			return Invalidf("cannot complete a %s appointment", a.Status)
		}
		now := l.opts.now()
		p = model.Prescription{
			AppointmentID: a.ID,
			Diagnosis:     diagnosis,
			Notes:         strings.TrimSpace(in.Notes),
			FollowUpDate:  in.FollowUpDate,
			Medicines:     meds,
			CreatedAt:     now,
		}
		if err := tx.InsertPrescription(ctx, &p); err != nil {
			return err
		}
		a.Status = model.StatusCompleted
		a.UpdatedAt = now
		return tx.SaveStatus(ctx, a.Appointment)
	})
	if err != nil {
		return model.Prescription{}, storeErr("complete appointment", msgAppointmentNotFound, err)
	}

	if d, err := l.detail(ctx, appointmentID); err == nil {
		l.notify(ctx, notify.KindCompleted, d, map[string]string{notify.KeyDiagnosis: p.Diagnosis}, d.PatientID)
	}
	return p, nil
}

func (l *Lifecycle) detail(ctx context.Context, id uint64) (model.AppointmentDetail, error) {
	d, err := l.appts.GetDetail(ctx, id)
	if err != nil {
		return model.AppointmentDetail{}, storeErr("load appointment", msgAppointmentNotFound, err)
	}
	l.opts.stamp(&d)
	return d, nil
}

func (l *Lifecycle) notify(ctx context.Context, kind notify.Kind, d model.AppointmentDetail, extra map[string]string, to ...uint64) {
	payload := map[string]string{
		notify.KeyDoctorName:  d.DoctorName,
		notify.KeyPatientName: d.PatientName,
		notify.KeyDate:        d.Date.String(),
		notify.KeyTime:        d.Time.String(),
		notify.KeyStatus:      d.Status.String(),
	}
	maps.Copy(payload, extra)
	for _, uid := range to {
		if uid == 0 {
			continue
		}
		l.notifier.Notify(ctx, notify.Notification{
			Kind:          kind,
			ToUserID:      uid,
			AppointmentID: d.ID,
			Payload:       maps.Clone(payload),
		})
	}
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// AppointmentFilter narrows ListDetails.  Zero values mean "no filter".
type AppointmentFilter struct {
	PatientID        uint64
	DoctorID         uint64
	OnDate           *model.Date
	FromDate         *model.Date
	Status           model.Status
	ExcludeCancelled bool
	Ascending        bool
	Limit            int
	Offset           int
}

// LockedAppointment is an appointment row read with FOR UPDATE together
// with the user that owns the booked doctor profile.
type LockedAppointment struct {
	model.Appointment
	DoctorUserID uint64
}

// AppointmentTx is the set of writes that must share one transaction.
// Booking locks the doctor row first so that concurrent bookings for
// the same doctor run one after another; the unique index on
// appointments backs that up.  Schedule and leave reads go through the
// same transaction, so a booking holding the doctor lock never waits on
// a second pooled connection.
type AppointmentTx interface {
	LockDoctor(ctx context.Context, doctorID uint64) (model.Doctor, error)
	ActiveForDay(ctx context.Context, doctorID uint64, day model.Weekday) ([]model.DoctorSchedule, error)
	LeavesCovering(ctx context.Context, doctorID uint64, date model.Date) ([]model.DoctorLeave, error)
	SlotTaken(ctx context.Context, doctorID uint64, date model.Date, at model.TimeOfDay) (bool, error)
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	LockAppointment(ctx context.Context, id uint64) (LockedAppointment, error)
	SaveStatus(ctx context.Context, a model.Appointment) error
	InsertPrescription(ctx context.Context, p *model.Prescription) error
}

// AppointmentRepo reads and writes the `appointments` table and its
// prescriptions.
type AppointmentRepo struct{ db *sql.DB }

func NewAppointmentRepo(db *sql.DB) *AppointmentRepo { return &AppointmentRepo{db: db} }

// RunInTx executes fn with an AppointmentTx bound to a fresh transaction.
func (r *AppointmentRepo) RunInTx(ctx context.Context, fn func(AppointmentTx) error) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&appointmentTx{tx: tx})
	})
}

// BookedTimes returns the start times of non-cancelled appointments for a
// doctor on a date, ascending.
func (r *AppointmentRepo) BookedTimes(ctx context.Context, doctorID uint64, date model.Date) ([]model.TimeOfDay, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT appointment_time FROM appointments
		WHERE doctor_id = ? AND appointment_date = ? AND status <> ?
		ORDER BY appointment_time`,
		doctorID, date, model.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("query booked times: %w", err)
	}
	defer rows.Close()
	out := []model.TimeOfDay{}
	for rows.Next() {
		var t model.TimeOfDay
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan booked time: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const detailSelect = `
	SELECT a.id, a.patient_id, a.doctor_id, a.appointment_date, a.appointment_time,
	       a.duration_minutes, a.status, COALESCE(a.symptoms, ''), COALESCE(a.notes, ''),
	       COALESCE(a.cancellation_reason, ''), a.cancelled_by, a.cancelled_at,
	       a.created_at, a.updated_at,
	       pu.full_name, du.full_name, d.user_id, d.specialization, COALESCE(d.room_number, ''),
	       COALESCE(cu.full_name, ''),
	       p.id, p.diagnosis, p.notes, p.follow_up_date, p.created_at
	FROM appointments a
	JOIN users pu ON pu.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id
	JOIN users du ON du.id = d.user_id
	LEFT JOIN users cu ON cu.id = a.cancelled_by
	LEFT JOIN prescriptions p ON p.id = (
		SELECT p2.id FROM prescriptions p2
		WHERE p2.appointment_id = a.id
		ORDER BY p2.created_at DESC, p2.id DESC
		LIMIT 1)`

// GetDetail returns the full projection of one appointment.
func (r *AppointmentRepo) GetDetail(ctx context.Context, id uint64) (model.AppointmentDetail, error) {
	row := r.db.QueryRowContext(ctx, detailSelect+` WHERE a.id = ?`, id)
	d, err := scanDetail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AppointmentDetail{}, ErrNotFound
	}
	return d, err
}

// ListDetails returns projections matching f.  Ordering is by date then
// time, descending unless f.Ascending.
func (r *AppointmentRepo) ListDetails(ctx context.Context, f AppointmentFilter) ([]model.AppointmentDetail, error) {
	var (
		where []string
		args  []any
	)
	if f.PatientID != 0 {
		where = append(where, "a.patient_id = ?")
		args = append(args, f.PatientID)
	}
	if f.DoctorID != 0 {
		where = append(where, "a.doctor_id = ?")
		args = append(args, f.DoctorID)
	}
	if f.OnDate != nil {
		where = append(where, "a.appointment_date = ?")
		args = append(args, *f.OnDate)
	}
	if f.FromDate != nil {
		where = append(where, "a.appointment_date >= ?")
		args = append(args, *f.FromDate)
	}
	if f.Status != "" {
		where = append(where, "a.status = ?")
		args = append(args, f.Status)
	}
	if f.ExcludeCancelled {
		where = append(where, "a.status <> ?")
		args = append(args, model.StatusCancelled)
	}

	q := detailSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	dir := "DESC"
	if f.Ascending {
		dir = "ASC"
	}
	q += fmt.Sprintf(" ORDER BY a.appointment_date %s, a.appointment_time %s, a.id %s", dir, dir, dir)
	if f.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()
	out := []model.AppointmentDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanDetail(s rowScanner) (model.AppointmentDetail, error) {
	var (
		d             model.AppointmentDetail
		cancelledBy   sql.NullInt64
		cancelledAt   sql.NullTime
		cancelledName string
		rxID          sql.NullInt64
		rxDiagnosis   sql.NullString
		rxNotes       sql.NullString
		rxFollowUp    sql.NullTime
		rxCreated     sql.NullTime
	)
	err := s.Scan(
		&d.ID, &d.PatientID, &d.DoctorID, &d.Date, &d.Time,
		&d.DurationMinutes, &d.Status, &d.Symptoms, &d.Notes,
		&d.CancellationReason, &cancelledBy, &cancelledAt,
		&d.CreatedAt, &d.UpdatedAt,
		&d.PatientName, &d.DoctorName, &d.DoctorUserID, &d.Specialization, &d.RoomNumber,
		&cancelledName,
		&rxID, &rxDiagnosis, &rxNotes, &rxFollowUp, &rxCreated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, err
		}
		return d, fmt.Errorf("scan appointment: %w", err)
	}
	if cancelledBy.Valid {
		by := uint64(cancelledBy.Int64)
		d.CancelledBy = &by
	}
	if cancelledAt.Valid {
		at := cancelledAt.Time
		d.CancelledAt = &at
	}
	if d.Status == model.StatusCancelled {
		c := &model.Cancellation{Reason: d.CancellationReason, CancelledAt: d.CancelledAt, CancelledByName: cancelledName}
		if d.CancelledBy != nil {
			c.CancelledBy = *d.CancelledBy
		}
		d.Cancellation = c
	}
	if rxID.Valid {
		rx := &model.Prescription{
			ID:            uint64(rxID.Int64),
			AppointmentID: d.ID,
			Diagnosis:     rxDiagnosis.String,
			Notes:         rxNotes.String,
			CreatedAt:     rxCreated.Time,
		}
		if rxFollowUp.Valid {
			fu := model.DateOf(rxFollowUp.Time)
			rx.FollowUpDate = &fu
		}
		d.LatestPrescription = rx
	}
	return d, nil
}

// appointmentTx implements AppointmentTx on a *sql.Tx.
type appointmentTx struct{ tx *sql.Tx }

func (t *appointmentTx) LockDoctor(ctx context.Context, doctorID uint64) (model.Doctor, error) {
	var d model.Doctor
	err := t.tx.QueryRowContext(ctx, `
		SELECT d.id, d.user_id, u.full_name, d.specialization, d.is_available
		FROM doctors d JOIN users u ON u.id = d.user_id
		WHERE d.id = ? FOR UPDATE`, doctorID).
		Scan(&d.ID, &d.UserID, &d.FullName, &d.Specialization, &d.IsAvailable)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, fmt.Errorf("lock doctor: %w", err)
	}
	return d, nil
}

func (t *appointmentTx) ActiveForDay(ctx context.Context, doctorID uint64, day model.Weekday) ([]model.DoctorSchedule, error) {
	return activeForDay(ctx, t.tx, doctorID, day)
}

func (t *appointmentTx) LeavesCovering(ctx context.Context, doctorID uint64, date model.Date) ([]model.DoctorLeave, error) {
	return leavesCovering(ctx, t.tx, doctorID, date)
}

func (t *appointmentTx) SlotTaken(ctx context.Context, doctorID uint64, date model.Date, at model.TimeOfDay) (bool, error) {
	var id uint64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM appointments
		WHERE doctor_id = ? AND appointment_date = ? AND appointment_time = ? AND status <> ?
		LIMIT 1 FOR UPDATE`,
		doctorID, date, at, model.StatusCancelled).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return true, nil
}

func (t *appointmentTx) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO appointments
			(patient_id, doctor_id, appointment_date, appointment_time, duration_minutes,
			 status, symptoms, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PatientID, a.DoctorID, a.Date, a.Time, a.DurationMinutes,
		a.Status, nullString(a.Symptoms), nullString(a.Notes), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert appointment id: %w", err)
	}
	a.ID = uint64(id)
	return nil
}

func (t *appointmentTx) LockAppointment(ctx context.Context, id uint64) (LockedAppointment, error) {
	var (
		la          LockedAppointment
		cancelledBy sql.NullInt64
		cancelledAt sql.NullTime
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT a.id, a.patient_id, a.doctor_id, a.appointment_date, a.appointment_time,
		       a.duration_minutes, a.status, COALESCE(a.symptoms, ''), COALESCE(a.notes, ''),
		       COALESCE(a.cancellation_reason, ''), a.cancelled_by, a.cancelled_at,
		       a.created_at, a.updated_at, d.user_id
		FROM appointments a JOIN doctors d ON d.id = a.doctor_id
		WHERE a.id = ? FOR UPDATE`, id).
		Scan(&la.ID, &la.PatientID, &la.DoctorID, &la.Date, &la.Time,
			&la.DurationMinutes, &la.Status, &la.Symptoms, &la.Notes,
			&la.CancellationReason, &cancelledBy, &cancelledAt,
			&la.CreatedAt, &la.UpdatedAt, &la.DoctorUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return la, ErrNotFound
	}
	if err != nil {
		return la, fmt.Errorf("lock appointment: %w", err)
	}
	if cancelledBy.Valid {
		by := uint64(cancelledBy.Int64)
		la.CancelledBy = &by
	}
	if cancelledAt.Valid {
		at := cancelledAt.Time
		la.CancelledAt = &at
	}
	return la, nil
}

// SaveStatus persists the status and, only while it is unset, the
// cancellation bookkeeping.
func (t *appointmentTx) SaveStatus(ctx context.Context, a model.Appointment) error {
	var (
		by     sql.NullInt64
		at     sql.NullTime
		reason sql.NullString
	)
	if a.Status == model.StatusCancelled {
		if a.CancelledBy != nil {
			by = sql.NullInt64{Int64: int64(*a.CancelledBy), Valid: true}
		}
		if a.CancelledAt != nil {
			at = sql.NullTime{Time: *a.CancelledAt, Valid: true}
		}
		reason = nullString(a.CancellationReason)
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE appointments
		SET status = ?,
		    cancelled_by = COALESCE(cancelled_by, ?),
		    cancelled_at = COALESCE(cancelled_at, ?),
		    cancellation_reason = COALESCE(cancellation_reason, ?),
		    updated_at = ?
		WHERE id = ?`,
		a.Status, by, at, reason, a.UpdatedAt, a.ID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("update appointment status: %w", err)
	}
	return nil
}

func (t *appointmentTx) InsertPrescription(ctx context.Context, p *model.Prescription) error {
	var followUp any
	if p.FollowUpDate != nil {
		followUp = *p.FollowUpDate
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO prescriptions (appointment_id, diagnosis, notes, follow_up_date, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.AppointmentID, p.Diagnosis, nullString(p.Notes), followUp, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert prescription id: %w", err)
	}
	p.ID = uint64(id)
	for i := range p.Medicines {
		m := &p.Medicines[i]
		m.PrescriptionID = p.ID
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO prescription_medicines
				(prescription_id, medicine_name, dosage, frequency, duration, instructions)
			VALUES (?, ?, ?, ?, ?, ?)`,
			m.PrescriptionID, m.MedicineName, m.Dosage, m.Frequency,
			nullString(m.Duration), nullString(m.Instructions))
		if err != nil {
			return fmt.Errorf("insert prescription medicine: %w", err)
		}
		mid, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert prescription medicine id: %w", err)
		}
		m.ID = uint64(mid)
	}
	return nil
}

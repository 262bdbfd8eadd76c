package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// ReminderRepo stores medicine reminders and their intake logs.  Every
// method is scoped by patient so one patient can never see or touch
// another's reminders.
type ReminderRepo struct{ db *sql.DB }

func NewReminderRepo(db *sql.DB) *ReminderRepo { return &ReminderRepo{db: db} }

const reminderSelect = `
	SELECT id, patient_id, medicine_name, dosage, frequency, COALESCE(custom_frequency, ''),
	       times, start_date, end_date, COALESCE(notes, ''), is_active, created_at, updated_at
	FROM medicine_reminders`

func scanReminder(s rowScanner) (model.MedicineReminder, error) {
	var (
		m     model.MedicineReminder
		times string
		end   sql.NullTime
	)
	if err := s.Scan(&m.ID, &m.PatientID, &m.MedicineName, &m.Dosage, &m.Frequency, &m.CustomFrequency,
		&times, &m.StartDate, &end, &m.Notes, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return m, err
	}
	ts, err := model.ParseTimes(times)
	if err != nil {
		return m, fmt.Errorf("reminder %d: %w", m.ID, err)
	}
	m.Times = ts
	if end.Valid {
		d := model.DateOf(end.Time)
		m.EndDate = &d
	}
	return m, nil
}

func (r *ReminderRepo) query(ctx context.Context, q string, args ...any) ([]model.MedicineReminder, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()
	out := []model.MedicineReminder{}
	for rows.Next() {
		m, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// List returns all reminders of a patient, newest first.
func (r *ReminderRepo) List(ctx context.Context, patientID uint64) ([]model.MedicineReminder, error) {
	return r.query(ctx, reminderSelect+` WHERE patient_id = ? ORDER BY created_at DESC, id DESC`, patientID)
}

// ActiveOn returns reminders that are switched on and whose window
// includes day.
func (r *ReminderRepo) ActiveOn(ctx context.Context, patientID uint64, day model.Date) ([]model.MedicineReminder, error) {
	return r.query(ctx, reminderSelect+`
		WHERE patient_id = ? AND is_active = 1 AND start_date <= ? AND (end_date IS NULL OR end_date >= ?)
		ORDER BY medicine_name, id`, patientID, day, day)
}

// Get returns one reminder of the patient.
func (r *ReminderRepo) Get(ctx context.Context, patientID, id uint64) (model.MedicineReminder, error) {
	m, err := scanReminder(r.db.QueryRowContext(ctx, reminderSelect+` WHERE id = ? AND patient_id = ?`, id, patientID))
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, fmt.Errorf("get reminder: %w", err)
	}
	return m, nil
}

func endDateArg(d *model.Date) any {
	if d == nil {
		return nil
	}
	return *d
}

// Create inserts m.
func (r *ReminderRepo) Create(ctx context.Context, m *model.MedicineReminder) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO medicine_reminders
			(patient_id, medicine_name, dosage, frequency, custom_frequency, times,
			 start_date, end_date, notes, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.PatientID, m.MedicineName, m.Dosage, m.Frequency, nullString(m.CustomFrequency),
		model.FormatTimes(m.Times), m.StartDate, endDateArg(m.EndDate), nullString(m.Notes),
		m.IsActive, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert reminder id: %w", err)
	}
	m.ID = uint64(id)
	return nil
}

// Update rewrites the editable fields of m.
func (r *ReminderRepo) Update(ctx context.Context, m model.MedicineReminder) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE medicine_reminders
		SET medicine_name = ?, dosage = ?, frequency = ?, custom_frequency = ?, times = ?,
		    start_date = ?, end_date = ?, notes = ?, updated_at = ?
		WHERE id = ? AND patient_id = ?`,
		m.MedicineName, m.Dosage, m.Frequency, nullString(m.CustomFrequency), model.FormatTimes(m.Times),
		m.StartDate, endDateArg(m.EndDate), nullString(m.Notes), m.UpdatedAt, m.ID, m.PatientID)
	if err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	return requireRow(res)
}

// SetActive stores the active flag.
func (r *ReminderRepo) SetActive(ctx context.Context, patientID, id uint64, active bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE medicine_reminders SET is_active = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND patient_id = ?",
		active, id, patientID)
	if err != nil {
		return fmt.Errorf("toggle reminder: %w", err)
	}
	return requireRow(res)
}

// Delete removes a reminder and, through the foreign key, its logs.
func (r *ReminderRepo) Delete(ctx context.Context, patientID, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM medicine_reminders WHERE id = ? AND patient_id = ?", id, patientID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return requireRow(res)
}

// AddLog records an intake.
func (r *ReminderRepo) AddLog(ctx context.Context, l *model.ReminderLog) error {
	var taken any
	if l.TakenAt != nil {
		taken = *l.TakenAt
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO medicine_reminder_logs (reminder_id, scheduled_time, taken_at, status, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ReminderID, l.ScheduledTime, taken, l.Status, nullString(l.Notes), l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reminder log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert reminder log id: %w", err)
	}
	l.ID = uint64(id)
	return nil
}

// RecentLogs returns the latest logs of a reminder.
func (r *ReminderRepo) RecentLogs(ctx context.Context, reminderID uint64, limit int) ([]model.ReminderLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, reminder_id, scheduled_time, taken_at, status, COALESCE(notes, ''), created_at
		FROM medicine_reminder_logs
		WHERE reminder_id = ?
		ORDER BY scheduled_time DESC, id DESC
		LIMIT ?`, reminderID, limit)
	if err != nil {
		return nil, fmt.Errorf("query reminder logs: %w", err)
	}
	defer rows.Close()
	out := []model.ReminderLog{}
	for rows.Next() {
		var (
			l     model.ReminderLog
			taken sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.ReminderID, &l.ScheduledTime, &taken, &l.Status, &l.Notes, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reminder log: %w", err)
		}
		if taken.Valid {
			t := taken.Time
			l.TakenAt = &t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

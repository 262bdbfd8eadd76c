package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// ScheduleRepo manages weekly schedules and leave periods.
type ScheduleRepo struct{ db *sql.DB }

func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

const scheduleSelect = `
	SELECT id, doctor_id, day_of_week, start_time, end_time, is_active, created_at, updated_at
	FROM doctor_schedules`

func scanSchedules(rows *sql.Rows) ([]model.DoctorSchedule, error) {
	defer rows.Close()
	out := []model.DoctorSchedule{}
	for rows.Next() {
		var s model.DoctorSchedule
		if err := rows.Scan(&s.ID, &s.DoctorID, &s.DayOfWeek, &s.StartTime, &s.EndTime,
			&s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ActiveForDay returns the active schedules of a doctor for a weekday,
// earliest first.
func (r *ScheduleRepo) ActiveForDay(ctx context.Context, doctorID uint64, day model.Weekday) ([]model.DoctorSchedule, error) {
	return activeForDay(ctx, r.db, doctorID, day)
}

func activeForDay(ctx context.Context, q queryer, doctorID uint64, day model.Weekday) ([]model.DoctorSchedule, error) {
	rows, err := q.QueryContext(ctx, scheduleSelect+`
		WHERE doctor_id = ? AND day_of_week = ? AND is_active = 1
		ORDER BY start_time`, doctorID, int(day))
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	return scanSchedules(rows)
}

// List returns a doctor's schedules, optionally only the active ones.
func (r *ScheduleRepo) List(ctx context.Context, doctorID uint64, activeOnly bool) ([]model.DoctorSchedule, error) {
	q := scheduleSelect + ` WHERE doctor_id = ?`
	if activeOnly {
		q += ` AND is_active = 1`
	}
	rows, err := r.db.QueryContext(ctx, q+` ORDER BY day_of_week, start_time`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	return scanSchedules(rows)
}

// Get returns a schedule by id.
func (r *ScheduleRepo) Get(ctx context.Context, id uint64) (model.DoctorSchedule, error) {
	var s model.DoctorSchedule
	err := r.db.QueryRowContext(ctx, scheduleSelect+` WHERE id = ?`, id).
		Scan(&s.ID, &s.DoctorID, &s.DayOfWeek, &s.StartTime, &s.EndTime, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, fmt.Errorf("get schedule: %w", err)
	}
	return s, nil
}

// activeExistsTx reports whether another active schedule occupies the same
// weekday.  The doctor row is locked first so two concurrent writers cannot
// both pass the check.
func activeExistsTx(ctx context.Context, tx *sql.Tx, s model.DoctorSchedule) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM doctors WHERE id = ? FOR UPDATE", s.DoctorID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("lock doctor: %w", err)
	}
	var n int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM doctor_schedules
		WHERE doctor_id = ? AND day_of_week = ? AND is_active = 1 AND id <> ?`,
		s.DoctorID, int(s.DayOfWeek), s.ID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count schedules: %w", err)
	}
	return n > 0, nil
}

// Create inserts s.  An active schedule on a weekday that already has one
// yields ErrConflict.
func (r *ScheduleRepo) Create(ctx context.Context, s *model.DoctorSchedule) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if s.IsActive {
			exists, err := activeExistsTx(ctx, tx, *s)
			if err != nil {
				return err
			}
			if exists {
				return ErrConflict
			}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO doctor_schedules (doctor_id, day_of_week, start_time, end_time, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.DoctorID, int(s.DayOfWeek), s.StartTime, s.EndTime, s.IsActive, s.CreatedAt, s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert schedule: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert schedule id: %w", err)
		}
		s.ID = uint64(id)
		return nil
	})
}

// Update rewrites times and the active flag of s.
func (r *ScheduleRepo) Update(ctx context.Context, s model.DoctorSchedule) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if s.IsActive {
			exists, err := activeExistsTx(ctx, tx, s)
			if err != nil {
				return err
			}
			if exists {
				return ErrConflict
			}
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE doctor_schedules
			SET day_of_week = ?, start_time = ?, end_time = ?, is_active = ?, updated_at = ?
			WHERE id = ? AND doctor_id = ?`,
			int(s.DayOfWeek), s.StartTime, s.EndTime, s.IsActive, s.UpdatedAt, s.ID, s.DoctorID)
		if err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		return requireRow(res)
	})
}

const leaveSelect = `SELECT id, doctor_id, start_date, end_date, COALESCE(reason, ''), created_at FROM doctor_leaves`

func scanLeaves(rows *sql.Rows) ([]model.DoctorLeave, error) {
	defer rows.Close()
	out := []model.DoctorLeave{}
	for rows.Next() {
		var l model.DoctorLeave
		if err := rows.Scan(&l.ID, &l.DoctorID, &l.StartDate, &l.EndDate, &l.Reason, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan leave: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LeavesCovering returns the leaves of a doctor that include date.
func (r *ScheduleRepo) LeavesCovering(ctx context.Context, doctorID uint64, date model.Date) ([]model.DoctorLeave, error) {
	return leavesCovering(ctx, r.db, doctorID, date)
}

func leavesCovering(ctx context.Context, q queryer, doctorID uint64, date model.Date) ([]model.DoctorLeave, error) {
	rows, err := q.QueryContext(ctx, leaveSelect+`
		WHERE doctor_id = ? AND start_date <= ? AND end_date >= ?`, doctorID, date, date)
	if err != nil {
		return nil, fmt.Errorf("query leaves: %w", err)
	}
	return scanLeaves(rows)
}

// ListLeaves returns all leaves of a doctor, latest first.
func (r *ScheduleRepo) ListLeaves(ctx context.Context, doctorID uint64) ([]model.DoctorLeave, error) {
	rows, err := r.db.QueryContext(ctx, leaveSelect+`
		WHERE doctor_id = ? ORDER BY start_date DESC, id DESC`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query leaves: %w", err)
	}
	return scanLeaves(rows)
}

// CreateLeave inserts l.
func (r *ScheduleRepo) CreateLeave(ctx context.Context, l *model.DoctorLeave) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO doctor_leaves (doctor_id, start_date, end_date, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		l.DoctorID, l.StartDate, l.EndDate, nullString(l.Reason), l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert leave: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert leave id: %w", err)
	}
	l.ID = uint64(id)
	return nil
}

// DeleteLeave removes a leave owned by doctorID.
func (r *ScheduleRepo) DeleteLeave(ctx context.Context, doctorID, leaveID uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM doctor_leaves WHERE id = ? AND doctor_id = ?", leaveID, doctorID)
	if err != nil {
		return fmt.Errorf("delete leave: %w", err)
	}
	return requireRow(res)
}

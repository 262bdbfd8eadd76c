package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// DoctorFilter narrows List.  Query matches name, specialization and
// qualification; Specialization is an exact match.
type DoctorFilter struct {
	Query          string
	Specialization string
	AvailableOnly  bool
}

// DoctorUpdate carries the editable profile fields.  Nil fields are left
// unchanged.
type DoctorUpdate struct {
	Specialization  *string
	Qualification   *string
	ExperienceYears *int
	ConsultationFee *float64
	RoomNumber      *string
	Bio             *string
}

// DoctorRepo reads and writes the `doctors` table joined with users.
type DoctorRepo struct{ db *sql.DB }

func NewDoctorRepo(db *sql.DB) *DoctorRepo { return &DoctorRepo{db: db} }

const doctorSelect = `
	SELECT d.id, d.user_id, u.full_name, u.email, d.specialization,
	       COALESCE(d.license_number, ''), COALESCE(d.qualification, ''), d.experience_years,
	       d.consultation_fee, COALESCE(d.room_number, ''), COALESCE(d.bio, ''),
	       d.average_rating, d.total_ratings, d.is_available, d.created_at, d.updated_at
	FROM doctors d
	JOIN users u ON u.id = d.user_id`

func scanDoctor(s rowScanner) (model.Doctor, error) {
	var d model.Doctor
	err := s.Scan(&d.ID, &d.UserID, &d.FullName, &d.Email, &d.Specialization,
		&d.LicenseNumber, &d.Qualification, &d.ExperienceYears,
		&d.ConsultationFee, &d.RoomNumber, &d.Bio,
		&d.AverageRating, &d.TotalRatings, &d.IsAvailable, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// Get returns a doctor by profile id.
func (r *DoctorRepo) Get(ctx context.Context, id uint64) (model.Doctor, error) {
	d, err := scanDoctor(r.db.QueryRowContext(ctx, doctorSelect+` WHERE d.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, fmt.Errorf("get doctor: %w", err)
	}
	return d, nil
}

// GetByUserID returns the doctor profile owned by a user.
func (r *DoctorRepo) GetByUserID(ctx context.Context, userID uint64) (model.Doctor, error) {
	d, err := scanDoctor(r.db.QueryRowContext(ctx, doctorSelect+` WHERE d.user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, fmt.Errorf("get doctor by user: %w", err)
	}
	return d, nil
}

// List returns active doctors matching f ordered by name.
func (r *DoctorRepo) List(ctx context.Context, f DoctorFilter) ([]model.Doctor, error) {
	where := []string{"u.is_active = 1"}
	var args []any
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + q + "%"
		where = append(where, "(u.full_name LIKE ? OR d.specialization LIKE ? OR d.qualification LIKE ?)")
		args = append(args, like, like, like)
	}
	if s := strings.TrimSpace(f.Specialization); s != "" {
		where = append(where, "d.specialization = ?")
		args = append(args, s)
	}
	if f.AvailableOnly {
		where = append(where, "d.is_available = 1")
	}
	q := doctorSelect + " WHERE " + strings.Join(where, " AND ") + " ORDER BY u.full_name, d.id"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()
	out := []model.Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Specializations returns each specialization with its doctor count.
func (r *DoctorRepo) Specializations(ctx context.Context) ([]model.SpecializationCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.specialization, COUNT(*)
		FROM doctors d JOIN users u ON u.id = d.user_id
		WHERE u.is_active = 1 AND d.specialization <> ''
		GROUP BY d.specialization
		ORDER BY d.specialization`)
	if err != nil {
		return nil, fmt.Errorf("list specializations: %w", err)
	}
	defer rows.Close()
	out := []model.SpecializationCount{}
	for rows.Next() {
		var sc model.SpecializationCount
		if err := rows.Scan(&sc.Name, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan specialization: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// SetAvailability flips the global availability switch.
func (r *DoctorRepo) SetAvailability(ctx context.Context, id uint64, available bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE doctors SET is_available = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?", available, id)
	if err != nil {
		return fmt.Errorf("set availability: %w", err)
	}
	return requireRow(res)
}

// UpdateProfile applies the non-nil fields of u.
func (r *DoctorRepo) UpdateProfile(ctx context.Context, id uint64, u DoctorUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.Specialization != nil {
		add("specialization", strings.TrimSpace(*u.Specialization))
	}
	if u.Qualification != nil {
		add("qualification", nullString(strings.TrimSpace(*u.Qualification)))
	}
	if u.ExperienceYears != nil {
		add("experience_years", *u.ExperienceYears)
	}
	if u.ConsultationFee != nil {
		add("consultation_fee", *u.ConsultationFee)
	}
	if u.RoomNumber != nil {
		add("room_number", nullString(strings.TrimSpace(*u.RoomNumber)))
	}
	if u.Bio != nil {
		add("bio", nullString(strings.TrimSpace(*u.Bio)))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = UTC_TIMESTAMP()")
	args = append(args, id)
	res, err := r.db.ExecContext(ctx, "UPDATE doctors SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update doctor: %w", err)
	}
	return requireRow(res)
}

// CreateTx inserts a doctor profile inside an existing transaction.  It
// is used by registration so the user and profile appear together.
func (r *DoctorRepo) CreateTx(ctx context.Context, tx *sql.Tx, d *model.Doctor) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO doctors (user_id, specialization, license_number, qualification, experience_years,
		                     consultation_fee, room_number, bio, is_available)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.UserID, d.Specialization, nullString(d.LicenseNumber), nullString(d.Qualification),
		d.ExperienceYears, d.ConsultationFee, nullString(d.RoomNumber), nullString(d.Bio), d.IsAvailable)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert doctor: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert doctor id: %w", err)
	}
	d.ID = uint64(id)
	return nil
}

// requireRow turns a zero-row UPDATE or DELETE into ErrNotFound.  The
// DSN sets clientFoundRows so matched-but-unchanged rows still count.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

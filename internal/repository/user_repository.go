package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/utils"
)

// NewUser is the registration input.  Password is the plain text value;
// it is hashed before it reaches the database.
type NewUser struct {
	Email    string
	Password string
	FullName string
	Phone    string
	Role     model.Role
}

type UserRepo struct {
	DB      *sql.DB
	Doctors *DoctorRepo
}

func NewUserRepo(db *sql.DB, doctors *DoctorRepo) *UserRepo {
	return &UserRepo{DB: db, Doctors: doctors}
}

func insertUserTx(ctx context.Context, tx *sql.Tx, u NewUser, cost int) (uint64, error) {
	hash, err := utils.HashPassword(u.Password, cost)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, full_name, phone, role) VALUES (?,?,?,?,?)",
		strings.ToLower(strings.TrimSpace(u.Email)), hash, strings.TrimSpace(u.FullName), nullString(u.Phone), u.Role)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrEmailExists
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Create inserts a user and returns its ID.  For the Doctor role a
// profile built from profile is inserted in the same transaction.
func (r *UserRepo) Create(ctx context.Context, u NewUser, profile *model.Doctor, cost int) (uint64, error) {
	var uid uint64
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		id, err := insertUserTx(ctx, tx, u, cost)
		if err != nil {
			return err
		}
		uid = id
		if u.Role == model.RoleDoctor {
			d := model.Doctor{UserID: id, IsAvailable: true}
			if profile != nil {
				d = *profile
				d.UserID = id
			}
			return r.Doctors.CreateTx(ctx, tx, &d)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uid, nil
}

const userSelect = "SELECT id, email, password_hash, full_name, COALESCE(phone, ''), role, is_active, created_at, updated_at FROM users"

func scanUser(s rowScanner) (model.User, error) {
	var u model.User
	err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Phone, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	if err != nil {
		return u, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx, userSelect+" WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, userSelect+" WHERE id=? LIMIT 1", id))
}

package model

import "time"

// User represents an account record as stored in the `users` table.
// The booking core only needs the id, role and display name; the
// remaining fields belong to the auth endpoints.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hash of the password.
//  FullName     – display name shown on appointments.
//  Phone        – optional contact number.
//  Role         – one of Patient, Doctor or Admin.
//  IsActive     – inactive accounts cannot log in and are hidden from
//                 the doctor directory.
type User struct {
	ID           uint64    `json:"id"`              // users.id
	Email        string    `json:"email"`           // users.email
	PasswordHash string    `json:"-"`               // users.password_hash
	FullName     string    `json:"full_name"`       // users.full_name
	Phone        string    `json:"phone,omitempty"` // users.phone (nullable)
	Role         Role      `json:"role"`            // users.role
	IsActive     bool      `json:"is_active"`       // users.is_active
	CreatedAt    time.Time `json:"created_at"`      // users.created_at
	UpdatedAt    time.Time `json:"updated_at"`      // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token is persisted.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

package model

import (
	"fmt"
	"strings"
)

// Role is the closed set of caller roles.  The zero value is not a valid
// role; handlers treat it as unauthenticated.
type Role string

const (
	RolePatient Role = "Patient"
	RoleDoctor  Role = "Doctor"
	RoleAdmin   Role = "Admin"
)

// ParseRole maps a role string into the closed set.  Matching is case
// insensitive and accepts the legacy campus names (student, faculty,
// staff) used by older clients.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "patient", "student":
		return RolePatient, nil
	case "doctor", "faculty":
		return RoleDoctor, nil
	case "admin", "staff":
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Identity is the authenticated caller as seen by the service layer.
type Identity struct {
	UserID uint64
	Role   Role
}

// Authenticated reports whether the identity carries a user and a known role.
func (i Identity) Authenticated() bool { return i.UserID != 0 && i.Role.Valid() }

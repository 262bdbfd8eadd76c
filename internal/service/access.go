package service

import "github.com/iliyamo/clinic-appointments/internal/model"

func requireIdentity(id model.Identity) error {
	if !id.Authenticated() {
		return Unauthenticated("authentication required")
	}
	return nil
}

// canManage reports whether id may act as the doctor owning a resource.
func canManage(id model.Identity, doctorUserID uint64) bool {
	switch id.Role {
	case model.RoleAdmin:
		return true
	case model.RoleDoctor:
		return doctorUserID != 0 && id.UserID == doctorUserID
	case model.RolePatient:
		return false
	}
	return false
}

// canView reports whether id is a party to an appointment or an admin.
func canView(id model.Identity, patientID, doctorUserID uint64) bool {
	switch id.Role {
	case model.RoleAdmin:
		return true
	case model.RoleDoctor:
		return doctorUserID != 0 && id.UserID == doctorUserID
	case model.RolePatient:
		return id.UserID == patientID
	}
	return false
}

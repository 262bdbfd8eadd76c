package model

import "time"

// Doctor is the profile attached 1:1 to a user with the Doctor role.
// IsAvailable is a global switch independent of the weekly schedule:
// while it is false no new bookings are accepted, existing appointments
// are untouched.
type Doctor struct {
	ID              uint64    `json:"id"`               // doctors.id
	UserID          uint64    `json:"user_id"`          // doctors.user_id
	FullName        string    `json:"full_name"`        // users.full_name (joined)
	Email           string    `json:"email"`            // users.email (joined)
	Specialization  string    `json:"specialization"`   // doctors.specialization
	LicenseNumber   string    `json:"license_number"`   // doctors.license_number
	Qualification   string    `json:"qualification"`    // doctors.qualification
	ExperienceYears int       `json:"experience_years"` // doctors.experience_years
	ConsultationFee float64   `json:"consultation_fee"` // doctors.consultation_fee
	RoomNumber      string    `json:"room_number"`      // doctors.room_number
	Bio             string    `json:"bio"`              // doctors.bio
	AverageRating   float64   `json:"average_rating"`   // doctors.average_rating
	TotalRatings    int       `json:"total_ratings"`    // doctors.total_ratings
	IsAvailable     bool      `json:"is_available"`     // doctors.is_available
	CreatedAt       time.Time `json:"created_at"`       // doctors.created_at
	UpdatedAt       time.Time `json:"updated_at"`       // doctors.updated_at
}

// DoctorProfile is a doctor together with the active weekly schedule.
type DoctorProfile struct {
	Doctor
	Schedule []DoctorSchedule `json:"schedule"`
}

// SpecializationCount is a row of the specialization summary.
type SpecializationCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DoctorSchedule is a recurring weekly availability rule.  StartTime
// must be before EndTime.  A deactivated row is excluded from slot
// generation but kept for history.
type DoctorSchedule struct {
	ID        uint64    `json:"id"`          // doctor_schedules.id
	DoctorID  uint64    `json:"doctor_id"`   // doctor_schedules.doctor_id
	DayOfWeek Weekday   `json:"day_of_week"` // doctor_schedules.day_of_week (0=Sunday)
	StartTime TimeOfDay `json:"start_time"`  // doctor_schedules.start_time
	EndTime   TimeOfDay `json:"end_time"`    // doctor_schedules.end_time
	IsActive  bool      `json:"is_active"`   // doctor_schedules.is_active
	CreatedAt time.Time `json:"created_at"`  // doctor_schedules.created_at
	UpdatedAt time.Time `json:"updated_at"`  // doctor_schedules.updated_at
}

// DoctorLeave is a closed date interval during which no slots are
// generated.  StartDate must not be after EndDate.
type DoctorLeave struct {
	ID        uint64    `json:"id"`               // doctor_leaves.id
	DoctorID  uint64    `json:"doctor_id"`        // doctor_leaves.doctor_id
	StartDate Date      `json:"start_date"`       // doctor_leaves.start_date
	EndDate   Date      `json:"end_date"`         // doctor_leaves.end_date
	Reason    string    `json:"reason,omitempty"` // doctor_leaves.reason (nullable)
	CreatedAt time.Time `json:"created_at"`       // doctor_leaves.created_at
}

// Covers reports whether the leave includes d.
func (l DoctorLeave) Covers(d Date) bool { return d.Within(l.StartDate, l.EndDate) }

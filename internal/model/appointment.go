package model

import "time"

// Appointment is the central booking record.  (DoctorID, Date, Time) is
// unique among rows whose Status is not Cancelled.  Rows are never
// deleted; cancellation is a state.
//
// Fields:
//  ID                 – primary key identifier.
//  PatientID          – user who booked the appointment.
//  DoctorID           – doctor profile being booked.
//  Date, Time         – slot start, in the clinic timezone.
//  DurationMinutes    – slot length, 30 by default.
//  Status             – lifecycle state, see Status.
//  Symptoms, Notes    – free text supplied by the patient.
//  CancellationReason – set once, when the status becomes Cancelled.
//  CancelledBy        – user that cancelled (nil unless Cancelled).
//  CancelledAt        – when the cancellation happened.
type Appointment struct {
	ID                 uint64     `json:"id"`                            // appointments.id
	PatientID          uint64     `json:"patient_id"`                    // appointments.patient_id
	DoctorID           uint64     `json:"doctor_id"`                     // appointments.doctor_id
	Date               Date       `json:"appointment_date"`              // appointments.appointment_date
	Time               TimeOfDay  `json:"appointment_time"`              // appointments.appointment_time
	DurationMinutes    int        `json:"duration_minutes"`              // appointments.duration_minutes
	Status             Status     `json:"status"`                        // appointments.status
	Symptoms           string     `json:"symptoms"`                      // appointments.symptoms
	Notes              string     `json:"notes"`                         // appointments.notes
	CancellationReason string     `json:"cancellation_reason,omitempty"` // appointments.cancellation_reason
	CancelledBy        *uint64    `json:"cancelled_by,omitempty"`        // appointments.cancelled_by (nullable)
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`        // appointments.cancelled_at (nullable)
	CreatedAt          time.Time  `json:"created_at"`                    // appointments.created_at
	UpdatedAt          time.Time  `json:"updated_at"`                    // appointments.updated_at
}

// Cancellation groups the bookkeeping recorded when an appointment is
// cancelled.
type Cancellation struct {
	CancelledBy     uint64     `json:"cancelled_by"`
	CancelledByName string     `json:"cancelled_by_name"`
	Reason          string     `json:"reason"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}

// AppointmentDetail is the read projection returned by every query.
type AppointmentDetail struct {
	Appointment
	DateTime           string        `json:"date_time"`
	PatientName        string        `json:"patient_name"`
	DoctorName         string        `json:"doctor_name"`
	DoctorUserID       uint64        `json:"doctor_user_id"`
	Specialization     string        `json:"specialization"`
	RoomNumber         string        `json:"room_number"`
	LatestPrescription *Prescription `json:"latest_prescription,omitempty"`
	Cancellation       *Cancellation `json:"cancellation,omitempty"`
}

// Prescription is the outcome of a completed consultation.  It is only
// created together with the transition to Completed.
type Prescription struct {
	ID            uint64                 `json:"id"`                       // prescriptions.id
	AppointmentID uint64                 `json:"appointment_id"`           // prescriptions.appointment_id
	Diagnosis     string                 `json:"diagnosis"`                // prescriptions.diagnosis
	Notes         string                 `json:"notes"`                    // prescriptions.notes
	FollowUpDate  *Date                  `json:"follow_up_date,omitempty"` // prescriptions.follow_up_date (nullable)
	Medicines     []PrescriptionMedicine `json:"medicines,omitempty"`
	CreatedAt     time.Time              `json:"created_at"` // prescriptions.created_at
}

// PrescriptionMedicine is one line of a prescription.
type PrescriptionMedicine struct {
	ID             uint64 `json:"id"`            // prescription_medicines.id
	PrescriptionID uint64 `json:"-"`             // prescription_medicines.prescription_id
	MedicineName   string `json:"medicine_name"` // prescription_medicines.medicine_name
	Dosage         string `json:"dosage"`        // prescription_medicines.dosage
	Frequency      string `json:"frequency"`     // prescription_medicines.frequency
	Duration       string `json:"duration"`      // prescription_medicines.duration
	Instructions   string `json:"instructions"`  // prescription_medicines.instructions
}

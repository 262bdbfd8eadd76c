package model

import (
	"fmt"
	"strings"
	"time"
)

// MedicineReminder is a patient's recurring reminder to take a medicine
// at fixed times of day between StartDate and EndDate (open ended when
// EndDate is nil).
type MedicineReminder struct {
	ID              uint64      `json:"id"`
	PatientID       uint64      `json:"patient_id"`
	MedicineName    string      `json:"medicine_name"`
	Dosage          string      `json:"dosage"`
	Frequency       string      `json:"frequency"`
	CustomFrequency string      `json:"custom_frequency,omitempty"`
	Times           []TimeOfDay `json:"times"`
	StartDate       Date        `json:"start_date"`
	EndDate         *Date       `json:"end_date,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	IsActive        bool        `json:"is_active"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`

	Logs []ReminderLog `json:"logs,omitempty"`
}

// ActiveOn reports whether the reminder should fire on d.
func (r MedicineReminder) ActiveOn(d Date) bool {
	if !r.IsActive || d.Before(r.StartDate) {
		return false
	}
	return r.EndDate == nil || !d.After(*r.EndDate)
}

// IntakeStatus records what happened at a scheduled dose.
type IntakeStatus string

const (
	IntakeTaken   IntakeStatus = "taken"
	IntakeMissed  IntakeStatus = "missed"
	IntakeSkipped IntakeStatus = "skipped"
)

// ParseIntakeStatus defaults an empty value to taken.
func ParseIntakeStatus(s string) (IntakeStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "taken":
		return IntakeTaken, nil
	case "missed":
		return IntakeMissed, nil
	case "skipped":
		return IntakeSkipped, nil
	}
	return "", fmt.Errorf("invalid intake status %q: must be taken, missed or skipped", s)
}

// ReminderLog is one recorded intake.
type ReminderLog struct {
	ID            uint64       `json:"id"`
	ReminderID    uint64       `json:"reminder_id"`
	ScheduledTime time.Time    `json:"scheduled_time"`
	TakenAt       *time.Time   `json:"taken_at,omitempty"`
	Status        IntakeStatus `json:"status"`
	Notes         string       `json:"notes,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// FormatTimes renders reminder times as the comma separated column value.
func FormatTimes(ts []TimeOfDay) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

// ParseTimes parses a comma separated HH:MM list.  Empty entries are
// ignored.
func ParseTimes(s string) ([]TimeOfDay, error) {
	out := []TimeOfDay{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		t, err := ParseTimeOfDay(p)
		if err != nil {
			return nil, fmt.Errorf("invalid reminder time %q: %w", p, err)
		}
		out = append(out, t)
	}
	return out, nil
}

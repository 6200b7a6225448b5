package models

import (
	"database/sql"
	"time"
)

// AppointmentStatus is owned by the scheduling service; the chat core only
// reads it.
type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "PENDING"
	StatusConfirmed  AppointmentStatus = "CONFIRMED"
	StatusInProgress AppointmentStatus = "IN_PROGRESS"
	StatusCompleted  AppointmentStatus = "COMPLETED"
	StatusCancelled  AppointmentStatus = "CANCELLED"
)

// Appointment mirrors the scheduling service's row. The chat core writes
// only actual_start_time and the four extension fields, nothing else.
type Appointment struct {
	ID                   int64             `db:"id" json:"id"`
	PatientID            int64             `db:"patient_id" json:"patient_id"`
	DoctorID             int64             `db:"doctor_id" json:"doctor_id"`
	Status               AppointmentStatus `db:"status" json:"status"`
	ScheduledStart       time.Time         `db:"scheduled_start" json:"scheduled_start"`
	ScheduledEnd         time.Time         `db:"scheduled_end" json:"scheduled_end"`
	ActualStart          sql.NullTime      `db:"actual_start" json:"-"`
	ExtensionRequested   bool              `db:"extension_requested" json:"extension_requested"`
	ExtensionRequestedBy sql.NullInt64     `db:"extension_requested_by" json:"-"`
	ExtensionGranted     bool              `db:"extension_granted" json:"extension_granted"`
	ExtensionAcceptedBy  sql.NullInt64     `db:"extension_accepted_by" json:"-"`
}

// HasParticipant reports whether the user is the appointment's patient or doctor.
func (a Appointment) HasParticipant(userID int64) bool {
	return a.PatientID == userID || a.DoctorID == userID
}

// PeerOf returns the other participant of the appointment.
func (a Appointment) PeerOf(userID int64) int64 {
	if a.PatientID == userID {
		return a.DoctorID
	}
	return a.PatientID
}

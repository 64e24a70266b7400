package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusDone      AppointmentStatus = "done"
)

// OccupyingStatuses are the statuses that consume calendar capacity.
var OccupyingStatuses = []AppointmentStatus{
	AppointmentStatusScheduled,
	AppointmentStatusConfirmed,
	AppointmentStatusDone,
}

type Appointment struct {
	Base
	ServiceID       uuid.UUID         `db:"service_id" json:"service_id"`
	PatientName     string            `db:"patient_name" json:"patient_name"`
	PatientEmail    string            `db:"patient_email" json:"patient_email"`
	StartsAt        time.Time         `db:"starts_at" json:"starts_at"`
	DurationMinutes int               `db:"duration_minutes" json:"duration_minutes"`
	Status          AppointmentStatus `db:"status" json:"status"`
	Notes           string            `db:"notes" json:"notes,omitempty"`
	CancelReason    *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

func (a Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Occupies reports whether the appointment blocks its interval.
func (a Appointment) Occupies() bool {
	switch a.Status {
	case AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusDone:
		return a.DurationMinutes > 0
	default:
		return false
	}
}

type CreateAppointmentRequest struct {
	ServiceID    uuid.UUID `json:"service_id" binding:"required"`
	StartsAt     time.Time `json:"starts_at" binding:"required"`
	PatientName  string    `json:"patient_name" binding:"required,max=200"`
	PatientEmail string    `json:"patient_email" binding:"required,email"`
	Notes        string    `json:"notes" binding:"max=1000"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// AppointmentEvent is published on the broker when a booking changes.
type AppointmentEvent struct {
	Type          string            `json:"type"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	ServiceID     uuid.UUID         `json:"service_id"`
	ServiceName   string            `json:"service_name"`
	PatientName   string            `json:"patient_name"`
	PatientEmail  string            `json:"patient_email"`
	StartsAt      time.Time         `json:"starts_at"`
	Status        AppointmentStatus `json:"status"`
}

package core

import "time"

// AppointmentStatus enumerates the appointment lifecycle states.
type AppointmentStatus string

const (
	// StatusPending is the initial state of a booked appointment.
	StatusPending AppointmentStatus = "PENDING"
	// StatusConfirmed marks an appointment the patient has confirmed.
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	// StatusCancelled is terminal; no transition leaves it.
	StatusCancelled AppointmentStatus = "CANCELLED"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the status machine permits moving from s
// to next. PENDING -> {CONFIRMED, CANCELLED}; CONFIRMED -> {CANCELLED};
// CANCELLED is terminal.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCancelled
	default:
		return false
	}
}

// Appointment is the scheduling record owned by the repository collaborator.
type Appointment struct {
	ID        int64             `json:"id"`
	PatientID int64             `json:"patient_id"`
	When      time.Time         `json:"when"` // UTC
	Location  string            `json:"location"`
	Doctor    string            `json:"doctor,omitempty"`
	Notes     string            `json:"notes,omitempty"`
	Status    AppointmentStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

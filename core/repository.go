package core

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repositories when no record matches.
var ErrNotFound = errors.New("core: record not found")

// ErrStaleStatus is returned by UpdateStatus when the appointment no longer
// carries the status the caller observed, meaning a concurrent transition
// won.
var ErrStaleStatus = errors.New("core: appointment status changed")

// PatientLookup resolves a patient identity from verification inputs. It is
// the only identity surface the guardrail layer consumes.
type PatientLookup interface {
	// FindByNameAndDOB returns the patient matching the exact full name and
	// date of birth, or ErrNotFound.
	FindByNameAndDOB(ctx context.Context, fullName, dob string) (*Patient, error)

	// FindByNameDOBAndPhone additionally matches the phone hash, for callers
	// that supply a phone number during verification.
	FindByNameDOBAndPhone(ctx context.Context, fullName, dob, phone string) (*Patient, error)
}

// AppointmentRepository is the narrow CRUD surface over the scheduling store.
// Implementations may block on external I/O; callers bound calls with a
// context deadline.
type AppointmentRepository interface {
	// ListByPatient returns the patient's appointments ordered by time.
	ListByPatient(ctx context.Context, patientID int64) ([]Appointment, error)

	// Get returns a single appointment or ErrNotFound.
	Get(ctx context.Context, appointmentID int64) (*Appointment, error)

	// UpdateStatus persists a status transition away from the status the
	// caller observed. It does not validate the transition; callers run the
	// status machine first. When the stored status no longer matches from,
	// the update is not applied and ErrStaleStatus is returned.
	UpdateStatus(ctx context.Context, appointmentID int64, from, to AppointmentStatus) (*Appointment, error)
}

// Repository aggregates the collaborator surfaces the service needs.
type Repository interface {
	PatientLookup
	AppointmentRepository
}

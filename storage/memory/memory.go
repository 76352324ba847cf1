// Package memory provides an in-memory repository used in tests and for
// running the service without a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/clinicmesh/core"
)

// Repository is a mutex-guarded in-memory implementation of
// core.Repository. Safe for concurrent use.
type Repository struct {
	mu           sync.RWMutex
	patients     map[int64]core.Patient
	appointments map[int64]core.Appointment
	nextPatient  int64
	nextAppt     int64
	now          func() time.Time
}

// RepositoryOptions configures the in-memory repository.
type RepositoryOptions struct {
	Clock func() time.Time
}

// NewRepository creates an empty repository.
func NewRepository(optFns ...func(o *RepositoryOptions)) *Repository {
	opts := RepositoryOptions{Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Repository{
		patients:     make(map[int64]core.Patient),
		appointments: make(map[int64]core.Appointment),
		nextPatient:  1,
		nextAppt:     1,
		now:          opts.Clock,
	}
}

// AddPatient stores a patient and returns its assigned id. The raw phone is
// hashed before storage.
func (r *Repository) AddPatient(fullName, dob, phone string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextPatient
	r.nextPatient++
	r.patients[id] = core.Patient{
		ID:        id,
		FullName:  fullName,
		DOB:       dob,
		PhoneHash: core.HashPhone(phone),
		CreatedAt: r.now(),
	}
	return id
}

// AddAppointment stores an appointment and returns its assigned id.
func (r *Repository) AddAppointment(patientID int64, when time.Time, location, doctor string, status core.AppointmentStatus) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextAppt
	r.nextAppt++
	now := r.now()
	r.appointments[id] = core.Appointment{
		ID:        id,
		PatientID: patientID,
		When:      when.UTC(),
		Location:  location,
		Doctor:    doctor,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id
}

// FindByNameAndDOB implements core.PatientLookup. Name matching is
// case-insensitive on the trimmed full name.
func (r *Repository) FindByNameAndDOB(ctx context.Context, fullName, dob string) (*core.Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.patients {
		if strings.EqualFold(strings.TrimSpace(p.FullName), strings.TrimSpace(fullName)) && p.DOB == dob {
			out := p
			return &out, nil
		}
	}
	return nil, core.ErrNotFound
}

// FindByNameDOBAndPhone implements core.PatientLookup.
func (r *Repository) FindByNameDOBAndPhone(ctx context.Context, fullName, dob, phone string) (*core.Patient, error) {
	p, err := r.FindByNameAndDOB(ctx, fullName, dob)
	if err != nil {
		return nil, err
	}
	if p.PhoneHash != core.HashPhone(phone) {
		return nil, core.ErrNotFound
	}
	return p, nil
}

// ListByPatient implements core.AppointmentRepository.
func (r *Repository) ListByPatient(ctx context.Context, patientID int64) ([]core.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []core.Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].When.Before(out[j].When) })
	return out, nil
}

// Get implements core.AppointmentRepository.
func (r *Repository) Get(ctx context.Context, appointmentID int64) (*core.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[appointmentID]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := a
	return &out, nil
}

// UpdateStatus implements core.AppointmentRepository. The write only lands
// when the stored status still matches from.
func (r *Repository) UpdateStatus(ctx context.Context, appointmentID int64, from, to core.AppointmentStatus) (*core.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[appointmentID]
	if !ok {
		return nil, core.ErrNotFound
	}
	if a.Status != from {
		return nil, core.ErrStaleStatus
	}
	a.Status = to
	a.UpdatedAt = r.now()
	r.appointments[appointmentID] = a

	out := a
	return &out, nil
}

// Package sqlite provides a SQLite-backed implementation of the patient and
// appointment repository.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/clinicmesh/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS patients (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  full_name   TEXT NOT NULL,
  dob         TEXT NOT NULL,
  phone_hash  TEXT NOT NULL,
  created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patients_identity ON patients (full_name COLLATE NOCASE, dob);

CREATE TABLE IF NOT EXISTS appointments (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  patient_id  INTEGER NOT NULL REFERENCES patients (id),
  at          INTEGER NOT NULL,
  location    TEXT NOT NULL,
  doctor      TEXT NOT NULL DEFAULT '',
  notes       TEXT NOT NULL DEFAULT '',
  status      TEXT NOT NULL DEFAULT 'PENDING',
  created_at  INTEGER NOT NULL,
  updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments (patient_id, at);
`

// Store persists patients and appointments in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and initializes the schema. The DSN
// enables WAL mode and foreign keys so concurrent readers never block the
// writer.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreatePatient inserts a patient record. The raw phone is hashed before it
// touches the database.
func (s *Store) CreatePatient(ctx context.Context, fullName, dob, phone string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fullName = strings.TrimSpace(fullName)
	dob = strings.TrimSpace(dob)
	if fullName == "" {
		return 0, fmt.Errorf("full name is required")
	}
	if dob == "" {
		return 0, fmt.Errorf("date of birth is required")
	}

	res, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO patients (full_name, dob, phone_hash, created_at) VALUES (?, ?, ?, ?)`,
		fullName,
		dob,
		core.HashPhone(phone),
		toMillis(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("create patient: %w", err)
	}
	return res.LastInsertId()
}

// CreateAppointment inserts an appointment record.
func (s *Store) CreateAppointment(ctx context.Context, patientID int64, when time.Time, location, doctor string, status core.AppointmentStatus) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !status.Valid() {
		return 0, fmt.Errorf("invalid status %q", status)
	}

	now := toMillis(s.now())
	res, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO appointments (patient_id, at, location, doctor, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		patientID,
		toMillis(when),
		location,
		doctor,
		string(status),
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("create appointment: %w", err)
	}
	return res.LastInsertId()
}

// FindByNameAndDOB implements core.PatientLookup with a case-insensitive
// name match.
func (s *Store) FindByNameAndDOB(ctx context.Context, fullName, dob string) (*core.Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, full_name, dob, phone_hash, created_at
		   FROM patients
		  WHERE full_name = ? COLLATE NOCASE AND dob = ?`,
		strings.TrimSpace(fullName),
		strings.TrimSpace(dob),
	)
	return scanPatient(row)
}

// FindByNameDOBAndPhone implements core.PatientLookup.
func (s *Store) FindByNameDOBAndPhone(ctx context.Context, fullName, dob, phone string) (*core.Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, full_name, dob, phone_hash, created_at
		   FROM patients
		  WHERE full_name = ? COLLATE NOCASE AND dob = ? AND phone_hash = ?`,
		strings.TrimSpace(fullName),
		strings.TrimSpace(dob),
		core.HashPhone(phone),
	)
	return scanPatient(row)
}

func scanPatient(row *sql.Row) (*core.Patient, error) {
	var p core.Patient
	var createdAt int64
	err := row.Scan(&p.ID, &p.FullName, &p.DOB, &p.PhoneHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("find patient: %w", err)
	}
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

// ListByPatient implements core.AppointmentRepository, ordered by time.
func (s *Store) ListByPatient(ctx context.Context, patientID int64) ([]core.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, patient_id, at, location, doctor, notes, status, created_at, updated_at
		   FROM appointments
		  WHERE patient_id = ?
		  ORDER BY at ASC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []core.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list appointments: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

// Get implements core.AppointmentRepository.
func (s *Store) Get(ctx context.Context, appointmentID int64) (*core.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, patient_id, at, location, doctor, notes, status, created_at, updated_at
		   FROM appointments
		  WHERE id = ?`,
		appointmentID,
	)
	a, err := scanAppointment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return &a, nil
}

// UpdateStatus implements core.AppointmentRepository. The transition itself
// is validated by the caller; the WHERE clause guards against a concurrent
// transition by matching the status the caller observed.
func (s *Store) UpdateStatus(ctx context.Context, appointmentID int64, from, to core.AppointmentStatus) (*core.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, fmt.Errorf("invalid status %q", to)
	}

	res, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE appointments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to),
		toMillis(s.now()),
		appointmentID,
		string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, appointmentID); errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, core.ErrStaleStatus
	}
	return s.Get(ctx, appointmentID)
}

func scanAppointment(scan func(dest ...any) error) (core.Appointment, error) {
	var a core.Appointment
	var at, createdAt, updatedAt int64
	var status string
	err := scan(&a.ID, &a.PatientID, &at, &a.Location, &a.Doctor, &a.Notes, &status, &createdAt, &updatedAt)
	if err != nil {
		return core.Appointment{}, err
	}
	a.When = fromMillis(at)
	a.Status = core.AppointmentStatus(status)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return a, nil
}

var _ core.Repository = (*Store)(nil)

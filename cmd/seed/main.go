// Command seed populates a SQLite database with demo patients and
// appointments for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hupe1980/clinicmesh/core"
	"github.com/hupe1980/clinicmesh/storage/sqlite"
)

type seedPatient struct {
	fullName     string
	dob          string
	phone        string
	appointments []seedAppointment
}

type seedAppointment struct {
	daysAhead int
	hour      int
	location  string
	doctor    string
	status    core.AppointmentStatus
}

var fixtures = []seedPatient{
	{
		fullName: "Ana Souza",
		dob:      "1990-04-12",
		phone:    "+55 11 98765-4321",
		appointments: []seedAppointment{
			{daysAhead: 3, hour: 9, location: "Downtown Clinic", doctor: "Dr. Prado", status: core.StatusPending},
			{daysAhead: 10, hour: 14, location: "Downtown Clinic", doctor: "Dr. Prado", status: core.StatusPending},
		},
	},
	{
		fullName: "Bruno Lima",
		dob:      "1985-09-30",
		phone:    "+55 21 91234-5678",
		appointments: []seedAppointment{
			{daysAhead: 5, hour: 11, location: "North Unit", doctor: "Dr. Rocha", status: core.StatusConfirmed},
		},
	},
	{
		fullName: "Clara Mendes",
		dob:      "1978-01-22",
		phone:    "+55 31 99876-1234",
		appointments: []seedAppointment{
			{daysAhead: 1, hour: 8, location: "North Unit", doctor: "Dr. Rocha", status: core.StatusPending},
			{daysAhead: 14, hour: 16, location: "Downtown Clinic", doctor: "Dr. Prado", status: core.StatusPending},
			{daysAhead: 30, hour: 10, location: "Downtown Clinic", doctor: "Dr. Prado", status: core.StatusPending},
		},
	},
}

func main() {
	dbPath := flag.String("db", "clinic.db", "path to the SQLite database")
	flag.Parse()

	if err := run(context.Background(), *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dbPath string) error {
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	now := time.Now().UTC()
	for _, p := range fixtures {
		pid, err := store.CreatePatient(ctx, p.fullName, p.dob, p.phone)
		if err != nil {
			return fmt.Errorf("seed patient %s: %w", p.fullName, err)
		}
		for _, a := range p.appointments {
			when := now.AddDate(0, 0, a.daysAhead).Truncate(24 * time.Hour).Add(time.Duration(a.hour) * time.Hour)
			if _, err := store.CreateAppointment(ctx, pid, when, a.location, a.doctor, a.status); err != nil {
				return fmt.Errorf("seed appointment for %s: %w", p.fullName, err)
			}
		}
		fmt.Printf("seeded %s (%d appointments)\n", p.fullName, len(p.appointments))
	}
	return nil
}

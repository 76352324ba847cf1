package tool

import (
	"context"
	"time"

	"github.com/hupe1980/clinicmesh/core"
	"github.com/hupe1980/clinicmesh/session"
)

// ListAppointmentsTool returns the verified patient's appointments and
// records the listing order so later calls can reference items by position
// ("the second one").
type ListAppointmentsTool struct {
	repo core.AppointmentRepository
}

// NewListAppointmentsTool creates the listing tool over a repository.
func NewListAppointmentsTool(repo core.AppointmentRepository) *ListAppointmentsTool {
	return &ListAppointmentsTool{repo: repo}
}

// Name returns the unique tool name.
func (t *ListAppointmentsTool) Name() string { return "list_appointments" }

// Description returns the model-facing description.
func (t *ListAppointmentsTool) Description() string {
	return "List the verified patient's upcoming appointments in chronological order."
}

// Parameters returns the argument schema. The tool takes no arguments.
func (t *ListAppointmentsTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// AppointmentView is the caller-facing shape of one appointment. Both the
// record id and the listing ordinal are valid references for confirm and
// cancel.
type AppointmentView struct {
	ID       int64  `json:"id"`
	Ordinal  int    `json:"ordinal"`
	When     string `json:"when"` // RFC 3339, UTC
	Location string `json:"location"`
	Doctor   string `json:"doctor,omitempty"`
	Status   string `json:"status"`

	patientID int64
}

// AppointmentList is the success payload of a listing.
type AppointmentList struct {
	Appointments []AppointmentView `json:"appointments"`
}

// RedactFor drops any entry that does not belong to the given patient. The
// repository query is already patient-scoped; this is the backstop the gate
// runs before the payload leaves the critical section.
func (l AppointmentList) RedactFor(patientID int64) any {
	kept := make([]AppointmentView, 0, len(l.Appointments))
	for _, v := range l.Appointments {
		if v.patientID == patientID {
			kept = append(kept, v)
		}
	}
	return AppointmentList{Appointments: kept}
}

// Call lists the bound patient's appointments and records the ordinal order
// on the session.
func (t *ListAppointmentsTool) Call(ctx context.Context, st *session.State, args map[string]any) (*Result, error) {
	if !st.Verified {
		return Failure(KindNotVerified, "please verify your identity first"), nil
	}

	appts, err := t.repo.ListByPatient(ctx, st.PatientID)
	if err != nil {
		return nil, err
	}

	views := make([]AppointmentView, 0, len(appts))
	ids := make([]int64, 0, len(appts))
	for i, a := range appts {
		views = append(views, AppointmentView{
			ID:        a.ID,
			Ordinal:   i + 1,
			When:      a.When.UTC().Format(time.RFC3339),
			Location:  a.Location,
			Doctor:    a.Doctor,
			Status:    string(a.Status),
			patientID: a.PatientID,
		})
		ids = append(ids, a.ID)
	}
	st.LastListed = ids

	return Success(AppointmentList{Appointments: views}), nil
}

package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/clinicmesh/core"
	"github.com/hupe1980/clinicmesh/guardrail"
	"github.com/hupe1980/clinicmesh/session"
)

// transitionTool factors the shared body of confirm and cancel: both resolve
// an appointment by listing ordinal or raw id, re-check ownership, run the
// status machine and persist the transition.
type transitionTool struct {
	repo   core.AppointmentRepository
	target core.AppointmentStatus
}

func transitionSchema(verb string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ordinal": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Position of the appointment to %s in the most recent listing, starting at 1", verb),
			},
			"appointment_id": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Id of the appointment to %s, as returned by listing", verb),
			},
		},
	}
}

// TransitionView is the success payload of a confirm or cancel.
type TransitionView struct {
	ID       int64  `json:"id"`
	Ordinal  int    `json:"ordinal,omitempty"`
	When     string `json:"when"`
	Location string `json:"location"`
	Status   string `json:"status"`
}

// asInt reads integer arguments that arrive as JSON float64 or as native
// ints from in-process callers.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func (t *transitionTool) call(ctx context.Context, st *session.State, args map[string]any) (*Result, error) {
	if !st.Verified {
		return Failure(KindNotVerified, "please verify your identity first"), nil
	}

	rawOrdinal, hasOrdinal := args["ordinal"]
	rawID, hasID := args["appointment_id"]
	if hasOrdinal == hasID {
		return Failure(KindValidationError, "provide exactly one of ordinal or appointment_id"), nil
	}

	var id int64
	var ordinal int
	var ref string
	if hasID {
		n, ok := asInt(rawID)
		if !ok {
			return Failure(KindValidationError, "appointment_id must be an integer"), nil
		}
		id = n
		ref = fmt.Sprintf("appointment %d", id)
		for i, listed := range st.LastListed {
			if listed == id {
				ordinal = i + 1
			}
		}
	} else {
		n, ok := asInt(rawOrdinal)
		if !ok {
			return Failure(KindValidationError, "ordinal must be an integer"), nil
		}
		ordinal = int(n)
		ref = fmt.Sprintf("appointment at position %d", ordinal)

		resolved, found := st.ResolveOrdinal(ordinal)
		if !found {
			if len(st.LastListed) == 0 {
				return Failure(KindNotFound, "list your appointments first, then refer to one by its position"), nil
			}
			return Failure(KindNotFound, "there is no appointment at position %d in your last listing", ordinal), nil
		}
		id = resolved
	}

	appt, err := t.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Failure(KindNotFound, "that appointment no longer exists"), nil
		}
		return nil, err
	}

	// Ownership re-check. The listing was patient-scoped, but both a stale
	// ordinal and a raw id can point at another patient's record; never
	// trust the reference alone.
	if appt.PatientID != st.PatientID {
		return nil, &guardrail.AuthorizationError{
			PatientID: st.PatientID,
			Resource:  ref,
		}
	}

	if appt.Status == t.target {
		kind := KindAlreadyConfirmed
		if t.target == core.StatusCancelled {
			kind = KindAlreadyCancelled
		}
		return Failure(kind, "that appointment is already %s", statusWord(t.target)), nil
	}
	if !appt.Status.CanTransitionTo(t.target) {
		return Failure(KindInvalidTransition, "a %s appointment cannot be %s", statusWord(appt.Status), statusWord(t.target)), nil
	}

	updated, err := t.repo.UpdateStatus(ctx, id, appt.Status, t.target)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Failure(KindNotFound, "that appointment no longer exists"), nil
		}
		if errors.Is(err, core.ErrStaleStatus) {
			return Failure(KindInvalidTransition, "that appointment just changed; list your appointments and try again"), nil
		}
		return nil, err
	}

	return Success(TransitionView{
		ID:       updated.ID,
		Ordinal:  ordinal,
		When:     updated.When.UTC().Format(time.RFC3339),
		Location: updated.Location,
		Status:   string(updated.Status),
	}), nil
}

func statusWord(s core.AppointmentStatus) string {
	switch s {
	case core.StatusPending:
		return "pending"
	case core.StatusConfirmed:
		return "confirmed"
	case core.StatusCancelled:
		return "cancelled"
	default:
		return string(s)
	}
}

// ConfirmAppointmentTool confirms a pending appointment referenced by its
// position in the last listing or by its id.
type ConfirmAppointmentTool struct {
	transitionTool
}

// NewConfirmAppointmentTool creates the confirm tool over a repository.
func NewConfirmAppointmentTool(repo core.AppointmentRepository) *ConfirmAppointmentTool {
	return &ConfirmAppointmentTool{transitionTool{repo: repo, target: core.StatusConfirmed}}
}

// Name returns the unique tool name.
func (t *ConfirmAppointmentTool) Name() string { return "confirm_appointment" }

// Description returns the model-facing description.
func (t *ConfirmAppointmentTool) Description() string {
	return "Confirm one of the patient's appointments, referenced by its position in the most recent listing or by its id."
}

// Parameters returns the argument schema.
func (t *ConfirmAppointmentTool) Parameters() map[string]any {
	return transitionSchema("confirm")
}

// Call confirms the referenced appointment.
func (t *ConfirmAppointmentTool) Call(ctx context.Context, st *session.State, args map[string]any) (*Result, error) {
	return t.call(ctx, st, args)
}

// CancelAppointmentTool cancels a pending or confirmed appointment
// referenced by its position in the last listing or by its id.
type CancelAppointmentTool struct {
	transitionTool
}

// NewCancelAppointmentTool creates the cancel tool over a repository.
func NewCancelAppointmentTool(repo core.AppointmentRepository) *CancelAppointmentTool {
	return &CancelAppointmentTool{transitionTool{repo: repo, target: core.StatusCancelled}}
}

// Name returns the unique tool name.
func (t *CancelAppointmentTool) Name() string { return "cancel_appointment" }

// Description returns the model-facing description.
func (t *CancelAppointmentTool) Description() string {
	return "Cancel one of the patient's appointments, referenced by its position in the most recent listing or by its id."
}

// Parameters returns the argument schema.
func (t *CancelAppointmentTool) Parameters() map[string]any {
	return transitionSchema("cancel")
}

// Call cancels the referenced appointment.
func (t *CancelAppointmentTool) Call(ctx context.Context, st *session.State, args map[string]any) (*Result, error) {
	return t.call(ctx, st, args)
}

package tool

import (
	"context"
	"errors"
	"strings"

	"github.com/hupe1980/clinicmesh/core"
	"github.com/hupe1980/clinicmesh/session"
)

// VerifyUserTool resolves a patient identity from full name, date of birth
// and optionally a phone number, and binds the patient to the session.
// Until this succeeds every patient-scoped tool answers not_verified.
type VerifyUserTool struct {
	lookup core.PatientLookup
}

// NewVerifyUserTool creates the verification tool over a patient lookup.
func NewVerifyUserTool(lookup core.PatientLookup) *VerifyUserTool {
	return &VerifyUserTool{lookup: lookup}
}

// Name returns the unique tool name.
func (t *VerifyUserTool) Name() string { return "verify_user" }

// Description returns the model-facing description.
func (t *VerifyUserTool) Description() string {
	return "Verify the patient's identity with full name, date of birth (YYYY-MM-DD) and optionally a phone number. Must succeed before appointments can be accessed."
}

// Parameters returns the argument schema.
func (t *VerifyUserTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"full_name": map[string]any{
				"type":        "string",
				"description": "Patient's full name exactly as registered",
			},
			"date_of_birth": map[string]any{
				"type":        "string",
				"description": "Date of birth in YYYY-MM-DD format",
			},
			"phone": map[string]any{
				"type":        "string",
				"description": "Registered phone number, if available",
			},
		},
		"required": []any{"full_name", "date_of_birth"},
	}
}

// VerifiedView is the success payload. The patient id never leaves the gate;
// only the masked reference does.
type VerifiedView struct {
	PatientRef string `json:"patient_ref"`
	FirstName  string `json:"first_name"`
}

// Call matches the supplied identity against the registry. Mismatches return
// a single generic not_found result so the tool never reveals which part
// of the identity was wrong.
func (t *VerifyUserTool) Call(ctx context.Context, st *session.State, args map[string]any) (*Result, error) {
	fullName, _ := args["full_name"].(string)
	dob, _ := args["date_of_birth"].(string)
	phone, _ := args["phone"].(string)

	fullName = strings.TrimSpace(fullName)
	dob = strings.TrimSpace(dob)
	if fullName == "" || dob == "" {
		return Failure(KindValidationError, "full_name and date_of_birth are required"), nil
	}

	var (
		p   *core.Patient
		err error
	)
	if phone != "" {
		p, err = t.lookup.FindByNameDOBAndPhone(ctx, fullName, dob, phone)
	} else {
		p, err = t.lookup.FindByNameAndDOB(ctx, fullName, dob)
	}
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Failure(KindNotFound, "we could not verify your identity with the details provided"), nil
		}
		return nil, err
	}

	st.BindPatient(p.ID)

	first := p.FullName
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	return Success(VerifiedView{
		PatientRef: session.MaskPatientRef(p.ID),
		FirstName:  first,
	}), nil
}

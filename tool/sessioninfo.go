package tool

import (
	"context"

	"github.com/hupe1980/clinicmesh/session"
)

// SessionInfoTool reports the redacted state of the current session. It
// never exposes the patient id or the listed appointment ids.
type SessionInfoTool struct{}

// NewSessionInfoTool creates the session info tool.
func NewSessionInfoTool() *SessionInfoTool {
	return &SessionInfoTool{}
}

// Name returns the unique tool name.
func (t *SessionInfoTool) Name() string { return "get_session_info" }

// Description returns the model-facing description.
func (t *SessionInfoTool) Description() string {
	return "Show the current session's verification status and activity summary."
}

// Parameters returns the argument schema. The tool takes no arguments.
func (t *SessionInfoTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// SessionInfoView is the redacted success payload.
type SessionInfoView struct {
	Verified    bool   `json:"verified"`
	PatientRef  string `json:"patient_ref,omitempty"`
	ListedCount int    `json:"listed_count"`
	Blocked     bool   `json:"blocked"`
}

// Call summarizes the session state.
func (t *SessionInfoTool) Call(ctx context.Context, st *session.State, args map[string]any) (*Result, error) {
	view := SessionInfoView{
		Verified:    st.Verified,
		ListedCount: len(st.LastListed),
		Blocked:     st.Blocked,
	}
	if st.Verified {
		view.PatientRef = session.MaskPatientRef(st.PatientID)
	}
	return Success(view), nil
}

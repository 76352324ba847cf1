package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// State is the mutable per-conversation record owned by the Store.
//
// Contract:
//   - PatientID is non-zero if and only if Verified is true
//   - LastListed is scoped to the current PatientID and is invalidated
//     whenever the patient binding changes
//   - Blocked sessions reject all guarded calls until BlockedUntil passes
type State struct {
	SessionID      string    `json:"session_id"`
	Verified       bool      `json:"verified"`
	PatientID      int64     `json:"patient_id,omitempty"`
	LastListed     []int64   `json:"last_listed,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Blocked        bool      `json:"blocked"`
	BlockReason    string    `json:"block_reason,omitempty"`
	BlockedUntil   time.Time `json:"blocked_until,omitempty"`
}

// Consistent reports whether the verification invariant holds.
func (st *State) Consistent() bool {
	return st.Verified == (st.PatientID != 0)
}

// BindPatient marks the session verified for the given patient and drops any
// listing recorded for a previous binding.
func (st *State) BindPatient(patientID int64) {
	if st.PatientID != patientID {
		st.LastListed = nil
	}
	st.PatientID = patientID
	st.Verified = true
}

// ResolveOrdinal maps a 1-based position in the most recent listing to an
// appointment id. The second return is false when no listing exists or the
// ordinal is out of range.
func (st *State) ResolveOrdinal(ordinal int) (int64, bool) {
	if ordinal < 1 || ordinal > len(st.LastListed) {
		return 0, false
	}
	return st.LastListed[ordinal-1], true
}

// BlockedNow reports whether the session is blocked at the given instant,
// clearing an expired block as a side effect.
func (st *State) BlockedNow(now time.Time) bool {
	if !st.Blocked {
		return false
	}
	if !st.BlockedUntil.IsZero() && now.After(st.BlockedUntil) {
		st.Blocked = false
		st.BlockReason = ""
		st.BlockedUntil = time.Time{}
		return false
	}
	return true
}

// Block marks the session blocked until the given instant. A zero until
// leaves the block in place for the life of the session.
func (st *State) Block(reason string, until time.Time) {
	st.Blocked = true
	st.BlockReason = reason
	st.BlockedUntil = until
}

// Summary is the derived, redacted view of a session exposed to external
// callers. The full State is never serialized outward.
type Summary struct {
	SessionID      string    `json:"session_id"`
	Verified       bool      `json:"verified"`
	PatientRef     string    `json:"patient_ref,omitempty"`
	ListedCount    int       `json:"listed_count"`
	Blocked        bool      `json:"blocked"`
	BlockReason    string    `json:"block_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// MaskPatientRef derives an opaque, stable reference for a patient id. The
// raw id never appears in summaries or audit events.
func MaskPatientRef(patientID int64) string {
	if patientID == 0 {
		return ""
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("patient:%d", patientID)))
	return "pt-" + hex.EncodeToString(sum[:4])
}

func (st *State) summary() Summary {
	return Summary{
		SessionID:      st.SessionID,
		Verified:       st.Verified,
		PatientRef:     MaskPatientRef(st.PatientID),
		ListedCount:    len(st.LastListed),
		Blocked:        st.Blocked,
		BlockReason:    st.BlockReason,
		CreatedAt:      st.CreatedAt,
		LastActivityAt: st.LastActivityAt,
	}
}

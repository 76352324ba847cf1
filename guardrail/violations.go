package guardrail

import (
	"hash/fnv"
	"sync"
	"time"
)

// ViolationKind classifies a recorded guardrail rejection.
type ViolationKind string

const (
	// ViolationRateLimit marks an attempt past the tier's call budget.
	ViolationRateLimit ViolationKind = "rate_limit"
	// ViolationInjection marks a prompt-injection attempt in the input.
	ViolationInjection ViolationKind = "injection"
	// ViolationHarmful marks harmful-content keywords in the input.
	ViolationHarmful ViolationKind = "harmful_content"
	// ViolationPII marks PII patterns found in the input.
	ViolationPII ViolationKind = "pii"
	// ViolationAuthorization marks a cross-patient access attempt.
	ViolationAuthorization ViolationKind = "authorization"
)

// Severity grades a violation for the blocking policy.
type Severity string

const (
	// SeverityLow violations are recorded but never block on their own.
	SeverityLow Severity = "low"
	// SeverityMedium violations count toward the block threshold.
	SeverityMedium Severity = "medium"
	// SeverityHigh violations count toward the threshold and, for
	// injection attempts, block immediately.
	SeverityHigh Severity = "high"
)

// ViolationRecord is one recorded guardrail rejection.
type ViolationRecord struct {
	SessionID string        `json:"session_id"`
	Kind      ViolationKind `json:"kind"`
	Severity  Severity      `json:"severity"`
	At        time.Time     `json:"at"`
}

const trackerShards = 32

// ViolationTracker accumulates violations per session in a rolling window.
// The rolling count drives the blocking decision in the engine.
type ViolationTracker struct {
	window time.Duration
	now    func() time.Time
	shards [trackerShards]trackerShard
}

type trackerShard struct {
	mu      sync.Mutex
	records map[string][]ViolationRecord
}

// NewViolationTracker creates a tracker with the given rolling window
// (default 10 minutes).
func NewViolationTracker(window time.Duration, clock func() time.Time) *ViolationTracker {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if clock == nil {
		clock = time.Now
	}

	t := &ViolationTracker{window: window, now: clock}
	for i := range t.shards {
		t.shards[i].records = make(map[string][]ViolationRecord)
	}

	return t
}

func (t *ViolationTracker) shardFor(id string) *trackerShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &t.shards[h.Sum32()%trackerShards]
}

// Record appends a violation and returns the session's rolling count,
// pruning entries older than the window.
func (t *ViolationTracker) Record(sessionID string, kind ViolationKind, severity Severity) int {
	now := t.now()
	cutoff := now.Add(-t.window)

	sh := t.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	recs := sh.records[sessionID]
	pruned := recs[:0]
	for _, r := range recs {
		if r.At.After(cutoff) {
			pruned = append(pruned, r)
		}
	}
	pruned = append(pruned, ViolationRecord{SessionID: sessionID, Kind: kind, Severity: severity, At: now})
	sh.records[sessionID] = pruned

	return len(pruned)
}

// Count returns the rolling violation count for a session.
func (t *ViolationTracker) Count(sessionID string) int {
	cutoff := t.now().Add(-t.window)

	sh := t.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	count := 0
	for _, r := range sh.records[sessionID] {
		if r.At.After(cutoff) {
			count++
		}
	}
	return count
}

// Forget drops the records for a session, typically on eviction.
func (t *ViolationTracker) Forget(sessionID string) {
	sh := t.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.records, sessionID)
}

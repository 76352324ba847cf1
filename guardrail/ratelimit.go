package guardrail

import (
	"hash/fnv"
	"sync"
	"time"
)

const limiterShards = 32

// RateLimiter enforces sliding-window limits on guarded calls per session,
// with a stricter tier for unverified sessions. Windows are sharded by
// session id so distinct sessions do not contend on one lock.
type RateLimiter struct {
	window          time.Duration
	unverifiedLimit int
	verifiedLimit   int
	now             func() time.Time
	shards          [limiterShards]limiterShard
}

type limiterShard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewRateLimiter creates a limiter. If window or a limit is zero the
// corresponding default applies (1 minute, 10 unverified, 30 verified).
func NewRateLimiter(window time.Duration, unverifiedLimit, verifiedLimit int, clock func() time.Time) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if unverifiedLimit <= 0 {
		unverifiedLimit = 10
	}
	if verifiedLimit <= 0 {
		verifiedLimit = 30
	}
	if clock == nil {
		clock = time.Now
	}

	rl := &RateLimiter{window: window, unverifiedLimit: unverifiedLimit, verifiedLimit: verifiedLimit, now: clock}
	for i := range rl.shards {
		rl.shards[i].windows = make(map[string][]time.Time)
	}

	return rl
}

func (rl *RateLimiter) shardFor(id string) *limiterShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &rl.shards[h.Sum32()%limiterShards]
}

// Limit returns the per-window call budget for the tier.
func (rl *RateLimiter) Limit(verified bool) int {
	if verified {
		return rl.verifiedLimit
	}
	return rl.unverifiedLimit
}

// Allow prunes the session's window, checks the tier limit and, when under
// the limit, records the attempt. The slot is consumed immediately: a later
// rejection downstream does not refund it.
func (rl *RateLimiter) Allow(sessionID string, verified bool) (bool, time.Duration) {
	limit := rl.Limit(verified)
	now := rl.now()
	cutoff := now.Add(-rl.window)

	sh := rl.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w := sh.windows[sessionID]
	pruned := w[:0]
	for _, t := range w {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= limit {
		sh.windows[sessionID] = pruned
		retry := pruned[0].Add(rl.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return false, retry
	}

	sh.windows[sessionID] = append(pruned, now)
	return true, 0
}

// InWindow reports how many attempts the session has in the current window.
func (rl *RateLimiter) InWindow(sessionID string) int {
	cutoff := rl.now().Add(-rl.window)

	sh := rl.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	count := 0
	for _, t := range sh.windows[sessionID] {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// Forget drops the window for a session, typically on eviction.
func (rl *RateLimiter) Forget(sessionID string) {
	sh := rl.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.windows, sessionID)
}

package session

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hupe1980/clinicmesh/logging"
)

// ErrUnknownSession is returned by strict lookups for ids the store has
// never seen. GetOrCreate never returns it.
var ErrUnknownSession = errors.New("session: unknown session")

// ErrInconsistentState is returned when a mutation would break the
// verification invariant. The affected session is blocked (fail closed)
// before the error is returned.
var ErrInconsistentState = errors.New("session: inconsistent state")

const shardCount = 32

// Store is a sharded, concurrency-safe map of session states. Each session
// carries its own mutex so operations on distinct ids never contend; the
// shard locks only guard map membership.
type Store struct {
	shards  [shardCount]shard
	now     func() time.Time
	logger  logging.Logger
	onEvict func(sessionID string)
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu    sync.Mutex
	state State
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// Clock overrides the time source, primarily for tests. The returned
	// values must come from a monotonic source; time.Now qualifies.
	Clock func() time.Time
	// Logger receives store lifecycle events. Defaults to NoOpLogger.
	Logger logging.Logger
	// OnEvict is called with each session id removed by ExpireOlderThan or
	// Delete, after the store's locks are released. Collaborators holding
	// per-session state keyed by id use it to drop theirs too.
	OnEvict func(sessionID string)
}

// NewStore constructs an empty session store.
func NewStore(optFns ...func(o *StoreOptions)) *Store {
	opts := StoreOptions{Clock: time.Now, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Store{now: opts.Clock, logger: opts.Logger, onEvict: opts.OnEvict}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*entry)
	}

	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.shards[h.Sum32()%shardCount]
}

// getOrCreateEntry returns the entry for id, creating it if absent. Exactly
// one creation wins under concurrent first access.
func (s *Store) getOrCreateEntry(id string) *entry {
	sh := s.shardFor(id)

	sh.mu.RLock()
	e, ok := sh.entries[id]
	sh.mu.RUnlock()
	if ok {
		return e
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok = sh.entries[id]; ok {
		return e
	}

	now := s.now()
	e = &entry{state: State{SessionID: id, CreatedAt: now, LastActivityAt: now}}
	sh.entries[id] = e
	s.logger.Debug("session.created", "session_id", id)

	return e
}

// GetOrCreate returns a copy of the session state, creating it lazily on
// first access. It never fails.
func (s *Store) GetOrCreate(id string) State {
	e := s.getOrCreateEntry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyState(&e.state)
}

// Get returns a copy of the state for a known id, or ErrUnknownSession.
// Intended for strict lookups (introspection surfaces); guarded calls use
// GetOrCreate.
func (s *Store) Get(id string) (State, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	e, ok := sh.entries[id]
	sh.mu.RUnlock()
	if !ok {
		return State{}, ErrUnknownSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyState(&e.state), nil
}

// Update runs fn against the live state under the session's lock, creating
// the session if needed. LastActivityAt is bumped after fn returns. If fn
// leaves the state violating the verification invariant the session is
// blocked and ErrInconsistentState is returned.
func (s *Store) Update(id string, fn func(*State)) error {
	e := s.getOrCreateEntry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.applyLocked(e, fn)
}

// WithSession locks the session for the duration of fn, providing the
// per-session critical section the guardrail pipeline runs inside. The
// invariant check and activity bump from Update apply on return even when
// fn fails, so partial mutations cannot leak an inconsistent state.
func (s *Store) WithSession(id string, fn func(*State) error) error {
	e := s.getOrCreateEntry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	ferr := fn(&e.state)
	if err := s.sealLocked(e); err != nil {
		return err
	}
	return ferr
}

func (s *Store) applyLocked(e *entry, fn func(*State)) error {
	fn(&e.state)
	return s.sealLocked(e)
}

func (s *Store) sealLocked(e *entry) error {
	e.state.LastActivityAt = s.now()
	if !e.state.Consistent() {
		e.state.Blocked = true
		e.state.BlockReason = "internal state inconsistency"
		e.state.BlockedUntil = time.Time{} // no TTL; stays closed
		s.logger.Error("session.inconsistent", "session_id", e.state.SessionID)
		return ErrInconsistentState
	}
	return nil
}

// MarkVerified binds the session to a patient, satisfying the invariant that
// a verified session always carries a patient id.
func (s *Store) MarkVerified(id string, patientID int64) error {
	return s.Update(id, func(st *State) { st.BindPatient(patientID) })
}

// RecordList stores the ordered appointment ids from the most recent listing
// so later ordinal references resolve against this exact result.
func (s *Store) RecordList(id string, appointmentIDs []int64) error {
	ids := make([]int64, len(appointmentIDs))
	copy(ids, appointmentIDs)
	return s.Update(id, func(st *State) { st.LastListed = ids })
}

// Snapshot returns the derived, redacted summary for a session.
func (s *Store) Snapshot(id string) (Summary, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	e, ok := sh.entries[id]
	sh.mu.RUnlock()
	if !ok {
		return Summary{}, ErrUnknownSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.summary(), nil
}

// ExpireOlderThan evicts sessions idle for longer than ttl and returns the
// number removed. The eviction hook runs after all shard locks are
// released.
func (s *Store) ExpireOlderThan(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)
	var evicted []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, e := range sh.entries {
			e.mu.Lock()
			idle := e.state.LastActivityAt.Before(cutoff)
			e.mu.Unlock()
			if idle {
				delete(sh.entries, id)
				evicted = append(evicted, id)
			}
		}
		sh.mu.Unlock()
	}
	if s.onEvict != nil {
		for _, id := range evicted {
			s.onEvict(id)
		}
	}
	if len(evicted) > 0 {
		s.logger.Info("session.expired", "count", len(evicted))
	}
	return len(evicted)
}

// Janitor runs ExpireOlderThan on the given interval until stop is closed.
func (s *Store) Janitor(ttl, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.ExpireOlderThan(ttl)
		}
	}
}

// Stats summarizes the store for monitoring surfaces.
type Stats struct {
	Total    int `json:"total"`
	Verified int `json:"verified"`
	Blocked  int `json:"blocked"`
}

// Stats counts the stored sessions by state.
func (s *Store) Stats() Stats {
	var stats Stats
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, e := range sh.entries {
			e.mu.Lock()
			stats.Total++
			if e.state.Verified {
				stats.Verified++
			}
			if e.state.Blocked {
				stats.Blocked++
			}
			e.mu.Unlock()
		}
		sh.mu.RUnlock()
	}
	return stats
}

// Delete removes a session, reporting whether it existed. The eviction hook
// runs after the shard lock is released.
func (s *Store) Delete(id string) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	_, ok := sh.entries[id]
	if ok {
		delete(sh.entries, id)
	}
	sh.mu.Unlock()
	if ok && s.onEvict != nil {
		s.onEvict(id)
	}
	return ok
}

func copyState(st *State) State {
	out := *st
	if st.LastListed != nil {
		out.LastListed = make([]int64, len(st.LastListed))
		copy(out.LastListed, st.LastListed)
	}
	return out
}

package history

import (
	"sync"

	"github.com/hupe1980/clinicmesh/model"
)

// Store keeps conversation transcripts keyed by session id.
type Store interface {
	// Get returns a copy of the transcript for the session, empty if none.
	Get(sessionID string) []model.Message

	// Replace overwrites the transcript for the session.
	Replace(sessionID string, messages []model.Message)

	// Clear drops the transcript for the session.
	Clear(sessionID string)
}

// DefaultMaxMessages bounds the retained transcript per session. Older
// messages are evicted first; the model still sees a coherent tail of the
// conversation.
const DefaultMaxMessages = 100

// InMemoryStore is a process-local Store protected by an RWMutex. Suitable
// for a single-instance deployment; transcripts do not survive a restart.
type InMemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string][]model.Message
	maxMessages int
}

// InMemoryStoreOptions configures an InMemoryStore.
type InMemoryStoreOptions struct {
	// MaxMessages bounds the transcript length per session.
	MaxMessages int
}

// NewInMemoryStore creates an empty in-memory history store.
func NewInMemoryStore(optFns ...func(o *InMemoryStoreOptions)) *InMemoryStore {
	opts := InMemoryStoreOptions{
		MaxMessages: DefaultMaxMessages,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &InMemoryStore{
		transcripts: make(map[string][]model.Message),
		maxMessages: opts.MaxMessages,
	}
}

// Get implements Store.
func (s *InMemoryStore) Get(sessionID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transcript, ok := s.transcripts[sessionID]
	if !ok {
		return nil
	}
	out := make([]model.Message, len(transcript))
	copy(out, transcript)
	return out
}

// Replace implements Store.
func (s *InMemoryStore) Replace(sessionID string, messages []model.Message) {
	trimmed := messages
	if len(trimmed) > s.maxMessages {
		trimmed = trimmed[len(trimmed)-s.maxMessages:]
	}
	stored := make([]model.Message, len(trimmed))
	copy(stored, trimmed)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[sessionID] = stored
}

// Clear implements Store.
func (s *InMemoryStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, sessionID)
}

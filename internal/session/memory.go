package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/apdpe/prediction-engine/internal/domain"
)

// MemoryStore is an in-process SessionStore for tests and single-node
// development runs. Sessions are stored as serialized JSON so callers never
// alias the stored state.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

// Save serializes and stores the session, replacing any previous state.
func (s *MemoryStore) Save(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	s.mu.Lock()
	s.sessions[session.ID] = data
	s.mu.Unlock()
	return nil
}

// Get returns a deep copy of the stored session.
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	data, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to deserialize session: %w", err)
	}
	return &sess, nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close releases the stored sessions.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.sessions = make(map[string][]byte)
	s.mu.Unlock()
	return nil
}

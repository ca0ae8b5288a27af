package session

import (
	"context"
	"sync"

	"github.com/linnemanlabs/arbiter/internal/llm"
)

// MemStore holds conversation history in memory. Suitable for dev/testing.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string][]*Turn
}

// NewMemStore initializes a new in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string][]*Turn)}
}

// Append stores a copy of the turn at the end of the session.
func (s *MemStore) Append(_ context.Context, key string, turn *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = append(s.sessions[key], copyTurn(turn))
	return nil
}

// History returns copies of all turns for the session, oldest first.
func (s *MemStore) History(_ context.Context, key string) ([]*Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sessions[key]
	out := make([]*Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, copyTurn(t))
	}
	return out, nil
}

// copyTurn clones a turn including its content blocks, so callers can never
// mutate stored history through a returned pointer.
func copyTurn(t *Turn) *Turn {
	cp := *t
	cp.Content = append([]llm.ContentBlock(nil), t.Content...)
	return &cp
}

// Clear removes the session.
func (s *MemStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

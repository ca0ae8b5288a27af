package interrupt

import (
	"context"
	"sync"
	"time"
)

// MemStore holds interrupts in memory. Suitable for dev/testing.
type MemStore struct {
	mu         sync.Mutex
	interrupts map[string]*Interrupt
}

// NewMemStore initializes a new in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{interrupts: make(map[string]*Interrupt)}
}

// Put stores a copy of the interrupt.
func (s *MemStore) Put(_ context.Context, in *Interrupt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *in
	s.interrupts[in.ID] = &cp
	return nil
}

// Get retrieves an interrupt by id. Returns a copy.
func (s *MemStore) Get(_ context.Context, id string) (*Interrupt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.interrupts[id]
	if !ok {
		return nil, false, nil
	}
	cp := *in
	return &cp, true, nil
}

// Resolve atomically transitions OPEN -> RESOLVED. First caller wins.
func (s *MemStore) Resolve(_ context.Context, id, response string) (*Interrupt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.interrupts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if in.State == StateResolved {
		return nil, ErrAlreadyResolved
	}
	in.State = StateResolved
	in.Response = response
	in.ResolvedAt = time.Now()
	cp := *in
	return &cp, nil
}

// Delete removes the interrupt. Deleting an unknown id is a no-op.
func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.interrupts, id)
	return nil
}

// Package memstore provides an in-memory implementation of claim.Store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/arbiter/internal/claim"
)

// Store holds claims and their audit trail in memory. Suitable for
// dev/testing.
type Store struct {
	mu        sync.RWMutex
	claims    map[int64]*claim.Claim
	decisions []*claim.Decision
	messages  []*claim.Message
	claimSeq  int64
	auditSeq  int64
	msgSeq    int64
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{claims: make(map[int64]*claim.Claim)}
}

func copyClaim(c *claim.Claim) *claim.Claim {
	cp := *c
	if c.Metadata != nil {
		cp.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// CreateClaim stores a copy of the claim, assigning its ID and initial
// version.
func (s *Store) CreateClaim(_ context.Context, c *claim.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimSeq++
	c.ID = s.claimSeq
	c.Version = 1
	s.claims[c.ID] = copyClaim(c)
	return nil
}

// GetClaim retrieves a claim by ID. Returns a copy.
func (s *Store) GetClaim(_ context.Context, id int64) (*claim.Claim, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, false, nil
	}
	return copyClaim(c), true, nil
}

// PutClaim writes the claim back under optimistic versioning: the stored
// version must still match c.Version, otherwise ErrVersionConflict.
func (s *Store) PutClaim(_ context.Context, c *claim.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.claims[c.ID]
	if !ok {
		return fmt.Errorf("claim %d: %w", c.ID, claim.ErrNotFound)
	}
	if cur.Version != c.Version {
		return fmt.Errorf("claim %d version %d superseded by %d: %w",
			c.ID, c.Version, cur.Version, claim.ErrVersionConflict)
	}
	c.Version++
	s.claims[c.ID] = copyClaim(c)
	return nil
}

// ListClaims returns claims newest-first. userID 0 means all claims.
func (s *Store) ListClaims(_ context.Context, userID int64) ([]*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*claim.Claim, 0, len(s.claims))
	for _, c := range s.claims {
		if userID != 0 && c.CreatedByID != userID {
			continue
		}
		out = append(out, copyClaim(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// AppendDecision stores a copy of the decision, assigning its ID.
func (s *Store) AppendDecision(_ context.Context, d *claim.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditSeq++
	d.ID = s.auditSeq
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	cp := *d
	s.decisions = append(s.decisions, &cp)
	return nil
}

// ListDecisions returns a claim's decisions oldest-first.
func (s *Store) ListDecisions(_ context.Context, claimID int64) ([]*claim.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*claim.Decision
	for _, d := range s.decisions {
		if d.ClaimID == claimID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// AppendMessage stores a copy of the message, assigning its ID.
func (s *Store) AppendMessage(_ context.Context, m *claim.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgSeq++
	m.ID = s.msgSeq
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	cp := *m
	s.messages = append(s.messages, &cp)
	return nil
}

// ListClaimMessages returns a claim's messages oldest-first.
func (s *Store) ListClaimMessages(_ context.Context, claimID int64) ([]*claim.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*claim.Message
	for _, m := range s.messages {
		if m.ClaimID != nil && *m.ClaimID == claimID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListUserMessages returns a user's general-chat messages oldest-first.
func (s *Store) ListUserMessages(_ context.Context, userID int64) ([]*claim.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*claim.Message
	for _, m := range s.messages {
		if m.ClaimID == nil && m.SenderID != nil && *m.SenderID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ClearMessages deletes the claim's chat when claimID is set, otherwise the
// user's general chat.
func (s *Store) ClearMessages(_ context.Context, claimID *int64, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	for _, m := range s.messages {
		var drop bool
		if claimID != nil {
			drop = m.ClaimID != nil && *m.ClaimID == *claimID
		} else {
			drop = m.ClaimID == nil && m.SenderID != nil && *m.SenderID == userID
		}
		if !drop {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return nil
}

// Package interrupt models the suspend/resume boundary of a triage run as
// an explicit two-phase protocol: a run raises an interrupt and terminates;
// a later, independent invocation resolves it with a human response and the
// resuming run consumes it.
package interrupt

import (
	"context"
	"errors"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// KindClaimApproval is the interrupt kind raised when a claim needs a human
// sign-off before it can proceed.
const KindClaimApproval = "claim-approval"

var (
	// ErrNotFound means the interrupt id is unknown.
	ErrNotFound = errors.New("interrupt not found")

	// ErrAlreadyResolved means the interrupt was resolved before. First
	// resolve wins; callers wanting idempotency must pre-check with Get.
	ErrAlreadyResolved = errors.New("interrupt already resolved")

	// ErrNotResolved means Consume was called on a still-open interrupt.
	ErrNotResolved = errors.New("interrupt not resolved")
)

// State tracks an interrupt's lifecycle.
type State string

const (
	StateOpen     State = "OPEN"
	StateResolved State = "RESOLVED"
)

// Reason is the structured snapshot of the facts a human must judge.
type Reason struct {
	ClaimID     int64   `json:"claim_id"`
	RiskLevel   string  `json:"risk_level"`
	Summary     string  `json:"summary"`
	ClaimAmount float64 `json:"claim_amount"`
}

// Interrupt is a persisted marker that a pipeline run has suspended pending
// an external decision. Lifetime is bounded by the enclosing run: created at
// suspension, deleted once resolved and consumed by the resuming run.
type Interrupt struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Reason     Reason    `json:"reason"`
	State      State     `json:"state"`
	Response   string    `json:"response,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
}

// Store is the persistence interface for interrupts. Resolve must be
// atomic: under concurrent calls for the same id exactly one succeeds.
type Store interface {
	Put(ctx context.Context, in *Interrupt) error
	Get(ctx context.Context, id string) (*Interrupt, bool, error)
	Resolve(ctx context.Context, id, response string) (*Interrupt, error)
	Delete(ctx context.Context, id string) error
}

// Broker manages suspension points for orchestration runs.
type Broker struct {
	store  Store
	logger log.Logger
}

// NewBroker creates a broker over the given store.
func NewBroker(store Store, logger log.Logger) *Broker {
	if logger == nil {
		logger = log.Nop()
	}
	return &Broker{store: store, logger: logger}
}

// Raise persists a new OPEN interrupt and returns it. The caller must stash
// the id (the claim carries it in metadata) and terminate its run with a
// suspended outcome; Raise never blocks waiting for the response.
func (b *Broker) Raise(ctx context.Context, kind string, reason Reason) (*Interrupt, error) {
	in := &Interrupt{
		ID:        ulid.Make().String(),
		Kind:      kind,
		Reason:    reason,
		State:     StateOpen,
		CreatedAt: time.Now(),
	}
	if err := b.store.Put(ctx, in); err != nil {
		return nil, err
	}
	b.logger.Info(ctx, "interrupt raised",
		"interrupt_id", in.ID,
		"kind", kind,
		"claim_id", reason.ClaimID,
		"risk", reason.RiskLevel,
	)
	return in, nil
}

// Resolve marks the interrupt RESOLVED and stores the response. Fails with
// ErrNotFound for unknown ids and ErrAlreadyResolved when called twice;
// double-resolution is rejected, never silently ignored.
func (b *Broker) Resolve(ctx context.Context, id, response string) error {
	if _, err := b.store.Resolve(ctx, id, response); err != nil {
		return err
	}
	b.logger.Info(ctx, "interrupt resolved", "interrupt_id", id)
	return nil
}

// Get returns the interrupt, or ok=false when unknown.
func (b *Broker) Get(ctx context.Context, id string) (*Interrupt, bool, error) {
	return b.store.Get(ctx, id)
}

// Consume returns a resolved interrupt and deletes it. The resuming run
// calls this exactly once to pick up the stored response; consuming an
// open interrupt fails with ErrNotResolved.
func (b *Broker) Consume(ctx context.Context, id string) (*Interrupt, error) {
	in, ok, err := b.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if in.State != StateResolved {
		return nil, ErrNotResolved
	}
	if err := b.store.Delete(ctx, id); err != nil {
		return nil, err
	}
	return in, nil
}

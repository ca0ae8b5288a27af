package claim

import "context"

// Store is the persistence interface for claims and their audit trail.
// Implementations must provide read-your-writes consistency per key and
// enforce optimistic versioning in PutClaim.
type Store interface {
	// CreateClaim persists a new claim, assigning its ID and setting
	// Version to 1.
	CreateClaim(ctx context.Context, c *Claim) error

	// GetClaim returns a copy of the claim, or ok=false when unknown.
	GetClaim(ctx context.Context, id int64) (*Claim, bool, error)

	// PutClaim writes the claim back, comparing-and-swapping on Version:
	// it fails with ErrVersionConflict when the stored version no longer
	// matches c.Version, otherwise stores the claim with Version+1 and
	// bumps c.Version to match.
	PutClaim(ctx context.Context, c *Claim) error

	// ListClaims returns claims newest-first. userID 0 means all claims.
	ListClaims(ctx context.Context, userID int64) ([]*Claim, error)

	// AppendDecision appends an immutable decision record.
	AppendDecision(ctx context.Context, d *Decision) error

	// ListDecisions returns a claim's decisions oldest-first.
	ListDecisions(ctx context.Context, claimID int64) ([]*Decision, error)

	// AppendMessage appends a conversational message.
	AppendMessage(ctx context.Context, m *Message) error

	// ListClaimMessages returns a claim's messages oldest-first.
	ListClaimMessages(ctx context.Context, claimID int64) ([]*Message, error)

	// ListUserMessages returns a user's general-chat messages (claim_id
	// unset, sender matching) oldest-first.
	ListUserMessages(ctx context.Context, userID int64) ([]*Message, error)

	// ClearMessages deletes a chat history: the claim's when claimID is
	// set, otherwise the user's general chat.
	ClearMessages(ctx context.Context, claimID *int64, userID int64) error
}

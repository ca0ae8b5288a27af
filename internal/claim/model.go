package claim

import (
	"time"

	"github.com/linnemanlabs/arbiter/internal/a2ui"
)

// Status tracks where a claim is in its lifecycle.
type Status string

const (
	// StatusDraft means created, editable, not yet submitted
	StatusDraft Status = "DRAFT"

	// StatusUnderAgentReview means the triage pipeline is running
	StatusUnderAgentReview Status = "UNDER_AGENT_REVIEW"

	// StatusPendingApproval means suspended awaiting a human decision
	StatusPendingApproval Status = "PENDING_APPROVAL"

	// StatusNeedsMoreInfo means returned to the claimant, editable again
	StatusNeedsMoreInfo Status = "NEEDS_MORE_INFO"

	// StatusApproved is terminal
	StatusApproved Status = "APPROVED"

	// StatusRejected is terminal
	StatusRejected Status = "REJECTED"
)

// Type is the line of business a claim falls under.
type Type string

const (
	TypeHealth   Type = "HEALTH"
	TypeAuto     Type = "AUTO"
	TypeProperty Type = "PROPERTY"
)

// Metadata keys used to carry interrupt bookkeeping on a claim.
const (
	MetaInterruptID     = "interrupt_id"
	MetaInterruptReason = "interrupt_reason"
)

// Claim is the unit of work moving through the triage pipeline. It is owned
// by the Service and mutated only through its operations; transport code
// gets copies.
type Claim struct {
	ID                 int64          `json:"id"`
	PolicyNumber       string         `json:"policy_number"`
	ClaimType          Type           `json:"claim_type"`
	ClaimAmount        float64        `json:"claim_amount"`
	IncidentDate       *time.Time     `json:"incident_date,omitempty"`
	Description        string         `json:"description"`
	FraudRiskScore     float64        `json:"fraud_risk_score"`
	DocumentsUploaded  bool           `json:"documents_uploaded"`
	Status             Status         `json:"status"`
	CreatedByID        int64          `json:"created_by_id"`
	AssignedApproverID *int64         `json:"assigned_approver_id,omitempty"`
	Version            int            `json:"version"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// InterruptID returns the interrupt id stashed in the claim metadata, if any.
func (c *Claim) InterruptID() string {
	if c.Metadata == nil {
		return ""
	}
	id, _ := c.Metadata[MetaInterruptID].(string)
	return id
}

// DecisionKind is the verdict a human records on a claim.
type DecisionKind string

const (
	DecisionApproved      DecisionKind = "APPROVED"
	DecisionRejected      DecisionKind = "REJECTED"
	DecisionNeedsMoreInfo DecisionKind = "NEEDS_MORE_INFO"
)

// Decision is an immutable audit record of a human verdict. Append-only,
// created exactly once per human decision.
type Decision struct {
	ID        int64        `json:"id"`
	ClaimID   int64        `json:"claim_id"`
	Kind      DecisionKind `json:"decision"`
	Reason    string       `json:"reason,omitempty"`
	DecidedBy int64        `json:"decided_by"`
	CreatedAt time.Time    `json:"created_at"`
}

// SenderKind identifies who authored a conversational message.
type SenderKind string

const (
	SenderUser     SenderKind = "USER"
	SenderAgent    SenderKind = "AGENT"
	SenderApprover SenderKind = "APPROVER"
)

// Message is one conversational turn in a claim's (or a user's general)
// chat. Append-only; used for audit and UI replay.
//
// A message with ClaimID == nil must carry a SenderID: the general-chat
// channel partitions history per user by sender.
type Message struct {
	ID         int64            `json:"id"`
	ClaimID    *int64           `json:"claim_id,omitempty"`
	Sender     SenderKind       `json:"sender_type"`
	SenderID   *int64           `json:"sender_id,omitempty"`
	Content    string           `json:"content"`
	Components []a2ui.Component `json:"components,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

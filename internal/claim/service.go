package claim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/arbiter/internal/interrupt"
)

// testInterruptPrefix marks interrupt ids injected by tests and seed data;
// Decide skips agent resume for them so fixtures do not need a live broker
// entry.
const testInterruptPrefix = "test-"

// Notifier is told when a claim suspends pending human approval.
// Notifications are best effort and never fail the triage run.
type Notifier interface {
	ApprovalRequested(ctx context.Context, c *Claim, reason *interrupt.Reason, interruptID string) error
}

// ServiceHooks are optional callbacks for metrics instrumentation.
type ServiceHooks struct {
	OnDecision func(kind DecisionKind)
}

// Service is the business boundary for claim operations. It owns the
// lifecycle state machine; the engine owns the triage pipeline.
type Service struct {
	store    Store
	engine   *Engine
	broker   *interrupt.Broker
	notifier Notifier
	logger   log.Logger
	hooks    ServiceHooks
}

// NewService creates a new claim service. notifier may be nil.
func NewService(store Store, engine *Engine, broker *interrupt.Broker, notifier Notifier, logger log.Logger, hooks ServiceHooks) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		engine:   engine,
		broker:   broker,
		notifier: notifier,
		logger:   logger,
		hooks:    hooks,
	}
}

// CreateInput carries the claimant-editable fields of a claim.
type CreateInput struct {
	PolicyNumber      string     `json:"policy_number"`
	ClaimType         Type       `json:"claim_type"`
	ClaimAmount       float64    `json:"claim_amount"`
	IncidentDate      *time.Time `json:"incident_date"`
	Description       string     `json:"description"`
	FraudRiskScore    float64    `json:"fraud_risk_score"`
	DocumentsUploaded bool       `json:"documents_uploaded"`
}

// Create registers a new claim in DRAFT. Incomplete drafts are allowed;
// completeness is only enforced at submission.
func (s *Service) Create(ctx context.Context, userID int64, in *CreateInput) (*Claim, error) {
	now := time.Now()
	c := &Claim{
		PolicyNumber:      in.PolicyNumber,
		ClaimType:         in.ClaimType,
		ClaimAmount:       in.ClaimAmount,
		IncidentDate:      in.IncidentDate,
		Description:       in.Description,
		FraudRiskScore:    in.FraudRiskScore,
		DocumentsUploaded: in.DocumentsUploaded,
		Status:            StatusDraft,
		CreatedByID:       userID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateClaim(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "claim created", "claim_id", c.ID, "user_id", userID)
	return c, nil
}

// Get retrieves a claim by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Claim, error) {
	c, ok, err := s.store.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("claim %d: %w", id, ErrNotFound)
	}
	return c, nil
}

// List returns claims newest-first. userID 0 lists every claim; approvers
// use that, claimants list their own.
func (s *Service) List(ctx context.Context, userID int64) ([]*Claim, error) {
	return s.store.ListClaims(ctx, userID)
}

// UpdateInput carries a partial claim edit; nil fields are left unchanged.
type UpdateInput struct {
	PolicyNumber      *string    `json:"policy_number"`
	ClaimType         *Type      `json:"claim_type"`
	ClaimAmount       *float64   `json:"claim_amount"`
	IncidentDate      *time.Time `json:"incident_date"`
	Description       *string    `json:"description"`
	FraudRiskScore    *float64   `json:"fraud_risk_score"`
	DocumentsUploaded *bool      `json:"documents_uploaded"`
}

// Update edits a claim's fields. Only the creator may edit, and only while
// the claim is DRAFT or NEEDS_MORE_INFO.
func (s *Service) Update(ctx context.Context, userID, id int64, in *UpdateInput) (*Claim, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.CreatedByID != userID {
		return nil, fmt.Errorf("claim %d is not yours: %w", id, ErrUnauthorized)
	}
	if c.Status != StatusDraft && c.Status != StatusNeedsMoreInfo {
		return nil, fmt.Errorf("claim %d is %s: %w", id, c.Status, ErrInvalidTransition)
	}

	if in.PolicyNumber != nil {
		c.PolicyNumber = *in.PolicyNumber
	}
	if in.ClaimType != nil {
		c.ClaimType = *in.ClaimType
	}
	if in.ClaimAmount != nil {
		c.ClaimAmount = *in.ClaimAmount
	}
	if in.IncidentDate != nil {
		c.IncidentDate = in.IncidentDate
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.FraudRiskScore != nil {
		c.FraudRiskScore = *in.FraudRiskScore
	}
	if in.DocumentsUploaded != nil {
		c.DocumentsUploaded = *in.DocumentsUploaded
	}
	c.UpdatedAt = time.Now()

	if err := s.store.PutClaim(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Submit runs the triage pipeline on a claim. It is allowed from DRAFT and
// NEEDS_MORE_INFO; the pipeline runs inline and the claim lands in
// NEEDS_MORE_INFO, APPROVED, or PENDING_APPROVAL before Submit returns.
func (s *Service) Submit(ctx context.Context, userID, id int64) (*Claim, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.CreatedByID != userID {
		return nil, fmt.Errorf("claim %d is not yours: %w", id, ErrUnauthorized)
	}
	if c.Status != StatusDraft && c.Status != StatusNeedsMoreInfo {
		return nil, fmt.Errorf("claim %d is %s: %w", id, c.Status, ErrInvalidTransition)
	}

	c.Status = StatusUnderAgentReview
	c.UpdatedAt = time.Now()
	if err := s.store.PutClaim(ctx, c); err != nil {
		return nil, err
	}

	rr, err := s.engine.ProcessClaim(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("triage claim %d: %w", id, err)
	}

	switch rr.Outcome {
	case OutcomeRequestInfo:
		c.Status = StatusNeedsMoreInfo
	case OutcomeReadyForApproval:
		// Low risk needs no human sign-off.
		c.Status = StatusApproved
	case OutcomeSuspended:
		c.Status = StatusPendingApproval
		if c.Metadata == nil {
			c.Metadata = make(map[string]any)
		}
		c.Metadata[MetaInterruptID] = rr.InterruptID
		c.Metadata[MetaInterruptReason] = map[string]any{
			"risk_level":   rr.Reason.RiskLevel,
			"summary":      rr.Reason.Summary,
			"claim_amount": rr.Reason.ClaimAmount,
		}
	}
	c.UpdatedAt = time.Now()
	if err := s.store.PutClaim(ctx, c); err != nil {
		return nil, err
	}

	s.appendAgentMessage(ctx, c.ID, rr.Message)

	if rr.Outcome == OutcomeSuspended && s.notifier != nil {
		if err := s.notifier.ApprovalRequested(ctx, c, rr.Reason, rr.InterruptID); err != nil {
			s.logger.Warn(ctx, "approval notification failed", "claim_id", c.ID, "error", err)
		}
	}

	s.logger.Info(ctx, "claim submitted",
		"claim_id", c.ID,
		"outcome", rr.Outcome,
		"risk", rr.Risk,
		"status", c.Status,
	)
	return c, nil
}

// DecideInput carries a human verdict on a suspended claim.
type DecideInput struct {
	Kind   DecisionKind `json:"decision"`
	Reason string       `json:"reason"`
}

// Decide records a human verdict on a PENDING_APPROVAL claim: it resolves
// the pending interrupt, resumes the suspended triage run, transitions the
// claim, and appends the audit decision. A claim in any other status is
// rejected with ErrInvalidTransition and left unmodified.
//
// Interrupt resolution and agent resume are best effort: the decision and
// the status transition are the source of truth and land even when the
// broker entry is gone or the oracle is down.
func (s *Service) Decide(ctx context.Context, approverID, id int64, in *DecideInput) (*Claim, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusPendingApproval {
		return nil, fmt.Errorf("claim %d is %s, not pending approval: %w", id, c.Status, ErrInvalidTransition)
	}

	var next Status
	var response string
	switch in.Kind {
	case DecisionApproved:
		next, response = StatusApproved, "approved"
	case DecisionRejected:
		next, response = StatusRejected, "rejected"
	case DecisionNeedsMoreInfo:
		next, response = StatusNeedsMoreInfo, "needs more information: "+in.Reason
	default:
		return nil, fmt.Errorf("unknown decision %q: %w", in.Kind, ErrInvalidTransition)
	}

	final := s.resumeTriage(ctx, c, response)

	c.Status = next
	if c.Metadata != nil {
		// Keep the reason for audit; the interrupt itself is spent.
		delete(c.Metadata, MetaInterruptID)
	}
	c.UpdatedAt = time.Now()
	if err := s.store.PutClaim(ctx, c); err != nil {
		return nil, err
	}

	if err := s.store.AppendDecision(ctx, &Decision{
		ClaimID:   id,
		Kind:      in.Kind,
		Reason:    in.Reason,
		DecidedBy: approverID,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, err
	}
	if s.hooks.OnDecision != nil {
		s.hooks.OnDecision(in.Kind)
	}

	if in.Kind == DecisionNeedsMoreInfo && in.Reason != "" {
		s.appendMessage(ctx, &Message{
			ClaimID:   &id,
			Sender:    SenderApprover,
			SenderID:  &approverID,
			Content:   in.Reason,
			CreatedAt: time.Now(),
		})
	}
	s.appendAgentMessage(ctx, id, final)

	s.logger.Info(ctx, "claim decided",
		"claim_id", id,
		"decision", in.Kind,
		"approver_id", approverID,
	)
	return c, nil
}

// resumeTriage resolves the claim's pending interrupt and resumes the
// suspended run, returning the closing narrative. Failures degrade to an
// empty narrative.
func (s *Service) resumeTriage(ctx context.Context, c *Claim, response string) string {
	interruptID := c.InterruptID()
	if interruptID == "" || strings.HasPrefix(interruptID, testInterruptPrefix) {
		return ""
	}
	if err := s.broker.Resolve(ctx, interruptID, response); err != nil {
		s.logger.Warn(ctx, "interrupt resolve failed", "claim_id", c.ID, "interrupt_id", interruptID, "error", err)
		return ""
	}
	final, err := s.engine.Resume(ctx, c, interruptID, response)
	if err != nil {
		s.logger.Warn(ctx, "triage resume failed", "claim_id", c.ID, "interrupt_id", interruptID, "error", err)
		return ""
	}
	return final
}

// Decisions returns a claim's audit trail oldest-first.
func (s *Service) Decisions(ctx context.Context, id int64) ([]*Decision, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListDecisions(ctx, id)
}

// Messages returns a claim's conversation oldest-first.
func (s *Service) Messages(ctx context.Context, id int64) ([]*Message, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListClaimMessages(ctx, id)
}

func (s *Service) appendAgentMessage(ctx context.Context, claimID int64, content string) {
	if content == "" {
		return
	}
	s.appendMessage(ctx, &Message{
		ClaimID:   &claimID,
		Sender:    SenderAgent,
		Content:   content,
		CreatedAt: time.Now(),
	})
}

func (s *Service) appendMessage(ctx context.Context, m *Message) {
	if err := s.store.AppendMessage(ctx, m); err != nil {
		s.logger.Warn(ctx, "message append failed", "error", err)
	}
}

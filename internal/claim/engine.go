package claim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/arbiter/internal/interrupt"
	"github.com/linnemanlabs/arbiter/internal/llm"
	"github.com/linnemanlabs/arbiter/internal/session"
)

var tracer = otel.Tracer("github.com/linnemanlabs/arbiter/internal/claim")

const (
	// ResponseTokens bounds a single narrative-generation call.
	ResponseTokens = 1024

	// SummaryTimeout bounds each oracle call inside a triage run. A timeout
	// is an oracle failure, not a fatal error.
	SummaryTimeout = 30 * time.Second
)

// Outcome is the terminal result of one orchestration run. Suspension is a
// tagged outcome, never stack unwinding: resume happens in a different
// invocation entirely.
type Outcome string

const (
	// OutcomeRequestInfo means required fields are missing; the claimant
	// must edit the claim and resubmit.
	OutcomeRequestInfo Outcome = "REQUEST_INFO"

	// OutcomeReadyForApproval means the claim is low risk and needs no
	// human sign-off.
	OutcomeReadyForApproval Outcome = "READY_FOR_APPROVAL"

	// OutcomeSuspended means the run raised an interrupt and terminated;
	// a human decision resumes it later.
	OutcomeSuspended Outcome = "SUSPENDED"
)

// RunResult is the outcome of one triage pipeline run.
type RunResult struct {
	Outcome       Outcome
	Risk          Risk
	MissingFields []string
	InterruptID   string
	Reason        *interrupt.Reason

	// Message is the user-facing narrative produced by the run.
	Message string
}

// EngineHooks are optional callbacks for metrics instrumentation.
type EngineHooks struct {
	OnOracleCall  func(inputTokens, outputTokens int, duration float64)
	OnOracleError func()
	OnRun         func(outcome Outcome, risk Risk, duration float64)
}

// Engine drives the triage pipeline for a single claim: a fixed,
// code-defined sequence (validate, assess, maybe suspend). The oracle is
// used only for narrative generation; validation and risk assessment are
// the trusted ground truth and never depend on it.
type Engine struct {
	provider llm.Provider
	broker   *interrupt.Broker
	sessions session.Store
	logger   log.Logger
	hooks    EngineHooks
}

// NewEngine creates a new triage engine with the given dependencies.
func NewEngine(provider llm.Provider, broker *interrupt.Broker, sessions session.Store, logger log.Logger, hooks EngineHooks) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		provider: provider,
		broker:   broker,
		sessions: sessions,
		logger:   logger,
		hooks:    hooks,
	}
}

// ProcessClaim executes one triage run. It terminates with a RunResult; a
// SUSPENDED outcome means an interrupt was raised and the run is over until
// Resume is called from a later invocation. Only interrupt/session
// persistence failures return an error.
func (e *Engine) ProcessClaim(ctx context.Context, c *Claim) (*RunResult, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "claim.triage")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("arbiter.claim.id", c.ID),
		attribute.Float64("arbiter.claim.amount", c.ClaimAmount),
	)

	L := e.logger.With("claim_id", c.ID, "policy", c.PolicyNumber)

	key := session.ClaimKey(c.ID)
	if err := e.appendTurn(ctx, key, "user", buildClaimPrompt(c)); err != nil {
		return nil, fmt.Errorf("append claim prompt: %w", err)
	}

	finish := func(rr *RunResult) *RunResult {
		span.SetAttributes(attribute.String("arbiter.triage.outcome", string(rr.Outcome)))
		if e.hooks.OnRun != nil {
			e.hooks.OnRun(rr.Outcome, rr.Risk, time.Since(start).Seconds())
		}
		return rr
	}

	// Step 1: completeness. Pure, never oracle-derived.
	if missing := Validate(c); len(missing) > 0 {
		msg := requestInfoMessage(missing)
		L.Info(ctx, "triage requesting info", "missing", missing)
		if err := e.appendTurn(ctx, key, "assistant", msg); err != nil {
			return nil, fmt.Errorf("append turn: %w", err)
		}
		return finish(&RunResult{
			Outcome:       OutcomeRequestInfo,
			MissingFields: missing,
			Message:       msg,
		}), nil
	}

	// Step 2: risk. Pure, never oracle-derived.
	risk := AssessRisk(c.ClaimAmount, c.FraudRiskScore)
	span.SetAttributes(attribute.String("arbiter.claim.risk", string(risk)))

	// Step 3: narrative. Oracle with deterministic fallback; a summary
	// failure never fails the run.
	summary := e.summarize(ctx, c, risk)

	if risk == RiskLow {
		L.Info(ctx, "triage auto path", "risk", risk)
		if err := e.appendTurn(ctx, key, "assistant", summary); err != nil {
			return nil, fmt.Errorf("append turn: %w", err)
		}
		return finish(&RunResult{
			Outcome: OutcomeReadyForApproval,
			Risk:    risk,
			Message: summary,
		}), nil
	}

	// Step 4: suspend for human sign-off.
	reason := interrupt.Reason{
		ClaimID:     c.ID,
		RiskLevel:   string(risk),
		Summary:     summary,
		ClaimAmount: c.ClaimAmount,
	}
	in, err := e.broker.Raise(ctx, interrupt.KindClaimApproval, reason)
	if err != nil {
		return nil, fmt.Errorf("raise interrupt: %w", err)
	}
	L.Info(ctx, "triage suspended", "risk", risk, "interrupt_id", in.ID)
	if err := e.appendTurn(ctx, key, "assistant", summary+"\n\nThis claim requires reviewer approval before it can proceed."); err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}
	return finish(&RunResult{
		Outcome:     OutcomeSuspended,
		Risk:        risk,
		InterruptID: in.ID,
		Reason:      &reason,
		Message:     summary,
	}), nil
}

// Resume re-enters a suspended run with the approver's response. It
// consumes the resolved interrupt, replays the claim's conversation, and
// emits a closing message. Validation and risk assessment are not re-run:
// their results are already baked into the suspended state, and the
// oracle's narrative is not stable across runs.
func (e *Engine) Resume(ctx context.Context, c *Claim, interruptID, response string) (string, error) {
	ctx, span := tracer.Start(ctx, "claim.resume")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("arbiter.claim.id", c.ID),
		attribute.String("arbiter.interrupt.id", interruptID),
	)

	in, err := e.broker.Consume(ctx, interruptID)
	if err != nil {
		return "", fmt.Errorf("consume interrupt %s: %w", interruptID, err)
	}

	key := session.ClaimKey(c.ID)
	turns, err := e.sessions.History(ctx, key)
	if err != nil {
		return "", fmt.Errorf("replay session %s: %w", key, err)
	}

	userMsg := fmt.Sprintf("The reviewer has responded to the approval request: %s", response)
	if err := e.appendTurn(ctx, key, "user", userMsg); err != nil {
		return "", fmt.Errorf("append turn: %w", err)
	}

	messages := append(session.Messages(turns), llm.Message{
		Role:    "user",
		Content: []llm.ContentBlock{{Type: "text", Text: userMsg + "\n\nProvide a brief closing message for the claimant."}},
	})

	final := e.complete(ctx, messages)
	if final == "" {
		final = resumeFallback(c, in, response)
	}
	if err := e.appendTurn(ctx, key, "assistant", final); err != nil {
		return "", fmt.Errorf("append turn: %w", err)
	}

	e.logger.Info(ctx, "triage resumed", "claim_id", c.ID, "interrupt_id", interruptID)
	return final, nil
}

func (e *Engine) appendTurn(ctx context.Context, key, role, text string) error {
	return e.sessions.Append(ctx, key, &session.Turn{
		Role:      role,
		Content:   []llm.ContentBlock{{Type: "text", Text: text}},
		Timestamp: time.Now(),
	})
}

// summarize asks the oracle for a reviewer-facing summary, falling back to
// a deterministic template on any failure.
func (e *Engine) summarize(ctx context.Context, c *Claim, risk Risk) string {
	msg := e.complete(ctx, []llm.Message{{
		Role:    "user",
		Content: []llm.ContentBlock{{Type: "text", Text: buildSummaryPrompt(c, risk)}},
	}})
	if msg == "" {
		return fallbackSummary(c, risk)
	}
	return msg
}

// complete runs one bounded oracle call and returns its text, or "" on any
// failure.
func (e *Engine) complete(ctx context.Context, messages []llm.Message) string {
	cctx, cancel := context.WithTimeout(ctx, SummaryTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.provider.Send(cctx, &llm.Request{
		MaxTokens: ResponseTokens,
		System:    triageSystemPrompt,
		Messages:  messages,
	})
	if err != nil {
		if e.hooks.OnOracleError != nil {
			e.hooks.OnOracleError()
		}
		e.logger.Warn(ctx, "oracle call failed, using fallback", "error", err)
		return ""
	}
	if e.hooks.OnOracleCall != nil {
		e.hooks.OnOracleCall(resp.Usage.InputTokens, resp.Usage.OutputTokens, time.Since(start).Seconds())
	}
	for _, block := range resp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return strings.TrimSpace(block.Text)
		}
	}
	return ""
}

const triageSystemPrompt = `You are an insurance claims triage assistant. Validation and risk
assessment have already been performed by the system; your only job is to
write clear, concise narrative for claimants and reviewers. Never state a
risk level or validation result other than the one you are given. Two to
three sentences, plain language, no markdown.`

// requestInfoMessage renders the deterministic clarification template.
func requestInfoMessage(missing []string) string {
	return fmt.Sprintf("Please provide the following missing details to proceed: %s.", strings.Join(missing, ", "))
}

// buildClaimPrompt renders the claim facts as the opening turn of the
// triage conversation.
func buildClaimPrompt(c *Claim) string {
	incident := "not provided"
	if c.IncidentDate != nil && !c.IncidentDate.IsZero() {
		incident = c.IncidentDate.Format(time.RFC3339)
	}
	return fmt.Sprintf(`Analyze this insurance claim:

Claim ID: %d
Policy: %s
Type: %s
Amount: $%.2f
Incident Date: %s
Description: %s
Fraud Risk Score: %.2f`,
		c.ID, c.PolicyNumber, c.ClaimType, c.ClaimAmount, incident, c.Description, c.FraudRiskScore)
}

func buildSummaryPrompt(c *Claim, risk Risk) string {
	return fmt.Sprintf(`%s

The system assessed this claim as %s risk. Summarize the claim for a
reviewer in two or three sentences.`, buildClaimPrompt(c), risk)
}

// fallbackSummary is the deterministic template used when the oracle is
// unavailable.
func fallbackSummary(c *Claim, risk Risk) string {
	return fmt.Sprintf("Claim #%d on policy %s: %s claim for $%.2f, assessed as %s risk (fraud score %.2f).",
		c.ID, c.PolicyNumber, c.ClaimType, c.ClaimAmount, risk, c.FraudRiskScore)
}

// resumeFallback is the deterministic closing message used when the oracle
// is unavailable during resume.
func resumeFallback(c *Claim, in *interrupt.Interrupt, response string) string {
	return fmt.Sprintf("Claim #%d: the reviewer's response to the %s request was %q.", c.ID, in.Kind, response)
}

// Package slack sends approval notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/arbiter/internal/claim"
	"github.com/linnemanlabs/arbiter/internal/interrupt"
)

const (
	maxSummaryLen = 3000
	httpTimeout   = 10 * time.Second
)

// Notifier posts pending-approval claims to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, notifications
// are a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// ApprovalRequested posts a suspended claim to the configured webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) ApprovalRequested(ctx context.Context, c *claim.Claim, reason *interrupt.Reason, interruptID string) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(c, reason, interruptID)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "approval notification sent", "claim_id", c.ID, "interrupt_id", interruptID)
	return nil
}

func buildMessage(c *claim.Claim, reason *interrupt.Reason, interruptID string) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(c, reason),
			{"type": "divider"},
			fieldsBlock(c, reason),
			{"type": "divider"},
			summaryBlock(reason),
			{"type": "divider"},
			contextBlock(c, interruptID),
		},
	}
}

func headerBlock(c *claim.Claim, reason *interrupt.Reason) map[string]any {
	text := fmt.Sprintf("%s Approval Needed: Claim #%d", riskEmoji(riskLevel(reason)), c.ID)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(c *claim.Claim, reason *interrupt.Reason) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Policy:* %s", c.PolicyNumber),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Type:* %s", c.ClaimType),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Amount:* $%.2f", c.ClaimAmount),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Risk:* %s", riskLevel(reason)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Fraud score:* %.2f", c.FraudRiskScore),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Claimant:* %d", c.CreatedByID),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func summaryBlock(reason *interrupt.Reason) map[string]any {
	text := ""
	if reason != nil {
		text = truncate(reason.Summary, maxSummaryLen)
	}
	if text == "" {
		text = "_No summary available._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Summary*\n\n%s", text),
		},
	}
}

func contextBlock(c *claim.Claim, interruptID string) map[string]any {
	ts := c.UpdatedAt
	if ts.IsZero() {
		ts = c.CreatedAt
	}

	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("arbiter • interrupt %s • %s", interruptID, ts.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func riskLevel(reason *interrupt.Reason) string {
	if reason == nil || reason.RiskLevel == "" {
		return "UNKNOWN"
	}
	return reason.RiskLevel
}

func riskEmoji(level string) string {
	switch strings.ToUpper(level) {
	case "HIGH":
		return "\U0001f534" // red circle
	case "MEDIUM":
		return "\U0001f7e1" // yellow circle
	case "LOW":
		return "\U0001f7e2" // green circle
	default:
		return "⚪" // white circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

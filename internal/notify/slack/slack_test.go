package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/arbiter/internal/claim"
	"github.com/linnemanlabs/arbiter/internal/interrupt"
)

func pendingClaim() *claim.Claim {
	return &claim.Claim{
		ID:             42,
		PolicyNumber:   "POL-9001",
		ClaimType:      claim.TypeAuto,
		ClaimAmount:    750000,
		FraudRiskScore: 0.2,
		Status:         claim.StatusPendingApproval,
		CreatedByID:    101,
		UpdatedAt:      time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC),
	}
}

func TestApprovalRequested_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	reason := &interrupt.Reason{
		ClaimID:     42,
		RiskLevel:   "HIGH",
		Summary:     "Very large auto claim.",
		ClaimAmount: 750000,
	}

	if err := n.ApprovalRequested(context.Background(), pendingClaim(), reason, "01JN123"); err != nil {
		t.Fatalf("ApprovalRequested: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, divider, fields, divider, summary, divider, context = 7 blocks
	if len(blocks) != 7 {
		t.Errorf("blocks count = %d, want 7", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "Claim #42") {
		t.Errorf("header text = %q, want to contain Claim #42", headerText)
	}
	if !strings.Contains(headerText, "\U0001f534") {
		t.Errorf("header should contain red circle for HIGH risk")
	}

	footer := blocks[6].(map[string]any)
	footerText := footer["elements"].([]any)[0].(map[string]any)["text"].(string)
	if !strings.Contains(footerText, "01JN123") {
		t.Errorf("context text = %q, want to contain interrupt id", footerText)
	}
}

func TestApprovalRequested_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("", log.Nop())
	if err := n.ApprovalRequested(context.Background(), pendingClaim(), nil, "01JN456"); err != nil {
		t.Fatalf("ApprovalRequested with empty URL should be no-op, got: %v", err)
	}
}

func TestApprovalRequested_TruncatesLongSummary(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	reason := &interrupt.Reason{
		ClaimID:   42,
		RiskLevel: "MEDIUM",
		Summary:   strings.Repeat("x", 4000),
	}
	if err := n.ApprovalRequested(context.Background(), pendingClaim(), reason, "01JN789"); err != nil {
		t.Fatalf("ApprovalRequested: %v", err)
	}

	blocks := got["blocks"].([]any)
	summarySection := blocks[4].(map[string]any)
	text := summarySection["text"].(map[string]any)["text"].(string)

	// Text includes the "*Summary*\n\n" prefix, so the summary portion is what
	// follows, truncated to maxSummaryLen chars.
	if len(text) > maxSummaryLen+len("*Summary*\n\n") {
		t.Errorf("summary text length = %d, expected <= %d", len(text), maxSummaryLen+len("*Summary*\n\n"))
	}
	if !strings.HasSuffix(text, "...") {
		t.Error("expected truncated summary to end with ...")
	}
}

func TestRiskEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level string
		want  string
	}{
		{"HIGH", "\U0001f534"},
		{"MEDIUM", "\U0001f7e1"},
		{"LOW", "\U0001f7e2"},
		{"medium", "\U0001f7e1"},
		{"", "⚪"},
		{"UNKNOWN", "⚪"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			t.Parallel()
			if got := riskEmoji(tt.level); got != tt.want {
				t.Errorf("riskEmoji(%q) = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("POL-1", "HIGH", "Large auto claim on an old policy.", 750000.0)
	f.Add("", "", "", 0.0)
	f.Add("<@U123> mention", "MEDIUM", "*bold* _italic_ ~strike~", -1.5)
	f.Add("pol\x00\x01\x02", "risk\nline", "summary\ttab", 1e12)
	f.Add(strings.Repeat("A", 5000), "HIGH", strings.Repeat("x", 10000), 99.99)
	f.Add("POL-2", "LOW", "```code block``` and <http://example.com|link>", 12.5)

	f.Fuzz(func(t *testing.T, policy, risk, summary string, amount float64) {
		c := &claim.Claim{
			ID:           7,
			PolicyNumber: policy,
			ClaimType:    claim.TypeProperty,
			ClaimAmount:  amount,
			Status:       claim.StatusPendingApproval,
			CreatedByID:  1,
		}
		reason := &interrupt.Reason{
			ClaimID:     7,
			RiskLevel:   risk,
			Summary:     summary,
			ClaimAmount: amount,
		}

		// Must not panic
		msg := buildMessage(c, reason, "fuzz-id")

		// Must produce valid JSON
		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("buildMessage JSON does not round-trip: %v", err)
		}

		blocks, ok := decoded["blocks"].([]any)
		if !ok {
			t.Fatal("expected blocks array")
		}
		if len(blocks) != 7 {
			t.Fatalf("blocks count = %d, want 7", len(blocks))
		}
	})
}

func TestApprovalRequested_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	err := n.ApprovalRequested(context.Background(), pendingClaim(), nil, "01JN999")
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want to contain status code 500", err.Error())
	}
}

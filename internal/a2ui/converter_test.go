package a2ui

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/arbiter/internal/llm"
)

type mockProvider struct {
	mu      sync.Mutex
	resp    *llm.Response
	err     error
	callIdx int
}

func (m *mockProvider) Send(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callIdx++
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callIdx
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		Content:    []llm.ContentBlock{{Type: "text", Text: text}},
		StopReason: llm.StopEnd,
	}
}

func TestExtract_TaggedBlock(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{}
	c := NewConverter(provider, log.Nop())

	text := "Here are your current claims.\n" +
		"```json\n" +
		`{"a2ui_intent": "list_claims_table", "claims": [` +
		`{"id": 1, "policy_number": "POL-1", "claim_type": "AUTO", "status": "DRAFT", "claim_amount": 1200.5}]}` +
		"\n```\n" +
		"Let me know if you need anything else."

	cleaned, comps := c.Extract(context.Background(), text, nil)

	if len(comps) != 1 {
		t.Fatalf("components = %d, want 1", len(comps))
	}
	comp := comps[0]
	if comp.Type != TypeTableCard {
		t.Errorf("type = %q, want table_card", comp.Type)
	}
	wantCols := []string{"ID", "Policy", "Type", "Status", "Amount"}
	if len(comp.Columns) != len(wantCols) {
		t.Fatalf("columns = %v", comp.Columns)
	}
	for i, col := range wantCols {
		if comp.Columns[i] != col {
			t.Errorf("column[%d] = %q, want %q", i, comp.Columns[i], col)
		}
	}
	if len(comp.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(comp.Rows))
	}
	if cleaned != "Here are your current claims.\n\nLet me know if you need anything else." {
		t.Errorf("cleaned = %q", cleaned)
	}
	if provider.calls() != 0 {
		t.Errorf("oracle calls = %d, want 0 once a tagged block matched", provider.calls())
	}
}

func TestExtract_TaggedBlockOnly(t *testing.T) {
	t.Parallel()

	c := NewConverter(&mockProvider{}, log.Nop())
	text := "```json\n" +
		`{"a2ui_intent": "claim_detail", "claim": {"id": 3, "policy_number": "POL-3", "status": "APPROVED", "claim_amount": 950.0}}` +
		"\n```"

	cleaned, comps := c.Extract(context.Background(), text, nil)

	if cleaned != FallbackText {
		t.Errorf("cleaned = %q, want fallback sentence", cleaned)
	}
	if len(comps) != 1 || comps[0].Type != TypeInfoCard {
		t.Fatalf("components = %+v", comps)
	}
	pairs := comps[0].Pairs
	if len(pairs) == 0 || pairs[0].Label != "Claim ID" || pairs[0].Value != "3" {
		t.Errorf("pairs = %+v", pairs)
	}
}

func TestExtract_UnknownIntentIgnored(t *testing.T) {
	t.Parallel()

	c := NewConverter(&mockProvider{}, log.Nop())
	text := "Some text.\n```json\n{\"a2ui_intent\": \"mystery\"}\n```"

	cleaned, comps := c.Extract(context.Background(), text, nil)
	if cleaned != text || comps != nil {
		t.Errorf("cleaned=%q comps=%v, want passthrough", cleaned, comps)
	}
}

func TestExtract_CardList(t *testing.T) {
	t.Parallel()

	c := NewConverter(&mockProvider{}, log.Nop())
	text := "```json\n" +
		`{"a2ui_intent": "list_claims_cards", "claims": [` +
		`{"id": 1, "policy_number": "POL-1", "claim_type": "AUTO", "status": "PENDING_APPROVAL", "claim_amount": 800000}]}` +
		"\n```"

	_, comps := c.Extract(context.Background(), text, nil)
	if len(comps) != 1 || comps[0].Type != TypeCardList {
		t.Fatalf("components = %+v", comps)
	}
	cards := comps[0].Cards
	if len(cards) != 1 {
		t.Fatalf("cards = %d, want 1", len(cards))
	}
	if cards[0].Color != "yellow" || cards[0].Icon != "⏳" {
		t.Errorf("card style = %q/%q, want yellow/⏳", cards[0].Color, cards[0].Icon)
	}
}

func TestExtract_ReconcileReplacesText(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{resp: textResponse(
		`{"intents": [{"a2ui_intent": "claim_detail", "claim": {"id": 9, "status": "DRAFT"}}], "replacement_text": "Claim 9 details below."}`,
	)}
	c := NewConverter(provider, log.Nop())

	payload := json.RawMessage(`{"type": "claim_detail", "claim": {"id": 9}}`)
	cleaned, comps := c.Extract(context.Background(), "Your claim number nine is a draft with ...", []json.RawMessage{payload})

	if cleaned != "Claim 9 details below." {
		t.Errorf("cleaned = %q, want replacement text", cleaned)
	}
	if len(comps) != 1 || comps[0].Type != TypeInfoCard {
		t.Fatalf("components = %+v", comps)
	}
}

func TestExtract_ReconcileEmptyReplacement(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{resp: textResponse(
		"```json\n" + `{"intents": [{"a2ui_intent": "create_claim_form", "fields": [{"name": "policy_number"}]}], "replacement_text": ""}` + "\n```",
	)}
	c := NewConverter(provider, log.Nop())

	cleaned, comps := c.Extract(context.Background(), "some narrative", []json.RawMessage{json.RawMessage(`{}`)})

	if cleaned != FallbackText {
		t.Errorf("cleaned = %q, want fallback sentence", cleaned)
	}
	if len(comps) != 1 || comps[0].Type != TypeFormCard || comps[0].SubmitLabel != "Create Claim" {
		t.Fatalf("components = %+v", comps)
	}
}

func TestExtract_ReconcileFailurePassesThrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider *mockProvider
	}{
		{"provider error", &mockProvider{err: errors.New("down")}},
		{"unparseable output", &mockProvider{resp: textResponse("not json at all")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewConverter(tt.provider, log.Nop())
			cleaned, comps := c.Extract(context.Background(), "original narrative", []json.RawMessage{json.RawMessage(`{}`)})
			if cleaned != "original narrative" || comps != nil {
				t.Errorf("cleaned=%q comps=%v, want untouched passthrough", cleaned, comps)
			}
		})
	}
}

func TestExtract_NoPayloadsSkipsOracle(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{}
	c := NewConverter(provider, log.Nop())

	cleaned, comps := c.Extract(context.Background(), "plain chat answer", nil)
	if cleaned != "plain chat answer" || comps != nil {
		t.Errorf("cleaned=%q comps=%v", cleaned, comps)
	}
	if provider.calls() != 0 {
		t.Errorf("oracle calls = %d, want 0", provider.calls())
	}
}

func TestStatusStyles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status string
		color  string
		icon   string
	}{
		{"DRAFT", "gray", "📝"},
		{"UNDER_AGENT_REVIEW", "blue", "🤖"},
		{"PENDING_APPROVAL", "yellow", "⏳"},
		{"NEEDS_MORE_INFO", "orange", "❓"},
		{"APPROVED", "green", "✅"},
		{"REJECTED", "red", "❌"},
		{"BOGUS", "gray", "📝"},
	}
	for _, tt := range tests {
		if got := StatusColor(tt.status); got != tt.color {
			t.Errorf("StatusColor(%q) = %q, want %q", tt.status, got, tt.color)
		}
		if got := StatusIcon(tt.status); got != tt.icon {
			t.Errorf("StatusIcon(%q) = %q, want %q", tt.status, got, tt.icon)
		}
	}
}

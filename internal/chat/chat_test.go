package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/arbiter/internal/a2ui"
	"github.com/linnemanlabs/arbiter/internal/claim"
	"github.com/linnemanlabs/arbiter/internal/claim/memstore"
	"github.com/linnemanlabs/arbiter/internal/interrupt"
	"github.com/linnemanlabs/arbiter/internal/llm"
	"github.com/linnemanlabs/arbiter/internal/session"
)

// mockProvider returns preconfigured responses in sequence.
type mockProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	errs      []error
	callIdx   int
}

func (m *mockProvider) Send(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.callIdx
	m.callIdx++

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return endTurn("fallback"), nil
}

func endTurn(text string) *llm.Response {
	return &llm.Response{
		Content:    []llm.ContentBlock{{Type: "text", Text: text}},
		StopReason: llm.StopEnd,
		Usage:      llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func toolUse(id, name, input string) *llm.Response {
	return &llm.Response{
		Content: []llm.ContentBlock{
			{Type: "text", Text: "Let me look that up."},
			{Type: "tool_use", ID: id, Name: name, Input: []byte(input)},
		},
		StopReason: llm.StopToolUse,
		Usage:      llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

type env struct {
	chat   *Service
	claims *claim.Service
	store  *memstore.Store
}

func newEnv(provider llm.Provider) *env {
	store := memstore.New()
	broker := interrupt.NewBroker(interrupt.NewMemStore(), log.Nop())
	sessions := session.NewMemStore()
	engine := claim.NewEngine(provider, broker, sessions, log.Nop(), claim.EngineHooks{})
	claims := claim.NewService(store, engine, broker, nil, log.Nop(), claim.ServiceHooks{})

	// reconciliation is not under test here; tagged extraction works
	// without a provider
	converter := a2ui.NewConverter(nil, log.Nop())
	return &env{
		chat:   NewService(claims, store, sessions, provider, converter, log.Nop(), Hooks{}),
		claims: claims,
		store:  store,
	}
}

func TestSend_PlainReply(t *testing.T) {
	t.Parallel()

	e := newEnv(&mockProvider{responses: []*llm.Response{endTurn("Hello! How can I help?")}})

	reply, err := e.chat.Send(context.Background(), 1, nil, "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Sender != claim.SenderAgent {
		t.Errorf("sender = %q, want AGENT", reply.Sender)
	}
	if reply.Content != "Hello! How can I help?" {
		t.Errorf("content = %q", reply.Content)
	}
	if len(reply.Components) != 0 {
		t.Errorf("components = %d, want 0", len(reply.Components))
	}

	hist, err := e.chat.History(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history = %d, want user + agent", len(hist))
	}
	if hist[0].Sender != claim.SenderUser || hist[1].Sender != claim.SenderAgent {
		t.Errorf("senders = %q, %q", hist[0].Sender, hist[1].Sender)
	}
}

func TestSend_ToolLoopWithComponents(t *testing.T) {
	t.Parallel()

	final := "Here are your claims.\n```json\n" +
		`{"a2ui_intent": "list_claims_table", "claims": []}` +
		"\n```"
	e := newEnv(&mockProvider{responses: []*llm.Response{
		toolUse("tu_1", "list_claims", `{"format": "table"}`),
		endTurn(final),
	}})

	reply, err := e.chat.Send(context.Background(), 1, nil, "show my claims")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(reply.Components) != 1 || reply.Components[0].Type != a2ui.TypeTableCard {
		t.Fatalf("components = %+v", reply.Components)
	}
	if reply.Content != "Here are your claims." {
		t.Errorf("content = %q, want tagged block stripped", reply.Content)
	}
}

func TestSend_UnknownToolReported(t *testing.T) {
	t.Parallel()

	e := newEnv(&mockProvider{responses: []*llm.Response{
		toolUse("tu_1", "launch_rockets", `{}`),
		endTurn("Sorry, I cannot do that."),
	}})

	reply, err := e.chat.Send(context.Background(), 1, nil, "do something odd")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Content != "Sorry, I cannot do that." {
		t.Errorf("content = %q", reply.Content)
	}
}

func TestSend_ProviderOutageDegrades(t *testing.T) {
	t.Parallel()

	e := newEnv(&mockProvider{errs: []error{fmt.Errorf("%w: rate limited", llm.ErrUnavailable)}})

	reply, err := e.chat.Send(context.Background(), 1, nil, "hi")
	if err != nil {
		t.Fatalf("Send: %v, outages must degrade, not fail", err)
	}
	if len(reply.Components) != 1 || reply.Components[0].Title != "Service Busy" {
		t.Fatalf("components = %+v, want busy card", reply.Components)
	}
	if reply.Content != busyText {
		t.Errorf("content = %q", reply.Content)
	}

	// the degraded reply still lands in history
	hist, _ := e.chat.History(context.Background(), 1, nil)
	if len(hist) != 2 {
		t.Errorf("history = %d, want 2", len(hist))
	}
}

func TestSend_EmptyMessage(t *testing.T) {
	t.Parallel()

	e := newEnv(&mockProvider{})
	if _, err := e.chat.Send(context.Background(), 1, nil, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestSend_ClaimChatOwnership(t *testing.T) {
	t.Parallel()

	e := newEnv(&mockProvider{responses: []*llm.Response{endTurn("About your claim.")}})
	c, err := e.claims.Create(context.Background(), 1, &claim.CreateInput{PolicyNumber: "POL-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := e.chat.Send(context.Background(), 2, &c.ID, "whose claim is this"); !errors.Is(err, claim.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}

	reply, err := e.chat.Send(context.Background(), 1, &c.ID, "tell me about this claim")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.ClaimID == nil || *reply.ClaimID != c.ID {
		t.Errorf("reply claim id = %v, want %d", reply.ClaimID, c.ID)
	}

	hist, err := e.chat.History(context.Background(), 1, &c.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Errorf("history = %d, want 2", len(hist))
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	e := newEnv(&mockProvider{responses: []*llm.Response{endTurn("Hi."), endTurn("Fresh start.")}})
	if _, err := e.chat.Send(context.Background(), 1, nil, "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := e.chat.Clear(context.Background(), 1, nil); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	hist, _ := e.chat.History(context.Background(), 1, nil)
	if len(hist) != 0 {
		t.Errorf("history = %d, want 0 after Clear", len(hist))
	}
}

func TestSend_ToolBudget(t *testing.T) {
	t.Parallel()

	// a provider that always wants another tool round
	responses := make([]*llm.Response, 0, MaxToolRounds+1)
	for i := 0; i <= MaxToolRounds; i++ {
		responses = append(responses, toolUse(fmt.Sprintf("tu_%d", i), "list_claims", `{}`))
	}
	e := newEnv(&mockProvider{responses: responses})

	reply, err := e.chat.Send(context.Background(), 1, nil, "loop forever")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Content == "" {
		t.Error("expected a terminal message when the tool budget runs out")
	}
}

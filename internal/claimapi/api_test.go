package claimapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/arbiter/internal/a2ui"
	"github.com/linnemanlabs/arbiter/internal/authmw"
	"github.com/linnemanlabs/arbiter/internal/chat"
	"github.com/linnemanlabs/arbiter/internal/claim"
	"github.com/linnemanlabs/arbiter/internal/claim/memstore"
	"github.com/linnemanlabs/arbiter/internal/interrupt"
	"github.com/linnemanlabs/arbiter/internal/llm"
	"github.com/linnemanlabs/arbiter/internal/session"
)

// stubProvider answers every call with a fixed text block.
type stubProvider struct{}

func (stubProvider) Send(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	return &llm.Response{
		Content:    []llm.ContentBlock{{Type: "text", Text: "stub reply"}},
		StopReason: llm.StopEnd,
	}, nil
}

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	store := memstore.New()
	broker := interrupt.NewBroker(interrupt.NewMemStore(), log.Nop())
	sessions := session.NewMemStore()
	engine := claim.NewEngine(stubProvider{}, broker, sessions, log.Nop(), claim.EngineHooks{})
	claims := claim.NewService(store, engine, broker, nil, log.Nop(), claim.ServiceHooks{})
	chatSvc := chat.NewService(claims, store, sessions, stubProvider{}, a2ui.NewConverter(nil, log.Nop()), log.Nop(), chat.Hooks{})

	api := New(nil, claims, chatSvc)
	r := chi.NewRouter()
	r.Use(authmw.WithIdentity())
	api.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, userID int64, role, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != 0 {
		req.Header.Set("X-User-Id", fmt.Sprintf("%d", userID))
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: unparseable body %q", method, path, rec.Body.String())
		}
	}
	return rec, out
}

const completeClaimBody = `{
	"policy_number": "POL-1",
	"claim_type": "AUTO",
	"claim_amount": %s,
	"incident_date": "2026-03-14T00:00:00Z",
	"description": "collision",
	"fraud_risk_score": 0.1
}`

func createClaim(t *testing.T, r http.Handler, userID int64, amount string) int64 {
	t.Helper()
	rec, body := doJSON(t, r, http.MethodPost, "/api/v1/claims", userID, "", fmt.Sprintf(completeClaimBody, amount))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", rec.Code, rec.Body.String())
	}
	return int64(body["id"].(float64))
}

func TestCreateAndGetClaim(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	id := createClaim(t, r, 1, "1200")

	rec, body := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/claims/%d", id), 1, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	if body["status"] != "DRAFT" || body["policy_number"] != "POL-1" {
		t.Errorf("claim = %v", body)
	}
}

func TestGetClaim_Access(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	id := createClaim(t, r, 1, "1200")
	path := fmt.Sprintf("/api/v1/claims/%d", id)

	if rec, _ := doJSON(t, r, http.MethodGet, path, 2, "", ""); rec.Code != http.StatusForbidden {
		t.Errorf("stranger: status = %d, want 403", rec.Code)
	}
	if rec, _ := doJSON(t, r, http.MethodGet, path, 2, "approver", ""); rec.Code != http.StatusOK {
		t.Errorf("approver: status = %d, want 200", rec.Code)
	}
	if rec, _ := doJSON(t, r, http.MethodGet, "/api/v1/claims/999", 1, "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown: status = %d, want 404", rec.Code)
	}
	if rec, _ := doJSON(t, r, http.MethodGet, "/api/v1/claims/bogus", 1, "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}
	if rec, _ := doJSON(t, r, http.MethodGet, path, 0, "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no identity: status = %d, want 401", rec.Code)
	}
}

func TestListClaims(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	createClaim(t, r, 1, "1000")
	createClaim(t, r, 2, "2000")

	_, body := doJSON(t, r, http.MethodGet, "/api/v1/claims", 1, "", "")
	if got := len(body["claims"].([]any)); got != 1 {
		t.Errorf("claimant list = %d, want 1", got)
	}

	_, body = doJSON(t, r, http.MethodGet, "/api/v1/claims", 9, "approver", "")
	if got := len(body["claims"].([]any)); got != 2 {
		t.Errorf("approver list = %d, want 2", got)
	}
}

func TestSubmitAndDecideFlow(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	id := createClaim(t, r, 1, "750000")

	rec, body := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/claims/%d/submit", id), 1, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status = %d: %s", rec.Code, rec.Body.String())
	}
	if body["status"] != "PENDING_APPROVAL" {
		t.Fatalf("status = %v, want PENDING_APPROVAL", body["status"])
	}

	// claimants cannot decide
	rec, _ = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/claims/%d/approve", id), 1, "", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("claimant approve: status = %d, want 403", rec.Code)
	}

	rec, body = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/claims/%d/approve", id), 9, "approver", `{"reason": "looks fine"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: status = %d: %s", rec.Code, rec.Body.String())
	}
	if body["status"] != "APPROVED" {
		t.Errorf("status = %v, want APPROVED", body["status"])
	}

	// deciding twice conflicts
	rec, _ = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/claims/%d/reject", id), 9, "approver", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("second decision: status = %d, want 409", rec.Code)
	}

	_, body = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/claims/%d/decisions", id), 9, "approver", "")
	if got := len(body["decisions"].([]any)); got != 1 {
		t.Errorf("decisions = %d, want 1", got)
	}
}

func TestRequestInfoFlow(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	id := createClaim(t, r, 1, "600000")
	doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/claims/%d/submit", id), 1, "", "")

	rec, body := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/claims/%d/request-info", id), 9, "approver", `{"reason": "need the invoice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("request-info: status = %d: %s", rec.Code, rec.Body.String())
	}
	if body["status"] != "NEEDS_MORE_INFO" {
		t.Errorf("status = %v", body["status"])
	}

	// claimant may now edit and resubmit
	rec, _ = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/claims/%d", id), 1, "", `{"claim_amount": 450000}`)
	if rec.Code != http.StatusOK {
		t.Errorf("update: status = %d", rec.Code)
	}
	rec, body = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/claims/%d/submit", id), 1, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("resubmit: status = %d", rec.Code)
	}
	if body["status"] != "PENDING_APPROVAL" {
		t.Errorf("status = %v, want PENDING_APPROVAL for a medium risk claim", body["status"])
	}
}

func TestUpdateClaim_InvalidTransition(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	id := createClaim(t, r, 1, "750000")
	doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/claims/%d/submit", id), 1, "", "")

	rec, _ := doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/claims/%d", id), 1, "", `{"claim_amount": 1}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("update pending claim: status = %d, want 409", rec.Code)
	}
}

func TestChat(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/api/v1/chat/send", 1, "", `{"content": "hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("send: status = %d: %s", rec.Code, rec.Body.String())
	}
	if body["sender_type"] != "AGENT" || body["content"] != "stub reply" {
		t.Errorf("reply = %v", body)
	}

	rec, _ = doJSON(t, r, http.MethodPost, "/api/v1/chat/send", 1, "", `{"content": "  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty send: status = %d, want 400", rec.Code)
	}

	_, body = doJSON(t, r, http.MethodGet, "/api/v1/chat/messages", 1, "", "")
	if got := len(body["messages"].([]any)); got != 2 {
		t.Errorf("messages = %d, want 2", got)
	}

	rec, _ = doJSON(t, r, http.MethodDelete, "/api/v1/chat/messages", 1, "", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("clear: status = %d, want 204", rec.Code)
	}
	_, body = doJSON(t, r, http.MethodGet, "/api/v1/chat/messages", 1, "", "")
	if msgs, _ := body["messages"].([]any); len(msgs) != 0 {
		t.Errorf("messages = %d, want 0 after clear", len(msgs))
	}
}

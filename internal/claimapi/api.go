// Package claimapi exposes the claims and chat services over HTTP.
package claimapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/arbiter/internal/authmw"
	"github.com/linnemanlabs/arbiter/internal/chat"
	"github.com/linnemanlabs/arbiter/internal/claim"
)

// ClaimService defines the claim operations claimapi needs.
type ClaimService interface {
	Create(ctx context.Context, userID int64, in *claim.CreateInput) (*claim.Claim, error)
	Get(ctx context.Context, id int64) (*claim.Claim, error)
	List(ctx context.Context, userID int64) ([]*claim.Claim, error)
	Update(ctx context.Context, userID, id int64, in *claim.UpdateInput) (*claim.Claim, error)
	Submit(ctx context.Context, userID, id int64) (*claim.Claim, error)
	Decide(ctx context.Context, approverID, id int64, in *claim.DecideInput) (*claim.Claim, error)
	Decisions(ctx context.Context, id int64) ([]*claim.Decision, error)
	Messages(ctx context.Context, id int64) ([]*claim.Message, error)
}

// ChatService defines the chat operations claimapi needs.
type ChatService interface {
	Send(ctx context.Context, userID int64, claimID *int64, content string) (*claim.Message, error)
	History(ctx context.Context, userID int64, claimID *int64) ([]*claim.Message, error)
	Clear(ctx context.Context, userID int64, claimID *int64) error
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	claims ClaimService
	chat   ChatService
}

// New creates a new API handler.
func New(logger log.Logger, claims ClaimService, chatSvc ChatService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if claims == nil {
		panic(xerrors.New("claim service is required"))
	}
	if chatSvc == nil {
		panic(xerrors.New("chat service is required"))
	}
	return &API{
		logger: logger,
		claims: claims,
		chat:   chatSvc,
	}
}

// RegisterRoutes attaches API endpoints to the router. All routes assume
// authmw.WithIdentity has already run.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/claims", func(r chi.Router) {
			r.Post("/", a.handleCreateClaim)
			r.Get("/", a.handleListClaims)
			r.Get("/{id}", a.handleGetClaim)
			r.Put("/{id}", a.handleUpdateClaim)
			r.Post("/{id}/submit", a.handleSubmitClaim)
			r.Post("/{id}/approve", a.decideHandler(claim.DecisionApproved))
			r.Post("/{id}/reject", a.decideHandler(claim.DecisionRejected))
			r.Post("/{id}/request-info", a.decideHandler(claim.DecisionNeedsMoreInfo))
			r.Get("/{id}/decisions", a.handleListDecisions)
			r.Get("/{id}/messages", a.handleListClaimMessages)
		})
		r.Route("/chat", func(r chi.Router) {
			r.Post("/send", a.handleChatSend)
			r.Get("/messages", a.handleChatHistory)
			r.Delete("/messages", a.handleChatClear)
		})
	})
}

func identity(w http.ResponseWriter, r *http.Request) (authmw.Identity, bool) {
	id, ok := authmw.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
	}
	return id, ok
}

func claimID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, `{"error":"invalid claim id"}`, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, claim.ErrNotFound):
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	case errors.Is(err, claim.ErrUnauthorized):
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	case errors.Is(err, claim.ErrInvalidTransition):
		http.Error(w, `{"error":"invalid transition"}`, http.StatusConflict)
	case errors.Is(err, claim.ErrVersionConflict):
		http.Error(w, `{"error":"conflicting update, retry"}`, http.StatusConflict)
	case errors.Is(err, chat.ErrEmptyMessage):
		http.Error(w, `{"error":"empty message"}`, http.StatusBadRequest)
	default:
		a.logger.Error(r.Context(), err, "request failed", "path", r.URL.Path)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

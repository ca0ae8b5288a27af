package claimapi

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/arbiter/internal/claim"
)

func (a *API) handleCreateClaim(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}

	var in claim.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	c, err := a.claims.Create(r.Context(), ident.UserID, &in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleListClaims(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}

	// approvers see every claim, claimants their own
	userID := ident.UserID
	if ident.IsApprover() {
		userID = 0
	}

	claims, err := a.claims.List(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"claims": claims})
}

// readableClaim fetches the claim and enforces read access: the creator or
// any approver.
func (a *API) readableClaim(w http.ResponseWriter, r *http.Request) (*claim.Claim, bool) {
	ident, ok := identity(w, r)
	if !ok {
		return nil, false
	}
	id, ok := claimID(w, r)
	if !ok {
		return nil, false
	}

	c, err := a.claims.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return nil, false
	}
	if c.CreatedByID != ident.UserID && !ident.IsApprover() {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return nil, false
	}
	return c, true
}

func (a *API) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	c, ok := a.readableClaim(w, r)
	if !ok {
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.Int64("arbiter.claim.id", c.ID),
		attribute.String("arbiter.claim.status", string(c.Status)),
	)

	a.writeJSON(w, http.StatusOK, c)
}

func (a *API) handleUpdateClaim(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := claimID(w, r)
	if !ok {
		return
	}

	var in claim.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	c, err := a.claims.Update(r.Context(), ident.UserID, id, &in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, c)
}

func (a *API) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := claimID(w, r)
	if !ok {
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int64("arbiter.claim.id", id))

	c, err := a.claims.Submit(r.Context(), ident.UserID, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	span.SetAttributes(attribute.String("arbiter.claim.status", string(c.Status)))
	a.writeJSON(w, http.StatusOK, c)
}

// decideHandler builds the handler for one decision verb. Approver role
// required.
func (a *API) decideHandler(kind claim.DecisionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := identity(w, r)
		if !ok {
			return
		}
		if !ident.IsApprover() {
			http.Error(w, `{"error":"approver role required"}`, http.StatusForbidden)
			return
		}
		id, ok := claimID(w, r)
		if !ok {
			return
		}

		var body struct {
			Reason string `json:"reason"`
		}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
				return
			}
		}

		c, err := a.claims.Decide(r.Context(), ident.UserID, id, &claim.DecideInput{
			Kind:   kind,
			Reason: body.Reason,
		})
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		a.writeJSON(w, http.StatusOK, c)
	}
}

func (a *API) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	c, ok := a.readableClaim(w, r)
	if !ok {
		return
	}

	decisions, err := a.claims.Decisions(r.Context(), c.ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

func (a *API) handleListClaimMessages(w http.ResponseWriter, r *http.Request) {
	c, ok := a.readableClaim(w, r)
	if !ok {
		return
	}

	messages, err := a.claims.Messages(r.Context(), c.ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

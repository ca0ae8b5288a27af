package claimapi

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// chatClaimID parses the optional claim scope from the query string.
func chatClaimID(w http.ResponseWriter, r *http.Request) (*int64, bool) {
	raw := r.URL.Query().Get("claim_id")
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, `{"error":"invalid claim_id"}`, http.StatusBadRequest)
		return nil, false
	}
	return &id, true
}

func (a *API) handleChatSend(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}

	var in struct {
		ClaimID *int64 `json:"claim_id"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	reply, err := a.chat.Send(r.Context(), ident.UserID, in.ClaimID, in.Content)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, reply)
}

func (a *API) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	cid, ok := chatClaimID(w, r)
	if !ok {
		return
	}

	messages, err := a.chat.History(r.Context(), ident.UserID, cid)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (a *API) handleChatClear(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	cid, ok := chatClaimID(w, r)
	if !ok {
		return
	}

	if err := a.chat.Clear(r.Context(), ident.UserID, cid); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

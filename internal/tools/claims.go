package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/linnemanlabs/arbiter/internal/claim"
)

// binding scopes the claim tools to the requesting user. Every tool call
// acts on that user's claims only.
type binding struct {
	svc    *claim.Service
	userID int64
}

// ForUser builds the claim tool registry bound to one user.
func ForUser(svc *claim.Service, userID int64) *Registry {
	b := &binding{svc: svc, userID: userID}
	r := NewRegistry()
	r.Register(&listClaims{b})
	r.Register(&getClaim{b})
	r.Register(&claimFormSchema{})
	r.Register(&createClaim{b})
	r.Register(&updateFormSchema{b})
	r.Register(&updateClaim{b})
	r.Register(&submitClaim{b})
	return r
}

// claimJSON renders a claim through its wire tags so tool payloads and API
// responses agree on field names.
func claimJSON(c *claim.Claim) (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *binding) ownedClaim(ctx context.Context, id int64) (*claim.Claim, error) {
	c, err := b.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.CreatedByID != b.userID {
		return nil, fmt.Errorf("claim %d is not yours: %w", id, claim.ErrUnauthorized)
	}
	return c, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unparseable date %q, use YYYY-MM-DD", s)
}

type listClaims struct{ *binding }

func (t *listClaims) Name() string { return "list_claims" }

func (t *listClaims) Description() string {
	return `List the user's insurance claims with id, policy, type, status, and amount.
Use format "cards" for a visual per-claim summary, "table" for a compact overview.`
}

func (t *listClaims) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "format": {
                "type": "string",
                "enum": ["table", "cards"],
                "description": "Presentation style. Defaults to table."
            }
        }
    }`)
}

func (t *listClaims) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		Format string `json:"format"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	claims, err := t.svc.List(ctx, t.userID)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(claims))
	for _, c := range claims {
		row, err := claimJSON(c)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	intent := "list_claims_table"
	if input.Format == "cards" {
		intent = "list_claims_cards"
	}
	return json.Marshal(map[string]any{
		"a2ui_intent": intent,
		"claims":      rows,
	})
}

type getClaim struct{ *binding }

func (t *getClaim) Name() string { return "get_claim" }

func (t *getClaim) Description() string {
	return "Fetch the full detail of one of the user's claims by id."
}

func (t *getClaim) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "claim_id": {
                "type": "integer",
                "description": "The claim id"
            }
        },
        "required": ["claim_id"]
    }`)
}

func (t *getClaim) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		ClaimID int64 `json:"claim_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	c, err := t.ownedClaim(ctx, input.ClaimID)
	if err != nil {
		return nil, err
	}
	obj, err := claimJSON(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"a2ui_intent": "claim_detail",
		"claim":       obj,
	})
}

// claimFormFields is the canonical form schema for creating and editing a
// claim, in display order.
var claimFormFields = []map[string]any{
	{"name": "policy_number", "label": "Policy Number", "type": "text", "required": true},
	{"name": "claim_type", "label": "Claim Type", "type": "select", "options": []string{"HEALTH", "AUTO", "PROPERTY"}, "required": true},
	{"name": "claim_amount", "label": "Claim Amount", "type": "number", "required": true},
	{"name": "incident_date", "label": "Incident Date", "type": "date", "required": true},
	{"name": "description", "label": "Description", "type": "textarea", "required": true},
	{"name": "fraud_risk_score", "label": "Fraud Risk Score", "type": "number", "required": false},
	{"name": "documents_uploaded", "label": "Documents Uploaded", "type": "checkbox", "required": false},
}

type claimFormSchema struct{}

func (t *claimFormSchema) Name() string { return "claim_form_schema" }

func (t *claimFormSchema) Description() string {
	return "Return the blank form schema for filing a new claim. Use when the user wants to create a claim interactively."
}

func (t *claimFormSchema) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *claimFormSchema) Execute(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(map[string]any{
		"a2ui_intent": "create_claim_form",
		"fields":      claimFormFields,
	})
}

type updateFormSchema struct{ *binding }

func (t *updateFormSchema) Name() string { return "update_form_schema" }

func (t *updateFormSchema) Description() string {
	return "Return the claim form schema prefilled with an existing claim's values, for editing."
}

func (t *updateFormSchema) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "claim_id": {
                "type": "integer",
                "description": "The claim id to prefill from"
            }
        },
        "required": ["claim_id"]
    }`)
}

func (t *updateFormSchema) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		ClaimID int64 `json:"claim_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	c, err := t.ownedClaim(ctx, input.ClaimID)
	if err != nil {
		return nil, err
	}
	obj, err := claimJSON(c)
	if err != nil {
		return nil, err
	}

	fields := make([]map[string]any, 0, len(claimFormFields))
	for _, f := range claimFormFields {
		cp := make(map[string]any, len(f)+1)
		for k, v := range f {
			cp[k] = v
		}
		if v, ok := obj[f["name"].(string)]; ok {
			cp["value"] = v
		}
		fields = append(fields, cp)
	}
	return json.Marshal(map[string]any{
		"a2ui_intent": "update_claim_form",
		"claim_id":    input.ClaimID,
		"fields":      fields,
	})
}

// claimFields is the shared wire form of claimant-editable fields in tool
// input.
type claimFields struct {
	PolicyNumber      *string  `json:"policy_number"`
	ClaimType         *string  `json:"claim_type"`
	ClaimAmount       *float64 `json:"claim_amount"`
	IncidentDate      *string  `json:"incident_date"`
	Description       *string  `json:"description"`
	FraudRiskScore    *float64 `json:"fraud_risk_score"`
	DocumentsUploaded *bool    `json:"documents_uploaded"`
}

type createClaim struct{ *binding }

func (t *createClaim) Name() string { return "create_claim" }

func (t *createClaim) Description() string {
	return `Create a new claim in DRAFT with the given fields. Incomplete drafts are
allowed; the claim is validated when submitted.`
}

func (t *createClaim) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "policy_number": {"type": "string"},
            "claim_type": {"type": "string", "enum": ["HEALTH", "AUTO", "PROPERTY"]},
            "claim_amount": {"type": "number"},
            "incident_date": {"type": "string", "description": "YYYY-MM-DD"},
            "description": {"type": "string"},
            "fraud_risk_score": {"type": "number"},
            "documents_uploaded": {"type": "boolean"}
        }
    }`)
}

func (t *createClaim) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input claimFields
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	in := &claim.CreateInput{}
	if input.PolicyNumber != nil {
		in.PolicyNumber = *input.PolicyNumber
	}
	if input.ClaimType != nil {
		in.ClaimType = claim.Type(*input.ClaimType)
	}
	if input.ClaimAmount != nil {
		in.ClaimAmount = *input.ClaimAmount
	}
	if input.IncidentDate != nil {
		d, err := parseDate(*input.IncidentDate)
		if err != nil {
			return nil, err
		}
		in.IncidentDate = d
	}
	if input.Description != nil {
		in.Description = *input.Description
	}
	if input.FraudRiskScore != nil {
		in.FraudRiskScore = *input.FraudRiskScore
	}
	if input.DocumentsUploaded != nil {
		in.DocumentsUploaded = *input.DocumentsUploaded
	}

	c, err := t.svc.Create(ctx, t.userID, in)
	if err != nil {
		return nil, err
	}
	obj, err := claimJSON(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"a2ui_intent": "claim_detail",
		"claim":       obj,
	})
}

type updateClaim struct{ *binding }

func (t *updateClaim) Name() string { return "update_claim" }

func (t *updateClaim) Description() string {
	return "Update fields on one of the user's DRAFT or NEEDS_MORE_INFO claims. Only provided fields change."
}

func (t *updateClaim) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "claim_id": {"type": "integer"},
            "policy_number": {"type": "string"},
            "claim_type": {"type": "string", "enum": ["HEALTH", "AUTO", "PROPERTY"]},
            "claim_amount": {"type": "number"},
            "incident_date": {"type": "string", "description": "YYYY-MM-DD"},
            "description": {"type": "string"},
            "fraud_risk_score": {"type": "number"},
            "documents_uploaded": {"type": "boolean"}
        },
        "required": ["claim_id"]
    }`)
}

func (t *updateClaim) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		ClaimID int64 `json:"claim_id"`
		claimFields
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	in := &claim.UpdateInput{
		PolicyNumber:      input.PolicyNumber,
		ClaimAmount:       input.ClaimAmount,
		Description:       input.Description,
		FraudRiskScore:    input.FraudRiskScore,
		DocumentsUploaded: input.DocumentsUploaded,
	}
	if input.ClaimType != nil {
		ct := claim.Type(*input.ClaimType)
		in.ClaimType = &ct
	}
	if input.IncidentDate != nil {
		d, err := parseDate(*input.IncidentDate)
		if err != nil {
			return nil, err
		}
		in.IncidentDate = d
	}

	c, err := t.svc.Update(ctx, t.userID, input.ClaimID, in)
	if err != nil {
		return nil, err
	}
	obj, err := claimJSON(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"a2ui_intent": "claim_updated",
		"claim":       obj,
	})
}

type submitClaim struct{ *binding }

func (t *submitClaim) Name() string { return "submit_claim" }

func (t *submitClaim) Description() string {
	return `Submit one of the user's claims for triage. The claim is validated,
risk-assessed, and either approved, queued for reviewer approval, or
returned for more information.`
}

func (t *submitClaim) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "claim_id": {
                "type": "integer",
                "description": "The claim id to submit"
            }
        },
        "required": ["claim_id"]
    }`)
}

func (t *submitClaim) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		ClaimID int64 `json:"claim_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	c, err := t.svc.Submit(ctx, t.userID, input.ClaimID)
	if err != nil {
		return nil, err
	}
	obj, err := claimJSON(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"a2ui_intent": "claim_submitted",
		"claim":       obj,
		"message":     submitMessage(c.Status),
	})
}

func submitMessage(st claim.Status) string {
	switch st {
	case claim.StatusApproved:
		return "The claim was approved automatically."
	case claim.StatusPendingApproval:
		return "The claim is awaiting reviewer approval."
	case claim.StatusNeedsMoreInfo:
		return "The claim needs more information before it can proceed."
	default:
		return fmt.Sprintf("The claim is now %s.", st)
	}
}

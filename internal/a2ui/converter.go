package a2ui

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/arbiter/internal/llm"
)

// Intent names carried in the a2ui_intent discriminator of tagged payloads.
const (
	IntentListClaimsTable = "list_claims_table"
	IntentListClaimsCards = "list_claims_cards"
	IntentCreateClaimForm = "create_claim_form"
	IntentUpdateClaimForm = "update_claim_form"
	IntentClaimDetail     = "claim_detail"
	IntentClaimUpdated    = "claim_updated"
	IntentClaimSubmitted  = "claim_submitted"
)

// FallbackText is substituted when components were produced but no usable
// narrative remains.
const FallbackText = "Here is the information you requested:"

const (
	// ReconcileTimeout bounds the reconciliation oracle call.
	ReconcileTimeout = 20 * time.Second

	reconcileTokens = 1024
)

// tableColumns is the fixed column set of a claims table.
var tableColumns = []string{"ID", "Policy", "Type", "Status", "Amount"}

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// Converter extracts typed components from agent output. Strategy one scans
// the narrative for tagged fenced payloads; strategy two asks the oracle to
// reconcile the narrative against raw tool payloads. Either way the
// component shapes come from the fixed intent mapping, never from the
// oracle.
type Converter struct {
	provider llm.Provider
	logger   log.Logger
}

// NewConverter creates a converter. provider may be nil; reconciliation is
// then skipped and strategy-two inputs pass through untouched.
func NewConverter(provider llm.Provider, logger log.Logger) *Converter {
	if logger == nil {
		logger = log.Nop()
	}
	return &Converter{provider: provider, logger: logger}
}

// Extract returns the cleaned narrative and the ordered components derived
// from it. It never fails: any extraction problem degrades to the original
// text with no components.
func (c *Converter) Extract(ctx context.Context, text string, toolPayloads []json.RawMessage) (string, []Component) {
	if cleaned, comps, ok := c.extractTagged(text); ok {
		return cleaned, comps
	}
	if len(toolPayloads) == 0 || c.provider == nil {
		return text, nil
	}
	return c.reconcile(ctx, text, toolPayloads)
}

// extractTagged scans fenced json blocks for tagged payloads, strips the
// matched blocks, and maps their intents. First successful strategy wins:
// ok=true short-circuits reconciliation.
func (c *Converter) extractTagged(text string) (string, []Component, bool) {
	matches := fencedJSON.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return "", nil, false
	}

	var comps []Component
	var out strings.Builder
	last := 0
	for _, m := range matches {
		block := text[m[2]:m[3]]
		var p intentPayload
		if err := json.Unmarshal([]byte(block), &p); err != nil || p.Intent == "" {
			continue
		}
		comp, ok := mapIntent(&p)
		if !ok {
			continue
		}
		comps = append(comps, comp)
		out.WriteString(text[last:m[0]])
		last = m[1]
	}
	if len(comps) == 0 {
		return "", nil, false
	}
	out.WriteString(text[last:])

	cleaned := strings.TrimSpace(out.String())
	if cleaned == "" {
		cleaned = FallbackText
	}
	return cleaned, comps, true
}

// reconcile runs one bounded oracle call mapping the tool payloads back
// into tagged intents, plus an optional shorter replacement narrative.
func (c *Converter) reconcile(ctx context.Context, text string, toolPayloads []json.RawMessage) (string, []Component) {
	ctx, cancel := context.WithTimeout(ctx, ReconcileTimeout)
	defer cancel()

	resp, err := c.provider.Send(ctx, &llm.Request{
		MaxTokens: reconcileTokens,
		System:    reconcileSystemPrompt,
		Messages: []llm.Message{{
			Role:    "user",
			Content: []llm.ContentBlock{{Type: "text", Text: buildReconcilePrompt(text, toolPayloads)}},
		}},
	})
	if err != nil {
		c.logger.Warn(ctx, "reconciliation call failed", "error", err)
		return text, nil
	}

	var raw string
	for _, block := range resp.Content {
		if block.Type == "text" {
			raw += block.Text
		}
	}
	var result struct {
		Intents         []json.RawMessage `json:"intents"`
		ReplacementText string            `json:"replacement_text"`
	}
	if err := json.Unmarshal(extractJSON(raw), &result); err != nil {
		c.logger.Warn(ctx, "reconciliation output unparseable", "error", err)
		return text, nil
	}

	var comps []Component
	for _, ri := range result.Intents {
		var p intentPayload
		if err := json.Unmarshal(ri, &p); err != nil || p.Intent == "" {
			continue
		}
		if comp, ok := mapIntent(&p); ok {
			comps = append(comps, comp)
		}
	}
	if len(comps) == 0 {
		return text, nil
	}

	replacement := strings.TrimSpace(result.ReplacementText)
	if replacement == "" {
		replacement = FallbackText
	}
	return replacement, comps
}

const reconcileSystemPrompt = `You reconcile an assistant's narrative with the raw tool data behind
it. Respond with a single JSON object and nothing else:
{"intents": [<tagged payload objects>], "replacement_text": "<string>"}
Each intent object carries an "a2ui_intent" field naming one of:
list_claims_table, list_claims_cards, create_claim_form,
update_claim_form, claim_detail, claim_updated, claim_submitted.
Derive the intent objects only from the tool data. replacement_text must be
shorter than the narrative and may be "" when the narrative says nothing
beyond the tool data.`

func buildReconcilePrompt(text string, toolPayloads []json.RawMessage) string {
	var b strings.Builder
	b.WriteString("Narrative:\n")
	b.WriteString(text)
	b.WriteString("\n\nTool data:\n")
	for _, p := range toolPayloads {
		b.Write(p)
		b.WriteString("\n")
	}
	return b.String()
}

// extractJSON returns the JSON object embedded in s: the whole string, a
// fenced block, or the outermost brace span.
func extractJSON(s string) []byte {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		return []byte(s)
	}
	if m := fencedJSON.FindStringSubmatch(s); m != nil {
		return []byte(m[1])
	}
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		return []byte(s[i : j+1])
	}
	return []byte(s)
}

// intentPayload is the superset wire form of all tagged payloads.
type intentPayload struct {
	Intent  string           `json:"a2ui_intent"`
	Claims  []claimRow       `json:"claims,omitempty"`
	Claim   map[string]any   `json:"claim,omitempty"`
	Fields  []map[string]any `json:"fields,omitempty"`
	Title   string           `json:"title,omitempty"`
	Message string           `json:"message,omitempty"`
}

type claimRow struct {
	ID           int64   `json:"id"`
	PolicyNumber string  `json:"policy_number"`
	ClaimType    string  `json:"claim_type"`
	Status       string  `json:"status"`
	ClaimAmount  float64 `json:"claim_amount"`
}

// mapIntent maps one tagged payload to its fixed component shape.
func mapIntent(p *intentPayload) (Component, bool) {
	switch p.Intent {
	case IntentListClaimsTable:
		rows := make([][]any, 0, len(p.Claims))
		for _, r := range p.Claims {
			rows = append(rows, []any{r.ID, r.PolicyNumber, r.ClaimType, r.Status, r.ClaimAmount})
		}
		return Component{
			Type:    TypeTableCard,
			Title:   orDefault(p.Title, "Your Claims"),
			Columns: tableColumns,
			Rows:    rows,
		}, true

	case IntentListClaimsCards:
		cards := make([]Component, 0, len(p.Claims))
		for _, r := range p.Claims {
			cards = append(cards, Component{
				Type:        TypeStatusCard,
				Title:       fmt.Sprintf("Claim #%d", r.ID),
				Status:      r.Status,
				Color:       StatusColor(r.Status),
				Icon:        StatusIcon(r.Status),
				Description: fmt.Sprintf("%s claim on %s for $%.2f", r.ClaimType, r.PolicyNumber, r.ClaimAmount),
			})
		}
		return Component{
			Type:  TypeCardList,
			Title: orDefault(p.Title, "Your Claims"),
			Cards: cards,
		}, true

	case IntentCreateClaimForm:
		return Component{
			Type:        TypeFormCard,
			Title:       orDefault(p.Title, "New Claim"),
			Fields:      p.Fields,
			SubmitLabel: "Create Claim",
		}, true

	case IntentUpdateClaimForm:
		return Component{
			Type:        TypeFormCard,
			Title:       orDefault(p.Title, "Update Claim"),
			Fields:      p.Fields,
			SubmitLabel: "Update Claim",
		}, true

	case IntentClaimDetail:
		return Component{
			Type:  TypeInfoCard,
			Title: orDefault(p.Title, claimTitle(p.Claim)),
			Pairs: claimPairs(p.Claim),
		}, true

	case IntentClaimUpdated, IntentClaimSubmitted:
		status, _ := p.Claim["status"].(string)
		verb := "updated"
		if p.Intent == IntentClaimSubmitted {
			verb = "submitted"
		}
		desc := p.Message
		if desc == "" {
			desc = fmt.Sprintf("The claim was %s.", verb)
		}
		return Component{
			Type:        TypeStatusCard,
			Title:       fmt.Sprintf("%s %s", claimTitle(p.Claim), verb),
			Status:      status,
			Color:       StatusColor(status),
			Icon:        StatusIcon(status),
			Description: desc,
		}, true
	}
	return Component{}, false
}

// claimPairField order and labels for info_card rendering.
var claimPairFields = []struct {
	key   string
	label string
}{
	{"id", "Claim ID"},
	{"policy_number", "Policy"},
	{"claim_type", "Type"},
	{"claim_amount", "Amount"},
	{"incident_date", "Incident Date"},
	{"description", "Description"},
	{"fraud_risk_score", "Fraud Risk Score"},
	{"documents_uploaded", "Documents Uploaded"},
	{"status", "Status"},
}

func claimPairs(claim map[string]any) []Pair {
	var pairs []Pair
	for _, f := range claimPairFields {
		v, ok := claim[f.key]
		if !ok || v == nil {
			continue
		}
		pairs = append(pairs, Pair{Label: f.label, Value: formatValue(f.key, v)})
	}
	return pairs
}

func claimTitle(claim map[string]any) string {
	if id, ok := claim["id"].(float64); ok {
		return fmt.Sprintf("Claim #%d", int64(id))
	}
	return "Claim"
}

func formatValue(key string, v any) string {
	switch key {
	case "claim_amount":
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("$%.2f", f)
		}
	case "fraud_risk_score":
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.2f", f)
		}
	case "documents_uploaded":
		if b, ok := v.(bool); ok {
			if b {
				return "yes"
			}
			return "no"
		}
	case "id":
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%d", int64(f))
		}
	}
	return fmt.Sprintf("%v", v)
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
